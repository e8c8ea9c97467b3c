package resource

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~uint64 | ~uint
}

func CheckPow2[T Number](number T, name string) error {
	if number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to the next multiple of alignment. An alignment
// of 0 is treated as 1, matching requirement semantics. Alignments are not
// required to be powers of two.
func AlignUp(value uint64, alignment uint64) uint64 {
	if alignment <= 1 {
		return value
	}
	if remainder := value % alignment; remainder != 0 {
		return value + alignment - remainder
	}
	return value
}

// AlignDown rounds value down to the previous multiple of alignment.
func AlignDown(value uint64, alignment uint64) uint64 {
	if alignment <= 1 {
		return value
	}
	return value - value%alignment
}

// IsAligned reports whether value is a multiple of alignment, with 0
// treated as 1.
func IsAligned(value uint64, alignment uint64) bool {
	if alignment <= 1 {
		return true
	}
	return value%alignment == 0
}
