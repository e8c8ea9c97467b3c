package resource

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAlignUp(t *testing.T) {
	require.Equal(t, uint64(0), AlignUp(0, 0x10))
	require.Equal(t, uint64(0x10), AlignUp(1, 0x10))
	require.Equal(t, uint64(0x10), AlignUp(0x10, 0x10))
	require.Equal(t, uint64(0x20), AlignUp(0x11, 0x10))
	require.Equal(t, uint64(7), AlignUp(7, 0))
	require.Equal(t, uint64(7), AlignUp(7, 1))

	require.Equal(t, uint64(6), AlignUp(4, 3))
	require.Equal(t, uint64(6), AlignUp(6, 3))
	require.Equal(t, uint64(0x18), AlignUp(0x11, 12))
}

func TestAlignDown(t *testing.T) {
	require.Equal(t, uint64(0), AlignDown(0xf, 0x10))
	require.Equal(t, uint64(0x10), AlignDown(0x1f, 0x10))
	require.Equal(t, uint64(0x10), AlignDown(0x10, 0x10))
	require.Equal(t, uint64(7), AlignDown(7, 0))

	require.Equal(t, uint64(6), AlignDown(7, 3))
	require.Equal(t, uint64(6), AlignDown(6, 3))
}

func TestIsAligned(t *testing.T) {
	require.True(t, IsAligned(0, 0x10))
	require.True(t, IsAligned(0x40, 0x10))
	require.False(t, IsAligned(0x41, 0x10))
	require.True(t, IsAligned(0x41, 0))
	require.True(t, IsAligned(0x41, 1))

	require.True(t, IsAligned(9, 3))
	require.False(t, IsAligned(10, 3))
}

func TestCheckPow2(t *testing.T) {
	require.NoError(t, CheckPow2(uint64(0x100), "alignment"))
	require.NoError(t, CheckPow2(uint64(1), "alignment"))

	err := CheckPow2(uint64(0x180), "alignment")
	require.Error(t, err)
	require.True(t, errors.Is(err, PowerOfTwoError))
}

func TestParseType(t *testing.T) {
	for typ := TypePhysicalAddress; typ <= TypeSimpleBus; typ++ {
		parsed, ok := ParseType(typ.String())
		require.True(t, ok)
		require.Equal(t, typ, parsed)
	}

	_, ok := ParseType("Invalid")
	require.False(t, ok)
	_, ok = ParseType("NotAResource")
	require.False(t, ok)
}

func TestTypeIsValid(t *testing.T) {
	require.False(t, TypeInvalid.IsValid())
	require.True(t, TypePhysicalAddress.IsValid())
	require.True(t, TypeSimpleBus.IsValid())
	require.False(t, (TypeSimpleBus + 1).IsValid())
}

func TestFlagsString(t *testing.T) {
	require.Equal(t, "None", Flags(0).String())
	require.Equal(t, "NotShareable", FlagNotShareable.String())
	require.Equal(t, "NotShareable|Boot", (FlagNotShareable | FlagBoot).String())
}

func TestDetailedStatistics(t *testing.T) {
	var stats DetailedStatistics
	stats.Clear()

	stats.AddAllocation(0x10)
	stats.AddAllocation(0x100)
	stats.AddFreeRange(0x40)

	require.Equal(t, 2, stats.AllocationCount)
	require.Equal(t, uint64(0x110), stats.AllocationBytes)
	require.Equal(t, uint64(0x10), stats.AllocationSizeMin)
	require.Equal(t, uint64(0x100), stats.AllocationSizeMax)
	require.Equal(t, 1, stats.FreeRangeCount)
	require.Equal(t, uint64(0x40), stats.FreeRangeSizeMin)
	require.Equal(t, uint64(0x40), stats.FreeRangeSizeMax)

	var sum DetailedStatistics
	sum.Clear()
	sum.AddDetailedStatistics(&stats)
	require.Equal(t, uint64(0x10), sum.AllocationSizeMin)
	require.Equal(t, uint64(0x100), sum.AllocationSizeMax)
}
