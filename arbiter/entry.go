package arbiter

import (
	"math"
	"sync"

	"github.com/hwres/arbiter/resource"
)

// EntryState describes what one interval of an arbiter currently is.
// Free intervals may be split and coalesced; Reserved intervals may be
// ripped up by a later resolution; Allocated intervals are fixed until
// their device is explicitly torn down.
type EntryState uint32

const (
	EntryFree EntryState = iota
	EntryReserved
	EntryAllocated
)

var entryStateMapping = map[EntryState]string{
	EntryFree:      "Free",
	EntryReserved:  "Reserved",
	EntryAllocated: "Allocated",
}

func (s EntryState) String() string {
	return entryStateMapping[s]
}

// EntryHandle is a stable, non-owning reference to an entry within one
// arbiter's entry list.
type EntryHandle uint64

// NoEntry is the EntryHandle value that refers to no entry.
const NoEntry EntryHandle = math.MaxUint64

var entryAllocator = sync.Pool{
	New: func() any {
		return &Entry{}
	},
}

// Entry is one interval [base, base+length) within an arbiter. Entries are
// owned by exactly one arbiter's entry list and additionally linked into
// their claiming device's allocation list once finalized.
type Entry struct {
	state  EntryState
	base   uint64
	length uint64

	// characteristics are the effective characteristics of the interval;
	// freeCharacteristics are restored when the interval is released.
	characteristics     uint32
	freeCharacteristics uint32
	flags               resource.Flags

	device      *Device
	requirement *Requirement

	// sourceAllocation is the parent allocation that produced this window,
	// when the window was carved from an upstream grant.
	sourceAllocation *Allocation
	// translationOffset maps this arbiter's secondary space into the
	// primary (processor-local) space.
	translationOffset int64

	// dependentArbiter and dependentHandle reference an entry in a
	// different arbiter whose placement is locked in by this entry's
	// placement. The reference is a non-owning handle: once the referenced
	// entry leaves its registry the link resolves to nothing.
	dependentArbiter *Arbiter
	dependentHandle  EntryHandle

	handle  EntryHandle
	arbiter *Arbiter
	prev    *Entry
	next    *Entry
}

func (e *Entry) State() EntryState { return e.state }

func (e *Entry) Base() uint64 { return e.base }

func (e *Entry) Length() uint64 { return e.length }

func (e *Entry) Flags() resource.Flags { return e.flags }

func (e *Entry) Characteristics() uint32 { return e.characteristics }

func (e *Entry) Device() *Device { return e.device }

func (e *Entry) Arbiter() *Arbiter { return e.arbiter }

func (e *Entry) Handle() EntryHandle { return e.handle }

// Requirement returns the root (never alternative) requirement the entry
// was placed for, or nil for Free entries.
func (e *Entry) Requirement() *Requirement { return e.requirement }

// Dependent resolves the entry in another arbiter locked in by this one.
// Returns nil when no link is recorded or the linked entry has since been
// released.
func (e *Entry) Dependent() *Entry {
	if e.dependentArbiter == nil {
		return nil
	}
	dep, err := e.dependentArbiter.entries.entryForHandle(e.dependentHandle)
	if err != nil {
		return nil
	}
	return dep
}

func (e *Entry) setDependent(dep *Entry) {
	if dep == nil {
		e.dependentArbiter = nil
		e.dependentHandle = NoEntry
		return
	}
	e.dependentArbiter = dep.arbiter
	e.dependentHandle = dep.handle
}

// TranslationOffset returns the secondary-to-primary offset for the
// interval.
func (e *Entry) TranslationOffset() int64 { return e.translationOffset }

func (e *Entry) end() uint64 {
	return e.base + e.length
}

// covers reports whether the entry's interval contains the address.
// Zero-length point claims cover nothing.
func (e *Entry) covers(address uint64) bool {
	return e.base <= address && address < e.end()
}
