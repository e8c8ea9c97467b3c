package arbiter

import (
	"sync/atomic"

	"github.com/dolthub/swiss"
	"github.com/pkg/errors"

	"github.com/hwres/arbiter/resource"
)

// entryList is the interval model of one arbiter's address space: a
// sequence of entries sorted ascending by base, with a handle registry for
// stable cross-arbiter references.
//
// Free entries are pairwise disjoint and coalesced with matching
// neighbors. Reserved/Allocated entries may overlap each other only when
// every participant is mutually shareable with an identical extent.
type entryList struct {
	arbiter *Arbiter

	head       *Entry
	tail       *Entry
	entryCount int

	nextHandle EntryHandle
	handles    *swiss.Map[EntryHandle, *Entry]
}

func (l *entryList) init(arb *Arbiter) {
	l.arbiter = arb
	l.handles = swiss.NewMap[EntryHandle, *Entry](42)
}

func (l *entryList) allocateEntry() *Entry {
	e := entryAllocator.Get().(*Entry)
	*e = Entry{}
	e.handle = EntryHandle(atomic.AddUint64((*uint64)(&l.nextHandle), 1))
	e.arbiter = l.arbiter
	l.handles.Put(e.handle, e)
	return e
}

func (l *entryList) freeEntry(e *Entry) {
	l.handles.Delete(e.handle)
	*e = Entry{}
	entryAllocator.Put(e)
}

func (l *entryList) entryForHandle(handle EntryHandle) (*Entry, error) {
	e, ok := l.handles.Get(handle)
	if !ok {
		return nil, errors.New("received a handle that was incompatible with this entry list")
	}
	return e, nil
}

// insertSorted links e into the sequence, after any existing entries with
// the same base.
func (l *entryList) insertSorted(e *Entry) {
	var after *Entry
	for cur := l.head; cur != nil && cur.base <= e.base; cur = cur.next {
		after = cur
	}
	l.insertAfter(e, after)
}

func (l *entryList) insertAfter(e *Entry, after *Entry) {
	if after == nil {
		e.next = l.head
		e.prev = nil
		if l.head != nil {
			l.head.prev = e
		}
		l.head = e
		if l.tail == nil {
			l.tail = e
		}
	} else {
		e.prev = after
		e.next = after.next
		after.next = e
		if e.next != nil {
			e.next.prev = e
		} else {
			l.tail = e
		}
	}
	l.entryCount++
}

func (l *entryList) remove(e *Entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	e.prev = nil
	e.next = nil
	l.entryCount--
}

// freePropertiesMatch is the coalescing rule: adjacent Free entries merge
// only when their characteristics, source allocation and translation
// offset all agree.
func freePropertiesMatch(e *Entry, characteristics uint32, source *Allocation, translationOffset int64) bool {
	return e.state == EntryFree &&
		e.characteristics == characteristics &&
		e.sourceAllocation == source &&
		e.translationOffset == translationOffset
}

// addFree inserts a Free interval, shrinking it so it does not cross any
// existing neighbor, and coalesces it with matching adjacent Free entries.
// Returns nil if the interval was swallowed entirely.
func (l *entryList) addFree(base, length uint64, characteristics uint32, source *Allocation, translationOffset int64) *Entry {
	if length == 0 {
		return nil
	}

	newBase := base
	newEnd := base + length

	for cur := l.head; cur != nil && cur.base < newEnd; cur = cur.next {
		if cur.length == 0 || cur.end() <= newBase {
			continue
		}
		if cur.base <= newBase {
			newBase = cur.end()
			if newBase >= newEnd {
				return nil
			}
		} else {
			newEnd = cur.base
			break
		}
	}

	e := l.allocateEntry()
	e.state = EntryFree
	e.base = newBase
	e.length = newEnd - newBase
	e.characteristics = characteristics
	e.freeCharacteristics = characteristics
	e.sourceAllocation = source
	e.translationOffset = translationOffset
	l.insertSorted(e)

	l.coalesce(e)
	return e
}

// coalesce merges e with its immediate Free neighbors when bases touch and
// free properties match.
func (l *entryList) coalesce(e *Entry) {
	if prev := e.prev; prev != nil && prev.end() == e.base &&
		freePropertiesMatch(prev, e.characteristics, e.sourceAllocation, e.translationOffset) {
		e.base = prev.base
		e.length += prev.length
		l.remove(prev)
		l.freeEntry(prev)
	}
	if next := e.next; next != nil && next.base == e.end() &&
		freePropertiesMatch(next, e.characteristics, e.sourceAllocation, e.translationOffset) {
		e.length += next.length
		l.remove(next)
		l.freeEntry(next)
	}
}

// insert carves a Reserved or Allocated entry out of existing, or inserts
// it standalone when existing is nil. When existing is Free and not fully
// consumed, the leftover is split into up to one leading and one trailing
// Free entry preserving the original's free properties. The new entry
// inherits the existing entry's dependent link.
func (l *entryList) insert(
	state EntryState,
	device *Device,
	base, length uint64,
	characteristics uint32,
	flags resource.Flags,
	requirement *Requirement,
	existing *Entry,
) *Entry {
	if state == EntryFree {
		panic("insert cannot create Free entries, use addFree")
	}

	e := l.allocateEntry()
	e.state = state
	e.device = device
	e.base = base
	e.length = length
	e.characteristics = characteristics
	e.flags = flags
	e.requirement = requirement

	if existing == nil {
		e.freeCharacteristics = characteristics
		l.insertSorted(e)
		return e
	}

	e.sourceAllocation = existing.sourceAllocation
	e.translationOffset = existing.translationOffset
	e.dependentArbiter = existing.dependentArbiter
	e.dependentHandle = existing.dependentHandle

	if existing.state != EntryFree {
		// Sharing: the new entry overlaps the existing one exactly.
		if base != existing.base || length != existing.length {
			panic("shared entries must have an identical extent")
		}
		e.freeCharacteristics = existing.freeCharacteristics
		l.insertSorted(e)
		return e
	}

	if base < existing.base || base+length > existing.end() {
		panic("entry being carved does not fit inside the existing free entry")
	}

	e.freeCharacteristics = existing.characteristics

	leading := base - existing.base
	trailing := existing.end() - (base + length)

	switch {
	case leading > 0:
		existing.length = leading
		l.insertAfter(e, existing)
		if trailing > 0 {
			rest := l.allocateEntry()
			rest.state = EntryFree
			rest.base = base + length
			rest.length = trailing
			rest.characteristics = existing.characteristics
			rest.freeCharacteristics = existing.freeCharacteristics
			rest.sourceAllocation = existing.sourceAllocation
			rest.translationOffset = existing.translationOffset
			l.insertAfter(rest, e)
		}
	case trailing > 0:
		existing.base = base + length
		existing.length = trailing
		prev := existing.prev
		l.insertAfter(e, prev)
	default:
		prev := existing.prev
		l.remove(existing)
		l.freeEntry(existing)
		l.insertAfter(e, prev)
	}

	return e
}

// sharedWith reports whether another non-Free entry covers the same
// interval as e.
func (l *entryList) sharedWith(e *Entry) bool {
	for cur := l.head; cur != nil && cur.base < e.end(); cur = cur.next {
		if cur == e || cur.state == EntryFree {
			continue
		}
		if cur.base <= e.base && cur.end() >= e.end() {
			return true
		}
	}
	return false
}

// release removes a non-Free entry. If another non-Free entry still covers
// the interval the entry is simply dropped; otherwise the interval is
// restored as Free space using the entry's free characteristics and
// coalesced. Zero-length point claims are removed without restoring space.
func (l *entryList) release(e *Entry) {
	if e.state == EntryFree {
		panic("attempted to release a free entry")
	}

	l.remove(e)

	if e.length == 0 || l.sharedWith(e) {
		l.freeEntry(e)
		return
	}

	base := e.base
	length := e.length
	freeCharacteristics := e.freeCharacteristics
	source := e.sourceAllocation
	translationOffset := e.translationOffset
	l.freeEntry(e)

	l.addFree(base, length, freeCharacteristics, source, translationOffset)
}

// findCovering returns the first entry whose interval contains base. When
// preferWithDependent is set and several entries cover base, an entry with
// a dependent link is preferred.
func (l *entryList) findCovering(base uint64, preferWithDependent bool) *Entry {
	var first *Entry
	for cur := l.head; cur != nil && cur.base <= base; cur = cur.next {
		if !cur.covers(base) {
			continue
		}
		if first == nil {
			first = cur
		}
		if !preferWithDependent {
			return cur
		}
		if cur.Dependent() != nil {
			return cur
		}
	}
	return first
}

// coversRange reports whether every address of [base, end) is covered by
// some entry.
func (l *entryList) coversRange(base, end uint64) bool {
	next := base
	for cur := l.head; cur != nil && next < end; cur = cur.next {
		if cur.length == 0 || cur.end() <= next {
			continue
		}
		if cur.base > next {
			return false
		}
		next = cur.end()
	}
	return next >= end
}

// destroyAll tears down every entry without coalescing and severs each one
// from its claiming device's allocation list.
func (l *entryList) destroyAll() {
	for e := l.head; e != nil; {
		next := e.next
		if e.device != nil {
			e.device.unlinkAllocation(e)
		}
		l.freeEntry(e)
		e = next
	}
	l.head = nil
	l.tail = nil
	l.entryCount = 0
}

func (l *entryList) visit(visitEntry func(e *Entry) error) error {
	for e := l.head; e != nil; e = e.next {
		err := visitEntry(e)
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate performs internal consistency checks on the entry list.
func (l *entryList) Validate() error {
	count := 0
	for e := l.head; e != nil; e = e.next {
		count++

		registered, ok := l.handles.Get(e.handle)
		if !ok || registered != e {
			return errors.Errorf("entry at base %#x is not registered under its handle", e.base)
		}

		if e.next != nil {
			if e.next.prev != e {
				return errors.Errorf("entry at base %#x has a broken reverse link", e.base)
			}
			if e.next.base < e.base {
				return errors.Errorf("entry at base %#x precedes an entry at base %#x", e.base, e.next.base)
			}
		}

		if e.state == EntryFree {
			if e.device != nil {
				return errors.Errorf("free entry at base %#x has a claiming device", e.base)
			}
			if e.length == 0 {
				return errors.Errorf("free entry at base %#x has zero length", e.base)
			}
		} else if e.device == nil {
			return errors.Errorf("%s entry at base %#x has no claiming device", e.state, e.base)
		}

		if e.dependentArbiter != nil {
			if e.dependentArbiter == l.arbiter {
				return errors.Errorf("entry at base %#x has a dependent in its own arbiter", e.base)
			}
			// A handle whose entry has been released resolves to nothing;
			// that is a legal state, not a dangling reference.
			if dep := e.Dependent(); dep != nil && dep.state == EntryFree {
				return errors.Errorf("entry at base %#x has a free dependent entry", e.base)
			}
		}

		for other := e.next; other != nil && other.base < e.end(); other = other.next {
			// Zero-length point claims occupy no space.
			if e.length == 0 || other.length == 0 {
				continue
			}
			if e.state == EntryFree && other.state == EntryFree {
				return errors.Errorf("free entries at bases %#x and %#x overlap", e.base, other.base)
			}
			if e.state == EntryFree || other.state == EntryFree {
				return errors.Errorf("entry at base %#x overlaps free space at base %#x", other.base, e.base)
			}
			if e.base != other.base || e.length != other.length {
				return errors.Errorf("shared entries at bases %#x and %#x do not have an identical extent", e.base, other.base)
			}
			if e.flags&resource.FlagNotShareable != 0 || other.flags&resource.FlagNotShareable != 0 {
				return errors.Errorf("non-shareable entry at base %#x overlaps another entry", e.base)
			}
			if e.characteristics != other.characteristics {
				return errors.Errorf("shared entries at base %#x disagree on characteristics", e.base)
			}
		}

		if prev := e.prev; prev != nil && prev.end() == e.base &&
			e.state == EntryFree &&
			freePropertiesMatch(prev, e.characteristics, e.sourceAllocation, e.translationOffset) {
			return errors.Errorf("adjacent free entries at bases %#x and %#x were not coalesced", prev.base, e.base)
		}
	}

	if count != l.entryCount {
		return errors.Errorf("the entry list's count is %d, but %d entries were found", l.entryCount, count)
	}

	return nil
}
