package arbiter

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/hwres/arbiter/resource"
)

// Arbiter binds a single resource type to one entry list and is owned by
// the device that provides the underlying space to its children.
type Arbiter struct {
	owner        *Device
	resourceType resource.Type
	entries      entryList
}

func newArbiter(owner *Device, resourceType resource.Type) *Arbiter {
	a := &Arbiter{
		owner:        owner,
		resourceType: resourceType,
	}
	a.entries.init(a)
	return a
}

func (a *Arbiter) Owner() *Device { return a.owner }

func (a *Arbiter) ResourceType() resource.Type { return a.resourceType }

// AddFreeSpace makes [base, base+length) available for arbitration. A
// zero length is a no-op. The source allocation and translation offset are
// recorded on the resulting free interval and carried onto every entry
// carved from it.
func (a *Arbiter) AddFreeSpace(base, length uint64, characteristics uint32, source *Allocation, translationOffset int64) {
	if length == 0 {
		return
	}
	a.entries.addFree(base, length, characteristics, source, translationOffset)
	resource.DebugValidate(a)
}

// FindCovering returns the first entry containing base. When
// preferWithDependent is set and several entries cover base, an entry
// carrying a dependent link wins.
func (a *Arbiter) FindCovering(base uint64, preferWithDependent bool) *Entry {
	return a.entries.findCovering(base, preferWithDependent)
}

// VisitEntries calls visitEntry for every entry in base order.
func (a *Arbiter) VisitEntries(visitEntry func(e *Entry) error) error {
	return a.entries.visit(visitEntry)
}

// EntryCount returns the number of entries currently in the arbiter.
func (a *Arbiter) EntryCount() int {
	return a.entries.entryCount
}

// freeTotal sums the length of every Free entry.
func (a *Arbiter) freeTotal() uint64 {
	var total uint64
	for e := a.entries.head; e != nil; e = e.next {
		if e.state == EntryFree {
			total += e.length
		}
	}
	return total
}

// allFree reports whether the arbiter holds nothing but Free entries.
func (a *Arbiter) allFree() bool {
	for e := a.entries.head; e != nil; e = e.next {
		if e.state != EntryFree {
			return false
		}
	}
	return true
}

// Validate performs internal consistency checks on the arbiter. When the
// implementation is functioning correctly this cannot fail, but it may
// assist in diagnosing issues.
func (a *Arbiter) Validate() error {
	return a.entries.Validate()
}

// AddStatistics sums this arbiter's occupancy into stats.
func (a *Arbiter) AddStatistics(stats *resource.Statistics) {
	stats.ArbiterCount++
	for e := a.entries.head; e != nil; e = e.next {
		stats.WindowBytes += e.length
		if e.state != EntryFree {
			stats.AllocationCount++
			stats.AllocationBytes += e.length
		}
	}
}

// AddDetailedStatistics sums this arbiter's occupancy and range extrema
// into stats.
func (a *Arbiter) AddDetailedStatistics(stats *resource.DetailedStatistics) {
	stats.ArbiterCount++
	for e := a.entries.head; e != nil; e = e.next {
		stats.WindowBytes += e.length
		if e.state == EntryFree {
			stats.AddFreeRange(e.length)
		} else {
			stats.AddAllocation(e.length)
		}
	}
}

func (a *Arbiter) printEntries(json *jwriter.ObjectState) {
	json.Name("ResourceType").String(a.resourceType.String())
	json.Name("Owner").String(a.owner.Name())

	arrayState := json.Name("Entries").Array()
	defer arrayState.End()

	for e := a.entries.head; e != nil; e = e.next {
		obj := arrayState.Object()
		obj.Name("State").String(e.state.String())
		obj.Name("Base").Int(int(e.base))
		obj.Name("Length").Int(int(e.length))
		obj.Name("Characteristics").Int(int(e.characteristics))
		obj.Name("Flags").String(e.flags.String())
		if e.device != nil {
			obj.Name("Device").String(e.device.Name())
		}
		if e.translationOffset != 0 {
			obj.Name("TranslationOffset").Int(int(e.translationOffset))
		}
		if dep := e.Dependent(); dep != nil {
			obj.Name("Dependent").String(dep.arbiter.resourceType.String())
		}
		obj.End()
	}
}

// DumpString renders the arbiter's entry list as a JSON document.
func (a *Arbiter) DumpString() string {
	writer := jwriter.NewWriter()
	obj := writer.Object()
	a.printEntries(&obj)
	obj.End()
	return string(writer.Bytes())
}
