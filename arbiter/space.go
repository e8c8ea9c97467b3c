package arbiter

import (
	"github.com/hwres/arbiter/resource"
)

// sharingCompatible is the predicate that lets a requirement join an
// already-placed entry: identical extent and characteristics, a base the
// requirement's alignment accepts, and neither side demanding exclusivity.
func sharingCompatible(e *Entry, req *Requirement) bool {
	return e.length == req.Length &&
		e.characteristics == req.Characteristics &&
		e.flags&resource.FlagNotShareable == 0 &&
		req.Flags&resource.FlagNotShareable == 0 &&
		resource.IsAligned(e.base, req.Alignment)
}

// allocateRequirement places one context requirement: the primary first,
// then each alternative in order. The tentative entry always records the
// root requirement.
func (c *allocationContext) allocateRequirement(cr *contextRequirement) resource.Status {
	st := c.allocateSpace(cr, cr.requirement)
	if st == resource.StatusOK {
		return st
	}
	for _, alt := range cr.requirement.Alternatives {
		st = c.allocateSpace(cr, alt)
		if st == resource.StatusOK {
			return st
		}
	}
	return st
}

// allocateSpace searches the requirement's arbiter for a range satisfying
// req and places a Reserved tentative entry there.
func (c *allocationContext) allocateSpace(cr *contextRequirement, req *Requirement) resource.Status {
	arb := c.arbiters[cr.arbiterIndex].arbiter
	dev := c.devices[cr.deviceIndex].device

	// A requirement owned by an already-placed sibling whose entry carries
	// a dependent link has no freedom left: it must reuse the dependent
	// entry's exact range.
	if req.Owning != nil {
		if owner := c.findRequirement(req.Owning); owner != nil && owner.tentative != nil {
			if dep := owner.tentative.Dependent(); dep != nil {
				return c.allocateDependent(cr, req, arb, dev, dep)
			}
		}
	}

	if req.Length == 0 {
		// Point claim at the window start; no space search.
		cr.tentative = arb.entries.insert(EntryReserved, dev, req.Min, 0, req.Characteristics, req.Flags, cr.requirement, nil)
		c.recordOwningLink(cr, req)
		resource.DebugValidate(arb)
		return resource.StatusOK
	}

	for pass := 0; pass < 2; pass++ {
		for e := arb.entries.head; e != nil; e = e.next {
			if pass == 0 {
				if e.state != EntryFree {
					continue
				}
			} else if e.state == EntryFree || !sharingCompatible(e, req) {
				continue
			}

			if e.end() <= req.Min {
				continue
			}
			// The candidate's declared characteristics must all appear in
			// the request.
			if e.characteristics&req.Characteristics != e.characteristics {
				continue
			}

			base := e.base
			if req.Min > base {
				base = req.Min
			}
			base = resource.AlignUp(base, req.Alignment)

			if base+req.Length > req.Max {
				// Entries are sorted: no later candidate can satisfy a
				// maximum already violated.
				return resource.StatusUnsuccessful
			}

			if base+req.Length <= e.end() {
				cr.tentative = arb.entries.insert(EntryReserved, dev, base, req.Length, req.Characteristics, req.Flags, cr.requirement, e)
				c.recordOwningLink(cr, req)
				resource.DebugValidate(arb)
				return resource.StatusOK
			}
		}
	}

	return resource.StatusResourceInUse
}

// allocateDependent places a requirement forced onto the range of dep, the
// dependent entry recorded by its owning sibling's placement.
func (c *allocationContext) allocateDependent(cr *contextRequirement, req *Requirement, arb *Arbiter, dev *Device, dep *Entry) resource.Status {
	if dep.arbiter != arb ||
		dep.arbiter.resourceType != req.Type ||
		dep.length != req.Length ||
		dep.characteristics != req.Characteristics ||
		!resource.IsAligned(dep.base, req.Alignment) ||
		dep.base < req.Min ||
		dep.base+dep.length > req.Max ||
		dep.flags&resource.FlagNotShareable != 0 ||
		req.Flags&resource.FlagNotShareable != 0 {
		return resource.StatusResourceInUse
	}

	cr.tentative = arb.entries.insert(EntryReserved, dev, dep.base, dep.length, req.Characteristics, req.Flags, cr.requirement, dep)
	resource.DebugValidate(arb)
	return resource.StatusOK
}

// recordOwningLink records a fresh placement as its owning sibling's
// dependent entry when the sibling was already placed in another arbiter
// and carries no dependent yet.
func (c *allocationContext) recordOwningLink(cr *contextRequirement, req *Requirement) {
	if req.Owning == nil {
		return
	}
	owner := c.findRequirement(req.Owning)
	if owner == nil || owner.tentative == nil || owner.tentative == cr.tentative {
		return
	}
	if owner.tentative.Dependent() == nil && owner.tentative.arbiter != cr.tentative.arbiter {
		owner.tentative.setDependent(cr.tentative)
	}
}

// satisfy attempts to place every requirement in priority order. On
// failure every tentative entry is cleared and the per-arbiter shortfall
// totals are left for the expand and demote steps.
func (c *allocationContext) satisfy() bool {
	c.sortRequirements()

	for i := range c.arbiters {
		c.arbiters[i].amountNotAllocated = 0
	}

	complete := true
	for i := range c.requirements {
		cr := &c.requirements[i]
		if cr.tentative != nil {
			continue
		}
		if st := c.allocateRequirement(cr); st != resource.StatusOK {
			c.arbiters[cr.arbiterIndex].amountNotAllocated += cr.requirement.Length
			complete = false
		}
	}

	if !complete {
		c.clearTentatives()
	}
	return complete
}
