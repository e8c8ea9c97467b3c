package arbiter

import (
	"github.com/hwres/arbiter/resource"
)

// tryBootAllocations attempts to seat every requirement of the first
// configuration exactly where firmware already programmed it. Requirements
// are matched to boot allocations by ordinal position. Returns OK only if
// every requirement was seated.
func (c *allocationContext) tryBootAllocations() resource.Status {
	for i := range c.requirements {
		cr := &c.requirements[i]
		req := cr.requirement

		if req.Length == 0 {
			// Trivially satisfied: a point claim needs nothing from the
			// firmware.
			if st := c.allocateSpace(cr, req); st != resource.StatusOK {
				return st
			}
			continue
		}

		boot := c.devices[cr.deviceIndex].device.bootAllocationFor(i, req)
		if boot == nil || boot.Length < req.Length {
			return resource.StatusUnsuccessful
		}
		if st := c.reserveBootRange(cr, boot); st != resource.StatusOK {
			return st
		}
	}
	return resource.StatusOK
}

// reserveBootRange reserves the exact firmware-programmed range. If the
// arbiter has no entry there at all, the region is first added as free
// space: firmware already drove the hardware there, so the space is taken
// to exist. A conflicting non-Free entry is tolerated only when it is this
// device's own boot entry covering the identical range.
func (c *allocationContext) reserveBootRange(cr *contextRequirement, boot *Allocation) resource.Status {
	req := cr.requirement
	dev := c.devices[cr.deviceIndex].device
	arb := c.arbiters[cr.arbiterIndex].arbiter
	end := boot.Base + boot.Length

	if !arb.entries.coversRange(boot.Base, end) {
		arb.AddFreeSpace(boot.Base, boot.Length, req.Characteristics, nil, 0)
	}

	var sibling *Entry
	for e := arb.entries.head; e != nil && e.base < end; e = e.next {
		if e.state == EntryFree || e.length == 0 || e.end() <= boot.Base {
			continue
		}
		if e.device == dev && e.flags&resource.FlagBoot != 0 {
			if sibling == nil {
				sibling = e
			}
			continue
		}
		return resource.StatusRangeConflict
	}

	flags := req.Flags | resource.FlagBoot

	if sibling != nil {
		if sibling.base != boot.Base || sibling.length != boot.Length {
			return resource.StatusRangeConflict
		}
		cr.tentative = arb.entries.insert(EntryReserved, dev, boot.Base, boot.Length, req.Characteristics, flags, req, sibling)
		resource.DebugValidate(arb)
		return resource.StatusOK
	}

	cover := arb.entries.findCovering(boot.Base, false)
	if cover == nil || cover.state != EntryFree || cover.end() < end {
		return resource.StatusRangeConflict
	}
	cr.tentative = arb.entries.insert(EntryReserved, dev, boot.Base, boot.Length, req.Characteristics, flags, req, cover)
	resource.DebugValidate(arb)
	return resource.StatusOK
}

// ripUp releases every Reserved entry on the arbiters the context touched,
// including entries placed by earlier resolution passes for devices that
// have not been finalized, and adds their requirements to the context so
// the whole set can be re-seated together. Entries with no recorded
// requirement cannot be re-seated and are left alone.
func (c *allocationContext) ripUp() {
	for ai := 0; ai < len(c.arbiters); ai++ {
		arb := c.arbiters[ai].arbiter

		var victims []*Entry
		for e := arb.entries.head; e != nil; e = e.next {
			if e.state != EntryReserved || e.requirement == nil {
				continue
			}
			if c.ownsEntry(e) {
				continue
			}
			victims = append(victims, e)
		}

		for _, e := range victims {
			if c.findRequirement(e.requirement) == nil {
				deviceIndex := c.addDevice(e.device, configurationContaining(e.device, e.requirement))
				c.addRequirement(e.requirement, deviceIndex)
			}
			arb.entries.release(e)
		}
	}
}

// configurationContaining finds the configuration index holding req in the
// device's forest.
func configurationContaining(dev *Device, req *Requirement) int {
	for ci, cfg := range dev.configurations {
		for _, r := range cfg {
			if r == req {
				return ci
			}
		}
	}
	return 0
}

// expand asks the engine's expander to enlarge every arbiter that came up
// short and holds nothing but free space. The request is made regardless
// of whether the expander can honor it.
func (c *allocationContext) expand() {
	for i := range c.arbiters {
		ca := &c.arbiters[i]
		if ca.amountNotAllocated == 0 || !ca.arbiter.allFree() {
			continue
		}
		want := ca.arbiter.freeTotal() + 2*ca.amountNotAllocated
		c.engine.expandSpace(ca.arbiter, want)
	}
}

// demote repeatedly re-satisfies the context, each time moving the device
// behind the tightest arbiter's largest requirement to its next
// configuration, or, when every device is on its last configuration,
// dropping the largest holdout from contention. The iteration count is
// capped so a pathological forest cannot loop forever.
func (c *allocationContext) demote() resource.Status {
	maxIterations := c.activeDeviceCount()
	for i := range c.devices {
		if !c.devices[i].dropped {
			maxIterations += len(c.devices[i].device.configurations)
		}
	}

	for iteration := 0; iteration < maxIterations; iteration++ {
		if c.activeDeviceCount() == 0 {
			return resource.StatusUnsuccessful
		}
		if c.satisfy() {
			return resource.StatusOK
		}

		tightest := -1
		for i := range c.arbiters {
			if c.arbiters[i].amountNotAllocated == 0 {
				continue
			}
			if tightest < 0 || c.arbiters[i].amountNotAllocated > c.arbiters[tightest].amountNotAllocated {
				tightest = i
			}
		}
		if tightest < 0 {
			return resource.StatusUnsuccessful
		}

		// Largest requirement on the tightest arbiter whose device can
		// still fall back to another configuration.
		demotable := -1
		largest := -1
		for i := range c.requirements {
			cr := &c.requirements[i]
			if cr.arbiterIndex != tightest {
				continue
			}
			if largest < 0 || cr.requirement.Length > c.requirements[largest].requirement.Length {
				largest = i
			}
			cd := &c.devices[cr.deviceIndex]
			if cd.configuration >= len(cd.device.configurations)-1 {
				continue
			}
			if demotable < 0 || cr.requirement.Length > c.requirements[demotable].requirement.Length {
				demotable = i
			}
		}

		switch {
		case demotable >= 0:
			deviceIndex := c.requirements[demotable].deviceIndex
			c.removeDeviceRequirements(deviceIndex)
			c.devices[deviceIndex].configuration++
			if st := c.addConfiguration(deviceIndex); st != resource.StatusOK {
				return st
			}
		case largest >= 0:
			// Last resort: drop the largest holdout from contention.
			deviceIndex := c.requirements[largest].deviceIndex
			c.removeDeviceRequirements(deviceIndex)
			c.devices[deviceIndex].dropped = true
		default:
			return resource.StatusUnsuccessful
		}
	}

	return resource.StatusUnsuccessful
}

// restoreDisplaced is the terminal-failure path: the resolution for target
// has failed, but rip-up may have released reservations belonging to other
// unfinalized devices. Those devices are put back on the configuration
// they entered the context with and re-seated, leaving their entries
// Reserved as before the call; the bases may differ. Target's own
// tentatives are released.
func (c *allocationContext) restoreDisplaced(target *Device) {
	for i := range c.devices {
		cd := &c.devices[i]
		if cd.device == target {
			c.removeDeviceRequirements(i)
			cd.dropped = true
			continue
		}
		if cd.dropped || cd.configuration != cd.entryConfiguration {
			c.removeDeviceRequirements(i)
			cd.configuration = cd.entryConfiguration
			cd.dropped = false
			c.addConfiguration(i)
		}
	}

	c.sortRequirements()
	for i := range c.requirements {
		cr := &c.requirements[i]
		if cr.tentative == nil {
			c.allocateRequirement(cr)
		}
	}
}

// finalize commits the context: locks in each device's selected
// configuration, orders its allocation list to mirror the selected
// requirement list, promotes Reserved entries to Allocated, wires owning
// links between same-device allocations, and builds the processor-local
// view by applying each entry's translation offset.
func (c *allocationContext) finalize() {
	for di := range c.devices {
		cd := &c.devices[di]
		if cd.dropped {
			continue
		}
		dev := cd.device
		dev.selectedConfiguration = cd.configuration

		var ordered []*Entry
		for _, req := range dev.configurations[cd.configuration] {
			for i := range c.requirements {
				cr := &c.requirements[i]
				if cr.deviceIndex == di && cr.requirement == req && cr.tentative != nil {
					ordered = append(ordered, cr.tentative)
				}
			}
		}
		dev.allocations = ordered

		// Promoting an already-Allocated entry is a no-op.
		for _, e := range ordered {
			e.state = EntryAllocated
		}

		c.buildLocalResources(dev)
	}

	for i := range c.arbiters {
		resource.DebugValidate(c.arbiters[i].arbiter)
	}
}

// buildLocalResources translates the device's bus-local allocations into
// the processor-local space and mirrors owning relationships onto the
// allocation copies.
func (c *allocationContext) buildLocalResources(dev *Device) {
	local := make([]Allocation, len(dev.allocations))
	for i, e := range dev.allocations {
		local[i] = Allocation{
			Type:            e.arbiter.resourceType,
			Base:            uint64(int64(e.base) + e.translationOffset),
			Length:          e.length,
			Characteristics: e.characteristics,
			Flags:           e.flags,
			Provider:        e.arbiter.owner,
		}
		if e.requirement != nil {
			local[i].Data = e.requirement.Data
		}
	}

	// A dependent held by another device stays unlinked: the owning
	// back-pointer is only meaningful within one device's list.
	for i, e := range dev.allocations {
		dep := e.Dependent()
		if dep == nil {
			continue
		}
		for j, other := range dev.allocations {
			if other == dep {
				local[j].Owning = &local[i]
				break
			}
		}
	}

	dev.localResources = local
}
