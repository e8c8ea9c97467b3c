package arbiter

import (
	"golang.org/x/exp/slices"

	"github.com/hwres/arbiter/resource"
)

// allocationContext is the scratchpad for one resolution call: the devices
// in play, their requirements with tentative placements, and the arbiters
// those requirements landed on. Tentative entries are owned by the context
// until they are either committed by finalize or cleared; no failure path
// may leave them behind.
type allocationContext struct {
	engine *Engine

	devices      []contextDevice
	requirements []contextRequirement
	arbiters     []contextArbiter
}

type contextDevice struct {
	device        *Device
	configuration int
	// entryConfiguration is the configuration the device held when it
	// joined the context; displaced devices are restored to it when the
	// resolution fails outright.
	entryConfiguration int
	// dropped marks a device removed from contention by the demote step.
	dropped bool
}

type contextRequirement struct {
	// requirement is always the root requirement; a satisfied alternative
	// still records the root here.
	requirement  *Requirement
	deviceIndex  int
	arbiterIndex int
	// tentative is non-nil iff the requirement holds a Reserved entry
	// placed on behalf of this context.
	tentative *Entry
}

type contextArbiter struct {
	arbiter *Arbiter
	// amountNotAllocated accumulates the lengths that could not be placed
	// on this arbiter during the last satisfy pass.
	amountNotAllocated uint64
}

func newAllocationContext(engine *Engine) *allocationContext {
	return &allocationContext{engine: engine}
}

// resize grows the context arrays to the requested capacities with fresh,
// zero-filled arrays; existing contents are copied, never grown in place.
func (c *allocationContext) resize(deviceCount, requirementCount int) {
	if deviceCount > cap(c.devices) {
		devices := make([]contextDevice, deviceCount)
		copy(devices, c.devices)
		c.devices = devices[:len(c.devices)]
	}
	if requirementCount > cap(c.requirements) {
		requirements := make([]contextRequirement, requirementCount)
		copy(requirements, c.requirements)
		c.requirements = requirements[:len(c.requirements)]
	}
}

func (c *allocationContext) deviceIndex(dev *Device) int {
	for i := range c.devices {
		if c.devices[i].device == dev {
			return i
		}
	}
	return -1
}

func (c *allocationContext) addDevice(dev *Device, configuration int) int {
	if i := c.deviceIndex(dev); i >= 0 {
		return i
	}
	c.resize(len(c.devices)+1, cap(c.requirements))
	c.devices = append(c.devices, contextDevice{
		device:             dev,
		configuration:      configuration,
		entryConfiguration: configuration,
	})
	return len(c.devices) - 1
}

func (c *allocationContext) arbiterIndex(arb *Arbiter) int {
	for i := range c.arbiters {
		if c.arbiters[i].arbiter == arb {
			return i
		}
	}
	c.arbiters = append(c.arbiters, contextArbiter{arbiter: arb})
	return len(c.arbiters) - 1
}

// addRequirement registers a root requirement for the device at
// deviceIndex, locating its governing arbiter through the registry walk.
func (c *allocationContext) addRequirement(req *Requirement, deviceIndex int) resource.Status {
	dev := c.devices[deviceIndex].device
	arb := dev.findArbiter(req)
	if arb == nil {
		return resource.StatusInvalidParameter
	}
	c.resize(cap(c.devices), len(c.requirements)+1)
	c.requirements = append(c.requirements, contextRequirement{
		requirement:  req,
		deviceIndex:  deviceIndex,
		arbiterIndex: c.arbiterIndex(arb),
	})
	return resource.StatusOK
}

// addConfiguration registers every requirement of the device's current
// configuration.
func (c *allocationContext) addConfiguration(deviceIndex int) resource.Status {
	cd := &c.devices[deviceIndex]
	cfg := cd.device.configurations[cd.configuration]
	for _, req := range cfg {
		if st := c.addRequirement(req, deviceIndex); st != resource.StatusOK {
			return st
		}
	}
	return resource.StatusOK
}

// removeDeviceRequirements drops every requirement belonging to the device
// at deviceIndex. Their tentative entries must already be cleared.
func (c *allocationContext) removeDeviceRequirements(deviceIndex int) {
	kept := c.requirements[:0]
	for i := range c.requirements {
		cr := &c.requirements[i]
		if cr.deviceIndex == deviceIndex {
			if cr.tentative != nil {
				c.releaseTentative(cr)
			}
			continue
		}
		kept = append(kept, *cr)
	}
	c.requirements = kept
}

func (c *allocationContext) findRequirement(req *Requirement) *contextRequirement {
	for i := range c.requirements {
		if c.requirements[i].requirement == req {
			return &c.requirements[i]
		}
	}
	return nil
}

// ownsEntry reports whether the entry is a tentative placement of this
// context.
func (c *allocationContext) ownsEntry(e *Entry) bool {
	for i := range c.requirements {
		if c.requirements[i].tentative == e {
			return true
		}
	}
	return false
}

func (c *allocationContext) releaseTentative(cr *contextRequirement) {
	e := cr.tentative
	cr.tentative = nil

	// Dependent links held by other entries are handles; once e leaves
	// its registry they resolve to nothing.
	e.arbiter.entries.release(e)
}

// clearTentatives releases every Reserved entry the context placed,
// restoring the arbiters to their pre-call state.
func (c *allocationContext) clearTentatives() {
	for i := range c.requirements {
		if c.requirements[i].tentative != nil {
			c.releaseTentative(&c.requirements[i])
		}
	}
}

// activeDeviceCount counts devices still in contention.
func (c *allocationContext) activeDeviceCount() int {
	count := 0
	for i := range c.devices {
		if !c.devices[i].dropped {
			count++
		}
	}
	return count
}

// sortRequirements orders requirements by ascending resource type, then by
// ascending number of possible positions: tighter requirements are placed
// first.
func (c *allocationContext) sortRequirements() {
	slices.SortStableFunc(c.requirements, func(a, b contextRequirement) bool {
		if a.requirement.Type != b.requirement.Type {
			return a.requirement.Type < b.requirement.Type
		}
		return a.requirement.positionCount() < b.requirement.positionCount()
	})
}
