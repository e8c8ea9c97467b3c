package arbiter

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/hwres/arbiter/resource"
)

// Device is one node of the device tree. A device can both request
// resources (through its requirement forest) and provide them to its
// descendants (through its arbiters).
type Device struct {
	name   string
	parent *Device
	flags  resource.DeviceFlags

	arbiters []*Arbiter

	// configurations is the requirement forest: the first configuration is
	// the most desired, later ones are progressively worse fallbacks.
	configurations        []RequirementList
	selectedConfiguration int

	// bootAllocations are firmware-programmed assignments, matched
	// positionally against the first configuration.
	bootAllocations []*Allocation

	// allocations are the arbiter entries this device currently holds,
	// ordered to mirror the selected requirement list after finalize.
	allocations []*Entry

	// localResources is the processor-local allocation view built at
	// finalize by applying each entry's translation offset.
	localResources []Allocation
}

// NewDevice creates a device under parent; a nil parent makes a tree root.
func NewDevice(name string, parent *Device) *Device {
	return &Device{
		name:                  name,
		parent:                parent,
		selectedConfiguration: -1,
	}
}

func (d *Device) Name() string { return d.name }

func (d *Device) Parent() *Device { return d.parent }

func (d *Device) Flags() resource.DeviceFlags { return d.flags }

// SetConfigurations installs the requirement forest. The forest is
// read-only during arbitration.
func (d *Device) SetConfigurations(configurations ...RequirementList) {
	d.configurations = configurations
	d.selectedConfiguration = -1
}

// Configurations returns the requirement forest.
func (d *Device) Configurations() []RequirementList {
	return d.configurations
}

// SelectedConfiguration returns the index of the configuration locked in
// by the last successful resolution, or -1.
func (d *Device) SelectedConfiguration() int {
	return d.selectedConfiguration
}

// SetBootResources installs the firmware-handoff allocations.
func (d *Device) SetBootResources(allocations ...*Allocation) {
	d.bootAllocations = allocations
}

// Allocations returns the arbiter entries the device currently holds.
func (d *Device) Allocations() []*Entry {
	return d.allocations
}

// Arbiter returns this device's own arbiter for the type, or nil.
func (d *Device) Arbiter(resourceType resource.Type) *Arbiter {
	for _, a := range d.arbiters {
		if a.resourceType == resourceType {
			return a
		}
	}
	return nil
}

// Arbiters returns the device's arbiter list.
func (d *Device) Arbiters() []*Arbiter {
	return d.arbiters
}

// hasAncestor reports whether ancestor appears on d's parent chain,
// including d itself.
func (d *Device) hasAncestor(ancestor *Device) bool {
	for cur := d; cur != nil; cur = cur.parent {
		if cur == ancestor {
			return true
		}
	}
	return false
}

// findArbiter locates the arbiter governing req for this device: the
// nearest ancestor holding an arbiter of the requirement's type, starting
// from the parent, or from the requirement's provider override when set
// (the override device itself is included in the walk).
func (d *Device) findArbiter(req *Requirement) *Arbiter {
	start := d.parent
	if req.Provider != nil {
		start = req.Provider
	}
	for cur := start; cur != nil; cur = cur.parent {
		if a := cur.Arbiter(req.Type); a != nil {
			return a
		}
	}
	return nil
}

// bootAllocationFor maps a first-configuration requirement to its boot
// allocation by ordinal position. Returns nil when out of range or when
// the types disagree.
func (d *Device) bootAllocationFor(index int, req *Requirement) *Allocation {
	if index < 0 || index >= len(d.bootAllocations) {
		return nil
	}
	boot := d.bootAllocations[index]
	if boot.Type != req.Type {
		return nil
	}
	return boot
}

func (d *Device) unlinkAllocation(e *Entry) {
	for i, held := range d.allocations {
		if held == e {
			d.allocations = append(d.allocations[:i], d.allocations[i+1:]...)
			return
		}
	}
}

func (d *Device) printResources(json *jwriter.ObjectState) {
	json.Name("Device").String(d.name)

	configArray := json.Name("Configurations").Array()
	for _, cfg := range d.configurations {
		cfgArray := configArray.Array()
		cfg.printParameters(&cfgArray)
		cfgArray.End()
	}
	configArray.End()

	bootArray := json.Name("BootResources").Array()
	for _, boot := range d.bootAllocations {
		obj := bootArray.Object()
		boot.printParameters(&obj)
		obj.End()
	}
	bootArray.End()

	allocArray := json.Name("Allocations").Array()
	for _, e := range d.allocations {
		obj := allocArray.Object()
		obj.Name("Type").String(e.arbiter.resourceType.String())
		obj.Name("State").String(e.state.String())
		obj.Name("Base").Int(int(e.base))
		obj.Name("Length").Int(int(e.length))
		obj.Name("Flags").String(e.flags.String())
		obj.End()
	}
	allocArray.End()
}

// DumpString renders the device's requirement forest, boot resources and
// held allocations as a JSON document.
func (d *Device) DumpString() string {
	writer := jwriter.NewWriter()
	obj := writer.Object()
	d.printResources(&obj)
	obj.End()
	return string(writer.Bytes())
}
