package arbiter

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/hwres/arbiter/resource"
)

// Allocation is the result counterpart of a Requirement: a concrete range
// granted from some arbiter. Boot allocations handed over by firmware use
// the same shape as an input.
type Allocation struct {
	Type            resource.Type
	Base            uint64
	Length          uint64
	Characteristics uint32
	Flags           resource.Flags

	// Data is the opaque payload copied from the satisfying requirement.
	Data []byte
	// Provider is the device whose arbiter granted the range.
	Provider *Device
	// Owning mirrors the requirement's owning relationship: the allocation
	// whose placement forced this one, when both live on the same device.
	Owning *Allocation
}

func (a *Allocation) printParameters(json *jwriter.ObjectState) {
	json.Name("Type").String(a.Type.String())
	json.Name("Base").Int(int(a.Base))
	json.Name("Length").Int(int(a.Length))
	json.Name("Characteristics").Int(int(a.Characteristics))
	json.Name("Flags").String(a.Flags.String())
	if a.Provider != nil {
		json.Name("Provider").String(a.Provider.Name())
	}
	if a.Owning != nil {
		json.Name("Owned").Bool(true)
	}
}
