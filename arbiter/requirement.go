package arbiter

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/hwres/arbiter/resource"
)

// Requirement is one leaf of a device's resource request: a window the
// granted range must lie within, the length and alignment of the range,
// and the characteristics the granting region must carry as a superset.
type Requirement struct {
	Type resource.Type
	// Min and Max bound the granted range: base >= Min and
	// base+Length <= Max.
	Min uint64
	Max uint64
	// Length is the required length. Zero-length requirements are legal
	// and become point claims at Min.
	Length uint64
	// Alignment constrains the granted base; 0 is treated as 1.
	Alignment       uint64
	Characteristics uint32
	Flags           resource.Flags

	// Owning, when set, names another requirement of the same device whose
	// placement forces this one through its dependent entry.
	Owning *Requirement
	// Provider overrides the default ancestor walk: the arbiter search
	// starts at this device instead of the requesting device's parent.
	Provider *Device
	// Alternatives are same-type fallbacks tried in order when the primary
	// cannot be placed.
	Alternatives []*Requirement

	// Data is an opaque driver payload copied verbatim onto the eventual
	// allocation.
	Data []byte
}

// positionCount is the number of distinct bases the requirement could be
// granted at. Fewer positions means a tighter constraint and a higher
// arbitration priority.
func (r *Requirement) positionCount() uint64 {
	alignment := r.Alignment
	if alignment == 0 {
		alignment = 1
	}
	if r.Max < r.Min+r.Length {
		return 0
	}
	return (r.Max - r.Min - r.Length) / alignment
}

func (r *Requirement) printParameters(json *jwriter.ObjectState) {
	json.Name("Type").String(r.Type.String())
	json.Name("Min").Int(int(r.Min))
	json.Name("Max").Int(int(r.Max))
	json.Name("Length").Int(int(r.Length))
	json.Name("Alignment").Int(int(r.Alignment))
	json.Name("Characteristics").Int(int(r.Characteristics))
	json.Name("Flags").String(r.Flags.String())
	if r.Provider != nil {
		json.Name("Provider").String(r.Provider.Name())
	}
	if len(r.Alternatives) > 0 {
		json.Name("Alternatives").Int(len(r.Alternatives))
	}
}

// RequirementList is one configuration for one device, in the order the
// device wants its allocation list to end up in.
type RequirementList []*Requirement

func (l RequirementList) printParameters(json *jwriter.ArrayState) {
	for _, req := range l {
		obj := json.Object()
		req.printParameters(&obj)
		obj.End()
	}
}
