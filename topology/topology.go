// Package topology loads a device-tree description from YAML and
// instantiates it against an arbitration engine. It is intended for test
// fixtures and for platforms that describe their bus hierarchy in a static
// table rather than through enumeration.
package topology

import (
	"bytes"
	"math"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/hwres/arbiter/arbiter"
	"github.com/hwres/arbiter/resource"
)

// Document is the root of a topology description. Devices are instantiated
// in document order, so a parent must be declared before its children.
type Document struct {
	Devices []DeviceSpec `yaml:"devices"`
}

type DeviceSpec struct {
	Name   string `yaml:"name"`
	Parent string `yaml:"parent"`

	Arbiters []ArbiterSpec `yaml:"arbiters"`

	// Configurations are ordered from most to least desired; each is one
	// requirement list.
	Configurations [][]RequirementSpec `yaml:"configurations"`

	// Boot lists firmware-programmed assignments, matched positionally
	// against the first configuration.
	Boot []BootSpec `yaml:"boot"`
}

type ArbiterSpec struct {
	Type    string       `yaml:"type"`
	Windows []WindowSpec `yaml:"windows"`
}

type WindowSpec struct {
	Base            uint64 `yaml:"base"`
	Length          uint64 `yaml:"length"`
	Characteristics uint32 `yaml:"characteristics"`
	// Translation is added to a bus-local base to produce the
	// processor-local address.
	Translation int64 `yaml:"translation"`
}

type RequirementSpec struct {
	// Name lets other requirements of the same device reference this one
	// as their owner. Optional.
	Name string `yaml:"name"`

	Type            string `yaml:"type"`
	Min             uint64 `yaml:"min"`
	Max             uint64 `yaml:"max"`
	Length          uint64 `yaml:"length"`
	Alignment       uint64 `yaml:"alignment"`
	Characteristics uint32 `yaml:"characteristics"`
	NotShareable    bool   `yaml:"not_shareable"`

	// Owner names the sibling requirement whose placement forces this
	// one's range.
	Owner string `yaml:"owner"`
	// Provider names the device whose subtree the arbiter walk starts
	// from, overriding the parent chain.
	Provider string `yaml:"provider"`

	Alternatives []RequirementSpec `yaml:"alternatives"`
}

type BootSpec struct {
	Type            string `yaml:"type"`
	Base            uint64 `yaml:"base"`
	Length          uint64 `yaml:"length"`
	Characteristics uint32 `yaml:"characteristics"`
}

// Load parses a topology document. Unknown fields are rejected.
func Load(data []byte) (*Document, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var doc Document
	if err := decoder.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse the topology document")
	}
	return &doc, nil
}

// Build instantiates the document's device tree against the engine:
// devices are created in order, arbiters are created and seeded with their
// windows, and requirement forests and boot resources are installed.
// Resolution is left to the caller. The returned map is keyed by device
// name.
func (d *Document) Build(engine *arbiter.Engine) (map[string]*arbiter.Device, error) {
	devices := make(map[string]*arbiter.Device, len(d.Devices))

	for i := range d.Devices {
		spec := &d.Devices[i]
		if spec.Name == "" {
			return nil, errors.Newf("the device at index %d has no name", i)
		}
		if _, ok := devices[spec.Name]; ok {
			return nil, errors.Newf("duplicate device name %q", spec.Name)
		}

		var parent *arbiter.Device
		if spec.Parent != "" {
			parent = devices[spec.Parent]
			if parent == nil {
				return nil, errors.Newf(
					"device %q names parent %q, which is not declared above it", spec.Name, spec.Parent)
			}
		}

		dev := arbiter.NewDevice(spec.Name, parent)
		devices[spec.Name] = dev

		for _, arbSpec := range spec.Arbiters {
			resourceType, ok := resource.ParseType(arbSpec.Type)
			if !ok {
				return nil, errors.Newf(
					"device %q declares an arbiter of unknown type %q", spec.Name, arbSpec.Type)
			}
			if st, err := engine.CreateArbiter(dev, resourceType); st != resource.StatusOK {
				return nil, errors.Wrapf(err, "failed to create the %s arbiter of device %q", arbSpec.Type, spec.Name)
			}
			for _, window := range arbSpec.Windows {
				st, err := engine.AddFreeSpace(
					dev, resourceType,
					window.Base, window.Length,
					window.Characteristics, nil, window.Translation)
				if st != resource.StatusOK {
					return nil, errors.Wrapf(err,
						"failed to seed the %s arbiter of device %q", arbSpec.Type, spec.Name)
				}
			}
		}

		configurations, err := buildConfigurations(spec, devices)
		if err != nil {
			return nil, err
		}
		if len(configurations) > 0 {
			dev.SetConfigurations(configurations...)
		}

		boot, err := buildBoot(spec)
		if err != nil {
			return nil, err
		}
		if len(boot) > 0 {
			dev.SetBootResources(boot...)
		}
	}

	return devices, nil
}

func buildConfigurations(spec *DeviceSpec, devices map[string]*arbiter.Device) ([]arbiter.RequirementList, error) {
	configurations := make([]arbiter.RequirementList, 0, len(spec.Configurations))

	for ci, cfgSpec := range spec.Configurations {
		named := map[string]*arbiter.Requirement{}

		cfg := make(arbiter.RequirementList, 0, len(cfgSpec))
		for ri := range cfgSpec {
			req, err := buildRequirement(spec, ci, &cfgSpec[ri], devices)
			if err != nil {
				return nil, err
			}
			if name := cfgSpec[ri].Name; name != "" {
				if _, ok := named[name]; ok {
					return nil, errors.Newf(
						"configuration %d of device %q names %q twice", ci, spec.Name, name)
				}
				named[name] = req
			}
			cfg = append(cfg, req)
		}

		// Owner references resolve within one configuration.
		for ri := range cfgSpec {
			owner := cfgSpec[ri].Owner
			if owner == "" {
				continue
			}
			owning, ok := named[owner]
			if !ok {
				return nil, errors.Newf(
					"configuration %d of device %q references unknown owner %q", ci, spec.Name, owner)
			}
			if owning == cfg[ri] {
				return nil, errors.Newf(
					"requirement %q of device %q names itself as owner", owner, spec.Name)
			}
			cfg[ri].Owning = owning
		}

		configurations = append(configurations, cfg)
	}

	return configurations, nil
}

func buildRequirement(spec *DeviceSpec, ci int, reqSpec *RequirementSpec, devices map[string]*arbiter.Device) (*arbiter.Requirement, error) {
	resourceType, ok := resource.ParseType(reqSpec.Type)
	if !ok {
		return nil, errors.Newf(
			"configuration %d of device %q has a requirement of unknown type %q", ci, spec.Name, reqSpec.Type)
	}

	max := reqSpec.Max
	if max == 0 {
		max = math.MaxUint64
	}

	var flags resource.Flags
	if reqSpec.NotShareable {
		flags |= resource.FlagNotShareable
	}

	var provider *arbiter.Device
	if reqSpec.Provider != "" {
		provider = devices[reqSpec.Provider]
		if provider == nil {
			return nil, errors.Newf(
				"configuration %d of device %q references unknown provider %q", ci, spec.Name, reqSpec.Provider)
		}
	}

	req := &arbiter.Requirement{
		Type:            resourceType,
		Min:             reqSpec.Min,
		Max:             max,
		Length:          reqSpec.Length,
		Alignment:       reqSpec.Alignment,
		Characteristics: reqSpec.Characteristics,
		Flags:           flags,
		Provider:        provider,
	}

	for ai := range reqSpec.Alternatives {
		altSpec := &reqSpec.Alternatives[ai]
		if altSpec.Owner != "" || len(altSpec.Alternatives) > 0 {
			return nil, errors.Newf(
				"configuration %d of device %q has an alternative with nested alternatives or an owner", ci, spec.Name)
		}
		if altSpec.Type == "" {
			altSpec.Type = reqSpec.Type
		}
		alt, err := buildRequirement(spec, ci, altSpec, devices)
		if err != nil {
			return nil, err
		}
		req.Alternatives = append(req.Alternatives, alt)
	}

	return req, nil
}

func buildBoot(spec *DeviceSpec) ([]*arbiter.Allocation, error) {
	boot := make([]*arbiter.Allocation, 0, len(spec.Boot))
	for bi, bootSpec := range spec.Boot {
		resourceType, ok := resource.ParseType(bootSpec.Type)
		if !ok {
			return nil, errors.Newf(
				"boot resource %d of device %q has unknown type %q", bi, spec.Name, bootSpec.Type)
		}
		boot = append(boot, &arbiter.Allocation{
			Type:            resourceType,
			Base:            bootSpec.Base,
			Length:          bootSpec.Length,
			Characteristics: bootSpec.Characteristics,
			Flags:           resource.FlagBoot,
		})
	}
	return boot, nil
}
