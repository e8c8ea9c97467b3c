package resource

// Type identifies the kind of physical resource an arbiter partitions.
// Types are integer-ordered: lower values are arbitrated first.
type Type uint32

const (
	// TypeInvalid is the zero Type and is rejected by every entry point.
	TypeInvalid Type = iota
	// TypePhysicalAddress is a window of physical memory addresses.
	TypePhysicalAddress
	// TypeIOPort is a window of legacy I/O port numbers.
	TypeIOPort
	// TypeInterruptLine is a range of interrupt line numbers.
	TypeInterruptLine
	// TypeInterruptVector is a range of interrupt vector numbers.
	TypeInterruptVector
	// TypeBusNumber is a range of bus numbers behind a bridge.
	TypeBusNumber
	// TypeDMAChannel is a range of DMA channel numbers.
	TypeDMAChannel
	// TypeVendorSpecific is an opaque vendor-defined resource space.
	TypeVendorSpecific
	// TypeGPIO is a range of GPIO pin numbers.
	TypeGPIO
	// TypeSimpleBus is a vendor resource space on a simple bus.
	TypeSimpleBus
)

var typeMapping = map[Type]string{
	TypeInvalid:         "Invalid",
	TypePhysicalAddress: "PhysicalAddress",
	TypeIOPort:          "IoPort",
	TypeInterruptLine:   "InterruptLine",
	TypeInterruptVector: "InterruptVector",
	TypeBusNumber:       "BusNumber",
	TypeDMAChannel:      "DmaChannel",
	TypeVendorSpecific:  "VendorSpecific",
	TypeGPIO:            "Gpio",
	TypeSimpleBus:       "SimpleBus",
}

func (t Type) String() string {
	return typeMapping[t]
}

// ParseType maps a type name, as produced by Type.String, back to its
// Type. The second return is false for unknown names and for "Invalid".
func ParseType(name string) (Type, bool) {
	for t, n := range typeMapping {
		if n == name && t != TypeInvalid {
			return t, true
		}
	}
	return TypeInvalid, false
}

// IsValid reports whether t names one of the arbitrated resource spaces.
// The documented set is clamped here; every path that range-checks a type
// goes through this method.
func (t Type) IsValid() bool {
	return t >= TypePhysicalAddress && t <= TypeSimpleBus
}

// Flags qualify a single requirement and are carried onto the arbiter
// entry that satisfies it.
type Flags uint32

const (
	// FlagNotShareable demands exclusive occupancy of the granted range.
	FlagNotShareable Flags = 1 << iota
	// FlagBoot marks a range that firmware had already programmed before
	// arbitration began.
	FlagBoot
)

var flagsMapping = map[Flags]string{
	FlagNotShareable: "NotShareable",
	FlagBoot:         "Boot",
}

func (f Flags) String() string {
	out := ""
	for bit := Flags(1); bit != 0 && bit <= f; bit <<= 1 {
		if f&bit == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		name, ok := flagsMapping[bit]
		if !ok {
			name = "Unknown"
		}
		out += name
	}
	if out == "" {
		return "None"
	}
	return out
}

// DeviceFlags carry per-device arbitration state.
type DeviceFlags uint32

const (
	// DeviceNotUsingBootResources is latched the first time a device's boot
	// hints cannot be honored; the device is deferred once so that devices
	// with usable boot hints are placed first.
	DeviceNotUsingBootResources DeviceFlags = 1 << iota
)

// DebugFlags select verbose output from the engine.
type DebugFlags uint32

const (
	// DebugPrintResources logs requirement and allocation lists before and
	// after each resolution.
	DebugPrintResources DebugFlags = 0x1
)
