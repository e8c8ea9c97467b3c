package arbiter

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/hwres/arbiter/resource"
)

// SpaceExpander enlarges an arbiter's window when a resolution comes up
// short. Implementations typically forward the request to the providing
// device's own allocator.
type SpaceExpander interface {
	// ExpandSpace is asked to grow the arbiter's free space to at least
	// amount. The resolution proceeds regardless of the outcome.
	ExpandSpace(arb *Arbiter, amount uint64) (resource.Status, error)
}

// Engine owns the process-wide arbitration state: the delayed-device list
// and the debug flags. It performs no internal locking; the surrounding
// subsystem serializes all mutation of the device tree.
type Engine struct {
	logger     *slog.Logger
	debugFlags resource.DebugFlags
	expander   SpaceExpander

	delayed []*Device
}

// NewEngine creates an arbitration engine. The logger must not be nil.
func NewEngine(logger *slog.Logger, debugFlags resource.DebugFlags) *Engine {
	if logger == nil {
		panic("attempted to create an arbitration engine without a logger")
	}
	return &Engine{
		logger:     logger,
		debugFlags: debugFlags,
	}
}

// SetExpander installs the window-growing seam. A nil expander reports
// StatusNotImplemented for every request.
func (e *Engine) SetExpander(expander SpaceExpander) {
	e.expander = expander
}

func (e *Engine) expandSpace(arb *Arbiter, amount uint64) (resource.Status, error) {
	if e.expander == nil {
		return resource.StatusNotImplemented, errors.Newf(
			"no expander is installed to grow the %s arbiter of device %q",
			arb.resourceType, arb.owner.name)
	}
	return e.expander.ExpandSpace(arb, amount)
}

// CreateArbiter allocates an arbiter of the given type on the device and
// appends it to the device's arbiter list.
func (e *Engine) CreateArbiter(dev *Device, resourceType resource.Type) (resource.Status, error) {
	if dev == nil {
		return resource.StatusInvalidParameter, errors.New("attempted to create an arbiter without a device")
	}
	if !resourceType.IsValid() {
		return resource.StatusInvalidParameter, errors.Newf("resource type %d is outside the arbitrated set", resourceType)
	}
	if dev.Arbiter(resourceType) != nil {
		return resource.StatusAlreadyInitialized, errors.Newf(
			"device %q already has a %s arbiter", dev.name, resourceType)
	}

	dev.arbiters = append(dev.arbiters, newArbiter(dev, resourceType))
	return resource.StatusOK, nil
}

// DestroyArbiter tears down the device's arbiter of the given type,
// including any outstanding allocations, severing them from their claiming
// devices' allocation lists.
func (e *Engine) DestroyArbiter(dev *Device, resourceType resource.Type) (resource.Status, error) {
	if dev == nil {
		return resource.StatusInvalidParameter, errors.New("attempted to destroy an arbiter without a device")
	}
	for i, arb := range dev.arbiters {
		if arb.resourceType != resourceType {
			continue
		}
		arb.entries.destroyAll()
		dev.arbiters = append(dev.arbiters[:i], dev.arbiters[i+1:]...)
		return resource.StatusOK, nil
	}
	return resource.StatusInvalidParameter, errors.Newf(
		"device %q has no %s arbiter", dev.name, resourceType)
}

// DestroyArbiterList tears down every arbiter on the device and releases
// every allocation the device still holds from other arbiters. Both the
// arbiter list and the held-allocation list are empty afterwards.
func (e *Engine) DestroyArbiterList(dev *Device) (resource.Status, error) {
	if dev == nil {
		return resource.StatusInvalidParameter, errors.New("attempted to destroy an arbiter list without a device")
	}

	for len(dev.allocations) > 0 {
		held := dev.allocations[0]
		dev.allocations = dev.allocations[1:]
		held.arbiter.entries.release(held)
	}

	for _, arb := range dev.arbiters {
		arb.entries.destroyAll()
	}
	dev.arbiters = nil
	return resource.StatusOK, nil
}

// AddFreeSpace adds [base, base+length) to the device's arbiter of the
// given type. A zero length is a no-op.
func (e *Engine) AddFreeSpace(
	dev *Device,
	resourceType resource.Type,
	base, length uint64,
	characteristics uint32,
	source *Allocation,
	translationOffset int64,
) (resource.Status, error) {
	if dev == nil {
		return resource.StatusInvalidParameter, errors.New("attempted to add free space without a device")
	}
	if length == 0 {
		return resource.StatusOK, nil
	}
	arb := dev.Arbiter(resourceType)
	if arb == nil {
		return resource.StatusInvalidParameter, errors.Newf(
			"device %q has no %s arbiter", dev.name, resourceType)
	}
	arb.AddFreeSpace(base, length, characteristics, source, translationOffset)
	return resource.StatusOK, nil
}

// ProcessorLocalResources returns the post-finalize allocation list of the
// device translated into the processor-local space.
func (e *Engine) ProcessorLocalResources(dev *Device) []Allocation {
	if dev == nil {
		return nil
	}
	return dev.localResources
}

// DelayedDevices returns the devices deferred by the boot-resource latch,
// in deferral order. The caller re-queues them once every boot-hint device
// has been placed.
func (e *Engine) DelayedDevices() []*Device {
	return e.delayed
}

// TakeDelayed returns the deferred devices and empties the list.
func (e *Engine) TakeDelayed() []*Device {
	delayed := e.delayed
	e.delayed = nil
	return delayed
}

// ProcessResourceRequirements runs the full resolve loop for one device:
// try the firmware's boot programming, otherwise satisfy the requirement
// forest, ripping up unfinalized reservations, requesting window growth
// and demoting to fallback configurations as needed. Every device whose
// boot programming cannot be honored, including devices with none, is
// deferred exactly once with StatusNotReady so that firmware-programmed
// devices are seated first; the caller re-queues deferred devices. Every
// other non-OK status is final: the device's own tentatives are released,
// reservations displaced by rip-up are re-seated (possibly at different
// bases), and free space added on behalf of boot allocations is retained.
func (e *Engine) ProcessResourceRequirements(dev *Device) (resource.Status, error) {
	if dev == nil {
		return resource.StatusInvalidParameter, errors.New("attempted to arbitrate without a device")
	}

	e.printResources(dev, "requirements")

	if len(dev.configurations) == 0 {
		dev.selectedConfiguration = -1
		return resource.StatusOK, nil
	}

	ctx := newAllocationContext(e)
	deviceIndex := ctx.addDevice(dev, 0)
	for _, req := range dev.configurations[0] {
		if st := ctx.addRequirement(req, deviceIndex); st != resource.StatusOK {
			return st, errors.Newf(
				"no arbiter governs a %s requirement of device %q", req.Type, dev.name)
		}
	}

	if st := ctx.tryBootAllocations(); st == resource.StatusOK {
		ctx.finalize()
		e.printResources(dev, "boot allocations honored")
		return resource.StatusOK, nil
	}
	ctx.clearTentatives()

	if dev.flags&resource.DeviceNotUsingBootResources == 0 {
		dev.flags |= resource.DeviceNotUsingBootResources
		e.delayed = append(e.delayed, dev)
		e.logFailure(dev, resource.StatusNotReady, true)
		return resource.StatusNotReady, nil
	}

	if ctx.satisfy() {
		ctx.finalize()
		e.printResources(dev, "allocations")
		return resource.StatusOK, nil
	}

	ctx.ripUp()
	if ctx.satisfy() {
		ctx.finalize()
		e.printResources(dev, "allocations after rip-up")
		return resource.StatusOK, nil
	}

	ctx.expand()

	if st := ctx.demote(); st == resource.StatusOK {
		if idx := ctx.deviceIndex(dev); idx >= 0 && ctx.devices[idx].dropped {
			// The device under resolution lost the demote fight. Devices
			// displaced by rip-up keep Reserved placements; this call fails.
			ctx.restoreDisplaced(dev)
			e.logFailure(dev, resource.StatusUnsuccessful, false)
			return resource.StatusUnsuccessful, errors.Newf(
				"device %q was removed from contention", dev.name)
		}
		ctx.finalize()
		e.printResources(dev, "allocations after demotion")
		return resource.StatusOK, nil
	}

	ctx.restoreDisplaced(dev)
	e.logFailure(dev, resource.StatusUnsuccessful, false)
	return resource.StatusUnsuccessful, errors.Newf(
		"no configuration of device %q produced a complete assignment", dev.name)
}

func (e *Engine) printResources(dev *Device, what string) {
	if e.debugFlags&resource.DebugPrintResources == 0 {
		return
	}
	e.logger.Debug("resource arbitration",
		slog.String("device", dev.name),
		slog.String("what", what),
		slog.String("resources", dev.DumpString()))
}

func (e *Engine) logFailure(dev *Device, st resource.Status, deferred bool) {
	if e.debugFlags&resource.DebugPrintResources == 0 {
		return
	}
	e.logger.Debug("resource arbitration failed",
		slog.String("device", dev.name),
		slog.String("status", st.String()),
		slog.Bool("deferred", deferred))
}

// AddDetailedStatistics sums the occupancy of every arbiter in the subtree
// rooted at dev into stats.
func (e *Engine) AddDetailedStatistics(dev *Device, children func(*Device) []*Device, stats *resource.DetailedStatistics) {
	for _, arb := range dev.arbiters {
		arb.AddDetailedStatistics(stats)
	}
	if children == nil {
		return
	}
	for _, child := range children(dev) {
		e.AddDetailedStatistics(child, children, stats)
	}
}
