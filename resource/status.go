package resource

// Status is the verdict of an arbitration entry point. StatusNotReady is
// success-shaped: the device was deferred and must be retried after the
// boot-hint pass completes. Every other non-OK status is final for the
// resolution that produced it.
type Status uint32

const (
	StatusOK Status = iota
	// StatusInvalidParameter reports an out-of-domain resource type or a
	// device with no governing arbiter.
	StatusInvalidParameter
	// StatusAlreadyInitialized reports a second arbiter of the same type on
	// one device.
	StatusAlreadyInitialized
	// StatusInsufficientResources reports a failed internal allocation.
	StatusInsufficientResources
	// StatusResourceInUse reports a single requirement that could not be
	// placed anywhere in its arbiter.
	StatusResourceInUse
	// StatusRangeConflict reports a boot allocation colliding with a
	// non-sibling, non-boot entry.
	StatusRangeConflict
	// StatusNotReady reports that the device was moved to the delayed list
	// and should be re-queued later.
	StatusNotReady
	// StatusNotImplemented reports that an arbiter's window cannot grow.
	StatusNotImplemented
	// StatusUnsuccessful reports that no configuration produced a complete
	// assignment.
	StatusUnsuccessful
)

var statusMapping = map[Status]string{
	StatusOK:                    "OK",
	StatusInvalidParameter:      "InvalidParameter",
	StatusAlreadyInitialized:    "AlreadyInitialized",
	StatusInsufficientResources: "InsufficientResources",
	StatusResourceInUse:         "ResourceInUse",
	StatusRangeConflict:         "RangeConflict",
	StatusNotReady:              "NotReady",
	StatusNotImplemented:        "NotImplemented",
	StatusUnsuccessful:          "Unsuccessful",
}

func (s Status) String() string {
	return statusMapping[s]
}
