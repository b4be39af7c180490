package fusion

import "fmt"

// ErrNotFusable explains why a candidate pair or group could not be fused.
// The engine always returns a reason string rather than silently refusing,
// so a caller can log a human-readable rejection.
type ErrNotFusable struct {
	Reason string
}

func (e *ErrNotFusable) Error() string {
	return fmt.Sprintf("fusion: not fusable: %s", e.Reason)
}

// ErrUnknownSlot is returned when the named input slot does not exist on
// the successor operation.
type ErrUnknownSlot struct {
	Slot string
}

func (e *ErrUnknownSlot) Error() string {
	return fmt.Sprintf("fusion: successor has no input slot %q", e.Slot)
}
