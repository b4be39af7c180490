package blockwise

import "fmt"

// ErrMemoryBudgetExceeded is returned by NewPrimitive when the projected
// peak memory of a single task exceeds the allowed budget. It is
// construction-time, never raised mid-run.
type ErrMemoryBudgetExceeded struct {
	Projected int64
	Allowed   int64
	Reserved  int64
}

func (e *ErrMemoryBudgetExceeded) Error() string {
	return fmt.Sprintf("blockwise: projected memory %d exceeds allowed %d (reserved %d)", e.Projected, e.Allowed, e.Reserved)
}

// ErrNoOutputs is returned when a Config declares zero outputs.
type ErrNoOutputs struct{}

func (e *ErrNoOutputs) Error() string { return "blockwise: primitive operation must declare at least one output" }
