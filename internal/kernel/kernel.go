// Package kernel registers and binds user kernels: the pure functions a
// blockwise operation applies to each group of input chunks.
package kernel

import (
	"context"
	"fmt"
)

// Kind tags how a kernel's return value must be interpreted, so a caller
// never has to introspect the returned value at runtime to tell a
// generator kernel from a value kernel.
type Kind int

const (
	// Single kernels return exactly one result (or multiple outputs as a
	// slice of length equal to the number of targets, decided by the
	// caller's output count, not by Kind).
	Single Kind = iota
	// MultiYield kernels are generator-style: their result, once invoked,
	// is itself iterated as a sequence of outputs.
	MultiYield
)

// Func is a pure user kernel: it receives one resolved block per array
// argument (already converted to the kernel's native representation) plus
// bound keyword arguments, and returns a block, a slice of blocks, a
// map[string]any of named fields, or — for MultiYield kernels — a Sequence
// of any of those.
type Func func(ctx context.Context, blocks []any, kwargs map[string]any) (any, error)

// Sequence is a pull-based iterator of per-output results, used by
// MultiYield kernels so a caller never has to materialize every yielded
// output at once.
type Sequence interface {
	Next() (any, bool)
}

// SliceSequence adapts a concrete slice to Sequence.
type SliceSequence struct {
	items []any
	pos   int
}

// NewSliceSequence wraps items as a Sequence.
func NewSliceSequence(items []any) *SliceSequence { return &SliceSequence{items: items} }

// Next implements Sequence.
func (s *SliceSequence) Next() (any, bool) {
	if s.pos >= len(s.items) {
		return nil, false
	}
	v := s.items[s.pos]
	s.pos++
	return v, true
}

// Bound pairs a kernel reference with keyword arguments captured once at
// construction time. A Bound value ships as a kernel identifier plus
// kwargs across process/worker boundaries — never as a raw Go closure,
// which cannot be serialized.
type Bound struct {
	Name   string
	Kind   Kind
	Nargs  int
	fn     Func
	Kwargs map[string]any
}

// Bind looks up a registered kernel by name and captures kwargs once. The
// runtime must reuse the returned Bound across every task for a given
// primitive operation rather than rebinding kwargs per task.
func Bind(name string, kwargs map[string]any) (Bound, error) {
	reg, ok := Get(name)
	if !ok {
		return Bound{}, fmt.Errorf("kernel: unknown kernel %q", name)
	}
	k := make(map[string]any, len(kwargs))
	for key, v := range kwargs {
		k[key] = v
	}
	return Bound{Name: name, Kind: reg.Kind, Nargs: reg.Nargs, fn: reg.Fn, Kwargs: k}, nil
}

// Invoke calls the bound kernel with the given resolved blocks.
func (b Bound) Invoke(ctx context.Context, blocks []any) (any, error) {
	if b.fn == nil {
		return nil, fmt.Errorf("kernel: %q is not bound", b.Name)
	}
	return b.fn(ctx, blocks, b.Kwargs)
}
