package plan

import "github.com/cubedgo/cubed/internal/chunk"

// Arg is one entry of a BlockFunction's result: the chunk address
// structure for a single input argument of the kernel. It is the recursive
// tagged variant from the design notes: Leaf | Literal | Nest.
type Arg interface {
	isArg()
}

// Leaf names a single input chunk: the input's name and its block
// coordinates. Emitted for arguments with no contraction axes.
type Leaf struct {
	Name   string
	Coords chunk.Key
}

func (Leaf) isArg() {}

// Literal carries a non-array argument's value straight through.
type Literal struct {
	Value any
}

func (Literal) isArg() {}

// Nest is one level of contraction-axis fan-out: a sequence of Args, one
// nesting level per contraction axis an input participates in. The
// outermost Nest is fully materialized (Seq is backed by a concrete
// slice); nested Nests below it are pull-based so a full Cartesian
// enumeration is never required before the first leaf is read.
type Nest struct {
	Seq ArgSeq
}

func (Nest) isArg() {}

// ArgSeq is a single-pass, pull-based iterator over Args.
type ArgSeq interface {
	// Next returns the next Arg and true, or a zero Arg and false once
	// exhausted. Not safe for concurrent use.
	Next() (Arg, bool)
}

// ArgSeqFunc adapts a plain closure to ArgSeq.
type ArgSeqFunc func() (Arg, bool)

// Next implements ArgSeq.
func (f ArgSeqFunc) Next() (Arg, bool) { return f() }

// SliceArgSeq is a materialized ArgSeq over a concrete, already-computed
// slice of Args.
type SliceArgSeq struct {
	items []Arg
	pos   int
}

// NewSliceArgSeq wraps items as an ArgSeq.
func NewSliceArgSeq(items []Arg) *SliceArgSeq {
	return &SliceArgSeq{items: items}
}

// Next implements ArgSeq.
func (s *SliceArgSeq) Next() (Arg, bool) {
	if s.pos >= len(s.items) {
		return nil, false
	}
	a := s.items[s.pos]
	s.pos++
	return a, true
}

// Materialize drains an ArgSeq into a slice. It consumes the sequence;
// callers that need to iterate more than once should call Materialize and
// keep the returned slice, or rebuild the sequence from its source.
func Materialize(seq ArgSeq) []Arg {
	var out []Arg
	for {
		a, ok := seq.Next()
		if !ok {
			break
		}
		out = append(out, a)
	}
	return out
}

// Flatten recursively drains every Nest in args into a flat slice of
// Leaf/Literal entries, in depth-first, innermost-fastest order. This
// gives pointwise kernels a flat argument list rather than the nested
// contraction shape.
func Flatten(args []Arg) []Arg {
	var out []Arg
	var walk func(a Arg)
	walk = func(a Arg) {
		switch v := a.(type) {
		case Nest:
			for {
				item, ok := v.Seq.Next()
				if !ok {
					break
				}
				walk(item)
			}
		default:
			out = append(out, a)
		}
	}
	for _, a := range args {
		walk(a)
	}
	return out
}
