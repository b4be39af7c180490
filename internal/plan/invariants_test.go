package plan

import (
	"testing"

	"github.com/cubedgo/cubed/internal/chunk"
)

// invariant 3: for a contraction axis of size m, the number of leaf tuples
// for an input carrying two contraction axes (sizes m and n) equals m*n.
func TestInvariantContractionLeafCount(t *testing.T) {
	p, err := NewPlanner(
		[]Label{"i"},
		[]InputSpec{
			{Name: "a", Labels: []Label{"i", "k", "l"}, NumBlocks: []int{2, 3, 4}},
		},
		nil,
	)
	if err != nil {
		t.Fatalf("NewPlanner: %v", err)
	}
	args, err := p.BlockFunction()(TaggedKey{Tag: "out", Coords: chunk.Key{0}})
	if err != nil {
		t.Fatalf("block function: %v", err)
	}
	outer, ok := args[0].(Nest)
	if !ok {
		t.Fatalf("args[0] is %T, want Nest", args[0])
	}
	var leafCount int
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
		case Leaf:
			leafCount++
		default:
			t.Fatalf("unexpected arg type %T", a)
		}
	}
	walk(outer)
	if want := 3 * 4; leafCount != want {
		t.Errorf("leafCount = %d, want %d", leafCount, want)
	}
}

// invariant 2: pointwise ops (no contraction axes) emit a single Leaf per
// input, never a Nest.
func TestInvariantPointwiseIsLeaf(t *testing.T) {
	p, err := NewPlanner(
		[]Label{"i", "j"},
		[]InputSpec{
			{Name: "a", Labels: []Label{"i", "j"}, NumBlocks: []int{2, 2}},
		},
		nil,
	)
	if err != nil {
		t.Fatalf("NewPlanner: %v", err)
	}
	args, err := p.BlockFunction()(TaggedKey{Tag: "out", Coords: chunk.Key{0, 0}})
	if err != nil {
		t.Fatalf("block function: %v", err)
	}
	if _, ok := args[0].(Leaf); !ok {
		t.Fatalf("args[0] is %T, want Leaf", args[0])
	}
}

// invariant 1: block_function returns one Arg entry per input argument
// (literals included), regardless of contraction shape.
func TestInvariantArgCountMatchesInputs(t *testing.T) {
	p, err := NewPlanner(
		[]Label{"i"},
		[]InputSpec{
			{Name: "a", Labels: []Label{"i", "k"}, NumBlocks: []int{2, 3}},
			{Name: "scale", Literal: 1},
		},
		nil,
	)
	if err != nil {
		t.Fatalf("NewPlanner: %v", err)
	}
	args, err := p.BlockFunction()(TaggedKey{Tag: "out", Coords: chunk.Key{0}})
	if err != nil {
		t.Fatalf("block function: %v", err)
	}
	if len(args) != 2 {
		t.Fatalf("len(args) = %d, want 2", len(args))
	}
}
