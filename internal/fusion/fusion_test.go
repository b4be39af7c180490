package fusion

import (
	"context"
	"testing"

	"github.com/cubedgo/cubed/internal/blockwise"
	"github.com/cubedgo/cubed/internal/chunk"
	"github.com/cubedgo/cubed/internal/kernel"
	"github.com/cubedgo/cubed/internal/plan"
)

func mustRef(t *testing.T, name string, shape, chunkSize []int64, dtype chunk.DType) *chunk.ArrayRef {
	t.Helper()
	g, err := chunk.UniformGrid(shape, chunkSize)
	if err != nil {
		t.Fatalf("UniformGrid: %v", err)
	}
	ref, err := chunk.NewArrayRef(name, shape, dtype, g, nil)
	if err != nil {
		t.Fatalf("NewArrayRef: %v", err)
	}
	return &ref
}

func buildDoubler(t *testing.T, outputName string, src *chunk.ArrayRef) *blockwise.Primitive {
	t.Helper()
	kernel.Register(kernel.Registration{
		Name:  "fusion_test/double-" + outputName,
		Kind:  kernel.Single,
		Nargs: 1,
		Fn: func(ctx context.Context, blocks []any, kwargs map[string]any) (any, error) {
			return blocks[0].(int) * 2, nil
		},
	})
	outRef := mustRef(t, outputName, src.Shape, []int64{2}, src.Dtype)
	cfg := blockwise.Config{
		OutInd:     []plan.Label{"i"},
		Inputs:     []plan.InputSpec{{Name: "x", Labels: []plan.Label{"i"}, NumBlocks: []int{2}}},
		InputRefs:  map[string]*chunk.ArrayRef{"x": src},
		Outputs:    []blockwise.OutputSpec{{Ref: outRef}},
		KernelName: "fusion_test/double-" + outputName,
		AllowedMem: 1 << 20,
	}
	p, err := blockwise.NewPrimitive(cfg)
	if err != nil {
		t.Fatalf("NewPrimitive(%s): %v", outputName, err)
	}
	return p
}

func buildIncrementConsumer(t *testing.T, consumedName string, src *chunk.ArrayRef) *blockwise.Primitive {
	t.Helper()
	kernel.Register(kernel.Registration{
		Name:  "fusion_test/increment",
		Kind:  kernel.Single,
		Nargs: 1,
		Fn: func(ctx context.Context, blocks []any, kwargs map[string]any) (any, error) {
			return blocks[0].(int) + 1, nil
		},
	})
	outRef := mustRef(t, "out", src.Shape, []int64{2}, src.Dtype)
	cfg := blockwise.Config{
		OutInd:     []plan.Label{"i"},
		Inputs:     []plan.InputSpec{{Name: consumedName, Labels: []plan.Label{"i"}, NumBlocks: []int{2}}},
		InputRefs:  map[string]*chunk.ArrayRef{consumedName: src},
		Outputs:    []blockwise.OutputSpec{{Ref: outRef}},
		KernelName: "fusion_test/increment",
		AllowedMem: 1 << 20,
	}
	p, err := blockwise.NewPrimitive(cfg)
	if err != nil {
		t.Fatalf("NewPrimitive(increment): %v", err)
	}
	return p
}

func TestCanFusePairAcceptsMatchingShapes(t *testing.T) {
	x := mustRef(t, "x", []int64{4}, []int64{2}, chunk.Int64)
	pred := buildDoubler(t, "doubled", x)
	succ := buildIncrementConsumer(t, "doubled", x)

	ok, reason := CanFusePair(pred, succ)
	if !ok {
		t.Fatalf("expected fusable, got reason: %s", reason)
	}
}

func TestCanFusePairRejectsGeneratorPredecessor(t *testing.T) {
	x := mustRef(t, "x", []int64{4}, []int64{2}, chunk.Int64)
	kernel.Register(kernel.Registration{
		Name:  "fusion_test/gen",
		Kind:  kernel.MultiYield,
		Nargs: 1,
		Fn: func(ctx context.Context, blocks []any, kwargs map[string]any) (any, error) {
			return kernel.NewSliceSequence([]any{1, 2}), nil
		},
	})
	genOutRef := mustRef(t, "gened", x.Shape, []int64{2}, x.Dtype)
	cfg := blockwise.Config{
		OutInd:     []plan.Label{"i"},
		Inputs:     []plan.InputSpec{{Name: "x", Labels: []plan.Label{"i"}, NumBlocks: []int{2}}},
		InputRefs:  map[string]*chunk.ArrayRef{"x": x},
		Outputs:    []blockwise.OutputSpec{{Ref: genOutRef}},
		KernelName: "fusion_test/gen",
		AllowedMem: 1 << 20,
	}
	pred, err := blockwise.NewPrimitive(cfg)
	if err != nil {
		t.Fatalf("NewPrimitive: %v", err)
	}
	succ := buildIncrementConsumer(t, "gened", x)

	ok, _ := CanFusePair(pred, succ)
	if ok {
		t.Fatal("expected generator predecessor to be rejected")
	}
}

func TestFusePairComposesKernelsAndEliminatesIntermediate(t *testing.T) {
	x := mustRef(t, "x", []int64{4}, []int64{2}, chunk.Int64)
	pred := buildDoubler(t, "doubled2", x)
	succ := buildIncrementConsumer(t, "doubled2", x)

	fused, err := FusePair(pred, succ)
	if err != nil {
		t.Fatalf("FusePair: %v", err)
	}
	if len(fused.Config().Inputs) != 1 {
		t.Fatalf("fused inputs = %v, want 1 (intermediate array eliminated)", fused.Config().Inputs)
	}
	got, err := fused.Kernel.Invoke(context.Background(), []any{5})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got.(int) != 11 { // (5*2)+1
		t.Errorf("fused kernel result = %v, want 11", got)
	}
}

func TestCanFuseMultipleRejectsMismatchedSlotName(t *testing.T) {
	x := mustRef(t, "x", []int64{4}, []int64{2}, chunk.Int64)
	pred := buildDoubler(t, "doubled3", x)
	succ := buildIncrementConsumer(t, "doubled3", x)

	ok, _ := CanFuseMultiple(map[string]*blockwise.Primitive{"wrong-slot": pred}, succ, Options{})
	if ok {
		t.Fatal("expected rejection for mismatched slot name")
	}
}

// buildTwoInputConsumer registers a two-argument kernel and admits a
// Primitive with inputs p (labels/blocks pLabels/pBlocks) and q
// (labels/blocks qLabels/qBlocks), both reading from x, with output index
// "o" supplied entirely via newAxes so neither input's labels need appear
// in the output.
func buildTwoInputConsumer(t *testing.T, name string, x *chunk.ArrayRef, pName string, pLabels []plan.Label, pBlocks []int, qName string, qLabels []plan.Label, qBlocks []int) *blockwise.Primitive {
	t.Helper()
	kernel.Register(kernel.Registration{
		Name:  "fusion_test/" + name,
		Kind:  kernel.Single,
		Nargs: 2,
		Fn: func(ctx context.Context, blocks []any, kwargs map[string]any) (any, error) {
			return 0, nil
		},
	})
	outRef := mustRef(t, name+"-out", []int64{1}, []int64{1}, x.Dtype)
	cfg := blockwise.Config{
		OutInd: []plan.Label{"o"},
		Inputs: []plan.InputSpec{
			{Name: pName, Labels: pLabels, NumBlocks: pBlocks},
			{Name: qName, Labels: qLabels, NumBlocks: qBlocks},
		},
		InputRefs:  map[string]*chunk.ArrayRef{pName: x, qName: x},
		NewAxes:    map[plan.Label]int{"o": 1},
		Outputs:    []blockwise.OutputSpec{{Ref: outRef}},
		KernelName: "fusion_test/" + name,
		AllowedMem: 1 << 20,
	}
	p, err := blockwise.NewPrimitive(cfg)
	if err != nil {
		t.Fatalf("NewPrimitive(%s): %v", name, err)
	}
	return p
}

// TestCanFuseMultipleRejectsNonUniformFanIn covers the case where a
// consumer's own per-slot fan-in tuple is not uniform across its inputs
// (here (1,2)): CanFuseMultiple must reject it, independent of whether any
// slot actually has a predecessor, and report "not uniform".
func TestCanFuseMultipleRejectsNonUniformFanIn(t *testing.T) {
	x := mustRef(t, "x", []int64{4}, []int64{2}, chunk.Int64)
	succ := buildTwoInputConsumer(t, "nonuniform",
		x, "p", []plan.Label{"o"}, []int{1},
		"q", []plan.Label{"k"}, []int{2},
	)
	if got := succ.NumInputBlocks["p"]; got != 1 {
		t.Fatalf("NumInputBlocks[p] = %d, want 1", got)
	}
	if got := succ.NumInputBlocks["q"]; got != 2 {
		t.Fatalf("NumInputBlocks[q] = %d, want 2", got)
	}

	ok, reason := CanFuseMultiple(map[string]*blockwise.Primitive{}, succ, Options{})
	if ok {
		t.Fatal("expected rejection for non-uniform num_input_blocks")
	}
	if reason != "not uniform" {
		t.Fatalf("reason = %q, want %q", reason, "not uniform")
	}
}

// TestCanFuseMultipleRejectsFanInGreaterThanOneOnFusedSlot covers a
// uniform, fan-in-2 consumer where one of those slots has a real
// predecessor: CanFuseMultiple must still reject the fuse, since composing
// a predecessor into a slot with fan-in greater than 1 would require
// invoking the predecessor once per key and transposing the results, which
// the fused kernel's single invoke-and-splice composition cannot express.
func TestCanFuseMultipleRejectsFanInGreaterThanOneOnFusedSlot(t *testing.T) {
	x := mustRef(t, "x", []int64{4}, []int64{2}, chunk.Int64)
	pred := buildDoubler(t, "doubled-fanin", x)
	succ := buildTwoInputConsumer(t, "fanin2",
		x, "doubled-fanin", []plan.Label{"i"}, []int{2},
		"y", []plan.Label{"i"}, []int{2},
	)
	if got := succ.NumInputBlocks["doubled-fanin"]; got != 2 {
		t.Fatalf("NumInputBlocks[doubled-fanin] = %d, want 2 (uniform fan-in setup)", got)
	}

	ok, reason := CanFuseMultiple(map[string]*blockwise.Primitive{"doubled-fanin": pred}, succ, Options{})
	if ok {
		t.Fatal("expected rejection for fan-in greater than 1 on a fused slot")
	}
	if reason == "not uniform" {
		t.Fatalf("reason = %q, want a fan-in rejection (fan-in is uniform here)", reason)
	}
}
