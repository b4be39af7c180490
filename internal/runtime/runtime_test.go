package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/cubedgo/cubed/internal/blockwise"
	"github.com/cubedgo/cubed/internal/chunk"
	"github.com/cubedgo/cubed/internal/kernel"
	"github.com/cubedgo/cubed/internal/plan"
	"github.com/cubedgo/cubed/internal/store"
	"github.com/cubedgo/cubed/internal/store/memstore"
)

func TestEnumerateKeysCartesianProduct(t *testing.T) {
	keys := enumerateKeys([]int{2, 3})
	if len(keys) != 6 {
		t.Fatalf("got %d keys, want 6", len(keys))
	}
	seen := make(map[string]bool)
	for _, k := range keys {
		seen[string(rune(k[0]))+","+string(rune(k[1]))] = true
	}
	if len(seen) != 6 {
		t.Errorf("expected 6 distinct keys, got %d", len(seen))
	}
}

func backedRef(t *testing.T, name string, shape, chunkSize []int64, dtype chunk.DType, s *memstore.Store) *chunk.ArrayRef {
	t.Helper()
	g, err := chunk.UniformGrid(shape, chunkSize)
	if err != nil {
		t.Fatalf("UniformGrid: %v", err)
	}
	ref, err := chunk.NewArrayRef(name, shape, dtype, g, chunk.OpenerFunc(func(ctx context.Context, r chunk.ArrayRef) (any, error) {
		return s, nil
	}))
	if err != nil {
		t.Fatalf("NewArrayRef: %v", err)
	}
	return &ref
}

func TestRunPrimitiveRunsEveryOutputChunk(t *testing.T) {
	shape := []int64{6}
	chunkSize := []int64{2}
	grid, err := chunk.UniformGrid(shape, chunkSize)
	if err != nil {
		t.Fatalf("UniformGrid: %v", err)
	}
	in, err := memstore.New(shape, chunk.Int64, grid)
	if err != nil {
		t.Fatalf("memstore.New: %v", err)
	}
	out, err := memstore.New(shape, chunk.Int64, grid)
	if err != nil {
		t.Fatalf("memstore.New: %v", err)
	}

	inRef := backedRef(t, "in", shape, chunkSize, chunk.Int64, in)
	outRef := backedRef(t, "out", shape, chunkSize, chunk.Int64, out)

	var calls int32
	kernel.Register(kernel.Registration{
		Name:  "runtime_test/identity",
		Kind:  kernel.Single,
		Nargs: 1,
		Fn: func(ctx context.Context, blocks []any, kwargs map[string]any) (any, error) {
			atomic.AddInt32(&calls, 1)
			b := blocks[0].(store.Block)
			return append([]any(nil), b.Data...), nil
		},
	})

	cfg := blockwise.Config{
		OutInd:     []plan.Label{"i"},
		Inputs:     []plan.InputSpec{{Name: "in", Labels: []plan.Label{"i"}, NumBlocks: []int{3}}},
		InputRefs:  map[string]*chunk.ArrayRef{"in": inRef},
		Outputs:    []blockwise.OutputSpec{{Ref: outRef}},
		KernelName: "runtime_test/identity",
		AllowedMem: 1 << 20,
	}
	prim, err := blockwise.NewPrimitive(cfg)
	if err != nil {
		t.Fatalf("NewPrimitive: %v", err)
	}

	rt := NewLocalRuntime(2, 1)
	if err := rt.RunPrimitive(context.Background(), prim.Spec(), nil); err != nil {
		t.Fatalf("RunPrimitive: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("kernel called %d times, want 3", got)
	}
}

func TestRunWithRetryStopsOnNonRetriableError(t *testing.T) {
	var calls int32
	kernel.Register(kernel.Registration{
		Name:  "runtime_test/always-fails",
		Kind:  kernel.Single,
		Nargs: 0,
		Fn: func(ctx context.Context, blocks []any, kwargs map[string]any) (any, error) {
			atomic.AddInt32(&calls, 1)
			return nil, errors.New("permanent failure")
		},
	})
	shape := []int64{2}
	grid, err := chunk.UniformGrid(shape, []int64{2})
	if err != nil {
		t.Fatalf("UniformGrid: %v", err)
	}
	out, err := memstore.New(shape, chunk.Int64, grid)
	if err != nil {
		t.Fatalf("memstore.New: %v", err)
	}
	outRef := backedRef(t, "out", shape, []int64{2}, chunk.Int64, out)

	cfg := blockwise.Config{
		OutInd:     []plan.Label{"i"},
		Inputs:     nil,
		InputRefs:  map[string]*chunk.ArrayRef{},
		Outputs:    []blockwise.OutputSpec{{Ref: outRef}},
		KernelName: "runtime_test/always-fails",
		NewAxes:    map[plan.Label]int{"i": 1},
		AllowedMem: 1 << 20,
	}
	prim, err := blockwise.NewPrimitive(cfg)
	if err != nil {
		t.Fatalf("NewPrimitive: %v", err)
	}

	rt := NewLocalRuntime(1, 3)
	err = rt.RunPrimitive(context.Background(), prim.Spec(), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("kernel called %d times, want 1 (no retry of a non-retriable error)", got)
	}
}
