// Package fusion implements the FusionEngine: deciding when two or more
// chained primitive operations can be rewritten into a single primitive
// operation that skips materializing the intermediate array, and
// performing that rewrite.
//
// Fusion composes at the index-expression level, the same way the
// underlying blockwise algebra does: a fused operation's inputs are the
// predecessor's raw inputs plus the successor's remaining inputs, and its
// kernel is the successor's kernel applied to the predecessor's kernel's
// result. This is grounded on the predecessor/successor stage composition
// used for scheduling fusion in distributed batch engines, adapted here
// from array-index composition rather than key-range composition.
package fusion

import (
	"context"

	"github.com/cubedgo/cubed/internal/blockwise"
	"github.com/cubedgo/cubed/internal/chunk"
	"github.com/cubedgo/cubed/internal/kernel"
	"github.com/cubedgo/cubed/internal/logging"
	"github.com/cubedgo/cubed/internal/memory"
	"github.com/cubedgo/cubed/internal/naming"
	"github.com/cubedgo/cubed/internal/plan"
)

// IsFuseCandidate reports whether pred can ever serve as a fusion
// predecessor: it must produce exactly one output (a fused stage has one
// composed kernel invocation, so a multi-output predecessor would need its
// other outputs materialized separately anyway) and its kernel must not be
// a generator (MultiYield kernels already stream results lazily; splicing
// their output into a successor's single call would force materializing
// the whole sequence up front, defeating the point).
func IsFuseCandidate(pred *blockwise.Primitive) bool {
	return len(pred.Outputs) == 1 && pred.Kernel.Kind == kernel.Single
}

func outputName(p *blockwise.Primitive) string { return p.Outputs[0].Name() }

func findInput(inputs []plan.InputSpec, name string) (plan.InputSpec, int, bool) {
	for i, in := range inputs {
		if in.Name == name {
			return in, i, true
		}
	}
	return plan.InputSpec{}, -1, false
}

func labelsEqual(a, b []plan.Label) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CanFusePair reports whether pred's single output may be fused directly
// into succ, consuming succ's input slot named after pred's output array.
// It requires the slot's index labels and per-axis block counts to match
// pred's output exactly — a mismatch would mean the two plans disagree
// about how many blocks make up the shared array, which can only happen if
// the graph was built incorrectly upstream, so fusion refuses rather than
// guessing. It also requires the fused slot's own fan-in to be 1: the
// composed kernel invokes pred once and splices its raw result straight
// into succ's argument list, which only matches a single-block contraction
// at that slot.
func CanFusePair(pred, succ *blockwise.Primitive) (bool, string) {
	if !IsFuseCandidate(pred) {
		return false, "predecessor has more than one output or a generator kernel"
	}
	slotName := outputName(pred)
	succCfg := succ.Config()
	slot, _, ok := findInput(succCfg.Inputs, slotName)
	if !ok {
		return false, "successor does not consume predecessor's output"
	}
	if !labelsEqual(slot.Labels, pred.Planner.OutInd()) {
		return false, "index labels of the shared array do not match between predecessor and successor"
	}
	if !intsEqual(slot.NumBlocks, pred.Planner.NumOutputBlocks()) {
		return false, "predecessor and successor disagree on the shared array's block counts"
	}
	if succ.NumInputBlocks[slotName] != 1 {
		return false, "fused slot has fan-in greater than 1"
	}
	return true, ""
}

// Options controls a multi-predecessor fuse attempt.
type Options struct {
	// MaxTotalInputBlocks, if positive, caps the sum of fan-in across all
	// fused predecessors; exceeding it rejects the fuse even if memory
	// would admit it, bounding how much redundant recomputation a fused
	// stage can hide.
	MaxTotalInputBlocks int
}

// peakProjected simulates running preds in order: each predecessor
// allocates its own projected peak memory, then releases everything but
// the one output chunk retained until succ consumes it. The return value
// is the highest watermark reached, since predecessors run sequentially
// within a task but their output chunks are held until the consumer runs.
func peakProjected(preds []*blockwise.Primitive) int64 {
	var held, peak int64
	for _, q := range preds {
		held += q.Projection.Total
		if held > peak {
			peak = held
		}
		target := q.Outputs[0].Ref
		held -= q.Projection.Total - memory.ChunkBytes(target.Dtype, target.Chunks.MaxChunkShape())
	}
	return peak
}

// orderedPreds returns preds in succCfg's input-slot order, so
// peakProjected simulates the same order the fused task would actually
// invoke them in.
func orderedPreds(preds map[string]*blockwise.Primitive, succCfg blockwise.Config) []*blockwise.Primitive {
	ordered := make([]*blockwise.Primitive, 0, len(preds))
	for _, in := range succCfg.Inputs {
		if p, ok := preds[in.Name]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered
}

// uniformFanIn reports whether every value in m is equal (vacuously true
// for zero or one entries).
func uniformFanIn(m map[string]int) bool {
	first := true
	var want int
	for _, n := range m {
		if first {
			want = n
			first = false
			continue
		}
		if n != want {
			return false
		}
	}
	return true
}

// CanFuseMultiple reports whether every predecessor in preds (keyed by the
// successor input slot it feeds) can be fused into succ simultaneously. A
// slot absent from preds is a dangling predecessor and passes through to
// the fused result unchanged, but it must still have fan-in 1 — the fused
// result has no mechanism to re-expand a dangling slot's own fan-in later.
func CanFuseMultiple(preds map[string]*blockwise.Primitive, succ *blockwise.Primitive, opts Options) (bool, string) {
	if !IsFuseCandidate(succ) {
		return false, "consumer has more than one output or a generator kernel"
	}

	succCfg := succ.Config()

	// Uniformity of succ's own fan-in tuple is independent of which slots
	// have a predecessor, so it is checked before any per-slot gate: a
	// non-uniform consumer is rejected outright rather than surfacing
	// whichever slot-level check happens to run across it first.
	if !uniformFanIn(succ.NumInputBlocks) {
		logging.Default.Debugf("fusion: rejecting fuse into %q: num_input_blocks is not uniform", succCfg.Outputs[0].Name())
		return false, "not uniform"
	}

	for slot, pred := range preds {
		if outputName(pred) != slot {
			return false, "predecessor output name does not match its declared slot"
		}
		if ok, reason := CanFusePair(pred, succ); !ok {
			return false, slot + ": " + reason
		}
	}

	for _, in := range succCfg.Inputs {
		if in.Literal != nil {
			continue
		}
		if _, fused := preds[in.Name]; fused {
			continue
		}
		if succ.NumInputBlocks[in.Name] != 1 {
			return false, "dangling predecessor slot " + in.Name + " has fan-in greater than 1"
		}
	}

	if peak := peakProjected(orderedPreds(preds, succCfg)); succCfg.AllowedMem > 0 && peak > succCfg.AllowedMem {
		logging.Default.Debugf("fusion: rejecting fuse into %q: peak projected memory %d exceeds allowed_mem %d", succCfg.Outputs[0].Name(), peak, succCfg.AllowedMem)
		return false, "peak memory exceeds allowed_mem"
	}

	if opts.MaxTotalInputBlocks > 0 {
		total := 0
		for slot, pred := range preds {
			nj := 0
			for _, n := range pred.NumInputBlocks {
				nj += n
			}
			total += succ.NumInputBlocks[slot] * nj
		}
		if total > opts.MaxTotalInputBlocks {
			return false, "exceeds max_total_input_blocks"
		}
		return true, ""
	}

	for _, pred := range preds {
		if pred.NumTasks != succ.NumTasks {
			return false, "predecessor and consumer task counts disagree"
		}
	}
	return true, ""
}

// FusePair rewrites pred and succ into a single primitive operation. pred's
// output is never materialized: the fused kernel recomputes it inline from
// pred's raw inputs before invoking succ's kernel.
func FusePair(pred, succ *blockwise.Primitive) (*blockwise.Primitive, error) {
	ok, reason := CanFusePair(pred, succ)
	if !ok {
		return nil, &ErrNotFusable{Reason: reason}
	}

	predCfg := pred.Config()
	succCfg := succ.Config()
	slotName := outputName(pred)
	_, slotIndex, _ := findInput(succCfg.Inputs, slotName)

	newInputs := make([]plan.InputSpec, 0, len(predCfg.Inputs)+len(succCfg.Inputs)-1)
	newInputs = append(newInputs, predCfg.Inputs...)
	for i, in := range succCfg.Inputs {
		if i == slotIndex {
			continue
		}
		newInputs = append(newInputs, in)
	}

	newRefs := make(map[string]*chunk.ArrayRef, len(predCfg.InputRefs)+len(succCfg.InputRefs))
	for name, ref := range predCfg.InputRefs {
		newRefs[name] = ref
	}
	for name, ref := range succCfg.InputRefs {
		if name == slotName {
			continue
		}
		newRefs[name] = ref
	}

	newAxes := make(map[plan.Label]int, len(predCfg.NewAxes)+len(succCfg.NewAxes))
	for lbl, n := range predCfg.NewAxes {
		newAxes[lbl] = n
	}
	for lbl, n := range succCfg.NewAxes {
		newAxes[lbl] = n
	}

	fusedName := naming.Next("fused")
	kernel.Register(kernel.Registration{
		Name:  fusedName,
		Kind:  succ.Kernel.Kind,
		Nargs: len(newInputs),
		Fn:    composeKernel(pred.Kernel.Invoke, succ.Kernel.Invoke, len(predCfg.Inputs), slotIndex, len(succCfg.Inputs)),
	})

	newCfg := blockwise.Config{
		OutInd:            succCfg.OutInd,
		Inputs:            newInputs,
		InputRefs:         newRefs,
		NewAxes:           newAxes,
		Outputs:           succCfg.Outputs,
		KernelName:        fusedName,
		AllowedMem:        succCfg.AllowedMem,
		ReservedMem:       succCfg.ReservedMem,
		ExtraProjectedMem: succCfg.ExtraProjectedMem + predCfg.ExtraProjectedMem,
	}
	return blockwise.NewPrimitive(newCfg)
}

// FuseMultiple applies FusePair once per entry in preds, folding each
// predecessor into the running fused operation in turn. The result does
// not depend on fold order because each fuse only ever touches one
// successor input slot.
//
// CanFuseMultiple (and, transitively, CanFusePair) requires every fused or
// dangling slot to have fan-in 1. A slot with fan-in greater than 1 is
// rejected outright rather than fused: expanding it correctly means
// invoking its predecessor once per fan-in key and re-partitioning the
// results against the predecessor's own nargs, which needs a planner-level
// rewrite FuseMultiple's single-kernel-invocation composition can't express.
func FuseMultiple(preds map[string]*blockwise.Primitive, succ *blockwise.Primitive, opts Options) (*blockwise.Primitive, error) {
	ok, reason := CanFuseMultiple(preds, succ, opts)
	if !ok {
		return nil, &ErrNotFusable{Reason: reason}
	}
	fused := succ
	for _, pred := range preds {
		next, err := FusePair(pred, fused)
		if err != nil {
			return nil, err
		}
		fused = next
	}
	return fused, nil
}

// composeKernel builds the fused kernel body: invoke pred on its own raw
// blocks, splice the result into succ's argument list at slotIndex, then
// invoke succ.
func composeKernel(predInvoke, succInvoke func(ctx context.Context, blocks []any) (any, error), predNargs, slotIndex, succNargs int) kernel.Func {
	return func(ctx context.Context, blocks []any, _ map[string]any) (any, error) {
		predBlocks := blocks[:predNargs]
		rest := blocks[predNargs:]

		predOut, err := predInvoke(ctx, predBlocks)
		if err != nil {
			return nil, err
		}

		succBlocks := make([]any, succNargs)
		ri := 0
		for i := 0; i < succNargs; i++ {
			if i == slotIndex {
				succBlocks[i] = predOut
				continue
			}
			succBlocks[i] = rest[ri]
			ri++
		}
		return succInvoke(ctx, succBlocks)
	}
}
