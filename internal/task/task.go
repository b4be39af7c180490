// Package task implements TaskRunner: the per-output-chunk execution step
// that resolves a BlockFunction's result into concrete blocks, invokes the
// bound kernel, and writes the result back to storage.
package task

import (
	"context"
	"fmt"

	"github.com/cubedgo/cubed/internal/blockwise"
	"github.com/cubedgo/cubed/internal/chunk"
	"github.com/cubedgo/cubed/internal/kernel"
	"github.com/cubedgo/cubed/internal/plan"
	"github.com/cubedgo/cubed/internal/store"
)

// Apply resolves and executes one output chunk of spec, writing its result
// through bridge. A nil bridge defaults to kernel.IdentityBridge.
func Apply(ctx context.Context, outKey chunk.Key, spec blockwise.Spec, bridge kernel.Bridge) error {
	if bridge == nil {
		bridge = kernel.IdentityBridge{}
	}
	if len(spec.Outputs) == 0 {
		return fmt.Errorf("task: spec declares no outputs")
	}

	tag := spec.Outputs[0].Name()
	args, err := spec.BlockFunction(plan.TaggedKey{Tag: tag, Coords: outKey})
	if err != nil {
		return err
	}

	r := &resolver{ctx: ctx, refs: spec.InputRefs, bridge: bridge, handles: make(map[string]store.Handle)}
	blocks := make([]any, len(args))
	for i, a := range args {
		v, err := r.resolve(a)
		if err != nil {
			return err
		}
		blocks[i] = v
	}

	result, err := spec.Kernel.Invoke(ctx, blocks)
	if err != nil {
		return &ErrKernelFailure{Kernel: spec.Kernel.Name, Err: err}
	}

	return writeResult(ctx, outKey, spec, result, bridge)
}

// resolver materializes a plan.Arg tree into kernel-native blocks,
// recursively descending Nest levels and opening each distinct input's
// store handle at most once per Apply call.
type resolver struct {
	ctx     context.Context
	refs    map[string]*chunk.ArrayRef
	bridge  kernel.Bridge
	handles map[string]store.Handle
}

func (r *resolver) handleFor(name string) (store.Handle, error) {
	if h, ok := r.handles[name]; ok {
		return h, nil
	}
	ref, ok := r.refs[name]
	if !ok {
		return nil, fmt.Errorf("task: no ArrayRef supplied for input %q", name)
	}
	raw, err := ref.Open(r.ctx)
	if err != nil {
		return nil, &ErrStorageIOFailure{Op: "open " + name, Err: err}
	}
	h, ok := raw.(store.Handle)
	if !ok {
		return nil, fmt.Errorf("task: input %q opened a %T, not a store.Handle", name, raw)
	}
	r.handles[name] = h
	return h, nil
}

func (r *resolver) resolve(a plan.Arg) (any, error) {
	switch v := a.(type) {
	case plan.Literal:
		return v.Value, nil
	case plan.Leaf:
		h, err := r.handleFor(v.Name)
		if err != nil {
			return nil, err
		}
		ranges, err := h.Chunks().KeyToSlice(v.Coords)
		if err != nil {
			return nil, &ErrStorageIOFailure{Op: "address " + v.Name, Err: err}
		}
		block, err := h.ReadSlice(r.ctx, ranges)
		if err != nil {
			return nil, &ErrStorageIOFailure{Op: "read " + v.Name, Err: err}
		}
		return r.bridge.StoreToKernel(block)
	case plan.Nest:
		items := plan.Materialize(v.Seq)
		out := make([]any, len(items))
		for i, item := range items {
			resolved, err := r.resolve(item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return nil, fmt.Errorf("task: unrecognized arg type %T", a)
	}
}

// writeResult dispatches a kernel's return value to the declared outputs,
// handling single-output dense writes, multi-output kernels, structured
// field-mapped writes, and MultiYield generator kernels.
func writeResult(ctx context.Context, outKey chunk.Key, spec blockwise.Spec, result any, bridge kernel.Bridge) error {
	if spec.Kernel.Kind == kernel.MultiYield {
		seq, ok := result.(kernel.Sequence)
		if !ok {
			return fmt.Errorf("task: generator kernel %q did not return a Sequence", spec.Kernel.Name)
		}
		for _, out := range spec.Outputs {
			item, ok := seq.Next()
			if !ok {
				return fmt.Errorf("task: generator kernel %q yielded fewer results than declared outputs", spec.Kernel.Name)
			}
			if err := writeOne(ctx, outKey, out, item, bridge); err != nil {
				return err
			}
		}
		return nil
	}

	if len(spec.Outputs) == 1 {
		return writeOne(ctx, outKey, spec.Outputs[0], result, bridge)
	}

	items, ok := result.([]any)
	if !ok || len(items) != len(spec.Outputs) {
		return fmt.Errorf("task: kernel %q with %d outputs must return one result per output", spec.Kernel.Name, len(spec.Outputs))
	}
	for i, out := range spec.Outputs {
		if err := writeOne(ctx, outKey, out, items[i], bridge); err != nil {
			return err
		}
	}
	return nil
}

func writeOne(ctx context.Context, outKey chunk.Key, out blockwise.OutputSpec, value any, bridge kernel.Bridge) error {
	raw, err := out.Ref.Open(ctx)
	if err != nil {
		return &ErrStorageIOFailure{Op: "open " + out.Name(), Err: err}
	}
	h, ok := raw.(store.Handle)
	if !ok {
		return fmt.Errorf("task: output %q opened a %T, not a store.Handle", out.Name(), raw)
	}
	ranges, err := out.Ref.Chunks.KeyToSlice(outKey)
	if err != nil {
		return &ErrStorageIOFailure{Op: "address " + out.Name(), Err: err}
	}
	shape, err := out.Ref.Chunks.ChunkShape(outKey)
	if err != nil {
		return &ErrStorageIOFailure{Op: "address " + out.Name(), Err: err}
	}

	if len(out.Fields) > 0 {
		fields, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("task: structured output %q expects a map[string]any result, got %T", out.Name(), value)
		}
		for _, field := range out.Fields {
			fv, ok := fields[field]
			if !ok {
				return fmt.Errorf("task: kernel result for %q is missing field %q", out.Name(), field)
			}
			data, err := toBlockData(fv, bridge)
			if err != nil {
				return err
			}
			if err := h.WriteField(ctx, ranges, field, store.Block{Shape: shape, Data: data}); err != nil {
				return &ErrStorageIOFailure{Op: "write field " + field + " of " + out.Name(), Err: err}
			}
		}
		return nil
	}

	data, err := toBlockData(value, bridge)
	if err != nil {
		return err
	}
	if err := h.WriteSlice(ctx, ranges, store.Block{Shape: shape, Data: data}); err != nil {
		return &ErrStorageIOFailure{Op: "write " + out.Name(), Err: err}
	}
	return nil
}

func toBlockData(value any, bridge kernel.Bridge) ([]any, error) {
	converted, err := bridge.KernelToStore(value)
	if err != nil {
		return nil, err
	}
	data, ok := converted.([]any)
	if !ok {
		return nil, fmt.Errorf("task: kernel result did not convert to a flat block (got %T)", converted)
	}
	return data, nil
}
