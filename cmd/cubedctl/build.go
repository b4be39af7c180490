package main

import (
	"fmt"

	"github.com/cubedgo/cubed/internal/blockwise"
	"github.com/cubedgo/cubed/internal/chunk"
	"github.com/cubedgo/cubed/internal/config"
	"github.com/cubedgo/cubed/internal/plan"
)

// buildPrimitive assembles a blockwise.Primitive for one primitiveSpec
// against the arrays ba already built, admitting it under cfg's memory
// budget unless ps.AllowedMem overrides it.
func buildPrimitive(ps primitiveSpec, ba *builtArrays, cfg config.Config) (*blockwise.Primitive, error) {
	inputs := make([]plan.InputSpec, len(ps.Inputs))
	refs := make(map[string]*chunk.ArrayRef, len(ps.Inputs))
	for i, in := range ps.Inputs {
		inputs[i] = plan.InputSpec{
			Name:      in.Name,
			Labels:    labelsOf(in.Labels),
			NumBlocks: in.NumBlocks,
		}
		ref, ok := ba.refs[in.Name]
		if !ok {
			return nil, fmt.Errorf("primitive: input %q: no such array", in.Name)
		}
		refs[in.Name] = ref
	}

	outRef, ok := ba.refs[ps.Output]
	if !ok {
		return nil, fmt.Errorf("primitive: output %q: no such array", ps.Output)
	}

	allowedMem := ps.AllowedMem
	if allowedMem == 0 {
		allowedMem = cfg.AllowedMem
	}

	return blockwise.NewPrimitive(blockwise.Config{
		OutInd:      labelsOf(ps.OutIndex),
		Inputs:      inputs,
		InputRefs:   refs,
		Outputs:     []blockwise.OutputSpec{{Ref: outRef}},
		KernelName:  ps.Kernel,
		AllowedMem:  allowedMem,
		ReservedMem: cfg.ReservedMem,
	})
}
