// Package blockwise assembles a primitive operation: an IndexPlanner plan,
// a bound kernel, and the output array descriptors it writes into, with a
// memory-budget admission check performed once at construction time.
package blockwise

import (
	"fmt"

	"github.com/cubedgo/cubed/internal/chunk"
	"github.com/cubedgo/cubed/internal/kernel"
	"github.com/cubedgo/cubed/internal/memory"
	"github.com/cubedgo/cubed/internal/plan"
)

// OutputSpec describes one array a primitive operation writes. Fields is
// non-empty for structured-dtype outputs written via WriteField rather than
// a single WriteSlice.
type OutputSpec struct {
	Ref    *chunk.ArrayRef
	Fields []string
}

// Name is a convenience accessor for the array name a TaskRunner ties its
// written chunks to.
func (o OutputSpec) Name() string { return o.Ref.Name }

// Config is everything needed to plan and admit one primitive operation.
type Config struct {
	OutInd       []plan.Label
	Inputs       []plan.InputSpec
	InputRefs    map[string]*chunk.ArrayRef
	NewAxes      map[plan.Label]int
	Outputs      []OutputSpec
	KernelName   string
	KernelKwargs map[string]any

	AllowedMem  int64
	ReservedMem int64
	// ExtraProjectedMem accounts for kernel working memory that scales with
	// block size but is never itself a stored block.
	ExtraProjectedMem int64

	// NumInputBlocksOverride lets a caller declare, per input name, a
	// fan-in different from what the planner would derive from labels
	// alone. The fusion engine does not set it.
	NumInputBlocksOverride map[string]int
}

// Primitive is one admitted, ready-to-run primitive operation.
type Primitive struct {
	Planner        *plan.Planner
	Outputs        []OutputSpec
	Kernel         kernel.Bound
	NumTasks       int
	Projection     memory.Projection
	NumInputBlocks map[string]int
	cfg            Config
}

// NewPrimitive builds and admits a primitive operation: normalize grids,
// build the index plan, project peak memory, reject over-budget plans,
// compute task count, and bind the kernel once.
func NewPrimitive(cfg Config) (*Primitive, error) {
	if len(cfg.Outputs) == 0 {
		return nil, &ErrNoOutputs{}
	}

	planner, err := plan.NewPlanner(cfg.OutInd, cfg.Inputs, cfg.NewAxes)
	if err != nil {
		return nil, err
	}

	numInputBlocks := make(map[string]int, len(cfg.Inputs))
	fanins := planner.NumInputBlocks()
	for i, in := range cfg.Inputs {
		n := 1
		if i < len(fanins) {
			n = fanins[i]
		}
		if override, ok := cfg.NumInputBlocksOverride[in.Name]; ok {
			n = override
		}
		numInputBlocks[in.Name] = n
	}

	var inputChunkBytes []int64
	for _, in := range cfg.Inputs {
		if in.Literal != nil {
			continue
		}
		ref, ok := cfg.InputRefs[in.Name]
		if !ok {
			return nil, fmt.Errorf("blockwise: no ArrayRef supplied for input %q", in.Name)
		}
		perBlock := memory.ChunkBytes(ref.Dtype, ref.Chunks.MaxChunkShape())
		inputChunkBytes = append(inputChunkBytes, perBlock*int64(numInputBlocks[in.Name]))
	}

	outputChunkBytes := make([]int64, len(cfg.Outputs))
	for i, out := range cfg.Outputs {
		outputChunkBytes[i] = memory.ChunkBytes(out.Ref.Dtype, out.Ref.Chunks.MaxChunkShape())
	}

	projection := memory.Project(inputChunkBytes, outputChunkBytes, cfg.ReservedMem, cfg.ExtraProjectedMem)
	if cfg.AllowedMem > 0 && projection.Total > cfg.AllowedMem {
		return nil, &ErrMemoryBudgetExceeded{
			Projected: projection.Total,
			Allowed:   cfg.AllowedMem,
			Reserved:  cfg.ReservedMem,
		}
	}

	bound, err := kernel.Bind(cfg.KernelName, cfg.KernelKwargs)
	if err != nil {
		return nil, err
	}

	numTasks := 1
	for _, n := range planner.NumOutputBlocks() {
		numTasks *= n
	}

	return &Primitive{
		Planner:        planner,
		Outputs:        cfg.Outputs,
		Kernel:         bound,
		NumTasks:       numTasks,
		Projection:     projection,
		NumInputBlocks: numInputBlocks,
		cfg:            cfg,
	}, nil
}

// Spec is the task-facing view of a Primitive: everything TaskRunner needs
// to resolve and execute one output chunk, decoupled from how the plan was
// assembled or admitted.
type Spec struct {
	BlockFunction   plan.BlockFunction
	Kernel          kernel.Bound
	Outputs         []OutputSpec
	InputRefs       map[string]*chunk.ArrayRef
	NumOutputBlocks []int
}

// Config returns the configuration p was built from, for callers (the
// fusion engine) that need to re-derive or extend a plan.
func (p *Primitive) Config() Config {
	return p.cfg
}

// Spec extracts the task-facing view of p.
func (p *Primitive) Spec() Spec {
	return Spec{
		BlockFunction:   p.Planner.BlockFunction(),
		Kernel:          p.Kernel,
		Outputs:         p.Outputs,
		InputRefs:       p.cfg.InputRefs,
		NumOutputBlocks: p.Planner.NumOutputBlocks(),
	}
}
