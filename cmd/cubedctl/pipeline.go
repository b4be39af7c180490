package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cubedgo/cubed/internal/chunk"
	"github.com/cubedgo/cubed/internal/plan"
	"github.com/cubedgo/cubed/internal/store"
	"github.com/cubedgo/cubed/internal/store/memstore"
)

// arraySpec describes one named array a pipeline file declares, enough to
// build both a chunk.ArrayRef and a backing memstore.Store for it.
type arraySpec struct {
	Shape  []int64 `yaml:"shape"`
	Dtype  string  `yaml:"dtype"`
	Chunks []int64 `yaml:"chunks"`
	Seed   []int64 `yaml:"seed"`
}

// inputSpec describes one input slot of a primitive: which array backs it,
// its index labels, and the block count per label (the planner needs the
// fan-in on every labeled axis up front).
type inputSpec struct {
	Name      string   `yaml:"name"`
	Labels    []string `yaml:"labels"`
	NumBlocks []int    `yaml:"num_blocks"`
}

// primitiveSpec is one blockwise operation: its output index, its inputs,
// and the kernel it binds.
type primitiveSpec struct {
	OutIndex   []string    `yaml:"out_index"`
	Inputs     []inputSpec `yaml:"inputs"`
	Output     string      `yaml:"output"`
	Kernel     string      `yaml:"kernel"`
	AllowedMem int64       `yaml:"allowed_mem"`
}

// pipelineFile is the on-disk descriptor cubedctl's plan/run/fuse
// subcommands read: a set of arrays plus the primitive(s) over them.
type pipelineFile struct {
	Arrays    map[string]arraySpec `yaml:"arrays"`
	Primitive primitiveSpec        `yaml:"primitive"`
}

func loadPipelineFile(path string) (*pipelineFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var pf pipelineFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &pf, nil
}

func parseDType(name string) (chunk.DType, error) {
	switch name {
	case "int8":
		return chunk.Int8, nil
	case "int16":
		return chunk.Int16, nil
	case "int32":
		return chunk.Int32, nil
	case "int64", "":
		return chunk.Int64, nil
	case "float32":
		return chunk.Float32, nil
	case "float64":
		return chunk.Float64, nil
	case "bool":
		return chunk.Bool, nil
	default:
		return chunk.DType{}, fmt.Errorf("unknown dtype %q", name)
	}
}

// builtArrays holds the live ArrayRef and Store for every array a pipeline
// file declares, so a primitive can be assembled against them and a caller
// can seed or inspect the underlying data after a run.
type builtArrays struct {
	refs   map[string]*chunk.ArrayRef
	stores map[string]*memstore.Store
}

func buildArrays(pf *pipelineFile) (*builtArrays, error) {
	out := &builtArrays{
		refs:   make(map[string]*chunk.ArrayRef),
		stores: make(map[string]*memstore.Store),
	}
	for name, a := range pf.Arrays {
		dtype, err := parseDType(a.Dtype)
		if err != nil {
			return nil, fmt.Errorf("array %q: %w", name, err)
		}
		grid, err := chunk.UniformGrid(a.Shape, a.Chunks)
		if err != nil {
			return nil, fmt.Errorf("array %q: %w", name, err)
		}
		st, err := memstore.New(a.Shape, dtype, grid)
		if err != nil {
			return nil, fmt.Errorf("array %q: %w", name, err)
		}
		if len(a.Seed) > 0 {
			values := make([]any, len(a.Seed))
			for i, v := range a.Seed {
				values[i] = v
			}
			ranges := make([]chunk.Range, len(a.Shape))
			for axis, n := range a.Shape {
				ranges[axis] = chunk.Range{Start: 0, Stop: n}
			}
			if err := st.WriteSlice(context.Background(), ranges, store.Block{Shape: a.Shape, Data: values}); err != nil {
				return nil, fmt.Errorf("array %q: seed: %w", name, err)
			}
		}
		name := name
		ref, err := chunk.NewArrayRef(name, a.Shape, dtype, grid, chunk.OpenerFunc(
			func(_ context.Context, _ chunk.ArrayRef) (any, error) { return out.stores[name], nil },
		))
		if err != nil {
			return nil, fmt.Errorf("array %q: %w", name, err)
		}
		out.refs[name] = &ref
		out.stores[name] = st
	}
	return out, nil
}

func labelsOf(names []string) []plan.Label {
	labels := make([]plan.Label, len(names))
	for i, n := range names {
		labels[i] = plan.Label(n)
	}
	return labels
}
