package main

import (
	"context"
	"fmt"

	"github.com/cubedgo/cubed/internal/kernel"
	"github.com/cubedgo/cubed/internal/store"
)

// flatBridge is the kernel-native representation cubedctl's builtin
// kernels use: a plain []any of element values, rather than the
// store.Block struct the storage layer reads and writes. Using a bridge
// that matches a predecessor's own return shape is what lets a fused
// kernel splice one kernel's result straight into the next's argument
// list without another conversion step.
type flatBridge struct{}

func (flatBridge) StoreToKernel(block any) (any, error) {
	b, ok := block.(store.Block)
	if !ok {
		return nil, fmt.Errorf("cubedctl: expected store.Block, got %T", block)
	}
	return b.Data, nil
}

func (flatBridge) KernelToStore(value any) (any, error) { return value, nil }

// registerBuiltinKernels wires the handful of numeric kernels cubedctl's
// demo pipelines exercise. Real kernel libraries register their own with
// kernel.Register the same way; these exist only so plan/run/fuse have
// something to bind without requiring a Go plugin.
func registerBuiltinKernels() {
	kernel.Register(kernel.Registration{
		Name: "builtin/add", Kind: kernel.Single, Nargs: 2,
		Fn: elementwise2(func(a, b int64) int64 { return a + b }),
	})
	kernel.Register(kernel.Registration{
		Name: "builtin/double", Kind: kernel.Single, Nargs: 1,
		Fn: elementwise1(func(a int64) int64 { return a * 2 }),
	})
	kernel.Register(kernel.Registration{
		Name: "builtin/increment", Kind: kernel.Single, Nargs: 1,
		Fn: elementwise1(func(a int64) int64 { return a + 1 }),
	})
}

func asInt64Slice(v any) ([]any, error) {
	s, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("cubedctl: expected []any, got %T", v)
	}
	return s, nil
}

func elementwise1(f func(int64) int64) kernel.Func {
	return func(ctx context.Context, blocks []any, kwargs map[string]any) (any, error) {
		a, err := asInt64Slice(blocks[0])
		if err != nil {
			return nil, err
		}
		out := make([]any, len(a))
		for i, v := range a {
			out[i] = f(v.(int64))
		}
		return out, nil
	}
}

func elementwise2(f func(int64, int64) int64) kernel.Func {
	return func(ctx context.Context, blocks []any, kwargs map[string]any) (any, error) {
		a, err := asInt64Slice(blocks[0])
		if err != nil {
			return nil, err
		}
		b, err := asInt64Slice(blocks[1])
		if err != nil {
			return nil, err
		}
		if len(a) != len(b) {
			return nil, fmt.Errorf("cubedctl: mismatched block lengths %d vs %d", len(a), len(b))
		}
		out := make([]any, len(a))
		for i := range a {
			out[i] = f(a[i].(int64), b[i].(int64))
		}
		return out, nil
	}
}
