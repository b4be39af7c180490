// Package runtime executes primitive operations: it enumerates every
// output chunk a primitive operation must produce and drives TaskRunner
// over them with bounded concurrency, retrying chunks whose storage layer
// reports a retriable failure.
//
// The concurrency model — a worker-limited pool of goroutines fanning out
// over independent units of work — mirrors a common tensor-library pattern
// of splitting array work across runtime.NumCPU() goroutines with a
// sync.WaitGroup. The retry-then-fail
// policy and sequential stage ordering are grounded on the original
// implementation's executor, which retries a task up to a fixed attempt
// count and runs stages in the dependency graph's topological order.
package runtime

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/cubedgo/cubed/internal/blockwise"
	"github.com/cubedgo/cubed/internal/chunk"
	"github.com/cubedgo/cubed/internal/kernel"
	"github.com/cubedgo/cubed/internal/logging"
	"github.com/cubedgo/cubed/internal/store"
	"github.com/cubedgo/cubed/internal/task"
)

// Runtime runs a single admitted primitive operation to completion.
type Runtime interface {
	RunPrimitive(ctx context.Context, spec blockwise.Spec, bridge kernel.Bridge) error
}

// LocalRuntime runs every task in-process using a bounded goroutine pool.
// It is the reference runtime used by cubedctl and by tests; a distributed
// runtime would implement the same interface against a job queue.
type LocalRuntime struct {
	Workers       int
	RetryAttempts int
	Logger        *logging.Logger
}

// NewLocalRuntime returns a LocalRuntime with the given concurrency and
// retry policy. A non-positive workers or retryAttempts is treated as 1.
func NewLocalRuntime(workers, retryAttempts int) *LocalRuntime {
	if workers < 1 {
		workers = 1
	}
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &LocalRuntime{Workers: workers, RetryAttempts: retryAttempts, Logger: logging.Default}
}

// Stage is one named primitive operation in an execution graph.
type Stage struct {
	Name string
	Spec blockwise.Spec
}

// RunGraph runs stages in the given order. Callers are responsible for
// topologically sorting stages so that each stage's inputs are fully
// written before it runs — the runtime does not infer dependencies.
func (r *LocalRuntime) RunGraph(ctx context.Context, stages []Stage, bridge kernel.Bridge) error {
	for _, stage := range stages {
		if err := r.RunPrimitive(ctx, stage.Spec, bridge); err != nil {
			return fmt.Errorf("runtime: stage %q: %w", stage.Name, err)
		}
	}
	return nil
}

// RunPrimitive enumerates every output chunk key for spec and applies
// TaskRunner to each with up to r.Workers running concurrently.
func (r *LocalRuntime) RunPrimitive(ctx context.Context, spec blockwise.Spec, bridge kernel.Bridge) error {
	keys := enumerateKeys(spec.NumOutputBlocks)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Workers)

	for _, key := range keys {
		key := key
		g.Go(func() error {
			return r.runWithRetry(gctx, key, spec, bridge)
		})
	}
	return g.Wait()
}

func (r *LocalRuntime) runWithRetry(ctx context.Context, key chunk.Key, spec blockwise.Spec, bridge kernel.Bridge) error {
	var lastErr error
	for attempt := 1; attempt <= r.RetryAttempts; attempt++ {
		err := task.Apply(ctx, key, spec, bridge)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetriable(err) {
			return err
		}
		r.Logger.Warnf("task %v failed (attempt %d/%d): %v", key, attempt, r.RetryAttempts, err)
	}
	return lastErr
}

func isRetriable(err error) bool {
	var retriable *store.ErrRetriable
	return errors.As(err, &retriable)
}

// enumerateKeys produces every chunk.Key in the Cartesian product of
// numBlocks, in row-major order.
func enumerateKeys(numBlocks []int) []chunk.Key {
	total := 1
	for _, n := range numBlocks {
		total *= n
	}
	if total == 0 {
		return nil
	}
	keys := make([]chunk.Key, 0, total)
	coords := make(chunk.Key, len(numBlocks))
	for {
		keys = append(keys, append(chunk.Key(nil), coords...))
		axis := len(numBlocks) - 1
		for axis >= 0 {
			coords[axis]++
			if int(coords[axis]) < numBlocks[axis] {
				break
			}
			coords[axis] = 0
			axis--
		}
		if axis < 0 {
			break
		}
	}
	return keys
}
