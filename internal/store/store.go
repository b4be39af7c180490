// Package store defines the storage collaborator contract: a chunk's
// range-slice reads and writes. Concrete backends (object storage, local
// filesystem chunk stores) are out of scope for the core engine; this
// package ships only the interface and, in store/memstore, an in-memory
// reference implementation for tests and the CLI.
package store

import (
	"context"
	"fmt"

	"github.com/cubedgo/cubed/internal/chunk"
)

// Block is a dense N-D array of store-native element values, laid out in
// row-major order, alongside its shape.
type Block struct {
	Shape []int64
	Data  []any
}

// Handle is a live reader/writer for one chunked array, opened from an
// ArrayRef. Concurrent calls with disjoint Range arguments must be safe —
// the core relies on this so no cross-task locking is required, provided
// the storage collaborator supports concurrent disjoint-range writes.
type Handle interface {
	Shape() []int64
	Dtype() chunk.DType
	Chunks() chunk.Grid
	ReadSlice(ctx context.Context, r []chunk.Range) (Block, error)
	WriteSlice(ctx context.Context, r []chunk.Range, b Block) error
	// WriteField writes one named field of a structured-dtype block. Field
	// writes for the same chunk must be atomic per field per chunk.
	WriteField(ctx context.Context, r []chunk.Range, field string, b Block) error
}

// ErrRetriable wraps a read failure the runtime may retry: read failures
// should be reported as retriable to the runtime.
type ErrRetriable struct {
	Op  string
	Err error
}

func (e *ErrRetriable) Error() string {
	return fmt.Sprintf("store: retriable failure during %s: %v", e.Op, e.Err)
}

func (e *ErrRetriable) Unwrap() error { return e.Err }

// ErrStorageIOFailure wraps a write failure, which is always fatal for the
// task: write failures are never retried.
type ErrStorageIOFailure struct {
	Op  string
	Err error
}

func (e *ErrStorageIOFailure) Error() string {
	return fmt.Sprintf("store: io failure during %s: %v", e.Op, e.Err)
}

func (e *ErrStorageIOFailure) Unwrap() error { return e.Err }
