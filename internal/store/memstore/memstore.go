// Package memstore is an in-memory reference implementation of
// store.Handle, used by tests and the cubedctl CLI's local-execution mode.
// It keeps one dense row-major buffer guarded by a mutex, generalized to
// arbitrary dtypes and structured fields.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/cubedgo/cubed/internal/chunk"
	"github.com/cubedgo/cubed/internal/store"
)

// Store is a dense, mutex-guarded in-memory array. Disjoint-range
// ReadSlice/WriteSlice calls are safe to issue concurrently: each call
// holds the lock only while touching its own addressed elements.
type Store struct {
	mu     sync.RWMutex
	shape  []int64
	dtype  chunk.DType
	chunks chunk.Grid
	stride []int64
	data   []any
	fields map[string][]any // lazily allocated, one dense buffer per field
}

// New allocates a zero-valued in-memory store of the given shape, dtype and
// chunk grid.
func New(shape []int64, dtype chunk.DType, chunks chunk.Grid) (*Store, error) {
	if chunks.NDim() != len(shape) {
		return nil, fmt.Errorf("memstore: grid has %d axes, shape has %d", chunks.NDim(), len(shape))
	}
	size := int64(1)
	for _, s := range shape {
		size *= s
	}
	return &Store{
		shape:  shape,
		dtype:  dtype,
		chunks: chunks,
		stride: rowMajorStride(shape),
		data:   make([]any, size),
		fields: make(map[string][]any),
	}, nil
}

func rowMajorStride(shape []int64) []int64 {
	stride := make([]int64, len(shape))
	acc := int64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		stride[i] = acc
		acc *= shape[i]
	}
	return stride
}

// Shape implements store.Handle.
func (s *Store) Shape() []int64 { return s.shape }

// Dtype implements store.Handle.
func (s *Store) Dtype() chunk.DType { return s.dtype }

// Chunks implements store.Handle.
func (s *Store) Chunks() chunk.Grid { return s.chunks }

func (s *Store) linearIndex(coords []int64) (int64, error) {
	if len(coords) != len(s.shape) {
		return 0, fmt.Errorf("memstore: coords have %d axes, shape has %d", len(coords), len(s.shape))
	}
	var idx int64
	for axis, c := range coords {
		if c < 0 || c >= s.shape[axis] {
			return 0, fmt.Errorf("memstore: coord %d out of range [0,%d) on axis %d", c, s.shape[axis], axis)
		}
		idx += c * s.stride[axis]
	}
	return idx, nil
}

func rangeVolume(r []chunk.Range) int64 {
	v := int64(1)
	for _, rg := range r {
		v *= rg.Len()
	}
	return v
}

// walk calls visit once per coordinate covered by r, in row-major order.
func walk(r []chunk.Range, visit func(coords []int64)) {
	coords := make([]int64, len(r))
	for axis, rg := range r {
		coords[axis] = rg.Start
	}
	if len(r) == 0 {
		visit(coords)
		return
	}
	for {
		visit(append([]int64(nil), coords...))
		axis := len(r) - 1
		for axis >= 0 {
			coords[axis]++
			if coords[axis] < r[axis].Stop {
				break
			}
			coords[axis] = r[axis].Start
			axis--
		}
		if axis < 0 {
			return
		}
	}
}

// ReadSlice implements store.Handle.
func (s *Store) ReadSlice(ctx context.Context, r []chunk.Range) (store.Block, error) {
	if err := ctx.Err(); err != nil {
		return store.Block{}, &store.ErrRetriable{Op: "ReadSlice", Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	shape := make([]int64, len(r))
	for i, rg := range r {
		shape[i] = rg.Len()
	}
	data := make([]any, 0, rangeVolume(r))
	var walkErr error
	walk(r, func(coords []int64) {
		if walkErr != nil {
			return
		}
		idx, err := s.linearIndex(coords)
		if err != nil {
			walkErr = err
			return
		}
		data = append(data, s.data[idx])
	})
	if walkErr != nil {
		return store.Block{}, &store.ErrRetriable{Op: "ReadSlice", Err: walkErr}
	}
	return store.Block{Shape: shape, Data: data}, nil
}

// WriteSlice implements store.Handle.
func (s *Store) WriteSlice(ctx context.Context, r []chunk.Range, b store.Block) error {
	if err := ctx.Err(); err != nil {
		return &store.ErrStorageIOFailure{Op: "WriteSlice", Err: err}
	}
	if rangeVolume(r) != int64(len(b.Data)) {
		return &store.ErrStorageIOFailure{Op: "WriteSlice", Err: fmt.Errorf("memstore: block has %d elements, range covers %d", len(b.Data), rangeVolume(r))}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := 0
	var walkErr error
	walk(r, func(coords []int64) {
		if walkErr != nil {
			return
		}
		idx, err := s.linearIndex(coords)
		if err != nil {
			walkErr = err
			return
		}
		s.data[idx] = b.Data[i]
		i++
	})
	if walkErr != nil {
		return &store.ErrStorageIOFailure{Op: "WriteSlice", Err: walkErr}
	}
	return nil
}

// WriteField implements store.Handle, writing one named field of a
// structured-dtype result. Each field gets its own dense buffer, allocated
// on first write.
func (s *Store) WriteField(ctx context.Context, r []chunk.Range, field string, b store.Block) error {
	if err := ctx.Err(); err != nil {
		return &store.ErrStorageIOFailure{Op: "WriteField", Err: err}
	}
	if rangeVolume(r) != int64(len(b.Data)) {
		return &store.ErrStorageIOFailure{Op: "WriteField", Err: fmt.Errorf("memstore: block has %d elements, range covers %d", len(b.Data), rangeVolume(r))}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.fields[field]
	if !ok {
		buf = make([]any, len(s.data))
		s.fields[field] = buf
	}
	i := 0
	var walkErr error
	walk(r, func(coords []int64) {
		if walkErr != nil {
			return
		}
		idx, err := s.linearIndex(coords)
		if err != nil {
			walkErr = err
			return
		}
		buf[idx] = b.Data[i]
		i++
	})
	if walkErr != nil {
		return &store.ErrStorageIOFailure{Op: "WriteField", Err: walkErr}
	}
	return nil
}

// Field returns the raw buffer for a previously written field, for tests
// and inspection. It returns nil if the field was never written.
func (s *Store) Field(name string) []any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields[name]
}

// Snapshot returns a copy of the store's dense, row-major element buffer,
// for tests and CLI inspection.
func (s *Store) Snapshot() []any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]any(nil), s.data...)
}
