package chunk

import (
	"context"
	"fmt"
	"sync"
)

// Opener lazily materializes a chunk-addressable handle for an ArrayRef's
// backing store. It is supplied by whatever storage collaborator owns the
// array's data pages (internal/store); ArrayRef itself owns none.
type Opener interface {
	Open(ctx context.Context, ref ArrayRef) (any, error)
}

// OpenerFunc adapts a plain function to the Opener interface.
type OpenerFunc func(ctx context.Context, ref ArrayRef) (any, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, ref ArrayRef) (any, error) {
	return f(ctx, ref)
}

// ArrayRef is an opaque handle to a chunked backing store: shape, dtype,
// chunk grid, and a lazy-open capability. It does not own data pages.
type ArrayRef struct {
	Name   string
	Shape  []int64
	Dtype  DType
	Chunks Grid
	opener Opener

	mu     sync.Mutex
	handle any
}

// NewArrayRef validates shape/dtype/chunks and returns a reference whose
// backing store is only materialized on first Open call.
func NewArrayRef(name string, shape []int64, dtype DType, chunks Grid, opener Opener) (ArrayRef, error) {
	if err := dtype.validate(); err != nil {
		return ArrayRef{}, err
	}
	if chunks.NDim() != len(shape) {
		return ArrayRef{}, fmt.Errorf("chunk: array %q chunk grid has %d axes, shape has %d", name, chunks.NDim(), len(shape))
	}
	for axis, s := range shape {
		if s < 0 {
			return ArrayRef{}, fmt.Errorf("chunk: array %q has negative shape on axis %d", name, axis)
		}
	}
	return ArrayRef{Name: name, Shape: shape, Dtype: dtype, Chunks: chunks, opener: opener}, nil
}

// Numblocks returns the number of chunks along every axis, in axis order.
func (a ArrayRef) Numblocks() []int {
	return a.Chunks.Numblocks()
}

// Open returns the live reader/writer for this array, opening the backing
// store at most once per ArrayRef value.
func (a *ArrayRef) Open(ctx context.Context) (any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.handle != nil {
		return a.handle, nil
	}
	if a.opener == nil {
		return nil, fmt.Errorf("chunk: array %q has no opener", a.Name)
	}
	h, err := a.opener.Open(ctx, *a)
	if err != nil {
		return nil, err
	}
	a.handle = h
	return h, nil
}
