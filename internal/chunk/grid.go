package chunk

import "fmt"

// Key is a chunk's integer coordinates within its array's chunk grid, one
// per axis. It is an ordered sequence, never a fixed-size tuple, so it
// remains serializable by runtimes that reject tuples.
type Key []int64

// Range is a half-open integer range [Start, Stop) along one axis.
type Range struct {
	Start, Stop int64
}

// Len returns the number of elements covered by the range.
func (r Range) Len() int64 {
	return r.Stop - r.Start
}

// Grid is the normalized per-axis chunk-length sequence of a chunked array.
// Lengths[axis][i] is the size of the i-th chunk along axis; the last chunk
// on an axis may be shorter than the others ("ragged").
type Grid struct {
	Lengths [][]int64
}

// NewGrid validates and wraps a per-axis chunk-length sequence against the
// array shape it is meant to tile. All lengths must be positive and the sum
// of lengths on each axis must equal the shape on that axis.
func NewGrid(shape []int64, lengths [][]int64) (Grid, error) {
	if len(lengths) != len(shape) {
		return Grid{}, fmt.Errorf("chunk: grid has %d axes, shape has %d", len(lengths), len(shape))
	}
	for axis, ls := range lengths {
		var sum int64
		for _, l := range ls {
			if l <= 0 {
				return Grid{}, fmt.Errorf("chunk: axis %d has non-positive chunk length %d", axis, l)
			}
			sum += l
		}
		if sum != shape[axis] {
			return Grid{}, fmt.Errorf("chunk: axis %d chunk lengths sum to %d, want shape %d", axis, sum, shape[axis])
		}
	}
	return Grid{Lengths: lengths}, nil
}

// UniformGrid builds a Grid for shape by tiling each axis with a fixed
// chunk size, with a short final chunk absorbing the remainder.
func UniformGrid(shape []int64, chunkSize []int64) (Grid, error) {
	if len(chunkSize) != len(shape) {
		return Grid{}, fmt.Errorf("chunk: chunkSize has %d axes, shape has %d", len(chunkSize), len(shape))
	}
	lengths := make([][]int64, len(shape))
	for axis, size := range chunkSize {
		if size <= 0 {
			return Grid{}, fmt.Errorf("chunk: axis %d has non-positive chunk size %d", axis, size)
		}
		var ls []int64
		remaining := shape[axis]
		for remaining > 0 {
			l := size
			if l > remaining {
				l = remaining
			}
			ls = append(ls, l)
			remaining -= l
		}
		if len(ls) == 0 {
			ls = []int64{0}
		}
		lengths[axis] = ls
	}
	return NewGrid(shape, lengths)
}

// NDim returns the number of axes in the grid.
func (g Grid) NDim() int {
	return len(g.Lengths)
}

// NumBlocks returns the number of chunks along the given axis.
func (g Grid) NumBlocks(axis int) int {
	return len(g.Lengths[axis])
}

// Numblocks returns the number of chunks along every axis, in axis order.
func (g Grid) Numblocks() []int {
	nb := make([]int, len(g.Lengths))
	for axis := range g.Lengths {
		nb[axis] = g.NumBlocks(axis)
	}
	return nb
}

// KeyToSlice converts a chunk key (one integer coordinate per axis) into the
// half-open element ranges it covers on each axis.
func (g Grid) KeyToSlice(key Key) ([]Range, error) {
	if len(key) != len(g.Lengths) {
		return nil, fmt.Errorf("chunk: key has %d coords, grid has %d axes", len(key), len(g.Lengths))
	}
	ranges := make([]Range, len(key))
	for axis, idx := range key {
		ls := g.Lengths[axis]
		if idx < 0 || int(idx) >= len(ls) {
			return nil, fmt.Errorf("chunk: axis %d block index %d out of range [0,%d)", axis, idx, len(ls))
		}
		var start int64
		for i := int64(0); i < idx; i++ {
			start += ls[i]
		}
		ranges[axis] = Range{Start: start, Stop: start + ls[idx]}
	}
	return ranges, nil
}

// ChunkShape returns the element extent of the chunk at key, one value per
// axis — the size TaskRunner must allocate for a block read at this key.
func (g Grid) ChunkShape(key Key) ([]int64, error) {
	ranges, err := g.KeyToSlice(key)
	if err != nil {
		return nil, err
	}
	shape := make([]int64, len(ranges))
	for i, r := range ranges {
		shape[i] = r.Len()
	}
	return shape, nil
}

// MaxChunkShape returns, per axis, the largest chunk length present in the
// grid — an upper bound on any single chunk's extent, used by memory
// projection which must be conservative before any particular key is known.
func (g Grid) MaxChunkShape() []int64 {
	shape := make([]int64, len(g.Lengths))
	for axis, ls := range g.Lengths {
		var max int64
		for _, l := range ls {
			if l > max {
				max = l
			}
		}
		shape[axis] = max
	}
	return shape
}
