// Package memory implements the pure memory-projection arithmetic used to
// admit or reject a blockwise plan before any task runs. It performs no
// allocation of its own; it only computes the bytes a worker is expected to
// touch while materializing one output chunk.
package memory

import "github.com/cubedgo/cubed/internal/chunk"

// ChunkBytes returns the worst-case byte size of a chunk shaped
// chunkShape, given the element size of dtype.
func ChunkBytes(dtype chunk.DType, chunkShape []int64) int64 {
	size := dtype.ElementSize()
	for _, d := range chunkShape {
		size *= d
	}
	return size
}

// Projection is the result of a memory projection: a conservative estimate
// of how many bytes one task is expected to hold at its peak.
type Projection struct {
	InputBytes  int64
	OutputBytes int64
	Reserved    int64
	Extra       int64
	Total       int64
}

// Project computes the projected peak memory of one task. A task is
// assumed to simultaneously hold two in-flight copies of each input block (the read and any retry/decode
// buffer) and two copies of each output block (the write buffer and
// whatever the kernel produced before it was handed to the store), plus a
// fixed reserved amount and any extra the caller declares (e.g. kernel
// working memory that scales with block size but isn't itself a stored
// block).
func Project(inputChunkBytes []int64, outputChunkBytes []int64, reserved, extra int64) Projection {
	var in, out int64
	for _, b := range inputChunkBytes {
		in += 2 * b
	}
	for _, b := range outputChunkBytes {
		out += 2 * b
	}
	p := Projection{InputBytes: in, OutputBytes: out, Reserved: reserved, Extra: extra}
	p.Total = in + out + reserved + extra
	return p
}
