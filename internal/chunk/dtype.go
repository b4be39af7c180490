// Package chunk describes chunked N-dimensional arrays: their shape,
// element type, and chunk grid, independent of any backing store.
package chunk

import "fmt"

// DType is the kind of element stored in an array, carrying its byte width.
type DType struct {
	name string
	size int64
}

// Byte widths mirror the common fixed-width numeric kinds a kernel library
// would expose; new kinds can be registered with NewDType.
var (
	Int8    = DType{name: "int8", size: 1}
	Int16   = DType{name: "int16", size: 2}
	Int32   = DType{name: "int32", size: 4}
	Int64   = DType{name: "int64", size: 8}
	Float32 = DType{name: "float32", size: 4}
	Float64 = DType{name: "float64", size: 8}
	Bool    = DType{name: "bool", size: 1}
)

// NewDType defines a dtype with a custom name and byte width, for kernel
// libraries that carry element kinds this package does not predefine.
func NewDType(name string, size int64) DType {
	return DType{name: name, size: size}
}

// ElementSize returns the byte width of one element of this dtype.
func (d DType) ElementSize() int64 {
	return d.size
}

// String returns the dtype's name.
func (d DType) String() string {
	return d.name
}

// Name returns the dtype's name.
func (d DType) Name() string {
	return d.name
}

func (d DType) validate() error {
	if d.size <= 0 {
		return fmt.Errorf("chunk: dtype %q has non-positive element size %d", d.name, d.size)
	}
	return nil
}
