package plan

import "fmt"

// ErrIndexMismatch is returned when two inputs sharing a label disagree on
// the number of blocks along that axis, or when new_axes and an input both
// claim the same label with different lengths.
type ErrIndexMismatch struct {
	Label          Label
	FirstSource    string
	FirstNumBlocks int
	Source         string
	NumBlocks      int
}

func (e *ErrIndexMismatch) Error() string {
	return fmt.Sprintf("plan: label %q has %d blocks from %q but %d blocks from %q",
		e.Label, e.FirstNumBlocks, e.FirstSource, e.NumBlocks, e.Source)
}

// ErrUnknownNewAxis is returned when the output carries a label that no
// input provides and that is not declared in new_axes.
type ErrUnknownNewAxis struct {
	Label Label
}

func (e *ErrUnknownNewAxis) Error() string {
	return fmt.Sprintf("plan: output label %q has no input and is not in new_axes", e.Label)
}

// ErrMissingNumBlocks is returned when an input array's NumBlocks does not
// describe every one of its Labels.
type ErrMissingNumBlocks struct {
	Source string
}

func (e *ErrMissingNumBlocks) Error() string {
	return fmt.Sprintf("plan: input %q is missing per-axis numblocks", e.Source)
}

// ErrKeyShape is returned when an output key's coordinate count does not
// match the planner's out_ind length.
type ErrKeyShape struct {
	Tag      string
	Got      int
	Expected int
}

func (e *ErrKeyShape) Error() string {
	return fmt.Sprintf("plan: key %q has %d coords, expected %d", e.Tag, e.Got, e.Expected)
}
