package chunk

import "testing"

func TestUniformGridRaggedLastChunk(t *testing.T) {
	g, err := UniformGrid([]int64{7}, []int64{3})
	if err != nil {
		t.Fatalf("UniformGrid: %v", err)
	}
	if g.NumBlocks(0) != 3 {
		t.Fatalf("NumBlocks = %d, want 3", g.NumBlocks(0))
	}
	want := []int64{3, 3, 1}
	for i, l := range g.Lengths[0] {
		if l != want[i] {
			t.Errorf("Lengths[0][%d] = %d, want %d", i, l, want[i])
		}
	}
	ranges, err := g.KeyToSlice([]int64{2})
	if err != nil {
		t.Fatalf("KeyToSlice: %v", err)
	}
	if ranges[0] != (Range{Start: 6, Stop: 7}) {
		t.Errorf("ragged last chunk slice = %+v, want {6 7}", ranges[0])
	}
}

func TestGridKeyToSlice(t *testing.T) {
	g, err := NewGrid([]int64{4, 6}, [][]int64{{2, 2}, {3, 3}})
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	ranges, err := g.KeyToSlice([]int64{1, 0})
	if err != nil {
		t.Fatalf("KeyToSlice: %v", err)
	}
	if ranges[0] != (Range{2, 4}) || ranges[1] != (Range{0, 3}) {
		t.Errorf("ranges = %+v", ranges)
	}
}

func TestGridKeyToSliceOutOfRange(t *testing.T) {
	g, _ := NewGrid([]int64{4}, [][]int64{{2, 2}})
	if _, err := g.KeyToSlice([]int64{5}); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestNewGridRejectsMismatchedSum(t *testing.T) {
	if _, err := NewGrid([]int64{4}, [][]int64{{2, 3}}); err == nil {
		t.Fatal("expected sum-mismatch error")
	}
}

func TestNewGridRejectsNonPositiveLength(t *testing.T) {
	if _, err := NewGrid([]int64{4}, [][]int64{{0, 4}}); err == nil {
		t.Fatal("expected non-positive length error")
	}
}

func TestMaxChunkShape(t *testing.T) {
	g, _ := UniformGrid([]int64{7}, []int64{3})
	max := g.MaxChunkShape()
	if max[0] != 3 {
		t.Errorf("MaxChunkShape = %v, want [3]", max)
	}
}
