package plan

import (
	"github.com/cubedgo/cubed/internal/chunk"
)

// BlockFunction is the pure map from an output chunk key to the ordered
// argument-address structures it depends on, one entry per input argument.
type BlockFunction func(key TaggedKey) ([]Arg, error)

// TaggedKey is an output chunk key carrying the array-name tag ("out_key"
// = array-name tag + N coordinates). The runtime's mappable iterator only
// ever deals in the plain coordinate sequence (chunk.Key);
// internal/task.Apply attaches the tag before resolving it through the
// BlockFunction.
type TaggedKey struct {
	Tag    string
	Coords chunk.Key
}

// Planner builds a BlockFunction from indexed tensor-expression labels.
type Planner struct {
	outInd      []Label
	dims        map[Label]int
	dummyLabels []Label
	inputs      []InputSpec
}

// NewPlanner validates the label algebra and returns a Planner ready to
// produce a BlockFunction. inputs must be given in argument order; an
// InputSpec with nil Labels is a literal (non-array) pass-through argument.
func NewPlanner(outInd []Label, inputs []InputSpec, newAxes map[Label]int) (*Planner, error) {
	dims := make(map[Label]int)
	var dimSource = make(map[Label]string)

	for _, in := range inputs {
		if in.isLiteral() {
			continue
		}
		if len(in.NumBlocks) != len(in.Labels) {
			return nil, &ErrMissingNumBlocks{Source: in.Name}
		}
		for i, lbl := range in.Labels {
			nb := in.NumBlocks[i]
			if existing, ok := dims[lbl]; ok {
				if existing != nb {
					return nil, &ErrIndexMismatch{
						Label: lbl, FirstSource: dimSource[lbl], FirstNumBlocks: existing,
						Source: in.Name, NumBlocks: nb,
					}
				}
				continue
			}
			dims[lbl] = nb
			dimSource[lbl] = in.Name
		}
	}

	for lbl, length := range newAxes {
		if existing, ok := dims[lbl]; ok {
			if existing != length {
				return nil, &ErrIndexMismatch{
					Label: lbl, FirstSource: dimSource[lbl], FirstNumBlocks: existing,
					Source: "new_axes", NumBlocks: length,
				}
			}
			continue
		}
		dims[lbl] = length
		dimSource[lbl] = "new_axes"
	}

	for _, lbl := range outInd {
		if _, ok := dims[lbl]; !ok {
			return nil, &ErrUnknownNewAxis{Label: lbl}
		}
	}

	outSet := make(map[Label]bool, len(outInd))
	for _, lbl := range outInd {
		outSet[lbl] = true
	}
	var dummyLabels []Label
	seenDummy := make(map[Label]bool)
	for _, in := range inputs {
		if in.isLiteral() {
			continue
		}
		for _, lbl := range in.Labels {
			if outSet[lbl] || seenDummy[lbl] {
				continue
			}
			seenDummy[lbl] = true
			dummyLabels = append(dummyLabels, lbl)
		}
	}

	return &Planner{
		outInd:      append([]Label(nil), outInd...),
		dims:        dims,
		dummyLabels: dummyLabels,
		inputs:      append([]InputSpec(nil), inputs...),
	}, nil
}

// NumOutputBlocks returns the output's per-axis block counts, in out_ind
// order.
func (p *Planner) NumOutputBlocks() []int {
	nb := make([]int, len(p.outInd))
	for i, lbl := range p.outInd {
		nb[i] = p.dims[lbl]
	}
	return nb
}

// NumInputBlocks returns, for each input in argument order, the fan-in
// (product of that input's own contraction-axis block counts); literals
// and pointwise array inputs report 1.
func (p *Planner) NumInputBlocks() []int {
	out := make([]int, len(p.inputs))
	for i, in := range p.inputs {
		out[i] = 1
		if in.isLiteral() {
			continue
		}
		for _, lbl := range in.Labels {
			if p.isDummy(lbl) {
				out[i] *= p.dims[lbl]
			}
		}
	}
	return out
}

// Dim returns the block count for lbl and whether it is known to the plan.
func (p *Planner) Dim(lbl Label) (int, bool) {
	n, ok := p.dims[lbl]
	return n, ok
}

// Inputs returns the input specs the planner was built from, in argument
// order.
func (p *Planner) Inputs() []InputSpec {
	return append([]InputSpec(nil), p.inputs...)
}

// OutInd returns the output index labels, in output-axis order.
func (p *Planner) OutInd() []Label {
	return append([]Label(nil), p.outInd...)
}

func (p *Planner) isDummy(lbl Label) bool {
	for _, d := range p.dummyLabels {
		if d == lbl {
			return true
		}
	}
	return false
}

// ownDummyLabels returns the subset of dummyLabels that in carries, in
// global dummy order (outer list = outermost contraction axis, consistent
// across every input that shares a contraction axis).
func (p *Planner) ownDummyLabels(in InputSpec) []Label {
	labelSet := make(map[Label]bool, len(in.Labels))
	for _, l := range in.Labels {
		labelSet[l] = true
	}
	var own []Label
	for _, d := range p.dummyLabels {
		if labelSet[d] {
			own = append(own, d)
		}
	}
	return own
}

// BlockFunction returns the pure map from output key to per-input argument
// structures.
func (p *Planner) BlockFunction() BlockFunction {
	return func(key TaggedKey) ([]Arg, error) {
		if len(key.Coords) != len(p.outInd) {
			return nil, &ErrKeyShape{Tag: key.Tag, Got: len(key.Coords), Expected: len(p.outInd)}
		}
		outCoords := make(map[Label]int64, len(p.outInd))
		for i, lbl := range p.outInd {
			outCoords[lbl] = key.Coords[i]
		}

		args := make([]Arg, len(p.inputs))
		for i, in := range p.inputs {
			if in.isLiteral() {
				args[i] = Literal{Value: in.Literal}
				continue
			}
			own := p.ownDummyLabels(in)
			leafFn := func(coords map[Label]int64) Arg {
				c := make(chunk.Key, len(in.Labels))
				for j, lbl := range in.Labels {
					c[j] = coords[lbl]
				}
				return Leaf{Name: in.Name, Coords: c}
			}
			args[i] = buildNest(own, 0, p.dims, outCoords, leafFn)
		}
		return args, nil
	}
}

// buildNest recursively enumerates the Cartesian product of own's
// contraction-axis block indices, depth-first with the first label in own
// as the outermost level. depth 0 is fully materialized; deeper levels are
// lazily generated to bound fan-in memory. coordsSoFar is never mutated —
// each recursive branch gets its own snapshot so a deferred (lazy) Next()
// call always sees the coordinates that were current when that branch was
// created.
func buildNest(own []Label, depth int, dims map[Label]int, coordsSoFar map[Label]int64, leafFn func(map[Label]int64) Arg) Arg {
	if depth == len(own) {
		return leafFn(coordsSoFar)
	}
	label := own[depth]
	n := int64(dims[label])

	if depth == 0 {
		items := make([]Arg, n)
		for idx := int64(0); idx < n; idx++ {
			items[idx] = buildNest(own, depth+1, dims, withCoord(coordsSoFar, label, idx), leafFn)
		}
		return Nest{Seq: NewSliceArgSeq(items)}
	}

	var idx int64
	return Nest{Seq: ArgSeqFunc(func() (Arg, bool) {
		if idx >= n {
			return nil, false
		}
		a := buildNest(own, depth+1, dims, withCoord(coordsSoFar, label, idx), leafFn)
		idx++
		return a, true
	})}
}

func withCoord(src map[Label]int64, lbl Label, v int64) map[Label]int64 {
	out := make(map[Label]int64, len(src)+1)
	for k, val := range src {
		out[k] = val
	}
	out[lbl] = v
	return out
}
