package shapeinference

import (
	"github.com/gomlx/onnx-shapes/graph"
	"github.com/pkg/errors"
)

// BroadcastDim combines two aligned dimensions with NumPy broadcasting, extended with unknown dimensions:
//
//   - equal concrete sizes, or either side concrete 1: the other side;
//   - unknown vs concrete n != 1: n (the unknown must be 1 or n at runtime);
//   - unknown vs concrete 1: unknown;
//   - unknown vs unknown: unknown, keeping the symbol only if both share it.
//
// It returns false if both sides are concrete, different and not 1.
func BroadcastDim(a, b graph.Dim) (graph.Dim, bool) {
	aSize, aKnown := a.Size()
	bSize, bKnown := b.Size()
	switch {
	case aKnown && bKnown:
		switch {
		case aSize == bSize, bSize == 1:
			return a, true
		case aSize == 1:
			return b, true
		default:
			return a, false
		}
	case aKnown:
		if aSize == 1 {
			return b, true
		}
		return a, true
	case bKnown:
		if bSize == 1 {
			return a, true
		}
		return b, true
	case a.SameValue(b):
		return a, true
	default:
		return graph.Unknown(), true
	}
}

// Broadcast returns the multidirectional (NumPy style) broadcast of the given shapes.
//
// Shapes are aligned to the right, the shorter ones padded with 1 on the left. If any shape is unranked the result
// is unranked, but concrete conflicts among the ranked ones are still reported.
func Broadcast(shapes ...graph.Shape) (graph.Shape, error) {
	rank := 0
	allRanked := true
	for _, s := range shapes {
		if !s.HasRank() {
			allRanked = false
			continue
		}
		rank = max(rank, s.Rank())
	}
	dims := make([]graph.Dim, rank)
	for ii := range dims {
		dims[ii] = graph.Concrete(1)
	}
	for _, s := range shapes {
		if !s.HasRank() {
			continue
		}
		offset := rank - s.Rank()
		for axis := range s.Rank() {
			d, ok := BroadcastDim(dims[offset+axis], s.Dim(axis))
			if !ok {
				return graph.Shape{}, errors.Errorf("cannot broadcast %s: dimension %s of axis #%d conflicts with %s",
					s, s.Dim(axis), axis, dims[offset+axis])
			}
			dims[offset+axis] = d
		}
	}
	if !allRanked {
		return graph.Unranked(), nil
	}
	return graph.MakeShape(dims...), nil
}

// BroadcastTo checks that shape can be unidirectionally broadcast to target. Used by rules like Expand where one
// side's shape drives the result.
func BroadcastTo(shape, target graph.Shape) error {
	if !shape.HasRank() || !target.HasRank() {
		return nil
	}
	if shape.Rank() > target.Rank() {
		return errors.Errorf("cannot broadcast %s to lower rank %s", shape, target)
	}
	offset := target.Rank() - shape.Rank()
	for axis := range shape.Rank() {
		src, dst := shape.Dim(axis), target.Dim(offset+axis)
		srcSize, srcKnown := src.Size()
		dstSize, dstKnown := dst.Size()
		if srcKnown && dstKnown && srcSize != 1 && srcSize != dstSize {
			return errors.Errorf("cannot broadcast %s to %s: axis #%d has %d, target has %d", shape, target, axis, srcSize, dstSize)
		}
	}
	return nil
}
