package shapeinference

import (
	"slices"

	"github.com/gomlx/onnx-shapes/graph"
)

func registerShapeOps(r *Registry) {
	r.Register("Reshape", reshapeRule).
		Register("Expand", expandRule).
		Register("Flatten", flattenRule).
		Register("Squeeze", squeezeRule).
		Register("Unsqueeze", unsqueezeRule).
		Register("Transpose", transposeRule).
		Register("Tile", tileRule).
		Register("Pad", padRule).
		Register("DepthToSpace", depthToSpaceRule).
		Register("SpaceToDepth", spaceToDepthRule)
	registerIndexing(r)
	registerConstants(r)
}

// dimsProduct returns the product of the dimensions, if all are known.
func dimsProduct(dims []graph.Dim) (int, bool) {
	product := 1
	for _, d := range dims {
		size, ok := d.Size()
		if !ok {
			return 0, false
		}
		product *= size
	}
	return product, true
}

// sameValueAs returns the input's value for rules that only change the shape of a tensor (Reshape, Squeeze, ...),
// if the new shape is fully known.
func sameValueAs(x *graph.Tensor, shape graph.Shape) *graph.Constant {
	if x.Value == nil {
		return nil
	}
	if n, ok := shape.NumElements(); !ok || n != x.Value.Len() {
		return nil
	}
	return x.Value.Clone()
}

// reshapeRule takes the target shape from the value of the second operand:
//   - 0 copies the corresponding input dimension, unless allowzero=1;
//   - at most one -1 is inferred from the total number of elements.
//
// If the target value is unknown but its length is, the output has that rank with unknown dimensions.
func reshapeRule(op *Op) ([]graph.Tensor, error) {
	data, target := op.mustInput(0), op.mustInput(1)
	output := graph.Tensor{DType: data.DType}
	targetDims, ok := shapeValue(target)
	if !ok {
		output.Shape = graph.Unranked()
		if target.Shape.HasRank() && target.Shape.Rank() == 1 {
			if n, known := target.Shape.Dim(0).Size(); known {
				output.Shape = graph.UnknownDims(n)
			}
		}
		return results(output)
	}

	allowZero := op.BoolAttrOr("allowzero", false)
	dims := make([]graph.Dim, len(targetDims))
	inferredAxis := -1
	for axis, value := range targetDims {
		switch {
		case value == -1:
			if inferredAxis >= 0 {
				return nil, op.UnsupportedAttributef("target shape %v has more than one -1", targetDims)
			}
			inferredAxis = axis
			dims[axis] = graph.Unknown()
		case value == 0 && !allowZero:
			switch {
			case !data.Shape.HasRank():
				dims[axis] = graph.Unknown()
			case axis < data.Shape.Rank():
				dims[axis] = data.Shape.Dim(axis)
			default:
				return nil, op.Incompatiblef("target shape %v copies axis #%d, but input has shape %s", targetDims, axis, data.Shape)
			}
		case value < 0:
			return nil, op.UnsupportedAttributef("invalid target shape %v", targetDims)
		default:
			dims[axis] = graph.Concrete(value)
		}
	}

	total, totalKnown := data.Shape.NumElements()
	if inferredAxis >= 0 {
		others := slices.Delete(slices.Clone(dims), inferredAxis, inferredAxis+1)
		if product, ok := dimsProduct(others); ok && totalKnown {
			if product == 0 || total%product != 0 {
				return nil, op.Incompatiblef("cannot reshape %s (%d elements) to %v", data.Shape, total, targetDims)
			}
			dims[inferredAxis] = graph.Concrete(total / product)
		} else if data.Shape.HasRank() && data.Shape.Rank() == len(dims) {
			// Same rank and all other dimensions equal, e.g. [batch, 12, 64] to [-1, 12, 64].
			if equalExcept(data.Shape.Dims(), dims, inferredAxis) {
				dims[inferredAxis] = data.Shape.Dim(inferredAxis)
			}
		}
	} else if product, ok := dimsProduct(dims); ok && totalKnown && product != total {
		return nil, op.Incompatiblef("cannot reshape %s (%d elements) to %v (%d elements)", data.Shape, total, targetDims, product)
	}
	output.Shape = graph.MakeShape(dims...)
	output.Value = sameValueAs(data, output.Shape)
	return results(output)
}

// equalExcept returns whether the dimensions are pairwise the same value, except at the given axis.
func equalExcept(a, b []graph.Dim, except int) bool {
	for ii := range a {
		if ii != except && !a[ii].SameValue(b[ii]) {
			return false
		}
	}
	return true
}

// expandRule broadcasts the input against the shape given by the value of the second operand.
func expandRule(op *Op) ([]graph.Tensor, error) {
	x, target := op.mustInput(0), op.mustInput(1)
	targetShape := graph.Unranked()
	if targetDims, ok := shapeValue(target); ok {
		dims := make([]graph.Dim, len(targetDims))
		for ii, d := range targetDims {
			if d < 0 {
				return nil, op.UnsupportedAttributef("invalid target shape %v", targetDims)
			}
			dims[ii] = graph.Concrete(d)
		}
		targetShape = graph.MakeShape(dims...)
	} else if target.Shape.HasRank() && target.Shape.Rank() == 1 {
		if n, known := target.Shape.Dim(0).Size(); known {
			targetShape = graph.UnknownDims(n)
		}
	}
	shape, err := Broadcast(x.Shape, targetShape)
	if err != nil {
		return nil, op.Incompatiblef("%v", err)
	}
	return results(graph.Tensor{DType: x.DType, Shape: shape})
}

// flattenRule reshapes to 2D: the product of the dimensions before "axis", and the product of the rest.
func flattenRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	output := graph.Tensor{DType: x.DType, Shape: graph.UnknownDims(2)}
	if !x.Shape.HasRank() {
		return results(output)
	}
	rank := x.Shape.Rank()
	axis := op.IntAttrOr("axis", 1)
	if axis < -rank || axis > rank {
		return nil, op.UnsupportedAttributef("axis %d out of range for rank %d", axis, rank)
	}
	if axis < 0 {
		axis += rank
	}
	dims := x.Shape.Dims()
	outer, inner := graph.Unknown(), graph.Unknown()
	if n, ok := dimsProduct(dims[:axis]); ok {
		outer = graph.Concrete(n)
	} else if axis == 1 {
		outer = dims[0]
	}
	if n, ok := dimsProduct(dims[axis:]); ok {
		inner = graph.Concrete(n)
	} else if axis == rank-1 {
		inner = dims[rank-1]
	}
	output.Shape = graph.MakeShape(outer, inner)
	output.Value = sameValueAs(x, output.Shape)
	return results(output)
}

// squeezeRule removes the given axes (from the operand, or the attribute in older opsets), which must be 1.
// Without axes, it removes all dimensions equal to 1: if any dimension is unknown the rank can't be known.
func squeezeRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	output := graph.Tensor{DType: x.DType, Shape: graph.Unranked()}
	axes, known := op.IntsOperandOr(1, "axes", nil)
	if !known || !x.Shape.HasRank() {
		return results(output)
	}
	dims := x.Shape.Dims()
	var kept []graph.Dim
	if axes == nil {
		for _, d := range dims {
			if !d.IsKnown() {
				return results(output)
			}
			if !d.Is(1) {
				kept = append(kept, d)
			}
		}
	} else {
		remove := op.normalizeAxes(axes, len(dims))
		for axis, d := range dims {
			if !slices.Contains(remove, axis) {
				kept = append(kept, d)
				continue
			}
			if d.IsKnown() && !d.Is(1) {
				return nil, op.Incompatiblef("cannot squeeze axis #%d of shape %s", axis, x.Shape)
			}
		}
	}
	output.Shape = graph.MakeShape(kept...)
	output.Value = sameValueAs(x, output.Shape)
	return results(output)
}

// unsqueezeRule inserts dimensions of size 1 at the given axes (of the output).
func unsqueezeRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	output := graph.Tensor{DType: x.DType, Shape: graph.Unranked()}
	axes, known := op.IntsOperandOr(1, "axes", nil)
	if !known {
		return results(output)
	}
	if axes == nil {
		return nil, op.UnsupportedAttributef("axes not given")
	}
	if !x.Shape.HasRank() {
		return results(output)
	}
	rank := x.Shape.Rank() + len(axes)
	inserted := op.normalizeAxes(axes, rank)
	dims := make([]graph.Dim, 0, rank)
	src := x.Shape.Dims()
	for axis := range rank {
		if slices.Contains(inserted, axis) {
			dims = append(dims, graph.Concrete(1))
		} else {
			dims = append(dims, src[0])
			src = src[1:]
		}
	}
	output.Shape = graph.MakeShape(dims...)
	output.Value = sameValueAs(x, output.Shape)
	return results(output)
}

// transposeRule permutes the axes by "perm", reversing them by default.
func transposeRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	perm := op.IntsAttrOr("perm", nil)
	output := graph.Tensor{DType: x.DType, Shape: graph.Unranked()}
	if !x.Shape.HasRank() {
		if perm != nil {
			output.Shape = graph.UnknownDims(len(perm))
		}
		return results(output)
	}
	rank := x.Shape.Rank()
	if perm == nil {
		perm = make([]int, rank)
		for ii := range perm {
			perm[ii] = rank - 1 - ii
		}
	}
	if len(perm) != rank {
		return nil, op.Incompatiblef("perm %v has %d axes, but input shape %s has rank %d", perm, len(perm), x.Shape, rank)
	}
	perm = op.normalizeAxes(perm, rank)
	dims := make([]graph.Dim, rank)
	for ii, axis := range perm {
		dims[ii] = x.Shape.Dim(axis)
	}
	output.Shape = graph.MakeShape(dims...)
	if rank <= 1 {
		output.Value = sameValueAs(x, output.Shape)
	}
	return results(output)
}

// tileRule multiplies each dimension by the corresponding entry of the "repeats" operand.
func tileRule(op *Op) ([]graph.Tensor, error) {
	x, repeatsT := op.mustInput(0), op.mustInput(1)
	output := graph.Tensor{DType: x.DType, Shape: graph.Unranked()}
	if !x.Shape.HasRank() {
		return results(output)
	}
	rank := x.Shape.Rank()
	repeats, ok := shapeValue(repeatsT)
	if !ok {
		output.Shape = graph.UnknownDims(rank)
		return results(output)
	}
	if len(repeats) != rank {
		return nil, op.Incompatiblef("repeats %v must have one entry per axis of %s", repeats, x.Shape)
	}
	dims := x.Shape.Dims()
	for axis, r := range repeats {
		if r < 0 {
			return nil, op.UnsupportedAttributef("negative repeats %v", repeats)
		}
		if size, known := dims[axis].Size(); known {
			dims[axis] = graph.Concrete(size * r)
		} else if r == 0 {
			dims[axis] = graph.Concrete(0)
		} else if r != 1 {
			dims[axis] = graph.Unknown()
		}
	}
	output.Shape = graph.MakeShape(dims...)
	return results(output)
}

// padRule adds the begin and end paddings (given as [x1_begin, x2_begin, ..., x1_end, x2_end, ...]) to each
// padded axis. Negative paddings crop.
func padRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	output := graph.Tensor{DType: x.DType, Shape: graph.Unranked()}
	if !x.Shape.HasRank() {
		return results(output)
	}
	rank := x.Shape.Rank()
	pads, known := op.IntsOperandOr(1, "pads", nil)
	axes, axesKnown := op.IntsOperandOr(3, "", nil)
	if !known || !axesKnown {
		output.Shape = graph.UnknownDims(rank)
		return results(output)
	}
	if pads == nil {
		return nil, op.UnsupportedAttributef("pads not given")
	}
	if axes == nil {
		axes = make([]int, rank)
		for ii := range axes {
			axes[ii] = ii
		}
	}
	axes = op.normalizeAxes(axes, rank)
	if len(pads) != 2*len(axes) {
		return nil, op.UnsupportedAttributef("pads %v must have 2 entries per padded axis (%d axes)", pads, len(axes))
	}
	dims := x.Shape.Dims()
	for ii, axis := range axes {
		size, ok := dims[axis].Size()
		if !ok {
			if pads[ii] != 0 || pads[ii+len(axes)] != 0 {
				dims[axis] = graph.Unknown()
			}
			continue
		}
		size += pads[ii] + pads[ii+len(axes)]
		if size < 0 {
			return nil, op.Incompatiblef("pads %v crop axis #%d of %s below 0", pads, axis, x.Shape)
		}
		dims[axis] = graph.Concrete(size)
	}
	output.Shape = graph.MakeShape(dims...)
	return results(output)
}

// depthToSpaceRule: [N, C, H, W] -> [N, C/(b*b), H*b, W*b].
func depthToSpaceRule(op *Op) ([]graph.Tensor, error) {
	return blocksRule(op, false)
}

// spaceToDepthRule: [N, C, H, W] -> [N, C*b*b, H/b, W/b].
func spaceToDepthRule(op *Op) ([]graph.Tensor, error) {
	return blocksRule(op, true)
}

func blocksRule(op *Op, toDepth bool) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	block := op.MustIntAttr("blocksize")
	if block <= 0 {
		return nil, op.UnsupportedAttributef("invalid blocksize %d", block)
	}
	output := graph.Tensor{DType: x.DType, Shape: graph.UnknownDims(4)}
	if !x.Shape.HasRank() {
		return results(output)
	}
	if x.Shape.Rank() != 4 {
		return nil, op.Incompatiblef("input must be of rank 4, got %s", x.Shape)
	}
	scale := func(d graph.Dim, multiply bool, factor int) (graph.Dim, error) {
		size, ok := d.Size()
		if !ok {
			return graph.Unknown(), nil
		}
		if multiply {
			return graph.Concrete(size * factor), nil
		}
		if size%factor != 0 {
			return graph.Dim{}, op.Incompatiblef("dimension %d of %s is not divisible by %d", size, x.Shape, factor)
		}
		return graph.Concrete(size / factor), nil
	}
	dims := x.Shape.Dims()
	var err error
	if dims[1], err = scale(dims[1], toDepth, block*block); err != nil {
		return nil, err
	}
	for axis := 2; axis < 4; axis++ {
		if dims[axis], err = scale(dims[axis], !toDepth, block); err != nil {
			return nil, err
		}
	}
	output.Shape = graph.MakeShape(dims...)
	return results(output)
}
