package shapeinference

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/onnx-shapes/graph"
)

var reduceOps = []string{"ReduceSum", "ReduceMean", "ReduceMax", "ReduceMin", "ReduceProd", "ReduceL1", "ReduceL2",
	"ReduceLogSum", "ReduceLogSumExp", "ReduceSumSquare"}

func registerReductions(r *Registry) {
	r.registerAll(reduceRule, reduceOps...)
	r.registerAll(argReduceRule, "ArgMax", "ArgMin")
	r.Register("TopK", topKRule)
}

// reduceShape removes (or sets to 1, if keepDims) the given axes. axes must be normalized.
func reduceShape(shape graph.Shape, axes []int, keepDims bool) graph.Shape {
	reduced := make(map[int]bool, len(axes))
	for _, axis := range axes {
		reduced[axis] = true
	}
	var dims []graph.Dim
	for axis, d := range shape.Dims() {
		switch {
		case !reduced[axis]:
			dims = append(dims, d)
		case keepDims:
			dims = append(dims, graph.Concrete(1))
		}
	}
	return graph.MakeShape(dims...)
}

// reduceRule handles the Reduce* family: axes come from the second operand (or the "axes" attribute in older
// opsets). With no axes all are reduced, unless noop_with_empty_axes is set.
func reduceRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	keepDims := op.BoolAttrOr("keepdims", true)
	output := graph.Tensor{DType: x.DType, Shape: graph.Unranked()}
	axes, known := op.IntsOperandOr(1, "axes", nil)
	if !x.Shape.HasRank() {
		return results(output)
	}
	rank := x.Shape.Rank()
	if !known {
		if keepDims {
			output.Shape = graph.UnknownDims(rank)
		}
		return results(output)
	}
	if len(axes) == 0 {
		if op.BoolAttrOr("noop_with_empty_axes", false) {
			return results(graph.Tensor{DType: x.DType, Shape: x.Shape, Value: x.Value.Clone()})
		}
		axes = make([]int, rank)
		for ii := range axes {
			axes[ii] = ii
		}
	}
	axes = op.normalizeAxes(axes, rank)
	output.Shape = reduceShape(x.Shape, axes, keepDims)
	if len(axes) == rank {
		output.Value = foldReduction(op.Type, x)
	}
	return results(output)
}

// foldReduction reduces all elements of an integer value, for the reductions used in shape computations.
func foldReduction(opType string, x *graph.Tensor) *graph.Constant {
	values, ok := intValue(x)
	if !ok || len(values) == 0 {
		return nil
	}
	result := values[0]
	for _, v := range values[1:] {
		switch opType {
		case "ReduceSum":
			result += v
		case "ReduceProd":
			result *= v
		case "ReduceMax":
			result = max(result, v)
		case "ReduceMin":
			result = min(result, v)
		default:
			return nil
		}
	}
	switch opType {
	case "ReduceSum", "ReduceProd", "ReduceMax", "ReduceMin":
		return graph.IntConstant(result)
	}
	return nil
}

// argReduceRule: ArgMax/ArgMin reduce a single "axis", outputting Int64 indices.
func argReduceRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	output := graph.Tensor{DType: dtypes.Int64, Shape: graph.Unranked()}
	if !x.Shape.HasRank() {
		return results(output)
	}
	axis := op.normalizeAxis(op.IntAttrOr("axis", 0), x.Shape.Rank())
	output.Shape = reduceShape(x.Shape, []int{axis}, op.BoolAttrOr("keepdims", true))
	return results(output)
}

// topKRule: both outputs (values and Int64 indices) have the input shape, with "axis" set to K (the value of the
// second operand).
func topKRule(op *Op) ([]graph.Tensor, error) {
	x, kT := op.mustInput(0), op.Input(1)
	values := graph.Tensor{DType: x.DType, Shape: graph.Unranked()}
	indices := graph.Tensor{DType: dtypes.Int64, Shape: graph.Unranked()}
	if !x.Shape.HasRank() {
		return results(values, indices)
	}
	axis := op.normalizeAxis(op.IntAttrOr("axis", -1), x.Shape.Rank())
	k := graph.Unknown()
	if kT == nil {
		// Opset 1: K is an attribute.
		kAttr := op.MustIntAttr("k")
		if kAttr < 0 {
			return nil, op.UnsupportedAttributef("invalid k=%d", kAttr)
		}
		k = graph.Concrete(kAttr)
	} else if v, ok := intValue(kT); ok && len(v) == 1 {
		if v[0] < 0 {
			return nil, op.UnsupportedAttributef("invalid K=%d given as operand", v[0])
		}
		k = graph.Concrete(int(v[0]))
	}
	if kSize, known := k.Size(); known {
		if size, ok := x.Shape.Dim(axis).Size(); ok && kSize > size {
			return nil, op.Incompatiblef("k=%d is larger than axis #%d of %s", kSize, axis, x.Shape)
		}
	}
	values.Shape = x.Shape.WithDim(axis, k)
	indices.Shape = values.Shape
	return results(values, indices)
}
