package shapeinference

import (
	"math"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/onnx-shapes/graph"
)

func registerConstants(r *Registry) {
	r.Register("Shape", shapeRule).
		Register("Size", sizeRule).
		Register("Constant", constantRule).
		Register("ConstantOfShape", constantOfShapeRule).
		Register("Range", rangeRule).
		Register("EyeLike", eyeLikeRule)
}

// shapeRule outputs the 1D Int64 shape of its input, optionally sliced by "start" and "end".
// Its value is known if the selected dimensions are all concrete.
func shapeRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	output := graph.Tensor{DType: dtypes.Int64, Shape: graph.UnknownDims(1)}
	if !x.Shape.HasRank() {
		return results(output)
	}
	rank := x.Shape.Rank()
	start, end := op.IntAttrOr("start", 0), op.IntAttrOr("end", rank)
	start, end = clampSlice(start, end, 1, rank)
	dims := x.Shape.Dims()[start:max(start, end)]
	output.Shape = graph.Sizes(len(dims))
	values := make([]int64, len(dims))
	for ii, d := range dims {
		size, ok := d.Size()
		if !ok {
			return results(output)
		}
		values[ii] = int64(size)
	}
	output.Value = &graph.Constant{Ints: values}
	return results(output)
}

// sizeRule outputs the Int64 scalar number of elements of its input.
func sizeRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	output := graph.Tensor{DType: dtypes.Int64, Shape: graph.MakeShape()}
	if n, ok := x.Shape.NumElements(); ok {
		output.Value = graph.IntConstant(int64(n))
	}
	return results(output)
}

// constantRule takes the output from whichever of the value attributes is set.
func constantRule(op *Op) ([]graph.Tensor, error) {
	if t := op.TensorAttr("value"); t != nil {
		return results(graph.Tensor{DType: t.DType, Shape: t.Shape, Value: t.Value.Clone()})
	}
	switch {
	case op.HasAttr("value_int"):
		return results(graph.Tensor{DType: dtypes.Int64, Shape: graph.MakeShape(),
			Value: graph.IntConstant(int64(op.MustIntAttr("value_int")))})
	case op.HasAttr("value_ints"):
		ints := op.IntsAttrOr("value_ints", nil)
		values := make([]int64, len(ints))
		for ii, v := range ints {
			values[ii] = int64(v)
		}
		return results(graph.Tensor{DType: dtypes.Int64, Shape: graph.Sizes(len(values)), Value: &graph.Constant{Ints: values}})
	case op.HasAttr("value_float"):
		return results(graph.Tensor{DType: dtypes.Float32, Shape: graph.MakeShape(),
			Value: &graph.Constant{Floats: []float64{op.FloatAttrOr("value_float", 0)}}})
	case op.HasAttr("value_floats"):
		floats := op.FloatsAttrOr("value_floats", nil)
		return results(graph.Tensor{DType: dtypes.Float32, Shape: graph.Sizes(len(floats)),
			Value: &graph.Constant{Floats: append([]float64(nil), floats...)}})
	case op.HasAttr("value_string"):
		return results(graph.Tensor{Shape: graph.MakeShape()})
	case op.HasAttr("value_strings"):
		attr, _ := op.attr("value_strings", true)
		op.assertAttrKind("value_strings", attr, graph.AttrStrings)
		return results(graph.Tensor{Shape: graph.Sizes(len(attr.Strings))})
	case op.HasAttr("sparse_value"):
		return nil, op.UnsupportedAttributef("sparse constants are not supported")
	}
	return nil, op.UnsupportedAttributef("no value attribute set")
}

// constantOfShapeRule creates a tensor with the shape given by the value of its input, filled with the scalar in
// the "value" attribute (a float32 zero by default).
func constantOfShapeRule(op *Op) ([]graph.Tensor, error) {
	shapeT := op.mustInput(0)
	fill := &graph.Tensor{DType: dtypes.Float32, Shape: graph.Sizes(1), Value: &graph.Constant{Floats: []float64{0}}}
	if t := op.TensorAttr("value"); t != nil {
		fill = t
	}
	output := graph.Tensor{DType: fill.DType, Shape: graph.Unranked()}
	dims, ok := shapeValue(shapeT)
	if !ok {
		if n, known := op.operandLength(0); known {
			output.Shape = graph.UnknownDims(n)
		}
		return results(output)
	}
	for _, d := range dims {
		if d < 0 {
			return nil, op.UnsupportedAttributef("invalid shape %v", dims)
		}
	}
	output.Shape = graph.Sizes(dims...)
	if n, ok := trackable(output.Shape); ok && fill.Value != nil && fill.Value.Len() == 1 {
		if fill.Value.Floats != nil {
			output.Value = &graph.Constant{Floats: repeat(fill.Value.Floats[0], n)}
		} else {
			output.Value = &graph.Constant{Ints: repeat(fill.Value.Ints[0], n)}
		}
	}
	return results(output)
}

func repeat[T any](value T, n int) []T {
	s := make([]T, n)
	for ii := range s {
		s[ii] = value
	}
	return s
}

// rangeRule: 1D of length max(ceil((limit - start) / delta), 0), known if the three scalar operands are.
func rangeRule(op *Op) ([]graph.Tensor, error) {
	start, limit, delta := op.mustInput(0), op.mustInput(1), op.mustInput(2)
	dtype, err := op.commonDType(start, limit, delta)
	if err != nil {
		return nil, err
	}
	output := graph.Tensor{DType: dtype, Shape: graph.UnknownDims(1)}
	for _, t := range []*graph.Tensor{start, limit, delta} {
		if t.Value == nil || t.Value.Len() != 1 {
			return results(output)
		}
	}
	s, l, d := start.Value.AsFloats()[0], limit.Value.AsFloats()[0], delta.Value.AsFloats()[0]
	if d == 0 {
		return nil, op.UnsupportedAttributef("delta can't be 0")
	}
	n := max(int(math.Ceil((l-s)/d)), 0)
	output.Shape = graph.Sizes(n)
	if _, ok := trackable(output.Shape); ok && start.Value.Floats == nil && limit.Value.Floats == nil && delta.Value.Floats == nil {
		values := make([]int64, n)
		for ii := range values {
			values[ii] = start.Value.Ints[0] + int64(ii)*delta.Value.Ints[0]
		}
		output.Value = &graph.Constant{Ints: values}
	}
	return results(output)
}

// eyeLikeRule: like the 2D input, with the dtype given by "dtype" if set.
func eyeLikeRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	if x.Shape.HasRank() && x.Shape.Rank() != 2 {
		return nil, op.Incompatiblef("input must be 2D, got %s", x.Shape)
	}
	dtype := x.DType
	if op.HasAttr("dtype") {
		var err error
		dtype, err = graph.DTypeForONNX(int32(op.MustIntAttr("dtype")))
		if err != nil {
			return nil, op.UnsupportedAttributef("attribute \"dtype\": %v", err)
		}
	}
	shape := graph.UnknownDims(2)
	if x.Shape.HasRank() {
		shape = x.Shape
	}
	return results(graph.Tensor{DType: dtype, Shape: shape})
}
