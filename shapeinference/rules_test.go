package shapeinference

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/onnx-shapes/graph"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tensor creates an input descriptor from a shape string.
func tensor(dtype dtypes.DType, s string) *graph.Tensor {
	return &graph.Tensor{DType: dtype, Shape: shape(s)}
}

// ints creates an Int64 1D input descriptor with known value.
func ints(values ...int64) *graph.Tensor {
	return &graph.Tensor{DType: dtypes.Int64, Shape: graph.Sizes(len(values)), Value: graph.IntConstant(values...)}
}

// scalar creates an Int64 scalar input descriptor with known value.
func scalar(value int64) *graph.Tensor {
	return &graph.Tensor{DType: dtypes.Int64, Shape: graph.MakeShape(), Value: graph.IntConstant(value)}
}

// apply runs the default rule for opType, with one output.
func apply(opType string, attrs graph.Attributes, inputs ...*graph.Tensor) ([]graph.Tensor, error) {
	return applyN(opType, 1, attrs, inputs...)
}

func applyN(opType string, numOutputs int, attrs graph.Attributes, inputs ...*graph.Tensor) ([]graph.Tensor, error) {
	op := &Op{Type: opType, Name: "test_" + opType, Inputs: inputs, Attributes: attrs, NumOutputs: numOutputs}
	return Default().Apply(op)
}

// requireShape applies the rule and checks the shape of the first output.
func requireShape(t *testing.T, want string, opType string, attrs graph.Attributes, inputs ...*graph.Tensor) graph.Tensor {
	t.Helper()
	outputs, err := apply(opType, attrs, inputs...)
	require.NoError(t, err, "%s(%v)", opType, inputs)
	require.NotEmpty(t, outputs)
	assert.Equal(t, want, outputs[0].Shape.String(), "%s(%v)", opType, inputs)
	return outputs[0]
}

func requireKind(t *testing.T, kind ErrorKind, err error) {
	t.Helper()
	require.Error(t, err)
	shapeErr, ok := IsShapeError(err)
	require.True(t, ok, "expected a ShapeError, got %v", err)
	assert.Equal(t, kind, shapeErr.Kind, "error: %v", err)
}

func TestRegistry(t *testing.T) {
	r := Default()
	for _, opType := range []string{"Add", "Relu", "Reshape", "Conv", "MatMul", "Gemm", "Concat", "Gather",
		"ReduceMean", "Shape", "Resize", "LSTM", "Einsum"} {
		_, found := r.Rule(opType)
		assert.True(t, found, "missing rule for %s", opType)
	}

	_, err := r.Apply(&Op{Type: "FancyNewOp", NumOutputs: 1})
	requireKind(t, UnknownOperator, err)
	assert.True(t, errors.Is(err, ErrUnknownOperator))
	assert.False(t, errors.Is(err, ErrIncompatible))

	custom := func(op *Op) ([]graph.Tensor, error) {
		return results(graph.Tensor{DType: dtypes.Float32, Shape: graph.Sizes(7)})
	}
	r.RegisterDomain("com.example", "Fancy", custom)
	_, found := r.Rule("Fancy")
	assert.False(t, found)
	outputs, err := r.Apply(&Op{Type: "Fancy", Domain: "com.example", NumOutputs: 1})
	require.NoError(t, err)
	assert.Equal(t, "[7]", outputs[0].Shape.String())
	assert.Contains(t, r.OpTypes(), "com.example/Fancy")

	_, found = Default().RuleFor("com.example", "Fancy")
	assert.False(t, found, "Default() must return independent registries")
}

func TestApplyCatchesPanics(t *testing.T) {
	r := NewRegistry().Register("Boom", func(op *Op) ([]graph.Tensor, error) {
		var values []int
		_ = values[3]
		return nil, nil
	})
	_, err := r.Apply(&Op{Type: "Boom", Name: "b", NumOutputs: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Boom")

	// Malformed attributes are reported as UnsupportedAttribute.
	_, err = apply("Cast", nil, tensor(dtypes.Float32, "2"))
	requireKind(t, UnsupportedAttribute, err)
	_, err = apply("Cast", graph.Attributes{"to": graph.StringAttr("float")}, tensor(dtypes.Float32, "2"))
	requireKind(t, UnsupportedAttribute, err)
}

func TestElementwise(t *testing.T) {
	f32 := dtypes.Float32
	out := requireShape(t, "[4, 3]", "Add", nil, tensor(f32, "1,3"), tensor(f32, "4,1"))
	assert.Equal(t, f32, out.DType)

	_, err := apply("Add", nil, tensor(f32, "2,3"), tensor(f32, "2,4"))
	requireKind(t, Incompatible, err)
	assert.True(t, errors.Is(err, ErrIncompatible))

	_, err = apply("Mul", nil, tensor(f32, "2"), tensor(dtypes.Int64, "2"))
	requireKind(t, Incompatible, err)

	requireShape(t, "[?, 3]", "Relu", nil, tensor(f32, "?,3"))
	requireShape(t, "[batch, 8]", "Add", nil, tensor(f32, "batch,1"), tensor(f32, "8"))
	requireShape(t, "[*]", "Sub", nil, tensor(f32, "*"), tensor(f32, "8"))
	requireShape(t, "[2, 5]", "Sum", nil, tensor(f32, "2,1"), tensor(f32, "5"), tensor(f32, ""))

	out = requireShape(t, "[2, 3]", "Less", nil, tensor(f32, "2,3"), tensor(f32, "3"))
	assert.Equal(t, dtypes.Bool, out.DType)
	out = requireShape(t, "[4]", "IsNaN", nil, tensor(f32, "4"))
	assert.Equal(t, dtypes.Bool, out.DType)

	out = requireShape(t, "[3, 2]", "Where", nil, tensor(dtypes.Bool, "3,1"), tensor(f32, "2"), tensor(f32, ""))
	assert.Equal(t, f32, out.DType)
	_, err = apply("Where", nil, tensor(f32, "3"), tensor(f32, "3"), tensor(f32, "3"))
	requireKind(t, Incompatible, err)

	outputs, err := applyN("Dropout", 2, nil, tensor(f32, "2,?"))
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	assert.Equal(t, dtypes.Bool, outputs[1].DType)
	assert.Equal(t, "[2, ?]", outputs[1].Shape.String())

	// Extra optional outputs not declared by the node are dropped.
	outputs, err = applyN("Dropout", 1, nil, tensor(f32, "2"))
	require.NoError(t, err)
	assert.Len(t, outputs, 1)

	outputs, err = applyN("LayerNormalization", 3, graph.Attributes{"axis": graph.IntAttr(-1)},
		tensor(f32, "b,7,16"), tensor(f32, "16"), tensor(f32, "16"))
	require.NoError(t, err)
	assert.Equal(t, "[b, 7, 16]", outputs[0].Shape.String())
	assert.Equal(t, "[b, 7, 1]", outputs[1].Shape.String())
}

func TestCast(t *testing.T) {
	out := requireShape(t, "[3]", "Cast", graph.Attributes{"to": graph.IntAttr(int64(graph.ONNXFloat))}, ints(1, 2, 3))
	assert.Equal(t, dtypes.Float32, out.DType)
	require.NotNil(t, out.Value)
	assert.Equal(t, []float64{1, 2, 3}, out.Value.Floats)

	out = requireShape(t, "[2]", "Cast", graph.Attributes{"to": graph.IntAttr(int64(graph.ONNXBool))}, ints(0, 5))
	assert.Equal(t, dtypes.Bool, out.DType)
	assert.Equal(t, []int64{0, 1}, out.Value.Ints)

	out = requireShape(t, "[?]", "CastLike", nil, tensor(dtypes.Float32, "?"), tensor(dtypes.Float16, ""))
	assert.Equal(t, dtypes.Float16, out.DType)
}

func TestShapeValueArithmetic(t *testing.T) {
	out := requireShape(t, "[2]", "Mul", nil, ints(2, 3), scalar(4))
	require.NotNil(t, out.Value)
	assert.Equal(t, []int64{8, 12}, out.Value.Ints)

	out = requireShape(t, "[2]", "Div", nil, ints(7, 8), ints(2, 0))
	assert.Nil(t, out.Value, "division by zero is not folded")

	out = requireShape(t, "[3]", "Equal", nil, ints(1, -1, 3), scalar(-1))
	assert.Equal(t, []int64{0, 1, 0}, out.Value.Ints)

	cond := &graph.Tensor{DType: dtypes.Bool, Shape: graph.Sizes(3), Value: graph.IntConstant(0, 1, 0)}
	out = requireShape(t, "[3]", "Where", nil, cond, ints(1, 1, 1), ints(4, 5, 6))
	assert.Equal(t, []int64{4, 1, 6}, out.Value.Ints)
}

func TestReshape(t *testing.T) {
	f32 := dtypes.Float32
	requireShape(t, "[2, 12]", "Reshape", nil, tensor(f32, "2,3,4"), ints(2, -1))
	requireShape(t, "[2, 3, 4]", "Reshape", nil, tensor(f32, "2,3,4"), ints(0, 0, -1))
	requireShape(t, "[batch, 12]", "Reshape", nil, tensor(f32, "batch,3,4"), ints(0, 12))
	requireShape(t, "[batch, 3, 4]", "Reshape", nil, tensor(f32, "batch,3,4"), ints(-1, 3, 4))
	requireShape(t, "[?, 12]", "Reshape", nil, tensor(f32, "batch,3,4"), ints(-1, 12))
	requireShape(t, "[0, 5]", "Reshape", graph.Attributes{"allowzero": graph.IntAttr(1)}, tensor(f32, "0,10"), ints(0, 5))

	_, err := apply("Reshape", nil, tensor(f32, "2,3,5"), ints(4, -1))
	requireKind(t, Incompatible, err)
	_, err = apply("Reshape", nil, tensor(f32, "2,3"), ints(4, 2))
	requireKind(t, Incompatible, err)
	_, err = apply("Reshape", nil, tensor(f32, "2,3"), ints(-1, -1))
	requireKind(t, UnsupportedAttribute, err)

	// Unknown target value: the rank comes from the length of the target.
	requireShape(t, "[?, ?, ?]", "Reshape", nil, tensor(f32, "2,3,4"), tensor(dtypes.Int64, "3"))
	requireShape(t, "[*]", "Reshape", nil, tensor(f32, "2,3,4"), tensor(dtypes.Int64, "?"))
}

func TestShapeOps(t *testing.T) {
	f32 := dtypes.Float32
	requireShape(t, "[2, 3, 4]", "Expand", nil, tensor(f32, "3,1"), ints(2, 1, 4))
	requireShape(t, "[b, 3]", "Expand", nil, tensor(f32, "b,3"), ints(1, 3))
	requireShape(t, "[2, 60]", "Flatten", nil, tensor(f32, "2,3,4,5"))
	requireShape(t, "[24, 5]", "Flatten", graph.Attributes{"axis": graph.IntAttr(-1)}, tensor(f32, "2,3,4,5"))
	requireShape(t, "[b, ?]", "Flatten", nil, tensor(f32, "b,3,?"))

	requireShape(t, "[3, 4]", "Squeeze", nil, tensor(f32, "1,3,1,4"))
	requireShape(t, "[3, 1, 4]", "Squeeze", nil, tensor(f32, "1,3,1,4"), ints(0))
	requireShape(t, "[*]", "Squeeze", nil, tensor(f32, "?,3"))
	_, err := apply("Squeeze", nil, tensor(f32, "2,3"), ints(0))
	requireKind(t, Incompatible, err)

	requireShape(t, "[1, 3, 1]", "Unsqueeze", nil, tensor(f32, "3"), ints(0, -1))
	requireShape(t, "[1, 3]", "Unsqueeze", graph.Attributes{"axes": graph.IntsAttr(0)}, tensor(f32, "3"))
	_, err = apply("Unsqueeze", nil, tensor(f32, "3"), ints(0, 0))
	requireKind(t, UnsupportedAttribute, err)

	requireShape(t, "[4, 3, 2]", "Transpose", nil, tensor(f32, "2,3,4"))
	requireShape(t, "[2, 4, 3]", "Transpose", graph.Attributes{"perm": graph.IntsAttr(0, 2, 1)}, tensor(f32, "2,3,4"))
	_, err = apply("Transpose", graph.Attributes{"perm": graph.IntsAttr(0, 1)}, tensor(f32, "2,3,4"))
	requireKind(t, Incompatible, err)

	requireShape(t, "[4, 9]", "Tile", nil, tensor(f32, "2,3"), ints(2, 3))
	requireShape(t, "[?, ?]", "Tile", nil, tensor(f32, "2,3"), tensor(dtypes.Int64, "2"))
	requireShape(t, "[4, 7]", "Pad", nil, tensor(f32, "2,3"), ints(1, 2, 1, 2))
	requireShape(t, "[2, 1]", "Pad", nil, tensor(f32, "2,3"), ints(0, -1, 0, -1))

	requireShape(t, "[1, 2, 8, 8]", "DepthToSpace", graph.Attributes{"blocksize": graph.IntAttr(2)}, tensor(f32, "1,8,4,4"))
	requireShape(t, "[1, 32, 2, 2]", "SpaceToDepth", graph.Attributes{"blocksize": graph.IntAttr(2)}, tensor(f32, "1,8,4,4"))
}

func TestIndexing(t *testing.T) {
	f32 := dtypes.Float32
	axis := func(a int64) graph.Attributes { return graph.Attributes{"axis": graph.IntAttr(a)} }

	requireShape(t, "[2, 7]", "Concat", axis(1), tensor(f32, "2,3"), tensor(f32, "2,4"))
	requireShape(t, "[2, ?]", "Concat", axis(-1), tensor(f32, "?,3"), tensor(f32, "2,?"))
	_, err := apply("Concat", axis(0), tensor(f32, "2,3"), tensor(f32, "2,4"))
	requireKind(t, Incompatible, err)
	out := requireShape(t, "[3]", "Concat", axis(0), ints(1), ints(-1, 64))
	assert.Equal(t, []int64{1, -1, 64}, out.Value.Ints)

	outputs, err := applyN("Split", 2, axis(1), tensor(f32, "2,10"), ints(3, 7))
	require.NoError(t, err)
	assert.Equal(t, "[2, 3]", outputs[0].Shape.String())
	assert.Equal(t, "[2, 7]", outputs[1].Shape.String())
	outputs, err = applyN("Split", 3, nil, tensor(f32, "6"))
	require.NoError(t, err)
	assert.Equal(t, "[2]", outputs[2].Shape.String())
	_, err = applyN("Split", 2, axis(1), tensor(f32, "2,10"), ints(3, 6))
	requireKind(t, Incompatible, err)

	requireShape(t, "[2, 3, 4]", "Gather", nil, tensor(f32, "10,4"), tensor(dtypes.Int64, "2,3"))
	requireShape(t, "[10]", "Gather", axis(1), tensor(f32, "10,4"), scalar(0))
	out = requireShape(t, "[]", "Gather", nil, ints(8, 3, 224), scalar(-1))
	assert.Equal(t, []int64{224}, out.Value.Ints)
	_, err = apply("Gather", nil, ints(8, 3), scalar(2))
	requireKind(t, Incompatible, err)

	requireShape(t, "[2, 2]", "Slice", nil, tensor(f32, "4,4"), ints(1, 0), ints(3, -2))
	requireShape(t, "[4, 2]", "Slice", nil, tensor(f32, "4,4"), ints(0), ints(100), ints(1), ints(2))
	requireShape(t, "[4, 4]", "Slice", nil, tensor(f32, "4,4"), ints(-1), ints(-5), ints(0), ints(-1))
	requireShape(t, "[batch, 2]", "Slice", nil, tensor(f32, "batch,4"), ints(0, 1), ints(9223372036854775807, 3))
	requireShape(t, "[?, 4]", "Slice", nil, tensor(f32, "4,4"), tensor(dtypes.Int64, "1"), tensor(dtypes.Int64, "1"))
	out = requireShape(t, "[2]", "Slice", nil, ints(1, 3, 224, 224), ints(2), ints(4))
	assert.Equal(t, []int64{224, 224}, out.Value.Ints)

	indices, onOff := tensor(dtypes.Int64, "2,3"), tensor(f32, "2")
	out = requireShape(t, "[2, 3, 10]", "OneHot", nil, indices, scalar(10), onOff)
	assert.Equal(t, f32, out.DType)
	requireShape(t, "[10, 2, 3]", "OneHot", axis(0), indices, scalar(10), onOff)
	requireShape(t, "[2, 10, 3]", "OneHot", axis(-2), indices, scalar(10), onOff)
	requireShape(t, "[2, 3, ?]", "OneHot", nil, indices, tensor(dtypes.Int64, ""), onOff)
	floatDepth := &graph.Tensor{DType: f32, Shape: graph.Sizes(1), Value: &graph.Constant{Floats: []float64{5}}}
	requireShape(t, "[2, 3, 5]", "OneHot", nil, indices, floatDepth, onOff)
	_, err = apply("OneHot", nil, indices, scalar(-4), onOff)
	requireKind(t, UnsupportedAttribute, err)
}

func TestConstants(t *testing.T) {
	out := requireShape(t, "[4]", "Shape", nil, tensor(dtypes.Float32, "1,3,224,224"))
	assert.Equal(t, dtypes.Int64, out.DType)
	assert.Equal(t, []int64{1, 3, 224, 224}, out.Value.Ints)

	out = requireShape(t, "[2]", "Shape", graph.Attributes{"start": graph.IntAttr(-2)}, tensor(dtypes.Float32, "b,3,7"))
	assert.Equal(t, []int64{3, 7}, out.Value.Ints)
	out = requireShape(t, "[3]", "Shape", nil, tensor(dtypes.Float32, "b,3,7"))
	assert.Nil(t, out.Value)

	out = requireShape(t, "[]", "Size", nil, tensor(dtypes.Float32, "2,3"))
	assert.Equal(t, []int64{6}, out.Value.Ints)

	value := &graph.Tensor{DType: dtypes.Int64, Shape: graph.Sizes(2), Value: graph.IntConstant(-1, 64)}
	out = requireShape(t, "[2]", "Constant", graph.Attributes{"value": graph.TensorAttr(value)})
	assert.Equal(t, []int64{-1, 64}, out.Value.Ints)
	requireShape(t, "[3]", "Constant", graph.Attributes{"value_floats": graph.FloatsAttr(1, 2, 3)})
	_, err := apply("Constant", nil)
	requireKind(t, UnsupportedAttribute, err)

	out = requireShape(t, "[2, 3]", "ConstantOfShape", nil, ints(2, 3))
	assert.Equal(t, dtypes.Float32, out.DType)
	fill := &graph.Tensor{DType: dtypes.Int64, Shape: graph.Sizes(1), Value: graph.IntConstant(1)}
	out = requireShape(t, "[3]", "ConstantOfShape", graph.Attributes{"value": graph.TensorAttr(fill)}, ints(3))
	assert.Equal(t, dtypes.Int64, out.DType)
	assert.Equal(t, []int64{1, 1, 1}, out.Value.Ints)
	requireShape(t, "[?, ?]", "ConstantOfShape", nil, tensor(dtypes.Int64, "2"))

	out = requireShape(t, "[5]", "Range", nil, scalar(0), scalar(10), scalar(2))
	assert.Equal(t, []int64{0, 2, 4, 6, 8}, out.Value.Ints)
	requireShape(t, "[0]", "Range", nil, scalar(5), scalar(0), scalar(1))
	requireShape(t, "[?]", "Range", nil, scalar(0), tensor(dtypes.Int64, ""), scalar(1))
}

func TestConvolutions(t *testing.T) {
	f32 := dtypes.Float32
	requireShape(t, "[1, 16, 30, 30]", "Conv", nil, tensor(f32, "1,3,32,32"), tensor(f32, "16,3,3,3"))
	requireShape(t, "[batch, 16, 16, 16]", "Conv",
		graph.Attributes{"strides": graph.IntsAttr(2, 2), "pads": graph.IntsAttr(1, 1, 1, 1)},
		tensor(f32, "batch,3,32,32"), tensor(f32, "16,3,3,3"), tensor(f32, "16"))
	requireShape(t, "[1, 8, 11, 11]", "Conv", graph.Attributes{"auto_pad": graph.StringAttr("SAME_UPPER"), "strides": graph.IntsAttr(3, 3)},
		tensor(f32, "1,4,32,32"), tensor(f32, "8,4,5,5"))
	requireShape(t, "[1, 8, 28, 28]", "Conv", graph.Attributes{"dilations": graph.IntsAttr(2, 2)},
		tensor(f32, "1,4,32,32"), tensor(f32, "8,4,3,3"))
	requireShape(t, "[1, 8, ?, 30]", "Conv", nil, tensor(f32, "1,4,?,32"), tensor(f32, "8,4,3,3"))
	requireShape(t, "[1, 8, 30]", "Conv", graph.Attributes{"group": graph.IntAttr(2)}, tensor(f32, "1,4,32"), tensor(f32, "8,2,3"))

	_, err := apply("Conv", nil, tensor(f32, "1,3,32,32"), tensor(f32, "16,4,3,3"))
	requireKind(t, Incompatible, err)
	_, err = apply("Conv", nil, tensor(f32, "1,3,2,2"), tensor(f32, "16,3,3,3"))
	requireKind(t, Incompatible, err)
	_, err = apply("Conv", graph.Attributes{"auto_pad": graph.StringAttr("SOMETIMES")}, tensor(f32, "1,3,8,8"), tensor(f32, "16,3,3,3"))
	requireKind(t, UnsupportedAttribute, err)

	requireShape(t, "[1, 6, 64, 64]", "ConvTranspose", graph.Attributes{"strides": graph.IntsAttr(2, 2), "pads": graph.IntsAttr(1, 1, 1, 1), "output_padding": graph.IntsAttr(1, 1)},
		tensor(f32, "1,4,32,32"), tensor(f32, "4,6,3,3"))

	outputs, err := applyN("MaxPool", 2, graph.Attributes{"kernel_shape": graph.IntsAttr(2, 2), "strides": graph.IntsAttr(2, 2)},
		tensor(f32, "n,3,7,7"))
	require.NoError(t, err)
	assert.Equal(t, "[n, 3, 3, 3]", outputs[0].Shape.String())
	assert.Equal(t, dtypes.Int64, outputs[1].DType)
	requireShape(t, "[1, 3, 4, 4]", "AveragePool",
		graph.Attributes{"kernel_shape": graph.IntsAttr(2, 2), "strides": graph.IntsAttr(2, 2), "ceil_mode": graph.IntAttr(1)},
		tensor(f32, "1,3,7,7"))
	// In ceil mode a window starting in the end padding is dropped.
	padded := graph.Attributes{"kernel_shape": graph.IntsAttr(2, 2), "strides": graph.IntsAttr(2, 2),
		"pads": graph.IntsAttr(1, 1, 1, 1), "ceil_mode": graph.IntAttr(1)}
	requireShape(t, "[1, 1, 3, 3]", "AveragePool", padded, tensor(f32, "1,1,5,5"))
	requireShape(t, "[1, 1, 4, 4]", "MaxPool",
		graph.Attributes{"kernel_shape": graph.IntsAttr(3, 3), "strides": graph.IntsAttr(2, 2),
			"pads": graph.IntsAttr(1, 1, 1, 1), "ceil_mode": graph.IntAttr(1)},
		tensor(f32, "1,1,6,6"))
	_, err = apply("MaxPool", nil, tensor(f32, "1,3,7,7"))
	requireKind(t, UnsupportedAttribute, err)
	_, err = apply("MaxPool", graph.Attributes{"kernel_shape": graph.IntsAttr(-3, 3)}, tensor(f32, "1,3,7,7"))
	requireKind(t, UnsupportedAttribute, err)
	_, err = apply("ConvTranspose", graph.Attributes{"group": graph.IntAttr(0)}, tensor(f32, "1,4,8,8"), tensor(f32, "4,6,3,3"))
	requireKind(t, UnsupportedAttribute, err)
	_, err = apply("ConvTranspose", graph.Attributes{"output_shape": graph.IntsAttr(-1, 16)}, tensor(f32, "1,4,8,8"), tensor(f32, "4,6,3,3"))
	requireKind(t, UnsupportedAttribute, err)

	requireShape(t, "[b, 512, 1, 1]", "GlobalAveragePool", nil, tensor(f32, "b,512,7,7"))
}

func TestLinearAlgebra(t *testing.T) {
	f32 := dtypes.Float32
	requireShape(t, "[2, 4]", "MatMul", nil, tensor(f32, "2,3"), tensor(f32, "3,4"))
	requireShape(t, "[b, 8, 2, 4]", "MatMul", nil, tensor(f32, "b,1,2,3"), tensor(f32, "8,3,4"))
	requireShape(t, "[4]", "MatMul", nil, tensor(f32, "3"), tensor(f32, "3,4"))
	requireShape(t, "[2]", "MatMul", nil, tensor(f32, "2,3"), tensor(f32, "3"))
	requireShape(t, "[]", "MatMul", nil, tensor(f32, "3"), tensor(f32, "3"))
	_, err := apply("MatMul", nil, tensor(f32, "2,3"), tensor(f32, "4,5"))
	requireKind(t, Incompatible, err)

	requireShape(t, "[5, 7]", "Gemm", graph.Attributes{"transA": graph.IntAttr(1), "transB": graph.IntAttr(1)},
		tensor(f32, "3,5"), tensor(f32, "7,3"), tensor(f32, "7"))
	requireShape(t, "[?, 7]", "Gemm", nil, tensor(f32, "?,3"), tensor(f32, "3,7"), tensor(f32, "1,7"))
	_, err = apply("Gemm", nil, tensor(f32, "5,3"), tensor(f32, "3,7"), tensor(f32, "5,6"))
	requireKind(t, Incompatible, err)

	eq := func(e string) graph.Attributes { return graph.Attributes{"equation": graph.StringAttr(e)} }
	requireShape(t, "[b, l, k, c]", "Einsum", eq("BLKD,BCD->BLKC"), tensor(f32, "b,l,k,64"), tensor(f32, "b,c,64"))
	requireShape(t, "[2, 4]", "Einsum", eq("ij,jk"), tensor(f32, "2,3"), tensor(f32, "3,4"))
	requireShape(t, "[5, 2, 4]", "Einsum", eq("...ij,...jk->...ik"), tensor(f32, "5,2,3"), tensor(f32, "3,4"))
	_, err = apply("Einsum", eq("ij,jk->ik"), tensor(f32, "2,3"), tensor(f32, "4,4"))
	requireKind(t, Incompatible, err)
}

func TestReductions(t *testing.T) {
	f32 := dtypes.Float32
	requireShape(t, "[2, 1, 4]", "ReduceMean", graph.Attributes{"axes": graph.IntsAttr(1)}, tensor(f32, "2,3,4"))
	requireShape(t, "[2, 4]", "ReduceSum", graph.Attributes{"keepdims": graph.IntAttr(0)}, tensor(f32, "2,3,4"), ints(-2))
	requireShape(t, "[1, 1, 1]", "ReduceMax", nil, tensor(f32, "2,3,4"))
	requireShape(t, "[2, 3, 4]", "ReduceSum", graph.Attributes{"noop_with_empty_axes": graph.IntAttr(1)}, tensor(f32, "2,3,4"))
	requireShape(t, "[?, ?, ?]", "ReduceSum", nil, tensor(f32, "2,3,4"), tensor(dtypes.Int64, "1"))
	out := requireShape(t, "[]", "ReduceProd", graph.Attributes{"keepdims": graph.IntAttr(0)}, ints(2, 3, 4))
	assert.Equal(t, []int64{24}, out.Value.Ints)

	out = requireShape(t, "[2, 4]", "ArgMax", graph.Attributes{"axis": graph.IntAttr(1), "keepdims": graph.IntAttr(0)}, tensor(f32, "2,3,4"))
	assert.Equal(t, dtypes.Int64, out.DType)

	outputs, err := applyN("TopK", 2, nil, tensor(f32, "b,10"), ints(3))
	require.NoError(t, err)
	assert.Equal(t, "[b, 3]", outputs[0].Shape.String())
	assert.Equal(t, dtypes.Int64, outputs[1].DType)
	_, err = applyN("TopK", 2, nil, tensor(f32, "b,10"), ints(11))
	requireKind(t, Incompatible, err)
	_, err = applyN("TopK", 2, nil, tensor(f32, "b,10"), ints(-1))
	requireKind(t, UnsupportedAttribute, err)
	outputs, err = applyN("TopK", 2, graph.Attributes{"k": graph.IntAttr(4)}, tensor(f32, "b,10"))
	require.NoError(t, err)
	assert.Equal(t, "[b, 4]", outputs[0].Shape.String())
	_, err = applyN("TopK", 2, graph.Attributes{"k": graph.IntAttr(-1)}, tensor(f32, "b,10"))
	requireKind(t, UnsupportedAttribute, err)
}

func TestRecurrent(t *testing.T) {
	outputs, err := applyN("LSTM", 3, graph.Attributes{"hidden_size": graph.IntAttr(20), "direction": graph.StringAttr("bidirectional")},
		tensor(dtypes.Float32, "seq,b,10"), tensor(dtypes.Float32, "2,80,10"), tensor(dtypes.Float32, "2,80,20"))
	require.NoError(t, err)
	require.Len(t, outputs, 3)
	assert.Equal(t, "[seq, 2, b, 20]", outputs[0].Shape.String())
	assert.Equal(t, "[2, b, 20]", outputs[2].Shape.String())

	outputs, err = applyN("GRU", 2, graph.Attributes{"layout": graph.IntAttr(1)},
		tensor(dtypes.Float32, "b,seq,10"), tensor(dtypes.Float32, "1,48,10"), tensor(dtypes.Float32, "1,48,16"))
	require.NoError(t, err)
	assert.Equal(t, "[b, seq, 1, 16]", outputs[0].Shape.String())
	assert.Equal(t, "[b, 1, 16]", outputs[1].Shape.String())

	_, err = applyN("LSTM", 3, graph.Attributes{"hidden_size": graph.IntAttr(-2)},
		tensor(dtypes.Float32, "seq,b,10"), tensor(dtypes.Float32, "1,80,10"), tensor(dtypes.Float32, "1,80,20"))
	requireKind(t, UnsupportedAttribute, err)
}

func TestResize(t *testing.T) {
	f32 := dtypes.Float32
	scales := &graph.Tensor{DType: f32, Shape: graph.Sizes(4), Value: &graph.Constant{Floats: []float64{1, 1, 2, 2}}}
	empty := &graph.Tensor{DType: f32, Shape: graph.Sizes(0), Value: &graph.Constant{Floats: []float64{}}}
	requireShape(t, "[1, 3, 64, 64]", "Resize", nil, tensor(f32, "1,3,32,32"), empty, scales)
	requireShape(t, "[b, 3, 64, 64]", "Upsample", nil, tensor(f32, "b,3,32,32"), scales)
	requireShape(t, "[1, 3, 100, 50]", "Resize", nil, tensor(f32, "1,3,32,32"), empty, empty, ints(1, 3, 100, 50))
	requireShape(t, "[1, 3, 50, 50]", "Resize",
		graph.Attributes{"axes": graph.IntsAttr(2, 3), "keep_aspect_ratio_policy": graph.StringAttr("not_larger")},
		tensor(f32, "1,3,32,32"), empty, empty, ints(100, 50))
	requireShape(t, "[?, ?, ?, ?]", "Resize", nil, tensor(f32, "1,3,32,32"), empty, tensor(f32, "4"))
}
