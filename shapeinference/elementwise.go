package shapeinference

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/onnx-shapes/graph"
)

var (
	// arithmeticOps broadcast their operands, and output their common dtype.
	arithmeticOps = []string{"Add", "Sub", "Mul", "Div", "Mod", "BitShift", "PRelu",
		"BitwiseAnd", "BitwiseOr", "BitwiseXor"}

	// comparisonOps broadcast their operands, and output booleans.
	comparisonOps = []string{"Equal", "Greater", "Less", "GreaterOrEqual", "LessOrEqual", "And", "Or", "Xor"}

	// variadicOps broadcast any number of operands.
	variadicOps = []string{"Sum", "Mean", "Max", "Min"}

	// unaryOps preserve the shape and dtype of their first input.
	unaryOps = []string{"Identity", "Relu", "Sigmoid", "Tanh", "Exp", "Log", "Sqrt", "Abs", "Neg", "Erf", "Gelu",
		"Elu", "Selu", "Celu", "LeakyRelu", "ThresholdedRelu", "HardSigmoid", "HardSwish", "Mish", "Softplus",
		"Softsign", "Clip", "Floor", "Ceil", "Round", "Sin", "Cos", "Tan", "Asin", "Acos", "Atan", "Sinh", "Cosh",
		"Asinh", "Acosh", "Atanh", "Reciprocal", "Sign", "BitwiseNot", "Softmax", "LogSoftmax", "Hardmax", "LRN",
		"InstanceNormalization", "GroupNormalization", "MeanVarianceNormalization", "CumSum", "Shrink", "Trilu",
		"ReverseSequence", "Not"}

	// boolUnaryOps preserve the shape of their first input, and output booleans.
	boolUnaryOps = []string{"IsNaN", "IsInf"}
)

func registerElementwise(r *Registry) {
	r.registerAll(broadcastRule(false), arithmeticOps...)
	r.registerAll(broadcastRule(true), comparisonOps...)
	r.registerAll(broadcastRule(false), variadicOps...)
	r.registerAll(unaryRule, unaryOps...)
	r.registerAll(boolUnaryRule, boolUnaryOps...)
	r.Register("Pow", powRule)
	r.Register("Where", whereRule)
	r.Register("Cast", castRule)
	r.Register("CastLike", castLikeRule)
	r.Register("Dropout", dropoutRule)
	r.Register("BatchNormalization", batchNormalizationRule)
	r.Register("LayerNormalization", layerNormalizationRule)
	r.Register("QuantizeLinear", quantizeLinearRule)
	r.Register("DequantizeLinear", dequantizeLinearRule)
}

// broadcastShapes broadcasts the shapes of the tensors, converting a conflict to an Incompatible error.
func (op *Op) broadcastShapes(tensors ...*graph.Tensor) (graph.Shape, error) {
	shapes := make([]graph.Shape, len(tensors))
	for ii, t := range tensors {
		shapes[ii] = t.Shape
	}
	shape, err := Broadcast(shapes...)
	if err != nil {
		return graph.Shape{}, op.Incompatiblef("%v", err)
	}
	return shape, nil
}

// broadcastRule returns the rule for multidirectional broadcasting operators: the output shape is the broadcast
// of all operands, and the dtype is their common dtype, or Bool if boolOutput is set.
func broadcastRule(boolOutput bool) ShapeFn {
	return func(op *Op) ([]graph.Tensor, error) {
		inputs := op.presentInputs()
		if len(inputs) == 0 {
			return nil, op.UnsupportedAttributef("no operands given")
		}
		dtype, err := op.commonDType(inputs...)
		if err != nil {
			return nil, err
		}
		shape, err := op.broadcastShapes(inputs...)
		if err != nil {
			return nil, err
		}
		if boolOutput {
			dtype = dtypes.Bool
		}
		output := graph.Tensor{DType: dtype, Shape: shape}
		if fold := binaryFold(op.Type); fold != nil && len(inputs) == 2 {
			output.Value = foldElementwise(inputs, shape, fold)
		} else if len(inputs) == 1 && (op.Type == "Max" || op.Type == "Min" || op.Type == "Sum") {
			output.Value = inputs[0].Value.Clone()
		}
		return results(output)
	}
}

// powRule: the exponent may have a different dtype than the base.
func powRule(op *Op) ([]graph.Tensor, error) {
	base, exponent := op.mustInput(0), op.mustInput(1)
	shape, err := op.broadcastShapes(base, exponent)
	if err != nil {
		return nil, err
	}
	return results(graph.Tensor{DType: base.DType, Shape: shape})
}

// unaryRule preserves the shape and dtype of the first input. Identity also preserves its value.
func unaryRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	output := graph.Tensor{DType: x.DType, Shape: x.Shape}
	switch op.Type {
	case "Identity":
		output.Value = x.Value.Clone()
	case "Neg":
		output.Value = foldElementwise([]*graph.Tensor{x}, x.Shape, func(args []int64) (int64, bool) { return -args[0], true })
	case "Abs":
		output.Value = foldElementwise([]*graph.Tensor{x}, x.Shape, func(args []int64) (int64, bool) {
			if args[0] < 0 {
				return -args[0], true
			}
			return args[0], true
		})
	}
	return results(output)
}

func boolUnaryRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	return results(graph.Tensor{DType: dtypes.Bool, Shape: x.Shape})
}

// whereRule: the output is the broadcast of condition, X and Y, with the dtype of X and Y.
func whereRule(op *Op) ([]graph.Tensor, error) {
	condition, x, y := op.mustInput(0), op.mustInput(1), op.mustInput(2)
	if condition.DType != dtypes.InvalidDType && condition.DType != dtypes.Bool {
		return nil, op.Incompatiblef("condition must be a boolean, got %s", condition.DType)
	}
	dtype, err := op.commonDType(x, y)
	if err != nil {
		return nil, err
	}
	shape, err := op.broadcastShapes(condition, x, y)
	if err != nil {
		return nil, err
	}
	output := graph.Tensor{DType: dtype, Shape: shape}
	output.Value = foldElementwise([]*graph.Tensor{condition, x, y}, shape, func(args []int64) (int64, bool) {
		if args[0] != 0 {
			return args[1], true
		}
		return args[2], true
	})
	return results(output)
}

// castRule converts to the dtype given by the "to" attribute, keeping the shape, and the value if tracked.
func castRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	dtype, err := graph.DTypeForONNX(int32(op.MustIntAttr("to")))
	if err != nil {
		return nil, op.UnsupportedAttributef("attribute \"to\": %v", err)
	}
	return results(castTo(x, dtype))
}

// castLikeRule converts to the dtype of the second input.
func castLikeRule(op *Op) ([]graph.Tensor, error) {
	x, target := op.mustInput(0), op.mustInput(1)
	return results(castTo(x, target.DType))
}

func castTo(x *graph.Tensor, dtype dtypes.DType) graph.Tensor {
	output := graph.Tensor{DType: dtype, Shape: x.Shape}
	if x.Value == nil || dtype == dtypes.InvalidDType {
		return output
	}
	switch {
	case dtype == dtypes.Bool:
		floats := x.Value.AsFloats()
		ints := make([]int64, len(floats))
		for ii, f := range floats {
			if f != 0 {
				ints[ii] = 1
			}
		}
		output.Value = &graph.Constant{Ints: ints}
	case graph.IsIntegral(dtype):
		output.Value = &graph.Constant{Ints: append([]int64(nil), x.Value.AsInts()...)}
	case dtype.IsFloat():
		output.Value = &graph.Constant{Floats: append([]float64(nil), x.Value.AsFloats()...)}
	}
	return output
}

// dropoutRule: output 0 is like the input, the optional output 1 is a boolean mask of the same shape.
func dropoutRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	return results(
		graph.Tensor{DType: x.DType, Shape: x.Shape},
		graph.Tensor{DType: dtypes.Bool, Shape: x.Shape},
	)
}

// batchNormalizationRule: Y is like X; the optional training outputs running_mean and running_var are like the
// input mean and var.
func batchNormalizationRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	outputs := []graph.Tensor{{DType: x.DType, Shape: x.Shape}}
	for _, ii := range []int{3, 4} {
		stat := op.Input(ii)
		if stat == nil {
			break
		}
		outputs = append(outputs, graph.Tensor{DType: stat.DType, Shape: stat.Shape})
	}
	return outputs, nil
}

// layerNormalizationRule: Y is like X; the optional Mean and InvStdDev outputs have the shape of X with the
// normalized axes (from "axis" on) set to 1, and the dtype given by "stash_type".
func layerNormalizationRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	statDType, err := graph.DTypeForONNX(int32(op.IntAttrOr("stash_type", int(graph.ONNXFloat))))
	if err != nil {
		return nil, op.UnsupportedAttributef("attribute \"stash_type\": %v", err)
	}
	statShape := graph.Unranked()
	if x.Shape.HasRank() {
		axis := op.normalizeAxis(op.IntAttrOr("axis", -1), x.Shape.Rank())
		dims := x.Shape.Dims()
		for ii := axis; ii < len(dims); ii++ {
			dims[ii] = graph.Concrete(1)
		}
		statShape = graph.MakeShape(dims...)
	}
	return results(
		graph.Tensor{DType: x.DType, Shape: x.Shape},
		graph.Tensor{DType: statDType, Shape: statShape},
		graph.Tensor{DType: statDType, Shape: statShape},
	)
}

// quantizeLinearRule: like the input, with the dtype of the zero point (Uint8 by default, or "output_dtype").
func quantizeLinearRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	dtype := dtypes.Uint8
	if zeroPoint := op.Input(2); zeroPoint != nil {
		dtype = zeroPoint.DType
	} else if op.HasAttr("output_dtype") {
		var err error
		if dtype, err = graph.DTypeForONNX(int32(op.MustIntAttr("output_dtype"))); err != nil {
			return nil, op.UnsupportedAttributef("attribute \"output_dtype\": %v", err)
		}
	}
	return results(graph.Tensor{DType: dtype, Shape: x.Shape})
}

// dequantizeLinearRule: like the input, with the dtype of the scale.
func dequantizeLinearRule(op *Op) ([]graph.Tensor, error) {
	x, scale := op.mustInput(0), op.mustInput(1)
	return results(graph.Tensor{DType: scale.DType, Shape: x.Shape})
}
