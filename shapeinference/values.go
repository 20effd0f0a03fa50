package shapeinference

import (
	"github.com/gomlx/onnx-shapes/graph"
)

// Shape values: rules that manipulate small integer tensors (the output of Shape, Constant, Gather on shapes, ...)
// propagate their contents in Tensor.Value, so shape operands of Reshape, Expand, Slice, etc. can be resolved
// statically. This is limited to integer tensors up to MaxValueElements elements.

// MaxValueElements is the largest tensor whose value is tracked. Readers of model files use it to decide which
// constants are worth decoding.
const MaxValueElements = 4096

// intValue returns the integer contents of t, if statically known.
func intValue(t *graph.Tensor) ([]int64, bool) {
	if t == nil || t.Value == nil || t.Value.Floats != nil {
		return nil, false
	}
	return t.Value.Ints, true
}

// trackable returns the number of elements of the shape, if it is fully known and small enough to track values.
func trackable(shape graph.Shape) (int, bool) {
	n, ok := shape.NumElements()
	if !ok || n > MaxValueElements {
		return 0, false
	}
	return n, true
}

// broadcastIndices maps each flat (row-major) index of an output of sizes out to the flat index of an operand of
// sizes in broadcast to it.
func broadcastIndices(in, out []int) []int {
	n := 1
	for _, d := range out {
		n *= d
	}
	offset := len(out) - len(in)
	strides := make([]int, len(out))
	stride := 1
	for axis := len(in) - 1; axis >= 0; axis-- {
		if in[axis] != 1 {
			strides[offset+axis] = stride
		}
		stride *= in[axis]
	}
	indices := make([]int, n)
	counter := make([]int, len(out))
	for flat := range n {
		idx := 0
		for axis, c := range counter {
			idx += c * strides[axis]
		}
		indices[flat] = idx
		for axis := len(out) - 1; axis >= 0; axis-- {
			counter[axis]++
			if counter[axis] < out[axis] {
				break
			}
			counter[axis] = 0
		}
	}
	return indices
}

// foldElementwise computes the value of an elementwise operation over integer operands broadcast to out.
//
// It returns nil if any operand value is unknown, if the shapes are not fully known, or if fn reports the
// operation can't be folded (e.g. division by zero).
func foldElementwise(inputs []*graph.Tensor, out graph.Shape, fn func(args []int64) (int64, bool)) *graph.Constant {
	n, ok := trackable(out)
	if !ok {
		return nil
	}
	outSizes, _ := out.Sizes()
	values := make([][]int64, len(inputs))
	indices := make([][]int, len(inputs))
	for ii, input := range inputs {
		v, ok := intValue(input)
		if !ok {
			return nil
		}
		sizes, ok := input.Shape.Sizes()
		if !ok || len(sizes) > len(outSizes) {
			return nil
		}
		if numElements, _ := input.Shape.NumElements(); numElements != len(v) {
			return nil
		}
		values[ii] = v
		indices[ii] = broadcastIndices(sizes, outSizes)
	}
	result := make([]int64, n)
	args := make([]int64, len(inputs))
	for flat := range n {
		for ii := range inputs {
			args[ii] = values[ii][indices[ii][flat]]
		}
		r, ok := fn(args)
		if !ok {
			return nil
		}
		result[flat] = r
	}
	return &graph.Constant{Ints: result}
}

// binaryFold returns the integer implementation of the arithmetic/comparison operators used in shape
// computations, or nil for the others.
func binaryFold(opType string) func(args []int64) (int64, bool) {
	boolInt := func(b bool) int64 {
		if b {
			return 1
		}
		return 0
	}
	switch opType {
	case "Add":
		return func(args []int64) (int64, bool) { return args[0] + args[1], true }
	case "Sub":
		return func(args []int64) (int64, bool) { return args[0] - args[1], true }
	case "Mul":
		return func(args []int64) (int64, bool) { return args[0] * args[1], true }
	case "Div":
		return func(args []int64) (int64, bool) {
			if args[1] == 0 {
				return 0, false
			}
			return args[0] / args[1], true
		}
	case "Mod":
		return func(args []int64) (int64, bool) {
			if args[1] == 0 {
				return 0, false
			}
			r := args[0] % args[1]
			if r != 0 && (r < 0) != (args[1] < 0) {
				r += args[1]
			}
			return r, true
		}
	case "Equal":
		return func(args []int64) (int64, bool) { return boolInt(args[0] == args[1]), true }
	case "Less":
		return func(args []int64) (int64, bool) { return boolInt(args[0] < args[1]), true }
	case "LessOrEqual":
		return func(args []int64) (int64, bool) { return boolInt(args[0] <= args[1]), true }
	case "Greater":
		return func(args []int64) (int64, bool) { return boolInt(args[0] > args[1]), true }
	case "GreaterOrEqual":
		return func(args []int64) (int64, bool) { return boolInt(args[0] >= args[1]), true }
	case "And":
		return func(args []int64) (int64, bool) { return boolInt(args[0] != 0 && args[1] != 0), true }
	case "Or":
		return func(args []int64) (int64, bool) { return boolInt(args[0] != 0 || args[1] != 0), true }
	case "Max":
		return func(args []int64) (int64, bool) { return max(args[0], args[1]), true }
	case "Min":
		return func(args []int64) (int64, bool) { return min(args[0], args[1]), true }
	default:
		return nil
	}
}

// shapeValue interprets the value of a 1D integer tensor as shape dimensions. Negative entries are returned
// as is, for the callers to interpret (e.g. -1 in Reshape).
func shapeValue(t *graph.Tensor) ([]int, bool) {
	v, ok := intValue(t)
	if !ok {
		return nil, false
	}
	if t.Shape.HasRank() && t.Shape.Rank() > 1 {
		return nil, false
	}
	return toInts(v), true
}
