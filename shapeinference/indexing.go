package shapeinference

import (
	"math"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/onnx-shapes/graph"
)

func registerIndexing(r *Registry) {
	r.Register("Concat", concatRule).
		Register("Split", splitRule).
		Register("Gather", gatherRule).
		Register("GatherElements", gatherElementsRule).
		Register("Slice", sliceRule).
		Register("OneHot", oneHotRule).
		Register("NonZero", nonZeroRule)
	r.registerAll(likeDataRule, "ScatterElements", "ScatterND", "Scatter")
}

// concatRule joins the inputs along "axis": all other dimensions must match, and the axis dimension is the sum.
func concatRule(op *Op) ([]graph.Tensor, error) {
	inputs := op.presentInputs()
	if len(inputs) == 0 {
		return nil, op.UnsupportedAttributef("no operands given")
	}
	dtype, err := op.commonDType(inputs...)
	if err != nil {
		return nil, err
	}
	output := graph.Tensor{DType: dtype, Shape: graph.Unranked()}
	rank := -1
	for _, input := range inputs {
		if !input.Shape.HasRank() {
			continue
		}
		if rank >= 0 && input.Shape.Rank() != rank {
			return nil, op.Incompatiblef("operands of different ranks %d and %d (shape %s)", rank, input.Shape.Rank(), input.Shape)
		}
		rank = input.Shape.Rank()
	}
	if rank < 0 {
		return results(output)
	}
	if rank == 0 {
		return nil, op.Incompatiblef("cannot concatenate scalars")
	}
	axis := op.normalizeAxis(op.MustIntAttr("axis"), rank)

	dims := graph.UnknownDims(rank).Dims()
	sum, sumKnown := 0, ranked(inputs...)
	for _, input := range inputs {
		if !input.Shape.HasRank() {
			continue
		}
		for ii := range rank {
			d := input.Shape.Dim(ii)
			if ii == axis {
				if size, ok := d.Size(); ok {
					sum += size
				} else {
					sumKnown = false
				}
				continue
			}
			merged, err := dims[ii].Merge(d)
			if err != nil {
				return nil, op.Incompatiblef("axis #%d of operand %s doesn't match the other operands: %v", ii, input.Shape, err)
			}
			dims[ii] = merged
		}
	}
	if sumKnown {
		dims[axis] = graph.Concrete(sum)
	} else if len(inputs) == 1 {
		dims[axis] = inputs[0].Shape.Dim(axis)
	}
	output.Shape = graph.MakeShape(dims...)

	if rank == 1 {
		var values []int64
		for _, input := range inputs {
			v, ok := intValue(input)
			if !ok {
				values = nil
				break
			}
			values = append(values, v...)
		}
		if values != nil {
			output.Value = sameValueAs(&graph.Tensor{Value: &graph.Constant{Ints: values}}, output.Shape)
		}
	}
	return results(output)
}

// splitRule splits the input along "axis", by the sizes in the "split" operand (or attribute in older opsets),
// or evenly into "num_outputs" (or the number of node outputs) parts.
func splitRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	numOutputs := op.IntAttrOr("num_outputs", op.NumOutputs)
	if numOutputs <= 0 {
		return nil, op.UnsupportedAttributef("invalid number of outputs %d", numOutputs)
	}
	outputs := make([]graph.Tensor, numOutputs)
	for ii := range outputs {
		outputs[ii] = graph.Tensor{DType: x.DType, Shape: graph.Unranked()}
	}
	if !x.Shape.HasRank() {
		return outputs, nil
	}
	rank := x.Shape.Rank()
	axis := op.normalizeAxis(op.IntAttrOr("axis", 0), rank)
	for ii := range outputs {
		outputs[ii].Shape = x.Shape.WithDim(axis, graph.Unknown())
	}
	splits, known := op.IntsOperandOr(1, "split", nil)
	if !known {
		return outputs, nil
	}
	size, sizeKnown := x.Shape.Dim(axis).Size()
	if splits == nil {
		if !sizeKnown {
			return outputs, nil
		}
		// Evenly, with a smaller last chunk if not divisible.
		chunk := (size + numOutputs - 1) / numOutputs
		splits = make([]int, numOutputs)
		remaining := size
		for ii := range splits {
			splits[ii] = min(chunk, remaining)
			remaining -= splits[ii]
		}
		if op.Input(1) == nil && !op.HasAttr("num_outputs") && size%numOutputs != 0 {
			return nil, op.Incompatiblef("axis #%d of %s can't be split evenly into %d outputs", axis, x.Shape, numOutputs)
		}
	}
	if len(splits) != numOutputs {
		return nil, op.Incompatiblef("split %v has %d entries, but node has %d outputs", splits, len(splits), numOutputs)
	}
	total := 0
	for ii, s := range splits {
		if s < 0 {
			return nil, op.UnsupportedAttributef("negative split %v", splits)
		}
		total += s
		outputs[ii].Shape = x.Shape.WithDim(axis, graph.Concrete(s))
	}
	if sizeKnown && total != size {
		return nil, op.Incompatiblef("split %v adds to %d, but axis #%d of %s is %d", splits, total, axis, x.Shape, size)
	}
	if v, ok := intValue(x); ok && rank == 1 && len(v) == total {
		start := 0
		for ii, s := range splits {
			outputs[ii].Value = &graph.Constant{Ints: slices.Clone(v[start : start+s])}
			start += s
		}
	}
	return outputs, nil
}

// gatherRule: output shape is data.shape[:axis] + indices.shape + data.shape[axis+1:].
func gatherRule(op *Op) ([]graph.Tensor, error) {
	data, indices := op.mustInput(0), op.mustInput(1)
	output := graph.Tensor{DType: data.DType, Shape: graph.Unranked()}
	if !ranked(data, indices) {
		return results(output)
	}
	rank := data.Shape.Rank()
	if rank == 0 {
		return nil, op.Incompatiblef("cannot gather from a scalar")
	}
	axis := op.normalizeAxis(op.IntAttrOr("axis", 0), rank)
	dataDims := data.Shape.Dims()
	dims := slices.Concat(dataDims[:axis], indices.Shape.Dims(), dataDims[axis+1:])
	output.Shape = graph.MakeShape(dims...)

	idx, idxKnown := intValue(indices)
	if !idxKnown {
		return results(output)
	}
	axisSize, axisKnown := dataDims[axis].Size()
	if axisKnown {
		for _, i := range idx {
			if i < -int64(axisSize) || i >= int64(axisSize) {
				return nil, op.Incompatiblef("index %d out of range for axis #%d of %s", i, axis, data.Shape)
			}
		}
	}
	if values, ok := intValue(data); ok && rank == 1 && axisKnown && len(values) == axisSize {
		gathered := make([]int64, len(idx))
		for ii, i := range idx {
			if i < 0 {
				i += int64(axisSize)
			}
			gathered[ii] = values[i]
		}
		output.Value = sameValueAs(&graph.Tensor{Value: &graph.Constant{Ints: gathered}}, output.Shape)
	}
	return results(output)
}

// gatherElementsRule: the output has the shape of the indices.
func gatherElementsRule(op *Op) ([]graph.Tensor, error) {
	data, indices := op.mustInput(0), op.mustInput(1)
	if ranked(data, indices) && data.Shape.Rank() != indices.Shape.Rank() {
		return nil, op.Incompatiblef("data %s and indices %s must have the same rank", data.Shape, indices.Shape)
	}
	return results(graph.Tensor{DType: data.DType, Shape: indices.Shape})
}

// likeDataRule: the output is like the first input (scatter operators).
func likeDataRule(op *Op) ([]graph.Tensor, error) {
	data := op.mustInput(0)
	return results(graph.Tensor{DType: data.DType, Shape: data.Shape})
}

// sliceRule slices the data along the given axes, clamping starts and ends to the dimension as ONNX does.
// starts, ends, axes and steps come from operands (or attributes, in opsets before 10).
func sliceRule(op *Op) ([]graph.Tensor, error) {
	data := op.mustInput(0)
	output := graph.Tensor{DType: data.DType, Shape: graph.Unranked()}
	if !data.Shape.HasRank() {
		return results(output)
	}
	rank := data.Shape.Rank()
	starts, startsKnown := op.IntsOperandOr(1, "starts", nil)
	ends, endsKnown := op.IntsOperandOr(2, "ends", nil)
	axes, axesKnown := op.IntsOperandOr(3, "axes", nil)
	steps, stepsKnown := op.IntsOperandOr(4, "", nil)
	if !axesKnown {
		output.Shape = graph.UnknownDims(rank)
		return results(output)
	}
	if startsKnown && endsKnown && (starts == nil || ends == nil) {
		return nil, op.UnsupportedAttributef("starts and ends must be given")
	}
	numAxes := max(len(starts), len(ends))
	if axes == nil {
		if !startsKnown || !endsKnown {
			// Without axes, the number of sliced axes is given by the length of starts/ends.
			numAxes = rank
			if n, ok := op.operandLength(1); ok {
				numAxes = n
			}
		}
		axes = make([]int, numAxes)
		for ii := range axes {
			axes[ii] = ii
		}
	}
	axes = op.normalizeAxes(axes, rank)
	if steps == nil && stepsKnown {
		steps = slices.Repeat([]int{1}, len(axes))
	}
	for _, list := range [][]int{starts, ends, steps} {
		if list != nil && len(list) != len(axes) {
			return nil, op.UnsupportedAttributef("starts %v, ends %v, axes %v and steps %v must have the same length",
				starts, ends, axes, steps)
		}
	}

	dims := data.Shape.Dims()
	ranges := make([][3]int, rank) // start, end, step per axis, for value slicing.
	for axis, d := range dims {
		size, _ := d.Size()
		ranges[axis] = [3]int{0, size, 1}
	}
	for ii, axis := range axes {
		if !startsKnown || !endsKnown || !stepsKnown {
			dims[axis] = graph.Unknown()
			continue
		}
		start, end, step := starts[ii], ends[ii], steps[ii]
		if step == 0 {
			return nil, op.UnsupportedAttributef("step can't be 0")
		}
		size, ok := dims[axis].Size()
		if !ok {
			if start == 0 && step == 1 && end >= math.MaxInt32 {
				// Full range: the dimension is kept as is.
				continue
			}
			dims[axis] = graph.Unknown()
			continue
		}
		start, end = clampSlice(start, end, step, size)
		ranges[axis] = [3]int{start, end, step}
		dims[axis] = graph.Concrete(sliceLength(start, end, step))
	}
	output.Shape = graph.MakeShape(dims...)

	if v, ok := intValue(data); ok && rank == 1 && output.Shape.IsFullyKnown() {
		r := ranges[0]
		var sliced []int64
		for i := r[0]; (r[2] > 0 && i < r[1]) || (r[2] < 0 && i > r[1]); i += r[2] {
			if i < 0 || i >= len(v) {
				sliced = nil
				break
			}
			sliced = append(sliced, v[i])
		}
		output.Value = sameValueAs(&graph.Tensor{Value: &graph.Constant{Ints: sliced}}, output.Shape)
		if sliceLen, _ := output.Shape.NumElements(); sliceLen == 0 {
			output.Value = &graph.Constant{Ints: []int64{}}
		}
	}
	return results(output)
}

// operandLength returns the length of a 1D operand, if known.
func (op *Op) operandLength(ii int) (int, bool) {
	input := op.Input(ii)
	if input == nil || !input.Shape.HasRank() || input.Shape.Rank() != 1 {
		return 0, false
	}
	return input.Shape.Dim(0).Size()
}

// clampSlice normalizes negative start/end and clamps them to the dimension size, following ONNX Slice.
func clampSlice(start, end, step, size int) (int, int) {
	if start < 0 {
		start += size
	}
	if end < 0 {
		end += size
	}
	if step > 0 {
		start = min(max(start, 0), size)
		end = min(max(end, 0), size)
	} else {
		start = min(max(start, 0), size-1)
		end = min(max(end, -1), size-1)
	}
	return start, end
}

// sliceLength is the number of elements in range(start, end, step), after clamping.
func sliceLength(start, end, step int) int {
	if step > 0 {
		if end <= start {
			return 0
		}
		return (end - start + step - 1) / step
	}
	if start <= end {
		return 0
	}
	return (start - end - step - 1) / -step
}

// oneHotRule inserts a dimension of size "depth" (value of the second operand) at "axis" of the indices shape.
func oneHotRule(op *Op) ([]graph.Tensor, error) {
	indices, depthT, values := op.mustInput(0), op.mustInput(1), op.mustInput(2)
	output := graph.Tensor{DType: values.DType, Shape: graph.Unranked()}
	if !indices.Shape.HasRank() {
		return results(output)
	}
	rank := indices.Shape.Rank() + 1
	axis := op.normalizeAxis(op.IntAttrOr("axis", -1), rank)
	depth := graph.Unknown()
	if v, ok := depthT.Value.AsFloats(), depthT.Value != nil; ok && len(v) == 1 {
		if v[0] < 1 {
			return nil, op.UnsupportedAttributef("invalid depth %g", v[0])
		}
		depth = graph.Concrete(int(v[0]))
	}
	dims := slices.Insert(indices.Shape.Dims(), axis, depth)
	output.Shape = graph.MakeShape(dims...)
	return results(output)
}

// nonZeroRule: [rank(x), number of non-zero elements], the latter only known if the value is.
func nonZeroRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	output := graph.Tensor{DType: dtypes.Int64, Shape: graph.UnknownDims(2)}
	if x.Shape.HasRank() {
		output.Shape = output.Shape.WithDim(0, graph.Concrete(x.Shape.Rank()))
	}
	if x.Value != nil && x.Shape.HasRank() {
		count := 0
		for _, f := range x.Value.AsFloats() {
			if f != 0 {
				count++
			}
		}
		output.Shape = output.Shape.WithDim(1, graph.Concrete(count))
	}
	return results(output)
}
