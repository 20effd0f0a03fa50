package shapeinference

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/onnx-shapes/graph"
)

func registerConvolutions(r *Registry) {
	r.Register("Conv", convRule).
		Register("ConvInteger", convRule).
		Register("QLinearConv", qLinearConvRule).
		Register("ConvTranspose", convTransposeRule)
	r.registerAll(poolRule, "MaxPool", "AveragePool", "LpPool")
	r.registerAll(globalPoolRule, "GlobalAveragePool", "GlobalMaxPool", "GlobalLpPool")
}

// window holds the attributes common to convolutions and pooling, one entry per spatial axis.
type window struct {
	kernel    []graph.Dim
	strides   []int
	dilations []int
	// pads are [begin_0, begin_1, ..., end_0, end_1, ...], as in ONNX.
	pads     []int
	autoPad  string
	ceilMode bool
}

// parseWindow reads the window attributes for the given number of spatial axes. kernel is the kernel shape
// derived from the weights (for convolutions), and is overridden by the "kernel_shape" attribute if set.
func (op *Op) parseWindow(spatialRank int, kernel []graph.Dim) *window {
	w := &window{kernel: kernel}
	if shape := op.IntsAttrOr("kernel_shape", nil); shape != nil {
		if len(shape) != spatialRank {
			op.throwf(UnsupportedAttribute, "kernel_shape %v must have %d spatial axes", shape, spatialRank)
		}
		w.kernel = make([]graph.Dim, spatialRank)
		for ii, k := range shape {
			if k < 1 {
				op.throwf(UnsupportedAttribute, "kernel_shape %v must be >= 1", shape)
			}
			w.kernel[ii] = graph.Concrete(k)
		}
	}
	if w.kernel == nil {
		op.throwf(UnsupportedAttribute, "kernel_shape not given")
	}
	ones := func() []int {
		s := make([]int, spatialRank)
		for ii := range s {
			s[ii] = 1
		}
		return s
	}
	w.strides = op.IntsAttrOr("strides", ones())
	w.dilations = op.IntsAttrOr("dilations", ones())
	w.pads = op.IntsAttrOr("pads", make([]int, 2*spatialRank))
	w.autoPad = op.StringAttrOr("auto_pad", "NOTSET")
	w.ceilMode = op.BoolAttrOr("ceil_mode", false)
	switch {
	case len(w.strides) != spatialRank:
		op.throwf(UnsupportedAttribute, "strides %v must have %d spatial axes", w.strides, spatialRank)
	case len(w.dilations) != spatialRank:
		op.throwf(UnsupportedAttribute, "dilations %v must have %d spatial axes", w.dilations, spatialRank)
	case len(w.pads) != 2*spatialRank:
		op.throwf(UnsupportedAttribute, "pads %v must have 2 entries per spatial axis (%d)", w.pads, spatialRank)
	}
	for ii := range spatialRank {
		if w.strides[ii] < 1 || w.dilations[ii] < 1 {
			op.throwf(UnsupportedAttribute, "strides %v and dilations %v must be >= 1", w.strides, w.dilations)
		}
	}
	switch w.autoPad {
	case "NOTSET", "VALID", "SAME_UPPER", "SAME_LOWER":
	default:
		op.throwf(UnsupportedAttribute, "unknown auto_pad %q", w.autoPad)
	}
	return w
}

// outputDims computes the spatial output dimensions for the given spatial input dimensions:
//
//	out = floor((in + padBegin + padEnd - dilation*(k-1) - 1) / stride) + 1
//
// with ceil instead of floor if ceilMode is set, and out = ceil(in / stride) for the SAME auto paddings.
// In ceil mode a last window starting past in + padBegin is not counted.
func (w *window) outputDims(op *Op, input graph.Shape) ([]graph.Dim, error) {
	spatialRank := len(w.kernel)
	dims := make([]graph.Dim, spatialRank)
	for ii := range spatialRank {
		in, inKnown := input.Dim(2 + ii).Size()
		if !inKnown {
			dims[ii] = graph.Unknown()
			continue
		}
		stride := w.strides[ii]
		if w.autoPad == "SAME_UPPER" || w.autoPad == "SAME_LOWER" {
			dims[ii] = graph.Concrete((in + stride - 1) / stride)
			continue
		}
		k, kKnown := w.kernel[ii].Size()
		if !kKnown {
			dims[ii] = graph.Unknown()
			continue
		}
		padded := in
		if w.autoPad == "NOTSET" {
			padded += w.pads[ii] + w.pads[ii+spatialRank]
		}
		effectiveKernel := w.dilations[ii]*(k-1) + 1
		if effectiveKernel > padded {
			return nil, op.Incompatiblef("effective kernel dimension %d for spatial axis #%d is larger than the padded input dimension %d (input shape %s)",
				effectiveKernel, ii, padded, input)
		}
		span := padded - effectiveKernel
		if !w.ceilMode {
			dims[ii] = graph.Concrete(span/stride + 1)
			continue
		}
		positions := (span + stride - 1) / stride
		padBegin := 0
		if w.autoPad == "NOTSET" {
			padBegin = w.pads[ii]
		}
		if positions*stride >= in+padBegin {
			// The last window would start in the end padding: it is dropped.
			positions--
		}
		dims[ii] = graph.Concrete(positions + 1)
	}
	return dims, nil
}

// spatialRankOf returns the number of spatial axes, from the first ranked tensor ([N, C, spatial...]) or from
// kernel_shape.
func (op *Op) spatialRankOf(tensors ...*graph.Tensor) (int, bool) {
	for _, t := range tensors {
		if t != nil && t.Shape.HasRank() {
			if t.Shape.Rank() < 2 {
				op.throwf(Incompatible, "operand %s must have rank >= 2", t.Shape)
			}
			return t.Shape.Rank() - 2, true
		}
	}
	if shape := op.IntsAttrOr("kernel_shape", nil); shape != nil {
		return len(shape), true
	}
	return 0, false
}

// convRule: X is [N, C, D1, ..., Dn], W is [M, C/group, k1, ..., kn], and the output is [N, M, o1, ..., on].
func convRule(op *Op) ([]graph.Tensor, error) {
	x, w := op.mustInput(0), op.mustInput(1)
	dtype := x.DType
	if op.Type == "ConvInteger" {
		dtype = dtypes.Int32
	} else if _, err := op.commonDType(x, w); err != nil {
		return nil, err
	}
	return convOutput(op, x, w, op.Input(2), dtype)
}

// qLinearConvRule: inputs are x, x_scale, x_zero_point, w, w_scale, w_zero_point, y_scale, y_zero_point, B.
func qLinearConvRule(op *Op) ([]graph.Tensor, error) {
	x, w := op.mustInput(0), op.mustInput(3)
	dtype := dtypes.InvalidDType
	if zeroPoint := op.Input(7); zeroPoint != nil {
		dtype = zeroPoint.DType
	}
	return convOutput(op, x, w, op.Input(8), dtype)
}

func convOutput(op *Op, x, w, bias *graph.Tensor, dtype dtypes.DType) ([]graph.Tensor, error) {
	output := graph.Tensor{DType: dtype, Shape: graph.Unranked()}
	spatialRank, ok := op.spatialRankOf(x, w)
	if !ok {
		return results(output)
	}
	if ranked(x, w) && x.Shape.Rank() != w.Shape.Rank() {
		return nil, op.Incompatiblef("input %s and weights %s must have the same rank", x.Shape, w.Shape)
	}
	group := op.IntAttrOr("group", 1)
	if group < 1 {
		return nil, op.UnsupportedAttributef("invalid group %d", group)
	}

	batch, outChannels := graph.Unknown(), graph.Unknown()
	kernel := graph.UnknownDims(spatialRank).Dims()
	if w.Shape.HasRank() {
		outChannels = w.Shape.Dim(0)
		kernel = w.Shape.Dims()[2:]
		if x.Shape.HasRank() {
			inChannels, inKnown := x.Shape.Dim(1).Size()
			perGroup, perGroupKnown := w.Shape.Dim(1).Size()
			if inKnown && perGroupKnown && inChannels != perGroup*group {
				return nil, op.Incompatiblef("input %s has %d channels, but weights %s with group=%d expect %d",
					x.Shape, inChannels, w.Shape, group, perGroup*group)
			}
		}
		if m, known := outChannels.Size(); known && m%group != 0 {
			return nil, op.Incompatiblef("output channels %d of weights %s not divisible by group=%d", m, w.Shape, group)
		}
	}
	if bias != nil && bias.Shape.HasRank() {
		if bias.Shape.Rank() != 1 {
			return nil, op.Incompatiblef("bias must be 1D, got %s", bias.Shape)
		}
		merged, err := outChannels.Merge(bias.Shape.Dim(0))
		if err != nil {
			return nil, op.Incompatiblef("bias %s doesn't match the output channels of weights %s", bias.Shape, w.Shape)
		}
		outChannels = merged
	}
	win := op.parseWindow(spatialRank, kernel)

	spatial := graph.UnknownDims(spatialRank).Dims()
	if x.Shape.HasRank() {
		batch = x.Shape.Dim(0)
		var err error
		if spatial, err = win.outputDims(op, x.Shape); err != nil {
			return nil, err
		}
	}
	output.Shape = graph.MakeShape(append([]graph.Dim{batch, outChannels}, spatial...)...)
	return results(output)
}

// convTransposeRule: X is [N, C, D1, ..., Dn], W is [C, M/group, k1, ..., kn], and the output is [N, M, o1, ..., on]
// where each spatial dimension is given by "output_shape" or:
//
//	out = stride*(in-1) + output_padding + dilation*(k-1) + 1 - padBegin - padEnd
//
// or in*stride for the SAME auto paddings.
func convTransposeRule(op *Op) ([]graph.Tensor, error) {
	x, w := op.mustInput(0), op.mustInput(1)
	dtype, err := op.commonDType(x, w)
	if err != nil {
		return nil, err
	}
	output := graph.Tensor{DType: dtype, Shape: graph.Unranked()}
	spatialRank, ok := op.spatialRankOf(x, w)
	if !ok {
		return results(output)
	}
	group := op.IntAttrOr("group", 1)
	if group < 1 {
		return nil, op.UnsupportedAttributef("invalid group %d", group)
	}
	batch, outChannels := graph.Unknown(), graph.Unknown()
	kernel := graph.UnknownDims(spatialRank).Dims()
	if w.Shape.HasRank() {
		if perGroup, known := w.Shape.Dim(1).Size(); known {
			outChannels = graph.Concrete(perGroup * group)
		}
		kernel = w.Shape.Dims()[2:]
		if x.Shape.HasRank() {
			if _, err := x.Shape.Dim(1).Merge(w.Shape.Dim(0)); err != nil {
				return nil, op.Incompatiblef("input %s channels don't match weights %s", x.Shape, w.Shape)
			}
		}
	}
	win := op.parseWindow(spatialRank, kernel)
	outputPadding := op.IntsAttrOr("output_padding", make([]int, spatialRank))
	if len(outputPadding) != spatialRank {
		return nil, op.UnsupportedAttributef("output_padding %v must have %d spatial axes", outputPadding, spatialRank)
	}

	spatial := graph.UnknownDims(spatialRank).Dims()
	if outputShape := op.IntsAttrOr("output_shape", nil); outputShape != nil {
		if len(outputShape) < spatialRank {
			return nil, op.UnsupportedAttributef("output_shape %v must have %d spatial axes", outputShape, spatialRank)
		}
		outputShape = outputShape[len(outputShape)-spatialRank:]
		for ii, d := range outputShape {
			if d < 0 {
				return nil, op.UnsupportedAttributef("output_shape %v can't have negative dimensions", outputShape)
			}
			spatial[ii] = graph.Concrete(d)
		}
	} else if x.Shape.HasRank() {
		for ii := range spatialRank {
			in, inKnown := x.Shape.Dim(2 + ii).Size()
			k, kKnown := win.kernel[ii].Size()
			stride := win.strides[ii]
			switch {
			case !inKnown:
			case win.autoPad == "SAME_UPPER" || win.autoPad == "SAME_LOWER":
				spatial[ii] = graph.Concrete(in * stride)
			case kKnown:
				out := stride*(in-1) + outputPadding[ii] + win.dilations[ii]*(k-1) + 1
				if win.autoPad == "NOTSET" {
					out -= win.pads[ii] + win.pads[ii+spatialRank]
				}
				if out < 0 {
					return nil, op.Incompatiblef("negative output dimension %d for spatial axis #%d (input %s)", out, ii, x.Shape)
				}
				spatial[ii] = graph.Concrete(out)
			}
		}
	}
	if x.Shape.HasRank() {
		batch = x.Shape.Dim(0)
	}
	output.Shape = graph.MakeShape(append([]graph.Dim{batch, outChannels}, spatial...)...)
	return results(output)
}

// poolRule: X is [N, C, D1, ..., Dn] and the output is [N, C, o1, ..., on]. MaxPool has an optional second
// output with the Int64 indices.
func poolRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	output := graph.Tensor{DType: x.DType, Shape: graph.Unranked()}
	spatialRank, ok := op.spatialRankOf(x)
	if !ok {
		return results(output, graph.Tensor{DType: dtypes.Int64, Shape: graph.Unranked()})
	}
	win := op.parseWindow(spatialRank, nil)
	output.Shape = graph.UnknownDims(2 + spatialRank)
	if x.Shape.HasRank() {
		spatial, err := win.outputDims(op, x.Shape)
		if err != nil {
			return nil, err
		}
		output.Shape = graph.MakeShape(append([]graph.Dim{x.Shape.Dim(0), x.Shape.Dim(1)}, spatial...)...)
	}
	return results(output, graph.Tensor{DType: dtypes.Int64, Shape: output.Shape})
}

// globalPoolRule: [N, C, D1, ..., Dn] -> [N, C, 1, ..., 1].
func globalPoolRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	output := graph.Tensor{DType: x.DType, Shape: graph.Unranked()}
	if !x.Shape.HasRank() {
		return results(output)
	}
	if x.Shape.Rank() < 2 {
		return nil, op.Incompatiblef("input must have rank >= 2, got %s", x.Shape)
	}
	dims := x.Shape.Dims()
	for ii := 2; ii < len(dims); ii++ {
		dims[ii] = graph.Concrete(1)
	}
	output.Shape = graph.MakeShape(dims...)
	return results(output)
}
