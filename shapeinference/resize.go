package shapeinference

import (
	"github.com/chewxy/math32"
	"github.com/gomlx/onnx-shapes/graph"
)

func registerResize(r *Registry) {
	r.Register("Resize", resizeRule).
		Register("Upsample", resizeRule)
}

// resizeRule handles Resize and Upsample. The output dimensions are taken from "sizes" if given, or computed as
// floor(in * scale) in float32, as ONNX runtimes do.
//
// Operand positions changed over opsets: Resize-10 and Upsample-9 take (X, scales), Resize-11+ takes
// (X, roi, scales, sizes), and Upsample-7 has a "scales" attribute.
func resizeRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	output := graph.Tensor{DType: x.DType, Shape: graph.Unranked()}
	if !x.Shape.HasRank() {
		return results(output)
	}
	rank := x.Shape.Rank()
	output.Shape = graph.UnknownDims(rank)

	axes := op.IntsAttrOr("axes", nil)
	if axes == nil {
		axes = make([]int, rank)
		for ii := range axes {
			axes[ii] = ii
		}
	}
	axes = op.normalizeAxes(axes, rank)

	scalesT, sizesT := op.Input(2), op.Input(3)
	if op.Type == "Upsample" || len(op.Inputs) == 2 {
		scalesT, sizesT = op.Input(1), nil
	}
	var scales []float32
	if scalesT == nil && op.HasAttr("scales") {
		for _, s := range op.FloatsAttrOr("scales", nil) {
			scales = append(scales, float32(s))
		}
	} else if scalesT != nil && scalesT.Value != nil {
		for _, s := range scalesT.Value.AsFloats() {
			scales = append(scales, float32(s))
		}
	}
	sizes, sizesKnown := shapeValue(sizesT)
	if sizesT != nil && sizesKnown && len(sizes) == 0 {
		sizesT = nil
	}

	dims := x.Shape.Dims()
	switch {
	case sizesT != nil:
		if !sizesKnown {
			return results(output)
		}
		if len(sizes) != len(axes) {
			return nil, op.UnsupportedAttributef("sizes %v must have one entry per resized axis (%d)", sizes, len(axes))
		}
		resized, err := op.resizeToSizes(dims, axes, sizes)
		if err != nil {
			return nil, err
		}
		output.Shape = graph.MakeShape(resized...)
	case len(scales) > 0:
		if len(scales) != len(axes) {
			return nil, op.UnsupportedAttributef("scales %v must have one entry per resized axis (%d)", scales, len(axes))
		}
		for ii, axis := range axes {
			if scales[ii] <= 0 {
				return nil, op.UnsupportedAttributef("scales %v must be positive", scales)
			}
			if size, ok := dims[axis].Size(); ok {
				dims[axis] = graph.Concrete(int(math32.Floor(float32(size) * scales[ii])))
			} else if scales[ii] != 1 {
				dims[axis] = graph.Unknown()
			}
		}
		output.Shape = graph.MakeShape(dims...)
	}
	return results(output)
}

// resizeToSizes applies the target sizes, honoring keep_aspect_ratio_policy: with "not_larger" or "not_smaller"
// a single scale is chosen for all resized axes, and the output is round(in * scale).
func (op *Op) resizeToSizes(dims []graph.Dim, axes, sizes []int) ([]graph.Dim, error) {
	policy := op.StringAttrOr("keep_aspect_ratio_policy", "stretch")
	switch policy {
	case "stretch":
		for ii, axis := range axes {
			if sizes[ii] < 0 {
				return nil, op.UnsupportedAttributef("invalid sizes %v", sizes)
			}
			dims[axis] = graph.Concrete(sizes[ii])
		}
		return dims, nil
	case "not_larger", "not_smaller":
	default:
		return nil, op.UnsupportedAttributef("unknown keep_aspect_ratio_policy %q", policy)
	}
	var scale float32
	for ii, axis := range axes {
		size, ok := dims[axis].Size()
		if !ok {
			for _, axis := range axes {
				dims[axis] = graph.Unknown()
			}
			return dims, nil
		}
		s := float32(sizes[ii]) / float32(size)
		switch {
		case ii == 0:
			scale = s
		case policy == "not_larger":
			scale = min(scale, s)
		default:
			scale = max(scale, s)
		}
	}
	for _, axis := range axes {
		size, _ := dims[axis].Size()
		dims[axis] = graph.Concrete(int(math32.Floor(float32(size)*scale + 0.5)))
	}
	return dims, nil
}
