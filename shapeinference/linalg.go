package shapeinference

import (
	"slices"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/onnx-shapes/graph"
	"github.com/pkg/errors"
)

func registerLinearAlgebra(r *Registry) {
	r.Register("MatMul", matMulRule).
		Register("MatMulInteger", matMulRule).
		Register("Gemm", gemmRule).
		Register("Einsum", einsumRule)
}

// matMulRule follows numpy.matmul: 1D operands are promoted to matrices (and the promoted axis removed from the
// output), batch axes are broadcast, and the contracting dimensions must match.
func matMulRule(op *Op) ([]graph.Tensor, error) {
	a, b := op.mustInput(0), op.mustInput(1)
	dtype := a.DType
	if op.Type == "MatMulInteger" {
		dtype = dtypes.Int32
	} else if _, err := op.commonDType(a, b); err != nil {
		return nil, err
	}
	output := graph.Tensor{DType: dtype, Shape: graph.Unranked()}
	if !ranked(a, b) {
		return results(output)
	}
	if a.Shape.IsScalar() || b.Shape.IsScalar() {
		return nil, op.Incompatiblef("operands must not be scalars, got %s and %s", a.Shape, b.Shape)
	}
	aDims, bDims := a.Shape.Dims(), b.Shape.Dims()
	aVector, bVector := len(aDims) == 1, len(bDims) == 1
	if aVector {
		aDims = append([]graph.Dim{graph.Concrete(1)}, aDims...)
	}
	if bVector {
		bDims = append(bDims, graph.Concrete(1))
	}
	aRank, bRank := len(aDims), len(bDims)
	if _, err := aDims[aRank-1].Merge(bDims[bRank-2]); err != nil {
		return nil, op.Incompatiblef("contracting dimensions of %s and %s don't match", a.Shape, b.Shape)
	}
	batch, err := Broadcast(graph.MakeShape(aDims[:aRank-2]...), graph.MakeShape(bDims[:bRank-2]...))
	if err != nil {
		return nil, op.Incompatiblef("batch axes of %s and %s: %v", a.Shape, b.Shape, err)
	}
	dims := batch.Dims()
	if !aVector {
		dims = append(dims, aDims[aRank-2])
	}
	if !bVector {
		dims = append(dims, bDims[bRank-1])
	}
	output.Shape = graph.MakeShape(dims...)
	return results(output)
}

// gemmRule: Y = alpha * A' * B' + beta * C, where A' is [M, K] (A transposed if transA), B' is [K, N] (B transposed
// if transB), and C must be unidirectionally broadcastable to [M, N].
func gemmRule(op *Op) ([]graph.Tensor, error) {
	a, b, c := op.mustInput(0), op.mustInput(1), op.Input(2)
	dtype, err := op.commonDType(a, b, c)
	if err != nil {
		return nil, err
	}
	for _, t := range []*graph.Tensor{a, b} {
		if t.Shape.HasRank() && t.Shape.Rank() != 2 {
			return nil, op.Incompatiblef("operands must be 2D, got %s", t.Shape)
		}
	}
	m, k, n, k2 := graph.Unknown(), graph.Unknown(), graph.Unknown(), graph.Unknown()
	if a.Shape.HasRank() {
		m, k = a.Shape.Dim(0), a.Shape.Dim(1)
		if op.BoolAttrOr("transA", false) {
			m, k = k, m
		}
	}
	if b.Shape.HasRank() {
		k2, n = b.Shape.Dim(0), b.Shape.Dim(1)
		if op.BoolAttrOr("transB", false) {
			k2, n = n, k2
		}
	}
	if _, err := k.Merge(k2); err != nil {
		return nil, op.Incompatiblef("contracting dimensions of %s and %s don't match (transA=%v, transB=%v)",
			a.Shape, b.Shape, op.BoolAttrOr("transA", false), op.BoolAttrOr("transB", false))
	}
	shape := graph.MakeShape(m, n)
	if c != nil {
		if err := BroadcastTo(c.Shape, shape); err != nil {
			return nil, op.Incompatiblef("C: %v", err)
		}
		// C may resolve unknown M or N when it has the full dimension.
		if c.Shape.HasRank() && c.Shape.Rank() == 2 {
			dims := shape.Dims()
			for ii, d := range c.Shape.Dims() {
				if !dims[ii].IsKnown() && d.IsKnown() && !d.Is(1) {
					dims[ii] = d
				}
			}
			shape = graph.MakeShape(dims...)
		}
	}
	return results(graph.Tensor{DType: dtype, Shape: shape})
}

// einsumTerm is one side of an einsum equation: the axis labels, with "." standing for the ellipsis.
type einsumTerm struct {
	labels      []rune
	hasEllipsis bool
}

func parseEinsumTerm(term string) (einsumTerm, error) {
	var t einsumTerm
	term = strings.TrimSpace(term)
	if strings.Count(term, "...") > 1 {
		return t, errors.Errorf("term %q has more than one ellipsis", term)
	}
	if strings.Contains(term, "...") {
		t.hasEllipsis = true
		term = strings.Replace(term, "...", ".", 1)
	}
	for _, r := range term {
		switch {
		case r == '.':
			t.labels = append(t.labels, r)
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			t.labels = append(t.labels, r)
		case r == ' ':
		default:
			return t, errors.Errorf("invalid label %q in term %q", r, term)
		}
	}
	return t, nil
}

// einsumRule derives the output shape of the Einstein summation given in "equation": every label must have the
// same dimension in all operands, and ellipsis axes are broadcast.
// Without "->", the output is the ellipsis followed by the labels used only once, in alphabetical order.
func einsumRule(op *Op) ([]graph.Tensor, error) {
	equation := strings.ReplaceAll(op.StringAttrOr("equation", ""), " ", "")
	if equation == "" {
		return nil, op.UnsupportedAttributef("missing equation")
	}
	inputs := op.presentInputs()
	dtype, err := op.commonDType(inputs...)
	if err != nil {
		return nil, err
	}
	lhs, rhs, explicit := strings.Cut(equation, "->")
	termStrs := strings.Split(lhs, ",")
	if len(termStrs) != len(inputs) {
		return nil, op.UnsupportedAttributef("equation %q has %d operands, but %d inputs were given", equation, len(termStrs), len(inputs))
	}
	terms := make([]einsumTerm, len(termStrs))
	for ii, s := range termStrs {
		if terms[ii], err = parseEinsumTerm(s); err != nil {
			return nil, op.UnsupportedAttributef("equation %q: %v", equation, err)
		}
	}
	var outTerm einsumTerm
	if explicit {
		if outTerm, err = parseEinsumTerm(rhs); err != nil {
			return nil, op.UnsupportedAttributef("equation %q: %v", equation, err)
		}
	} else {
		counts := make(map[rune]int)
		anyEllipsis := false
		for _, t := range terms {
			anyEllipsis = anyEllipsis || t.hasEllipsis
			for _, r := range t.labels {
				if r != '.' {
					counts[r]++
				}
			}
		}
		if anyEllipsis {
			outTerm.labels = append(outTerm.labels, '.')
			outTerm.hasEllipsis = true
		}
		var single []rune
		for r, count := range counts {
			if count == 1 {
				single = append(single, r)
			}
		}
		slices.Sort(single)
		outTerm.labels = append(outTerm.labels, single...)
	}

	output := graph.Tensor{DType: dtype, Shape: graph.Unranked()}
	labelDims := make(map[rune]graph.Dim)
	ellipsis := graph.MakeShape()
	allRanked := true
	for ii, t := range terms {
		input := inputs[ii]
		if !input.Shape.HasRank() {
			allRanked = false
			continue
		}
		numLabels := len(t.labels)
		if t.hasEllipsis {
			numLabels--
		}
		rank := input.Shape.Rank()
		if rank < numLabels || (!t.hasEllipsis && rank != numLabels) {
			return nil, op.Incompatiblef("operand #%d of shape %s doesn't match term %q", ii, input.Shape, termStrs[ii])
		}
		ellipsisRank := rank - numLabels
		axis := 0
		for _, r := range t.labels {
			if r == '.' {
				ellipsisShape := graph.MakeShape(input.Shape.Dims()[axis : axis+ellipsisRank]...)
				if ellipsis, err = Broadcast(ellipsis, ellipsisShape); err != nil {
					return nil, op.Incompatiblef("ellipsis axes of operand #%d: %v", ii, err)
				}
				axis += ellipsisRank
				continue
			}
			d := input.Shape.Dim(axis)
			if prev, found := labelDims[r]; found {
				if labelDims[r], err = prev.Merge(d); err != nil {
					return nil, op.Incompatiblef("label %q has dimension %s in operand #%d, and %s elsewhere", r, d, ii, prev)
				}
			} else {
				labelDims[r] = d
			}
			axis++
		}
	}
	if !allRanked {
		return results(output)
	}
	var dims []graph.Dim
	for _, r := range outTerm.labels {
		if r == '.' {
			dims = append(dims, ellipsis.Dims()...)
			continue
		}
		d, found := labelDims[r]
		if !found {
			return nil, op.UnsupportedAttributef("equation %q: output label %q not in any operand", equation, r)
		}
		dims = append(dims, d)
	}
	output.Shape = graph.MakeShape(dims...)
	return results(output)
}
