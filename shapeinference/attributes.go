package shapeinference

import (
	"github.com/gomlx/onnx-shapes/graph"
)

// This file holds the attribute accessors used by the rules.
// They throw a ShapeError (UnsupportedAttribute) on malformed attributes, caught by Registry.Apply.

// attr returns the attribute with the given name. If required is true, it throws if it is missing.
func (op *Op) attr(name string, required bool) (graph.Attribute, bool) {
	attr, found := op.Attributes[name]
	if !found && required {
		op.throwf(UnsupportedAttribute, "missing required attribute %q", name)
	}
	return attr, found
}

func (op *Op) assertAttrKind(name string, attr graph.Attribute, kinds ...graph.AttributeKind) {
	for _, kind := range kinds {
		if attr.Kind == kind {
			return
		}
	}
	op.throwf(UnsupportedAttribute, "attribute %q must be of type %v, got %s=%s", name, kinds, attr.Kind, attr.Format())
}

// HasAttr returns whether the attribute is set.
func (op *Op) HasAttr(name string) bool {
	_, found := op.Attributes[name]
	return found
}

// MustIntAttr returns the integer attribute. It throws if it is missing or of the wrong type.
func (op *Op) MustIntAttr(name string) int {
	attr, _ := op.attr(name, true)
	op.assertAttrKind(name, attr, graph.AttrInt)
	return int(attr.Int)
}

// IntAttrOr returns the integer attribute if present, or defaultValue otherwise.
func (op *Op) IntAttrOr(name string, defaultValue int) int {
	attr, found := op.attr(name, false)
	if !found {
		return defaultValue
	}
	op.assertAttrKind(name, attr, graph.AttrInt)
	return int(attr.Int)
}

// BoolAttrOr returns a boolean attribute (ONNX uses an int 0 or 1) if present, or defaultValue otherwise.
func (op *Op) BoolAttrOr(name string, defaultValue bool) bool {
	defaultInt := 0
	if defaultValue {
		defaultInt = 1
	}
	return op.IntAttrOr(name, defaultInt) != 0
}

// FloatAttrOr returns the float attribute if present, or defaultValue otherwise.
func (op *Op) FloatAttrOr(name string, defaultValue float64) float64 {
	attr, found := op.attr(name, false)
	if !found {
		return defaultValue
	}
	op.assertAttrKind(name, attr, graph.AttrFloat)
	return attr.Float
}

// StringAttrOr returns the string attribute if present, or defaultValue otherwise.
func (op *Op) StringAttrOr(name string, defaultValue string) string {
	attr, found := op.attr(name, false)
	if !found {
		return defaultValue
	}
	op.assertAttrKind(name, attr, graph.AttrString)
	return attr.String
}

// IntsAttrOr returns the integer list attribute if present, or defaultValues otherwise.
// A single INT attribute is accepted as a list of one element.
func (op *Op) IntsAttrOr(name string, defaultValues []int) []int {
	attr, found := op.attr(name, false)
	if !found {
		return defaultValues
	}
	op.assertAttrKind(name, attr, graph.AttrInts, graph.AttrInt)
	if attr.Kind == graph.AttrInt {
		return []int{int(attr.Int)}
	}
	return toInts(attr.Ints)
}

// FloatsAttrOr returns the float list attribute if present, or defaultValues otherwise.
func (op *Op) FloatsAttrOr(name string, defaultValues []float64) []float64 {
	attr, found := op.attr(name, false)
	if !found {
		return defaultValues
	}
	op.assertAttrKind(name, attr, graph.AttrFloats, graph.AttrFloat)
	if attr.Kind == graph.AttrFloat {
		return []float64{attr.Float}
	}
	return attr.Floats
}

// TensorAttr returns a tensor attribute, or nil if it is not set.
func (op *Op) TensorAttr(name string) *graph.Tensor {
	attr, found := op.attr(name, false)
	if !found {
		return nil
	}
	op.assertAttrKind(name, attr, graph.AttrTensor)
	if attr.Tensor == nil {
		op.throwf(UnsupportedAttribute, "attribute %q has no tensor", name)
	}
	return attr.Tensor
}

// IntsOperandOr returns the integer contents of an optional operand (ONNX opset >= 13 moved many attributes to
// inputs), falling back to the attribute of the same name, and then to defaultValues.
//
// The boolean is false if the operand is present but its value is not statically known: in which case the rule
// should produce a less specific shape.
func (op *Op) IntsOperandOr(inputIdx int, attrName string, defaultValues []int) ([]int, bool) {
	if input := op.Input(inputIdx); input != nil {
		if input.Value == nil {
			return nil, false
		}
		return toInts(input.Value.AsInts()), true
	}
	if attrName != "" {
		return op.IntsAttrOr(attrName, defaultValues), true
	}
	return defaultValues, true
}

func toInts(values []int64) []int {
	ints := make([]int, len(values))
	for ii, v := range values {
		ints[ii] = int(v)
	}
	return ints
}

// normalizeAxis converts a possibly negative axis to the range [0, rank), throwing if out of range.
func (op *Op) normalizeAxis(axis, rank int) int {
	if axis < -rank || axis >= rank {
		op.throwf(UnsupportedAttribute, "axis %d is out of range for rank %d", axis, rank)
	}
	if axis < 0 {
		axis += rank
	}
	return axis
}

// normalizeAxes applies normalizeAxis to all axes, and checks for repeated ones.
func (op *Op) normalizeAxes(axes []int, rank int) []int {
	normalized := make([]int, len(axes))
	seen := make(map[int]bool, len(axes))
	for ii, axis := range axes {
		normalized[ii] = op.normalizeAxis(axis, rank)
		if seen[normalized[ii]] {
			op.throwf(UnsupportedAttribute, "axis %d repeated in %v", axis, axes)
		}
		seen[normalized[ii]] = true
	}
	return normalized
}
