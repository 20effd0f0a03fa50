package graph

import (
	"fmt"
	"slices"
)

// AttributeKind tags the variant held by an Attribute.
type AttributeKind int

const (
	AttrUndefined AttributeKind = iota
	AttrFloat
	AttrInt
	AttrString
	AttrTensor
	AttrGraph
	AttrFloats
	AttrInts
	AttrStrings
)

// String implements fmt.Stringer.
func (k AttributeKind) String() string {
	switch k {
	case AttrFloat:
		return "FLOAT"
	case AttrInt:
		return "INT"
	case AttrString:
		return "STRING"
	case AttrTensor:
		return "TENSOR"
	case AttrGraph:
		return "GRAPH"
	case AttrFloats:
		return "FLOATS"
	case AttrInts:
		return "INTS"
	case AttrStrings:
		return "STRINGS"
	default:
		return "UNDEFINED"
	}
}

// Attribute is a node attribute value. Only the field matching Kind is meaningful.
//
// Graph attributes (subgraphs of control-flow operators) are kept opaque: only their presence is recorded.
type Attribute struct {
	Kind    AttributeKind
	Float   float64
	Int     int64
	String  string
	Tensor  *Tensor
	Floats  []float64
	Ints    []int64
	Strings []string
}

// IntAttr creates an INT attribute.
func IntAttr(v int64) Attribute { return Attribute{Kind: AttrInt, Int: v} }

// IntsAttr creates an INTS attribute.
func IntsAttr(v ...int64) Attribute { return Attribute{Kind: AttrInts, Ints: slices.Clone(v)} }

// FloatAttr creates a FLOAT attribute.
func FloatAttr(v float64) Attribute { return Attribute{Kind: AttrFloat, Float: v} }

// FloatsAttr creates a FLOATS attribute.
func FloatsAttr(v ...float64) Attribute { return Attribute{Kind: AttrFloats, Floats: slices.Clone(v)} }

// StringAttr creates a STRING attribute.
func StringAttr(v string) Attribute { return Attribute{Kind: AttrString, String: v} }

// TensorAttr creates a TENSOR attribute.
func TensorAttr(t *Tensor) Attribute { return Attribute{Kind: AttrTensor, Tensor: t} }

// Clone returns a deep copy.
func (a Attribute) Clone() Attribute {
	a.Tensor = a.Tensor.Clone()
	a.Floats = slices.Clone(a.Floats)
	a.Ints = slices.Clone(a.Ints)
	a.Strings = slices.Clone(a.Strings)
	return a
}

// Format implements a compact representation, used in error messages.
func (a Attribute) Format() string {
	switch a.Kind {
	case AttrFloat:
		return fmt.Sprintf("%g", a.Float)
	case AttrInt:
		return fmt.Sprintf("%d", a.Int)
	case AttrString:
		return fmt.Sprintf("%q", a.String)
	case AttrTensor:
		if a.Tensor == nil {
			return "tensor(nil)"
		}
		return "tensor(" + a.Tensor.String() + ")"
	case AttrFloats:
		return fmt.Sprintf("%v", a.Floats)
	case AttrInts:
		return fmt.Sprintf("%v", a.Ints)
	case AttrStrings:
		return fmt.Sprintf("%q", a.Strings)
	case AttrGraph:
		return "graph"
	default:
		return "undefined"
	}
}

// Attributes maps attribute names to values.
type Attributes map[string]Attribute

// Clone returns a deep copy.
func (attrs Attributes) Clone() Attributes {
	if attrs == nil {
		return nil
	}
	cloned := make(Attributes, len(attrs))
	for name, attr := range attrs {
		cloned[name] = attr.Clone()
	}
	return cloned
}
