package graph

import (
	"fmt"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
)

// Constant holds the statically known contents of a tensor, flattened in row-major order.
//
// Integer tensors (and booleans) use Ints, floating point tensors use Floats. Only one of them is set.
type Constant struct {
	Ints   []int64
	Floats []float64
}

// IntConstant creates a Constant with integer contents.
func IntConstant(values ...int64) *Constant {
	return &Constant{Ints: slices.Clone(values)}
}

// Len returns the number of elements held.
func (c *Constant) Len() int {
	if c == nil {
		return 0
	}
	if c.Floats != nil {
		return len(c.Floats)
	}
	return len(c.Ints)
}

// AsInts returns the values as integers: floats are truncated.
func (c *Constant) AsInts() []int64 {
	if c == nil {
		return nil
	}
	if c.Floats == nil {
		return c.Ints
	}
	ints := make([]int64, len(c.Floats))
	for ii, f := range c.Floats {
		ints[ii] = int64(f)
	}
	return ints
}

// AsFloats returns the values as floats.
func (c *Constant) AsFloats() []float64 {
	if c == nil {
		return nil
	}
	if c.Floats != nil {
		return c.Floats
	}
	floats := make([]float64, len(c.Ints))
	for ii, i := range c.Ints {
		floats[ii] = float64(i)
	}
	return floats
}

// Clone returns a deep copy.
func (c *Constant) Clone() *Constant {
	if c == nil {
		return nil
	}
	return &Constant{Ints: slices.Clone(c.Ints), Floats: slices.Clone(c.Floats)}
}

// Equal compares contents.
func (c *Constant) Equal(other *Constant) bool {
	if c == nil || other == nil {
		return c == other
	}
	return slices.Equal(c.Ints, other.Ints) && slices.Equal(c.Floats, other.Floats)
}

// Tensor describes one tensor of the graph: its element type, its (possibly partial) shape and, for constants and
// traced shape values, its contents.
//
// DType is dtypes.InvalidDType when the element type is unknown.
type Tensor struct {
	Name  string
	DType dtypes.DType
	Shape Shape
	Value *Constant
}

// NewTensor creates a tensor descriptor.
func NewTensor(name string, dtype dtypes.DType, shape Shape) *Tensor {
	return &Tensor{Name: name, DType: dtype, Shape: shape}
}

// IsResolved returns whether both the element type and the full shape are known.
func (t *Tensor) IsResolved() bool {
	return t.DType != dtypes.InvalidDType && t.Shape.IsFullyKnown()
}

// Clone returns a deep copy of the descriptor.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}
	return &Tensor{Name: t.Name, DType: t.DType, Shape: t.Shape, Value: t.Value.Clone()}
}

// Equal compares all fields.
func (t *Tensor) Equal(other *Tensor) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.Name == other.Name && t.DType == other.DType && t.Shape.Equal(other.Shape) && t.Value.Equal(other.Value)
}

// Merge refines the descriptor in place with the information in other (the name of other is ignored).
//
// It fails, leaving t unchanged, if other conflicts with what is already known: different element types, different
// ranks or different concrete dimensions. A known value is never replaced.
func (t *Tensor) Merge(other Tensor) error {
	dtype := t.DType
	if other.DType != dtypes.InvalidDType {
		if dtype != dtypes.InvalidDType && dtype != other.DType {
			return errors.Errorf("tensor %q: dtype %s conflicts with %s", t.Name, dtype, other.DType)
		}
		dtype = other.DType
	}
	shape, err := t.Shape.Merge(other.Shape)
	if err != nil {
		return errors.WithMessagef(err, "tensor %q", t.Name)
	}
	t.DType = dtype
	t.Shape = shape
	if t.Value == nil && other.Value != nil {
		t.Value = other.Value.Clone()
	}
	return nil
}

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	dtype := "?"
	if t.DType != dtypes.InvalidDType {
		dtype = t.DType.String()
	}
	if t.Value != nil && t.Value.Len() <= 8 {
		if t.Value.Floats != nil {
			return fmt.Sprintf("%s: (%s)%s=%v", t.Name, dtype, t.Shape, t.Value.Floats)
		}
		return fmt.Sprintf("%s: (%s)%s=%v", t.Name, dtype, t.Shape, t.Value.Ints)
	}
	return fmt.Sprintf("%s: (%s)%s", t.Name, dtype, t.Shape)
}
