package graph

import (
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// Shape is an ordered sequence of dimensions, or "unranked" if even the rank is unknown.
//
// The zero value is an unranked shape. Shapes are values: methods never modify the receiver.
type Shape struct {
	dims   []Dim
	ranked bool
}

// MakeShape creates a ranked shape with the given dimensions. MakeShape() is a scalar.
func MakeShape(dims ...Dim) Shape {
	return Shape{dims: slices.Clone(dims), ranked: true}
}

// Sizes creates a fully concrete ranked shape.
func Sizes(sizes ...int) Shape {
	dims := make([]Dim, len(sizes))
	for ii, size := range sizes {
		dims[ii] = Concrete(size)
	}
	return Shape{dims: dims, ranked: true}
}

// UnknownDims creates a ranked shape of the given rank where every dimension is unknown.
func UnknownDims(rank int) Shape {
	return Shape{dims: make([]Dim, rank), ranked: true}
}

// Unranked returns a shape whose rank is unknown.
func Unranked() Shape {
	return Shape{}
}

// HasRank returns whether the rank of the shape is known.
func (s Shape) HasRank() bool { return s.ranked }

// Rank returns the number of dimensions. It is only meaningful if HasRank is true, it returns 0 otherwise.
func (s Shape) Rank() int { return len(s.dims) }

// IsScalar returns whether the shape is known to be a scalar (rank 0).
func (s Shape) IsScalar() bool { return s.ranked && len(s.dims) == 0 }

// Dim returns the dimension of the given axis. Negative axes count from the end.
// It panics if the axis is out of range.
func (s Shape) Dim(axis int) Dim {
	if axis < 0 {
		axis += len(s.dims)
	}
	return s.dims[axis]
}

// Dims returns a copy of the dimensions, nil if unranked.
func (s Shape) Dims() []Dim {
	return slices.Clone(s.dims)
}

// IsFullyKnown returns whether the rank and all dimensions are concrete.
func (s Shape) IsFullyKnown() bool {
	if !s.ranked {
		return false
	}
	for _, d := range s.dims {
		if !d.known {
			return false
		}
	}
	return true
}

// Sizes returns the concrete dimensions and true, if the shape is fully known.
func (s Shape) Sizes() ([]int, bool) {
	if !s.IsFullyKnown() {
		return nil, false
	}
	sizes := make([]int, len(s.dims))
	for ii, d := range s.dims {
		sizes[ii] = d.size
	}
	return sizes, true
}

// NumElements returns the product of the dimensions, if the shape is fully known. Scalars have 1 element.
func (s Shape) NumElements() (int, bool) {
	if !s.IsFullyKnown() {
		return 0, false
	}
	n := 1
	for _, d := range s.dims {
		n *= d.size
	}
	return n, true
}

// Equal returns whether both shapes have the same rank status and equal dimensions (symbols included).
func (s Shape) Equal(other Shape) bool {
	if s.ranked != other.ranked {
		return false
	}
	return slices.EqualFunc(s.dims, other.dims, Dim.Equal)
}

// Merge refines s with the information in other.
//
// An unranked shape takes the rank of the other side; ranked shapes must have the same rank, and each dimension is
// merged with Dim.Merge. A fully known shape therefore can only be merged with a compatible shape, and comes out
// unchanged.
func (s Shape) Merge(other Shape) (Shape, error) {
	if !other.ranked {
		return s, nil
	}
	if !s.ranked {
		return other, nil
	}
	if len(s.dims) != len(other.dims) {
		return s, errors.Errorf("rank %d of %s conflicts with rank %d of %s", len(s.dims), s, len(other.dims), other)
	}
	merged := make([]Dim, len(s.dims))
	for axis := range s.dims {
		var err error
		merged[axis], err = s.dims[axis].Merge(other.dims[axis])
		if err != nil {
			return s, errors.WithMessagef(err, "axis #%d of %s and %s", axis, s, other)
		}
	}
	return Shape{dims: merged, ranked: true}, nil
}

// WithDim returns a copy of the shape with the given axis replaced.
func (s Shape) WithDim(axis int, d Dim) Shape {
	dims := slices.Clone(s.dims)
	if axis < 0 {
		axis += len(dims)
	}
	dims[axis] = d
	return Shape{dims: dims, ranked: s.ranked}
}

// String implements fmt.Stringer. Ranked shapes print as "[1, 3, ?, batch]", unranked as "[*]".
func (s Shape) String() string {
	if !s.ranked {
		return "[*]"
	}
	parts := make([]string, len(s.dims))
	for ii, d := range s.dims {
		parts[ii] = d.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ParseShape parses a comma separated list of dimensions (see ParseDim), optionally enclosed in brackets.
// An empty list is a scalar, and "*" is an unranked shape.
func ParseShape(s string) (Shape, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	s = strings.TrimSpace(s)
	if s == "*" {
		return Unranked(), nil
	}
	if s == "" {
		return MakeShape(), nil
	}
	parts := strings.Split(s, ",")
	dims := make([]Dim, len(parts))
	for ii, part := range parts {
		var err error
		dims[ii], err = ParseDim(strings.TrimSpace(part))
		if err != nil {
			return Shape{}, errors.WithMessagef(err, "parsing shape %q", s)
		}
	}
	return Shape{dims: dims, ranked: true}, nil
}
