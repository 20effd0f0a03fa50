package graph

import (
	"strconv"

	"github.com/pkg/errors"
)

// Dim is one dimension of a Shape: either a concrete non-negative size or unknown.
//
// Unknown dimensions may carry a symbolic name (ONNX "dim_param", e.g. "batch_size"). Two unknown
// dimensions with the same non-empty symbol are taken to hold the same (runtime) value.
//
// The zero value is an anonymous unknown dimension.
type Dim struct {
	size   int
	symbol string
	known  bool
}

// Concrete returns a known dimension of the given size. It panics if size is negative.
func Concrete(size int) Dim {
	if size < 0 {
		panic(errors.Errorf("graph.Concrete(%d): dimension size cannot be negative", size))
	}
	return Dim{size: size, known: true}
}

// Unknown returns an anonymous unknown dimension.
func Unknown() Dim {
	return Dim{}
}

// Symbol returns an unknown dimension tagged with the given symbolic name.
func Symbol(name string) Dim {
	return Dim{symbol: name}
}

// IsKnown returns whether the dimension has a concrete size.
func (d Dim) IsKnown() bool { return d.known }

// Size returns the concrete size and true, or 0 and false if the dimension is unknown.
func (d Dim) Size() (int, bool) {
	return d.size, d.known
}

// SymbolName returns the symbolic name of an unknown dimension, or "" if it has none.
func (d Dim) SymbolName() string {
	if d.known {
		return ""
	}
	return d.symbol
}

// Is returns whether the dimension is known and equal to size.
func (d Dim) Is(size int) bool {
	return d.known && d.size == size
}

// Equal returns whether both dimensions are concrete with the same size, or both unknown with the same symbol.
func (d Dim) Equal(other Dim) bool {
	if d.known != other.known {
		return false
	}
	if d.known {
		return d.size == other.size
	}
	return d.symbol == other.symbol
}

// SameValue returns whether both dimensions are provably the same value: equal concrete sizes or the
// same non-empty symbol.
func (d Dim) SameValue(other Dim) bool {
	if d.known && other.known {
		return d.size == other.size
	}
	return !d.known && !other.known && d.symbol != "" && d.symbol == other.symbol
}

// Merge refines d with other: an unknown dimension takes the concrete value of the other side.
// It fails if both are concrete and different.
func (d Dim) Merge(other Dim) (Dim, error) {
	switch {
	case d.known && other.known:
		if d.size != other.size {
			return d, errors.Errorf("dimension %s conflicts with %s", d, other)
		}
		return d, nil
	case d.known:
		return d, nil
	case other.known:
		return other, nil
	case d.symbol == "":
		return other, nil
	default:
		return d, nil
	}
}

// String implements fmt.Stringer: concrete sizes print as numbers, symbols by name, and anonymous unknowns as "?".
func (d Dim) String() string {
	if d.known {
		return strconv.Itoa(d.size)
	}
	if d.symbol != "" {
		return d.symbol
	}
	return "?"
}

// ParseDim parses the format produced by Dim.String: a non-negative integer, "?" for unknown, or a symbol.
func ParseDim(s string) (Dim, error) {
	if s == "" {
		return Dim{}, errors.New("empty dimension")
	}
	if s == "?" {
		return Unknown(), nil
	}
	if s[0] == '-' || (s[0] >= '0' && s[0] <= '9') {
		size, err := strconv.Atoi(s)
		if err != nil {
			return Dim{}, errors.Wrapf(err, "invalid dimension %q", s)
		}
		if size < 0 {
			return Dim{}, errors.Errorf("invalid dimension %q: must be >= 0 or a symbol", s)
		}
		return Concrete(size), nil
	}
	return Symbol(s), nil
}
