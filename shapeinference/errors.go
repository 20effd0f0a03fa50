package shapeinference

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a ShapeError.
type ErrorKind int

const (
	// Incompatible means the input shapes or types conflict for the operator, e.g. 3 vs 5 where they must match.
	Incompatible ErrorKind = iota + 1

	// UnsupportedAttribute means a required attribute (or constant operand) is missing or malformed.
	UnsupportedAttribute

	// UnknownOperator means no rule is registered for the operator.
	UnknownOperator
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case Incompatible:
		return "Incompatible"
	case UnsupportedAttribute:
		return "UnsupportedAttribute"
	case UnknownOperator:
		return "UnknownOperator"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ShapeError is returned (or thrown, inside rules) when the shape of a node cannot be legally inferred.
//
// Use errors.Is with ErrIncompatible, ErrUnsupportedAttribute or ErrUnknownOperator to test for the kind,
// or errors.As to access the node information.
type ShapeError struct {
	Kind   ErrorKind
	Node   string
	OpType string
	Msg    string
}

// Sentinel values for errors.Is: they match any ShapeError of the same kind.
var (
	ErrIncompatible         = &ShapeError{Kind: Incompatible}
	ErrUnsupportedAttribute = &ShapeError{Kind: UnsupportedAttribute}
	ErrUnknownOperator      = &ShapeError{Kind: UnknownOperator}
)

// Error implements error.
func (e *ShapeError) Error() string {
	node := e.OpType
	if e.Node != "" {
		node = fmt.Sprintf("%s node %q", e.OpType, e.Node)
	}
	if e.Msg == "" {
		return fmt.Sprintf("%s shape error in %s", e.Kind, node)
	}
	return fmt.Sprintf("%s shape error in %s: %s", e.Kind, node, e.Msg)
}

// Is makes the sentinel errors (no node, no message) match any ShapeError of the same kind.
func (e *ShapeError) Is(target error) bool {
	t, ok := target.(*ShapeError)
	if !ok {
		return false
	}
	if t.Node == "" && t.OpType == "" && t.Msg == "" {
		return t.Kind == e.Kind
	}
	return *t == *e
}

// IsShapeError returns the ShapeError wrapped in err, if any.
func IsShapeError(err error) (*ShapeError, bool) {
	var shapeErr *ShapeError
	if errors.As(err, &shapeErr) {
		return shapeErr, true
	}
	return nil, false
}

func (op *Op) newError(kind ErrorKind, format string, args ...any) *ShapeError {
	return &ShapeError{Kind: kind, Node: op.Name, OpType: op.Type, Msg: fmt.Sprintf(format, args...)}
}

// Incompatiblef returns an Incompatible error for the op.
func (op *Op) Incompatiblef(format string, args ...any) error {
	return op.newError(Incompatible, format, args...)
}

// UnsupportedAttributef returns an UnsupportedAttribute error for the op.
func (op *Op) UnsupportedAttributef(format string, args ...any) error {
	return op.newError(UnsupportedAttribute, format, args...)
}

// throwf panics with a ShapeError, to be caught by Registry.Apply. Used by the attribute helpers, that would be
// too verbose to check at every call site.
func (op *Op) throwf(kind ErrorKind, format string, args ...any) {
	panic(op.newError(kind, format, args...))
}
