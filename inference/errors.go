package inference

import (
	"fmt"
	"strings"
)

// GraphErrorKind classifies a GraphError.
type GraphErrorKind int

const (
	// Cycle means the nodes can't be ordered: some node (indirectly) depends on its own outputs.
	Cycle GraphErrorKind = iota + 1

	// DuplicateProducer means a tensor is output by more than one node, or by a node and as a graph input.
	DuplicateProducer
)

// String implements fmt.Stringer.
func (k GraphErrorKind) String() string {
	switch k {
	case Cycle:
		return "Cycle"
	case DuplicateProducer:
		return "DuplicateProducer"
	default:
		return fmt.Sprintf("GraphErrorKind(%d)", int(k))
	}
}

// GraphError is returned when the dependency order of the nodes can't be established.
type GraphError struct {
	Kind GraphErrorKind

	// Nodes involved: for a Cycle, the nodes in each cyclic component, in declaration order.
	Nodes []string

	Msg string
}

// Sentinel values for errors.Is.
var (
	ErrCycle             = &GraphError{Kind: Cycle}
	ErrDuplicateProducer = &GraphError{Kind: DuplicateProducer}
)

// Error implements error.
func (e *GraphError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "graph error %s", e.Kind)
	if e.Msg != "" {
		fmt.Fprintf(&sb, ": %s", e.Msg)
	}
	if len(e.Nodes) > 0 {
		fmt.Fprintf(&sb, " (nodes %s)", strings.Join(e.Nodes, ", "))
	}
	return sb.String()
}

// Is matches the sentinel errors with any GraphError of the same kind.
func (e *GraphError) Is(target error) bool {
	t, ok := target.(*GraphError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && len(t.Nodes) == 0
}

// InferenceErrorKind classifies an InferenceError.
type InferenceErrorKind int

const (
	// ShapeMismatch means a caller supplied input shape conflicts with the one declared in the graph.
	ShapeMismatch InferenceErrorKind = iota + 1

	// UnknownInput means a caller supplied shape names a tensor that is not a graph input.
	UnknownInput

	// ShapeFailure wraps a *shapeinference.ShapeError raised while visiting a node.
	ShapeFailure

	// GraphFailure wraps a *GraphError.
	GraphFailure

	// Unresolved means some graph output remained unresolved, and the engine was configured with
	// WithStrictOutputs(true).
	Unresolved
)

// String implements fmt.Stringer.
func (k InferenceErrorKind) String() string {
	switch k {
	case ShapeMismatch:
		return "ShapeMismatch"
	case UnknownInput:
		return "UnknownInput"
	case ShapeFailure:
		return "ShapeFailure"
	case GraphFailure:
		return "GraphFailure"
	case Unresolved:
		return "Unresolved"
	default:
		return fmt.Sprintf("InferenceErrorKind(%d)", int(k))
	}
}

// InferenceError is the error returned by Engine.Infer. It unwraps to the underlying cause, so errors.As can reach a
// *shapeinference.ShapeError or a *GraphError.
type InferenceError struct {
	Kind InferenceErrorKind

	// Node and OpType identify the offending node, if any.
	Node, OpType string

	// Tensors lists the offending tensors, if any.
	Tensors []string

	Err error
}

// Error implements error.
func (e *InferenceError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "shape inference failed (%s)", e.Kind)
	if e.OpType != "" || e.Node != "" {
		fmt.Fprintf(&sb, " at %s node %q", e.OpType, e.Node)
	}
	if len(e.Tensors) > 0 {
		fmt.Fprintf(&sb, " for tensors %q", e.Tensors)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

// Unwrap returns the cause.
func (e *InferenceError) Unwrap() error {
	return e.Err
}
