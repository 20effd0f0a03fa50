// Package shapeinference holds the per-operator shape rules: pure functions that, given the (possibly partial)
// descriptors of a node's inputs and its attributes, return the descriptors of its outputs.
//
// Rules follow the standard ONNX semantics. Unknown dimensions propagate dimension-wise: a rule never collapses a
// partially known shape to "unknown" if some of it can still be derived. Conflicting concrete dimensions are
// reported as ShapeError of kind Incompatible.
//
// Rules are dispatched through a Registry, keyed by operator type. Use Default for all standard rules, and
// Registry.Register to add or override rules.
package shapeinference

import (
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/support/xslices"
	"github.com/gomlx/onnx-shapes/graph"
	"github.com/pkg/errors"
)

// Op is what a ShapeFn gets to work with: the node identification, its input descriptors and attributes.
type Op struct {
	Type   string
	Domain string
	Name   string

	// Inputs has one entry per node input. Omitted optional inputs are nil.
	Inputs []*graph.Tensor

	Attributes graph.Attributes

	// NumOutputs is the number of outputs declared by the node.
	NumOutputs int
}

// Input returns the ii-th input, or nil if it was omitted or is out of range.
func (op *Op) Input(ii int) *graph.Tensor {
	if ii < 0 || ii >= len(op.Inputs) {
		return nil
	}
	return op.Inputs[ii]
}

// mustInput returns the ii-th input, throwing if it was omitted.
func (op *Op) mustInput(ii int) *graph.Tensor {
	input := op.Input(ii)
	if input == nil {
		op.throwf(UnsupportedAttribute, "missing required input #%d (%d inputs given)", ii, len(op.Inputs))
	}
	return input
}

// presentInputs returns the inputs that were not omitted.
func (op *Op) presentInputs() []*graph.Tensor {
	present := make([]*graph.Tensor, 0, len(op.Inputs))
	for _, input := range op.Inputs {
		if input != nil {
			present = append(present, input)
		}
	}
	return present
}

// commonDType returns the element type shared by the tensors, ignoring unknown ones.
func (op *Op) commonDType(tensors ...*graph.Tensor) (dtypes.DType, error) {
	dtype := dtypes.InvalidDType
	for _, t := range tensors {
		if t == nil || t.DType == dtypes.InvalidDType {
			continue
		}
		if dtype == dtypes.InvalidDType {
			dtype = t.DType
		} else if dtype != t.DType {
			return dtypes.InvalidDType, op.Incompatiblef("operands have different dtypes %s and %s", dtype, t.DType)
		}
	}
	return dtype, nil
}

// results is a shortcut to return rule outputs.
func results(tensors ...graph.Tensor) ([]graph.Tensor, error) {
	return tensors, nil
}

// ShapeFn computes the output descriptors of an operator. The Name field of the returned tensors is ignored.
//
// It may return fewer outputs than op.NumOutputs: the remaining outputs are left unknown.
// ShapeFn must be pure: it must not modify its inputs, and it must be deterministic.
//
// Attribute helpers used by rules may panic with a *ShapeError: call rules through Registry.Apply, which converts
// those into returned errors.
type ShapeFn func(op *Op) ([]graph.Tensor, error)

// Registry maps operator types to their ShapeFn.
type Registry struct {
	rules map[string]ShapeFn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]ShapeFn)}
}

// Default returns a new registry with the rules for all the standard operators.
// Each call returns an independent registry, so it can be modified freely.
func Default() *Registry {
	r := NewRegistry()
	registerElementwise(r)
	registerShapeOps(r)
	registerConvolutions(r)
	registerLinearAlgebra(r)
	registerReductions(r)
	registerRecurrent(r)
	registerControlFlow(r)
	registerResize(r)
	return r
}

// Key returns the registry key of an operator: the op type itself for the default ONNX domain, and "domain/OpType"
// otherwise.
func Key(domain, opType string) string {
	if domain == "" || domain == "ai.onnx" {
		return opType
	}
	return domain + "/" + opType
}

// Register sets the rule for the given operator type of the default domain, replacing any previous one.
// It returns the registry itself, so calls can be cascaded.
func (r *Registry) Register(opType string, fn ShapeFn) *Registry {
	r.rules[opType] = fn
	return r
}

// RegisterDomain sets the rule for an operator type of a custom domain.
func (r *Registry) RegisterDomain(domain, opType string, fn ShapeFn) *Registry {
	r.rules[Key(domain, opType)] = fn
	return r
}

// registerAll sets the same rule for several operator types.
func (r *Registry) registerAll(fn ShapeFn, opTypes ...string) {
	for _, opType := range opTypes {
		r.rules[opType] = fn
	}
}

// Rule returns the rule registered for the operator type of the default domain.
func (r *Registry) Rule(opType string) (ShapeFn, bool) {
	fn, found := r.rules[opType]
	return fn, found
}

// RuleFor returns the rule registered for the operator type in the given domain.
func (r *Registry) RuleFor(domain, opType string) (ShapeFn, bool) {
	fn, found := r.rules[Key(domain, opType)]
	return fn, found
}

// OpTypes returns the sorted keys of all registered rules.
func (r *Registry) OpTypes() []string {
	return xslices.SortedKeys(r.rules)
}

// Apply looks up the rule for op and runs it.
//
// It returns a ShapeError of kind UnknownOperator if there is no rule. Panics inside the rule are converted to
// errors: a thrown *ShapeError is returned as is, any other error is wrapped with the node information.
func (r *Registry) Apply(op *Op) (outputs []graph.Tensor, err error) {
	fn, found := r.RuleFor(op.Domain, op.Type)
	if !found {
		return nil, op.newError(UnknownOperator, "no shape rule registered for %q", Key(op.Domain, op.Type))
	}
	exception := exceptions.TryCatch[error](func() { outputs, err = fn(op) })
	if exception != nil {
		if _, ok := IsShapeError(exception); ok {
			return nil, exception
		}
		return nil, errors.WithMessagef(exception, "shape rule for %s node %q failed", op.Type, op.Name)
	}
	if err != nil {
		return nil, err
	}
	if len(outputs) > op.NumOutputs {
		// Trailing optional outputs not declared by the node.
		outputs = outputs[:op.NumOutputs]
	}
	return outputs, nil
}

// String lists the registered operator types.
func (r *Registry) String() string {
	return "shapeinference.Registry[" + strings.Join(r.OpTypes(), ", ") + "]"
}

// ranked reports whether all given (non-nil) tensors have known rank.
func ranked(tensors ...*graph.Tensor) bool {
	return !slices.ContainsFunc(tensors, func(t *graph.Tensor) bool { return t == nil || !t.Shape.HasRank() })
}
