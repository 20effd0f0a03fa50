package inference

import (
	"fmt"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/onnx-shapes/graph"
)

// UnresolvedTensor describes a tensor whose element type or shape is not fully known after inference.
type UnresolvedTensor struct {
	Name  string
	DType dtypes.DType
	Shape graph.Shape

	// Producer is the name of the node that outputs the tensor, and OpType its operator. Both are empty for
	// graph inputs.
	Producer, OpType string

	// IsOutput is set for graph outputs.
	IsOutput bool
}

// String implements fmt.Stringer.
func (u UnresolvedTensor) String() string {
	dtype := "?"
	if u.DType != dtypes.InvalidDType {
		dtype = u.DType.String()
	}
	source := "graph input"
	if u.Producer != "" {
		source = fmt.Sprintf("%s node %q", u.OpType, u.Producer)
	}
	var output string
	if u.IsOutput {
		output = " [graph output]"
	}
	return fmt.Sprintf("%s: (%s)%s from %s%s", u.Name, dtype, u.Shape, source, output)
}

// Report lists the tensors left unresolved by a successful inference pass. Unresolved tensors are not errors:
// callers decide whether they are acceptable.
type Report struct {
	// NumTensors is the number of tensors considered: graph inputs and node outputs.
	NumTensors int

	// Unresolved tensors: graph inputs first, then node outputs in visiting order.
	Unresolved []UnresolvedTensor
}

// Empty returns whether every tensor was resolved.
func (r *Report) Empty() bool {
	return len(r.Unresolved) == 0
}

// Outputs returns the unresolved graph outputs.
func (r *Report) Outputs() []UnresolvedTensor {
	var outputs []UnresolvedTensor
	for _, u := range r.Unresolved {
		if u.IsOutput {
			outputs = append(outputs, u)
		}
	}
	return outputs
}

// String implements fmt.Stringer.
func (r *Report) String() string {
	if r.Empty() {
		return fmt.Sprintf("all %d tensors resolved", r.NumTensors)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d of %d tensors unresolved:\n", len(r.Unresolved), r.NumTensors)
	for _, u := range r.Unresolved {
		fmt.Fprintf(&sb, "\t%s\n", u)
	}
	return sb.String()
}

// newReport collects the unresolved tensors of g, after visiting the nodes in the given order.
func newReport(g *graph.Graph, order []int) *Report {
	r := &Report{}
	outputs := sets.MakeWith(g.Outputs...)
	seen := sets.Make[string]()
	add := func(name string, producer int) {
		if name == "" || seen.Has(name) {
			return
		}
		seen.Insert(name)
		r.NumTensors++
		t := g.TensorOrUnknown(name)
		if t.IsResolved() {
			return
		}
		u := UnresolvedTensor{Name: name, DType: t.DType, Shape: t.Shape, IsOutput: outputs.Has(name)}
		if producer >= 0 {
			u.Producer, u.OpType = nodeName(g, producer), g.Nodes[producer].OpType
		}
		r.Unresolved = append(r.Unresolved, u)
	}
	for _, name := range g.Inputs {
		if !g.IsInitializer(name) {
			add(name, -1)
		}
	}
	for _, idx := range order {
		for _, name := range g.Nodes[idx].Outputs {
			add(name, idx)
		}
	}
	// Graph outputs that are not produced by any node (e.g. passthrough of an input) were covered above, unless
	// dangling.
	for _, name := range g.Outputs {
		add(name, -1)
	}
	return r
}
