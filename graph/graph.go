// Package graph holds the in-memory model of a computation graph used by shape inference: nodes, tensor descriptors
// and their connectivity.
//
// Shapes may be partially known: see Dim and Shape. The element type uses GoMLX's dtypes, with dtypes.InvalidDType
// standing for "unknown".
package graph

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/pkg/errors"
)

// Node is one operator application.
//
// Empty strings in Inputs stand for omitted optional inputs, and in Outputs for unused optional outputs.
type Node struct {
	Name       string
	OpType     string
	Domain     string
	Inputs     []string
	Outputs    []string
	Attributes Attributes
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	var sb strings.Builder
	if n.Name != "" {
		fmt.Fprintf(&sb, "%q ", n.Name)
	}
	if n.Domain != "" {
		fmt.Fprintf(&sb, "%s.", n.Domain)
	}
	fmt.Fprintf(&sb, "%s(%s) -> (%s)", n.OpType, strings.Join(n.Inputs, ", "), strings.Join(n.Outputs, ", "))
	return sb.String()
}

// Clone returns a deep copy.
func (n *Node) Clone() *Node {
	return &Node{
		Name:       n.Name,
		OpType:     n.OpType,
		Domain:     n.Domain,
		Inputs:     slices.Clone(n.Inputs),
		Outputs:    slices.Clone(n.Outputs),
		Attributes: n.Attributes.Clone(),
	}
}

// Graph is a set of nodes plus the descriptors of every tensor they refer to.
//
// Nodes keep their declaration order, which is used to break ties during topological ordering.
// Initializers are tensors with constant values (weights) that are not computed by any node.
type Graph struct {
	Name         string
	Nodes        []*Node
	Tensors      map[string]*Tensor
	Inputs       []string
	Outputs      []string
	Initializers []string
}

// New creates an empty graph.
func New(name string) *Graph {
	return &Graph{Name: name, Tensors: make(map[string]*Tensor)}
}

// Tensor returns the descriptor of the named tensor, or nil.
func (g *Graph) Tensor(name string) *Tensor {
	return g.Tensors[name]
}

// TensorOrNew returns the descriptor of the named tensor, creating an unknown one if it doesn't exist yet.
func (g *Graph) TensorOrNew(name string) *Tensor {
	t, found := g.Tensors[name]
	if !found {
		t = &Tensor{Name: name}
		g.Tensors[name] = t
	}
	return t
}

// AddInput declares a graph input with the given (possibly partial) type.
func (g *Graph) AddInput(name string, dtype dtypes.DType, shape Shape) *Tensor {
	t := g.TensorOrNew(name)
	t.DType, t.Shape = dtype, shape
	g.Inputs = append(g.Inputs, name)
	return t
}

// AddInitializer declares a constant tensor. value may be nil if the contents are not relevant.
func (g *Graph) AddInitializer(name string, dtype dtypes.DType, shape Shape, value *Constant) *Tensor {
	t := g.TensorOrNew(name)
	t.DType, t.Shape, t.Value = dtype, shape, value
	g.Initializers = append(g.Initializers, name)
	return t
}

// AddNode appends a node and creates unknown descriptors for any new tensor it refers to.
func (g *Graph) AddNode(node *Node) *Node {
	for _, name := range node.Inputs {
		if name != "" {
			g.TensorOrNew(name)
		}
	}
	for _, name := range node.Outputs {
		if name != "" {
			g.TensorOrNew(name)
		}
	}
	g.Nodes = append(g.Nodes, node)
	return node
}

// AddOp is a shortcut to AddNode for tests and hand built graphs.
func (g *Graph) AddOp(opType string, inputs, outputs []string, attrs Attributes) *Node {
	name := fmt.Sprintf("%s_%d", opType, len(g.Nodes))
	return g.AddNode(&Node{Name: name, OpType: opType, Inputs: inputs, Outputs: outputs, Attributes: attrs})
}

// AddOutput marks the named tensor as a graph output.
func (g *Graph) AddOutput(name string) *Tensor {
	g.Outputs = append(g.Outputs, name)
	return g.TensorOrNew(name)
}

// IsInput returns whether name is a graph input.
func (g *Graph) IsInput(name string) bool {
	return slices.Contains(g.Inputs, name)
}

// IsInitializer returns whether name is a constant initializer.
func (g *Graph) IsInitializer(name string) bool {
	return slices.Contains(g.Initializers, name)
}

// Producers maps each tensor name to the index (in g.Nodes) of the node that outputs it.
//
// It fails if a tensor is produced by more than one node, or if a node outputs a graph input or initializer.
func (g *Graph) Producers() (map[string]int, error) {
	sources := sets.MakeWith(g.Initializers...)
	sources.Insert(g.Inputs...)
	producers := make(map[string]int, len(g.Tensors))
	for idx, node := range g.Nodes {
		for _, output := range node.Outputs {
			if output == "" {
				continue
			}
			if prev, found := producers[output]; found {
				return nil, errors.Errorf("tensor %q is produced by both node #%d (%s) and node #%d (%s)",
					output, prev, g.Nodes[prev], idx, node)
			}
			if sources.Has(output) {
				return nil, errors.Errorf("tensor %q is a graph input or initializer, but it is also produced by node #%d (%s)",
					output, idx, node)
			}
			producers[output] = idx
		}
	}
	return producers, nil
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	cloned := &Graph{
		Name:         g.Name,
		Nodes:        make([]*Node, len(g.Nodes)),
		Tensors:      make(map[string]*Tensor, len(g.Tensors)),
		Inputs:       slices.Clone(g.Inputs),
		Outputs:      slices.Clone(g.Outputs),
		Initializers: slices.Clone(g.Initializers),
	}
	for ii, node := range g.Nodes {
		cloned.Nodes[ii] = node.Clone()
	}
	for name, t := range g.Tensors {
		cloned.Tensors[name] = t.Clone()
	}
	return cloned
}

// EqualTensors returns whether both graphs hold equal descriptors for the same set of tensor names.
func (g *Graph) EqualTensors(other *Graph) bool {
	return maps.EqualFunc(g.Tensors, other.Tensors, (*Tensor).Equal)
}

// String implements fmt.Stringer, listing inputs, nodes with their output descriptors, and outputs.
func (g *Graph) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Graph %q:\n", g.Name)
	for _, name := range g.Inputs {
		fmt.Fprintf(&sb, "\tinput  %s\n", g.TensorOrUnknown(name))
	}
	for _, node := range g.Nodes {
		fmt.Fprintf(&sb, "\t%s\n", node)
		for _, output := range node.Outputs {
			if output != "" {
				fmt.Fprintf(&sb, "\t\t%s\n", g.TensorOrUnknown(output))
			}
		}
	}
	for _, name := range g.Outputs {
		fmt.Fprintf(&sb, "\toutput %s\n", g.TensorOrUnknown(name))
	}
	return sb.String()
}

// TensorOrUnknown returns the descriptor of the named tensor, or a fresh unknown descriptor (not added to the graph).
func (g *Graph) TensorOrUnknown(name string) *Tensor {
	if t, found := g.Tensors[name]; found {
		return t
	}
	return &Tensor{Name: name}
}
