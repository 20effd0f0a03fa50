package inference

import (
	"fmt"

	"github.com/gomlx/onnx-shapes/graph"
	"github.com/gomlx/onnx-shapes/shapeinference"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"k8s.io/klog/v2"
)

// Propagator visits the nodes of a graph in dependency order, applying the shape rule of each node and merging
// the results into the graph's tensor descriptors.
type Propagator struct {
	registry    *shapeinference.Registry
	parallelism int
}

// NewPropagator creates a Propagator using the rules of registry.
// With parallelism > 1, disconnected components of the graph are propagated concurrently.
func NewPropagator(registry *shapeinference.Registry, parallelism int) *Propagator {
	return &Propagator{registry: registry, parallelism: max(parallelism, 1)}
}

// Run propagates the shapes of g in place, and returns the visiting order of the nodes.
//
// Errors in a node abort the pass: they are returned as *InferenceError, and g may be left partially updated.
func (p *Propagator) Run(g *graph.Graph) ([]int, error) {
	order, err := SortNodes(g)
	if err != nil {
		return nil, &InferenceError{Kind: GraphFailure, Err: err}
	}

	// Make sure every referenced tensor has a descriptor: the visits below only update existing descriptors,
	// and never write to g.Tensors.
	for _, node := range g.Nodes {
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
	}

	if p.parallelism <= 1 {
		return order, p.visitAll(g, order)
	}
	components := connectedComponents(g, order)
	klog.V(1).Infof("graph %q: %d nodes in %d connected components, parallelism=%d",
		g.Name, len(order), len(components), p.parallelism)
	if len(components) <= 1 {
		return order, p.visitAll(g, order)
	}
	errs := make([]error, len(components))
	var group errgroup.Group
	group.SetLimit(p.parallelism)
	for ii, component := range components {
		group.Go(func() error {
			errs[ii] = p.visitAll(g, component)
			return nil
		})
	}
	_ = group.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return order, nil
}

// visitAll visits the given nodes in order, stopping at the first error.
func (p *Propagator) visitAll(g *graph.Graph, order []int) error {
	for _, idx := range order {
		if err := p.visit(g, idx); err != nil {
			return err
		}
	}
	return nil
}

// visit applies the rule of one node and merges its outputs.
func (p *Propagator) visit(g *graph.Graph, idx int) error {
	node := g.Nodes[idx]
	op := &shapeinference.Op{
		Type:       node.OpType,
		Domain:     node.Domain,
		Name:       nodeName(g, idx),
		Inputs:     make([]*graph.Tensor, len(node.Inputs)),
		Attributes: node.Attributes,
		NumOutputs: len(node.Outputs),
	}
	for ii, name := range node.Inputs {
		if name != "" {
			op.Inputs[ii] = g.Tensor(name).Clone()
		}
	}
	failure := func(err error) error {
		return &InferenceError{Kind: ShapeFailure, Node: op.Name, OpType: node.OpType, Err: err}
	}

	outputs, err := p.registry.Apply(op)
	if err != nil {
		return failure(err)
	}
	for ii, output := range outputs {
		name := node.Outputs[ii]
		if name == "" {
			continue
		}
		t := g.Tensor(name)
		if err := t.Merge(output); err != nil {
			return failure(&shapeinference.ShapeError{
				Kind:   shapeinference.Incompatible,
				Node:   op.Name,
				OpType: node.OpType,
				Msg:    fmt.Sprintf("output #%d %q: inferred %s (%s) conflicts with the declared %s: %v", ii, name, output.Shape, output.DType, t.Shape, err),
			})
		}
	}
	if klog.V(2).Enabled() {
		for _, name := range node.Outputs {
			if name != "" {
				klog.Infof("  %s: %s", op.Name, g.Tensor(name))
			}
		}
	}
	return nil
}

// connectedComponents partitions the nodes into weakly connected components (nodes linked by any shared tensor),
// each listed in the given order. Components are sorted by their first node in that order.
func connectedComponents(g *graph.Graph, order []int) [][]int {
	ug := simple.NewUndirectedGraph()
	for idx := range g.Nodes {
		ug.AddNode(simple.Node(idx))
	}
	firstUser := make(map[string]int)
	link := func(name string, idx int) {
		if name == "" {
			return
		}
		if other, found := firstUser[name]; found {
			if other != idx {
				ug.SetEdge(ug.NewEdge(simple.Node(other), simple.Node(idx)))
			}
			return
		}
		firstUser[name] = idx
	}
	for idx, node := range g.Nodes {
		for _, name := range node.Inputs {
			link(name, idx)
		}
		for _, name := range node.Outputs {
			link(name, idx)
		}
	}

	componentOf := make([]int, len(g.Nodes))
	for ii, component := range topo.ConnectedComponents(ug) {
		for _, n := range component {
			componentOf[n.ID()] = ii
		}
	}
	position := make(map[int]int) // gonum component index -> position in the result.
	var components [][]int
	for _, idx := range order {
		c := componentOf[idx]
		pos, found := position[c]
		if !found {
			pos = len(components)
			position[c] = pos
			components = append(components, nil)
		}
		components[pos] = append(components[pos], idx)
	}
	return components
}
