package inference

import (
	"container/heap"
	"fmt"
	"slices"

	"github.com/gomlx/onnx-shapes/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// indexHeap is a min-heap of node indices: the ready set of SortNodes.
type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// dependencies returns, for each node, the indices of the nodes that produce its inputs (with repetitions, one
// per input referring to them). Graph inputs, initializers and names nobody produces are sources.
func dependencies(g *graph.Graph) ([][]int, error) {
	producers, err := g.Producers()
	if err != nil {
		return nil, &GraphError{Kind: DuplicateProducer, Msg: err.Error()}
	}
	deps := make([][]int, len(g.Nodes))
	for idx, node := range g.Nodes {
		for _, input := range node.Inputs {
			if input == "" {
				continue
			}
			if producer, found := producers[input]; found {
				deps[idx] = append(deps[idx], producer)
			}
		}
	}
	return deps, nil
}

// SortNodes returns the indices (into g.Nodes) of the nodes in an order where every node comes after the producers
// of its inputs.
//
// Among the nodes ready to be visited, the one declared first is always picked, so the order is deterministic
// and it is the declaration order when that is already a valid one.
//
// It returns a *GraphError of kind Cycle naming the nodes in cycles, or of kind DuplicateProducer.
func SortNodes(g *graph.Graph) ([]int, error) {
	deps, err := dependencies(g)
	if err != nil {
		return nil, err
	}
	numNodes := len(g.Nodes)
	pending := make([]int, numNodes)
	consumers := make([][]int, numNodes)
	for idx, producers := range deps {
		pending[idx] = len(producers)
		for _, producer := range producers {
			consumers[producer] = append(consumers[producer], idx)
		}
	}

	ready := &indexHeap{}
	for idx := range numNodes {
		if pending[idx] == 0 {
			*ready = append(*ready, idx)
		}
	}
	heap.Init(ready)
	order := make([]int, 0, numNodes)
	for ready.Len() > 0 {
		idx := heap.Pop(ready).(int)
		order = append(order, idx)
		for _, consumer := range consumers[idx] {
			pending[consumer]--
			if pending[consumer] == 0 {
				heap.Push(ready, consumer)
			}
		}
	}
	if len(order) < numNodes {
		return nil, cycleError(g, deps, pending)
	}
	return order, nil
}

// cycleError reports the strongly connected components among the nodes that could not be visited: those are the
// actual cycles, the other unvisited nodes just depend on them.
func cycleError(g *graph.Graph, deps [][]int, pending []int) *GraphError {
	dg := simple.NewDirectedGraph()
	for idx, p := range pending {
		if p > 0 {
			dg.AddNode(simple.Node(idx))
		}
	}
	var cyclic [][]int
	for idx, producers := range deps {
		if pending[idx] == 0 {
			continue
		}
		for _, producer := range producers {
			if producer == idx {
				// Self loops are not allowed in simple graphs.
				cyclic = append(cyclic, []int{idx})
				continue
			}
			if pending[producer] > 0 {
				dg.SetEdge(dg.NewEdge(simple.Node(producer), simple.Node(idx)))
			}
		}
	}
	for _, component := range topo.TarjanSCC(dg) {
		if len(component) < 2 {
			continue
		}
		indices := make([]int, len(component))
		for ii, n := range component {
			indices[ii] = int(n.ID())
		}
		cyclic = append(cyclic, indices)
	}
	for _, indices := range cyclic {
		slices.Sort(indices)
	}
	slices.SortFunc(cyclic, slices.Compare[[]int])
	cyclic = slices.CompactFunc(cyclic, slices.Equal[[]int])

	var names []string
	for _, indices := range cyclic {
		for _, idx := range indices {
			names = append(names, nodeName(g, idx))
		}
	}
	numUnvisited := 0
	for _, p := range pending {
		if p > 0 {
			numUnvisited++
		}
	}
	return &GraphError{
		Kind:  Cycle,
		Nodes: names,
		Msg: fmt.Sprintf("%d of %d nodes can't be ordered, %d cycle(s) found",
			numUnvisited, len(g.Nodes), len(cyclic)),
	}
}

// nodeName identifies a node for error messages: its name, or its index and op type if it has none.
func nodeName(g *graph.Graph, idx int) string {
	node := g.Nodes[idx]
	if node.Name != "" {
		return node.Name
	}
	return fmt.Sprintf("#%d(%s)", idx, node.OpType)
}
