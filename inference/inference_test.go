package inference

import (
	"fmt"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/onnx-shapes/graph"
	"github.com/gomlx/onnx-shapes/shapeinference"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shape(s string) graph.Shape {
	return must.M1(graph.ParseShape(s))
}

// shapeOf returns the shape of the named tensor as a string.
func shapeOf(g *graph.Graph, name string) string {
	return g.TensorOrUnknown(name).Shape.String()
}

func strs(s ...string) []string { return s }

func TestSortNodes(t *testing.T) {
	g := graph.New("sort")
	g.AddInput("x", dtypes.Float32, shape("2"))
	g.AddOp("Relu", strs("b"), strs("c"), nil) // #0
	g.AddOp("Relu", strs("x"), strs("a"), nil) // #1
	g.AddOp("Relu", strs("a"), strs("b"), nil) // #2
	g.AddOp("Relu", strs("x"), strs("d"), nil) // #3
	order, err := SortNodes(g)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 0, 3}, order)

	// Declaration order is kept when valid.
	g = graph.New("ordered")
	g.AddInput("x", dtypes.Float32, shape("2"))
	g.AddOp("Relu", strs("x"), strs("a"), nil)
	g.AddOp("Relu", strs("x"), strs("b"), nil)
	g.AddOp("Add", strs("a", "b"), strs("c"), nil)
	g.AddOp("Constant", nil, strs("k"), graph.Attributes{"value_int": graph.IntAttr(1)})
	order, err = SortNodes(g)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, order)
}

func TestSortNodesErrors(t *testing.T) {
	// Cycle: Add_0 -> Relu_1 -> Relu_2 -> Add_0, and Relu_3 only depends on the cycle.
	g := graph.New("cycle")
	g.AddInput("x", dtypes.Float32, shape("2"))
	g.AddOp("Add", strs("x", "c"), strs("a"), nil)
	g.AddOp("Relu", strs("a"), strs("b"), nil)
	g.AddOp("Relu", strs("b"), strs("c"), nil)
	g.AddOp("Relu", strs("c"), strs("d"), nil)
	g.AddOp("Relu", strs("x"), strs("e"), nil)
	_, err := SortNodes(g)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCycle))
	var graphErr *GraphError
	require.True(t, errors.As(err, &graphErr))
	assert.Equal(t, []string{"Add_0", "Relu_1", "Relu_2"}, graphErr.Nodes)

	// Self loop.
	g = graph.New("self_loop")
	g.AddInput("x", dtypes.Float32, shape("2"))
	g.AddOp("Add", strs("x", "y"), strs("y"), nil)
	_, err = SortNodes(g)
	require.True(t, errors.As(err, &graphErr))
	assert.Equal(t, Cycle, graphErr.Kind)
	assert.Equal(t, []string{"Add_0"}, graphErr.Nodes)

	// Through Infer, the GraphError is wrapped.
	_, _, err = Infer(g, nil)
	var inferErr *InferenceError
	require.True(t, errors.As(err, &inferErr))
	assert.Equal(t, GraphFailure, inferErr.Kind)
	assert.True(t, errors.Is(err, ErrCycle))

	// Duplicate producer.
	g = graph.New("duplicate")
	g.AddInput("x", dtypes.Float32, shape("2"))
	g.AddOp("Relu", strs("x"), strs("a"), nil)
	g.AddOp("Neg", strs("x"), strs("a"), nil)
	_, err = SortNodes(g)
	assert.True(t, errors.Is(err, ErrDuplicateProducer))
	assert.False(t, errors.Is(err, ErrCycle))
}

func TestInferBasics(t *testing.T) {
	t.Run("broadcasting", func(t *testing.T) {
		g := graph.New("add")
		g.AddInput("a", dtypes.Float32, shape("1,3"))
		g.AddInput("b", dtypes.Float32, shape("4,1"))
		g.AddOp("Add", strs("a", "b"), strs("c"), nil)
		g.AddOutput("c")
		inferred, report, err := Infer(g, nil)
		require.NoError(t, err)
		assert.Equal(t, "[4, 3]", shapeOf(inferred, "c"))
		assert.Equal(t, dtypes.Float32, inferred.Tensor("c").DType)
		assert.True(t, report.Empty(), "report: %s", report)
		assert.Equal(t, 3, report.NumTensors)
	})

	t.Run("conflict", func(t *testing.T) {
		g := graph.New("conflict")
		g.AddInput("a", dtypes.Float32, shape("2,3"))
		g.AddInput("b", dtypes.Float32, shape("2,4"))
		g.AddNode(&graph.Node{Name: "my_add", OpType: "Add", Inputs: strs("a", "b"), Outputs: strs("c")})
		_, _, err := Infer(g, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, shapeinference.ErrIncompatible))
		var inferErr *InferenceError
		require.True(t, errors.As(err, &inferErr))
		assert.Equal(t, ShapeFailure, inferErr.Kind)
		assert.Equal(t, "my_add", inferErr.Node)
		assert.Equal(t, "Add", inferErr.OpType)
		shapeErr, ok := shapeinference.IsShapeError(err)
		require.True(t, ok)
		assert.Equal(t, "my_add", shapeErr.Node)
	})

	t.Run("partial", func(t *testing.T) {
		g := graph.New("partial")
		g.AddInput("x", dtypes.Float32, shape("?,3"))
		g.AddOp("Relu", strs("x"), strs("y"), nil)
		g.AddOutput("y")
		inferred, report, err := Infer(g, nil)
		require.NoError(t, err)
		assert.Equal(t, "[?, 3]", shapeOf(inferred, "y"))
		require.Len(t, report.Outputs(), 1)
		assert.Equal(t, "y", report.Outputs()[0].Name)
		assert.Equal(t, "Relu_0", report.Outputs()[0].Producer)
		assert.Len(t, report.Unresolved, 2) // x and y.
	})

	t.Run("conv", func(t *testing.T) {
		g := graph.New("conv")
		g.AddInput("x", dtypes.Float32, shape("1,3,32,32"))
		g.AddInitializer("w", dtypes.Float32, shape("8,3,3,3"), nil)
		g.AddOp("Conv", strs("x", "w"), strs("y"), nil)
		g.AddOutput("y")
		inferred, _, err := Infer(g, nil)
		require.NoError(t, err)
		assert.Equal(t, "[1, 8, 30, 30]", shapeOf(inferred, "y"))
	})

	t.Run("unknown_operator", func(t *testing.T) {
		g := graph.New("custom")
		g.AddInput("x", dtypes.Float32, shape("5"))
		g.AddNode(&graph.Node{Name: "fancy", OpType: "Fancy", Domain: "com.example", Inputs: strs("x"), Outputs: strs("y")})
		_, _, err := Infer(g, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, shapeinference.ErrUnknownOperator))

		registry := shapeinference.Default().RegisterDomain("com.example", "Fancy",
			func(op *shapeinference.Op) ([]graph.Tensor, error) {
				x := op.Inputs[0]
				return []graph.Tensor{{DType: x.DType, Shape: x.Shape.WithDim(0, graph.Concrete(10))}}, nil
			})
		inferred, _, err := New().WithRegistry(registry).Infer(g, nil)
		require.NoError(t, err)
		assert.Equal(t, "[10]", shapeOf(inferred, "y"))
	})

	t.Run("negative_attribute_values", func(t *testing.T) {
		pool := graph.New("pool")
		pool.AddInput("x", dtypes.Float32, shape("1,3,7,7"))
		pool.AddOp("MaxPool", strs("x"), strs("y"), graph.Attributes{"kernel_shape": graph.IntsAttr(-3, 3)})

		topK := graph.New("topk")
		topK.AddInput("x", dtypes.Float32, shape("b,10"))
		topK.AddInitializer("k", dtypes.Int64, shape("1"), graph.IntConstant(-1))
		topK.AddOp("TopK", strs("x", "k"), strs("values", "indices"), nil)

		lstm := graph.New("lstm")
		lstm.AddInput("x", dtypes.Float32, shape("seq,b,10"))
		lstm.AddInitializer("w", dtypes.Float32, shape("1,8,10"), nil)
		lstm.AddInitializer("r", dtypes.Float32, shape("1,8,2"), nil)
		lstm.AddOp("LSTM", strs("x", "w", "r"), strs("y"), graph.Attributes{"hidden_size": graph.IntAttr(-2)})

		for _, g := range []*graph.Graph{pool, topK, lstm} {
			_, _, err := Infer(g, nil)
			require.Error(t, err, "graph %q", g.Name)
			assert.True(t, errors.Is(err, shapeinference.ErrUnsupportedAttribute), "graph %q: %v", g.Name, err)
			_, isShapeErr := shapeinference.IsShapeError(err)
			assert.True(t, isShapeErr, "graph %q: %v", g.Name, err)
		}
	})

	t.Run("declared_output_conflict", func(t *testing.T) {
		g := graph.New("declared")
		g.AddInput("x", dtypes.Float32, shape("3"))
		g.AddOp("Relu", strs("x"), strs("y"), nil)
		g.TensorOrNew("y").Shape = shape("5")
		_, _, err := Infer(g, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, shapeinference.ErrIncompatible))
		assert.Contains(t, err.Error(), `"y"`)
	})

	t.Run("fewer_outputs", func(t *testing.T) {
		g := graph.New("subgraph")
		g.AddInput("cond", dtypes.Bool, shape(""))
		g.AddNode(&graph.Node{Name: "if", OpType: "If", Inputs: strs("cond"), Outputs: strs("y")})
		g.AddOutput("y")
		inferred, report, err := Infer(g, nil)
		require.NoError(t, err)
		assert.Equal(t, "[*]", shapeOf(inferred, "y"))
		assert.Len(t, report.Outputs(), 1)

		_, _, err = New().WithStrictOutputs(true).Infer(g, nil)
		var inferErr *InferenceError
		require.True(t, errors.As(err, &inferErr))
		assert.Equal(t, Unresolved, inferErr.Kind)
		assert.Equal(t, []string{"y"}, inferErr.Tensors)
	})
}

func TestKnownInputs(t *testing.T) {
	g := graph.New("known")
	g.AddInput("x", dtypes.Float32, shape("batch,3"))
	g.AddOp("Relu", strs("x"), strs("y"), nil)
	g.AddOutput("y")

	inferred, report, err := Infer(g, map[string]graph.Shape{"x": shape("2,3")})
	require.NoError(t, err)
	assert.Equal(t, "[2, 3]", shapeOf(inferred, "y"))
	assert.True(t, report.Empty())
	assert.Equal(t, "[batch, 3]", shapeOf(g, "x"), "the input graph must not be modified")
	assert.Equal(t, "[*]", shapeOf(g, "y"), "the input graph must not be modified")

	_, _, err = Infer(g, map[string]graph.Shape{"x": shape("2,4")})
	var inferErr *InferenceError
	require.True(t, errors.As(err, &inferErr))
	assert.Equal(t, ShapeMismatch, inferErr.Kind)
	assert.Equal(t, []string{"x"}, inferErr.Tensors)

	_, _, err = Infer(g, map[string]graph.Shape{"x": shape("2,3,1")})
	require.True(t, errors.As(err, &inferErr))
	assert.Equal(t, ShapeMismatch, inferErr.Kind)

	_, _, err = Infer(g, map[string]graph.Shape{"y": shape("2,3")})
	require.True(t, errors.As(err, &inferErr))
	assert.Equal(t, UnknownInput, inferErr.Kind)
}

// dynamicReshapeGraph builds the usual exported pattern: y = Reshape(x, Concat(Unsqueeze(Gather(Shape(x), 0)), [-1])).
func dynamicReshapeGraph(xShape string) *graph.Graph {
	g := graph.New("dynamic_reshape")
	g.AddInput("x", dtypes.Float32, shape(xShape))
	g.AddInitializer("zero", dtypes.Int64, shape(""), graph.IntConstant(0))
	g.AddInitializer("axes", dtypes.Int64, shape("1"), graph.IntConstant(0))
	g.AddInitializer("minus_one", dtypes.Int64, shape("1"), graph.IntConstant(-1))
	g.AddOp("Shape", strs("x"), strs("x_shape"), nil)
	g.AddOp("Gather", strs("x_shape", "zero"), strs("batch"), nil)
	g.AddOp("Unsqueeze", strs("batch", "axes"), strs("batch_1d"), nil)
	g.AddOp("Concat", strs("batch_1d", "minus_one"), strs("target"), graph.Attributes{"axis": graph.IntAttr(0)})
	g.AddOp("Reshape", strs("x", "target"), strs("y"), nil)
	g.AddOp("Relu", strs("y"), strs("z"), nil)
	g.AddOutput("z")
	return g
}

func TestDynamicReshape(t *testing.T) {
	inferred, report, err := Infer(dynamicReshapeGraph("2,3,4"), nil)
	require.NoError(t, err)
	assert.Equal(t, "[2, 12]", shapeOf(inferred, "z"))
	assert.Equal(t, []int64{2, -1}, inferred.Tensor("target").Value.Ints)
	assert.True(t, report.Empty(), "report: %s", report)

	// With a symbolic batch the target value is unknown: the output rank is still known, and it is not an error.
	inferred, report, err = Infer(dynamicReshapeGraph("batch,3,4"), nil)
	require.NoError(t, err)
	assert.Equal(t, "[?, ?]", shapeOf(inferred, "z"))
	assert.False(t, report.Empty())

	// Fixing the batch size resolves everything.
	inferred, _, err = Infer(dynamicReshapeGraph("batch,3,4"), map[string]graph.Shape{"x": shape("5,3,4")})
	require.NoError(t, err)
	assert.Equal(t, "[5, 12]", shapeOf(inferred, "z"))
}

func TestDeterminismAndIdempotence(t *testing.T) {
	g := dynamicReshapeGraph("2,3,4")
	first, _, err := Infer(g, nil)
	require.NoError(t, err)
	for range 5 {
		again, _, err := Infer(g, nil)
		require.NoError(t, err)
		assert.True(t, first.EqualTensors(again))
		assert.Equal(t, first.String(), again.String())
	}

	second, report, err := Infer(first, nil)
	require.NoError(t, err)
	assert.True(t, first.EqualTensors(second), "inference on a resolved graph must be a no-op")
	assert.True(t, report.Empty())
}

// chainsGraph builds numChains disconnected chains of nodes. If failing is given, the Add of those chains gets
// incompatible operands.
func chainsGraph(numChains int, failing ...int) *graph.Graph {
	g := graph.New("chains")
	for c := range numChains {
		x, bias := fmt.Sprintf("x%d", c), fmt.Sprintf("bias%d", c)
		g.AddInput(x, dtypes.Float32, graph.Sizes(c+1, 4))
		biasSize := 4
		for _, f := range failing {
			if f == c {
				biasSize = 5
			}
		}
		g.AddInitializer(bias, dtypes.Float32, graph.Sizes(biasSize), nil)
		g.AddNode(&graph.Node{Name: fmt.Sprintf("add%d", c), OpType: "Add",
			Inputs: strs(x, bias), Outputs: strs(fmt.Sprintf("a%d", c))})
		g.AddNode(&graph.Node{Name: fmt.Sprintf("transpose%d", c), OpType: "Transpose",
			Inputs: strs(fmt.Sprintf("a%d", c)), Outputs: strs(fmt.Sprintf("t%d", c))})
		g.AddNode(&graph.Node{Name: fmt.Sprintf("flatten%d", c), OpType: "Flatten",
			Inputs: strs(fmt.Sprintf("t%d", c)), Outputs: strs(fmt.Sprintf("y%d", c)),
			Attributes: graph.Attributes{"axis": graph.IntAttr(0)}})
		g.AddOutput(fmt.Sprintf("y%d", c))
	}
	return g
}

func TestParallel(t *testing.T) {
	g := chainsGraph(8)
	order, err := SortNodes(g)
	require.NoError(t, err)
	components := connectedComponents(g, order)
	require.Len(t, components, 8)
	assert.Equal(t, []int{0, 1, 2}, components[0])

	sequential, _, err := Infer(g, nil)
	require.NoError(t, err)
	assert.Equal(t, "[1, 32]", shapeOf(sequential, "y7"))
	for range 5 {
		parallel, report, err := New().WithParallelism(4).Infer(g, nil)
		require.NoError(t, err)
		assert.True(t, sequential.EqualTensors(parallel))
		assert.True(t, report.Empty())
	}

	// The error reported is always the one of the first failing component.
	g = chainsGraph(8, 6, 3)
	for range 10 {
		_, _, err := New().WithParallelism(8).Infer(g, nil)
		var inferErr *InferenceError
		require.True(t, errors.As(err, &inferErr))
		assert.Equal(t, "add3", inferErr.Node)
	}
}
