package onnx

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/onnx-shapes/graph"
	"github.com/gomlx/onnx-shapes/inference"
	"github.com/gomlx/onnx-shapes/internal/protos"
	"github.com/pkg/errors"
)

// UpdateShapes records the descriptors of g (usually the result of inference.Infer on Model.Graph) in the model:
//
//   - The types of graph inputs and outputs are refreshed.
//   - value_info is rebuilt with every intermediate tensor that has any information: a known element type or a
//     known rank. Existing entries are updated in place (keeping their doc strings), new ones follow the node order.
//
// Initializers and nodes are left untouched.
func (m *Model) UpdateShapes(g *graph.Graph) error {
	proto := m.Proto.Graph
	for _, vi := range proto.Input {
		if t := g.Tensor(vi.Name); t != nil {
			setValueInfoType(vi, t)
		}
	}
	for _, vi := range proto.Output {
		if t := g.Tensor(vi.Name); t != nil {
			setValueInfoType(vi, t)
		}
	}

	existing := make(map[string]*protos.ValueInfoProto, len(proto.ValueInfo))
	for _, vi := range proto.ValueInfo {
		existing[vi.Name] = vi
	}
	skip := m.initializerNames()
	for _, vi := range proto.Input {
		skip.Insert(vi.Name)
	}
	for _, vi := range proto.Output {
		skip.Insert(vi.Name)
	}
	written := sets.Make[string]()
	valueInfo := make([]*protos.ValueInfoProto, 0, len(proto.ValueInfo))
	for _, node := range proto.Node {
		for _, name := range node.Output {
			if name == "" || skip.Has(name) || written.Has(name) {
				continue
			}
			t := g.Tensor(name)
			if t == nil {
				return errors.Errorf("tensor %q, output of node %q, is missing from the graph", name, node.Name)
			}
			if t.DType == dtypes.InvalidDType && !t.Shape.HasRank() {
				continue
			}
			vi, found := existing[name]
			if !found {
				vi = &protos.ValueInfoProto{Name: name}
			}
			setValueInfoType(vi, t)
			valueInfo = append(valueInfo, vi)
			written.Insert(name)
		}
	}
	// Annotations of values no node outputs (e.g. inside subgraphs) are kept as they were.
	for _, vi := range proto.ValueInfo {
		if !written.Has(vi.Name) && !skip.Has(vi.Name) {
			valueInfo = append(valueInfo, vi)
		}
	}
	proto.ValueInfo = valueInfo
	return nil
}

// setValueInfoType writes the descriptor t as the tensor type of vi. Denotations of the existing type and of its
// dimensions are kept when the rank didn't change.
func setValueInfoType(vi *protos.ValueInfoProto, t *graph.Tensor) {
	if vi.Type == nil {
		vi.Type = &protos.TypeProto{}
	}
	tensorType := vi.Type.TensorType
	if tensorType == nil {
		tensorType = &protos.TypeProto_Tensor{}
		vi.Type.TensorType = tensorType
	}
	if t.DType != dtypes.InvalidDType {
		tensorType.ElemType = int32(onnxForDType(t.DType))
	}
	if !t.Shape.HasRank() {
		return
	}
	var previous []*protos.TensorShapeProto_Dimension
	if tensorType.Shape != nil {
		previous = tensorType.Shape.Dim
	}
	shape := &protos.TensorShapeProto{Dim: make([]*protos.TensorShapeProto_Dimension, t.Shape.Rank())}
	for axis, d := range t.Shape.Dims() {
		dimProto := &protos.TensorShapeProto_Dimension{}
		if len(previous) == t.Shape.Rank() {
			dimProto.Denotation = previous[axis].Denotation
		}
		if size, ok := d.Size(); ok {
			dimProto.DimValue, dimProto.HasDimValue = int64(size), true
		} else {
			dimProto.DimParam = d.SymbolName()
		}
		shape.Dim[axis] = dimProto
	}
	tensorType.Shape = shape
}

// InferShapes converts the model to a graph, runs shape inference with engine (inference.New() if nil), and
// records the results in the model with UpdateShapes.
//
// known maps input names to shapes supplied by the caller, see inference.Engine.Infer.
// It returns the report of tensors left unresolved.
func (m *Model) InferShapes(known map[string]graph.Shape, engine *inference.Engine) (*inference.Report, error) {
	if engine == nil {
		engine = inference.New()
	}
	g, err := m.Graph()
	if err != nil {
		return nil, err
	}
	inferred, report, err := engine.Infer(g, known)
	if err != nil {
		return nil, err
	}
	if err := m.UpdateShapes(inferred); err != nil {
		return nil, err
	}
	return report, nil
}
