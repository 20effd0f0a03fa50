package onnx

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/onnx-shapes/graph"
	"github.com/gomlx/onnx-shapes/internal/protos"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// This file converts the ONNX protos to the graph model used by shape inference.

// Graph converts the model's main graph to a *graph.Graph:
//
//   - Types declared for inputs, outputs and value_info seed the tensor descriptors.
//   - Initializers become constant tensors. Their contents are decoded only if small enough to be used as shape
//     values, reading external data files if needed.
//   - Graph inputs that are also initializers (the convention before IR version 4) are treated as initializers.
//   - Subgraph attributes (If/Loop/Scan bodies) are kept opaque.
//
// A new graph is returned on each call, the Model is not modified.
func (m *Model) Graph() (*graph.Graph, error) {
	proto := m.Proto.Graph
	g := graph.New(proto.Name)

	var external *ExternalDataReader
	if m.baseDir != "" {
		external = NewExternalDataReader(m.baseDir)
		defer func() {
			if err := external.Close(); err != nil {
				klog.Warningf("onnx: %v", err)
			}
		}()
	}
	for _, tensorProto := range proto.Initializer {
		t, err := tensorToGraph(tensorProto, external)
		if err != nil {
			return nil, err
		}
		g.AddInitializer(tensorProto.Name, t.DType, t.Shape, t.Value)
	}

	for _, vi := range proto.Input {
		dtype, shape, err := valueInfoType(vi)
		if err != nil {
			return nil, err
		}
		if g.IsInitializer(vi.Name) {
			if err := mergeDeclared(g, vi.Name, dtype, shape); err != nil {
				return nil, errors.WithMessagef(err, "initializer %q declared as input", vi.Name)
			}
			continue
		}
		g.AddInput(vi.Name, dtype, shape)
	}

	for ii, nodeProto := range proto.Node {
		node, err := convertNode(nodeProto, external)
		if err != nil {
			return nil, errors.WithMessagef(err, "node #%d (%s %q)", ii, nodeProto.OpType, nodeProto.Name)
		}
		g.AddNode(node)
	}

	for _, vi := range proto.ValueInfo {
		dtype, shape, err := valueInfoType(vi)
		if err != nil {
			return nil, err
		}
		if err := mergeDeclared(g, vi.Name, dtype, shape); err != nil {
			return nil, errors.WithMessage(err, "value_info")
		}
	}
	for _, vi := range proto.Output {
		dtype, shape, err := valueInfoType(vi)
		if err != nil {
			return nil, err
		}
		g.AddOutput(vi.Name)
		if err := mergeDeclared(g, vi.Name, dtype, shape); err != nil {
			return nil, errors.WithMessage(err, "graph output")
		}
	}
	klog.V(1).Infof("onnx: graph %q converted: %d nodes, %d inputs, %d initializers, %d outputs",
		g.Name, len(g.Nodes), len(g.Inputs), len(g.Initializers), len(g.Outputs))
	return g, nil
}

// mergeDeclared merges a declared type into the descriptor of the named tensor.
func mergeDeclared(g *graph.Graph, name string, dtype dtypes.DType, shape graph.Shape) error {
	t := g.TensorOrNew(name)
	return t.Merge(graph.Tensor{DType: dtype, Shape: shape})
}

// valueInfoType returns the declared element type and shape of a value. Values with no type annotation, or with a
// non-tensor type, are unknown.
func valueInfoType(vi *protos.ValueInfoProto) (dtypes.DType, graph.Shape, error) {
	tensorType := vi.GetTensorType()
	if tensorType == nil {
		return dtypes.InvalidDType, graph.Unranked(), nil
	}
	dtype, err := dtypeForONNX(protos.TensorProto_DataType(tensorType.ElemType))
	if err != nil {
		return dtypes.InvalidDType, graph.Shape{}, errors.WithMessagef(err, "value %q", vi.Name)
	}
	if tensorType.Shape == nil {
		return dtype, graph.Unranked(), nil
	}
	dims := make([]graph.Dim, len(tensorType.Shape.Dim))
	for axis, dimProto := range tensorType.Shape.Dim {
		switch {
		case dimProto.HasDimValue:
			if dimProto.DimValue < 0 {
				return dtype, graph.Shape{}, errors.Errorf("value %q has negative dimension %d at axis %d",
					vi.Name, dimProto.DimValue, axis)
			}
			dims[axis] = graph.Concrete(int(dimProto.DimValue))
		case dimProto.DimParam != "":
			dims[axis] = graph.Symbol(dimProto.DimParam)
		default:
			dims[axis] = graph.Unknown()
		}
	}
	return dtype, graph.MakeShape(dims...), nil
}

// convertNode converts a single ONNX node. Attributes of kinds irrelevant to shape inference (sparse tensors,
// type protos) are dropped.
func convertNode(proto *protos.NodeProto, external *ExternalDataReader) (*graph.Node, error) {
	node := &graph.Node{
		Name:    proto.Name,
		OpType:  proto.OpType,
		Domain:  proto.Domain,
		Inputs:  append([]string(nil), proto.Input...),
		Outputs: append([]string(nil), proto.Output...),
	}
	if node.Domain == "ai.onnx" {
		node.Domain = ""
	}
	if len(proto.Attribute) > 0 {
		node.Attributes = make(graph.Attributes, len(proto.Attribute))
	}
	for _, attrProto := range proto.Attribute {
		attr, err := convertAttribute(attrProto, external)
		if err != nil {
			return nil, errors.WithMessagef(err, "attribute %q", attrProto.Name)
		}
		if attr.Kind != graph.AttrUndefined {
			node.Attributes[attrProto.Name] = attr
		}
	}
	return node, nil
}

// convertAttribute converts an attribute value. Attributes without a type (written by some old exporters) are
// typed by whichever value field is set.
func convertAttribute(proto *protos.AttributeProto, external *ExternalDataReader) (graph.Attribute, error) {
	attrType := proto.Type
	if attrType == protos.AttributeProto_UNDEFINED {
		attrType = guessAttributeType(proto)
	}
	switch attrType {
	case protos.AttributeProto_FLOAT:
		return graph.FloatAttr(float64(proto.F)), nil
	case protos.AttributeProto_INT:
		return graph.IntAttr(proto.I), nil
	case protos.AttributeProto_STRING:
		return graph.StringAttr(string(proto.S)), nil
	case protos.AttributeProto_TENSOR:
		if proto.T == nil {
			return graph.Attribute{}, errors.New("TENSOR attribute without a tensor")
		}
		t, err := tensorToGraph(proto.T, external)
		if err != nil {
			return graph.Attribute{}, err
		}
		return graph.TensorAttr(t), nil
	case protos.AttributeProto_GRAPH, protos.AttributeProto_GRAPHS:
		return graph.Attribute{Kind: graph.AttrGraph}, nil
	case protos.AttributeProto_FLOATS:
		floats := make([]float64, len(proto.Floats))
		for ii, f := range proto.Floats {
			floats[ii] = float64(f)
		}
		return graph.Attribute{Kind: graph.AttrFloats, Floats: floats}, nil
	case protos.AttributeProto_INTS:
		return graph.IntsAttr(proto.Ints...), nil
	case protos.AttributeProto_STRINGS:
		strs := make([]string, len(proto.Strings))
		for ii, s := range proto.Strings {
			strs[ii] = string(s)
		}
		return graph.Attribute{Kind: graph.AttrStrings, Strings: strs}, nil
	default:
		return graph.Attribute{}, nil
	}
}

func guessAttributeType(proto *protos.AttributeProto) protos.AttributeProto_AttributeType {
	switch {
	case proto.T != nil:
		return protos.AttributeProto_TENSOR
	case proto.G != nil:
		return protos.AttributeProto_GRAPH
	case len(proto.Graphs) > 0:
		return protos.AttributeProto_GRAPHS
	case len(proto.Floats) > 0:
		return protos.AttributeProto_FLOATS
	case len(proto.Ints) > 0:
		return protos.AttributeProto_INTS
	case len(proto.Strings) > 0:
		return protos.AttributeProto_STRINGS
	case proto.S != nil:
		return protos.AttributeProto_STRING
	case proto.F != 0:
		return protos.AttributeProto_FLOAT
	default:
		return protos.AttributeProto_INT
	}
}
