package protos

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// GraphProto is a computation graph: nodes in topological order (not enforced here), initializers and the
// type annotations of inputs, outputs and intermediate values.
type GraphProto struct {
	Node          []*NodeProto
	Name          string
	Initializer   []*TensorProto
	DocString     string
	Input         []*ValueInfoProto
	Output        []*ValueInfoProto
	ValueInfo     []*ValueInfoProto
	MetadataProps []*StringStringEntryProto

	unknownFields []byte
}

func (m *GraphProto) unmarshal(b []byte) error {
	return parseFields(b, &m.unknownFields, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeRepeatedMessage(typ, b, &m.Node)
		case 2:
			return consumeString(typ, b, &m.Name)
		case 5:
			return consumeRepeatedMessage(typ, b, &m.Initializer)
		case 10:
			return consumeString(typ, b, &m.DocString)
		case 11:
			return consumeRepeatedMessage(typ, b, &m.Input)
		case 12:
			return consumeRepeatedMessage(typ, b, &m.Output)
		case 13:
			return consumeRepeatedMessage(typ, b, &m.ValueInfo)
		case 16:
			return consumeRepeatedMessage(typ, b, &m.MetadataProps)
		}
		return 0, errUnknownField
	})
}

func (m *GraphProto) marshal(b []byte) []byte {
	b = appendMessages(b, 1, m.Node)
	b = appendString(b, 2, m.Name)
	b = appendMessages(b, 5, m.Initializer)
	b = appendString(b, 10, m.DocString)
	b = appendMessages(b, 11, m.Input)
	b = appendMessages(b, 12, m.Output)
	b = appendMessages(b, 13, m.ValueInfo)
	b = appendMessages(b, 16, m.MetadataProps)
	return append(b, m.unknownFields...)
}

// NodeProto is one operator application.
type NodeProto struct {
	Input         []string
	Output        []string
	Name          string
	OpType        string
	Domain        string
	Attribute     []*AttributeProto
	DocString     string
	MetadataProps []*StringStringEntryProto

	unknownFields []byte
}

func (m *NodeProto) unmarshal(b []byte) error {
	return parseFields(b, &m.unknownFields, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return appendStringToList(typ, b, &m.Input)
		case 2:
			return appendStringToList(typ, b, &m.Output)
		case 3:
			return consumeString(typ, b, &m.Name)
		case 4:
			return consumeString(typ, b, &m.OpType)
		case 5:
			return consumeRepeatedMessage(typ, b, &m.Attribute)
		case 6:
			return consumeString(typ, b, &m.DocString)
		case 7:
			return consumeString(typ, b, &m.Domain)
		case 9:
			return consumeRepeatedMessage(typ, b, &m.MetadataProps)
		}
		return 0, errUnknownField
	})
}

func (m *NodeProto) marshal(b []byte) []byte {
	b = appendStrings(b, 1, m.Input)
	b = appendStrings(b, 2, m.Output)
	b = appendString(b, 3, m.Name)
	b = appendString(b, 4, m.OpType)
	b = appendMessages(b, 5, m.Attribute)
	b = appendString(b, 6, m.DocString)
	b = appendString(b, 7, m.Domain)
	b = appendMessages(b, 9, m.MetadataProps)
	return append(b, m.unknownFields...)
}

// AttributeProto is a named attribute of a node. Type tells which of the value fields is used.
type AttributeProto struct {
	Name        string
	RefAttrName string
	DocString   string
	Type        AttributeProto_AttributeType
	F           float32
	I           int64
	S           []byte
	T           *TensorProto
	G           *GraphProto
	Floats      []float32
	Ints        []int64
	Strings     [][]byte
	Tensors     []*TensorProto
	Graphs      []*GraphProto

	unknownFields []byte
}

func (m *AttributeProto) unmarshal(b []byte) error {
	return parseFields(b, &m.unknownFields, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &m.Name)
		case 2:
			return consumeFloat(typ, b, &m.F)
		case 3:
			return consumeVarint(typ, b, &m.I)
		case 4:
			return consumeBytes(typ, b, &m.S)
		case 5:
			m.T = &TensorProto{}
			return consumeMessage(typ, b, m.T)
		case 6:
			m.G = &GraphProto{}
			return consumeMessage(typ, b, m.G)
		case 7:
			return consumeFloats(typ, b, &m.Floats)
		case 8:
			return consumeInt64s(typ, b, &m.Ints)
		case 9:
			var s []byte
			n, err := consumeBytes(typ, b, &s)
			if err == nil && n >= 0 {
				m.Strings = append(m.Strings, s)
			}
			return n, err
		case 10:
			return consumeRepeatedMessage(typ, b, &m.Tensors)
		case 11:
			return consumeRepeatedMessage(typ, b, &m.Graphs)
		case 13:
			return consumeString(typ, b, &m.DocString)
		case 20:
			var attrType int32
			n, err := consumeInt32(typ, b, &attrType)
			m.Type = AttributeProto_AttributeType(attrType)
			return n, err
		case 21:
			return consumeString(typ, b, &m.RefAttrName)
		}
		return 0, errUnknownField
	})
}

func (m *AttributeProto) marshal(b []byte) []byte {
	b = appendString(b, 1, m.Name)
	b = appendFloat(b, 2, m.F)
	b = appendVarint(b, 3, m.I)
	b = appendBytes(b, 4, m.S)
	b = appendMessage(b, 5, m.T)
	b = appendMessage(b, 6, m.G)
	b = appendUnpacked(b, 7, protowire.Fixed32Type, m.Floats, floatValue)
	b = appendUnpacked(b, 8, protowire.VarintType, m.Ints, varintValue[int64])
	b = appendUnpacked(b, 9, protowire.BytesType, m.Strings, bytesValue)
	b = appendMessages(b, 10, m.Tensors)
	b = appendMessages(b, 11, m.Graphs)
	b = appendString(b, 13, m.DocString)
	b = appendVarint(b, 20, int64(m.Type))
	b = appendString(b, 21, m.RefAttrName)
	return append(b, m.unknownFields...)
}
