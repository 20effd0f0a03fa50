package protos

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// TensorProto holds a constant tensor: initializers and tensor attributes.
//
// The contents are in exactly one of RawData (little-endian), the typed *Data fields or, if DataLocation is
// TensorProto_EXTERNAL, in the file described by ExternalData.
type TensorProto struct {
	Dims          []int64
	DataType      int32
	FloatData     []float32
	Int32Data     []int32
	StringData    [][]byte
	Int64Data     []int64
	Name          string
	DocString     string
	RawData       []byte
	ExternalData  []*StringStringEntryProto
	DataLocation  TensorProto_DataLocation
	DoubleData    []float64
	Uint64Data    []uint64
	MetadataProps []*StringStringEntryProto

	unknownFields []byte
}

func (m *TensorProto) unmarshal(b []byte) error {
	return parseFields(b, &m.unknownFields, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeInt64s(typ, b, &m.Dims)
		case 2:
			return consumeInt32(typ, b, &m.DataType)
		case 4:
			return consumeFloats(typ, b, &m.FloatData)
		case 5:
			return consumeInt32s(typ, b, &m.Int32Data)
		case 6:
			var s []byte
			n, err := consumeBytes(typ, b, &s)
			if err == nil && n >= 0 {
				m.StringData = append(m.StringData, s)
			}
			return n, err
		case 7:
			return consumeInt64s(typ, b, &m.Int64Data)
		case 8:
			return consumeString(typ, b, &m.Name)
		case 9:
			return consumeBytes(typ, b, &m.RawData)
		case 10:
			return consumeDoubles(typ, b, &m.DoubleData)
		case 11:
			return consumeUint64s(typ, b, &m.Uint64Data)
		case 12:
			return consumeString(typ, b, &m.DocString)
		case 13:
			return consumeRepeatedMessage(typ, b, &m.ExternalData)
		case 14:
			var location int32
			n, err := consumeInt32(typ, b, &location)
			m.DataLocation = TensorProto_DataLocation(location)
			return n, err
		case 16:
			return consumeRepeatedMessage(typ, b, &m.MetadataProps)
		}
		return 0, errUnknownField
	})
}

func (m *TensorProto) marshal(b []byte) []byte {
	b = appendUnpacked(b, 1, protowire.VarintType, m.Dims, varintValue[int64])
	b = appendVarint(b, 2, int64(m.DataType))
	b = appendPacked(b, 4, m.FloatData, floatValue)
	b = appendPacked(b, 5, m.Int32Data, varintValue[int32])
	b = appendUnpacked(b, 6, protowire.BytesType, m.StringData, bytesValue)
	b = appendPacked(b, 7, m.Int64Data, varintValue[int64])
	b = appendString(b, 8, m.Name)
	b = appendBytes(b, 9, m.RawData)
	b = appendPacked(b, 10, m.DoubleData, doubleValue)
	b = appendPacked(b, 11, m.Uint64Data, varintValue[uint64])
	b = appendString(b, 12, m.DocString)
	b = appendMessages(b, 13, m.ExternalData)
	b = appendVarint(b, 14, int64(m.DataLocation))
	b = appendMessages(b, 16, m.MetadataProps)
	return append(b, m.unknownFields...)
}

// ValueInfoProto annotates a named value (graph input, output or intermediate) with its type.
type ValueInfoProto struct {
	Name          string
	Type          *TypeProto
	DocString     string
	MetadataProps []*StringStringEntryProto

	unknownFields []byte
}

func (m *ValueInfoProto) unmarshal(b []byte) error {
	return parseFields(b, &m.unknownFields, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &m.Name)
		case 2:
			m.Type = &TypeProto{}
			return consumeMessage(typ, b, m.Type)
		case 3:
			return consumeString(typ, b, &m.DocString)
		case 4:
			return consumeRepeatedMessage(typ, b, &m.MetadataProps)
		}
		return 0, errUnknownField
	})
}

func (m *ValueInfoProto) marshal(b []byte) []byte {
	b = appendString(b, 1, m.Name)
	b = appendMessage(b, 2, m.Type)
	b = appendString(b, 3, m.DocString)
	b = appendMessages(b, 4, m.MetadataProps)
	return append(b, m.unknownFields...)
}

// GetTensorType returns the tensor type, or nil if the value is not a tensor (sequences, maps, ...) or has no
// type annotation.
func (m *ValueInfoProto) GetTensorType() *TypeProto_Tensor {
	if m == nil || m.Type == nil {
		return nil
	}
	return m.Type.TensorType
}

// TypeProto is the type of a value. Only tensor types are modelled: other variants (sequence, map, optional,
// sparse tensor) are kept as unknown fields.
type TypeProto struct {
	TensorType *TypeProto_Tensor
	Denotation string

	unknownFields []byte
}

func (m *TypeProto) unmarshal(b []byte) error {
	return parseFields(b, &m.unknownFields, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.TensorType = &TypeProto_Tensor{}
			return consumeMessage(typ, b, m.TensorType)
		case 6:
			return consumeString(typ, b, &m.Denotation)
		}
		return 0, errUnknownField
	})
}

func (m *TypeProto) marshal(b []byte) []byte {
	b = appendMessage(b, 1, m.TensorType)
	b = appendString(b, 6, m.Denotation)
	return append(b, m.unknownFields...)
}

// TypeProto_Tensor is a tensor type: element type and an optional shape. A nil Shape means unknown rank.
type TypeProto_Tensor struct {
	ElemType int32
	Shape    *TensorShapeProto

	unknownFields []byte
}

func (m *TypeProto_Tensor) unmarshal(b []byte) error {
	return parseFields(b, &m.unknownFields, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeInt32(typ, b, &m.ElemType)
		case 2:
			m.Shape = &TensorShapeProto{}
			return consumeMessage(typ, b, m.Shape)
		}
		return 0, errUnknownField
	})
}

func (m *TypeProto_Tensor) marshal(b []byte) []byte {
	b = appendVarint(b, 1, int64(m.ElemType))
	b = appendMessage(b, 2, m.Shape)
	return append(b, m.unknownFields...)
}

// TensorShapeProto is a ranked shape: an empty Dim list is a scalar.
type TensorShapeProto struct {
	Dim []*TensorShapeProto_Dimension

	unknownFields []byte
}

func (m *TensorShapeProto) unmarshal(b []byte) error {
	return parseFields(b, &m.unknownFields, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeRepeatedMessage(typ, b, &m.Dim)
		}
		return 0, errUnknownField
	})
}

func (m *TensorShapeProto) marshal(b []byte) []byte {
	b = appendMessages(b, 1, m.Dim)
	return append(b, m.unknownFields...)
}

// TensorShapeProto_Dimension is one axis of a shape: a concrete size (HasDimValue), a symbolic name (DimParam),
// or neither for an anonymous unknown dimension.
type TensorShapeProto_Dimension struct {
	DimValue    int64
	HasDimValue bool
	DimParam    string
	Denotation  string

	unknownFields []byte
}

func (m *TensorShapeProto_Dimension) unmarshal(b []byte) error {
	return parseFields(b, &m.unknownFields, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			n, err := consumeVarint(typ, b, &m.DimValue)
			m.HasDimValue = err == nil
			return n, err
		case 2:
			return consumeString(typ, b, &m.DimParam)
		case 3:
			return consumeString(typ, b, &m.Denotation)
		}
		return 0, errUnknownField
	})
}

func (m *TensorShapeProto_Dimension) marshal(b []byte) []byte {
	if m.HasDimValue {
		// Encoded even when 0: presence distinguishes a zero sized axis from an unknown one.
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.DimValue))
	} else {
		b = appendString(b, 2, m.DimParam)
	}
	b = appendString(b, 3, m.Denotation)
	return append(b, m.unknownFields...)
}
