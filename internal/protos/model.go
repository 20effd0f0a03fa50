package protos

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// ModelProto is the top-level message of an ONNX file.
type ModelProto struct {
	IrVersion       int64
	OpsetImport     []*OperatorSetIdProto
	ProducerName    string
	ProducerVersion string
	Domain          string
	ModelVersion    int64
	DocString       string
	Graph           *GraphProto
	MetadataProps   []*StringStringEntryProto

	unknownFields []byte
}

// Unmarshal decodes an ONNX model from its protobuf wire format.
func Unmarshal(b []byte, m *ModelProto) error {
	*m = ModelProto{}
	return errors.WithMessage(m.unmarshal(b), "decoding ModelProto")
}

// Marshal encodes the model in protobuf wire format.
func Marshal(m *ModelProto) []byte {
	return m.marshal(nil)
}

// GetGraph returns the main graph, or nil.
func (m *ModelProto) GetGraph() *GraphProto {
	if m == nil {
		return nil
	}
	return m.Graph
}

func (m *ModelProto) unmarshal(b []byte) error {
	return parseFields(b, &m.unknownFields, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeVarint(typ, b, &m.IrVersion)
		case 2:
			return consumeString(typ, b, &m.ProducerName)
		case 3:
			return consumeString(typ, b, &m.ProducerVersion)
		case 4:
			return consumeString(typ, b, &m.Domain)
		case 5:
			return consumeVarint(typ, b, &m.ModelVersion)
		case 6:
			return consumeString(typ, b, &m.DocString)
		case 7:
			m.Graph = &GraphProto{}
			return consumeMessage(typ, b, m.Graph)
		case 8:
			return consumeRepeatedMessage(typ, b, &m.OpsetImport)
		case 14:
			return consumeRepeatedMessage(typ, b, &m.MetadataProps)
		}
		return 0, errUnknownField
	})
}

func (m *ModelProto) marshal(b []byte) []byte {
	b = appendVarint(b, 1, m.IrVersion)
	b = appendString(b, 2, m.ProducerName)
	b = appendString(b, 3, m.ProducerVersion)
	b = appendString(b, 4, m.Domain)
	b = appendVarint(b, 5, m.ModelVersion)
	b = appendString(b, 6, m.DocString)
	b = appendMessage(b, 7, m.Graph)
	b = appendMessages(b, 8, m.OpsetImport)
	b = appendMessages(b, 14, m.MetadataProps)
	return append(b, m.unknownFields...)
}

// OperatorSetIdProto names the version of an operator set (domain) used by the model.
type OperatorSetIdProto struct {
	Domain  string
	Version int64

	unknownFields []byte
}

func (m *OperatorSetIdProto) unmarshal(b []byte) error {
	return parseFields(b, &m.unknownFields, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &m.Domain)
		case 2:
			return consumeVarint(typ, b, &m.Version)
		}
		return 0, errUnknownField
	})
}

func (m *OperatorSetIdProto) marshal(b []byte) []byte {
	b = appendString(b, 1, m.Domain)
	b = appendVarint(b, 2, m.Version)
	return append(b, m.unknownFields...)
}

// StringStringEntryProto is a key/value pair, used for metadata and external data locations.
type StringStringEntryProto struct {
	Key, Value string

	unknownFields []byte
}

func (m *StringStringEntryProto) unmarshal(b []byte) error {
	return parseFields(b, &m.unknownFields, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &m.Key)
		case 2:
			return consumeString(typ, b, &m.Value)
		}
		return 0, errUnknownField
	})
}

func (m *StringStringEntryProto) marshal(b []byte) []byte {
	b = appendString(b, 1, m.Key)
	b = appendString(b, 2, m.Value)
	return append(b, m.unknownFields...)
}
