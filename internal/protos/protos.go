// Package protos holds the subset of the ONNX protobuf messages (onnx.proto) used by shape inference, with a
// protowire based codec.
//
// Fields not modelled here (training info, functions, sparse tensors, non-tensor types, ...) are kept verbatim
// in each message's unknown fields, so a decode/encode round trip doesn't lose them.
//
// Field names follow the protoc-gen-go naming, so code reads the same as with generated messages.
package protos

import "fmt"

// TensorProto_DataType is the element type of a tensor, as in TensorProto.data_type and TypeProto.Tensor.elem_type.
type TensorProto_DataType int32

const (
	TensorProto_UNDEFINED  TensorProto_DataType = 0
	TensorProto_FLOAT      TensorProto_DataType = 1
	TensorProto_UINT8      TensorProto_DataType = 2
	TensorProto_INT8       TensorProto_DataType = 3
	TensorProto_UINT16     TensorProto_DataType = 4
	TensorProto_INT16      TensorProto_DataType = 5
	TensorProto_INT32      TensorProto_DataType = 6
	TensorProto_INT64      TensorProto_DataType = 7
	TensorProto_STRING     TensorProto_DataType = 8
	TensorProto_BOOL       TensorProto_DataType = 9
	TensorProto_FLOAT16    TensorProto_DataType = 10
	TensorProto_DOUBLE     TensorProto_DataType = 11
	TensorProto_UINT32     TensorProto_DataType = 12
	TensorProto_UINT64     TensorProto_DataType = 13
	TensorProto_COMPLEX64  TensorProto_DataType = 14
	TensorProto_COMPLEX128 TensorProto_DataType = 15
	TensorProto_BFLOAT16   TensorProto_DataType = 16
)

var dataTypeNames = map[TensorProto_DataType]string{
	TensorProto_UNDEFINED:  "UNDEFINED",
	TensorProto_FLOAT:      "FLOAT",
	TensorProto_UINT8:      "UINT8",
	TensorProto_INT8:       "INT8",
	TensorProto_UINT16:     "UINT16",
	TensorProto_INT16:      "INT16",
	TensorProto_INT32:      "INT32",
	TensorProto_INT64:      "INT64",
	TensorProto_STRING:     "STRING",
	TensorProto_BOOL:       "BOOL",
	TensorProto_FLOAT16:    "FLOAT16",
	TensorProto_DOUBLE:     "DOUBLE",
	TensorProto_UINT32:     "UINT32",
	TensorProto_UINT64:     "UINT64",
	TensorProto_COMPLEX64:  "COMPLEX64",
	TensorProto_COMPLEX128: "COMPLEX128",
	TensorProto_BFLOAT16:   "BFLOAT16",
}

// String implements fmt.Stringer.
func (x TensorProto_DataType) String() string {
	if name, found := dataTypeNames[x]; found {
		return name
	}
	return fmt.Sprintf("TensorProto_DataType(%d)", int32(x))
}

// TensorProto_DataLocation tells whether a tensor's data is stored in the model file or in an external file.
type TensorProto_DataLocation int32

const (
	TensorProto_DEFAULT  TensorProto_DataLocation = 0
	TensorProto_EXTERNAL TensorProto_DataLocation = 1
)

// AttributeProto_AttributeType tags the value held by an AttributeProto.
type AttributeProto_AttributeType int32

const (
	AttributeProto_UNDEFINED      AttributeProto_AttributeType = 0
	AttributeProto_FLOAT          AttributeProto_AttributeType = 1
	AttributeProto_INT            AttributeProto_AttributeType = 2
	AttributeProto_STRING         AttributeProto_AttributeType = 3
	AttributeProto_TENSOR         AttributeProto_AttributeType = 4
	AttributeProto_GRAPH          AttributeProto_AttributeType = 5
	AttributeProto_SPARSE_TENSOR  AttributeProto_AttributeType = 11
	AttributeProto_TYPE_PROTO     AttributeProto_AttributeType = 13
	AttributeProto_FLOATS         AttributeProto_AttributeType = 6
	AttributeProto_INTS           AttributeProto_AttributeType = 7
	AttributeProto_STRINGS        AttributeProto_AttributeType = 8
	AttributeProto_TENSORS        AttributeProto_AttributeType = 9
	AttributeProto_GRAPHS         AttributeProto_AttributeType = 10
	AttributeProto_SPARSE_TENSORS AttributeProto_AttributeType = 12
	AttributeProto_TYPE_PROTOS    AttributeProto_AttributeType = 14
)

// String implements fmt.Stringer.
func (x AttributeProto_AttributeType) String() string {
	switch x {
	case AttributeProto_FLOAT:
		return "FLOAT"
	case AttributeProto_INT:
		return "INT"
	case AttributeProto_STRING:
		return "STRING"
	case AttributeProto_TENSOR:
		return "TENSOR"
	case AttributeProto_GRAPH:
		return "GRAPH"
	case AttributeProto_SPARSE_TENSOR:
		return "SPARSE_TENSOR"
	case AttributeProto_TYPE_PROTO:
		return "TYPE_PROTO"
	case AttributeProto_FLOATS:
		return "FLOATS"
	case AttributeProto_INTS:
		return "INTS"
	case AttributeProto_STRINGS:
		return "STRINGS"
	case AttributeProto_TENSORS:
		return "TENSORS"
	case AttributeProto_GRAPHS:
		return "GRAPHS"
	case AttributeProto_SPARSE_TENSORS:
		return "SPARSE_TENSORS"
	case AttributeProto_TYPE_PROTOS:
		return "TYPE_PROTOS"
	default:
		return "UNDEFINED"
	}
}
