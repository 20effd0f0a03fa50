package onnx

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/onnx-shapes/graph"
	"github.com/gomlx/onnx-shapes/internal/protos"
)

// dtypeForONNX converts an ONNX data type to a gomlx data type.
// STRING and UNDEFINED map to dtypes.InvalidDType, the unknown element type.
func dtypeForONNX(onnxDType protos.TensorProto_DataType) (dtypes.DType, error) {
	return graph.DTypeForONNX(int32(onnxDType))
}

// onnxForDType converts a gomlx data type to ONNX. It returns TensorProto_UNDEFINED for dtypes.InvalidDType.
func onnxForDType(dtype dtypes.DType) protos.TensorProto_DataType {
	return protos.TensorProto_DataType(graph.ONNXForDType(dtype))
}

// byteSize returns the number of bytes used per element in the raw data of a tensor of the given ONNX type,
// or 0 if it doesn't have a fixed size (STRING, UNDEFINED).
func byteSize(onnxDType protos.TensorProto_DataType) int {
	switch onnxDType {
	case protos.TensorProto_BOOL, protos.TensorProto_INT8, protos.TensorProto_UINT8:
		return 1
	case protos.TensorProto_INT16, protos.TensorProto_UINT16, protos.TensorProto_FLOAT16, protos.TensorProto_BFLOAT16:
		return 2
	case protos.TensorProto_INT32, protos.TensorProto_UINT32, protos.TensorProto_FLOAT:
		return 4
	case protos.TensorProto_INT64, protos.TensorProto_UINT64, protos.TensorProto_DOUBLE, protos.TensorProto_COMPLEX64:
		return 8
	case protos.TensorProto_COMPLEX128:
		return 16
	default:
		return 0
	}
}
