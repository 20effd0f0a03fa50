package graph

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
)

// ONNX TensorProto.DataType codes, as used in "to" attributes (Cast, EyeLike, ...) and in model files.
const (
	ONNXUndefined  int32 = 0
	ONNXFloat      int32 = 1
	ONNXUint8      int32 = 2
	ONNXInt8       int32 = 3
	ONNXUint16     int32 = 4
	ONNXInt16      int32 = 5
	ONNXInt32      int32 = 6
	ONNXInt64      int32 = 7
	ONNXString     int32 = 8
	ONNXBool       int32 = 9
	ONNXFloat16    int32 = 10
	ONNXDouble     int32 = 11
	ONNXUint32     int32 = 12
	ONNXUint64     int32 = 13
	ONNXComplex64  int32 = 14
	ONNXComplex128 int32 = 15
	ONNXBFloat16   int32 = 16
)

// DTypeForONNX converts an ONNX data type code to a dtypes.DType.
//
// STRING and UNDEFINED map to dtypes.InvalidDType (unknown element type) without error, since their tensors still
// have shapes worth propagating.
func DTypeForONNX(code int32) (dtypes.DType, error) {
	switch code {
	case ONNXUndefined, ONNXString:
		return dtypes.InvalidDType, nil
	case ONNXFloat:
		return dtypes.Float32, nil
	case ONNXFloat16:
		return dtypes.Float16, nil
	case ONNXBFloat16:
		return dtypes.BFloat16, nil
	case ONNXDouble:
		return dtypes.Float64, nil
	case ONNXInt32:
		return dtypes.Int32, nil
	case ONNXInt64:
		return dtypes.Int64, nil
	case ONNXUint8:
		return dtypes.Uint8, nil
	case ONNXInt8:
		return dtypes.Int8, nil
	case ONNXInt16:
		return dtypes.Int16, nil
	case ONNXUint16:
		return dtypes.Uint16, nil
	case ONNXUint32:
		return dtypes.Uint32, nil
	case ONNXUint64:
		return dtypes.Uint64, nil
	case ONNXBool:
		return dtypes.Bool, nil
	case ONNXComplex64:
		return dtypes.Complex64, nil
	case ONNXComplex128:
		return dtypes.Complex128, nil
	default:
		return dtypes.InvalidDType, errors.Errorf("unsupported/unknown ONNX data type %d", code)
	}
}

// ONNXForDType is the inverse of DTypeForONNX. It returns ONNXUndefined for dtypes.InvalidDType and for dtypes with
// no ONNX equivalent.
func ONNXForDType(dtype dtypes.DType) int32 {
	switch dtype {
	case dtypes.Float32:
		return ONNXFloat
	case dtypes.Float16:
		return ONNXFloat16
	case dtypes.BFloat16:
		return ONNXBFloat16
	case dtypes.Float64:
		return ONNXDouble
	case dtypes.Int32:
		return ONNXInt32
	case dtypes.Int64:
		return ONNXInt64
	case dtypes.Uint8:
		return ONNXUint8
	case dtypes.Int8:
		return ONNXInt8
	case dtypes.Int16:
		return ONNXInt16
	case dtypes.Uint16:
		return ONNXUint16
	case dtypes.Uint32:
		return ONNXUint32
	case dtypes.Uint64:
		return ONNXUint64
	case dtypes.Bool:
		return ONNXBool
	case dtypes.Complex64:
		return ONNXComplex64
	case dtypes.Complex128:
		return ONNXComplex128
	default:
		return ONNXUndefined
	}
}

// IsIntegral returns whether values of the dtype are stored in Constant.Ints: integers and booleans.
func IsIntegral(dtype dtypes.DType) bool {
	return dtype == dtypes.Bool || dtype.IsInt()
}
