package onnx

import (
	"encoding/binary"
	"math"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/dtypes/bfloat16"
	"github.com/gomlx/onnx-shapes/graph"
	"github.com/gomlx/onnx-shapes/internal/protos"
	"github.com/gomlx/onnx-shapes/shapeinference"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Shape returns the element type and the (always concrete) shape of an ONNX tensor.
func Shape(proto *protos.TensorProto) (dtype dtypes.DType, shape graph.Shape, err error) {
	if proto == nil {
		err = errors.New("ONNX TensorProto is nil")
		return
	}
	dtype, err = dtypeForONNX(protos.TensorProto_DataType(proto.DataType))
	if err != nil {
		return
	}
	sizes := make([]int, len(proto.Dims))
	for axis, dim := range proto.Dims {
		if dim < 0 {
			err = errors.Errorf("tensor %q has negative dimension %d at axis %d", proto.Name, dim, axis)
			return
		}
		sizes[axis] = int(dim)
	}
	shape = graph.Sizes(sizes...)
	return
}

// tensorToGraph converts an ONNX tensor (initializer or attribute) to a graph.Tensor descriptor.
//
// The contents are decoded only for tensors small enough to be used as shape values (see
// shapeinference.MaxValueElements): weights are described by element type and shape only. external is used to read
// external data, and may be nil, in which case externally stored contents are left unknown.
func tensorToGraph(proto *protos.TensorProto, external *ExternalDataReader) (*graph.Tensor, error) {
	dtype, shape, err := Shape(proto)
	if err != nil {
		return nil, errors.WithMessagef(err, "while parsing tensor %q", proto.Name)
	}
	t := graph.NewTensor(proto.Name, dtype, shape)
	size, _ := shape.NumElements()
	if dtype == dtypes.InvalidDType || dtype.IsComplex() || size > shapeinference.MaxValueElements {
		return t, nil
	}
	t.Value, err = tensorValue(proto, dtype, size, external)
	if err != nil {
		return nil, errors.WithMessagef(err, "while parsing tensor %q shaped %s", proto.Name, shape)
	}
	return t, nil
}

// tensorValue decodes the contents of the tensor, from whichever field holds it.
func tensorValue(proto *protos.TensorProto, dtype dtypes.DType, size int, external *ExternalDataReader) (*graph.Constant, error) {
	onnxDType := protos.TensorProto_DataType(proto.DataType)
	raw := proto.RawData
	if proto.DataLocation == protos.TensorProto_EXTERNAL || len(proto.ExternalData) > 0 {
		info, err := parseExternalData(proto)
		if err != nil {
			return nil, err
		}
		if external == nil || info == nil {
			return nil, nil
		}
		raw = make([]byte, size*byteSize(onnxDType))
		if err := external.ReadInto(info, raw); err != nil {
			return nil, err
		}
	}
	if raw != nil {
		return rawToConstant(onnxDType, raw, size)
	}

	integral := graph.IsIntegral(dtype)
	switch onnxDType {
	case protos.TensorProto_FLOAT:
		return checkAndConvert(proto.FloatData, size, integral, func(v float32) float64 { return float64(v) })
	case protos.TensorProto_DOUBLE:
		return checkAndConvert(proto.DoubleData, size, integral, func(v float64) float64 { return v })
	case protos.TensorProto_INT64:
		return checkAndConvert(proto.Int64Data, size, integral, func(v int64) float64 { return float64(v) })
	case protos.TensorProto_UINT32, protos.TensorProto_UINT64:
		return checkAndConvert(proto.Uint64Data, size, integral, func(v uint64) float64 { return float64(v) })
	case protos.TensorProto_FLOAT16:
		return checkAndConvert(proto.Int32Data, size, integral, func(v int32) float64 {
			return float64(float16.Frombits(uint16(v)).Float32())
		})
	case protos.TensorProto_BFLOAT16:
		return checkAndConvert(proto.Int32Data, size, integral, func(v int32) float64 {
			return float64(bfloat16.FromBits(uint16(v)).Float32())
		})
	default:
		// INT32, INT16, INT8, UINT16, UINT8 and BOOL are all stored in int32_data.
		return checkAndConvert(proto.Int32Data, size, integral, func(v int32) float64 { return float64(v) })
	}
}

// checkAndConvert implements the generic check and conversion of the ONNX typed data fields.
// convert is only used for floating point tensors: integral ones are converted directly to int64.
func checkAndConvert[T float32 | float64 | int32 | int64 | uint64](onnxData []T, size int, integral bool,
	convert func(T) float64) (*graph.Constant, error) {
	if len(onnxData) != size {
		return nil, errors.Errorf("tensor has size %d, but ONNX model provided a slice with %d values", size, len(onnxData))
	}
	if integral {
		ints := make([]int64, size)
		for ii, v := range onnxData {
			ints[ii] = int64(v)
		}
		return &graph.Constant{Ints: ints}, nil
	}
	floats := make([]float64, size)
	for ii, v := range onnxData {
		floats[ii] = convert(v)
	}
	return &graph.Constant{Floats: floats}, nil
}

// rawToConstant decodes little-endian raw data.
func rawToConstant(onnxDType protos.TensorProto_DataType, raw []byte, size int) (*graph.Constant, error) {
	elementSize := byteSize(onnxDType)
	if elementSize == 0 {
		return nil, errors.Errorf("raw data not supported for ONNX data type %s", onnxDType)
	}
	if len(raw) != size*elementSize {
		return nil, errors.Errorf("tensor uses %d bytes, but ONNX model provided %d bytes of raw-data", size*elementSize, len(raw))
	}
	le := binary.LittleEndian
	var ints []int64
	var floats []float64
	switch onnxDType {
	case protos.TensorProto_FLOAT, protos.TensorProto_DOUBLE, protos.TensorProto_FLOAT16, protos.TensorProto_BFLOAT16:
		floats = make([]float64, size)
	default:
		ints = make([]int64, size)
	}
	for ii := range size {
		b := raw[ii*elementSize : (ii+1)*elementSize]
		switch onnxDType {
		case protos.TensorProto_FLOAT:
			floats[ii] = float64(math.Float32frombits(le.Uint32(b)))
		case protos.TensorProto_DOUBLE:
			floats[ii] = math.Float64frombits(le.Uint64(b))
		case protos.TensorProto_FLOAT16:
			floats[ii] = float64(float16.Frombits(le.Uint16(b)).Float32())
		case protos.TensorProto_BFLOAT16:
			floats[ii] = float64(bfloat16.FromBits(le.Uint16(b)).Float32())
		case protos.TensorProto_BOOL, protos.TensorProto_UINT8:
			ints[ii] = int64(b[0])
		case protos.TensorProto_INT8:
			ints[ii] = int64(int8(b[0]))
		case protos.TensorProto_INT16:
			ints[ii] = int64(int16(le.Uint16(b)))
		case protos.TensorProto_UINT16:
			ints[ii] = int64(le.Uint16(b))
		case protos.TensorProto_INT32:
			ints[ii] = int64(int32(le.Uint32(b)))
		case protos.TensorProto_UINT32:
			ints[ii] = int64(le.Uint32(b))
		case protos.TensorProto_INT64, protos.TensorProto_UINT64:
			ints[ii] = int64(le.Uint64(b))
		default:
			return nil, errors.Errorf("raw data not supported for ONNX data type %s", onnxDType)
		}
	}
	if floats != nil {
		return &graph.Constant{Floats: floats}, nil
	}
	return &graph.Constant{Ints: ints}, nil
}
