package protos

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func testModel() *ModelProto {
	return &ModelProto{
		IrVersion:    8,
		OpsetImport:  []*OperatorSetIdProto{{Version: 17}, {Domain: "com.microsoft", Version: 1}},
		ProducerName: "test",
		Graph: &GraphProto{
			Name: "main",
			Node: []*NodeProto{
				{
					Name: "reshape", OpType: "Reshape", Input: []string{"x", "shape"}, Output: []string{"y"},
					Attribute: []*AttributeProto{{Name: "allowzero", Type: AttributeProto_INT, I: 0}},
				},
				{
					Name: "dropout", OpType: "Dropout", Input: []string{"y", "", ""}, Output: []string{"z", ""},
					Attribute: []*AttributeProto{
						{Name: "scales", Type: AttributeProto_FLOATS, Floats: []float32{0.5, 2}},
						{Name: "perm", Type: AttributeProto_INTS, Ints: []int64{-1, 0, 1}},
						{Name: "mode", Type: AttributeProto_STRING, S: []byte("nearest")},
						{Name: "alpha", Type: AttributeProto_FLOAT, F: 0.25},
						{Name: "value", Type: AttributeProto_TENSOR, T: &TensorProto{
							DataType: int32(TensorProto_INT64), Dims: []int64{2}, Int64Data: []int64{-1, 7}}},
					},
				},
			},
			Initializer: []*TensorProto{
				{Name: "shape", DataType: int32(TensorProto_INT64), Dims: []int64{2}, Int64Data: []int64{0, -1}},
				{Name: "w", DataType: int32(TensorProto_FLOAT), Dims: []int64{2, 2}, RawData: []byte{0, 0, 128, 63, 0, 0, 0, 64, 0, 0, 64, 64, 0, 0, 128, 64}},
				{Name: "d", DataType: int32(TensorProto_DOUBLE), Dims: []int64{1}, DoubleData: []float64{3.5}},
			},
			Input: []*ValueInfoProto{{Name: "x", Type: &TypeProto{TensorType: &TypeProto_Tensor{
				ElemType: int32(TensorProto_FLOAT),
				Shape: &TensorShapeProto{Dim: []*TensorShapeProto_Dimension{
					{DimParam: "batch"}, {DimValue: 0, HasDimValue: true}, {DimValue: 12, HasDimValue: true}, {}}},
			}}}},
			Output: []*ValueInfoProto{{Name: "z", Type: &TypeProto{TensorType: &TypeProto_Tensor{ElemType: int32(TensorProto_FLOAT)}}}},
		},
		MetadataProps: []*StringStringEntryProto{{Key: "author", Value: "me"}},
	}
}

func TestRoundTrip(t *testing.T) {
	model := testModel()
	encoded := Marshal(model)
	var decoded ModelProto
	require.NoError(t, Unmarshal(encoded, &decoded))
	require.Equal(t, model, &decoded)
	require.Equal(t, encoded, Marshal(&decoded))

	dims := decoded.Graph.Input[0].GetTensorType().Shape.Dim
	assert.True(t, dims[1].HasDimValue)
	assert.Equal(t, int64(0), dims[1].DimValue)
	assert.False(t, dims[3].HasDimValue)
	assert.Equal(t, "", decoded.Graph.Node[1].Input[1])
	assert.Nil(t, decoded.Graph.Output[0].GetTensorType().Shape)
}

func TestUnknownFieldsPreserved(t *testing.T) {
	// A "functions" field (#25) in the model, and a "sparse_initializer" (#15) in the graph.
	extra := protowire.AppendTag(nil, 25, protowire.BytesType)
	extra = protowire.AppendBytes(extra, []byte("opaque function"))
	graphExtra := protowire.AppendTag(nil, 15, protowire.BytesType)
	graphExtra = protowire.AppendBytes(graphExtra, []byte{1, 2, 3})

	model := testModel()
	model.Graph.unknownFields = graphExtra
	encoded := append(Marshal(model), extra...)

	var decoded ModelProto
	require.NoError(t, Unmarshal(encoded, &decoded))
	assert.Equal(t, extra, decoded.unknownFields)
	assert.Equal(t, graphExtra, decoded.Graph.unknownFields)

	reencoded := Marshal(&decoded)
	assert.True(t, bytes.Contains(reencoded, extra))
	assert.True(t, bytes.Contains(reencoded, graphExtra))
	var again ModelProto
	require.NoError(t, Unmarshal(reencoded, &again))
	require.Equal(t, &decoded, &again)
}

func TestPackedAndUnpacked(t *testing.T) {
	// Dims packed (written by some exporters), int64_data unpacked: both encodings must be accepted.
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, protowire.AppendVarint(protowire.AppendVarint(nil, 2), 3))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(TensorProto_INT64))
	for _, v := range []int64{1, -2, 3, 4, 5, 6} {
		b = protowire.AppendTag(b, 7, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v))
	}
	var tensor TensorProto
	require.NoError(t, tensor.unmarshal(b))
	assert.Equal(t, []int64{2, 3}, tensor.Dims)
	assert.Equal(t, int32(TensorProto_INT64), tensor.DataType)
	assert.Equal(t, []int64{1, -2, 3, 4, 5, 6}, tensor.Int64Data)
}

func TestMalformed(t *testing.T) {
	encoded := Marshal(testModel())
	var decoded ModelProto
	require.Error(t, Unmarshal(encoded[:len(encoded)-3], &decoded))
	require.Error(t, Unmarshal([]byte{0xff, 0xff, 0xff}, &decoded))
}

func TestDataTypeString(t *testing.T) {
	assert.Equal(t, "FLOAT16", TensorProto_FLOAT16.String())
	assert.Equal(t, "TensorProto_DataType(99)", TensorProto_DataType(99).String())
	assert.Equal(t, "INTS", AttributeProto_INTS.String())
}
