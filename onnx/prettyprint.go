package onnx

import (
	"bytes"
	"fmt"
	"maps"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/onnx-shapes/internal/protos"
)

// String implements fmt.Stringer, and pretty prints model information.
func (m *Model) String() string {
	var buf bytes.Buffer
	w := func(format string, args ...any) {
		if len(args) == 0 {
			buf.WriteString(format)
		} else {
			buf.WriteString(fmt.Sprintf(format, args...))
		}
	}
	w("ONNX Model:\n")
	if m.Proto.DocString != "" {
		w("%s\n", m.Proto.DocString)
	}
	if m.Proto.ModelVersion != 0 {
		w("\tVersion:\t%d\n", m.Proto.ModelVersion)
	}
	if m.Proto.ProducerName != "" {
		w("\tProducer:\t%s / %s\n", m.Proto.ProducerName, m.Proto.ProducerVersion)
	}
	w("\tIR Version:\t%d\n", m.Proto.IrVersion)
	w("\tOperator Sets:\t[")
	for ii, opSetId := range m.Proto.OpsetImport {
		if ii > 0 {
			w(", ")
		}
		if opSetId.Domain != "" {
			w("v%d (%s)", opSetId.Version, opSetId.Domain)
		} else {
			w("v%d", opSetId.Version)
		}
	}
	w("]\n")

	graphProto := m.Proto.Graph
	w("\t# nodes:\t%d\n", len(graphProto.Node))
	w("\t# initializers:\t%d\n", len(graphProto.Initializer))
	opTypesSet := sets.Make[string]()
	for _, n := range graphProto.Node {
		opTypesSet.Insert(n.OpType)
	}
	w("\tOp types:\t%#v\n", slices.Sorted(maps.Keys(opTypesSet)))

	initializers := m.initializerNames()
	w("\tInputs:\n")
	for _, vi := range graphProto.Input {
		if !initializers.Has(vi.Name) {
			w("\t\t%s\n", valueInfoString(vi))
		}
	}
	w("\tOutputs:\n")
	for _, vi := range graphProto.Output {
		w("\t\t%s\n", valueInfoString(vi))
	}

	if len(m.Proto.MetadataProps) > 0 {
		w("\tMetadata: [")
		for ii, prop := range m.Proto.MetadataProps {
			if ii > 0 {
				w(", ")
			}
			w("%s=%s", prop.Key, prop.Value)
		}
		w("]\n")
	}
	return buf.String()
}

// valueInfoString formats a declared value as "name: (dtype)[dims...]", in the same format as graph.Tensor.
func valueInfoString(vi *protos.ValueInfoProto) string {
	dtype, shape, err := valueInfoType(vi)
	if err != nil {
		return fmt.Sprintf("%s: <%v>", vi.Name, err)
	}
	dtypeStr := "?"
	if tensorType := vi.GetTensorType(); tensorType != nil && tensorType.ElemType != 0 {
		dtypeStr = protos.TensorProto_DataType(tensorType.ElemType).String()
		if dtype != dtypes.InvalidDType {
			dtypeStr = dtype.String()
		}
	}
	return fmt.Sprintf("%s: (%s)%s", vi.Name, dtypeStr, shape)
}
