package main

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/onnx-shapes/graph"
	"github.com/gomlx/onnx-shapes/inference"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
)

// tensorRow is one row of the -report_parquet file.
//
// The parquet annotations are described in: https://pkg.go.dev/github.com/parquet-go/parquet-go#SchemaOf
type tensorRow struct {
	Name     string `parquet:"name,snappy"`
	Kind     string `parquet:"kind,dict"`
	DType    string `parquet:"dtype,dict"`
	Shape    string `parquet:"shape,snappy"`
	Rank     int32  `parquet:"rank"`
	Producer string `parquet:"producer,snappy"`
	OpType   string `parquet:"op_type,dict"`
	IsOutput bool   `parquet:"is_output"`
	Resolved bool   `parquet:"resolved"`
}

// reportRows lists every tensor of g: graph inputs, initializers and then node outputs in the order of the nodes.
// Rank is -1 for tensors of unknown rank.
func reportRows(g *graph.Graph, report *inference.Report) []tensorRow {
	outputs := sets.MakeWith(g.Outputs...)
	unresolved := sets.Make[string](len(report.Unresolved))
	for _, u := range report.Unresolved {
		unresolved.Insert(u.Name)
	}
	seen := sets.Make[string]()
	var rows []tensorRow
	add := func(name, kind string, node *graph.Node) {
		if name == "" || seen.Has(name) {
			return
		}
		seen.Insert(name)
		t := g.TensorOrUnknown(name)
		row := tensorRow{
			Name:     name,
			Kind:     kind,
			DType:    "?",
			Shape:    t.Shape.String(),
			Rank:     -1,
			IsOutput: outputs.Has(name),
			Resolved: t.IsResolved() && !unresolved.Has(name),
		}
		if t.DType != dtypes.InvalidDType {
			row.DType = t.DType.String()
		}
		if t.Shape.HasRank() {
			row.Rank = int32(t.Shape.Rank())
		}
		if node != nil {
			row.Producer, row.OpType = node.Name, node.OpType
		}
		rows = append(rows, row)
	}
	for _, name := range g.Inputs {
		add(name, "input", nil)
	}
	for _, name := range g.Initializers {
		add(name, "initializer", nil)
	}
	for _, node := range g.Nodes {
		for _, name := range node.Outputs {
			add(name, "computed", node)
		}
	}
	return rows
}

// writeParquetReport saves the rows of reportRows to filePath.
func writeParquetReport(filePath string, g *graph.Graph, report *inference.Report) error {
	rows := reportRows(g, report)
	if err := parquet.WriteFile(filePath, rows); err != nil {
		return errors.Wrapf(err, "failed to write tensors report to %q", filePath)
	}
	return nil
}
