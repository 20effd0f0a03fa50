package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/onnx-shapes/graph"
	"github.com/gomlx/onnx-shapes/inference"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)

	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

func newPlainTable(withHeader bool) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row == 1 {
				s = headerRowStyle
				return
			}
			switch {
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			if col == 0 {
				s = s.Align(lipgloss.Right)
			} else {
				s = s.Align(lipgloss.Left)
			}
			return
		})
}

// printSummary prints the counts of the inference pass, and a table with the unresolved tensors.
func printSummary(modelPath string, g *graph.Graph, report *inference.Report, elapsed time.Duration) {
	fmt.Println(titleStyle.Render("Summary"))
	table := newPlainTable(false)
	table.Row("model", modelPath)
	table.Row("# nodes", humanize.Comma(int64(len(g.Nodes))))
	table.Row("# initializers", humanize.Comma(int64(len(g.Initializers))))
	table.Row("# tensors", humanize.Comma(int64(report.NumTensors)))
	table.Row("# unresolved", humanize.Comma(int64(len(report.Unresolved))))
	table.Row("# unresolved outputs", humanize.Comma(int64(len(report.Outputs()))))
	table.Row("inference time", elapsed.String())
	fmt.Println(table.Render())

	if report.Empty() {
		return
	}
	fmt.Println(titleStyle.Render("Unresolved Tensors"))
	table = newPlainTable(true)
	table.Row("Name", "DType", "Shape", "Producer", "Op Type", "Output")
	for _, u := range report.Unresolved {
		dtype := "?"
		if u.DType != dtypes.InvalidDType {
			dtype = u.DType.String()
		}
		output := ""
		if u.IsOutput {
			output = "✓"
		}
		table.Row(u.Name, dtype, u.Shape.String(), u.Producer, u.OpType, output)
	}
	fmt.Println(table.Render())
}
