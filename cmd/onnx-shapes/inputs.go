package main

import (
	"strings"

	"github.com/gomlx/onnx-shapes/graph"
	"github.com/pkg/errors"
)

// parseInputShapes parses the value of -input_shapes: "name=1,3,?,batch;other=..." .
func parseInputShapes(value string) (map[string]graph.Shape, error) {
	known := make(map[string]graph.Shape)
	for _, entry := range strings.Split(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, dims, found := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			return nil, errors.Errorf("invalid -input_shapes entry %q: expected name=dims", entry)
		}
		if _, duplicate := known[name]; duplicate {
			return nil, errors.Errorf("input %q given more than once in -input_shapes", name)
		}
		shape, err := graph.ParseShape(dims)
		if err != nil {
			return nil, errors.WithMessagef(err, "-input_shapes for %q", name)
		}
		known[name] = shape
	}
	return known, nil
}
