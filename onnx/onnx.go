// Package onnx reads and writes ONNX model files, converting them to and from the graph model used by shape
// inference.
//
//   - Parse: converts a serialized ONNX ModelProto to a Model.
//   - ReadFile: reads a file and calls Parse. It returns a Model.
//   - Model.Graph: converts the model's main graph to a *graph.Graph, ready for inference.Infer.
//   - Model.UpdateShapes: records the inferred tensor types back into the model's value_info, inputs and outputs.
//   - Model.InferShapes: all of the above in one call.
//   - Model.WriteFile / Model.Marshal: serialize the model back.
package onnx

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/onnx-shapes/internal/protos"
	"github.com/pkg/errors"
)

// Model represents a parsed ONNX file.
type Model struct {
	Proto protos.ModelProto

	// baseDir is the directory of the model file, used to resolve external data. Empty if parsed from memory.
	baseDir string
}

// LoadError is returned when a model can't be read or decoded.
type LoadError struct {
	// Path of the file, empty when parsing from memory.
	Path string
	Err  error
}

// Error implements error.
func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to load ONNX model: %v", e.Err)
	}
	return fmt.Sprintf("failed to load ONNX model from %q: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error { return e.Err }

// Parse parses an ONNX model from its serialized ModelProto.
func Parse(contents []byte) (*Model, error) {
	m := &Model{}
	if err := protos.Unmarshal(contents, &m.Proto); err != nil {
		return nil, &LoadError{Err: errors.Wrap(err, "failed to parse ONNX model proto")}
	}
	if m.Proto.Graph == nil {
		return nil, &LoadError{Err: errors.New("ONNX model has no graph")}
	}
	return m, nil
}

// ReadFile parses an ONNX model file. External data files, if any, are resolved relative to the model's directory.
func ReadFile(filePath string) (*Model, error) {
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return nil, &LoadError{Path: filePath, Err: errors.Wrap(err, "failed to read ONNX model file")}
	}
	m, err := Parse(contents)
	if err != nil {
		return nil, &LoadError{Path: filePath, Err: errors.Unwrap(err)}
	}
	m.baseDir = filepath.Dir(filePath)
	return m, nil
}

// Marshal serializes the model. Fields not interpreted by this package are written back unchanged.
func (m *Model) Marshal() []byte {
	return protos.Marshal(&m.Proto)
}

// WriteFile serializes the model to filePath.
func (m *Model) WriteFile(filePath string) error {
	if err := os.WriteFile(filePath, m.Marshal(), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write ONNX model to %q", filePath)
	}
	return nil
}

// Inputs returns the names of the graph inputs, excluding those that are initializers.
func (m *Model) Inputs() []string {
	initializers := m.initializerNames()
	var names []string
	for _, vi := range m.Proto.Graph.Input {
		if !initializers.Has(vi.Name) {
			names = append(names, vi.Name)
		}
	}
	return names
}

func (m *Model) initializerNames() sets.Set[string] {
	names := sets.Make[string](len(m.Proto.Graph.Initializer))
	for _, t := range m.Proto.Graph.Initializer {
		names.Insert(t.Name)
	}
	return names
}

// Outputs returns the names of the graph outputs.
func (m *Model) Outputs() []string {
	names := make([]string, len(m.Proto.Graph.Output))
	for ii, vi := range m.Proto.Graph.Output {
		names[ii] = vi.Name
	}
	return names
}
