// Package inference runs static shape inference over a whole graph: it seeds the caller's known input shapes,
// propagates the per-operator rules of package shapeinference in dependency order, and reports what remained
// unresolved.
//
// Example:
//
//	g := ... // e.g. from onnx.ReadFile(path) and Model.Graph()
//	inferred, report, err := inference.Infer(g, map[string]graph.Shape{"pixel_values": graph.Sizes(1, 3, 224, 224)})
//	if err != nil { ... }
//	fmt.Println(report)
package inference

import (
	"time"

	"github.com/gomlx/gomlx/pkg/support/xslices"
	"github.com/gomlx/onnx-shapes/graph"
	"github.com/gomlx/onnx-shapes/shapeinference"
	"k8s.io/klog/v2"
)

// Engine holds the configuration of shape inference. Create it with New, and configure it with the With* methods.
type Engine struct {
	registry      *shapeinference.Registry
	parallelism   int
	strictOutputs bool
}

// New creates an Engine with the default rules (shapeinference.Default), sequential propagation and non-strict
// outputs.
func New() *Engine {
	return &Engine{registry: shapeinference.Default(), parallelism: 1}
}

// WithRegistry sets the registry of shape rules to use, e.g. shapeinference.Default() extended with rules for
// custom operators. It returns the Engine itself, so calls can be cascaded.
func (e *Engine) WithRegistry(registry *shapeinference.Registry) *Engine {
	e.registry = registry
	return e
}

// WithParallelism sets the maximum number of disconnected components of the graph propagated concurrently.
// The default is 1 (sequential). Results are the same regardless of the parallelism.
func (e *Engine) WithParallelism(parallelism int) *Engine {
	e.parallelism = max(parallelism, 1)
	return e
}

// WithStrictOutputs makes Infer fail with an InferenceError of kind Unresolved if any graph output is left
// unresolved. By default unresolved outputs are only listed in the Report.
func (e *Engine) WithStrictOutputs(strict bool) *Engine {
	e.strictOutputs = strict
	return e
}

// Infer returns a copy of g with the descriptors of every tensor refined as far as the rules allow, plus a report of
// the tensors that remain unresolved. g itself is not modified.
//
// known maps graph input names to caller supplied shapes, merged into the declared ones: e.g. to fix the batch
// size of an input declared as [batch, 3, 224, 224]. It fails with ShapeMismatch if a supplied shape conflicts with
// the declared one, and with UnknownInput if the name is not a graph input.
//
// Any per node error aborts the pass, and is returned as an *InferenceError wrapping the cause.
func (e *Engine) Infer(g *graph.Graph, known map[string]graph.Shape) (*graph.Graph, *Report, error) {
	start := time.Now()
	result := g.Clone()
	for _, name := range xslices.SortedKeys(known) {
		if !result.IsInput(name) {
			return nil, nil, &InferenceError{Kind: UnknownInput, Tensors: []string{name}}
		}
		t := result.TensorOrNew(name)
		merged, err := t.Shape.Merge(known[name])
		if err != nil {
			return nil, nil, &InferenceError{Kind: ShapeMismatch, Tensors: []string{name}, Err: err}
		}
		t.Shape = merged
	}

	order, err := NewPropagator(e.registry, e.parallelism).Run(result)
	if err != nil {
		return nil, nil, err
	}
	report := newReport(result, order)
	klog.V(1).Infof("graph %q: shapes inferred for %d nodes in %s, %d of %d tensors unresolved",
		result.Name, len(order), time.Since(start), len(report.Unresolved), report.NumTensors)
	if e.strictOutputs {
		if outputs := report.Outputs(); len(outputs) > 0 {
			return nil, nil, &InferenceError{
				Kind:    Unresolved,
				Tensors: xslices.Map(outputs, func(u UnresolvedTensor) string { return u.Name }),
			}
		}
	}
	return result, report, nil
}

// Infer runs shape inference with the default Engine. See Engine.Infer.
func Infer(g *graph.Graph, known map[string]graph.Shape) (*graph.Graph, *Report, error) {
	return New().Infer(g, known)
}
