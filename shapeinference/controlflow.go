package shapeinference

import (
	"github.com/gomlx/onnx-shapes/graph"
)

func registerControlFlow(r *Registry) {
	r.registerAll(subgraphRule, "If", "Loop", "Scan")
}

// subgraphRule doesn't look into the subgraphs: outputs are left as they are, so only shapes annotated in the model
// (value_info) or given by the caller are known.
func subgraphRule(_ *Op) ([]graph.Tensor, error) {
	return nil, nil
}
