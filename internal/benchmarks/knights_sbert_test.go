package benchmarks

import (
	"fmt"
	"testing"

	"github.com/gomlx/go-huggingface/hub"
	"github.com/gomlx/onnx-shapes/graph"
	"github.com/gomlx/onnx-shapes/onnx"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

var (
	KnightsAnalyticsSBertID = "KnightsAnalytics/all-MiniLM-L6-v2"

	// Benchmark hyperparameters.
	BatchSizes     = []int{1, 16, 64}
	SequenceLength = 128
)

// sbertInputShapes returns the shapes of input_ids, attention_mask and token_type_ids.
func sbertInputShapes(model *onnx.Model, batchSize int) map[string]graph.Shape {
	known := make(map[string]graph.Shape)
	for _, name := range model.Inputs() {
		known[name] = graph.Sizes(batchSize, SequenceLength)
	}
	return known
}

func TestBenchKnightsSBert(t *testing.T) {
	skipBenchmark(t)
	repo := hub.New(KnightsAnalyticsSBertID).WithAuth(hfAuthToken)
	modelPath := must.M1(repo.DownloadFile("model.onnx"))
	model := must.M1(onnx.ReadFile(modelPath))
	if *flagVerbose {
		fmt.Println(model)
	}
	g := must.M1(model.Graph())
	require.Len(t, model.Inputs(), 3)

	for _, batchSize := range BatchSizes {
		t.Run(fmt.Sprintf("batch=%02d", batchSize), func(t *testing.T) {
			known := sbertInputShapes(model, batchSize)
			if *flagVerbose {
				_, report := must.M2(inferOnce(g, known))
				fmt.Printf("%s\n", report)
			}
			benchInfer(t, g, known)
		})
	}
}
