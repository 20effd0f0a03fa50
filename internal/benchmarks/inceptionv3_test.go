package benchmarks

import (
	"crypto/sha256"
	"fmt"
	"os"
	"testing"

	"github.com/gomlx/go-huggingface/hub"
	"github.com/gomlx/onnx-shapes/graph"
	"github.com/gomlx/onnx-shapes/inference"
	"github.com/gomlx/onnx-shapes/onnx"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

var (
	inceptionV3RepoID        = "recursionerr/nsfw_01"
	inceptionV3ModelFileName = "inception_v3.onnx"
)

func downloadInceptionV3Model() string {
	fmt.Printf("HuggingFace repository:  %s\n", inceptionV3RepoID)
	repo := hub.New(inceptionV3RepoID).WithAuth(hfAuthToken)
	fmt.Printf("HuggingFace file:        %s\n", inceptionV3ModelFileName)
	onnxModelPath := must.M1(repo.DownloadFile(inceptionV3ModelFileName))
	fmt.Printf("Locally downloaded file: %s\n", onnxModelPath)
	fileContent := must.M1(os.ReadFile(onnxModelPath))
	hash := sha256.Sum256(fileContent)
	fmt.Printf("File SHA256:             %x\n", hash)
	return onnxModelPath
}

// inferOnce runs the default engine once, used to print the report of a benchmarked configuration.
func inferOnce(g *graph.Graph, known map[string]graph.Shape) (*graph.Graph, *inference.Report, error) {
	return inference.Infer(g, known)
}

func TestBenchInceptionV3(t *testing.T) {
	skipBenchmark(t)
	model := must.M1(onnx.ReadFile(downloadInceptionV3Model()))
	g := must.M1(model.Graph())
	inputs := model.Inputs()
	require.Len(t, inputs, 1)

	for _, batchSize := range BatchSizes {
		t.Run(fmt.Sprintf("batch=%02d", batchSize), func(t *testing.T) {
			known := map[string]graph.Shape{inputs[0]: graph.Sizes(batchSize, 299, 299, 3)}
			inferred, report := must.M2(inferOnce(g, known))
			if *flagVerbose {
				fmt.Printf("%s\n", report)
			}
			for _, output := range inferred.Outputs {
				fmt.Printf("\toutput %q: %s\n", output, inferred.Tensor(output))
			}
			benchInfer(t, g, known)
		})
	}
}
