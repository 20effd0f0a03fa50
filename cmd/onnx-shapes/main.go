// onnx-shapes reads an ONNX model, infers the shapes of all its tensors and saves the model with the inferred
// shapes recorded in its value_info.
//
// Usage:
//
//	onnx-shapes [flags] model.onnx
//	onnx-shapes -hf_repo=KnightsAnalytics/all-MiniLM-L6-v2 -hf_file=model.onnx -input_shapes="input_ids=1,128" -summary
//
// Unresolved tensors are listed, but are not an error, unless -strict is set.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gomlx/go-huggingface/hub"
	"github.com/gomlx/onnx-shapes/inference"
	"github.com/gomlx/onnx-shapes/onnx"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagOutput = flag.String("o", "", "Path where to save the model with the inferred shapes. "+
		"If empty, the model is not saved, and only the report is printed.")
	flagInputShapes = flag.String("input_shapes", "", "Shapes of the graph inputs, as a ';' separated list of "+
		"name=dims, where dims is a ',' separated list of sizes, '?' for unknown or a symbolic name. "+
		"E.g.: \"pixel_values=1,3,224,224;mask=1,?\"")
	flagParallelism = flag.Int("parallelism", 1, "Number of disconnected components of the graph propagated concurrently.")
	flagStrict      = flag.Bool("strict", false, "Fail if any graph output remains unresolved.")
	flagSummary     = flag.Bool("summary", false, "Display a summary of the model and of the unresolved tensors.")
	flagVerbose     = flag.Bool("verbose", false, "Print the model details and the report of unresolved tensors.")
	flagParquet     = flag.String("report_parquet", "", "If set, saves one row per tensor with its inferred type "+
		"to the given parquet file.")
	flagHFRepo = flag.String("hf_repo", "", "HuggingFace repository to download the model from, e.g. "+
		"\"KnightsAnalytics/all-MiniLM-L6-v2\". The authentication token is read from HF_TOKEN.")
	flagHFFile = flag.String("hf_file", "model.onnx", "File to download from the HuggingFace repository given by -hf_repo.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	var modelPath string
	args := flag.Args()
	switch {
	case *flagHFRepo != "" && len(args) == 0:
		modelPath = downloadModel(*flagHFRepo, *flagHFFile)
	case *flagHFRepo == "" && len(args) == 1:
		modelPath = args[0]
	default:
		klog.Errorf("Either one model path or -hf_repo must be given. See 'onnx-shapes -help'.")
		os.Exit(1)
	}
	if err := run(modelPath); err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}
}

// downloadModel downloads (or reuses the cached) model file from the HuggingFace hub, and returns its local path.
func downloadModel(repoID, fileName string) string {
	repo := hub.New(repoID).WithAuth(os.Getenv("HF_TOKEN"))
	localPath, err := repo.DownloadFile(fileName)
	if err != nil {
		klog.Errorf("Failed to download %q from HuggingFace repository %q: %+v", fileName, repoID, err)
		os.Exit(1)
	}
	klog.V(1).Infof("%s/%s downloaded to %s", repoID, fileName, localPath)
	return localPath
}

func run(modelPath string) error {
	known, err := parseInputShapes(*flagInputShapes)
	if err != nil {
		return err
	}
	model, err := onnx.ReadFile(modelPath)
	if err != nil {
		return err
	}
	if *flagVerbose {
		fmt.Println(model)
	}

	start := time.Now()
	g, err := model.Graph()
	if err != nil {
		return err
	}
	engine := inference.New().WithParallelism(*flagParallelism).WithStrictOutputs(*flagStrict)
	inferred, report, err := engine.Infer(g, known)
	if err != nil {
		return err
	}
	if err := model.UpdateShapes(inferred); err != nil {
		return err
	}
	elapsed := time.Since(start)

	if *flagSummary {
		printSummary(modelPath, inferred, report, elapsed)
	} else if *flagVerbose || !report.Empty() {
		fmt.Println(report)
	}
	if *flagParquet != "" {
		if err := writeParquetReport(*flagParquet, inferred, report); err != nil {
			return err
		}
	}
	if *flagOutput != "" {
		if err := model.WriteFile(*flagOutput); err != nil {
			return errors.WithMessage(err, "saving model with inferred shapes")
		}
		klog.V(1).Infof("model with inferred shapes saved to %s", *flagOutput)
	}
	return nil
}
