// Package benchmarks times shape inference on real models downloaded from the HuggingFace hub, and on synthetic
// graphs.
//
// Benchmarks are disabled by default: enable them with -bench_duration, e.g.:
//
//	go test ./internal/benchmarks/ -bench_duration=10s
package benchmarks

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"testing"

	"github.com/gomlx/onnx-shapes/graph"
	"github.com/gomlx/onnx-shapes/inference"
	"github.com/janpfeifer/go-benchmarks"
	"github.com/janpfeifer/must"
)

var (
	// HuggingFace authentication token read from the environment.
	// It can be created in https://huggingface.co
	// Some files may require it for downloading.
	hfAuthToken = os.Getenv("HF_TOKEN")

	flagBenchDuration = flag.Duration("bench_duration", 0, "Benchmark duration, typically use 10 seconds. If left as 0, benchmark tests are disabled")
	flagVerbose       = flag.Bool("verbose", false, "Print model details and inference reports")
	flagParallelism   = flag.Int("parallelism", 4, "Parallelism used in the parallel variant of the benchmarks")
)

// skipBenchmark skips the test if benchmarks are not enabled.
func skipBenchmark(t *testing.T) {
	if testing.Short() {
		fmt.Printf("Skipping %s: --short is set\n", t.Name())
		t.SkipNow()
	}
	if *flagBenchDuration == 0 {
		fmt.Printf("Skipping %s: --bench_duration is not set\n", t.Name())
		t.SkipNow()
	}
}

// benchInfer times inference.Engine.Infer on g, sequentially and with parallelism -parallelism.
func benchInfer(t *testing.T, g *graph.Graph, known map[string]graph.Shape) {
	for ii, parallelism := range []int{1, *flagParallelism} {
		engine := inference.New().WithParallelism(parallelism)
		benchFn := benchmarks.NamedFunction{
			Name: fmt.Sprintf("%s/parallelism=%02d", t.Name(), parallelism),
			Func: func() {
				_, _ = must.M2(engine.Infer(g, known))
			},
		}
		runtime.LockOSThread()
		benchmarks.New(benchFn).
			WithWarmUps(10).
			WithDuration(*flagBenchDuration).
			WithHeader(ii == 0).
			Done()
		runtime.UnlockOSThread()
	}
}
