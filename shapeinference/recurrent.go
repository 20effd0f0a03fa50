package shapeinference

import (
	"github.com/gomlx/onnx-shapes/graph"
)

func registerRecurrent(r *Registry) {
	r.registerAll(recurrentRule, "LSTM", "GRU", "RNN")
}

// recurrentRule handles LSTM, GRU and RNN. With layout=0 the input X is [seq_length, batch_size, input_size] and
// the outputs are:
//
//	Y:   [seq_length, num_directions, batch_size, hidden_size]
//	Y_h: [num_directions, batch_size, hidden_size]
//	Y_c: [num_directions, batch_size, hidden_size] (LSTM only)
//
// With layout=1 the batch axis comes first in X, Y ([batch_size, seq_length, num_directions, hidden_size]) and the
// states ([batch_size, num_directions, hidden_size]).
func recurrentRule(op *Op) ([]graph.Tensor, error) {
	x := op.mustInput(0)
	numDirections := 1
	switch direction := op.StringAttrOr("direction", "forward"); direction {
	case "forward", "reverse":
	case "bidirectional":
		numDirections = 2
	default:
		return nil, op.UnsupportedAttributef("unknown direction %q", direction)
	}
	layout := op.IntAttrOr("layout", 0)
	if layout != 0 && layout != 1 {
		return nil, op.UnsupportedAttributef("invalid layout %d", layout)
	}

	hidden := graph.Unknown()
	if op.HasAttr("hidden_size") {
		size := op.MustIntAttr("hidden_size")
		if size < 1 {
			return nil, op.UnsupportedAttributef("invalid hidden_size %d", size)
		}
		hidden = graph.Concrete(size)
	} else if r := op.Input(2); r != nil && r.Shape.HasRank() && r.Shape.Rank() == 3 {
		// R is [num_directions, gates*hidden_size, hidden_size].
		hidden = r.Shape.Dim(2)
	}

	seqLen, batch := graph.Unknown(), graph.Unknown()
	if x.Shape.HasRank() {
		if x.Shape.Rank() != 3 {
			return nil, op.Incompatiblef("input must be of rank 3, got %s", x.Shape)
		}
		seqLen, batch = x.Shape.Dim(0), x.Shape.Dim(1)
		if layout == 1 {
			seqLen, batch = batch, seqLen
		}
	}
	directions := graph.Concrete(numDirections)
	y := graph.Tensor{DType: x.DType, Shape: graph.MakeShape(seqLen, directions, batch, hidden)}
	state := graph.Tensor{DType: x.DType, Shape: graph.MakeShape(directions, batch, hidden)}
	if layout == 1 {
		y.Shape = graph.MakeShape(batch, seqLen, directions, hidden)
		state.Shape = graph.MakeShape(batch, directions, hidden)
	}
	if op.Type == "LSTM" {
		return results(y, state, state)
	}
	return results(y, state)
}
