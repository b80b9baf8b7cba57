package ops

import (
	"math"

	"github.com/born-ml/born-mnist/internal/tensor"
)

// ReLUOp represents output = max(0, x).
//
// Backward pass: d(ReLU(x))/dx = 1 if x > 0, else 0.
type ReLUOp struct{ base }

// NewReLUOp creates a new ReLUOp.
func NewReLUOp(input, output *tensor.RawTensor) *ReLUOp {
	return &ReLUOp{base{inputs: []*tensor.RawTensor{input}, output: output}}
}

// Backward masks the gradient where the input was not positive.
func (op *ReLUOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad := tensor.MustNewRaw(outputGrad.Shape(), tensor.Float32, outputGrad.Device())
	in, g, dst := op.inputs[0].AsFloat32(), outputGrad.AsFloat32(), grad.AsFloat32()
	for i, v := range in {
		if v > 0 {
			dst[i] = g[i]
		}
	}
	return []*tensor.RawTensor{grad}
}

// ExpOp represents output = e^x; its derivative is the output itself.
type ExpOp struct{ base }

// NewExpOp creates a new ExpOp.
func NewExpOp(input, output *tensor.RawTensor) *ExpOp {
	return &ExpOp{base{inputs: []*tensor.RawTensor{input}, output: output}}
}

// Backward returns grad * e^x.
func (op *ExpOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Mul(outputGrad, op.output)}
}

// LogSoftmaxOp represents row-wise log-softmax over the last dimension of a
// 2-D tensor.
//
// Backward pass: dx = g - softmax(x) * sum_j(g_j), per row, where
// softmax(x) = exp(output).
type LogSoftmaxOp struct{ base }

// NewLogSoftmaxOp creates a new LogSoftmaxOp.
func NewLogSoftmaxOp(input, output *tensor.RawTensor) *LogSoftmaxOp {
	return &LogSoftmaxOp{base{inputs: []*tensor.RawTensor{input}, output: output}}
}

// Backward computes the input gradient of log-softmax.
func (op *LogSoftmaxOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	shape := op.output.Shape()
	rows, cols := shape[0], shape[1]
	probs := softmaxRows(op.output)
	g := outputGrad.AsFloat32()

	grad := tensor.MustNewRaw(shape, tensor.Float32, outputGrad.Device())
	dst := grad.AsFloat32()
	for r := 0; r < rows; r++ {
		row := r * cols
		var sum float32
		for c := 0; c < cols; c++ {
			sum += g[row+c]
		}
		for c := 0; c < cols; c++ {
			dst[row+c] = g[row+c] - probs[row+c]*sum
		}
	}
	return []*tensor.RawTensor{grad}
}

func exp32(v float32) float32 {
	return float32(math.Exp(float64(v)))
}
