// Package ops defines the differentiable operations recorded on the
// gradient tape and their backward rules.
//
//   - AddOp, SubOp, MulOp: element-wise, gradients reduced over broadcast dims
//   - MulScalarOp: d(s*x)/dx = s
//   - MatMulOp: d(A@B)/dA = grad@B^T, d(A@B)/dB = A^T@grad
//   - TransposeOp, ReshapeOp: route the gradient back to the input layout
//   - ReLUOp, ExpOp, LogSoftmaxOp: activations
//   - NLLOp, CrossEntropyOp: mean losses over a batch of class indices
package ops

import "github.com/born-ml/born-mnist/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
// It keeps its inputs and output from the forward pass and maps an output
// gradient to one gradient per input (nil for non-differentiable inputs).
type Operation interface {
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor
	Inputs() []*tensor.RawTensor
	Output() *tensor.RawTensor
}

// base stores the inputs and output shared by every operation.
type base struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

// Inputs returns the input tensors.
func (b *base) Inputs() []*tensor.RawTensor {
	return b.inputs
}

// Output returns the output tensor.
func (b *base) Output() *tensor.RawTensor {
	return b.output
}
