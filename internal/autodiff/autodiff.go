// Package autodiff implements reverse-mode automatic differentiation as a
// Backend decorator.
//
// AutodiffBackend wraps any tensor.Backend: each operation runs on the
// wrapped backend and, while the tape is recording, appends an
// ops.Operation describing how to push gradients back to its inputs.
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	loss := backend.NLLLoss(logProbs.Raw(), targets.Raw())
//	grads := backend.Tape().Backward(ones, backend)
package autodiff

import (
	"github.com/born-ml/born-mnist/internal/autodiff/ops"
	"github.com/born-ml/born-mnist/internal/tensor"
)

// AutodiffBackend wraps a Backend and records operations in a GradientTape.
type AutodiffBackend[B tensor.Backend] struct {
	inner B
	tape  *GradientTape
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *AutodiffBackend[B]) Device() tensor.Device {
	return b.inner.Device()
}

// record appends op when the tape is recording and returns op's output.
func (b *AutodiffBackend[B]) record(op ops.Operation) *tensor.RawTensor {
	b.tape.Record(op)
	return op.Output()
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewAddOp(x, y, b.inner.Add(x, y)))
}

// Sub performs element-wise subtraction and records the operation.
func (b *AutodiffBackend[B]) Sub(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewSubOp(x, y, b.inner.Sub(x, y)))
}

// Mul performs element-wise multiplication and records the operation.
func (b *AutodiffBackend[B]) Mul(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewMulOp(x, y, b.inner.Mul(x, y)))
}

// MulScalar multiplies by a scalar and records the operation.
func (b *AutodiffBackend[B]) MulScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	return b.record(ops.NewMulScalarOp(x, s, b.inner.MulScalar(x, s)))
}

// MatMul performs matrix multiplication and records the operation.
func (b *AutodiffBackend[B]) MatMul(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewMatMulOp(x, y, b.inner.MatMul(x, y)))
}

// Reshape reshapes a tensor and records the operation, so gradients reach
// tensors that were reshaped for broadcasting (Linear's bias).
func (b *AutodiffBackend[B]) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	return b.record(ops.NewReshapeOp(t, b.inner.Reshape(t, newShape)))
}

// Transpose transposes a tensor and records the operation.
//
// The backend returns a new tensor, so Linear's W.T is a different
// RawTensor than W. TransposeOp routes its gradient back to W, which is
// the key optimizers look up.
func (b *AutodiffBackend[B]) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	return b.record(ops.NewTransposeOp(t, b.inner.Transpose(t, axes...)))
}

// ReLU applies ReLU activation and records the operation.
func (b *AutodiffBackend[B]) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewReLUOp(x, b.inner.ReLU(x)))
}

// Exp applies e^x and records the operation.
func (b *AutodiffBackend[B]) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewExpOp(x, b.inner.Exp(x)))
}

// LogSoftmax applies log-softmax over dim and records the operation.
func (b *AutodiffBackend[B]) LogSoftmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	return b.record(ops.NewLogSoftmaxOp(x, b.inner.LogSoftmax(x, dim)))
}

// NLLLoss computes the mean negative log-likelihood of int32 class
// targets under 2-D log-probabilities and records the operation.
// The result is a scalar tensor.
func (b *AutodiffBackend[B]) NLLLoss(logProbs, targets *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewNLLOp(logProbs, targets, ops.NLLForward(logProbs, targets)))
}

// CrossEntropy computes mean cross-entropy from raw logits and int32
// class targets and records the operation. The result is a scalar tensor.
func (b *AutodiffBackend[B]) CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewCrossEntropyOp(logits, targets, ops.CrossEntropyForward(logits, targets)))
}
