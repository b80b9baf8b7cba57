// Package optim implements the optimizers used to train the MLP.
//
// Gradients come from autodiff.Backward as a map keyed by each
// parameter's RawTensor; parameters are updated in place.
//
//	backend.Tape().StartRecording()
//	loss := nn.NLLLoss(net.Forward(x), y)
//	grads := autodiff.Backward(loss, backend)
//	optimizer.Step(grads)
//	optimizer.ZeroGrad()
package optim

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/born-mnist/internal/nn"
	"github.com/born-ml/born-mnist/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies one update to every parameter that has a gradient in grads.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32

	// SetLR changes the learning rate.
	SetLR(lr float32)

	// StateDict exports the optimizer buffers, keyed by parameter index.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict restores buffers exported by StateDict.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// ErrUnknownOptimizer is returned by New for an unsupported name.
var ErrUnknownOptimizer = errors.New("unknown optimizer")

// Names lists the optimizers New accepts.
var Names = []string{"sgd", "adam"}

// New builds an optimizer by name ("sgd" or "adam", case-insensitive).
// Momentum only applies to SGD.
func New[B tensor.Backend](name string, params []*nn.Parameter[B], lr, momentum float32, backend B) (Optimizer, error) {
	switch strings.ToLower(name) {
	case "sgd":
		return NewSGD(params, SGDConfig{LR: lr, Momentum: momentum}, backend), nil
	case "adam":
		return NewAdam(params, AdamConfig{LR: lr}, backend), nil
	default:
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownOptimizer, name, strings.Join(Names, ", "))
	}
}

// getGradient returns the gradient for param, or nil when the parameter
// did not take part in the recorded computation.
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	if param == nil {
		return nil
	}
	return grads[param.Tensor().Raw()]
}

// axpy computes y += alpha * x in place.
func axpy(alpha float32, x, y []float32) {
	blas32.Axpy(alpha,
		blas32.Vector{N: len(x), Inc: 1, Data: x},
		blas32.Vector{N: len(y), Inc: 1, Data: y},
	)
}

// loadBuffer validates raw against the parameter shape and returns a copy.
func loadBuffer(key string, raw *tensor.RawTensor, want tensor.Shape) (*tensor.RawTensor, error) {
	if raw.DType() != tensor.Float32 {
		return nil, fmt.Errorf("%s: expected float32, got %s", key, raw.DType())
	}
	if !raw.Shape().Equal(want) {
		return nil, &nn.ShapeError{Name: key, Want: want.Clone(), Got: raw.Shape().Clone()}
	}
	return raw.Clone(), nil
}
