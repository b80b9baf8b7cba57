// Package nn implements the neural network building blocks used by the
// MLP: parameters, fully connected layers, activations, dropout, losses
// and metrics.
package nn

import (
	"github.com/born-ml/born-mnist/internal/tensor"
)

// Module is the base interface for all neural network components.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module for input.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters of this module, or nil
	// for parameter-free modules such as activations.
	Parameters() []*Parameter[B]
}

// StatefulModule is a Module whose parameters can be exported and restored
// by name.
type StatefulModule[B tensor.Backend] interface {
	Module[B]

	// StateDict maps parameter names to their tensors. The tensors are the
	// live parameter storage, not copies.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies values from stateDict into the module's
	// parameters. Nothing is modified when an error is returned.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}
