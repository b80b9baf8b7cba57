package nn

import (
	"fmt"
	"math/rand"

	"go.uber.org/multierr"

	"github.com/born-ml/born-mnist/internal/tensor"
)

// Linear implements a fully connected layer: y = x @ W.T + b, where W is
// [out_features, in_features] and b is [out_features].
//
// Weights use Xavier/Glorot uniform initialization and biases start at
// zero.
type Linear[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter[B]
	bias        *Parameter[B]
}

// NewLinear creates a Linear layer whose weights are drawn from rng.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, rng *rand.Rand, backend B) *Linear[B] {
	weight := Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, rng, backend)
	bias := Zeros(tensor.Shape{outFeatures}, backend)

	return &Linear[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("weight", weight),
		bias:        NewParameter("bias", bias),
	}
}

// Forward computes x @ W.T + b for input of shape [batch, in_features].
// It panics on any other shape; callers that accept user input check
// shapes first.
func (l *Linear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("Linear.Forward: expected 2D input [batch, features], got shape %v", shape))
	}
	if shape[1] != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected input with %d features, got %d", l.inFeatures, shape[1]))
	}

	output := input.MatMul(l.weight.Tensor().T())
	return output.Add(l.bias.Tensor().Reshape(1, l.outFeatures))
}

// Parameters returns [weight, bias].
func (l *Linear[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.weight, l.bias}
}

// Weight returns the weight parameter.
func (l *Linear[B]) Weight() *Parameter[B] {
	return l.weight
}

// Bias returns the bias parameter.
func (l *Linear[B]) Bias() *Parameter[B] {
	return l.bias
}

// InFeatures returns the number of input features.
func (l *Linear[B]) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the number of output features.
func (l *Linear[B]) OutFeatures() int {
	return l.outFeatures
}

// StateDict returns the live "weight" and "bias" tensors.
func (l *Linear[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight": l.weight.Tensor().Raw(),
		"bias":   l.bias.Tensor().Raw(),
	}
}

// CheckStateDict validates stateDict against the layer without modifying
// it. Every problem is reported, combined with multierr.
func (l *Linear[B]) CheckStateDict(stateDict map[string]*tensor.RawTensor) error {
	var err error
	for _, p := range l.Parameters() {
		raw, ok := stateDict[p.Name()]
		if !ok {
			err = multierr.Append(err, fmt.Errorf("%w: %s", ErrMissingParameter, p.Name()))
			continue
		}
		if raw.DType() != tensor.Float32 {
			err = multierr.Append(err, fmt.Errorf("%s: dtype mismatch: expected float32, got %s", p.Name(), raw.DType()))
			continue
		}
		if want := p.Tensor().Shape(); !raw.Shape().Equal(want) {
			err = multierr.Append(err, &ShapeError{Name: p.Name(), Want: want.Clone(), Got: raw.Shape().Clone()})
		}
	}
	for name := range stateDict {
		if name != "weight" && name != "bias" {
			err = multierr.Append(err, fmt.Errorf("%w: %s", ErrUnexpectedParameter, name))
		}
	}
	return err
}

// LoadStateDict copies "weight" and "bias" into the layer after
// validating both.
func (l *Linear[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := l.CheckStateDict(stateDict); err != nil {
		return err
	}
	for _, p := range l.Parameters() {
		if err := p.Tensor().Raw().CopyFrom(stateDict[p.Name()]); err != nil {
			return err
		}
	}
	return nil
}
