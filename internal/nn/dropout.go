package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/born-mnist/internal/tensor"
)

// Dropout zeroes each activation with probability P while training and
// scales the survivors by 1/(1-P), so evaluation needs no rescaling.
// When not training it is the identity.
//
// The training flag lives on the module and is set by its owner; there
// is no process-wide mode.
type Dropout[B tensor.Backend] struct {
	p        float32
	rng      *rand.Rand
	training bool
}

// NewDropout creates a Dropout in training mode. p must be in [0, 1).
func NewDropout[B tensor.Backend](p float32, rng *rand.Rand) *Dropout[B] {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("Dropout: probability must be in [0, 1), got %v", p))
	}
	return &Dropout[B]{p: p, rng: rng, training: true}
}

// P returns the drop probability.
func (d *Dropout[B]) P() float32 {
	return d.p
}

// SetTraining switches between training (stochastic) and evaluation
// (identity) behavior.
func (d *Dropout[B]) SetTraining(training bool) {
	d.training = training
}

// Training reports whether dropout is active.
func (d *Dropout[B]) Training() bool {
	return d.training
}

// Forward applies dropout. The mask is multiplied in through the backend,
// so gradients flow only through the kept activations.
func (d *Dropout[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !d.training || d.p == 0 {
		return input
	}

	keep := 1 / (1 - d.p)
	mask := tensor.Zeros[float32](input.Shape(), input.Backend())
	data := mask.Data()
	for i := range data {
		if d.rng.Float32() >= d.p {
			data[i] = keep
		}
	}
	return input.Mul(mask)
}

// Parameters returns nil.
func (d *Dropout[B]) Parameters() []*Parameter[B] {
	return nil
}
