package optim

import (
	"fmt"

	"github.com/born-ml/born-mnist/internal/nn"
	"github.com/born-ml/born-mnist/internal/tensor"
)

// SGD implements stochastic gradient descent with optional momentum.
//
// Without momentum:
//
//	param = param - lr * gradient
//
// With momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
type SGD[B tensor.Backend] struct {
	params     []*nn.Parameter[B]
	lr         float32
	momentum   float32
	velocities map[*nn.Parameter[B]]*tensor.RawTensor
	backend    B
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate (default: 0.01)
	Momentum float32 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig, backend B) *SGD[B] {
	if config.LR == 0 {
		config.LR = 0.01
	}

	return &SGD[B]{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[*nn.Parameter[B]]*tensor.RawTensor),
		backend:    backend,
	}
}

// Step performs a single optimization step. Parameters without a gradient
// are skipped.
func (s *SGD[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, param := range s.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}

		g := grad.AsFloat32()
		p := param.Tensor().Raw().AsFloat32()
		if s.momentum == 0 {
			axpy(-s.lr, g, p)
			continue
		}

		velocity, ok := s.velocities[param]
		if !ok {
			velocity = tensor.MustNewRaw(param.Tensor().Shape(), tensor.Float32, s.backend.Device())
			s.velocities[param] = velocity
		}
		v := velocity.AsFloat32()
		for i := range v {
			v[i] = s.momentum*v[i] + g[i]
		}
		axpy(-s.lr, v, p)
	}
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD[B]) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (s *SGD[B]) GetLR() float32 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD[B]) SetLR(lr float32) {
	s.lr = lr
}

// Momentum returns the momentum factor.
func (s *SGD[B]) Momentum() float32 {
	return s.momentum
}

// StateDict exports the velocity buffers as "velocity.<param index>".
// Without momentum the map is empty.
func (s *SGD[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	if s.momentum == 0 {
		return stateDict
	}

	for i, param := range s.params {
		if velocity, ok := s.velocities[param]; ok {
			stateDict[fmt.Sprintf("velocity.%d", i)] = velocity
		}
	}
	return stateDict
}

// LoadStateDict restores velocity buffers. Missing entries are left to be
// initialized on the next step. A shape mismatch leaves the optimizer
// unchanged.
func (s *SGD[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if s.momentum == 0 {
		return nil
	}

	velocities := make(map[*nn.Parameter[B]]*tensor.RawTensor)
	for i, param := range s.params {
		key := fmt.Sprintf("velocity.%d", i)
		raw, ok := stateDict[key]
		if !ok {
			continue
		}
		velocity, err := loadBuffer(key, raw, param.Tensor().Shape())
		if err != nil {
			return err
		}
		velocities[param] = velocity
	}

	s.velocities = velocities
	return nil
}
