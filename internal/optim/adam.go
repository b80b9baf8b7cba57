package optim

import (
	"fmt"
	"math"

	"github.com/born-ml/born-mnist/internal/nn"
	"github.com/born-ml/born-mnist/internal/tensor"
)

// Adam implements the Adam optimizer (Kingma & Ba, 2014):
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * g
//	v_t = beta2 * v_{t-1} + (1-beta2) * g²
//	m_hat = m_t / (1 - beta1^t)
//	v_hat = v_t / (1 - beta2^t)
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)
type Adam[B tensor.Backend] struct {
	params  []*nn.Parameter[B]
	lr      float32
	beta1   float32
	beta2   float32
	eps     float32
	t       int                                   // Timestep for bias correction
	m       map[*nn.Parameter[B]]*tensor.RawTensor // First moment estimates
	v       map[*nn.Parameter[B]]*tensor.RawTensor // Second moment estimates
	backend B
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float32    // Learning rate (default: 0.001)
	Betas [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float32    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer, filling zero config fields with
// the usual defaults.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig, backend B) *Adam[B] {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &Adam[B]{
		params:  params,
		lr:      config.LR,
		beta1:   config.Betas[0],
		beta2:   config.Betas[1],
		eps:     config.Eps,
		m:       make(map[*nn.Parameter[B]]*tensor.RawTensor),
		v:       make(map[*nn.Parameter[B]]*tensor.RawTensor),
		backend: backend,
	}
}

// Step performs a single Adam update. Parameters with no gradient are
// skipped but still advance the shared timestep.
func (a *Adam[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	a.t++

	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))

	for _, param := range a.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}

		m := a.moment(a.m, param)
		v := a.moment(a.v, param)
		a.updateParameter(param.Tensor().Raw().AsFloat32(), grad.AsFloat32(),
			m.AsFloat32(), v.AsFloat32(), biasCorrection1, biasCorrection2)
	}
}

func (a *Adam[B]) moment(buffers map[*nn.Parameter[B]]*tensor.RawTensor, param *nn.Parameter[B]) *tensor.RawTensor {
	buf, ok := buffers[param]
	if !ok {
		buf = tensor.MustNewRaw(param.Tensor().Shape(), tensor.Float32, a.backend.Device())
		buffers[param] = buf
	}
	return buf
}

func (a *Adam[B]) updateParameter(p, g, m, v []float32, biasCorrection1, biasCorrection2 float32) {
	for i := range p {
		m[i] = a.beta1*m[i] + (1.0-a.beta1)*g[i]
		v[i] = a.beta2*v[i] + (1.0-a.beta2)*g[i]*g[i]

		mHat := m[i] / biasCorrection1
		vHat := v[i] / biasCorrection2
		p[i] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam[B]) ZeroGrad() {
	for _, param := range a.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (a *Adam[B]) GetLR() float32 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam[B]) SetLR(lr float32) {
	a.lr = lr
}

// GetTimestep returns the number of steps taken.
func (a *Adam[B]) GetTimestep() int {
	return a.t
}

// StateDict exports "step" (int32 [1]) and the moment buffers as
// "exp_avg.<i>" and "exp_avg_sq.<i>".
func (a *Adam[B]) StateDict() map[string]*tensor.RawTensor {
	step := tensor.MustNewRaw(tensor.Shape{1}, tensor.Int32, a.backend.Device())
	step.AsInt32()[0] = int32(a.t)

	stateDict := map[string]*tensor.RawTensor{"step": step}
	for i, param := range a.params {
		if m, ok := a.m[param]; ok {
			stateDict[fmt.Sprintf("exp_avg.%d", i)] = m
		}
		if v, ok := a.v[param]; ok {
			stateDict[fmt.Sprintf("exp_avg_sq.%d", i)] = v
		}
	}
	return stateDict
}

// LoadStateDict restores the timestep and moment buffers. The optimizer is
// unchanged when an error is returned.
func (a *Adam[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	t := 0
	if step, ok := stateDict["step"]; ok {
		if step.DType() != tensor.Int32 || step.NumElements() != 1 {
			return fmt.Errorf("step: expected a single int32, got %s %v", step.DType(), step.Shape())
		}
		t = int(step.AsInt32()[0])
	}

	m := make(map[*nn.Parameter[B]]*tensor.RawTensor)
	v := make(map[*nn.Parameter[B]]*tensor.RawTensor)
	for i, param := range a.params {
		for _, slot := range []struct {
			prefix string
			dst    map[*nn.Parameter[B]]*tensor.RawTensor
		}{{"exp_avg", m}, {"exp_avg_sq", v}} {
			key := fmt.Sprintf("%s.%d", slot.prefix, i)
			raw, ok := stateDict[key]
			if !ok {
				continue
			}
			buf, err := loadBuffer(key, raw, param.Tensor().Shape())
			if err != nil {
				return err
			}
			slot.dst[param] = buf
		}
	}

	a.t, a.m, a.v = t, m, v
	return nil
}
