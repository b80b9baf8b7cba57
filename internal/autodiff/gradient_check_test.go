package autodiff_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/born-mnist/internal/autodiff"
	"github.com/born-ml/born-mnist/internal/tensor"
)

// mlpLoss evaluates NLL(logsoftmax(relu(x @ W1.T + b1) @ W2.T + b2)) on a
// fresh backend so it can be called repeatedly for finite differences.
func mlpLoss(t *testing.T, params [][]float32, x []float32, y []int32, record bool) (float32, [][]float32) {
	t.Helper()
	backend := newBackend()
	if record {
		backend.Tape().StartRecording()
	}

	in := fromSlice(t, backend, x, 2, 3)
	w1 := fromSlice(t, backend, params[0], 4, 3)
	b1 := fromSlice(t, backend, params[1], 4)
	w2 := fromSlice(t, backend, params[2], 2, 4)
	b2 := fromSlice(t, backend, params[3], 2)
	targets := labels(t, backend, y...)

	h := in.MatMul(w1.T()).Add(b1.Reshape(1, 4))
	h = tensor.New[float32](backend.ReLU(h.Raw()), backend)
	out := h.MatMul(w2.T()).Add(b2.Reshape(1, 2))
	logProbs := backend.LogSoftmax(out.Raw(), 1)
	loss := tensor.New[float32](backend.NLLLoss(logProbs, targets.Raw()), backend)

	if !record {
		return loss.Item(), nil
	}
	grads := autodiff.Backward(loss, backend)
	paramGrads := make([][]float32, 0, 4)
	for _, p := range []*tensor.Tensor[float32, adBackend]{w1, b1, w2, b2} {
		paramGrads = append(paramGrads, append([]float32(nil), grads[p.Raw()].AsFloat32()...))
	}
	return loss.Item(), paramGrads
}

func TestNumericalGradient_MLP(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	randSlice := func(n int) []float32 {
		s := make([]float32, n)
		for i := range s {
			s[i] = float32(rng.NormFloat64() * 0.5)
		}
		return s
	}

	params := [][]float32{randSlice(12), randSlice(4), randSlice(8), randSlice(2)}
	// Positive biases keep hidden units away from the ReLU kink.
	for i := range params[1] {
		params[1][i] = 1 + float32(i)*0.1
	}
	x := randSlice(6)
	y := []int32{1, 0}

	_, analytic := mlpLoss(t, params, x, y, true)

	const eps = 1e-2
	for p := range params {
		for i := range params[p] {
			orig := params[p][i]
			params[p][i] = orig + eps
			plus, _ := mlpLoss(t, params, x, y, false)
			params[p][i] = orig - eps
			minus, _ := mlpLoss(t, params, x, y, false)
			params[p][i] = orig

			numeric := (plus - minus) / (2 * eps)
			assert.InDelta(t, numeric, analytic[p][i], 2e-3, "param %d element %d", p, i)
		}
	}
}
