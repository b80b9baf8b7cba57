package nn_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/born-ml/born-mnist/internal/autodiff"
	"github.com/born-ml/born-mnist/internal/backend/cpu"
	"github.com/born-ml/born-mnist/internal/nn"
	"github.com/born-ml/born-mnist/internal/tensor"
)

type adBackend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func rng() *rand.Rand {
	return rand.New(rand.NewSource(7))
}

func TestLinear_ForwardShapeAndValues(t *testing.T) {
	backend := cpu.New()
	layer := nn.NewLinear(3, 2, rng(), backend)

	w := layer.Weight().Tensor().Data()
	copy(w, []float32{1, 0, 0, 0, 1, 1})
	copy(layer.Bias().Tensor().Data(), []float32{0.5, -1})

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	require.NoError(t, err)

	y := layer.Forward(x)
	assert.Equal(t, tensor.Shape{2, 2}, y.Shape())
	assert.InDeltaSlice(t, []float32{1.5, 4, 4.5, 10}, y.Data(), 1e-6)
}

func TestLinear_ForwardPanicsOnWrongFeatures(t *testing.T) {
	backend := cpu.New()
	layer := nn.NewLinear(3, 2, rng(), backend)
	x := tensor.Zeros[float32](tensor.Shape{1, 4}, backend)

	assert.Panics(t, func() { layer.Forward(x) })
}

func TestLinear_XavierBoundsAndZeroBias(t *testing.T) {
	layer := nn.NewLinear(784, 128, rng(), cpu.New())
	bound := float32(math.Sqrt(6.0 / float64(784+128)))

	for _, v := range layer.Weight().Tensor().Data() {
		require.LessOrEqual(t, v, bound)
		require.GreaterOrEqual(t, v, -bound)
	}
	for _, v := range layer.Bias().Tensor().Data() {
		require.Zero(t, v)
	}
}

func TestLinear_SameSeedSameWeights(t *testing.T) {
	a := nn.NewLinear(4, 4, rand.New(rand.NewSource(1)), cpu.New())
	b := nn.NewLinear(4, 4, rand.New(rand.NewSource(1)), cpu.New())
	assert.Equal(t, a.Weight().Tensor().Data(), b.Weight().Tensor().Data())
}

func TestLinear_LoadStateDict(t *testing.T) {
	backend := cpu.New()
	src := nn.NewLinear(3, 2, rand.New(rand.NewSource(1)), backend)
	dst := nn.NewLinear(3, 2, rand.New(rand.NewSource(2)), backend)

	require.NoError(t, dst.LoadStateDict(src.StateDict()))
	assert.Equal(t, src.Weight().Tensor().Data(), dst.Weight().Tensor().Data())

	// Copies, not aliases.
	src.Weight().Tensor().Data()[0] = 42
	assert.NotEqual(t, float32(42), dst.Weight().Tensor().Data()[0])
}

func TestLinear_LoadStateDictReportsEveryMismatch(t *testing.T) {
	backend := cpu.New()
	src := nn.NewLinear(4, 5, rng(), backend)
	dst := nn.NewLinear(3, 2, rng(), backend)
	before := append([]float32(nil), dst.Weight().Tensor().Data()...)

	err := dst.LoadStateDict(src.StateDict())
	require.Error(t, err)
	assert.True(t, errors.Is(err, nn.ErrShapeMismatch))
	assert.Len(t, multierr.Errors(err), 2)

	var shapeErr *nn.ShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "weight", shapeErr.Name)
	assert.Equal(t, tensor.Shape{2, 3}, shapeErr.Want)
	assert.Equal(t, tensor.Shape{5, 4}, shapeErr.Got)

	assert.Equal(t, before, dst.Weight().Tensor().Data())
}

func TestLinear_LoadStateDictMissingAndUnexpected(t *testing.T) {
	backend := cpu.New()
	layer := nn.NewLinear(2, 2, rng(), backend)
	state := map[string]*tensor.RawTensor{
		"weight": layer.Weight().Tensor().Raw().Clone(),
		"extra":  tensor.MustNewRaw(tensor.Shape{1}, tensor.Float32, tensor.CPU),
	}

	err := layer.LoadStateDict(state)
	assert.ErrorIs(t, err, nn.ErrMissingParameter)
	assert.ErrorIs(t, err, nn.ErrUnexpectedParameter)
}

func TestReLUAndLogSoftmax(t *testing.T) {
	backend := cpu.New()
	x, err := tensor.FromSlice([]float32{-1, 0, 2, 3, -4, 1}, tensor.Shape{2, 3}, backend)
	require.NoError(t, err)

	assert.Equal(t, []float32{0, 0, 2, 3, 0, 1}, nn.NewReLU[*cpu.CPUBackend]().Forward(x).Data())

	logp := nn.NewLogSoftmax[*cpu.CPUBackend]().Forward(x)
	for i := 0; i < 2; i++ {
		var sum float64
		for _, v := range logp.Row(i) {
			assert.LessOrEqual(t, v, float32(0))
			sum += math.Exp(float64(v))
		}
		assert.InDelta(t, 1.0, sum, 1e-5)
	}
}

func TestDropout_EvalIsIdentity(t *testing.T) {
	backend := cpu.New()
	d := nn.NewDropout[*cpu.CPUBackend](0.5, rng())
	d.SetTraining(false)

	x := tensor.Ones[float32](tensor.Shape{4, 8}, backend)
	assert.Same(t, x, d.Forward(x))
}

func TestDropout_TrainingScalesSurvivors(t *testing.T) {
	backend := cpu.New()
	d := nn.NewDropout[*cpu.CPUBackend](0.25, rng())
	require.True(t, d.Training())

	x := tensor.Ones[float32](tensor.Shape{64, 64}, backend)
	y := d.Forward(x).Data()

	dropped := 0
	for _, v := range y {
		if v == 0 {
			dropped++
			continue
		}
		require.InDelta(t, 1/0.75, v, 1e-6)
	}
	frac := float64(dropped) / float64(len(y))
	assert.InDelta(t, 0.25, frac, 0.05)
}

func TestDropout_InvalidProbabilityPanics(t *testing.T) {
	assert.Panics(t, func() { nn.NewDropout[*cpu.CPUBackend](1, rng()) })
	assert.Panics(t, func() { nn.NewDropout[*cpu.CPUBackend](-0.1, rng()) })
}

func TestLosses_GradientsReachLinearParameters(t *testing.T) {
	backend := autodiff.New(cpu.New())
	layer := nn.NewLinear(3, 4, rng(), backend)

	x, err := tensor.FromSlice([]float32{1, 2, 3, -1, 0, 1}, tensor.Shape{2, 3}, backend)
	require.NoError(t, err)
	y, err := tensor.FromSlice([]int32{1, 3}, tensor.Shape{2}, backend)
	require.NoError(t, err)

	backend.Tape().StartRecording()
	logits := layer.Forward(x)
	loss := nn.NLLLoss(nn.NewLogSoftmax[adBackend]().Forward(logits), y)
	grads := autodiff.Backward(loss, backend)

	ce := nn.CrossEntropyLoss(logits, y)
	assert.InDelta(t, loss.Item(), ce.Item(), 1e-5)

	for _, p := range layer.Parameters() {
		g, ok := grads[p.Tensor().Raw()]
		require.True(t, ok, p.Name())
		assert.Equal(t, p.Tensor().Shape(), g.Shape())
	}
}

func TestNLLLoss_PlainBackendIsForwardOnly(t *testing.T) {
	backend := cpu.New()
	logp, err := tensor.FromSlice([]float32{float32(math.Log(0.5)), float32(math.Log(0.5))}, tensor.Shape{1, 2}, backend)
	require.NoError(t, err)
	y, err := tensor.FromSlice([]int32{0}, tensor.Shape{1}, backend)
	require.NoError(t, err)

	assert.InDelta(t, math.Log(2), nn.NLLLoss(logp, y).Item(), 1e-6)
}

func TestMetrics(t *testing.T) {
	assert.Equal(t, 2, nn.Argmax([]float32{0.1, 0.2, 0.7}))
	assert.Equal(t, 0, nn.Argmax([]float32{1, 1}))
	assert.Equal(t, -1, nn.Argmax(nil))

	backend := cpu.New()
	scores, err := tensor.FromSlice([]float32{0.9, 0.1, 0.2, 0.8, 0.6, 0.4}, tensor.Shape{3, 2}, backend)
	require.NoError(t, err)
	assert.Equal(t, 2, nn.CountCorrect(scores, []int32{0, 1, 1}))
	assert.InDelta(t, 2.0/3.0, nn.Accuracy(scores, []int32{0, 1, 1}), 1e-6)

	assert.NoError(t, nn.ValidateTargets([]int32{0, 9}, 2, 10))
	assert.ErrorIs(t, nn.ValidateTargets([]int32{0}, 2, 10), nn.ErrShapeMismatch)
	assert.Error(t, nn.ValidateTargets([]int32{0, 10}, 2, 10))
	assert.Error(t, nn.ValidateTargets([]int32{-1, 0}, 2, 10))
}
