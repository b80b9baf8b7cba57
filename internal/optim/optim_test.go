package optim_test

import (
	"errors"
	"testing"

	"github.com/born-ml/born-mnist/internal/autodiff"
	"github.com/born-ml/born-mnist/internal/backend/cpu"
	"github.com/born-ml/born-mnist/internal/nn"
	"github.com/born-ml/born-mnist/internal/optim"
	"github.com/born-ml/born-mnist/internal/tensor"
)

type adBackend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

// Helper to check float equality with tolerance.
func floatEqual(a, b, eps float32) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < eps
}

func scalarParam(t *testing.T, backend adBackend, v float32) *nn.Parameter[adBackend] {
	t.Helper()
	x, err := tensor.FromSlice([]float32{v}, tensor.Shape{1}, backend)
	if err != nil {
		t.Fatal(err)
	}
	return nn.NewParameter("x", x)
}

func gradOf(param *nn.Parameter[adBackend], g float32) map[*tensor.RawTensor]*tensor.RawTensor {
	grad := tensor.MustNewRaw(tensor.Shape{1}, tensor.Float32, tensor.CPU)
	grad.AsFloat32()[0] = g
	return map[*tensor.RawTensor]*tensor.RawTensor{param.Tensor().Raw(): grad}
}

func TestSGD_SimpleUpdate(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, backend, 2.0)
	optimizer := optim.NewSGD([]*nn.Parameter[adBackend]{param}, optim.SGDConfig{LR: 0.1}, backend)

	optimizer.Step(gradOf(param, 1.0))

	// x = 2.0 - 0.1 * 1.0
	if got := param.Tensor().Data()[0]; !floatEqual(got, 1.9, 1e-6) {
		t.Errorf("SGD update: got %f, want 1.9", got)
	}
}

func TestSGD_WithMomentum(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, backend, 1.0)
	optimizer := optim.NewSGD([]*nn.Parameter[adBackend]{param}, optim.SGDConfig{LR: 0.1, Momentum: 0.9}, backend)

	// v_1 = 1.0, x_1 = 0.9
	optimizer.Step(gradOf(param, 1.0))
	if got := param.Tensor().Data()[0]; !floatEqual(got, 0.9, 1e-6) {
		t.Errorf("SGD momentum step 1: got %f, want 0.9", got)
	}

	// v_2 = 0.9 * 1.0 + 1.0 = 1.9, x_2 = 0.9 - 0.19 = 0.71
	optimizer.Step(gradOf(param, 1.0))
	if got := param.Tensor().Data()[0]; !floatEqual(got, 0.71, 1e-5) {
		t.Errorf("SGD momentum step 2: got %f, want 0.71", got)
	}
}

func TestSGD_SkipsParametersWithoutGradient(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, backend, 3.0)
	optimizer := optim.NewSGD([]*nn.Parameter[adBackend]{param}, optim.SGDConfig{LR: 0.1}, backend)

	optimizer.Step(map[*tensor.RawTensor]*tensor.RawTensor{})
	if got := param.Tensor().Data()[0]; got != 3.0 {
		t.Errorf("parameter without gradient changed: %f", got)
	}
}

func TestSGD_ZeroGradAndLR(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, backend, 1.0)
	param.SetGrad(param.Tensor().Clone())

	optimizer := optim.NewSGD([]*nn.Parameter[adBackend]{param}, optim.SGDConfig{LR: 0.01}, backend)
	optimizer.ZeroGrad()
	if param.Grad() != nil {
		t.Error("Grad should be nil after ZeroGrad")
	}

	if optimizer.GetLR() != 0.01 {
		t.Errorf("GetLR: got %f, want 0.01", optimizer.GetLR())
	}
	optimizer.SetLR(0.001)
	if optimizer.GetLR() != 0.001 {
		t.Errorf("GetLR after SetLR: got %f, want 0.001", optimizer.GetLR())
	}
}

func TestSGD_StateDictRoundTrip(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, backend, 1.0)
	first := optim.NewSGD([]*nn.Parameter[adBackend]{param}, optim.SGDConfig{LR: 0.1, Momentum: 0.9}, backend)
	first.Step(gradOf(param, 1.0))

	state := first.StateDict()
	if _, ok := state["velocity.0"]; !ok {
		t.Fatalf("missing velocity.0 in %v", state)
	}

	second := optim.NewSGD([]*nn.Parameter[adBackend]{param}, optim.SGDConfig{LR: 0.1, Momentum: 0.9}, backend)
	if err := second.LoadStateDict(state); err != nil {
		t.Fatal(err)
	}

	// Resumed momentum: v = 1.9, x = 0.9 - 0.19.
	second.Step(gradOf(param, 1.0))
	if got := param.Tensor().Data()[0]; !floatEqual(got, 0.71, 1e-5) {
		t.Errorf("resumed SGD: got %f, want 0.71", got)
	}
}

func TestSGD_LoadStateDictShapeMismatch(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, backend, 1.0)
	optimizer := optim.NewSGD([]*nn.Parameter[adBackend]{param}, optim.SGDConfig{Momentum: 0.5}, backend)

	state := map[string]*tensor.RawTensor{
		"velocity.0": tensor.MustNewRaw(tensor.Shape{2}, tensor.Float32, tensor.CPU),
	}
	if err := optimizer.LoadStateDict(state); !errors.Is(err, nn.ErrShapeMismatch) {
		t.Errorf("expected shape mismatch, got %v", err)
	}
}

func TestAdam_SimpleUpdate(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, backend, 1.0)
	optimizer := optim.NewAdam([]*nn.Parameter[adBackend]{param}, optim.AdamConfig{}, backend)

	optimizer.Step(gradOf(param, 1.0))

	// m_hat = v_hat = 1 after bias correction, so x = 1 - 0.001.
	if got := param.Tensor().Data()[0]; !floatEqual(got, 0.999, 1e-6) {
		t.Errorf("Adam step: got %f, want 0.999", got)
	}
	if optimizer.GetTimestep() != 1 {
		t.Errorf("timestep: got %d, want 1", optimizer.GetTimestep())
	}
}

func TestAdam_ConvergesOnQuadratic(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, backend, 5.0)
	optimizer := optim.NewAdam([]*nn.Parameter[adBackend]{param}, optim.AdamConfig{LR: 0.1}, backend)

	// f(x) = x², f'(x) = 2x.
	for range 500 {
		x := param.Tensor().Data()[0]
		optimizer.Step(gradOf(param, 2*x))
	}
	if got := param.Tensor().Data()[0]; !floatEqual(got, 0, 0.2) {
		t.Errorf("Adam did not converge: x = %f", got)
	}
}

func TestAdam_StateDictRoundTrip(t *testing.T) {
	backend := autodiff.New(cpu.New())
	a := scalarParam(t, backend, 1.0)
	b := scalarParam(t, backend, 1.0)

	first := optim.NewAdam([]*nn.Parameter[adBackend]{a}, optim.AdamConfig{}, backend)
	second := optim.NewAdam([]*nn.Parameter[adBackend]{b}, optim.AdamConfig{}, backend)
	first.Step(gradOf(a, 1.0))
	second.Step(gradOf(b, 1.0))

	resumed := optim.NewAdam([]*nn.Parameter[adBackend]{b}, optim.AdamConfig{}, backend)
	if err := resumed.LoadStateDict(second.StateDict()); err != nil {
		t.Fatal(err)
	}
	if resumed.GetTimestep() != 1 {
		t.Fatalf("timestep: got %d, want 1", resumed.GetTimestep())
	}

	first.Step(gradOf(a, 0.5))
	resumed.Step(gradOf(b, 0.5))
	if ga, gb := a.Tensor().Data()[0], b.Tensor().Data()[0]; ga != gb {
		t.Errorf("resumed Adam diverged: %f vs %f", ga, gb)
	}
}

func TestNew(t *testing.T) {
	backend := autodiff.New(cpu.New())
	params := []*nn.Parameter[adBackend]{scalarParam(t, backend, 1)}

	for _, name := range []string{"sgd", "SGD", "adam"} {
		opt, err := optim.New(name, params, 0.01, 0, backend)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if opt.GetLR() != 0.01 {
			t.Errorf("%s: lr %f", name, opt.GetLR())
		}
	}

	if _, err := optim.New("rmsprop", params, 0.01, 0, backend); !errors.Is(err, optim.ErrUnknownOptimizer) {
		t.Errorf("expected ErrUnknownOptimizer, got %v", err)
	}
}
