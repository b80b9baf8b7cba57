package train_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/born-ml/born-mnist/internal/autodiff"
	"github.com/born-ml/born-mnist/internal/backend/cpu"
	"github.com/born-ml/born-mnist/internal/dataset"
	"github.com/born-ml/born-mnist/internal/mlp"
	"github.com/born-ml/born-mnist/internal/nn"
	"github.com/born-ml/born-mnist/internal/tensor"
	"github.com/born-ml/born-mnist/internal/train"
)

type backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func newTrainer(t *testing.T, mcfg mlp.Config, tcfg train.Config) *train.Trainer[backend] {
	t.Helper()
	b := autodiff.New(cpu.New())
	net, err := mlp.New(mcfg, b)
	require.NoError(t, err)
	tr, err := train.New(net, b, tcfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return tr
}

func loader(t *testing.T, ds *dataset.Dataset, batch int, shuffle bool) *dataset.Loader {
	t.Helper()
	l, err := dataset.NewLoader(ds, dataset.LoaderConfig{BatchSize: batch, Shuffle: shuffle, Seed: 7})
	require.NoError(t, err)
	return l
}

func snapshot(net *mlp.Network[backend]) map[string][]float32 {
	out := make(map[string][]float32)
	for name, raw := range net.StateDict() {
		out[name] = append([]float32(nil), raw.AsFloat32()...)
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, train.DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*train.Config)
	}{
		{"zero epochs", func(c *train.Config) { c.Epochs = 0 }},
		{"zero batch", func(c *train.Config) { c.BatchSize = 0 }},
		{"zero print every", func(c *train.Config) { c.PrintEvery = 0 }},
		{"negative lr", func(c *train.Config) { c.LR = -1 }},
		{"momentum one", func(c *train.Config) { c.Momentum = 1 }},
		{"unknown optimizer", func(c *train.Config) { c.Optimizer = "rmsprop" }},
		{"unknown loss", func(c *train.Config) { c.Loss = "mse" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := train.DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), train.ErrInvalidConfig)
		})
	}
}

// With all-zero images only the output bias receives a gradient, so each
// Adam step moves it the same way and the loss falls every step.
func TestFit_LossDecreasesOnSyntheticData(t *testing.T) {
	mcfg := mlp.Config{InputSize: dataset.ImageSize, OutputSize: 10, HiddenLayers: []int{128, 64}, DropProb: 0.5, Seed: 1}
	tcfg := train.DefaultConfig()
	tr := newTrainer(t, mcfg, tcfg)

	history, err := tr.Fit(context.Background(), loader(t, dataset.Synthetic(640, dataset.ImageSize, 0), 64, false), nil)
	require.NoError(t, err)
	require.Len(t, history.StepLosses, 10)

	decreases := 0
	for i := 1; i < len(history.StepLosses); i++ {
		if history.StepLosses[i] < history.StepLosses[i-1] {
			decreases++
		}
	}
	assert.GreaterOrEqual(t, decreases, 8, "losses: %v", history.StepLosses)
}

func TestFit_LearnsPatterns(t *testing.T) {
	mcfg := mlp.Config{InputSize: dataset.ImageSize, OutputSize: 10, HiddenLayers: []int{64}, Seed: 2}
	tcfg := train.DefaultConfig()
	tcfg.Epochs = 20
	tcfg.BatchSize = 20
	tcfg.LR = 0.01
	tr := newTrainer(t, mcfg, tcfg)

	ds := dataset.Patterns(10, 10)
	val := loader(t, ds, 50, false)
	history, err := tr.Fit(context.Background(), loader(t, ds, tcfg.BatchSize, true), val)
	require.NoError(t, err)

	m, err := tr.Evaluate(val)
	require.NoError(t, err)
	assert.Equal(t, 100, m.Examples)
	assert.GreaterOrEqual(t, m.Accuracy, 0.9)

	summary, err := history.Summary()
	require.NoError(t, err)
	assert.Equal(t, 100, summary.Steps)
	assert.InDelta(t, m.Accuracy, history.Reports[len(history.Reports)-1].ValAccuracy, 1e-9)
	assert.GreaterOrEqual(t, summary.BestValAccuracy, m.Accuracy)
	assert.Less(t, summary.FinalTrainLoss, history.Reports[0].TrainLoss)
	assert.Contains(t, history.Table(), "Val acc")
}

func TestFit_ReportCadence(t *testing.T) {
	mcfg := mlp.Config{InputSize: 6, OutputSize: 2, HiddenLayers: []int{4}, Seed: 1}
	tcfg := train.DefaultConfig()
	tcfg.Epochs = 2
	tcfg.BatchSize = 10
	tcfg.PrintEvery = 4
	tr := newTrainer(t, mcfg, tcfg)

	var seen []train.Report
	tr.OnReport = func(r train.Report) { seen = append(seen, r) }

	history, err := tr.Fit(context.Background(), loader(t, dataset.Synthetic(100, 6, 1), 10, false), nil)
	require.NoError(t, err)
	require.Equal(t, history.Reports, seen)

	var steps, epochs []int
	for _, r := range history.Reports {
		steps = append(steps, r.Step)
		epochs = append(epochs, r.Epoch)
		assert.False(t, r.HasValidation)
	}
	assert.Equal(t, []int{4, 8, 10, 14, 18, 20}, steps)
	assert.Equal(t, []int{1, 1, 1, 2, 2, 2}, epochs)

	// Each report averages exactly the steps since the previous one.
	prev := 0
	for _, r := range history.Reports {
		var sum float64
		for _, l := range history.StepLosses[prev:r.Step] {
			sum += float64(l)
		}
		assert.InDelta(t, sum/float64(r.Step-prev), r.TrainLoss, 1e-6, "report at step %d", r.Step)
		prev = r.Step
	}
}

func TestFit_Cancellation(t *testing.T) {
	mcfg := mlp.Config{InputSize: 6, OutputSize: 2, HiddenLayers: []int{4}, Seed: 1}
	tcfg := train.DefaultConfig()
	tcfg.Epochs = 3
	tcfg.BatchSize = 10
	tcfg.PrintEvery = 3
	tr := newTrainer(t, mcfg, tcfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr.OnReport = func(train.Report) { cancel() }

	history, err := tr.Fit(ctx, loader(t, dataset.Synthetic(100, 6, 0), 10, false), nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, history.StepLosses, 3)
	assert.Len(t, history.Reports, 1)
}

func TestEvaluate_DoesNotModifyNetwork(t *testing.T) {
	mcfg := mlp.Config{InputSize: dataset.ImageSize, OutputSize: 10, HiddenLayers: []int{16}, DropProb: 0.5, Seed: 4}
	tr := newTrainer(t, mcfg, train.DefaultConfig())
	net := tr.Network()
	before := snapshot(net)

	m1, err := tr.Evaluate(loader(t, dataset.Patterns(3, 10), 7, false))
	require.NoError(t, err)
	m2, err := tr.Evaluate(loader(t, dataset.Patterns(3, 10), 7, false))
	require.NoError(t, err)

	assert.Equal(t, before, snapshot(net))
	assert.True(t, net.Training(), "mode restored")
	assert.False(t, net.Backend().Tape().IsRecording())
	assert.Equal(t, 30, m1.Examples)
	// Dropout is off during evaluation, so repeated passes agree.
	assert.InDelta(t, m1.Loss, m2.Loss, 1e-9)
	assert.Equal(t, m1.Accuracy, m2.Accuracy)
}

func TestStep_RejectsBadBatches(t *testing.T) {
	mcfg := mlp.Config{InputSize: 6, OutputSize: 3, HiddenLayers: []int{4}, Seed: 1}
	tr := newTrainer(t, mcfg, train.DefaultConfig())
	before := snapshot(tr.Network())

	_, err := tr.Step(dataset.Batch{Images: [][]float32{make([]float32, 5)}, Labels: []int32{0}})
	var shapeErr *nn.ShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, tensor.Shape{1, 6}, shapeErr.Want)

	_, err = tr.Step(dataset.Batch{Images: [][]float32{make([]float32, 6)}, Labels: []int32{3}})
	require.Error(t, err)

	_, err = tr.Step(dataset.Batch{})
	require.Error(t, err)

	assert.Equal(t, before, snapshot(tr.Network()))
}

func TestStep_CrossEntropyAndSGD(t *testing.T) {
	mcfg := mlp.Config{InputSize: 6, OutputSize: 2, HiddenLayers: []int{4}, Seed: 1}
	tcfg := train.DefaultConfig()
	tcfg.Optimizer = "sgd"
	tcfg.Momentum = 0.9
	tcfg.LR = 0.1
	tcfg.Loss = train.LossCrossEntropy
	tr := newTrainer(t, mcfg, tcfg)

	ds := dataset.Synthetic(8, 6, 1)
	batch := dataset.Batch{Images: ds.Images, Labels: ds.Labels}
	first, err := tr.Step(batch)
	require.NoError(t, err)
	var last float32
	for i := 0; i < 20; i++ {
		last, err = tr.Step(batch)
		require.NoError(t, err)
	}
	assert.Less(t, last, first)
	assert.InDelta(t, 0.1, tr.Optimizer().GetLR(), 1e-9)
}

func TestHistorySummary_Empty(t *testing.T) {
	s, err := (&train.History{}).Summary()
	require.NoError(t, err)
	assert.Zero(t, s.Reports)
}
