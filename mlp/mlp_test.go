package mlp_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/born-ml/born-mnist/autodiff"
	"github.com/born-ml/born-mnist/backend/cpu"
	"github.com/born-ml/born-mnist/internal/dataset"
	"github.com/born-ml/born-mnist/mlp"
	"github.com/born-ml/born-mnist/tensor"
)

func TestTrainSaveLoad(t *testing.T) {
	backend := autodiff.New(cpu.New())
	cfg := mlp.Config{InputSize: dataset.ImageSize, OutputSize: dataset.NumClasses, HiddenLayers: []int{16}, DropProb: 0.2, Seed: 5}
	net, err := mlp.New(cfg, backend)
	require.NoError(t, err)

	tcfg := mlp.DefaultTrainConfig()
	tcfg.BatchSize = 10
	trainer, err := mlp.NewTrainer(net, backend, tcfg, zap.NewNop().Sugar())
	require.NoError(t, err)

	batches, err := dataset.NewLoader(dataset.Patterns(2, dataset.NumClasses), dataset.LoaderConfig{BatchSize: 10})
	require.NoError(t, err)
	history, err := trainer.Fit(context.Background(), batches, nil)
	require.NoError(t, err)
	assert.Len(t, history.StepLosses, 2)

	path := filepath.Join(t.TempDir(), "net.born")
	require.NoError(t, mlp.Save(path, net))

	plain := cpu.New()
	loaded, err := mlp.Load(path, plain)
	require.NoError(t, err)
	assert.Equal(t, cfg.HiddenLayers, loaded.HiddenSizes())

	img := dataset.Patterns(1, dataset.NumClasses).Images[4]
	x1, err := tensor.FromSlice(img, tensor.Shape{1, dataset.ImageSize}, backend)
	require.NoError(t, err)
	x2, err := tensor.FromSlice(img, tensor.Shape{1, dataset.ImageSize}, plain)
	require.NoError(t, err)

	want, err := net.Predict(x1)
	require.NoError(t, err)
	got, err := loaded.Predict(x2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want[0], got[0], 1e-6)
}
