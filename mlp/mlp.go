// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package mlp is the public API of the MNIST classifier: a multilayer
// perceptron with ReLU hidden layers, dropout and a log-softmax output,
// plus checkpointing and a training loop.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	net, err := mlp.New(mlp.DefaultConfig(), backend)
//	...
//	trainer, err := mlp.NewTrainer(net, backend, mlp.DefaultTrainConfig(), logger)
//	history, err := trainer.Fit(ctx, trainBatches, valBatches)
//	err = mlp.Save("mnist.born", net)
package mlp

import (
	"go.uber.org/zap"

	"github.com/born-ml/born-mnist/internal/autodiff"
	"github.com/born-ml/born-mnist/internal/checkpoint"
	"github.com/born-ml/born-mnist/internal/mlp"
	"github.com/born-ml/born-mnist/internal/tensor"
	"github.com/born-ml/born-mnist/internal/train"
)

// Config describes the network architecture.
type Config = mlp.Config

// DefaultConfig is 784 -> 512 -> 256 -> 128 -> 10 with dropout 0.5.
func DefaultConfig() Config {
	return mlp.DefaultConfig()
}

// Network is the classifier.
type Network[B tensor.Backend] = mlp.Network[B]

// New builds a network with freshly initialized parameters.
func New[B tensor.Backend](cfg Config, backend B) (*Network[B], error) {
	return mlp.New(cfg, backend)
}

// Checkpoint is a saved network.
type Checkpoint = checkpoint.Checkpoint

// Save writes net to path.
func Save[B tensor.Backend](path string, net *Network[B]) error {
	return checkpoint.Save(path, checkpoint.FromNetwork(net))
}

// Load rebuilds a network saved with Save. The architecture is read from
// the file.
func Load[B tensor.Backend](path string, backend B) (*Network[B], error) {
	c, err := checkpoint.Load(path)
	if err != nil {
		return nil, err
	}
	return checkpoint.Build(c, backend)
}

// TrainConfig holds the training hyperparameters.
type TrainConfig = train.Config

// DefaultTrainConfig is one epoch of Adam at lr 0.001, batch size 64.
func DefaultTrainConfig() TrainConfig {
	return train.DefaultConfig()
}

// Trainer runs the training loop.
type Trainer[B autodiff.BackwardCapable] = train.Trainer[B]

// BatchSource is a restartable sequence of mini-batches.
type BatchSource = train.BatchSource

// NewTrainer creates a Trainer for net.
func NewTrainer[B autodiff.BackwardCapable](net *Network[B], backend B, cfg TrainConfig, logger *zap.SugaredLogger) (*Trainer[B], error) {
	return train.New(net, backend, cfg, logger)
}
