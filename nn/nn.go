// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn exposes the layers, losses and metrics the classifier is
// built from.
package nn

import (
	"math/rand"

	"github.com/born-ml/born-mnist/internal/nn"
	"github.com/born-ml/born-mnist/internal/tensor"
)

// Module is a layer with a forward pass and trainable parameters.
type Module[B tensor.Backend] = nn.Module[B]

// Parameter is a named trainable tensor with its gradient.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// Linear computes y = x·Wᵀ + b.
type Linear[B tensor.Backend] = nn.Linear[B]

// NewLinear creates a Linear layer with Xavier-uniform weights and zero
// bias.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, rng *rand.Rand, backend B) *Linear[B] {
	return nn.NewLinear(inFeatures, outFeatures, rng, backend)
}

// ReLU is max(0, x).
type ReLU[B tensor.Backend] = nn.ReLU[B]

// NewReLU creates a ReLU activation.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return nn.NewReLU[B]()
}

// LogSoftmax normalizes each row into log-probabilities.
type LogSoftmax[B tensor.Backend] = nn.LogSoftmax[B]

// NewLogSoftmax creates a row-wise log-softmax.
func NewLogSoftmax[B tensor.Backend]() *LogSoftmax[B] {
	return nn.NewLogSoftmax[B]()
}

// Dropout zeroes inputs with probability p while training.
type Dropout[B tensor.Backend] = nn.Dropout[B]

// NewDropout creates a Dropout layer drawing masks from rng.
func NewDropout[B tensor.Backend](p float32, rng *rand.Rand) *Dropout[B] {
	return nn.NewDropout[B](p, rng)
}

// NLLLoss is the mean negative log-likelihood of the target classes.
func NLLLoss[B tensor.Backend](logProbs *tensor.Tensor[float32, B], targets *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	return nn.NLLLoss(logProbs, targets)
}

// CrossEntropyLoss applies log-softmax to logits and then NLLLoss.
func CrossEntropyLoss[B tensor.Backend](logits *tensor.Tensor[float32, B], targets *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	return nn.CrossEntropyLoss(logits, targets)
}

// Accuracy returns the fraction of rows whose largest score is at the
// target index.
func Accuracy[B tensor.Backend](scores *tensor.Tensor[float32, B], targets []int32) float32 {
	return nn.Accuracy(scores, targets)
}

// ShapeError reports a tensor whose shape differs from what a layer
// expects.
type ShapeError = nn.ShapeError

// Errors returned when loading parameters.
var (
	ErrShapeMismatch       = nn.ErrShapeMismatch
	ErrMissingParameter    = nn.ErrMissingParameter
	ErrUnexpectedParameter = nn.ErrUnexpectedParameter
)
