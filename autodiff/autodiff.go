// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff adds reverse-mode differentiation to a backend by
// recording operations on a gradient tape.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	loss := nn.NLLLoss(net.Forward(x), y)
//	grads := autodiff.Backward(loss, backend)
package autodiff

import (
	"github.com/born-ml/born-mnist/internal/autodiff"
	"github.com/born-ml/born-mnist/internal/tensor"
)

// Backend is the autodiff-enabled backend.
type Backend[B tensor.Backend] = autodiff.AutodiffBackend[B]

// New wraps backend with a gradient tape.
func New[B tensor.Backend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape records operations for differentiation.
type GradientTape = autodiff.GradientTape

// BackwardCapable is a backend that exposes a gradient tape.
type BackwardCapable = autodiff.BackwardCapable

// Backward differentiates t with respect to every recorded input.
func Backward[T tensor.DType, B BackwardCapable](t *tensor.Tensor[T, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.Backward(t, backend)
}

// NoGrad pauses recording on backends with a tape and returns a function
// that restores the previous state.
//
//	defer autodiff.NoGrad(backend)()
func NoGrad(backend any) (restore func()) {
	return autodiff.NoGrad(backend)
}
