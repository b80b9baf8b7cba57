// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU backend.
package cpu

import (
	internalcpu "github.com/born-ml/born-mnist/internal/backend/cpu"
	"github.com/born-ml/born-mnist/tensor"
)

// Backend is the CPU backend. Matrix products use gonum BLAS and large
// element-wise operations are split across workers.
type Backend = internalcpu.CPUBackend

var _ tensor.Backend = (*Backend)(nil)

// New creates a CPU backend sized to the host.
func New() *Backend {
	return internalcpu.New()
}
