// Package mlp implements a configurable fully connected classifier:
// one linear layer per consecutive pair of sizes in
// [InputSize] + HiddenLayers + [OutputSize], with ReLU and dropout after
// every hidden layer and log-softmax on the output.
package mlp

import (
	"errors"
	"fmt"
)

// DefaultDropProb is the dropout probability used when Config.DropProb is
// left at zero by DefaultConfig.
const DefaultDropProb = 0.5

// ErrInvalidConfig is returned for an unusable architecture.
var ErrInvalidConfig = errors.New("invalid mlp config")

// Config describes a network architecture.
type Config struct {
	InputSize    int
	OutputSize   int
	HiddenLayers []int
	DropProb     float32 // Dropout probability after each hidden ReLU
	Seed         int64   // Weight initialization and dropout mask seed
}

// DefaultConfig returns the MNIST architecture: 784 → 512 → 256 → 128 → 10
// with dropout 0.5.
func DefaultConfig() Config {
	return Config{
		InputSize:    784,
		OutputSize:   10,
		HiddenLayers: []int{512, 256, 128},
		DropProb:     DefaultDropProb,
		Seed:         1,
	}
}

// Validate checks that every size is positive, there is at least one
// hidden layer and the drop probability is in [0, 1).
func (c Config) Validate() error {
	if c.InputSize <= 0 {
		return fmt.Errorf("%w: input size must be positive, got %d", ErrInvalidConfig, c.InputSize)
	}
	if c.OutputSize <= 0 {
		return fmt.Errorf("%w: output size must be positive, got %d", ErrInvalidConfig, c.OutputSize)
	}
	if len(c.HiddenLayers) == 0 {
		return fmt.Errorf("%w: at least one hidden layer is required", ErrInvalidConfig)
	}
	for i, size := range c.HiddenLayers {
		if size <= 0 {
			return fmt.Errorf("%w: hidden layer %d size must be positive, got %d", ErrInvalidConfig, i, size)
		}
	}
	if c.DropProb < 0 || c.DropProb >= 1 {
		return fmt.Errorf("%w: drop probability must be in [0, 1), got %v", ErrInvalidConfig, c.DropProb)
	}
	return nil
}

// Sizes returns [InputSize] + HiddenLayers + [OutputSize].
func (c Config) Sizes() []int {
	sizes := make([]int, 0, len(c.HiddenLayers)+2)
	sizes = append(sizes, c.InputSize)
	sizes = append(sizes, c.HiddenLayers...)
	return append(sizes, c.OutputSize)
}
