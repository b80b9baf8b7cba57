// Package train runs the mini-batch training loop for the MLP: forward,
// loss, backward and optimizer update per batch, with periodic validation
// and progress reports.
package train

import (
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/born-mnist/internal/optim"
)

// Loss names.
const (
	LossNLL          = "nll"
	LossCrossEntropy = "cross_entropy"
)

// ErrInvalidConfig is returned for unusable training settings.
var ErrInvalidConfig = errors.New("invalid training config")

// Config holds the training hyperparameters.
type Config struct {
	Epochs     int
	BatchSize  int
	PrintEvery int // steps between reports; a report is also made at the end of each epoch
	Optimizer  string
	LR         float32
	Momentum   float32 // SGD only
	Loss       string
}

// DefaultConfig returns one epoch of Adam at lr 0.001 with NLL loss,
// batch size 64 and a report every 40 steps.
func DefaultConfig() Config {
	return Config{
		Epochs:     1,
		BatchSize:  64,
		PrintEvery: 40,
		Optimizer:  "adam",
		LR:         0.001,
		Loss:       LossNLL,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Epochs <= 0:
		return fmt.Errorf("%w: epochs must be positive, got %d", ErrInvalidConfig, c.Epochs)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	case c.PrintEvery <= 0:
		return fmt.Errorf("%w: print_every must be positive, got %d", ErrInvalidConfig, c.PrintEvery)
	case c.LR <= 0:
		return fmt.Errorf("%w: learning rate must be positive, got %v", ErrInvalidConfig, c.LR)
	case c.Momentum < 0 || c.Momentum >= 1:
		return fmt.Errorf("%w: momentum must be in [0, 1), got %v", ErrInvalidConfig, c.Momentum)
	}

	switch strings.ToLower(c.Optimizer) {
	case "sgd", "adam":
	default:
		return fmt.Errorf("%w: optimizer %q (want one of %s)", ErrInvalidConfig, c.Optimizer, strings.Join(optim.Names, ", "))
	}
	switch c.Loss {
	case LossNLL, LossCrossEntropy:
	default:
		return fmt.Errorf("%w: loss %q (want %s or %s)", ErrInvalidConfig, c.Loss, LossNLL, LossCrossEntropy)
	}
	return nil
}
