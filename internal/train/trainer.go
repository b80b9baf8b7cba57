package train

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/born-ml/born-mnist/internal/autodiff"
	"github.com/born-ml/born-mnist/internal/dataset"
	"github.com/born-ml/born-mnist/internal/mlp"
	"github.com/born-ml/born-mnist/internal/nn"
	"github.com/born-ml/born-mnist/internal/optim"
	"github.com/born-ml/born-mnist/internal/tensor"
)

// BatchSource is a finite, restartable sequence of mini-batches.
// dataset.Loader implements it.
type BatchSource interface {
	Next() (dataset.Batch, bool)
	Reset()
}

// Trainer trains a network on an autodiff backend. It is not safe for
// concurrent use.
type Trainer[B autodiff.BackwardCapable] struct {
	net     *mlp.Network[B]
	backend B
	cfg     Config
	opt     optim.Optimizer
	logger  *zap.SugaredLogger

	// OnReport, when set, is called with every report after it is logged.
	OnReport func(Report)
}

// New creates a Trainer for net. The network must have been built on
// backend.
func New[B autodiff.BackwardCapable](net *mlp.Network[B], backend B, cfg Config, logger *zap.SugaredLogger) (*Trainer[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opt, err := optim.New(cfg.Optimizer, net.Parameters(), cfg.LR, cfg.Momentum, backend)
	if err != nil {
		return nil, err
	}
	return &Trainer[B]{
		net:     net,
		backend: backend,
		cfg:     cfg,
		opt:     opt,
		logger:  logger,
	}, nil
}

// Optimizer returns the optimizer, for saving or restoring its state.
func (t *Trainer[B]) Optimizer() optim.Optimizer {
	return t.opt
}

// Network returns the network being trained.
func (t *Trainer[B]) Network() *mlp.Network[B] {
	return t.net
}

func (t *Trainer[B]) loss(logProbs *tensor.Tensor[float32, B], targets *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	if t.cfg.Loss == LossCrossEntropy {
		return nn.CrossEntropyLoss(logProbs, targets)
	}
	return nn.NLLLoss(logProbs, targets)
}

func (t *Trainer[B]) tensors(batch dataset.Batch) (*tensor.Tensor[float32, B], *tensor.Tensor[int32, B], error) {
	x, y, err := dataset.Tensors(batch, t.backend)
	if err != nil {
		return nil, nil, err
	}
	if err := nn.ValidateTargets(batch.Labels, batch.Len(), t.net.OutputSize()); err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

// Step runs one update on batch: zero gradients, forward, loss, backward,
// optimizer step. It returns the batch loss. A batch whose images do not
// have the network's input length fails without touching the parameters.
func (t *Trainer[B]) Step(batch dataset.Batch) (float32, error) {
	x, y, err := t.tensors(batch)
	if err != nil {
		return 0, err
	}

	tape := t.backend.Tape()
	t.opt.ZeroGrad()
	tape.Clear()
	tape.StartRecording()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	logProbs, err := t.net.Forward(x)
	if err != nil {
		return 0, err
	}
	loss := t.loss(logProbs, y)
	grads := autodiff.Backward(loss, t.backend)
	t.opt.Step(grads)
	return loss.Item(), nil
}

// Metrics summarizes an evaluation pass.
type Metrics struct {
	Loss     float64 // mean loss per example
	Accuracy float64 // fraction of examples whose arg-max class is the label
	Examples int
}

// Evaluate runs src from the start in evaluation mode without recording
// gradients. The network's mode and the tape's recording state are
// restored afterwards, and no parameter is modified.
func (t *Trainer[B]) Evaluate(src BatchSource) (Metrics, error) {
	defer autodiff.NoGrad(t.backend)()
	defer t.net.SetTraining(t.net.Training())
	t.net.Eval()

	var (
		total   float64
		correct int
		n       int
	)
	src.Reset()
	for batch, ok := src.Next(); ok; batch, ok = src.Next() {
		x, y, err := t.tensors(batch)
		if err != nil {
			return Metrics{}, err
		}
		logProbs, err := t.net.Forward(x)
		if err != nil {
			return Metrics{}, err
		}
		total += float64(t.loss(logProbs, y).Item()) * float64(batch.Len())
		correct += nn.CountCorrect(logProbs, batch.Labels)
		n += batch.Len()
	}
	if n == 0 {
		return Metrics{}, nil
	}
	return Metrics{
		Loss:     total / float64(n),
		Accuracy: float64(correct) / float64(n),
		Examples: n,
	}, nil
}

// Fit trains for the configured number of epochs. Every PrintEvery steps,
// and at the end of an epoch when steps remain since the last report, it
// evaluates on val (when non-nil) and emits a Report whose TrainLoss is
// the mean over exactly the steps since the previous report.
//
// Cancelling ctx stops training between steps; the history so far is
// returned with ctx's error.
func (t *Trainer[B]) Fit(ctx context.Context, train, val BatchSource) (*History, error) {
	history := &History{}
	start := time.Now()
	step := 0

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		t.net.Train()
		train.Reset()

		var running float64
		since := 0
		report := func() error {
			r := Report{
				Epoch:     epoch,
				Epochs:    t.cfg.Epochs,
				Step:      step,
				TrainLoss: running / float64(since),
				Elapsed:   time.Since(start),
			}
			if val != nil {
				m, err := t.Evaluate(val)
				if err != nil {
					return fmt.Errorf("validation: %w", err)
				}
				r.HasValidation = true
				r.ValLoss = m.Loss
				r.ValAccuracy = m.Accuracy
			}
			t.emit(history, r)
			running, since = 0, 0
			return nil
		}

		for batch, ok := train.Next(); ok; batch, ok = train.Next() {
			if err := ctx.Err(); err != nil {
				return history, err
			}

			loss, err := t.Step(batch)
			if err != nil {
				return history, fmt.Errorf("epoch %d step %d: %w", epoch, step+1, err)
			}
			step++
			history.StepLosses = append(history.StepLosses, loss)
			running += float64(loss)
			since++

			if since == t.cfg.PrintEvery {
				if err := report(); err != nil {
					return history, err
				}
			}
		}
		if since > 0 {
			if err := report(); err != nil {
				return history, err
			}
		}
	}
	return history, nil
}

func (t *Trainer[B]) emit(history *History, r Report) {
	history.Reports = append(history.Reports, r)
	fields := []any{
		"epoch", fmt.Sprintf("%d/%d", r.Epoch, r.Epochs),
		"step", r.Step,
		"train_loss", fmt.Sprintf("%.4f", r.TrainLoss),
	}
	if r.HasValidation {
		fields = append(fields,
			"val_loss", fmt.Sprintf("%.4f", r.ValLoss),
			"val_accuracy", fmt.Sprintf("%.4f", r.ValAccuracy))
	}
	t.logger.Infow("training progress", fields...)
	if t.OnReport != nil {
		t.OnReport(r)
	}
}
