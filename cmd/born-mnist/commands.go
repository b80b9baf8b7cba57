package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/born-mnist/internal/autodiff"
	"github.com/born-ml/born-mnist/internal/backend/cpu"
	"github.com/born-ml/born-mnist/internal/checkpoint"
	"github.com/born-ml/born-mnist/internal/config"
	"github.com/born-ml/born-mnist/internal/dataset"
	"github.com/born-ml/born-mnist/internal/mlp"
	"github.com/born-ml/born-mnist/internal/tensor"
	"github.com/born-ml/born-mnist/internal/train"
	"github.com/born-ml/born-mnist/internal/viz"
)

// Metadata keys added to checkpoints written by train.
const (
	metaDataset     = "dataset"
	metaEpochs      = "epochs"
	metaValAccuracy = "val_accuracy"
	metaOptimizer   = "optimizer"
)

// overrides maps the flags set on c onto the run configuration.
func (e *env) overrides(c *cli.Context) (config.Config, error) {
	var o config.Overrides
	str := func(name string) *string {
		if !c.IsSet(name) {
			return nil
		}
		v := c.String(name)
		return &v
	}
	num := func(name string) *int {
		if !c.IsSet(name) {
			return nil
		}
		v := c.Int(name)
		return &v
	}
	float := func(name string) *float32 {
		if !c.IsSet(name) {
			return nil
		}
		v := float32(c.Float64(name))
		return &v
	}

	o.Dataset = str(flagDataset)
	o.DataDir = str(flagDir)
	o.Checkpoint = str(flagCheckpoint)
	o.Optimizer = str(flagOptimizer)
	o.Limit = num(flagLimit)
	o.Epochs = num(flagEpochs)
	o.BatchSize = num(flagBatchSize)
	o.LR = float(flagLR)
	o.DropProb = float(flagDropProb)
	if c.IsSet(flagHidden) {
		o.HiddenLayers = c.IntSlice(flagHidden)
	}

	cfg, err := e.cfg.ApplyOverrides(o)
	if err != nil {
		return config.Config{}, errors.Wrap(err, "invalid flags")
	}
	return cfg, nil
}

func parseSplit(s string) (dataset.Split, error) {
	switch strings.ToLower(s) {
	case "train":
		return dataset.Train, nil
	case "test":
		return dataset.Test, nil
	default:
		return "", errors.Errorf("unknown split %q (want train or test)", s)
	}
}

// load reads one split, downloading the dataset first when asked to and
// it is missing.
func (e *env) load(ctx context.Context, cfg config.Config, split dataset.Split, download bool) (*dataset.Dataset, dataset.Kind, error) {
	kind, err := cfg.Kind()
	if err != nil {
		return nil, "", err
	}
	if download && !dataset.Available(cfg.Dataset.Dir, kind) {
		if err := dataset.Download(ctx, cfg.Dataset.Dir, kind, e.logger); err != nil {
			return nil, "", errors.Wrap(err, "could not download dataset")
		}
	}
	ds, err := dataset.Load(cfg.Dataset.Dir, kind, split)
	if err != nil {
		return nil, "", errors.Wrapf(err, "could not load %s (run `born-mnist download` first)", kind)
	}
	ds = ds.Subset(cfg.Dataset.Limit)
	e.logger.Debugw("loaded dataset", "dataset", kind, "split", split, "examples", ds.Len())
	return ds, kind, nil
}

func (e *env) downloadAction(c *cli.Context) error {
	cfg, err := e.overrides(c)
	if err != nil {
		return err
	}
	kind, err := cfg.Kind()
	if err != nil {
		return err
	}
	if err := dataset.Download(c.Context, cfg.Dataset.Dir, kind, e.logger); err != nil {
		return errors.Wrap(err, "download failed")
	}
	fmt.Fprintf(e.out, "%s is ready in %s\n", kind, cfg.Dataset.Dir)
	return nil
}

type trainBackend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func (e *env) trainAction(c *cli.Context) error {
	cfg, err := e.overrides(c)
	if err != nil {
		return err
	}
	download := c.Bool(flagDownload)

	trainSet, kind, err := e.load(c.Context, cfg, dataset.Train, download)
	if err != nil {
		return err
	}
	var valSet *dataset.Dataset
	if cfg.Dataset.ValFraction > 0 {
		trainSet, valSet, err = trainSet.Split(cfg.Dataset.ValFraction, cfg.Train.ShuffleSeed)
		if err != nil {
			return errors.Wrap(err, "could not split validation set")
		}
	} else if valSet, _, err = e.load(c.Context, cfg, dataset.Test, false); err != nil {
		return err
	}

	backend := autodiff.New(cpu.New())
	var (
		net     *mlp.Network[trainBackend]
		resumed *checkpoint.Checkpoint
	)
	if c.Bool(flagResume) && checkpoint.Exists(cfg.Checkpoint.Path) {
		if resumed, err = checkpoint.Load(cfg.Checkpoint.Path); err != nil {
			return errors.Wrap(err, "could not load checkpoint to resume")
		}
		if net, err = checkpoint.Build(resumed, backend); err != nil {
			return errors.Wrap(err, "could not rebuild network from checkpoint")
		}
		e.logger.Infow("resuming", "checkpoint", cfg.Checkpoint.Path, "run_id", resumed.RunID(), "hidden_layers", resumed.HiddenLayers)
	} else if net, err = mlp.New(cfg.ModelConfig(), backend); err != nil {
		return err
	}

	trainer, err := train.New(net, backend, cfg.TrainConfig(), e.logger)
	if err != nil {
		return err
	}
	if resumed != nil && len(resumed.OptimizerState) > 0 {
		if err := trainer.Optimizer().LoadStateDict(resumed.OptimizerState); err != nil {
			e.logger.Warnw("optimizer state not restored, starting fresh", "error", err)
		}
	}

	trainLoader, err := dataset.NewLoader(trainSet, dataset.LoaderConfig{
		BatchSize: cfg.Train.BatchSize,
		Shuffle:   true,
		Seed:      cfg.Train.ShuffleSeed,
	})
	if err != nil {
		return err
	}
	valLoader, err := dataset.NewLoader(valSet, dataset.LoaderConfig{BatchSize: 1000})
	if err != nil {
		return err
	}

	e.logger.Infow("training",
		"dataset", kind,
		"train_examples", trainSet.Len(),
		"val_examples", valSet.Len(),
		"parameters", humanize.Comma(int64(net.NumParameters())),
		"optimizer", cfg.Train.Optimizer)

	history, fitErr := trainer.Fit(c.Context, trainLoader, valLoader)
	if fitErr != nil && !errors.Is(fitErr, context.Canceled) {
		return errors.Wrap(fitErr, "training failed")
	}
	if len(history.Reports) > 0 {
		fmt.Fprintln(e.out, history.Table())
	}

	ck := checkpoint.FromNetwork(net)
	ck.OptimizerState = trainer.Optimizer().StateDict()
	if resumed != nil && resumed.RunID() != "" {
		ck.Metadata[checkpoint.MetaRunID] = resumed.RunID()
	}
	ck.Metadata[metaDataset] = string(kind)
	ck.Metadata[metaEpochs] = strconv.Itoa(cfg.Train.Epochs)
	ck.Metadata[metaOptimizer] = cfg.Train.Optimizer
	if summary, err := history.Summary(); err == nil && summary.Reports > 0 {
		ck.Metadata[metaValAccuracy] = strconv.FormatFloat(history.Reports[len(history.Reports)-1].ValAccuracy, 'f', 4, 64)
		e.logger.Infow("training finished",
			"steps", summary.Steps,
			"final_train_loss", summary.FinalTrainLoss,
			"best_val_accuracy", summary.BestValAccuracy)
	}
	if err := checkpoint.Save(cfg.Checkpoint.Path, ck); err != nil {
		return errors.Wrap(err, "could not save checkpoint")
	}
	e.logger.Infow("saved checkpoint", "path", cfg.Checkpoint.Path)

	if fitErr != nil {
		return errors.Wrap(fitErr, "training interrupted")
	}
	return nil
}

func (e *env) evaluateAction(c *cli.Context) error {
	cfg, err := e.overrides(c)
	if err != nil {
		return err
	}
	split, err := parseSplit(c.String(flagSplit))
	if err != nil {
		return err
	}
	ck, err := checkpoint.Load(cfg.Checkpoint.Path)
	if err != nil {
		return errors.Wrap(err, "could not load checkpoint")
	}
	ds, kind, err := e.load(c.Context, cfg, split, c.Bool(flagDownload))
	if err != nil {
		return err
	}

	backend := autodiff.New(cpu.New())
	net, err := checkpoint.Build(ck, backend)
	if err != nil {
		return err
	}
	trainer, err := train.New(net, backend, cfg.TrainConfig(), e.logger)
	if err != nil {
		return err
	}
	loader, err := dataset.NewLoader(ds, dataset.LoaderConfig{BatchSize: 1000})
	if err != nil {
		return err
	}
	m, err := trainer.Evaluate(loader)
	if err != nil {
		return errors.Wrap(err, "evaluation failed")
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Dataset", "Split", "Examples", "Loss", "Accuracy"})
	t.AppendRow(table.Row{kind, split, m.Examples, fmt.Sprintf("%.4f", m.Loss), fmt.Sprintf("%.2f%%", 100*m.Accuracy)})
	fmt.Fprintln(e.out, t.Render())
	return nil
}

func (e *env) predictAction(c *cli.Context) error {
	cfg, err := e.overrides(c)
	if err != nil {
		return err
	}
	split, err := parseSplit(c.String(flagSplit))
	if err != nil {
		return err
	}
	ck, err := checkpoint.Load(cfg.Checkpoint.Path)
	if err != nil {
		return errors.Wrap(err, "could not load checkpoint")
	}
	ds, kind, err := e.load(c.Context, cfg, split, c.Bool(flagDownload))
	if err != nil {
		return err
	}
	idx := c.Int(flagIndex)
	if idx < 0 || idx >= ds.Len() {
		return errors.Errorf("index %d out of range [0, %d)", idx, ds.Len())
	}

	backend := cpu.New()
	net, err := checkpoint.Build(ck, backend)
	if err != nil {
		return err
	}
	x, err := tensor.FromSlice(ds.Images[idx], tensor.Shape{1, ds.Dim()}, backend)
	if err != nil {
		return err
	}
	probs, err := net.Predict(x)
	if err != nil {
		return err
	}

	names := kind.ClassNames()
	label := int(ds.Labels[idx])
	scores := make([]float64, len(probs[0]))
	for i, p := range probs[0] {
		scores[i] = float64(p)
	}
	order := make([]int, len(scores))
	sorted := append([]float64(nil), scores...)
	floats.Argsort(sorted, order)

	top := c.Int(flagTop)
	if top <= 0 || top > len(order) {
		top = len(order)
	}
	best := floats.MaxIdx(scores)
	mark := color.New(color.FgGreen, color.Bold)
	if best != label {
		mark = color.New(color.FgRed, color.Bold)
	}
	mark.Fprintf(e.out, "%s #%d: predicted %s, labelled %s\n", split, idx, names[best], names[label])
	for i := len(order) - 1; i >= len(order)-top; i-- {
		class := order[i]
		fmt.Fprintf(e.out, "  %-12s %6.2f%%\n", names[class], 100*scores[class])
	}

	if out := c.String(flagOut); out != "" {
		if err := viz.SaveImageAndProbabilities(out, ds.Images[idx], ds.Rows, ds.Cols, probs[0], names); err != nil {
			return errors.Wrap(err, "could not write image")
		}
		e.logger.Infow("wrote prediction image", "path", out)
	}
	return nil
}

func (e *env) inspectAction(c *cli.Context) error {
	cfg, err := e.overrides(c)
	if err != nil {
		return err
	}
	header, err := checkpoint.Inspect(cfg.Checkpoint.Path)
	if err != nil {
		return errors.Wrap(err, "could not read checkpoint header")
	}
	ck, err := checkpoint.Load(cfg.Checkpoint.Path)
	if err != nil {
		return errors.Wrap(err, "could not load checkpoint")
	}

	summary := table.NewWriter()
	summary.AppendHeader(table.Row{"Field", "Value"})
	summary.AppendRow(table.Row{"format version", header.FormatVersion})
	summary.AppendRow(table.Row{"model", header.ModelType})
	summary.AppendRow(table.Row{"created", humanize.Time(header.CreatedAt)})
	summary.AppendRow(table.Row{"sizes", formatSizes(ck.Config().Sizes())})
	summary.AppendRow(table.Row{"parameters", humanize.Comma(int64(ck.NumParameters()))})
	summary.AppendRow(table.Row{"optimizer state", len(ck.OptimizerState) > 0})
	keys := make([]string, 0, len(ck.Metadata))
	for k := range ck.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		summary.AppendRow(table.Row{k, ck.Metadata[k]})
	}
	fmt.Fprintln(e.out, summary.Render())

	tensors := table.NewWriter()
	tensors.AppendHeader(table.Row{"Tensor", "DType", "Shape", "Size"})
	for _, meta := range header.StateDict {
		tensors.AppendRow(table.Row{meta.Name, meta.DType, fmt.Sprint(meta.Shape), humanize.Bytes(uint64(meta.Size))})
	}
	fmt.Fprintln(e.out, tensors.Render())

	if !c.Bool(flagHistograms) {
		return nil
	}
	for _, name := range ck.TensorNames() {
		if !strings.HasSuffix(name, ".weight") {
			continue
		}
		fmt.Fprintf(e.out, "\n%s\n", name)
		if err := viz.WeightHistogram(e.out, ck.StateDict[name].AsFloat32(), c.Int(flagBins)); err != nil {
			return err
		}
	}
	return nil
}

func formatSizes(sizes []int) string {
	parts := make([]string, len(sizes))
	for i, s := range sizes {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, " -> ")
}
