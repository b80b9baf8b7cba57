// Package config loads the YAML run configuration shared by the
// born-mnist commands.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/a8m/envsubst"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/born-mnist/internal/dataset"
	"github.com/born-ml/born-mnist/internal/mlp"
	"github.com/born-ml/born-mnist/internal/train"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config is a complete run configuration.
type Config struct {
	Dataset    Dataset    `yaml:"dataset"`
	Model      Model      `yaml:"model"`
	Train      Train      `yaml:"train"`
	Checkpoint Checkpoint `yaml:"checkpoint"`
}

// Dataset selects the data. With ValFraction zero the test split is used
// for validation; otherwise that fraction of the training split is held
// out. Limit, when positive, truncates every split.
type Dataset struct {
	Name        string  `yaml:"name"`
	Dir         string  `yaml:"dir"`
	ValFraction float64 `yaml:"val_fraction"`
	Limit       int     `yaml:"limit"`
}

// Model is the network architecture. Input and output sizes follow from
// the dataset.
type Model struct {
	HiddenLayers []int   `yaml:"hidden_layers"`
	DropProb     float32 `yaml:"drop_prob"`
	Seed         int64   `yaml:"seed"`
}

// Train holds the training hyperparameters.
type Train struct {
	Epochs      int     `yaml:"epochs"`
	BatchSize   int     `yaml:"batch_size"`
	PrintEvery  int     `yaml:"print_every"`
	Optimizer   string  `yaml:"optimizer"`
	LR          float32 `yaml:"lr"`
	Momentum    float32 `yaml:"momentum"`
	Loss        string  `yaml:"loss"`
	ShuffleSeed int64   `yaml:"shuffle_seed"`
}

// Checkpoint locates the checkpoint file.
type Checkpoint struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	m := mlp.DefaultConfig()
	t := train.DefaultConfig()
	return Config{
		Dataset: Dataset{Name: string(dataset.MNIST), Dir: "data"},
		Model: Model{
			HiddenLayers: m.HiddenLayers,
			DropProb:     m.DropProb,
			Seed:         m.Seed,
		},
		Train: Train{
			Epochs:      t.Epochs,
			BatchSize:   t.BatchSize,
			PrintEvery:  t.PrintEvery,
			Optimizer:   t.Optimizer,
			LR:          t.LR,
			Momentum:    t.Momentum,
			Loss:        t.Loss,
			ShuffleSeed: 1,
		},
		Checkpoint: Checkpoint{Path: "checkpoint.born"},
	}
}

// Load reads a YAML file, expanding ${VAR} references from the
// environment. Keys absent from the file keep their default values.
func Load(path string) (Config, error) {
	buf, err := envsubst.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := FromReader(bytes.NewReader(buf))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// FromReader decodes YAML over Default. Unknown keys are rejected.
func FromReader(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Kind returns the parsed dataset kind.
func (c Config) Kind() (dataset.Kind, error) {
	return dataset.ParseKind(c.Dataset.Name)
}

// ModelConfig returns the network configuration for the dataset's
// 28x28 images and ten classes.
func (c Config) ModelConfig() mlp.Config {
	return mlp.Config{
		InputSize:    dataset.ImageSize,
		OutputSize:   dataset.NumClasses,
		HiddenLayers: append([]int(nil), c.Model.HiddenLayers...),
		DropProb:     c.Model.DropProb,
		Seed:         c.Model.Seed,
	}
}

// TrainConfig returns the training loop configuration.
func (c Config) TrainConfig() train.Config {
	return train.Config{
		Epochs:     c.Train.Epochs,
		BatchSize:  c.Train.BatchSize,
		PrintEvery: c.Train.PrintEvery,
		Optimizer:  c.Train.Optimizer,
		LR:         c.Train.LR,
		Momentum:   c.Train.Momentum,
		Loss:       c.Train.Loss,
	}
}

// Validate reports every problem in the configuration at once.
func (c Config) Validate() error {
	var err error
	if _, kerr := c.Kind(); kerr != nil {
		err = multierr.Append(err, kerr)
	}
	if c.Dataset.Dir == "" {
		err = multierr.Append(err, errors.New("dataset.dir is empty"))
	}
	if c.Dataset.ValFraction < 0 || c.Dataset.ValFraction >= 1 {
		err = multierr.Append(err, fmt.Errorf("dataset.val_fraction must be in [0, 1), got %v", c.Dataset.ValFraction))
	}
	if c.Dataset.Limit < 0 {
		err = multierr.Append(err, fmt.Errorf("dataset.limit must not be negative, got %d", c.Dataset.Limit))
	}
	if c.Checkpoint.Path == "" {
		err = multierr.Append(err, errors.New("checkpoint.path is empty"))
	}
	err = multierr.Append(err, c.ModelConfig().Validate())
	err = multierr.Append(err, c.TrainConfig().Validate())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Overrides are command-line values that replace file settings. Nil
// fields leave the configuration unchanged.
type Overrides struct {
	Dataset      *string
	DataDir      *string
	Limit        *int
	HiddenLayers []int
	DropProb     *float32
	Epochs       *int
	BatchSize    *int
	Optimizer    *string
	LR           *float32
	Checkpoint   *string
}

// ApplyOverrides returns c with o applied and validates the result.
func (c Config) ApplyOverrides(o Overrides) (Config, error) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&c.Dataset.Name, o.Dataset)
	set(&c.Dataset.Dir, o.DataDir)
	set(&c.Train.Optimizer, o.Optimizer)
	set(&c.Checkpoint.Path, o.Checkpoint)
	if o.Limit != nil {
		c.Dataset.Limit = *o.Limit
	}
	if len(o.HiddenLayers) > 0 {
		c.Model.HiddenLayers = append([]int(nil), o.HiddenLayers...)
	}
	if o.DropProb != nil {
		c.Model.DropProb = *o.DropProb
	}
	if o.Epochs != nil {
		c.Train.Epochs = *o.Epochs
	}
	if o.BatchSize != nil {
		c.Train.BatchSize = *o.BatchSize
	}
	if o.LR != nil {
		c.Train.LR = *o.LR
	}
	return c, c.Validate()
}
