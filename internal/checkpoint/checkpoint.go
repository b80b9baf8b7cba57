// Package checkpoint saves and restores trained networks: the architecture
// sizes plus every weight and bias, stored in a .born container.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/born-ml/born-mnist/internal/mlp"
	"github.com/born-ml/born-mnist/internal/serialization"
	"github.com/born-ml/born-mnist/internal/tensor"
)

// ModelType identifies MLP checkpoints in the container header.
const ModelType = "MLP"

// Metadata keys written by this package.
const (
	MetaRunID    = "run_id"
	MetaDropProb = "drop_prob"
)

const optimizerPrefix = "optimizer."

// Errors returned when a file is not a usable checkpoint.
var (
	ErrWrongModelType = errors.New("not an MLP checkpoint")
	ErrNoArchitecture = errors.New("checkpoint has no architecture")
)

// Checkpoint is a self-contained record of a trained network.
type Checkpoint struct {
	InputSize    int
	OutputSize   int
	HiddenLayers []int

	// StateDict holds the network parameters keyed as in
	// mlp.Network.StateDict.
	StateDict map[string]*tensor.RawTensor

	// OptimizerState is optional optimizer buffers for resuming training.
	OptimizerState map[string]*tensor.RawTensor

	Metadata map[string]string
}

// architecture is the JSON form of the size fields.
type architecture struct {
	InputSize    int   `json:"input_size"`
	OutputSize   int   `json:"output_size"`
	HiddenLayers []int `json:"hidden_layers"`
}

// FromNetwork captures net. Sizes are read from the network's own layers
// and every parameter is deep-copied, so later training does not change
// the checkpoint.
func FromNetwork[B tensor.Backend](net *mlp.Network[B]) *Checkpoint {
	stateDict := make(map[string]*tensor.RawTensor)
	for name, raw := range net.StateDict() {
		stateDict[name] = raw.Clone()
	}
	return &Checkpoint{
		InputSize:    net.InputSize(),
		OutputSize:   net.OutputSize(),
		HiddenLayers: net.HiddenSizes(),
		StateDict:    stateDict,
		Metadata: map[string]string{
			MetaDropProb: strconv.FormatFloat(float64(net.DropProb()), 'g', -1, 32),
		},
	}
}

// Config returns the network configuration described by the checkpoint.
// The drop probability comes from metadata when present.
func (c *Checkpoint) Config() mlp.Config {
	cfg := mlp.Config{
		InputSize:    c.InputSize,
		OutputSize:   c.OutputSize,
		HiddenLayers: append([]int(nil), c.HiddenLayers...),
		DropProb:     mlp.DefaultDropProb,
	}
	if v, ok := c.Metadata[MetaDropProb]; ok {
		if p, err := strconv.ParseFloat(v, 32); err == nil {
			cfg.DropProb = float32(p)
		}
	}
	return cfg
}

// Build constructs a network from the checkpoint's size fields and loads
// its parameters. A state dict that does not fit the declared sizes fails
// with an error listing every incompatible layer.
func Build[B tensor.Backend](c *Checkpoint, backend B) (*mlp.Network[B], error) {
	net, err := mlp.New(c.Config(), backend)
	if err != nil {
		return nil, fmt.Errorf("checkpoint architecture: %w", err)
	}
	if err := net.LoadStateDict(c.StateDict); err != nil {
		return nil, fmt.Errorf("checkpoint parameters: %w", err)
	}
	return net, nil
}

// NumParameters returns the number of scalar values in StateDict.
func (c *Checkpoint) NumParameters() int {
	total := 0
	for _, raw := range c.StateDict {
		total += raw.NumElements()
	}
	return total
}

// TensorNames returns the StateDict keys in sorted order.
func (c *Checkpoint) TensorNames() []string {
	names := make([]string, 0, len(c.StateDict))
	for name := range c.StateDict {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunID returns the run identifier assigned when the checkpoint was first
// written, or "".
func (c *Checkpoint) RunID() string {
	return c.Metadata[MetaRunID]
}

func (c *Checkpoint) encode() (serialization.Header, map[string]*tensor.RawTensor, uint32, error) {
	model, err := json.Marshal(architecture{
		InputSize:    c.InputSize,
		OutputSize:   c.OutputSize,
		HiddenLayers: c.HiddenLayers,
	})
	if err != nil {
		return serialization.Header{}, nil, 0, err
	}

	metadata := make(map[string]string, len(c.Metadata)+1)
	for k, v := range c.Metadata {
		metadata[k] = v
	}
	if metadata[MetaRunID] == "" {
		metadata[MetaRunID] = uuid.NewString()
	}

	tensors := make(map[string]*tensor.RawTensor, len(c.StateDict)+len(c.OptimizerState))
	for name, raw := range c.StateDict {
		if strings.HasPrefix(name, optimizerPrefix) {
			return serialization.Header{}, nil, 0, fmt.Errorf("parameter name %q uses reserved prefix %q", name, optimizerPrefix)
		}
		tensors[name] = raw
	}
	var flags uint32
	for name, raw := range c.OptimizerState {
		tensors[optimizerPrefix+name] = raw
		flags |= serialization.FlagHasOptimizer
	}

	header := serialization.Header{
		ModelType: ModelType,
		Model:     model,
		Metadata:  metadata,
	}
	return header, tensors, flags, nil
}

func decode(header serialization.Header, tensors map[string]*tensor.RawTensor) (*Checkpoint, error) {
	if header.ModelType != ModelType {
		return nil, fmt.Errorf("%w: model type %q", ErrWrongModelType, header.ModelType)
	}
	if len(header.Model) == 0 {
		return nil, ErrNoArchitecture
	}
	var arch architecture
	if err := json.Unmarshal(header.Model, &arch); err != nil {
		return nil, fmt.Errorf("checkpoint architecture: %w", err)
	}

	c := &Checkpoint{
		InputSize:    arch.InputSize,
		OutputSize:   arch.OutputSize,
		HiddenLayers: arch.HiddenLayers,
		StateDict:    make(map[string]*tensor.RawTensor),
		Metadata:     header.Metadata,
	}
	for name, raw := range tensors {
		if opt, ok := strings.CutPrefix(name, optimizerPrefix); ok {
			if c.OptimizerState == nil {
				c.OptimizerState = make(map[string]*tensor.RawTensor)
			}
			c.OptimizerState[opt] = raw
			continue
		}
		c.StateDict[name] = raw
	}
	if c.Metadata == nil {
		c.Metadata = make(map[string]string)
	}
	return c, nil
}

// Write encodes c to w. A run id is generated when Metadata has none.
func Write(w io.Writer, c *Checkpoint) error {
	header, tensors, flags, err := c.encode()
	if err != nil {
		return err
	}
	sw := serialization.NewWriter(w)
	sw.SetFlags(flags)
	return sw.WriteStateDict(header, tensors)
}

// Read decodes a checkpoint written by Write or Save.
func Read(r io.Reader) (*Checkpoint, error) {
	reader, err := serialization.ReadFrom(r, serialization.ReaderOptions{})
	if err != nil {
		return nil, err
	}
	tensors, err := reader.ReadStateDict()
	if err != nil {
		return nil, err
	}
	return decode(reader.Header(), tensors)
}

// Save writes c to path, replacing any existing file atomically.
func Save(path string, c *Checkpoint) error {
	header, tensors, flags, err := c.encode()
	if err != nil {
		return err
	}
	if err := serialization.WriteFile(path, header, tensors, flags); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", path, err)
	}
	return nil
}

// Load reads the checkpoint at path.
func Load(path string) (*Checkpoint, error) {
	header, tensors, err := serialization.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	c, err := decode(header, tensors)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", path, err)
	}
	return c, nil
}

// Inspect returns the container header of the file at path without
// decoding tensors into a checkpoint.
func Inspect(path string) (serialization.Header, error) {
	reader, err := serialization.Open(path, serialization.ReaderOptions{})
	if err != nil {
		return serialization.Header{}, err
	}
	defer func() { _ = reader.Close() }()
	return reader.Header(), nil
}

// Exists reports whether a regular file exists at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
