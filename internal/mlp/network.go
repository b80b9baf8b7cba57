package mlp

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"go.uber.org/multierr"

	"github.com/born-ml/born-mnist/internal/autodiff"
	"github.com/born-ml/born-mnist/internal/nn"
	"github.com/born-ml/born-mnist/internal/tensor"
)

// State dict key prefixes.
const (
	hiddenPrefix = "hidden_layers"
	outputPrefix = "output"
)

// Network is the MLP. Layers are held as an explicit ordered list; sizes
// are always read back from the layers themselves.
//
// A Network is not safe for concurrent use.
type Network[B tensor.Backend] struct {
	hidden     []*nn.Linear[B]
	output     *nn.Linear[B]
	relu       *nn.ReLU[B]
	dropouts   []*nn.Dropout[B]
	logSoftmax *nn.LogSoftmax[B]
	backend    B
	training   bool
}

// New builds a network for cfg on backend. Weights are drawn from a
// generator seeded with cfg.Seed, so equal configs give equal networks.
// The network starts in training mode.
func New[B tensor.Backend](cfg Config, backend B) (*Network[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // weight init, not crypto
	sizes := cfg.Sizes()

	n := &Network[B]{
		relu:       nn.NewReLU[B](),
		logSoftmax: nn.NewLogSoftmax[B](),
		backend:    backend,
		training:   true,
	}
	for i := 0; i < len(sizes)-2; i++ {
		n.hidden = append(n.hidden, nn.NewLinear(sizes[i], sizes[i+1], rng, backend))
		n.dropouts = append(n.dropouts, nn.NewDropout[B](cfg.DropProb, rng))
	}
	n.output = nn.NewLinear(sizes[len(sizes)-2], sizes[len(sizes)-1], rng, backend)
	return n, nil
}

// Forward maps x of shape [batch, InputSize] to log-probabilities of shape
// [batch, OutputSize]. Each hidden layer is followed by ReLU and, in
// training mode, dropout. x is not modified.
func (n *Network[B]) Forward(x *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	if err := n.checkInput(x.Shape()); err != nil {
		return nil, err
	}

	h := x
	for i, layer := range n.hidden {
		h = layer.Forward(h)
		h = n.relu.Forward(h)
		h = n.dropouts[i].Forward(h)
	}
	return n.logSoftmax.Forward(n.output.Forward(h)), nil
}

func (n *Network[B]) checkInput(shape tensor.Shape) error {
	in := n.InputSize()
	if len(shape) == 2 && shape[1] == in && shape[0] > 0 {
		return nil
	}
	batch := 1
	if len(shape) > 0 {
		batch = shape[0]
	}
	return &nn.ShapeError{Name: "input", Want: tensor.Shape{batch, in}, Got: shape.Clone()}
}

// Predict returns per-class probabilities for each row of x. It runs in
// evaluation mode without recording gradients and restores the previous
// mode afterwards.
func (n *Network[B]) Predict(x *tensor.Tensor[float32, B]) ([][]float32, error) {
	defer autodiff.NoGrad(n.backend)()
	defer n.SetTraining(n.training)
	n.Eval()

	logProbs, err := n.Forward(x)
	if err != nil {
		return nil, err
	}

	batch := logProbs.Shape()[0]
	probs := make([][]float32, batch)
	for i := range probs {
		row := logProbs.Row(i)
		for j, v := range row {
			row[j] = float32(math.Exp(float64(v)))
		}
		probs[i] = row
	}
	return probs, nil
}

// Train enables dropout.
func (n *Network[B]) Train() {
	n.SetTraining(true)
}

// Eval disables dropout; the forward pass becomes deterministic.
func (n *Network[B]) Eval() {
	n.SetTraining(false)
}

// SetTraining sets the mode flag on the network and its dropout layers.
func (n *Network[B]) SetTraining(training bool) {
	n.training = training
	for _, d := range n.dropouts {
		d.SetTraining(training)
	}
}

// Training reports whether the network is in training mode.
func (n *Network[B]) Training() bool {
	return n.training
}

// Backend returns the backend the network computes on.
func (n *Network[B]) Backend() B {
	return n.backend
}

// InputSize returns the input dimension of the first layer.
func (n *Network[B]) InputSize() int {
	return n.hidden[0].InFeatures()
}

// OutputSize returns the output dimension of the last layer.
func (n *Network[B]) OutputSize() int {
	return n.output.OutFeatures()
}

// HiddenSizes returns the output dimension of each hidden layer.
func (n *Network[B]) HiddenSizes() []int {
	sizes := make([]int, len(n.hidden))
	for i, layer := range n.hidden {
		sizes[i] = layer.OutFeatures()
	}
	return sizes
}

// DropProb returns the dropout probability.
func (n *Network[B]) DropProb() float32 {
	return n.dropouts[0].P()
}

// Config returns the architecture of the network, read from its layers.
// Seed is not recoverable and is left zero.
func (n *Network[B]) Config() Config {
	return Config{
		InputSize:    n.InputSize(),
		OutputSize:   n.OutputSize(),
		HiddenLayers: n.HiddenSizes(),
		DropProb:     n.DropProb(),
	}
}

// Layer names a linear layer by its state dict prefix.
type Layer[B tensor.Backend] struct {
	Name   string
	Linear *nn.Linear[B]
}

// Layers returns every linear layer in order, the output layer last.
func (n *Network[B]) Layers() []Layer[B] {
	layers := make([]Layer[B], 0, len(n.hidden)+1)
	for i, l := range n.hidden {
		layers = append(layers, Layer[B]{Name: fmt.Sprintf("%s.%d", hiddenPrefix, i), Linear: l})
	}
	return append(layers, Layer[B]{Name: outputPrefix, Linear: n.output})
}

// Parameters returns all trainable parameters, layer by layer.
func (n *Network[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, l := range n.Layers() {
		params = append(params, l.Linear.Parameters()...)
	}
	return params
}

// NumParameters returns the number of scalar parameters.
func (n *Network[B]) NumParameters() int {
	total := 0
	for _, p := range n.Parameters() {
		total += p.NumElements()
	}
	return total
}

// StateDict returns the live parameter tensors keyed
// "hidden_layers.<i>.weight", "hidden_layers.<i>.bias", "output.weight"
// and "output.bias". Callers that keep the map across training steps must
// clone the tensors.
func (n *Network[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for _, l := range n.Layers() {
		for name, raw := range l.Linear.StateDict() {
			stateDict[l.Name+"."+name] = raw
		}
	}
	return stateDict
}

// LoadStateDict copies stateDict into the network. Every layer is checked
// first; missing or unexpected keys and each layer with mismatched shapes
// are reported together, and nothing is copied unless all of them pass.
// Shape problems match nn.ErrShapeMismatch.
func (n *Network[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	layers := n.Layers()
	perLayer := make(map[string]map[string]*tensor.RawTensor, len(layers))
	for _, l := range layers {
		perLayer[l.Name] = make(map[string]*tensor.RawTensor, 2)
	}

	var err error
	var unexpected []string
	for key, raw := range stateDict {
		i := strings.LastIndexByte(key, '.')
		if i < 0 {
			unexpected = append(unexpected, key)
			continue
		}
		sub, ok := perLayer[key[:i]]
		if !ok {
			unexpected = append(unexpected, key)
			continue
		}
		sub[key[i+1:]] = raw
	}
	sort.Strings(unexpected)
	for _, key := range unexpected {
		err = multierr.Append(err, fmt.Errorf("%w: %s", nn.ErrUnexpectedParameter, key))
	}

	for _, l := range layers {
		if layerErr := l.Linear.CheckStateDict(perLayer[l.Name]); layerErr != nil {
			err = multierr.Append(err, fmt.Errorf("layer %s (%d→%d): %w",
				l.Name, l.Linear.InFeatures(), l.Linear.OutFeatures(), layerErr))
		}
	}
	if err != nil {
		return err
	}

	for _, l := range layers {
		if err := l.Linear.LoadStateDict(perLayer[l.Name]); err != nil {
			return fmt.Errorf("layer %s: %w", l.Name, err)
		}
	}
	return nil
}
