package dataset

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/born-ml/born-mnist/internal/tensor"
)

// ErrRaggedBatch is returned when the images of a batch differ in length.
var ErrRaggedBatch = errors.New("images in batch differ in length")

// Batch is one mini-batch. Slices are shared with the dataset.
type Batch struct {
	Images [][]float32
	Labels []int32
}

// Len returns the number of examples in the batch.
func (b Batch) Len() int {
	return len(b.Labels)
}

// Tensors packs the batch into an image tensor of shape [n, dim] and a
// label tensor of shape [n].
func Tensors[B tensor.Backend](b Batch, backend B) (*tensor.Tensor[float32, B], *tensor.Tensor[int32, B], error) {
	n := b.Len()
	if n == 0 || len(b.Images) != n {
		return nil, nil, fmt.Errorf("batch has %d images and %d labels", len(b.Images), n)
	}
	dim := len(b.Images[0])
	if dim == 0 {
		return nil, nil, fmt.Errorf("%w: empty image", ErrRaggedBatch)
	}

	x := tensor.Zeros[float32](tensor.Shape{n, dim}, backend)
	data := x.Data()
	for i, img := range b.Images {
		if len(img) != dim {
			return nil, nil, fmt.Errorf("%w: image %d has %d values, image 0 has %d", ErrRaggedBatch, i, len(img), dim)
		}
		copy(data[i*dim:], img)
	}

	y, err := tensor.FromSlice(b.Labels, tensor.Shape{n}, backend)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	BatchSize int
	Shuffle   bool
	Seed      int64
	DropLast  bool // drop the final batch when it is smaller than BatchSize
}

// Loader serves a dataset in mini-batches. It is restartable: Reset
// starts a new pass, reshuffling when configured to.
type Loader struct {
	ds    *Dataset
	cfg   LoaderConfig
	rng   *rand.Rand
	order []int
	pos   int
}

// NewLoader returns a Loader positioned at the start of its first pass.
func NewLoader(ds *Dataset, cfg LoaderConfig) (*Loader, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if len(ds.Images) != len(ds.Labels) {
		return nil, fmt.Errorf("image count (%d) != label count (%d)", len(ds.Images), len(ds.Labels))
	}
	l := &Loader{
		ds:    ds,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)), //nolint:gosec // data shuffling
		order: make([]int, ds.Len()),
	}
	l.Reset()
	return l, nil
}

// Reset starts a new pass over the dataset.
func (l *Loader) Reset() {
	for i := range l.order {
		l.order[i] = i
	}
	if l.cfg.Shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
	l.pos = 0
}

// Next returns the next batch of the current pass, or false when the pass
// is exhausted.
func (l *Loader) Next() (Batch, bool) {
	remaining := len(l.order) - l.pos
	if remaining <= 0 || (l.cfg.DropLast && remaining < l.cfg.BatchSize) {
		return Batch{}, false
	}

	n := min(l.cfg.BatchSize, remaining)
	b := Batch{
		Images: make([][]float32, n),
		Labels: make([]int32, n),
	}
	for i, idx := range l.order[l.pos : l.pos+n] {
		b.Images[i] = l.ds.Images[idx]
		b.Labels[i] = l.ds.Labels[idx]
	}
	l.pos += n
	return b, true
}

// NumBatches returns the number of batches in one pass.
func (l *Loader) NumBatches() int {
	n := l.ds.Len()
	if l.cfg.DropLast {
		return n / l.cfg.BatchSize
	}
	return (n + l.cfg.BatchSize - 1) / l.cfg.BatchSize
}

// BatchSize returns the configured batch size.
func (l *Loader) BatchSize() int {
	return l.cfg.BatchSize
}

// Dataset returns the underlying dataset.
func (l *Loader) Dataset() *Dataset {
	return l.ds
}
