// Package dataset loads MNIST and Fashion-MNIST from IDX files, downloads
// them, and serves shuffled mini-batches.
package dataset

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// Image geometry and class count shared by both datasets.
const (
	ImageRows  = 28
	ImageCols  = 28
	ImageSize  = ImageRows * ImageCols
	NumClasses = 10
)

// Kind selects a dataset.
type Kind string

// Supported datasets.
const (
	MNIST        Kind = "mnist"
	FashionMNIST Kind = "fashion-mnist"
)

// Split selects the training or test portion of a dataset.
type Split string

// Dataset splits.
const (
	Train Split = "train"
	Test  Split = "test"
)

// ErrUnknownKind is returned by ParseKind.
var ErrUnknownKind = errors.New("unknown dataset")

var (
	mnistClasses   = []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}
	fashionClasses = []string{
		"T-shirt/top", "Trouser", "Pullover", "Dress", "Coat",
		"Sandal", "Shirt", "Sneaker", "Bag", "Ankle boot",
	}
)

// ParseKind accepts "mnist" and "fashion-mnist" (also "fashion_mnist" and
// "fashion"), case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mnist":
		return MNIST, nil
	case "fashion-mnist", "fashion_mnist", "fashionmnist", "fashion":
		return FashionMNIST, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// ClassNames returns the label names of the dataset, indexed by label.
func (k Kind) ClassNames() []string {
	if k == FashionMNIST {
		return append([]string(nil), fashionClasses...)
	}
	return append([]string(nil), mnistClasses...)
}

// Files returns the archive names for split: images first, then labels.
func (k Kind) Files(split Split) (images, labels string) {
	prefix := "train"
	if split == Test {
		prefix = "t10k"
	}
	return prefix + "-images-idx3-ubyte.gz", prefix + "-labels-idx1-ubyte.gz"
}

// AllFiles returns all four archive names of the dataset.
func (k Kind) AllFiles() []string {
	trainImages, trainLabels := k.Files(Train)
	testImages, testLabels := k.Files(Test)
	return []string{trainImages, trainLabels, testImages, testLabels}
}

// Dataset is an in-memory set of flattened images with integer labels.
type Dataset struct {
	Images [][]float32
	Labels []int32
	Rows   int
	Cols   int
}

// Len returns the number of examples.
func (d *Dataset) Len() int {
	return len(d.Labels)
}

// Dim returns the flattened image length.
func (d *Dataset) Dim() int {
	return d.Rows * d.Cols
}

// Validate checks that images and labels pair up, every image has Dim
// values and every label is in [0, numClasses).
func (d *Dataset) Validate(numClasses int) error {
	if len(d.Images) != len(d.Labels) {
		return fmt.Errorf("image count (%d) != label count (%d)", len(d.Images), len(d.Labels))
	}
	for i, img := range d.Images {
		if len(img) != d.Dim() {
			return fmt.Errorf("image %d has %d values, want %d", i, len(img), d.Dim())
		}
	}
	for i, l := range d.Labels {
		if l < 0 || int(l) >= numClasses {
			return fmt.Errorf("label %d out of range [0, %d): %d", i, numClasses, l)
		}
	}
	return nil
}

// Subset returns the first n examples, or d itself when n <= 0 or
// n >= Len. Image slices are shared.
func (d *Dataset) Subset(n int) *Dataset {
	if n <= 0 || n >= d.Len() {
		return d
	}
	return &Dataset{Images: d.Images[:n], Labels: d.Labels[:n], Rows: d.Rows, Cols: d.Cols}
}

// Split shuffles the examples with seed and holds out frac of them as a
// validation set. frac must be in (0, 1) and leave both parts non-empty.
func (d *Dataset) Split(frac float64, seed int64) (train, val *Dataset, err error) {
	if frac <= 0 || frac >= 1 {
		return nil, nil, fmt.Errorf("validation fraction must be in (0, 1), got %v", frac)
	}
	nVal := int(float64(d.Len()) * frac)
	if nVal == 0 || nVal == d.Len() {
		return nil, nil, fmt.Errorf("cannot split %d examples with fraction %v", d.Len(), frac)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(d.Len()) //nolint:gosec // data shuffling
	pick := func(idx []int) *Dataset {
		out := &Dataset{
			Images: make([][]float32, len(idx)),
			Labels: make([]int32, len(idx)),
			Rows:   d.Rows,
			Cols:   d.Cols,
		}
		for i, j := range idx {
			out.Images[i] = d.Images[j]
			out.Labels[i] = d.Labels[j]
		}
		return out
	}
	return pick(perm[nVal:]), pick(perm[:nVal]), nil
}

// ClassCounts returns how many examples carry each label in
// [0, numClasses). Out-of-range labels are ignored.
func (d *Dataset) ClassCounts(numClasses int) []int {
	counts := make([]int, numClasses)
	for _, l := range d.Labels {
		if l >= 0 && int(l) < numClasses {
			counts[l]++
		}
	}
	return counts
}

// Synthetic returns n all-zero images of length dim, every one labeled
// label, laid out as a single row.
func Synthetic(n, dim int, label int32) *Dataset {
	d := &Dataset{
		Images: make([][]float32, n),
		Labels: make([]int32, n),
		Rows:   1,
		Cols:   dim,
	}
	for i := range d.Images {
		d.Images[i] = make([]float32, dim)
		d.Labels[i] = label
	}
	return d
}

// Patterns returns a small separable dataset: for each of numClasses
// labels, copies of a 28x28 image with a bright horizontal band whose
// position depends on the label.
func Patterns(perClass, numClasses int) *Dataset {
	d := &Dataset{Rows: ImageRows, Cols: ImageCols}
	for c := 0; c < numClasses; c++ {
		img := make([]float32, ImageSize)
		start := (c * 2) % (ImageRows - 8)
		for row := start; row < start+8; row++ {
			for col := 5; col < 23; col++ {
				img[row*ImageCols+col] = 0.8
			}
		}
		for i := 0; i < perClass; i++ {
			d.Images = append(d.Images, img)
			d.Labels = append(d.Labels, int32(c))
		}
	}
	return d
}
