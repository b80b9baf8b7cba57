package nn

import (
	"fmt"

	"github.com/born-ml/born-mnist/internal/tensor"
)

// Argmax returns the index of the largest value in row. Ties resolve to
// the lowest index; an empty row returns -1.
func Argmax(row []float32) int {
	if len(row) == 0 {
		return -1
	}
	best := 0
	for i, v := range row[1:] {
		if v > row[best] {
			best = i + 1
		}
	}
	return best
}

// CountCorrect returns how many rows of scores ([batch, classes]) have
// their maximum at the matching label.
func CountCorrect[B tensor.Backend](scores *tensor.Tensor[float32, B], targets []int32) int {
	shape := scores.Shape()
	classes := shape[len(shape)-1]
	data := scores.Data()

	correct := 0
	for i, label := range targets {
		if Argmax(data[i*classes:(i+1)*classes]) == int(label) {
			correct++
		}
	}
	return correct
}

// Accuracy returns the fraction of rows of scores predicted correctly.
// Scores may be logits, probabilities or log-probabilities.
func Accuracy[B tensor.Backend](scores *tensor.Tensor[float32, B], targets []int32) float32 {
	if len(targets) == 0 {
		return 0
	}
	return float32(CountCorrect(scores, targets)) / float32(len(targets))
}

// ValidateTargets checks that there is one label per row and that every
// label lies in [0, classes).
func ValidateTargets(targets []int32, batch, classes int) error {
	if len(targets) != batch {
		return fmt.Errorf("%w: %d targets for batch of %d", ErrShapeMismatch, len(targets), batch)
	}
	for i, label := range targets {
		if label < 0 || int(label) >= classes {
			return fmt.Errorf("target %d: label %d out of range [0, %d)", i, label, classes)
		}
	}
	return nil
}
