package nn

import (
	"errors"
	"fmt"

	"github.com/born-ml/born-mnist/internal/tensor"
)

// Sentinel errors for shape and state dict validation.
var (
	ErrShapeMismatch       = errors.New("shape mismatch")
	ErrMissingParameter    = errors.New("missing parameter")
	ErrUnexpectedParameter = errors.New("unexpected parameter")
)

// ShapeError reports a tensor whose shape differs from the one a layer
// expects. It matches ErrShapeMismatch with errors.Is.
type ShapeError struct {
	Name string
	Want tensor.Shape
	Got  tensor.Shape
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %v: expected %v, got %v", e.Name, ErrShapeMismatch, e.Want, e.Got)
}

// Unwrap returns ErrShapeMismatch.
func (e *ShapeError) Unwrap() error {
	return ErrShapeMismatch
}
