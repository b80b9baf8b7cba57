package serialization

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
	ErrOffsetOverlap      = errors.New("tensor offsets overlap")
	ErrOutOfBounds        = errors.New("tensor extends beyond data section")
	ErrNegativeOffset     = errors.New("negative offset or size")
	ErrTooManyTensors     = errors.New("too many tensors in file")
	ErrTensorNameTooLong  = errors.New("tensor name too long")
	ErrInvalidTensorName  = errors.New("invalid tensor name")
	ErrInvalidTensor      = errors.New("invalid tensor metadata")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrTruncated          = errors.New("file is truncated")
	ErrTensorNotFound     = errors.New("tensor not found")
)

// Validation error types.
const (
	TypeTooManyTensors = "too_many_tensors"
	TypeNameTooLong    = "name_too_long"
	TypeInvalidName    = "invalid_name"
	TypeInvalidTensor  = "invalid_tensor"
	TypeNegativeOffset = "negative_offset"
	TypeOutOfBounds    = "out_of_bounds"
	TypeOffsetOverlap  = "offset_overlap"
)

var validationSentinels = map[string]error{
	TypeTooManyTensors: ErrTooManyTensors,
	TypeNameTooLong:    ErrTensorNameTooLong,
	TypeInvalidName:    ErrInvalidTensorName,
	TypeInvalidTensor:  ErrInvalidTensor,
	TypeNegativeOffset: ErrNegativeOffset,
	TypeOutOfBounds:    ErrOutOfBounds,
	TypeOffsetOverlap:  ErrOffsetOverlap,
}

// ValidationError provides detailed information about validation failures.
// It matches the sentinel for its Type with errors.Is.
type ValidationError struct {
	Type    string // Type of error (e.g., "offset_overlap", "out_of_bounds")
	Tensor  string // Primary tensor name involved
	Tensor2 string // Secondary tensor name (for overlap errors)
	Details string // Additional details
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Tensor2 != "" {
		return fmt.Sprintf("%s: tensors %q and %q: %s", e.Type, e.Tensor, e.Tensor2, e.Details)
	}
	if e.Tensor != "" {
		return fmt.Sprintf("%s: tensor %q: %s", e.Type, e.Tensor, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}

// Unwrap returns the sentinel error for e.Type, or nil.
func (e *ValidationError) Unwrap() error {
	return validationSentinels[e.Type]
}
