package serialization

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/born-ml/born-mnist/internal/tensor"
)

// Validation limits for security and resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB - maximum header size
	MaxTensorCount   = 100_000           // Maximum number of tensors in a file
	MaxTensorNameLen = 4096              // Maximum tensor name length
)

// ValidateTensorOffsets checks for negative, overlapping and out-of-bounds
// tensor regions. Malformed files must never cause reads outside the data
// section.
func ValidateTensorOffsets(tensors []TensorMeta, dataSize int64) error {
	if len(tensors) > MaxTensorCount {
		return &ValidationError{
			Type:    TypeTooManyTensors,
			Details: fmt.Sprintf("got %d, max %d", len(tensors), MaxTensorCount),
		}
	}

	sorted := make([]TensorMeta, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	for i, t := range sorted {
		if t.Offset < 0 || t.Size < 0 {
			return &ValidationError{
				Type:    TypeNegativeOffset,
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset=%d, size=%d (negative values not allowed)", t.Offset, t.Size),
			}
		}

		if t.Offset+t.Size > dataSize || t.Offset+t.Size < t.Offset {
			return &ValidationError{
				Type:    TypeOutOfBounds,
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", t.Offset, t.Size, dataSize),
			}
		}

		if i < len(sorted)-1 {
			next := sorted[i+1]
			if t.Offset+t.Size > next.Offset {
				return &ValidationError{
					Type:    TypeOffsetOverlap,
					Tensor:  t.Name,
					Tensor2: next.Name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						t.Offset, t.Offset+t.Size, next.Offset, next.Offset+next.Size),
				}
			}
		}
	}

	return nil
}

// ValidateTensorName rejects empty, overlong and path-like names and names
// containing control characters.
func ValidateTensorName(name string) error {
	if name == "" {
		return &ValidationError{Type: TypeInvalidName, Details: "empty name"}
	}
	if len(name) > MaxTensorNameLen {
		return &ValidationError{
			Type:    TypeNameTooLong,
			Tensor:  name[:64] + "...",
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	}
	if strings.Contains(name, "..") {
		return &ValidationError{Type: TypeInvalidName, Tensor: name, Details: "contains '..'"}
	}
	if strings.ContainsAny(name, `/\`) {
		return &ValidationError{Type: TypeInvalidName, Tensor: name, Details: "contains path separator (/ or \\)"}
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return &ValidationError{Type: TypeInvalidName, Tensor: name, Details: "contains control character"}
	}
	return nil
}

// ValidateTensorMeta checks that the dtype is known, the shape is valid and
// the byte size matches shape and dtype.
func ValidateTensorMeta(meta TensorMeta) error {
	dtype, ok := tensor.ParseDataType(meta.DType)
	if !ok {
		return &ValidationError{Type: TypeInvalidTensor, Tensor: meta.Name, Details: fmt.Sprintf("unsupported dtype %q", meta.DType)}
	}
	shape := tensor.Shape(meta.Shape)
	if err := shape.Validate(); err != nil {
		return &ValidationError{Type: TypeInvalidTensor, Tensor: meta.Name, Details: err.Error()}
	}
	if want := int64(shape.NumElements() * dtype.Size()); want != meta.Size {
		return &ValidationError{
			Type:    TypeInvalidTensor,
			Tensor:  meta.Name,
			Details: fmt.Sprintf("size %d does not match %s %v (%d bytes)", meta.Size, meta.DType, meta.Shape, want),
		}
	}
	return nil
}

// ValidateHeader validates every tensor entry of h against a data section
// of dataSize bytes. Duplicate names are rejected.
func ValidateHeader(h *Header, dataSize int64) error {
	if len(h.StateDict) > MaxTensorCount {
		return &ValidationError{
			Type:    TypeTooManyTensors,
			Details: fmt.Sprintf("got %d, max %d", len(h.StateDict), MaxTensorCount),
		}
	}

	seen := make(map[string]struct{}, len(h.StateDict))
	for _, t := range h.StateDict {
		if err := ValidateTensorName(t.Name); err != nil {
			return err
		}
		if _, dup := seen[t.Name]; dup {
			return &ValidationError{Type: TypeInvalidName, Tensor: t.Name, Details: "duplicate name"}
		}
		seen[t.Name] = struct{}{}
		if err := ValidateTensorMeta(t); err != nil {
			return err
		}
	}

	return ValidateTensorOffsets(h.StateDict, dataSize)
}
