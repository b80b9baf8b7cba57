package cpu

import (
	"fmt"

	"github.com/born-ml/born-mnist/internal/tensor"
)

// Reshape returns a copy of t with a new shape of equal element count.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if newShape.NumElements() != t.NumElements() {
		panic(fmt.Sprintf("reshape: cannot reshape %v (%d elements) to %v (%d elements)",
			t.Shape(), t.NumElements(), newShape, newShape.NumElements()))
	}
	result, err := tensor.NewRaw(newShape, t.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	copy(result.Data(), t.Data())
	return result
}

// Transpose permutes the dimensions of a 2-D tensor. With no axes, or axes
// (1, 0), rows and columns are swapped; (0, 1) is a copy.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	requireFloat32("transpose", t)
	shape := t.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("transpose: only 2D tensors supported, got shape %v", shape))
	}

	switch {
	case len(axes) == 0, len(axes) == 2 && axes[0] == 1 && axes[1] == 0:
	case len(axes) == 2 && axes[0] == 0 && axes[1] == 1:
		return t.Clone()
	default:
		panic(fmt.Sprintf("transpose: invalid axes %v for 2D tensor", axes))
	}

	rows, cols := shape[0], shape[1]
	result := cpu.alloc("transpose", tensor.Shape{cols, rows})
	src, dst := t.AsFloat32(), result.AsFloat32()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dst[j*rows+i] = src[i*cols+j]
		}
	}
	return result
}
