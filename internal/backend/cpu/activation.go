package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/born-mnist/internal/parallel"
	"github.com/born-ml/born-mnist/internal/tensor"
)

// ReLU applies max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("relu", x)
	result := cpu.alloc("relu", x.Shape())
	src, dst := x.AsFloat32(), result.AsFloat32()
	for i, v := range src {
		if v > 0 {
			dst[i] = v
		}
	}
	return result
}

// Exp applies e^x element-wise.
func (cpu *CPUBackend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("exp", x)
	result := cpu.alloc("exp", x.Shape())
	src, dst := x.AsFloat32(), result.AsFloat32()
	for i, v := range src {
		dst[i] = float32(math.Exp(float64(v)))
	}
	return result
}

// LogSoftmax computes log(softmax(x)) along the last dimension of a 2-D
// tensor. The row maximum is subtracted before exponentiation.
func (cpu *CPUBackend) LogSoftmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	requireFloat32("logsoftmax", x)
	shape := x.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("logsoftmax: expected 2D input, got shape %v", shape))
	}
	if dim < 0 {
		dim += len(shape)
	}
	if dim != 1 {
		panic(fmt.Sprintf("logsoftmax: only the last dimension is supported, got %d", dim))
	}

	rows, cols := shape[0], shape[1]
	result := cpu.alloc("logsoftmax", shape)
	src, dst := x.AsFloat32(), result.AsFloat32()

	parallel.ForRange(rows, func(start, end int) {
		for r := start; r < end; r++ {
			LogSoftmaxRow(dst[r*cols:(r+1)*cols], src[r*cols:(r+1)*cols])
		}
	}, cpu.parallel)
	return result
}

// LogSoftmaxRow writes log(softmax(z)) into dst. The sum is accumulated in
// float64 to keep rows normalized to within float32 rounding.
func LogSoftmaxRow(dst, z []float32) {
	maxZ := z[0]
	for _, v := range z[1:] {
		if v > maxZ {
			maxZ = v
		}
	}

	var sum float64
	for _, v := range z {
		sum += math.Exp(float64(v - maxZ))
	}
	logSumExp := maxZ + float32(math.Log(sum))

	for i, v := range z {
		dst[i] = v - logSumExp
	}
}
