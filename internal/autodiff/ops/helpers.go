package ops

import (
	"fmt"

	"github.com/born-ml/born-mnist/internal/tensor"
)

// reduceBroadcast sums grad over the dimensions along which an operand of
// targetShape was broadcast in the forward pass.
//
//	Forward:  a[1,4] + b[3,4] -> c[3,4]
//	Backward: grad_c[3,4] -> grad_a[1,4] (sum over dim 0)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape) *tensor.RawTensor {
	gradShape := grad.Shape()
	if gradShape.Equal(targetShape) {
		return grad
	}
	if targetShape.NumElements() > gradShape.NumElements() {
		panic(fmt.Sprintf("reduceBroadcast: cannot reduce %v to %v", gradShape, targetShape))
	}

	result, err := tensor.NewRaw(targetShape, tensor.Float32, grad.Device())
	if err != nil {
		panic(fmt.Sprintf("reduceBroadcast: %v", err))
	}

	n := len(gradShape)
	offset := n - len(targetShape)
	targetStrides := targetShape.ComputeStrides()
	inStrides := make([]int, n)
	for i := offset; i < n; i++ {
		if targetShape[i-offset] != 1 {
			inStrides[i] = targetStrides[i-offset]
		}
	}
	gradStrides := gradShape.ComputeStrides()

	src, dst := grad.AsFloat32(), result.AsFloat32()
	for i, g := range src {
		idx, rem := 0, i
		for d := 0; d < n; d++ {
			coord := rem / gradStrides[d]
			rem %= gradStrides[d]
			idx += coord * inStrides[d]
		}
		dst[idx] += g
	}
	return result
}

// softmaxRows returns exp of a 2-D log-probability tensor's elements.
func softmaxRows(logProbs *tensor.RawTensor) []float32 {
	src := logProbs.AsFloat32()
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = exp32(v)
	}
	return out
}

func checkTargets(op string, shape tensor.Shape, targets *tensor.RawTensor) (batch, classes int, labels []int32) {
	if len(shape) != 2 {
		panic(fmt.Sprintf("%s: expected 2D input [batch, classes], got %v", op, shape))
	}
	batch, classes = shape[0], shape[1]
	if targets.DType() != tensor.Int32 {
		panic(fmt.Sprintf("%s: targets must be int32, got %s", op, targets.DType()))
	}
	labels = targets.AsInt32()
	if len(labels) != batch {
		panic(fmt.Sprintf("%s: expected %d targets, got %d", op, batch, len(labels)))
	}
	for i, t := range labels {
		if t < 0 || int(t) >= classes {
			panic(fmt.Sprintf("%s: target %d at index %d out of range [0, %d)", op, t, i, classes))
		}
	}
	return batch, classes, labels
}

func scalar(v float32, device tensor.Device) *tensor.RawTensor {
	r := tensor.MustNewRaw(tensor.Shape{}, tensor.Float32, device)
	r.AsFloat32()[0] = v
	return r
}
