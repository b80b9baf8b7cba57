package ops

import (
	"math"

	"github.com/born-ml/born-mnist/internal/tensor"
)

// NLLForward computes the mean negative log-likelihood of targets under
// row-wise log-probabilities: -(1/N) * sum_i logProbs[i, t_i].
func NLLForward(logProbs, targets *tensor.RawTensor) *tensor.RawTensor {
	batch, classes, labels := checkTargets("nll", logProbs.Shape(), targets)
	lp := logProbs.AsFloat32()

	var total float64
	for i, t := range labels {
		total -= float64(lp[i*classes+int(t)])
	}
	return scalar(float32(total/float64(batch)), logProbs.Device())
}

// NLLOp represents the mean negative log-likelihood loss.
//
// Backward pass: d/dlogProbs[i, t_i] = -g / N, zero elsewhere. Targets
// receive no gradient.
type NLLOp struct{ base }

// NewNLLOp creates a new NLLOp.
func NewNLLOp(logProbs, targets, output *tensor.RawTensor) *NLLOp {
	return &NLLOp{base{inputs: []*tensor.RawTensor{logProbs, targets}, output: output}}
}

// Backward computes the gradient with respect to the log-probabilities.
func (op *NLLOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	logProbs, targets := op.inputs[0], op.inputs[1]
	batch, classes, labels := checkTargets("nll", logProbs.Shape(), targets)
	scale := -outputGrad.AsFloat32()[0] / float32(batch)

	grad := tensor.MustNewRaw(logProbs.Shape(), tensor.Float32, logProbs.Device())
	dst := grad.AsFloat32()
	for i, t := range labels {
		dst[i*classes+int(t)] = scale
	}
	return []*tensor.RawTensor{grad, nil}
}

// CrossEntropyForward computes the mean cross-entropy of raw logits
// against class indices, using a numerically stable log-softmax.
func CrossEntropyForward(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	batch, classes, labels := checkTargets("cross_entropy", logits.Shape(), targets)
	z := logits.AsFloat32()

	var total float64
	for i, t := range labels {
		row := z[i*classes : (i+1)*classes]
		total += logSumExp(row) - float64(row[t])
	}
	return scalar(float32(total/float64(batch)), logits.Device())
}

// CrossEntropyOp represents fused log-softmax + NLL on raw logits.
//
// Backward pass: (softmax(logits) - onehot(targets)) * g / N.
type CrossEntropyOp struct{ base }

// NewCrossEntropyOp creates a new CrossEntropyOp.
func NewCrossEntropyOp(logits, targets, output *tensor.RawTensor) *CrossEntropyOp {
	return &CrossEntropyOp{base{inputs: []*tensor.RawTensor{logits, targets}, output: output}}
}

// Backward computes the gradient with respect to the logits.
func (op *CrossEntropyOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	logits, targets := op.inputs[0], op.inputs[1]
	batch, classes, labels := checkTargets("cross_entropy", logits.Shape(), targets)
	scale := outputGrad.AsFloat32()[0] / float32(batch)
	z := logits.AsFloat32()

	grad := tensor.MustNewRaw(logits.Shape(), tensor.Float32, logits.Device())
	dst := grad.AsFloat32()
	for i, t := range labels {
		row := z[i*classes : (i+1)*classes]
		lse := logSumExp(row)
		for c, v := range row {
			p := float32(math.Exp(float64(v) - lse))
			if c == int(t) {
				p--
			}
			dst[i*classes+c] = p * scale
		}
	}
	return []*tensor.RawTensor{grad, nil}
}

func logSumExp(z []float32) float64 {
	m := z[0]
	for _, v := range z[1:] {
		if v > m {
			m = v
		}
	}
	var sum float64
	for _, v := range z {
		sum += math.Exp(float64(v - m))
	}
	return float64(m) + math.Log(sum)
}
