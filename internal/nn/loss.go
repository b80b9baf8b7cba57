package nn

import (
	"github.com/born-ml/born-mnist/internal/autodiff/ops"
	"github.com/born-ml/born-mnist/internal/tensor"
)

// NLLBackend is implemented by backends that compute negative
// log-likelihood loss themselves, recording it for backpropagation.
type NLLBackend interface {
	NLLLoss(logProbs, targets *tensor.RawTensor) *tensor.RawTensor
}

// CrossEntropyBackend is implemented by backends that compute fused
// log-softmax + NLL loss.
type CrossEntropyBackend interface {
	CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor
}

// NLLLoss computes the mean negative log-likelihood of int32 class targets
// under log-probabilities of shape [batch, classes]. The result is a
// scalar tensor.
//
// Backends without NLL support get a forward-only result. Targets must be
// validated with ValidateTargets first; out-of-range labels panic.
func NLLLoss[B tensor.Backend](logProbs *tensor.Tensor[float32, B], targets *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	backend := logProbs.Backend()
	if nb, ok := any(backend).(NLLBackend); ok {
		return tensor.New[float32](nb.NLLLoss(logProbs.Raw(), targets.Raw()), backend)
	}
	return tensor.New[float32](ops.NLLForward(logProbs.Raw(), targets.Raw()), backend)
}

// CrossEntropyLoss computes mean cross-entropy between raw logits of shape
// [batch, classes] and int32 class targets. It is equivalent to
// NLLLoss(LogSoftmax(logits)) but numerically fused.
func CrossEntropyLoss[B tensor.Backend](logits *tensor.Tensor[float32, B], targets *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	backend := logits.Backend()
	if cb, ok := any(backend).(CrossEntropyBackend); ok {
		return tensor.New[float32](cb.CrossEntropy(logits.Raw(), targets.Raw()), backend)
	}
	return tensor.New[float32](ops.CrossEntropyForward(logits.Raw(), targets.Raw()), backend)
}
