package autodiff

import (
	"fmt"

	"github.com/born-ml/born-mnist/internal/tensor"
)

// BackwardCapable is a backend that exposes a gradient tape.
type BackwardCapable interface {
	tensor.Backend
	Tape() *GradientTape
}

// Backward seeds the tape with ones shaped like t (dt/dt = 1) and returns
// the gradient map. t is normally a scalar loss.
func Backward[T tensor.DType, B BackwardCapable](t *tensor.Tensor[T, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	tape := backend.Tape()
	if tape.NumOps() == 0 {
		panic("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}
	if t.DType() != tensor.Float32 {
		panic(fmt.Sprintf("backward: unsupported dtype %s", t.DType()))
	}

	seed := tensor.MustNewRaw(t.Shape(), tensor.Float32, backend.Device())
	data := seed.AsFloat32()
	for i := range data {
		data[i] = 1
	}
	return tape.Backward(seed, backend)
}

// NoGrad stops recording on backend's tape, if it has one, and returns a
// function that restores the previous recording state. Backends without
// a tape are left alone.
//
//	defer autodiff.NoGrad(backend)()
func NoGrad(backend any) (restore func()) {
	bc, ok := backend.(interface{ Tape() *GradientTape })
	if !ok {
		return func() {}
	}
	tape := bc.Tape()
	wasRecording := tape.IsRecording()
	tape.StopRecording()
	return func() {
		if wasRecording {
			tape.StartRecording()
		}
	}
}
