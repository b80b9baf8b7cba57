package tensor

// Backend defines the operations a compute backend provides.
//
// Binary element-wise operations broadcast with NumPy rules. Operations
// always allocate their result; inputs are never modified, which lets the
// autodiff tape keep references to them for the backward pass.
type Backend interface {
	// Element-wise binary operations
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor

	// MulScalar multiplies every element by s.
	MulScalar(x *RawTensor, s float32) *RawTensor

	// MatMul multiplies 2-D matrices: [M, K] @ [K, N] -> [M, N].
	MatMul(a, b *RawTensor) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor

	// Activations
	ReLU(x *RawTensor) *RawTensor
	LogSoftmax(x *RawTensor, dim int) *RawTensor
	Exp(x *RawTensor) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
