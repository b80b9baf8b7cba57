package tensor

import (
	"math"
	"testing"
)

func assertEqualFloat32(t *testing.T, expected, actual float32, msg string) {
	t.Helper()
	if math.Abs(float64(expected-actual)) > 1e-6 {
		t.Errorf("%s: expected %v, got %v", msg, expected, actual)
	}
}

func assertEqualShape(t *testing.T, expected, actual Shape, msg string) {
	t.Helper()
	if !expected.Equal(actual) {
		t.Errorf("%s: expected shape %v, got %v", msg, expected, actual)
	}
}

// stubBackend satisfies Backend for tests that only exercise creation and
// data access.
type stubBackend struct{}

func (stubBackend) Add(_, _ *RawTensor) *RawTensor          { panic("not implemented") }
func (stubBackend) Sub(_, _ *RawTensor) *RawTensor          { panic("not implemented") }
func (stubBackend) Mul(_, _ *RawTensor) *RawTensor          { panic("not implemented") }
func (stubBackend) MulScalar(_ *RawTensor, _ float32) *RawTensor {
	panic("not implemented")
}
func (stubBackend) MatMul(_, _ *RawTensor) *RawTensor           { panic("not implemented") }
func (stubBackend) Reshape(_ *RawTensor, _ Shape) *RawTensor    { panic("not implemented") }
func (stubBackend) Transpose(_ *RawTensor, _ ...int) *RawTensor { panic("not implemented") }
func (stubBackend) ReLU(_ *RawTensor) *RawTensor                { panic("not implemented") }
func (stubBackend) LogSoftmax(_ *RawTensor, _ int) *RawTensor   { panic("not implemented") }
func (stubBackend) Exp(_ *RawTensor) *RawTensor                 { panic("not implemented") }
func (stubBackend) Name() string                                { return "stub" }
func (stubBackend) Device() Device                              { return CPU }

func TestDataTypeSize(t *testing.T) {
	tests := []struct {
		dtype DataType
		size  int
	}{
		{Float32, 4},
		{Int32, 4},
	}

	for _, tt := range tests {
		if got := tt.dtype.Size(); got != tt.size {
			t.Errorf("%s.Size() = %d, want %d", tt.dtype, got, tt.size)
		}
	}
}

func TestParseDataType(t *testing.T) {
	for _, dt := range []DataType{Float32, Int32} {
		got, ok := ParseDataType(dt.String())
		if !ok || got != dt {
			t.Errorf("ParseDataType(%q) = %v, %v", dt.String(), got, ok)
		}
	}
	if _, ok := ParseDataType("complex64"); ok {
		t.Error("ParseDataType should reject unknown names")
	}
}

func TestShapeNumElements(t *testing.T) {
	tests := []struct {
		shape Shape
		want  int
	}{
		{Shape{}, 1},
		{Shape{5}, 5},
		{Shape{3, 4}, 12},
		{Shape{2, 3, 4}, 24},
	}
	for _, tt := range tests {
		if got := tt.shape.NumElements(); got != tt.want {
			t.Errorf("%v.NumElements() = %d, want %d", tt.shape, got, tt.want)
		}
	}
}

func TestShapeValidate(t *testing.T) {
	if err := (Shape{2, 3}).Validate(); err != nil {
		t.Errorf("valid shape rejected: %v", err)
	}
	if err := (Shape{2, 0}).Validate(); err == nil {
		t.Error("zero dimension accepted")
	}
	if err := (Shape{-1}).Validate(); err == nil {
		t.Error("negative dimension accepted")
	}
}

func TestComputeStrides(t *testing.T) {
	strides := Shape{2, 3, 4}.ComputeStrides()
	want := []int{12, 4, 1}
	for i := range want {
		if strides[i] != want[i] {
			t.Errorf("stride[%d] = %d, want %d", i, strides[i], want[i])
		}
	}
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Shape
		want      Shape
		broadcast bool
		wantErr   bool
	}{
		{"same", Shape{3, 5}, Shape{3, 5}, Shape{3, 5}, false, false},
		{"column", Shape{3, 1}, Shape{3, 5}, Shape{3, 5}, true, false},
		{"row", Shape{1, 5}, Shape{3, 5}, Shape{3, 5}, true, false},
		{"rank", Shape{5}, Shape{3, 5}, Shape{3, 5}, true, false},
		{"scalar", Shape{}, Shape{2, 2}, Shape{2, 2}, true, false},
		{"incompatible", Shape{3, 4}, Shape{3, 5}, nil, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, broadcast, err := BroadcastShapes(tt.a, tt.b)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assertEqualShape(t, tt.want, got, "broadcast shape")
			if broadcast != tt.broadcast {
				t.Errorf("broadcast flag = %v, want %v", broadcast, tt.broadcast)
			}
		})
	}
}

func TestFromSlice(t *testing.T) {
	x, err := FromSlice([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3}, stubBackend{})
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	assertEqualShape(t, Shape{2, 3}, x.Shape(), "shape")
	assertEqualFloat32(t, 6, x.At(1, 2), "At(1, 2)")
	assertEqualFloat32(t, 4, x.Row(1)[0], "Row(1)[0]")

	if _, err := FromSlice([]float32{1, 2, 3}, Shape{2, 2}, stubBackend{}); err == nil {
		t.Error("expected element count error")
	}
}

func TestCreation(t *testing.T) {
	z := Zeros[float32](Shape{2, 2}, stubBackend{})
	for _, v := range z.Data() {
		assertEqualFloat32(t, 0, v, "Zeros")
	}

	o := Ones[int32](Shape{3}, stubBackend{})
	for _, v := range o.Data() {
		if v != 1 {
			t.Errorf("Ones[int32] element = %d, want 1", v)
		}
	}

	f := Full[float32](Shape{2}, 2.5, stubBackend{})
	assertEqualFloat32(t, 2.5, f.Data()[1], "Full")
}

func TestCloneIsDeep(t *testing.T) {
	x, _ := FromSlice([]float32{1, 2}, Shape{2}, stubBackend{})
	c := x.Clone()
	c.Data()[0] = 42
	assertEqualFloat32(t, 1, x.Data()[0], "original after clone write")

	d := x.Detach()
	if d.Raw() == x.Raw() {
		t.Error("Detach should not share the RawTensor")
	}
}

func TestItemPanicsOnMultiElement(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	x := Zeros[float32](Shape{2}, stubBackend{})
	_ = x.Item()
}
