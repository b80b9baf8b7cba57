package tensor

import "testing"

func TestNewRawZeroFilled(t *testing.T) {
	raw, err := NewRaw(Shape{3, 2}, Float32, CPU)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	if raw.ByteSize() != 24 {
		t.Errorf("ByteSize = %d, want 24", raw.ByteSize())
	}
	for _, v := range raw.AsFloat32() {
		if v != 0 {
			t.Fatal("NewRaw should zero-fill")
		}
	}
}

func TestNewRawInvalidShape(t *testing.T) {
	if _, err := NewRaw(Shape{0, 2}, Float32, CPU); err == nil {
		t.Error("expected error for zero dimension")
	}
}

func TestRawTensorAsInt32ZeroCopy(t *testing.T) {
	raw, _ := NewRaw(Shape{4}, Int32, CPU)
	raw.AsInt32()[2] = 7
	if raw.AsInt32()[2] != 7 {
		t.Error("AsInt32 should return a zero-copy slice")
	}
}

func TestRawTensorWrongDTypePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	raw, _ := NewRaw(Shape{2}, Int32, CPU)
	_ = raw.AsFloat32()
}

func TestRawTensorCopyFrom(t *testing.T) {
	dst, _ := NewRaw(Shape{2, 2}, Float32, CPU)
	src, _ := NewRaw(Shape{2, 2}, Float32, CPU)
	copy(src.AsFloat32(), []float32{1, 2, 3, 4})

	if err := dst.CopyFrom(src); err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}
	assertEqualFloat32(t, 4, dst.AsFloat32()[3], "copied value")

	wrong, _ := NewRaw(Shape{4}, Float32, CPU)
	if err := dst.CopyFrom(wrong); err == nil {
		t.Error("expected shape mismatch error")
	}
}

func TestRawTensorWithShapeSharesBuffer(t *testing.T) {
	raw, _ := NewRaw(Shape{2, 3}, Float32, CPU)
	view, err := raw.WithShape(Shape{6})
	if err != nil {
		t.Fatalf("WithShape: %v", err)
	}
	view.AsFloat32()[5] = 9
	assertEqualFloat32(t, 9, raw.AsFloat32()[5], "shared buffer")

	if _, err := raw.WithShape(Shape{4}); err == nil {
		t.Error("expected element count error")
	}
}

func TestFromBytes(t *testing.T) {
	src, _ := NewRaw(Shape{2}, Float32, CPU)
	copy(src.AsFloat32(), []float32{1.5, -2})

	raw, err := FromBytes(src.Data(), Shape{2}, Float32, CPU)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	assertEqualFloat32(t, -2, raw.AsFloat32()[1], "decoded value")

	if _, err := FromBytes(src.Data()[:4], Shape{2}, Float32, CPU); err == nil {
		t.Error("expected length error")
	}
}
