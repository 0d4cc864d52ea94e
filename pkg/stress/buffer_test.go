package stress

import (
	"errors"
	"testing"
	"unsafe"
)

func TestNewWorkerContext_Sizes(t *testing.T) {
	for _, width := range []int{16, 32, 64} {
		wc, err := NewWorkerContext(BatchChunks, width, 10)
		if err != nil {
			t.Fatalf("NewWorkerContext(%d, %d) error: %v", BatchChunks, width, err)
		}
		want := BatchChunks * width
		x, y, z, out := wc.BufferBytes()
		for name, got := range map[string]int{"x": x, "y": y, "z": z, "out": out} {
			if got != want {
				t.Errorf("width %d: %s buffer = %d bytes, want %d", width, name, got, want)
			}
			if got%width != 0 {
				t.Errorf("width %d: %s buffer %d bytes is not a multiple of the width", width, name, got)
			}
		}
		if len(wc.X()) != want || len(wc.Y()) != want {
			t.Errorf("width %d: byte views = %d/%d elements, want %d", width, len(wc.X()), len(wc.Y()), want)
		}
		if len(wc.Z()) != want/4 || len(wc.Out()) != want/4 {
			t.Errorf("width %d: int32 views = %d/%d elements, want %d", width, len(wc.Z()), len(wc.Out()), want/4)
		}
	}
}

func TestNewWorkerContext_AlignedAndZeroed(t *testing.T) {
	wc, err := NewWorkerContext(BatchChunks, 64, 0)
	if err != nil {
		t.Fatal(err)
	}
	for name, b := range map[string][]byte{"x": wc.x, "y": wc.y, "z": wc.z, "out": wc.out} {
		if p := uintptr(unsafe.Pointer(&b[0])); p%64 != 0 {
			t.Errorf("%s buffer at %#x is not 64-byte aligned", name, p)
		}
		for i, v := range b {
			if v != 0 {
				t.Fatalf("%s[%d] = %d, want 0", name, i, v)
			}
		}
	}
}

func TestNewWorkerContext_InvalidGeometry(t *testing.T) {
	tests := []struct {
		name        string
		iterations  int
		vectorBytes int
	}{
		{"zero iterations", 0, 64},
		{"short batch", BatchChunks - 1, 64},
		{"zero width", BatchChunks, 0},
		{"width not multiple of 8", BatchChunks, 12},
		{"negative width", BatchChunks, -64},
		{"overflow", int(^uint(0) >> 2), 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWorkerContext(tt.iterations, tt.vectorBytes, 0)
			if !errors.Is(err, ErrInvalidGeometry) {
				t.Errorf("NewWorkerContext(%d, %d) error = %v, want ErrInvalidGeometry", tt.iterations, tt.vectorBytes, err)
			}
		})
	}
}

func TestWorkerContext_ViewsShareMemory(t *testing.T) {
	wc, err := NewWorkerContext(BatchChunks, 32, 0)
	if err != nil {
		t.Fatal(err)
	}
	wc.Z()[1] = -1
	if wc.z64[0] != 0xffffffff00000000 {
		t.Errorf("z64[0] = %#x after Z()[1] = -1, want 0xffffffff00000000", wc.z64[0])
	}
	wc.out64[2] = 7
	if got := wc.Out()[4]; got != 7 {
		t.Errorf("Out()[4] = %d after out64[2] = 7, want 7", got)
	}
}
