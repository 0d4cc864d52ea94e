package stress

import (
	"errors"
	"fmt"
	"math"
	"unsafe"
)

// BatchChunks is the number of vector chunks every kernel call processes.
const BatchChunks = 256

// ErrInvalidGeometry is returned when buffers cannot be laid out for the
// requested iteration count and vector width.
var ErrInvalidGeometry = errors.New("invalid buffer geometry")

// WorkerContext owns the buffers one worker feeds its kernel.
// Each buffer is iterations*vectorBytes bytes, zero-filled and aligned to
// vectorBytes. A WorkerContext belongs to exactly one worker.
type WorkerContext struct {
	vectorBytes int
	spinLoops   int

	x   []byte // uint8 lanes
	y   []byte // int8 lanes
	z   []byte // int32 lanes
	out []byte // int32 lanes

	// 64-bit lane views over the same memory, used by the FMA kernels.
	x64, y64, z64, out64 []uint64

	spinSink int
}

// NewWorkerContext lays out the four buffers for one worker.
func NewWorkerContext(iterations, vectorBytes, spinLoops int) (*WorkerContext, error) {
	if iterations < BatchChunks {
		return nil, fmt.Errorf("%w: %d iterations cannot hold a %d-chunk batch", ErrInvalidGeometry, iterations, BatchChunks)
	}
	if vectorBytes <= 0 || vectorBytes%8 != 0 {
		return nil, fmt.Errorf("%w: vector width %d bytes is not a positive multiple of 8", ErrInvalidGeometry, vectorBytes)
	}
	if iterations > math.MaxInt/vectorBytes {
		return nil, fmt.Errorf("%w: %d x %d bytes overflows", ErrInvalidGeometry, iterations, vectorBytes)
	}
	size := iterations * vectorBytes

	wc := &WorkerContext{
		vectorBytes: vectorBytes,
		spinLoops:   spinLoops,
		x:           alignedBytes(size, vectorBytes),
		y:           alignedBytes(size, vectorBytes),
		z:           alignedBytes(size, vectorBytes),
		out:         alignedBytes(size, vectorBytes),
	}
	wc.x64 = lanes64(wc.x)
	wc.y64 = lanes64(wc.y)
	wc.z64 = lanes64(wc.z)
	wc.out64 = lanes64(wc.out)
	return wc, nil
}

// alignedBytes returns a zeroed slice of n bytes whose first element sits on
// an align-byte boundary.
func alignedBytes(n, align int) []byte {
	raw := make([]byte, n+align)
	off := 0
	if rem := int(uintptr(unsafe.Pointer(&raw[0])) % uintptr(align)); rem != 0 {
		off = align - rem
	}
	return raw[off : off+n : off+n]
}

func lanes64(b []byte) []uint64 {
	return unsafe.Slice((*uint64)(unsafe.Pointer(&b[0])), len(b)/8)
}

// X is the unsigned-byte input buffer.
func (wc *WorkerContext) X() []uint8 { return wc.x }

// Y is the signed-byte input buffer.
func (wc *WorkerContext) Y() []int8 {
	return unsafe.Slice((*int8)(unsafe.Pointer(&wc.y[0])), len(wc.y))
}

// Z is the 32-bit signed input buffer.
func (wc *WorkerContext) Z() []int32 {
	return unsafe.Slice((*int32)(unsafe.Pointer(&wc.z[0])), len(wc.z)/4)
}

// Out is the 32-bit signed output buffer.
func (wc *WorkerContext) Out() []int32 {
	return unsafe.Slice((*int32)(unsafe.Pointer(&wc.out[0])), len(wc.out)/4)
}

// BufferBytes reports the byte size of each of the four buffers.
func (wc *WorkerContext) BufferBytes() (x, y, z, out int) {
	return len(wc.x), len(wc.y), len(wc.z), len(wc.out)
}
