package stress

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

// ErrUnknownKernel is returned for a selector outside the kernel table.
var ErrUnknownKernel = errors.New("unknown kernel")

// Kernel is one workload the worker loop can drive. Run must be stateless
// apart from writes into the context's output and always processes the full
// BatchChunks batch.
type Kernel struct {
	ID          int
	Name        string
	Instruction string
	Run         func(wc *WorkerContext)
}

var kernels = []Kernel{
	{ID: 0, Name: "spin", Instruction: "nop_loop", Run: nopLoop},
	{ID: 1, Name: "integer-fma", Instruction: "vpmadd52huq", Run: madd52hiEpu64},
	{ID: 2, Name: "float-fma", Instruction: "vfmadd231pd", Run: fmaddPd},
}

// LookupKernel resolves a selector to its kernel.
func LookupKernel(id int) (Kernel, error) {
	if id < 0 || id >= len(kernels) {
		return Kernel{}, fmt.Errorf("%w: instruction type %d (want 0..%d)", ErrUnknownKernel, id, len(kernels)-1)
	}
	return kernels[id], nil
}

// Kernels returns the kernel table in selector order.
func Kernels() []Kernel {
	out := make([]Kernel, len(kernels))
	copy(out, kernels)
	return out
}

func nopLoop(wc *WorkerContext) {
	i := 0
	for i < wc.spinLoops {
		i++
	}
	wc.spinSink = i
}

const mask52 = 1<<52 - 1

// madd52hi returns z plus the high 52 bits of the 104-bit product of the
// low 52 bits of x and y.
func madd52hi(z, x, y uint64) uint64 {
	hi, lo := bits.Mul64(x&mask52, y&mask52)
	return z + (hi<<12 | lo>>52)
}

func madd52hiEpu64(wc *WorkerContext) {
	n := wc.vectorBytes / 8
	for i := 0; i < BatchChunks; i++ {
		base := i * n
		vx := wc.x64[base : base+n]
		vy := wc.y64[base : base+n]
		vz := wc.z64[base : base+n]
		vo := wc.out64[base : base+n]
		for k := range vo {
			vo[k] = madd52hi(vz[k], vx[k], vy[k])
		}
	}
}

func fmaddPd(wc *WorkerContext) {
	n := wc.vectorBytes / 8
	for i := 0; i < BatchChunks; i++ {
		base := i * n
		vx := wc.x64[base : base+n]
		vy := wc.y64[base : base+n]
		vz := wc.z64[base : base+n]
		vo := wc.out64[base : base+n]
		for k := range vo {
			r := math.FMA(math.Float64frombits(vz[k]), math.Float64frombits(vx[k]), math.Float64frombits(vy[k]))
			vo[k] = math.Float64bits(r)
		}
	}
}
