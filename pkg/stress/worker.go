package stress

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// GracePeriod is added to the configured duration before a worker stops.
const GracePeriod = time.Second

// WorkerState is the lifecycle position of one worker.
type WorkerState int32

const (
	StateInitializing WorkerState = iota
	StateRunning
	StateTerminated
)

func (s WorkerState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("WorkerState(%d)", int32(s))
}

// Result is what one worker reports when it terminates.
type Result struct {
	Worker         int
	KernelID       int
	Instruction    string
	DurationSec    int
	Loops          uint64
	LoopsPerSecond uint64
	TotalCycles    uint64
	Elapsed        time.Duration
}

// CyclesPerLoop is the mean cycle count of one kernel call, or 0 when no
// call completed.
func (r Result) CyclesPerLoop() uint64 {
	if r.Loops == 0 {
		return 0
	}
	return r.TotalCycles / r.Loops
}

// Progress is a point-in-time view of a running worker.
type Progress struct {
	Worker int
	State  WorkerState
	Loops  uint64
}

const cacheLine = 64

// progress is written only by its worker and read by samplers.
// Padded to keep the counters of neighbouring workers apart.
type progress struct {
	loops atomic.Uint64
	state atomic.Int32
	_     [cacheLine - 12]byte
}

// deadline is the duration gate: fixed once when the worker starts running.
type deadline time.Time

func newDeadline(start time.Time, durationSec int) deadline {
	return deadline(start.Add(time.Duration(durationSec)*time.Second + GracePeriod))
}

func (d deadline) open(now time.Time) bool { return now.Before(time.Time(d)) }

// Worker drives one kernel on its own WorkerContext.
type Worker struct {
	id          int
	durationSec int
	kernel      Kernel
	ctx         *WorkerContext
	cpu         int // -1 leaves the thread unpinned
	progress    progress
}

func newWorker(id int, durationSec int, kernel Kernel, ctx *WorkerContext, cpu int) *Worker {
	w := &Worker{
		id:          id,
		durationSec: durationSec,
		kernel:      kernel,
		ctx:         ctx,
		cpu:         cpu,
	}
	w.progress.state.Store(int32(StateInitializing))
	return w
}

// ID is the worker's index within its run.
func (w *Worker) ID() int { return w.id }

// Progress returns the worker's current state and loop count.
func (w *Worker) Progress() Progress {
	return Progress{
		Worker: w.id,
		State:  WorkerState(w.progress.state.Load()),
		Loops:  w.progress.loops.Load(),
	}
}

// errAborted is returned by a worker that never started measuring because
// another worker of the same run failed its thread setup.
var errAborted = errors.New("run aborted before start")

// startGate holds every worker of a run between thread setup and the first
// kernel call. If any worker fails setup, none of them start measuring.
type startGate struct {
	ready   sync.WaitGroup
	failed  atomic.Bool
	release chan struct{}
}

func newStartGate(n int) *startGate {
	g := &startGate{release: make(chan struct{})}
	g.ready.Add(n)
	go func() {
		g.ready.Wait()
		close(g.release)
	}()
	return g
}

// arrive records the setup outcome of one worker and blocks until every
// worker has arrived. It reports whether the run may proceed.
func (g *startGate) arrive(err error) bool {
	if g == nil {
		return err == nil
	}
	if err != nil {
		g.failed.Store(true)
	}
	g.ready.Done()
	<-g.release
	return !g.failed.Load()
}

// Run executes the worker loop on the calling goroutine, locked to its OS
// thread, and returns when the deadline passes.
func (w *Worker) Run() (Result, error) {
	return w.run(nil)
}

func (w *Worker) run(gate *startGate) (Result, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var err error
	if w.cpu >= 0 {
		if perr := pinToCPU(w.cpu); perr != nil {
			err = fmt.Errorf("worker %d: pin to cpu %d: %w", w.id, w.cpu, perr)
		}
	}
	if !gate.arrive(err) {
		w.progress.state.Store(int32(StateTerminated))
		if err == nil {
			err = errAborted
		}
		return Result{}, err
	}

	run := w.kernel.Run
	ctx := w.ctx
	var loops, total uint64

	start := time.Now()
	until := newDeadline(start, w.durationSec)
	w.progress.state.Store(int32(StateRunning))

	for until.open(time.Now()) {
		before := Cycles()
		run(ctx)
		after := Cycles()
		total += after - before
		loops++
		w.progress.loops.Store(loops)
	}

	elapsed := time.Since(start)
	w.progress.state.Store(int32(StateTerminated))

	return Result{
		Worker:         w.id,
		KernelID:       w.kernel.ID,
		Instruction:    w.kernel.Instruction,
		DurationSec:    w.durationSec,
		Loops:          loops,
		LoopsPerSecond: loopsPerSecond(loops, w.durationSec),
		TotalCycles:    total,
		Elapsed:        elapsed,
	}, nil
}

// loopsPerSecond divides by the configured duration. A run of zero or fewer
// seconds only had the grace window, so its count is reported as is.
func loopsPerSecond(loops uint64, durationSec int) uint64 {
	if durationSec <= 0 {
		return loops
	}
	return loops / uint64(durationSec)
}
