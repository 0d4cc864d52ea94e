package stress

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kunal/simd-stress/pkg/config"
)

// Options carries the collaborators a Runner writes to.
type Options struct {
	// Out receives one report line per worker. Defaults to io.Discard.
	Out    io.Writer
	Logger *logrus.Logger
}

// Runner owns the workers of a single run. Workers share nothing but the
// read-only configuration; the runner only starts and joins them.
type Runner struct {
	cfg     config.WorkloadConfig
	kernel  Kernel
	workers []*Worker
	out     *syncWriter
	log     *logrus.Logger

	group     errgroup.Group
	results   []Result
	once      sync.Once
	prevProcs int
	restore   sync.Once
}

// NewRunner validates cfg, resolves the kernel and allocates one
// WorkerContext per worker. No worker runs until Start.
func NewRunner(cfg config.WorkloadConfig, opts Options) (*Runner, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	kernel, err := LookupKernel(cfg.Kernel)
	if err != nil {
		return nil, err
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
		opts.Logger.SetOutput(io.Discard)
	}
	var cpus []int
	if cfg.Pin && pinSupported && cfg.Threads > 0 {
		if cpus, err = allowedCPUs(); err != nil {
			return nil, fmt.Errorf("read cpu affinity: %w", err)
		}
		if len(cpus) == 0 {
			return nil, errors.New("read cpu affinity: empty mask")
		}
	}

	r := &Runner{
		cfg:     cfg,
		kernel:  kernel,
		workers: make([]*Worker, cfg.Threads),
		results: make([]Result, cfg.Threads),
		out:     &syncWriter{w: opts.Out},
		log:     opts.Logger,
	}
	for i := range r.workers {
		wc, err := NewWorkerContext(BatchChunks, cfg.VectorBytes(), cfg.NopPerLoop)
		if err != nil {
			return nil, fmt.Errorf("worker %d buffers: %w", i, err)
		}
		cpu := -1
		if cpus != nil {
			cpu = cpus[i%len(cpus)]
		}
		r.workers[i] = newWorker(i, cfg.DurationSec, kernel, wc, cpu)
	}
	return r, nil
}

// Config returns the validated configuration of the run.
func (r *Runner) Config() config.WorkloadConfig { return r.cfg }

// Kernel returns the kernel every worker drives.
func (r *Runner) Kernel() Kernel { return r.kernel }

// Start launches every worker on its own OS thread. Calling it more than
// once has no effect.
func (r *Runner) Start() {
	r.once.Do(r.start)
}

func (r *Runner) start() {
	n := len(r.workers)
	if prev := runtime.GOMAXPROCS(0); prev < n {
		runtime.GOMAXPROCS(n)
		r.prevProcs = prev
	}
	if r.cfg.Pin && !pinSupported {
		r.log.Warnf("⚠️  CPU pinning not supported on %s, workers float", runtime.GOOS)
	}
	r.log.WithFields(logrus.Fields{
		"threads":     n,
		"instruction": r.kernel.Instruction,
		"duration":    r.cfg.DurationSec,
		"vector_bits": r.cfg.VectorBits,
	}).Infof("🚀 Launching %d workers", n)

	gate := newStartGate(n)
	for _, w := range r.workers {
		w := w
		r.group.Go(func() error {
			r.log.Debugf("Start running with %d seconds of instruction:%s", r.cfg.DurationSec, r.kernel.Instruction)
			res, err := w.run(gate)
			if errors.Is(err, errAborted) {
				return nil
			}
			if err != nil {
				return err
			}
			r.results[w.ID()] = res
			r.out.WriteLine(FormatResult(res, r.cfg.Cycles))
			return nil
		})
	}
}

// Wait blocks until every worker has terminated and returns their results
// in worker order. If any worker fails thread setup, no worker measures and
// that error is returned. A failed report write is returned as well.
func (r *Runner) Wait() ([]Result, error) {
	err := r.group.Wait()
	r.restore.Do(func() {
		if r.prevProcs > 0 {
			runtime.GOMAXPROCS(r.prevProcs)
		}
	})
	if err != nil {
		return nil, err
	}
	if err := r.out.Err(); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	return r.results, nil
}

// Run is Start followed by Wait.
func (r *Runner) Run() ([]Result, error) {
	r.Start()
	return r.Wait()
}

// Snapshot reads every worker's progress counter.
func (r *Runner) Snapshot() []Progress {
	out := make([]Progress, len(r.workers))
	for i, w := range r.workers {
		out[i] = w.Progress()
	}
	return out
}

// FormatResult renders the human-readable report line of one worker.
func FormatResult(res Result, withCycles bool) string {
	line := fmt.Sprintf("worker %d: %d seconds of instruction:%s throughput %d lps",
		res.Worker, res.DurationSec, res.Instruction, res.LoopsPerSecond)
	if withCycles {
		line += fmt.Sprintf(" avg %d cycles/loop", res.CyclesPerLoop())
	}
	return line
}

// syncWriter serialises whole lines from concurrent workers and keeps the
// first write error.
type syncWriter struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

func (s *syncWriter) WriteLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.w, line+"\n"); err != nil && s.err == nil {
		s.err = err
	}
}

func (s *syncWriter) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
