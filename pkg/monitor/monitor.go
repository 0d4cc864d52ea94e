package monitor

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kunal/simd-stress/pkg/stress"
)

// Monitor periodically samples the progress counters of the attached run,
// derives live loop rates and pushes the state to dashboard clients.
type Monitor struct {
	interval    time.Duration
	log         *logrus.Logger
	broadcaster *Broadcaster

	runner        atomic.Pointer[stress.Runner]
	runsCompleted atomic.Int64

	mu    sync.RWMutex
	state RunState
	prev  []uint64
	prevT time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a monitor sampling every interval.
func New(interval time.Duration, log *logrus.Logger) *Monitor {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Monitor{
		interval:    interval,
		log:         log,
		broadcaster: NewBroadcaster(log),
		stopCh:      make(chan struct{}),
	}
}

// Attach makes r the run being sampled.
func (m *Monitor) Attach(r *stress.Runner) {
	m.mu.Lock()
	m.prev = nil
	m.prevT = time.Time{}
	m.mu.Unlock()
	m.runner.Store(r)
}

// Detach takes one final sample of the current run, then forgets it.
func (m *Monitor) Detach() {
	if m.runner.Load() == nil {
		return
	}
	m.Sample()
	m.runner.Store(nil)
	m.runsCompleted.Add(1)
}

// RunsCompleted counts detached runs.
func (m *Monitor) RunsCompleted() int64 { return m.runsCompleted.Load() }

// Start begins the sampling loop.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.loop()
	m.log.Infof("📡 Monitor started: interval=%v", m.interval)
}

// Stop shuts the sampling loop down and closes dashboard connections.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.broadcaster.Close()
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if m.runner.Load() != nil {
				m.Sample()
			}
		}
	}
}

// Sample reads the attached run once, updates the cached state and
// broadcasts it.
func (m *Monitor) Sample() {
	r := m.runner.Load()
	if r == nil {
		return
	}
	snap := r.Snapshot()
	now := time.Now()
	cfg := r.Config()

	m.mu.Lock()
	var dt float64
	if !m.prevT.IsZero() {
		dt = now.Sub(m.prevT).Seconds()
	}
	state := RunState{
		Instruction: r.Kernel().Instruction,
		DurationSec: cfg.DurationSec,
		VectorBits:  cfg.VectorBits,
		Workers:     make([]WorkerState, len(snap)),
	}
	for i, p := range snap {
		ws := WorkerState{Worker: p.Worker, State: p.State.String(), Loops: p.Loops}
		if dt > 0 && i < len(m.prev) && p.Loops >= m.prev[i] {
			ws.LoopsPerSecond = float64(p.Loops-m.prev[i]) / dt
		}
		state.Workers[i] = ws
	}
	if len(m.prev) != len(snap) {
		m.prev = make([]uint64, len(snap))
	}
	for i, p := range snap {
		m.prev[i] = p.Loops
	}
	m.prevT = now
	m.state = state
	m.mu.Unlock()

	m.broadcaster.Broadcast(&state)
}

// State returns the most recent sample.
func (m *Monitor) State() RunState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.state
	s.Workers = append([]WorkerState(nil), m.state.Workers...)
	return s
}

// RegisterHTTP mounts /metrics, /health and /ws on mux.
func (m *Monitor) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc("/metrics", m.ServePrometheus)
	mux.HandleFunc("/ws", m.broadcaster.HandleWS)
	mux.HandleFunc("/health", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("OK"))
	})
}
