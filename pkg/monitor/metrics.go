package monitor

import (
	"fmt"
	"net/http"
)

// ServePrometheus writes the last sample in Prometheus text format.
func (m *Monitor) ServePrometheus(w http.ResponseWriter, r *http.Request) {
	s := m.State()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP simd_stress_runs_completed_total Runs finished since start\n")
	fmt.Fprintf(w, "# TYPE simd_stress_runs_completed_total counter\n")
	fmt.Fprintf(w, "simd_stress_runs_completed_total %d\n", m.RunsCompleted())

	if len(s.Workers) == 0 {
		return
	}

	fmt.Fprintf(w, "# HELP simd_stress_worker_loops_total Kernel calls completed by a worker\n")
	fmt.Fprintf(w, "# TYPE simd_stress_worker_loops_total counter\n")
	for _, ws := range s.Workers {
		fmt.Fprintf(w, "simd_stress_worker_loops_total{worker=\"%d\",instruction=\"%s\"} %d\n", ws.Worker, s.Instruction, ws.Loops)
	}
	fmt.Fprintf(w, "# HELP simd_stress_worker_loops_per_second Loop rate over the last sample interval\n")
	fmt.Fprintf(w, "# TYPE simd_stress_worker_loops_per_second gauge\n")
	for _, ws := range s.Workers {
		fmt.Fprintf(w, "simd_stress_worker_loops_per_second{worker=\"%d\",instruction=\"%s\"} %.2f\n", ws.Worker, s.Instruction, ws.LoopsPerSecond)
	}
	fmt.Fprintf(w, "# HELP simd_stress_worker_running Whether the worker is inside its measurement loop\n")
	fmt.Fprintf(w, "# TYPE simd_stress_worker_running gauge\n")
	for _, ws := range s.Workers {
		running := 0
		if ws.State == "running" {
			running = 1
		}
		fmt.Fprintf(w, "simd_stress_worker_running{worker=\"%d\",instruction=\"%s\"} %d\n", ws.Worker, s.Instruction, running)
	}
}
