//go:build linux

package stress

import (
	"bytes"
	"testing"
	"time"
)

func TestAllowedCPUs(t *testing.T) {
	cpus, err := allowedCPUs()
	if err != nil {
		t.Fatal(err)
	}
	if len(cpus) == 0 {
		t.Fatal("allowedCPUs() = empty")
	}
	for i := 1; i < len(cpus); i++ {
		if cpus[i] <= cpus[i-1] {
			t.Errorf("allowedCPUs() = %v, not ascending", cpus)
		}
	}
}

// firstForbiddenCPU returns a cpu id outside the affinity mask.
func firstForbiddenCPU(t *testing.T) int {
	t.Helper()
	cpus, err := allowedCPUs()
	if err != nil {
		t.Fatal(err)
	}
	allowed := make(map[int]bool, len(cpus))
	for _, c := range cpus {
		allowed[c] = true
	}
	for c := 0; c < 1024; c++ {
		if !allowed[c] {
			return c
		}
	}
	t.Skip("every cpu id is in the affinity mask")
	return -1
}

func TestRunner_PinFailureStopsEveryWorker(t *testing.T) {
	var out bytes.Buffer
	cfg := testConfig(0, 3, 5)
	cfg.Pin = true
	r, err := NewRunner(cfg, Options{Out: &out})
	if err != nil {
		t.Fatal(err)
	}
	r.workers[1].cpu = firstForbiddenCPU(t)

	start := time.Now()
	results, err := r.Run()
	if err == nil {
		t.Fatalf("Run() = %v, want a pin error", results)
	}
	if took := time.Since(start); took > GracePeriod {
		t.Errorf("Run() took %v after a setup failure, want an immediate return", took)
	}
	if out.Len() != 0 {
		t.Errorf("healthy workers still reported:\n%s", out.String())
	}
	for _, p := range r.Snapshot() {
		if p.State != StateTerminated || p.Loops != 0 {
			t.Errorf("worker %d = %+v, want terminated with 0 loops", p.Worker, p)
		}
	}
}
