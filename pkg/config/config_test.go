package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	v, err := New("")
	if err != nil {
		t.Fatal(err)
	}
	cfg := Load(v)
	want := WorkloadConfig{DurationSec: 10, Threads: 1, Kernel: KernelNop, NopPerLoop: DefaultSpinLoops}
	if cfg != want {
		t.Errorf("Load() = %+v, want %+v", cfg, want)
	}
	ac := LoadAgent(v)
	if ac.AgentPort != 50061 || ac.MetricsPort != 9091 || ac.SampleInterval != 500*time.Millisecond {
		t.Errorf("LoadAgent() = %+v", ac)
	}
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv("SIMD_STRESS_THREAD_COUNT", "8")
	t.Setenv("SIMD_STRESS_INSTRUCTION_TYPE", "2")
	v, err := New("")
	if err != nil {
		t.Fatal(err)
	}
	cfg := Load(v)
	if cfg.Threads != 8 || cfg.Kernel != KernelFMAPD {
		t.Errorf("Load() threads=%d kernel=%d, want 8 and 2", cfg.Threads, cfg.Kernel)
	}
}

func TestNew_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stress.yaml")
	data := "duration: 3\nthread-count: 4\ninstruction-type: 1\nvector-bits: 256\npin: true\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	v, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg := Load(v)
	want := WorkloadConfig{DurationSec: 3, Threads: 4, Kernel: KernelIFMA, NopPerLoop: DefaultSpinLoops, VectorBits: 256, Pin: true}
	if cfg != want {
		t.Errorf("Load() = %+v, want %+v", cfg, want)
	}
}

func TestNew_MissingFile(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("New() with a missing file succeeded")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     WorkloadConfig
		wantErr bool
	}{
		{"defaults", WorkloadConfig{Threads: 1}, false},
		{"zero threads", WorkloadConfig{}, false},
		{"negative duration", WorkloadConfig{DurationSec: -1, Threads: 1}, false},
		{"128", WorkloadConfig{Threads: 1, VectorBits: 128}, false},
		{"512", WorkloadConfig{Threads: 1, VectorBits: 512}, false},
		{"negative threads", WorkloadConfig{Threads: -1}, true},
		{"negative spin", WorkloadConfig{Threads: 1, NopPerLoop: -5}, true},
		{"odd width", WorkloadConfig{Threads: 1, VectorBits: 96}, true},
		{"max threads", WorkloadConfig{Threads: MaxThreads}, false},
		{"too many threads", WorkloadConfig{Threads: MaxThreads + 1}, true},
		{"huge threads", WorkloadConfig{Threads: math.MaxInt}, true},
		{"max duration", WorkloadConfig{DurationSec: MaxDurationSec}, false},
		{"long duration", WorkloadConfig{DurationSec: MaxDurationSec + 1}, true},
		{"very negative duration", WorkloadConfig{DurationSec: math.MinInt}, true},
		{"huge spin", WorkloadConfig{NopPerLoop: MaxSpinLoops + 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Errorf("Validate() error = %v, want ErrInvalid", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if got.VectorBits == 0 || got.VectorBytes()*8 != got.VectorBits {
				t.Errorf("Validate() vector width = %d bits / %d bytes", got.VectorBits, got.VectorBytes())
			}
		})
	}
}

func TestValidate_DoesNotMutateReceiver(t *testing.T) {
	cfg := WorkloadConfig{Threads: 1}
	if _, err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.VectorBits != 0 {
		t.Errorf("Validate() changed the caller's copy: %d", cfg.VectorBits)
	}
}

func TestDetectVectorBits(t *testing.T) {
	switch got := DetectVectorBits(); got {
	case 128, 256, 512:
	default:
		t.Errorf("DetectVectorBits() = %d", got)
	}
}

func TestDuration(t *testing.T) {
	if got := (WorkloadConfig{DurationSec: 3}).Duration(); got != 3*time.Second {
		t.Errorf("Duration() = %v, want 3s", got)
	}
}
