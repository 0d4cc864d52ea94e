package agent

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/kunal/simd-stress/pkg/config"
	"github.com/kunal/simd-stress/pkg/stress"
)

// Report is the decoded reply of a remote run.
type Report struct {
	VectorBits int
	Cycles     bool
	Results    []stress.Result
}

// EncodeConfig packs a workload into a request message.
func EncodeConfig(cfg config.WorkloadConfig) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"duration":         cfg.DurationSec,
		"thread_count":     cfg.Threads,
		"instruction_type": cfg.Kernel,
		"nop_per_loop":     cfg.NopPerLoop,
		"vector_bits":      cfg.VectorBits,
		"pin":              cfg.Pin,
		"cycles":           cfg.Cycles,
	})
}

// DecodeConfig unpacks a request message. Missing fields take the zero
// value, except nop_per_loop which defaults to config.DefaultSpinLoops.
func DecodeConfig(s *structpb.Struct) (config.WorkloadConfig, error) {
	if s == nil {
		return config.WorkloadConfig{}, fmt.Errorf("empty request")
	}
	f := s.GetFields()
	cfg := config.WorkloadConfig{
		Pin:    f["pin"].GetBoolValue(),
		Cycles: f["cycles"].GetBoolValue(),
	}
	for _, fld := range []struct {
		key      string
		dst      *int
		fallback int
	}{
		{"duration", &cfg.DurationSec, 0},
		{"thread_count", &cfg.Threads, 0},
		{"instruction_type", &cfg.Kernel, 0},
		{"nop_per_loop", &cfg.NopPerLoop, config.DefaultSpinLoops},
		{"vector_bits", &cfg.VectorBits, 0},
	} {
		n, err := intField(f, fld.key, fld.fallback)
		if err != nil {
			return config.WorkloadConfig{}, err
		}
		*fld.dst = n
	}
	return cfg, nil
}

// maxExactInt is the largest magnitude a float64 carries without rounding.
const maxExactInt = 1 << 53

func intField(f map[string]*structpb.Value, key string, fallback int) (int, error) {
	v, ok := f[key]
	if !ok {
		return fallback, nil
	}
	n := v.GetNumberValue()
	if n != math.Trunc(n) || math.Abs(n) > maxExactInt {
		return 0, fmt.Errorf("%s: %v is not an integer", key, n)
	}
	return int(n), nil
}

// EncodeReport packs the per-worker results of a finished run.
func EncodeReport(cfg config.WorkloadConfig, results []stress.Result) (*structpb.Struct, error) {
	list := make([]interface{}, len(results))
	for i, r := range results {
		list[i] = map[string]interface{}{
			"worker":           r.Worker,
			"kernel_id":        r.KernelID,
			"instruction":      r.Instruction,
			"duration":         r.DurationSec,
			"loops":            float64(r.Loops),
			"loops_per_second": float64(r.LoopsPerSecond),
			"total_cycles":     float64(r.TotalCycles),
			"elapsed_ns":       float64(r.Elapsed.Nanoseconds()),
		}
	}
	return structpb.NewStruct(map[string]interface{}{
		"vector_bits": cfg.VectorBits,
		"cycles":      cfg.Cycles,
		"results":     list,
	})
}

// DecodeReport unpacks a reply message.
func DecodeReport(s *structpb.Struct) (Report, error) {
	if s == nil {
		return Report{}, fmt.Errorf("empty reply")
	}
	f := s.GetFields()
	rep := Report{
		VectorBits: int(f["vector_bits"].GetNumberValue()),
		Cycles:     f["cycles"].GetBoolValue(),
	}
	for i, v := range f["results"].GetListValue().GetValues() {
		rf := v.GetStructValue().GetFields()
		if rf == nil {
			return Report{}, fmt.Errorf("result %d is not an object", i)
		}
		rep.Results = append(rep.Results, stress.Result{
			Worker:         int(rf["worker"].GetNumberValue()),
			KernelID:       int(rf["kernel_id"].GetNumberValue()),
			Instruction:    rf["instruction"].GetStringValue(),
			DurationSec:    int(rf["duration"].GetNumberValue()),
			Loops:          uint64(rf["loops"].GetNumberValue()),
			LoopsPerSecond: uint64(rf["loops_per_second"].GetNumberValue()),
			TotalCycles:    uint64(rf["total_cycles"].GetNumberValue()),
			Elapsed:        time.Duration(rf["elapsed_ns"].GetNumberValue()),
		})
	}
	return rep, nil
}
