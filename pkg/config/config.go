package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/sys/cpu"
)

// Kernel selectors accepted by the instruction-type option.
const (
	KernelNop   = 0
	KernelIFMA  = 1
	KernelFMAPD = 2
)

// Config keys shared by the flag, env and file layers.
const (
	KeyDuration      = "duration"
	KeyThreads       = "thread-count"
	KeyKernel        = "instruction-type"
	KeyNopPerLoop    = "nop-per-loop"
	KeyVectorBits    = "vector-bits"
	KeyPin           = "pin"
	KeyCycles        = "cycles"
	KeyLogLevel      = "log-level"
	KeyMetricsAddr   = "metrics-addr"
	KeyAgentPort     = "agent-port"
	KeyMetricsPort   = "metrics-port"
	KeySampleMs      = "sample-interval-ms"
	KeyAgentAddr     = "agent-addr"
	EnvPrefix        = "SIMD_STRESS"
	DefaultSpinLoops = 10000000
)

// Upper bounds on a single run.
const (
	MaxThreads     = 4096
	MaxDurationSec = 7 * 24 * 3600
	MaxSpinLoops   = 1 << 31
)

// ErrInvalid wraps every validation failure of a WorkloadConfig.
var ErrInvalid = errors.New("invalid workload config")

// WorkloadConfig is the read-only description of one benchmark run.
// It is built once, validated, and passed by value to every worker.
type WorkloadConfig struct {
	DurationSec int  `yaml:"duration"`
	Threads     int  `yaml:"thread_count"`
	Kernel      int  `yaml:"instruction_type"`
	NopPerLoop  int  `yaml:"nop_per_loop"`
	VectorBits  int  `yaml:"vector_bits"` // 0 = detect
	Pin         bool `yaml:"pin"`
	Cycles      bool `yaml:"cycles"`
}

// AgentConfig holds settings for the long-running agent service.
type AgentConfig struct {
	AgentPort      int
	MetricsPort    int
	SampleInterval time.Duration
	LogLevel       string
}

// SetDefaults registers the defaults for every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDuration, 10)
	v.SetDefault(KeyThreads, 1)
	v.SetDefault(KeyKernel, KernelNop)
	v.SetDefault(KeyNopPerLoop, DefaultSpinLoops)
	v.SetDefault(KeyVectorBits, 0)
	v.SetDefault(KeyPin, false)
	v.SetDefault(KeyCycles, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyMetricsAddr, "")
	v.SetDefault(KeyAgentPort, 50061)
	v.SetDefault(KeyMetricsPort, 9091)
	v.SetDefault(KeySampleMs, 500)
	v.SetDefault(KeyAgentAddr, "localhost:50061")
}

// New returns a viper instance with defaults and SIMD_STRESS_* env binding.
// If file is non-empty it is read as YAML.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return v, nil
}

// Load reads a WorkloadConfig from v. It does not validate.
func Load(v *viper.Viper) WorkloadConfig {
	return WorkloadConfig{
		DurationSec: v.GetInt(KeyDuration),
		Threads:     v.GetInt(KeyThreads),
		Kernel:      v.GetInt(KeyKernel),
		NopPerLoop:  v.GetInt(KeyNopPerLoop),
		VectorBits:  v.GetInt(KeyVectorBits),
		Pin:         v.GetBool(KeyPin),
		Cycles:      v.GetBool(KeyCycles),
	}
}

// LoadAgent reads the agent service settings from v.
func LoadAgent(v *viper.Viper) AgentConfig {
	return AgentConfig{
		AgentPort:      v.GetInt(KeyAgentPort),
		MetricsPort:    v.GetInt(KeyMetricsPort),
		SampleInterval: time.Duration(v.GetInt(KeySampleMs)) * time.Millisecond,
		LogLevel:       v.GetString(KeyLogLevel),
	}
}

// Validate checks the run-independent fields and resolves an automatic
// vector width. The kernel selector is checked by the kernel table.
func (c WorkloadConfig) Validate() (WorkloadConfig, error) {
	if c.Threads < 0 || c.Threads > MaxThreads {
		return c, fmt.Errorf("%w: thread count %d outside [0, %d]", ErrInvalid, c.Threads, MaxThreads)
	}
	if c.DurationSec < -MaxDurationSec || c.DurationSec > MaxDurationSec {
		return c, fmt.Errorf("%w: duration %ds exceeds %ds", ErrInvalid, c.DurationSec, MaxDurationSec)
	}
	if c.NopPerLoop < 0 || c.NopPerLoop > MaxSpinLoops {
		return c, fmt.Errorf("%w: nop-per-loop %d outside [0, %d]", ErrInvalid, c.NopPerLoop, MaxSpinLoops)
	}
	if c.VectorBits == 0 {
		c.VectorBits = DetectVectorBits()
	}
	switch c.VectorBits {
	case 128, 256, 512:
	default:
		return c, fmt.Errorf("%w: vector width %d bits not supported (want 128, 256 or 512)", ErrInvalid, c.VectorBits)
	}
	return c, nil
}

// VectorBytes is the width of one vector chunk in bytes.
func (c WorkloadConfig) VectorBytes() int { return c.VectorBits / 8 }

// Duration returns the configured run length.
func (c WorkloadConfig) Duration() time.Duration {
	return time.Duration(c.DurationSec) * time.Second
}

// DetectVectorBits picks the widest vector register the host advertises.
func DetectVectorBits() int {
	switch {
	case cpu.X86.HasAVX512F:
		return 512
	case cpu.X86.HasAVX2:
		return 256
	default:
		return 128
	}
}

// Features lists the vector extensions the host advertises.
func Features() []string {
	var out []string
	add := func(ok bool, name string) {
		if ok {
			out = append(out, name)
		}
	}
	add(cpu.X86.HasSSE2, "sse2")
	add(cpu.X86.HasSSE41, "sse4.1")
	add(cpu.X86.HasAVX, "avx")
	add(cpu.X86.HasAVX2, "avx2")
	add(cpu.X86.HasFMA, "fma")
	add(cpu.X86.HasAVX512F, "avx512f")
	add(cpu.X86.HasAVX512IFMA, "avx512ifma")
	add(cpu.ARM64.HasASIMD, "asimd")
	add(cpu.ARM64.HasSVE, "sve")
	return out
}
