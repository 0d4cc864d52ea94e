package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kunal/simd-stress/pkg/agent"
	"github.com/kunal/simd-stress/pkg/config"
	"github.com/kunal/simd-stress/pkg/stress"
)

// sweep runs every kernel on an agent in turn and prints each run's
// per-worker report lines.
func main() {
	addr := flag.String("addr", "localhost:50061", "Agent address")
	threads := flag.Int("threads", 4, "Worker threads per run")
	duration := flag.Int("duration", 5, "Seconds per run")
	vectorBits := flag.Int("vector-bits", 0, "Vector width in bits (0 = agent detects)")
	cycles := flag.Bool("cycles", true, "Report average cycles per loop")
	flag.Parse()

	logrus.Infof("🚀 Sweep starting: addr=%s, threads=%d, duration=%ds", *addr, *threads, *duration)

	client, err := agent.Dial(*addr)
	if err != nil {
		logrus.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	fmt.Println("═══════════════════════════════════════════════════")
	fmt.Println("   🏁 KERNEL SWEEP")
	fmt.Println("═══════════════════════════════════════════════════")

	for _, k := range stress.Kernels() {
		cfg := config.WorkloadConfig{
			DurationSec: *duration,
			Threads:     *threads,
			Kernel:      k.ID,
			NopPerLoop:  config.DefaultSpinLoops,
			VectorBits:  *vectorBits,
			Cycles:      *cycles,
		}
		timeout := cfg.Duration() + stress.GracePeriod + 30*time.Second
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		rep, err := client.Run(ctx, cfg)
		cancel()
		if err != nil {
			logrus.Fatalf("Kernel %s failed: %v", k.Instruction, err)
		}

		fmt.Printf("\n   %s (%d-bit vectors)\n", k.Instruction, rep.VectorBits)
		for _, r := range rep.Results {
			fmt.Printf("      %s\n", stress.FormatResult(r, rep.Cycles))
		}
	}
	fmt.Println("═══════════════════════════════════════════════════")
}
