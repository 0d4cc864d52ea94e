package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/kunal/simd-stress/pkg/agent"
	"github.com/kunal/simd-stress/pkg/config"
	"github.com/kunal/simd-stress/pkg/logging"
	"github.com/kunal/simd-stress/pkg/monitor"
	"github.com/kunal/simd-stress/pkg/stress"
)

// cli is the state shared by every subcommand once flags are parsed.
type cli struct {
	cfgFile string
	v       *viper.Viper
	log     *logrus.Logger
	stdout  io.Writer
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	c := &cli{stdout: stdout}

	root := &cobra.Command{
		Use:   "simdstress",
		Short: "simdstress runs vector-instruction stress workloads",
		Long: `simdstress spawns worker threads that each drive one kernel for a fixed
duration and reports loops per second per worker.

Instruction types: 0 nop_loop, 1 vpmadd52huq, 2 vfmadd231pd.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "YAML config file")
	pf.String(config.KeyLogLevel, "info", "log level (debug, info, warn, error)")
	pf.IntP(config.KeyDuration, "d", 10, "seconds each worker runs")
	pf.IntP(config.KeyThreads, "t", 1, "number of worker threads")
	pf.IntP(config.KeyKernel, "i", config.KernelNop, "instruction type [0:nop_loop 1:madd 2:fmadd]")
	pf.IntP(config.KeyNopPerLoop, "l", config.DefaultSpinLoops, "increments per nop_loop call")
	pf.Int(config.KeyVectorBits, 0, "vector width in bits (128, 256, 512; 0 detects)")
	pf.Bool(config.KeyPin, false, "pin worker i to cpu i mod NumCPU")
	pf.Bool(config.KeyCycles, false, "append average cycles per loop to each report line")

	root.Flags().String(config.KeyMetricsAddr, "", "serve /metrics and /ws on this address while running")

	root.AddCommand(c.kernelsCmd(), c.configCmd(), c.remoteCmd())
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	v, err := config.New(c.cfgFile)
	if err != nil {
		return err
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	log, err := logging.New(v.GetString(config.KeyLogLevel))
	if err != nil {
		return err
	}
	c.v = v
	c.log = log
	return nil
}

// workload loads and validates the run configuration, rejecting an unknown
// kernel before anything starts.
func (c *cli) workload() (config.WorkloadConfig, error) {
	cfg, err := config.Load(c.v).Validate()
	if err != nil {
		return cfg, err
	}
	if _, err := stress.LookupKernel(cfg.Kernel); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *cli) run() error {
	cfg, err := c.workload()
	if err != nil {
		return err
	}
	runner, err := stress.NewRunner(cfg, stress.Options{Out: c.stdout, Logger: c.log})
	if err != nil {
		return err
	}

	if addr := c.v.GetString(config.KeyMetricsAddr); addr != "" {
		mon := monitor.New(500*time.Millisecond, c.log)
		mon.Attach(runner)
		mon.Start()
		defer mon.Stop()

		mux := http.NewServeMux()
		mon.RegisterHTTP(mux)
		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			c.log.Infof("📊 Metrics endpoint on %s/metrics", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				c.log.Errorf("❌ Metrics server failed: %v", err)
			}
		}()
		defer srv.Close()
		defer mon.Detach()
	}

	_, err = runner.Run()
	return err
}

func (c *cli) kernelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kernels",
		Short: "List the kernel table and the host's vector features",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, k := range stress.Kernels() {
				fmt.Fprintf(c.stdout, "%d\t%-12s\t%s\n", k.ID, k.Instruction, k.Name)
			}
			fmt.Fprintf(c.stdout, "vector width: %d bits\n", config.DetectVectorBits())
			fmt.Fprintf(c.stdout, "features: %v\n", config.Features())
			return nil
		},
	}
}

func (c *cli) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective workload configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.workload()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(c.stdout)
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			return enc.Close()
		},
	}
}

func (c *cli) remoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Run the workload on an agent and print its report lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The agent resolves the vector width on its own host, so only
			// the bounds are checked here.
			cfg := config.Load(c.v)
			if _, err := cfg.Validate(); err != nil {
				return err
			}
			if _, err := stress.LookupKernel(cfg.Kernel); err != nil {
				return err
			}
			addr := c.v.GetString(config.KeyAgentAddr)
			client, err := agent.Dial(addr)
			if err != nil {
				return err
			}
			defer client.Close()

			timeout := cfg.Duration() + stress.GracePeriod + 30*time.Second
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			c.log.Infof("🚀 Running instruction type %d on %s", cfg.Kernel, addr)
			rep, err := client.Run(ctx, cfg)
			if err != nil {
				return fmt.Errorf("remote run: %w", err)
			}
			for _, r := range rep.Results {
				fmt.Fprintln(c.stdout, stress.FormatResult(r, rep.Cycles))
			}
			return nil
		},
	}
	cmd.Flags().String(config.KeyAgentAddr, "localhost:50061", "agent gRPC address")
	return cmd
}
