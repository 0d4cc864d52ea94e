package agent

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/kunal/simd-stress/pkg/config"
	"github.com/kunal/simd-stress/pkg/monitor"
	"github.com/kunal/simd-stress/pkg/stress"
)

// Agent is the long-running service that executes workloads on request.
// It runs at most one workload at a time so runs never perturb each other.
type Agent struct {
	cfg     config.AgentConfig
	log     *logrus.Logger
	monitor *monitor.Monitor
	busy    atomic.Bool
}

// New creates an Agent with the given configuration.
func New(cfg config.AgentConfig, log *logrus.Logger) *Agent {
	return &Agent{
		cfg:     cfg,
		log:     log,
		monitor: monitor.New(cfg.SampleInterval, log),
	}
}

// RegisterGRPC registers the agent's gRPC service.
func (a *Agent) RegisterGRPC(s *grpc.Server) {
	RegisterStressServer(s, a)
}

// RegisterHTTP registers /metrics, /health and /ws.
func (a *Agent) RegisterHTTP(mux *http.ServeMux) {
	a.monitor.RegisterHTTP(mux)
}

// Start starts the progress monitor.
func (a *Agent) Start() { a.monitor.Start() }

// Stop shuts the monitor down. A run in flight keeps going until its
// deadline; there is no early abort.
func (a *Agent) Stop() { a.monitor.Stop() }

type runOutcome struct {
	results []stress.Result
	err     error
}

// Run handles one workload request. It blocks until every worker has
// terminated or the caller gives up; in the latter case the run still
// completes in the background.
func (a *Agent) Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cfg, err := DecodeConfig(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if !a.busy.CompareAndSwap(false, true) {
		return nil, status.Error(codes.Unavailable, "agent is busy with another run")
	}
	started := false
	defer func() {
		if !started {
			a.busy.Store(false)
		}
	}()

	runner, err := stress.NewRunner(cfg, stress.Options{Logger: a.log})
	if err != nil {
		if errors.Is(err, stress.ErrUnknownKernel) || errors.Is(err, config.ErrInvalid) || errors.Is(err, stress.ErrInvalidGeometry) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Errorf(codes.Internal, "create runner: %v", err)
	}
	cfg = runner.Config()

	a.monitor.Attach(runner)
	done := make(chan runOutcome, 1)
	started = true
	go func() {
		results, err := runner.Run()
		a.monitor.Detach()
		a.busy.Store(false)
		done <- runOutcome{results: results, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, status.Errorf(codes.Internal, "run failed: %v", out.err)
		}
		for _, r := range out.results {
			a.log.Info(stress.FormatResult(r, cfg.Cycles))
		}
		return EncodeReport(cfg, out.results)
	case <-ctx.Done():
		a.log.Warnf("⚠️  Caller left before the run finished: %v", ctx.Err())
		return nil, status.FromContextError(ctx.Err()).Err()
	}
}
