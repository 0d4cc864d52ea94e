package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/kunal/simd-stress/pkg/agent"
	"github.com/kunal/simd-stress/pkg/config"
	"github.com/kunal/simd-stress/pkg/logging"
)

func main() {
	v, err := config.New(os.Getenv(config.EnvPrefix + "_CONFIG"))
	if err != nil {
		logrus.Fatalf("❌ Failed to load config: %v", err)
	}
	cfg := config.LoadAgent(v)
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		logrus.Fatalf("❌ %v", err)
	}
	log.Infof("⚡ Agent starting on port %d", cfg.AgentPort)
	log.Infof("   Metrics on port %d", cfg.MetricsPort)
	log.Infof("   Vector width %d bits, features %v", config.DetectVectorBits(), config.Features())

	a := agent.New(cfg, log)
	a.Start()

	grpcServer := grpc.NewServer()
	a.RegisterGRPC(grpcServer)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.AgentPort))
	if err != nil {
		log.Fatalf("❌ Failed to listen on port %d: %v", cfg.AgentPort, err)
	}

	go func() {
		mux := http.NewServeMux()
		a.RegisterHTTP(mux)
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		log.Infof("📊 Metrics endpoint on %s/metrics", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatalf("❌ Metrics server failed: %v", err)
		}
	}()

	go func() {
		log.Infof("🚀 gRPC server listening on %s", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("❌ gRPC server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("🛑 Shutting down agent...")
	grpcServer.GracefulStop()
	a.Stop()
	log.Info("✅ Agent stopped")
}
