// Package server exposes the worker's gRPC health endpoint.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// WorkerService is the health service name reported alongside the overall status.
const WorkerService = "careplan.worker"

// PingFunc checks one dependency; a non-nil error means NOT_SERVING.
type PingFunc func(ctx context.Context) error

// HealthServer is a gRPC server whose health status follows a periodic ping.
type HealthServer struct {
	grpc     *grpc.Server
	health   *health.Server
	ping     PingFunc
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	serving  atomic.Bool
}

func NewHealthServer(ping PingFunc, interval time.Duration, logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	// reflection for grpcurl
	reflection.Register(gs)

	s := &HealthServer{
		grpc:     gs,
		health:   hs,
		ping:     ping,
		interval: interval,
		timeout:  3 * time.Second,
		logger:   logger,
	}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Health returns the underlying health service.
func (s *HealthServer) Health() healthpb.HealthServer { return s.health }

// Check pings once and updates the reported status.
func (s *HealthServer) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := s.ping(ctx)
	switch {
	case err != nil && s.serving.Load():
		s.logger.Warn("health.not_serving", "error", err)
	case err == nil && !s.serving.Load():
		s.logger.Info("health.serving")
	}
	if err != nil {
		s.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	}
	s.set(healthpb.HealthCheckResponse_SERVING)
	return nil
}

func (s *HealthServer) set(st healthpb.HealthCheckResponse_ServingStatus) {
	s.serving.Store(st == healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(WorkerService, st)
}

// Serve listens on addr until ctx is done, then stops gracefully.
func (s *HealthServer) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, lis)
}

func (s *HealthServer) ServeListener(ctx context.Context, lis net.Listener) error {
	_ = s.Check(ctx)
	go s.watch(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(lis) }()
	s.logger.Info("grpc.serving", "addr", lis.Addr().String())

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		<-errCh
		s.logger.Info("grpc.stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

func (s *HealthServer) watch(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = s.Check(ctx)
		}
	}
}
