package httpapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"retailgate.org/internal/obs"
)

// GRPCServer serves the standard gRPC health protocol. Its status follows the
// same readiness probe as GET /readyz.
type GRPCServer struct {
	readiness readinessChecker
	health    *health.Server
	logger    *zap.Logger
}

// NewGRPCServer creates the health service wrapper. A nil probe always reports
// serving.
func NewGRPCServer(r readinessChecker, logger *zap.Logger) *GRPCServer {
	if r == nil {
		r = ReadyProbe{}
	}
	if logger == nil {
		logger = obs.Logger()
	}
	return &GRPCServer{readiness: r, health: health.NewServer(), logger: logger}
}

// Register attaches the health and reflection services to srv.
func (s *GRPCServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
	reflection.Register(srv)
}

// Refresh runs the readiness probe once and publishes the result for the
// overall server and the named service.
func (s *GRPCServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if err := s.readiness.Check(ctx); err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn("readiness probe failed", zap.Error(err))
	}
	obs.SetReady(st == healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(serviceName, st)
	return st
}

// Run refreshes the status every interval until ctx is done, then marks the
// server as shutting down.
func (s *GRPCServer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s.Refresh(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-t.C:
			s.Refresh(ctx)
		}
	}
}
