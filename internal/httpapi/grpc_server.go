package httpapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"noorstitching.org/internal/obs"
)

// GRPCServer publishes portal readiness over the standard gRPC health
// protocol, under both the empty service name and serviceName.
type GRPCServer struct {
	health    *health.Server
	readiness readinessChecker
}

// NewGRPCServer creates the health service. It reports NOT_SERVING until the
// first probe succeeds.
func NewGRPCServer(r readinessChecker) *GRPCServer {
	s := &GRPCServer{health: health.NewServer(), readiness: r}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Register attaches the health service to srv.
func (s *GRPCServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
}

// Probe runs the readiness check once and publishes the result.
func (s *GRPCServer) Probe(ctx context.Context) error {
	err := s.readiness.Check(ctx)
	if err != nil {
		s.set(healthpb.HealthCheckResponse_NOT_SERVING)
		obs.SetReady(false)
		return err
	}
	s.set(healthpb.HealthCheckResponse_SERVING)
	obs.SetReady(true)
	return nil
}

// Run probes every interval until ctx ends, then marks the service as
// shutting down so clients drain before the listener closes.
func (s *GRPCServer) Run(ctx context.Context, every time.Duration) {
	probe := func() {
		pctx, cancel := context.WithTimeout(ctx, every)
		defer cancel()
		if err := s.Probe(pctx); err != nil && ctx.Err() == nil {
			obs.Logger().Warn("readiness_probe_failed", zap.Error(err))
		}
	}
	probe()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-ticker.C:
			probe()
		}
	}
}

func (s *GRPCServer) set(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(serviceName, st)
}
