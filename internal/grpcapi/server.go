package grpcapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"tenantauth.org/internal/obs"
)

// ServiceName is the health service key reported alongside the overall "" key.
const ServiceName = "tenantauth"

// ReadinessChecker reports whether dependencies are reachable.
type ReadinessChecker interface {
	Check(ctx context.Context) error
}

// Server exposes grpc.health.v1 driven by a readiness probe.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	ready  ReadinessChecker
	log    *zap.Logger
}

// New builds the gRPC server and registers the health service.
func New(ready ReadinessChecker, log *zap.Logger, opts ...grpc.ServerOption) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(UnaryLogging(log))}, opts...)
	s := &Server{
		grpc:   grpc.NewServer(opts...),
		health: health.NewServer(),
		ready:  ready,
		log:    log,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// GRPC returns the underlying server for Serve and GracefulStop.
func (s *Server) GRPC() *grpc.Server {
	return s.grpc
}

// Probe runs the readiness check once and publishes the result.
func (s *Server) Probe(ctx context.Context) error {
	var err error
	if s.ready != nil {
		err = s.ready.Check(ctx)
	}
	if err != nil {
		s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
		obs.SetReady(false)
		return err
	}
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
	obs.SetReady(true)
	return nil
}

// Watch probes readiness every interval until ctx is done.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		probeCtx, cancel := context.WithTimeout(ctx, interval)
		if err := s.Probe(probeCtx); err != nil && ctx.Err() == nil {
			s.log.Warn("readiness probe failed", zap.Error(err))
		}
		cancel()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Shutdown marks every service NOT_SERVING and drains in-flight calls.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func (s *Server) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// UnaryLogging logs method, code and latency of each unary call.
func UnaryLogging(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("grpc call",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}
