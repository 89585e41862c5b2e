// Package server exposes the standard gRPC health service so orchestrators
// can probe the guard and each of its backing stores.
package server

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// DefaultProbeInterval is how often backing stores are re-probed.
const DefaultProbeInterval = 15 * time.Second

const probeTimeout = 3 * time.Second

// Check probes one backing store. Service is the name reported through the
// health service, e.g. "guard.postgres".
type Check struct {
	Service string
	Probe   func(ctx context.Context) error
}

// HealthServer serves grpc.health.v1.Health. The overall ("") status is
// SERVING from startup until Shutdown; backing stores report individually
// because the pipeline degrades rather than fails without them.
type HealthServer struct {
	grpc     *grpc.Server
	health   *health.Server
	checks   []Check
	interval time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	last map[string]healthpb.HealthCheckResponse_ServingStatus
}

// NewHealthServer creates a health server with the given store checks.
func NewHealthServer(checks []Check, interval time.Duration, logger *zap.Logger) *HealthServer {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	s := &HealthServer{
		health:   health.NewServer(),
		checks:   checks,
		interval: interval,
		logger:   logger,
		last:     make(map[string]healthpb.HealthCheckResponse_ServingStatus),
	}
	s.grpc = grpc.NewServer(grpc.UnaryInterceptor(s.logUnary))
	healthpb.RegisterHealthServer(s.grpc, s.health)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, c := range checks {
		s.health.SetServingStatus(c.Service, healthpb.HealthCheckResponse_UNKNOWN)
	}
	return s
}

// Serve accepts connections on lis until Shutdown.
func (s *HealthServer) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Run probes every check immediately and then every interval until ctx is done.
func (s *HealthServer) Run(ctx context.Context) {
	s.probe(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probe(ctx)
		}
	}
}

func (s *HealthServer) probe(ctx context.Context) {
	for _, c := range s.checks {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := c.Probe(pctx)
		cancel()

		st := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}

		s.mu.Lock()
		prev, seen := s.last[c.Service]
		s.last[c.Service] = st
		s.mu.Unlock()

		if !seen || prev != st {
			if err != nil {
				s.logger.Warn("backing store unhealthy", zap.String("service", c.Service), zap.Error(err))
			} else {
				s.logger.Info("backing store healthy", zap.String("service", c.Service))
			}
		}
		s.health.SetServingStatus(c.Service, st)
	}
}

// Shutdown marks every service NOT_SERVING and stops the server gracefully.
func (s *HealthServer) Shutdown() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func (s *HealthServer) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug("grpc request",
		zap.String("method", info.FullMethod),
		zap.String("code", status.Code(err).String()),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, err
}
