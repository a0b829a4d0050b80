// Package grpcx exposes the standard gRPC health service for the chat core.
package grpcx

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Check probes one dependency; a nil error means healthy.
type Check func(ctx context.Context) error

type Health struct {
	srv    *health.Server
	checks map[string]Check
	log    *slog.Logger
}

// NewServer builds a gRPC server with the health service registered. Each
// check is reported under its own service name; "" is the overall status.
func NewServer(log *slog.Logger, checks map[string]Check) (*grpc.Server, *Health) {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(log, 10*time.Second)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor(log)),
	)

	h := &Health{srv: health.NewServer(), checks: checks, log: log}
	healthpb.RegisterHealthServer(s, h.srv)
	reflection.Register(s)

	return s, h
}

// Probe runs every check once and updates the reported statuses.
func (h *Health) Probe(ctx context.Context) {
	overall := healthpb.HealthCheckResponse_SERVING
	for name, check := range h.checks {
		st := healthpb.HealthCheckResponse_SERVING
		if err := check(ctx); err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			overall = st
			h.log.WarnContext(ctx, "health check failed", "check", name, "err", err)
		}
		h.srv.SetServingStatus(name, st)
	}
	h.srv.SetServingStatus("", overall)
}

// Run probes every interval until ctx is done, then reports NOT_SERVING.
func (h *Health) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	h.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, interval)
			h.Probe(pctx)
			cancel()
		}
	}
}
