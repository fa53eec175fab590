// Package grpcserver exposes detector liveness over the standard gRPC health
// protocol.
package grpcserver

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GriffinCanCode/hookwatch/internal/orchestrator"
	"github.com/GriffinCanCode/hookwatch/internal/orchestrator/hook"
	"github.com/GriffinCanCode/hookwatch/internal/trace"
)

// ServiceName reports SERVING while detection runs.
const ServiceName = "hookwatch.Detector"

// Server wraps a grpc.Server carrying the health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// New creates a server with trace interceptors. Detection starts out
// NOT_SERVING; the server as a whole is SERVING.
func New() *Server {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(trace.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(trace.StreamServerInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{grpc: gs, health: hs}
}

// SetRunning updates the detector service status.
func (s *Server) SetRunning(running bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if running {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// Follow mirrors state events into the health status until ctx ends or
// events is closed.
func (s *Server) Follow(ctx context.Context, events <-chan orchestrator.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Kind == hook.EventState {
				s.SetRunning(evt.Running)
				trace.Logger(trace.WithRun(ctx, evt.RunID)).Debug("health updated", "running", evt.Running)
			}
		}
	}
}

// Serve blocks serving on lis.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// GracefulStop marks everything NOT_SERVING and drains in-flight calls.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
