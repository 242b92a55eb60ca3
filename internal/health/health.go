// Package health exposes the standard gRPC health service, with one service
// name per source so probes can target a single camera.
package health

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"crosswatch/internal/logging"
	"crosswatch/internal/session"
)

// ServicePrefix prefixes every per-source service name
const ServicePrefix = "crosswatch.source."

// DefaultPollInterval is how often Watch refreshes source statuses
const DefaultPollInterval = 2 * time.Second

const stopTimeout = 5 * time.Second

// StatusFunc reports the current status of every managed source
type StatusFunc func() map[string]session.Status

// ServiceName returns the health service name of a source
func ServiceName(sourceID string) string {
	return ServicePrefix + sourceID
}

// Server serves grpc.health.v1 for the process and its sources
type Server struct {
	health *health.Server
	server *grpc.Server
	logger logging.Logger

	mu    sync.Mutex
	known map[string]bool

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewServer creates the gRPC server with the health service registered. The
// overall service ("") reports SERVING until Stop.
func NewServer(logger logging.Logger) *Server {
	s := &Server{
		health: health.NewServer(),
		server: grpc.NewServer(),
		logger: logger.Named("grpc-health"),
		known:  make(map[string]bool),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return s
}

// Update sets each source to SERVING while it runs and NOT_SERVING otherwise.
// Sources that disappeared since the last update become NOT_SERVING.
func (s *Server) Update(statuses map[string]session.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.known {
		if _, ok := statuses[id]; !ok {
			s.health.SetServingStatus(ServiceName(id), healthpb.HealthCheckResponse_NOT_SERVING)
			delete(s.known, id)
		}
	}
	for id, status := range statuses {
		serving := healthpb.HealthCheckResponse_NOT_SERVING
		if status == session.StatusRunning {
			serving = healthpb.HealthCheckResponse_SERVING
		}
		s.health.SetServingStatus(ServiceName(id), serving)
		s.known[id] = true
	}
}

// Watch calls Update with statusFn every interval until ctx is done
func (s *Server) Watch(ctx context.Context, interval time.Duration, statusFn StatusFunc) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	s.Update(statusFn())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Update(statusFn())
		}
	}
}

// Start listens on addr and serves in the background
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.Serve(lis)
	return nil
}

// Serve serves on an existing listener in the background
func (s *Server) Serve(lis net.Listener) {
	s.running.Store(true)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Infow("gRPC health listening", "addr", lis.Addr().String())
		if err := s.server.Serve(lis); err != nil && s.running.Load() {
			s.logger.Errorw("gRPC server error", "error", err)
		}
	}()
}

// Stop marks every service NOT_SERVING and drains in-flight calls
func (s *Server) Stop() {
	if !s.running.Swap(false) {
		return
	}
	s.health.Shutdown()

	// Open Watch streams never finish on their own
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		s.server.Stop()
	}
	s.wg.Wait()
	s.logger.Infow("gRPC health stopped")
}
