package grpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmehra2102/storefront-engine/pkg/docstore"
)

const ServiceName = "storefront.engine"

// Server exposes grpc.health.v1 and reports NOT_SERVING while the document
// store is unreachable.
type Server struct {
	log    *slog.Logger
	store  docstore.Reader
	health *health.Server
}

func NewServer(log *slog.Logger, store docstore.Reader) *Server {
	return &Server{log: log, store: store, health: health.NewServer()}
}

// Check probes the store once and updates the served status.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if _, err := s.store.Query(ctx, "health_probe"); err != nil {
		s.log.Warn("store health probe failed", "err", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Watch re-probes the store every interval until ctx ends.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	s.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-t.C:
			s.Check(ctx)
		}
	}
}

// Run serves in the background and returns the bound address.
func Run(addr string, srv *Server) (*grpc.Server, string, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", err
	}
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, srv.health)
	go func() {
		if err := gs.Serve(lis); err != nil {
			srv.log.Error("grpc serve stopped", "err", err)
		}
	}()
	return gs, lis.Addr().String(), nil
}
