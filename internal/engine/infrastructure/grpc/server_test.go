package grpc

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmehra2102/storefront-engine/pkg/docstore"
)

func TestHealth_TracksStore(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := docstore.NewMemoryStore()
	srv := NewServer(log, store)

	gs, _, err := Run("127.0.0.1:0", srv)
	if err != nil {
		t.Fatal(err)
	}
	defer gs.Stop()

	if got := srv.Check(context.Background()); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", got)
	}
	_ = store.Close()
	if got := srv.Check(context.Background()); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %v", got)
	}
}

func TestHealth_OverTheWire(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(log, docstore.NewMemoryStore())
	srv.Check(context.Background())

	gs, lisAddr, err := Run("127.0.0.1:0", srv)
	if err != nil {
		t.Fatal(err)
	}
	defer gs.Stop()

	conn, err := grpc.NewClient(lisAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", resp.Status)
	}
}
