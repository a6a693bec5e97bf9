package grpcapi

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

type probeFunc func(context.Context) error

func (f probeFunc) Check(ctx context.Context) error { return f(ctx) }

func startBufGRPC(t *testing.T, srv *Server) healthpb.HealthClient {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	go func() {
		if err := srv.GRPC().Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		srv.GRPC().Stop()
		_ = listener.Close()
	})
	return healthpb.NewHealthClient(conn)
}

func TestHealthFollowsReadiness(t *testing.T) {
	var failing bool
	srv := New(probeFunc(func(context.Context) error {
		if failing {
			return errors.New("db down")
		}
		return nil
	}), nil)
	client := startBufGRPC(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status before probe = %v", resp.GetStatus())
	}

	if err := srv.Probe(ctx); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status after probe = %v", resp.GetStatus())
	}

	failing = true
	if err := srv.Probe(ctx); err == nil {
		t.Fatal("expected probe error")
	}
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status after failure = %v", resp.GetStatus())
	}
}

func TestUnaryLoggingRecordsCalls(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	srv := New(probeFunc(func(context.Context) error { return nil }), zap.New(core))
	client := startBufGRPC(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.Check(ctx, &healthpb.HealthCheckRequest{}); err != nil {
		t.Fatalf("Check: %v", err)
	}

	entries := logs.FilterMessage("grpc call").All()
	if len(entries) != 1 {
		t.Fatalf("expected one grpc call log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["method"] != "/grpc.health.v1.Health/Check" || fields["code"] != "OK" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}
