package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/athulya-anil/axon-orchestrator/pkg/coordinator"
	"github.com/athulya-anil/axon-orchestrator/pkg/ledger"
	"github.com/athulya-anil/axon-orchestrator/pkg/liveness"
	"github.com/athulya-anil/axon-orchestrator/pkg/models"
)

func startServer(t *testing.T) (*Client, *coordinator.Coordinator) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := coordinator.New(ledger.New(), liveness.NewTracker(), coordinator.WithLogger(logger))

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(svc, logger)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, svc
}

func TestScenarioOverGRPC(t *testing.T) {
	client, svc := startServer(t)
	ctx := context.Background()

	id, err := client.Submit(ctx, json.RawMessage(`{"x":1}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	j, err := client.Claim(ctx, "w1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if j == nil || j.ID != id || string(j.Payload) != `{"x":1}` {
		t.Fatalf("unexpected claim %+v", j)
	}

	empty, err := client.Claim(ctx, "w2")
	if err != nil || empty != nil {
		t.Fatalf("expected no job for w2, got %+v (err=%v)", empty, err)
	}

	if err := client.Complete(ctx, id, json.RawMessage(`{"y":2}`)); err != nil {
		t.Fatalf("complete: %v", err)
	}

	stored, _ := svc.GetJob(id)
	if stored.Status != models.StatusComplete || string(stored.Result) != `{"y":2}` {
		t.Fatalf("unexpected stored job %+v", stored)
	}
}

func TestCompleteUnknownJobOverGRPC(t *testing.T) {
	client, _ := startServer(t)

	err := client.Complete(context.Background(), "missing", json.RawMessage(`{}`))
	if !errors.Is(err, ledger.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestHeartbeatOverGRPC(t *testing.T) {
	client, svc := startServer(t)

	if err := client.Heartbeat(context.Background(), "w1"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	workers := svc.ListWorkers()
	if len(workers) != 1 || workers[0].ID != "w1" {
		t.Fatalf("unexpected workers %+v", workers)
	}
}

func TestInvalidArguments(t *testing.T) {
	client, _ := startServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{name: "submit array payload", call: func() error {
			_, err := client.Submit(ctx, json.RawMessage(`[1]`))
			return err
		}},
		{name: "claim without worker", call: func() error {
			_, err := client.Claim(ctx, "")
			return err
		}},
		{name: "heartbeat without worker", call: func() error {
			return client.Heartbeat(ctx, "")
		}},
		{name: "complete without job id", call: func() error {
			return client.Complete(ctx, "", json.RawMessage(`{}`))
		}},
		{name: "complete with null result", call: func() error {
			return client.Complete(ctx, "x", json.RawMessage(`null`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if code := status.Code(errors.Unwrap(err)); code != codes.InvalidArgument {
				t.Fatalf("expected InvalidArgument, got %v (%v)", code, err)
			}
		})
	}
}

func TestRecoverInterceptor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	interceptor := RecoverInterceptor(logger)

	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: claimMethod},
		func(context.Context, any) (any, error) { panic("boom") })

	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
}
