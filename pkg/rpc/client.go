package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/athulya-anil/axon-orchestrator/pkg/ledger"
	"github.com/athulya-anil/axon-orchestrator/pkg/models"
)

// Client talks to the coordinator over gRPC.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for the coordinator at addr (host:port).
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to coordinator: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Submit queues payload and returns the job id.
func (c *Client) Submit(ctx context.Context, payload json.RawMessage) (string, error) {
	var resp SubmitResponse
	if err := c.conn.Invoke(ctx, submitMethod, &SubmitRequest{Payload: payload}, &resp); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	return resp.JobID, nil
}

// Claim returns the next job for workerID, or nil when none is queued.
func (c *Client) Claim(ctx context.Context, workerID string) (*models.Job, error) {
	var resp ClaimResponse
	if err := c.conn.Invoke(ctx, claimMethod, &ClaimRequest{WorkerID: workerID}, &resp); err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	if !resp.Found {
		return nil, nil
	}
	return &models.Job{ID: resp.JobID, Payload: resp.Payload, Status: models.StatusClaimed, ClaimedBy: workerID}, nil
}

// Complete stores result for jobID. Unknown ids yield ledger.ErrJobNotFound.
func (c *Client) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	var resp CompleteResponse
	err := c.conn.Invoke(ctx, completeMethod, &CompleteRequest{JobID: jobID, Result: result}, &resp)
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("complete %s: %w", jobID, ledger.ErrJobNotFound)
	}
	if err != nil {
		return fmt.Errorf("complete %s: %w", jobID, err)
	}
	return nil
}

// Heartbeat reports that workerID is alive.
func (c *Client) Heartbeat(ctx context.Context, workerID string) error {
	var resp HeartbeatResponse
	if err := c.conn.Invoke(ctx, heartbeatMethod, &HeartbeatRequest{WorkerID: workerID}, &resp); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}
