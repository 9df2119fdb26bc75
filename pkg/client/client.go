// Package client is an HTTP client for the orchestrator REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/athulya-anil/axon-orchestrator/pkg/ledger"
	"github.com/athulya-anil/axon-orchestrator/pkg/models"
)

// Client handles communication with the orchestrator over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type submitRequest struct {
	Payload json.RawMessage `json:"payload"`
}

type submitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type claimResponse struct {
	JobID   *string         `json:"job_id"`
	Payload json.RawMessage `json:"payload"`
}

type completeRequest struct {
	JobID  string          `json:"job_id"`
	Result json.RawMessage `json:"result"`
}

// NewClient creates a new orchestrator client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Submit queues payload and returns the new job id
func (c *Client) Submit(ctx context.Context, payload json.RawMessage) (string, error) {
	var resp submitResponse
	if err := c.do(ctx, http.MethodPost, "/submit", submitRequest{Payload: payload}, http.StatusOK, &resp); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	return resp.JobID, nil
}

// Claim asks for the next job for workerID. It returns nil when the queue is empty.
func (c *Client) Claim(ctx context.Context, workerID string) (*models.Job, error) {
	var resp claimResponse
	path := "/claim?worker_id=" + url.QueryEscape(workerID)
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &resp); err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	if resp.JobID == nil {
		return nil, nil
	}
	return &models.Job{ID: *resp.JobID, Payload: resp.Payload, Status: models.StatusClaimed, ClaimedBy: workerID}, nil
}

// Complete stores result for jobID. Unknown ids yield ledger.ErrJobNotFound.
func (c *Client) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	err := c.do(ctx, http.MethodPost, "/complete", completeRequest{JobID: jobID, Result: result}, http.StatusOK, nil)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return fmt.Errorf("complete %s: %w", jobID, ledger.ErrJobNotFound)
	}
	if err != nil {
		return fmt.Errorf("complete %s: %w", jobID, err)
	}
	return nil
}

// Heartbeat reports that workerID is alive
func (c *Client) Heartbeat(ctx context.Context, workerID string) error {
	path := "/heartbeat?worker_id=" + url.QueryEscape(workerID)
	if err := c.do(ctx, http.MethodPost, path, nil, http.StatusOK, nil); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// Health checks if the orchestrator is healthy
func (c *Client) Health(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/health", nil, http.StatusOK, nil); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// StatusError is returned when the server answers with an unexpected status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return &StatusError{Code: resp.StatusCode, Body: string(bodyBytes)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
