package rpc

import (
	"encoding/json"
	"time"
)

// SubmitRequest carries the payload of a new job.
type SubmitRequest struct {
	Payload json.RawMessage `json:"payload"`
}

// SubmitResponse returns the id of the queued job.
type SubmitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// ClaimRequest asks for the next queued job on behalf of a worker.
type ClaimRequest struct {
	WorkerID string `json:"worker_id"`
}

// ClaimResponse has Found=false when no job is queued.
type ClaimResponse struct {
	Found   bool            `json:"found"`
	JobID   string          `json:"job_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CompleteRequest stores the result of a job.
type CompleteRequest struct {
	JobID  string          `json:"job_id"`
	Result json.RawMessage `json:"result"`
}

// CompleteResponse acknowledges a stored result.
type CompleteResponse struct {
	Status string `json:"status"`
}

// HeartbeatRequest reports that a worker is alive.
type HeartbeatRequest struct {
	WorkerID string `json:"worker_id"`
}

// HeartbeatResponse echoes the recorded contact time.
type HeartbeatResponse struct {
	Acknowledged bool      `json:"acknowledged"`
	LastSeen     time.Time `json:"last_seen"`
}
