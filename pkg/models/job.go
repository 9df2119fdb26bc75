package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a job. It only moves forward:
// queued -> claimed -> complete.
type JobStatus string

const (
	StatusQueued   JobStatus = "queued"
	StatusClaimed  JobStatus = "claimed"
	StatusComplete JobStatus = "complete"
)

// Rank orders statuses along the lifecycle. Unknown statuses rank below queued.
func (s JobStatus) Rank() int {
	switch s {
	case StatusQueued:
		return 1
	case StatusClaimed:
		return 2
	case StatusComplete:
		return 3
	}
	return 0
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool { return s.Rank() > 0 }

// Job represents a unit of work submitted by a producer and pulled by a worker.
type Job struct {
	ID          string          `json:"id"`
	Seq         uint64          `json:"seq"`
	Payload     json.RawMessage `json:"payload"`
	Status      JobStatus       `json:"status"`
	ClaimedBy   string          `json:"claimed_by,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ClaimedAt   *time.Time      `json:"claimed_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Clone returns a deep copy so callers can hold it without sharing
// buffers with the ledger.
func (j *Job) Clone() Job {
	cp := *j
	cp.Payload = cloneRaw(j.Payload)
	cp.Result = cloneRaw(j.Result)
	if j.ClaimedAt != nil {
		t := *j.ClaimedAt
		cp.ClaimedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return json.RawMessage(bytes.Clone(raw))
}
