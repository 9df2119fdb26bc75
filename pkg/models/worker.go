package models

import "time"

// WorkerRecord holds the most recent contact time of a worker.
type WorkerRecord struct {
	ID       string    `json:"id"`        // Caller-supplied worker identifier
	LastSeen time.Time `json:"last_seen"` // Time of the latest heartbeat
}
