// Package liveness records the last time each worker made contact.
// It is observability only: nothing here changes job state.
package liveness

import (
	"sort"
	"sync"
	"time"

	"github.com/athulya-anil/axon-orchestrator/pkg/models"
)

// Tracker keeps one record per worker id. Records are created on the
// first heartbeat and overwritten by each later one; they are never removed.
type Tracker struct {
	mu      sync.RWMutex
	workers map[string]*models.WorkerRecord
	now     func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source for heartbeats and silence checks.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		workers: make(map[string]*models.WorkerRecord),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordHeartbeat sets the worker's last-seen time to now and returns it.
func (t *Tracker) RecordHeartbeat(workerID string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if w, ok := t.workers[workerID]; ok {
		w.LastSeen = now
	} else {
		t.workers[workerID] = &models.WorkerRecord{ID: workerID, LastSeen: now}
	}
	return now
}

// Get returns the record for workerID, if it has ever sent a heartbeat.
func (t *Tracker) Get(workerID string) (models.WorkerRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	w, ok := t.workers[workerID]
	if !ok {
		return models.WorkerRecord{}, false
	}
	return *w, true
}

// List returns every known worker sorted by id.
func (t *Tracker) List() []models.WorkerRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.WorkerRecord, 0, len(t.workers))
	for _, w := range t.workers {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// Silent returns the workers whose last heartbeat is older than threshold.
func (t *Tracker) Silent(threshold time.Duration) []models.WorkerRecord {
	now := t.now()

	var out []models.WorkerRecord
	for _, w := range t.List() {
		if now.Sub(w.LastSeen) > threshold {
			out = append(out, w)
		}
	}
	return out
}

// Len returns the number of known workers.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.workers)
}
