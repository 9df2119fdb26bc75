// Package ledger holds the authoritative in-memory set of jobs and
// arbitrates which worker may claim which job.
package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/athulya-anil/axon-orchestrator/pkg/models"
)

// ErrJobNotFound is returned when a job id was never submitted.
var ErrJobNotFound = errors.New("ledger: job not found")

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for created/claimed/completed stamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator overrides job id generation. Generated ids that collide
// with an existing job are discarded and regenerated.
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) { l.newID = gen }
}

// Stats is a point-in-time count of jobs by status.
type Stats struct {
	Queued   int `json:"queued"`
	Claimed  int `json:"claimed"`
	Complete int `json:"complete"`
	Total    int `json:"total"`
}

// Ledger stores every job for the lifetime of the process. Jobs are never
// deleted. A single mutex serializes all access, so the pending scan and
// transition in Claim is atomic with respect to Submit and other Claims.
type Ledger struct {
	mu      sync.Mutex
	jobs    map[string]*models.Job
	pending pendingQueue
	seq     uint64

	now   func() time.Time
	newID func() string
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		jobs:  make(map[string]*models.Job),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Submit stores a new queued job holding payload and returns its id.
func (l *Ledger) Submit(payload json.RawMessage) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.newID()
	for _, taken := l.jobs[id]; taken; _, taken = l.jobs[id] {
		id = l.newID()
	}

	l.seq++
	l.jobs[id] = &models.Job{
		ID:        id,
		Seq:       l.seq,
		Payload:   json.RawMessage(bytes.Clone(payload)),
		Status:    models.StatusQueued,
		CreatedAt: l.now(),
	}
	l.pending.Push(id)
	return id
}

// Claim hands the oldest queued job to workerID and marks it claimed.
// It returns false when no job is queued.
func (l *Ledger) Claim(workerID string) (models.Job, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		id, ok := l.pending.Pop()
		if !ok {
			return models.Job{}, false
		}
		j := l.jobs[id]
		// A queued job completed out of band is still in the index; drop it.
		if j.Status != models.StatusQueued {
			continue
		}

		now := l.now()
		j.Status = models.StatusClaimed
		j.ClaimedBy = workerID
		j.ClaimedAt = &now
		return j.Clone(), true
	}
}

// Complete stores result on the job and marks it complete. Any current
// status is accepted and a previous result is overwritten. Unknown ids
// leave the ledger untouched and return ErrJobNotFound.
func (l *Ledger) Complete(jobID string, result json.RawMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	j, ok := l.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	now := l.now()
	j.Status = models.StatusComplete
	j.Result = json.RawMessage(bytes.Clone(result))
	j.CompletedAt = &now
	return nil
}

// Get returns a copy of the job with the given id.
func (l *Ledger) Get(jobID string) (models.Job, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	j, ok := l.jobs[jobID]
	if !ok {
		return models.Job{}, ErrJobNotFound
	}
	return j.Clone(), nil
}

// List returns copies of all jobs in submission order. An empty status
// matches every job.
func (l *Ledger) List(status models.JobStatus) []models.Job {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.Job, 0, len(l.jobs))
	for _, j := range l.jobs {
		if status != "" && j.Status != status {
			continue
		}
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Seq < out[k].Seq })
	return out
}

// Stats counts jobs by status.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Stats{Total: len(l.jobs)}
	for _, j := range l.jobs {
		switch j.Status {
		case models.StatusQueued:
			s.Queued++
		case models.StatusClaimed:
			s.Claimed++
		case models.StatusComplete:
			s.Complete++
		}
	}
	return s
}

// Len returns the number of jobs ever submitted.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.jobs)
}
