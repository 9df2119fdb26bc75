// Package coordinator composes the job ledger and the liveness tracker
// into the single service instance handed to the transports.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/athulya-anil/axon-orchestrator/pkg/ledger"
	"github.com/athulya-anil/axon-orchestrator/pkg/liveness"
	"github.com/athulya-anil/axon-orchestrator/pkg/models"
)

// DefaultSilentAfter is how long a worker may go without a heartbeat
// before status views report it as silent.
const DefaultSilentAfter = 15 * time.Second

// Coordinator routes job and worker operations to the ledger and tracker.
// It is safe for concurrent use; the ledger and tracker do their own locking.
type Coordinator struct {
	ledger  *ledger.Ledger
	workers *liveness.Tracker

	logger      *slog.Logger
	tracer      trace.Tracer
	meter       metric.Meter
	inst        *instruments
	silentAfter time.Duration
	startedAt   time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithTracer sets the tracer used for per-operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Coordinator) { c.tracer = t }
}

// WithMeter sets the meter used for job and heartbeat instruments.
func WithMeter(m metric.Meter) Option {
	return func(c *Coordinator) { c.meter = m }
}

// WithSilentAfter sets the heartbeat age after which a worker is reported silent.
func WithSilentAfter(d time.Duration) Option {
	return func(c *Coordinator) { c.silentAfter = d }
}

// New creates a coordinator over the given ledger and tracker.
func New(l *ledger.Ledger, t *liveness.Tracker, opts ...Option) *Coordinator {
	c := &Coordinator{
		ledger:      l,
		workers:     t,
		logger:      slog.Default(),
		tracer:      otel.Tracer(instrumentationName),
		meter:       otel.Meter(instrumentationName),
		silentAfter: DefaultSilentAfter,
		startedAt:   time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.inst = newInstruments(c.meter, c.ledger)
	return c
}

// SubmitJob queues a new job and returns its id.
func (c *Coordinator) SubmitJob(ctx context.Context, payload json.RawMessage) string {
	ctx, span := c.startSpan(ctx, "axon.job.submit")
	defer span.End()

	id := c.ledger.Submit(payload)

	span.SetAttributes(attrJobID(id))
	c.inst.submitted.Add(ctx, 1)
	c.logger.Debug("job submitted", slog.String("job_id", id))
	return id
}

// ClaimJob hands the oldest queued job to workerID. The boolean is false
// when nothing is queued.
func (c *Coordinator) ClaimJob(ctx context.Context, workerID string) (models.Job, bool) {
	ctx, span := c.startSpan(ctx, "axon.job.claim", attrWorkerID(workerID))
	defer span.End()

	j, ok := c.ledger.Claim(workerID)
	if !ok {
		c.inst.claims.Add(ctx, 1, outcome("empty"))
		c.logger.Debug("no job available", slog.String("worker_id", workerID))
		return models.Job{}, false
	}

	span.SetAttributes(attrJobID(j.ID))
	c.inst.claims.Add(ctx, 1, outcome("claimed"))
	c.logger.Debug("job claimed",
		slog.String("job_id", j.ID),
		slog.String("worker_id", workerID),
	)
	return j, true
}

// CompleteJob stores the result for jobID. It returns ledger.ErrJobNotFound
// for ids that were never submitted.
func (c *Coordinator) CompleteJob(ctx context.Context, jobID string, result json.RawMessage) error {
	ctx, span := c.startSpan(ctx, "axon.job.complete", attrJobID(jobID))
	defer span.End()

	if err := c.ledger.Complete(jobID, result); err != nil {
		if errors.Is(err, ledger.ErrJobNotFound) {
			c.inst.completions.Add(ctx, 1, outcome("not_found"))
			c.logger.Warn("completion for unknown job", slog.String("job_id", jobID))
		}
		recordError(span, err)
		return err
	}

	c.inst.completions.Add(ctx, 1, outcome("stored"))
	c.logger.Debug("job completed", slog.String("job_id", jobID))
	return nil
}

// Heartbeat records contact from workerID and returns the recorded time.
func (c *Coordinator) Heartbeat(ctx context.Context, workerID string) time.Time {
	ctx, span := c.startSpan(ctx, "axon.worker.heartbeat", attrWorkerID(workerID))
	defer span.End()

	seen := c.workers.RecordHeartbeat(workerID)
	c.inst.heartbeats.Add(ctx, 1)
	c.logger.Debug("heartbeat", slog.String("worker_id", workerID))
	return seen
}

// GetJob returns a snapshot of one job.
func (c *Coordinator) GetJob(jobID string) (models.Job, error) {
	return c.ledger.Get(jobID)
}

// ListJobs returns jobs in submission order, optionally filtered by status.
func (c *Coordinator) ListJobs(status models.JobStatus) []models.Job {
	return c.ledger.List(status)
}

// WorkerView is a worker record annotated with its silence flag.
type WorkerView struct {
	models.WorkerRecord
	Silent bool `json:"silent"`
}

// ListWorkers returns every worker that has sent a heartbeat.
func (c *Coordinator) ListWorkers() []WorkerView {
	silent := make(map[string]bool)
	for _, w := range c.workers.Silent(c.silentAfter) {
		silent[w.ID] = true
	}

	records := c.workers.List()
	out := make([]WorkerView, 0, len(records))
	for _, w := range records {
		out = append(out, WorkerView{WorkerRecord: w, Silent: silent[w.ID]})
	}
	return out
}

// Status summarizes the service state.
type Status struct {
	Jobs          ledger.Stats `json:"jobs"`
	WorkersTotal  int          `json:"workers_total"`
	WorkersSilent int          `json:"workers_silent"`
	Uptime        string       `json:"uptime"`
	Timestamp     time.Time    `json:"timestamp"`
}

// Status returns job counts, worker counts and uptime.
func (c *Coordinator) Status() Status {
	now := time.Now()
	return Status{
		Jobs:          c.ledger.Stats(),
		WorkersTotal:  c.workers.Len(),
		WorkersSilent: len(c.workers.Silent(c.silentAfter)),
		Uptime:        now.Sub(c.startedAt).Round(time.Second).String(),
		Timestamp:     now,
	}
}
