// Package worker implements the pull-based worker agent: it heartbeats to the
// coordinator, claims jobs one at a time, runs them and reports the result.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/athulya-anil/axon-orchestrator/pkg/models"
)

// Coordinator is the worker's view of the orchestrator. Both the HTTP and the
// gRPC clients satisfy it.
type Coordinator interface {
	Claim(ctx context.Context, workerID string) (*models.Job, error)
	Complete(ctx context.Context, jobID string, result json.RawMessage) error
	Heartbeat(ctx context.Context, workerID string) error
}

// Handler executes one job and returns its result object.
type Handler func(ctx context.Context, job models.Job) (json.RawMessage, error)

// Defaults for a worker constructed without options.
const (
	DefaultPollRate          = 2
	DefaultPollBurst         = 1
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultCompleteRetries   = 3
	DefaultRetryBackoff      = time.Second
	DefaultReportTimeout     = 30 * time.Second
)

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithPollRate sets how often the claim loop may ask for work.
func WithPollRate(r rate.Limit, burst int) Option {
	return func(w *Worker) { w.limiter = rate.NewLimiter(r, burst) }
}

// WithHeartbeatInterval sets the heartbeat period.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(w *Worker) { w.heartbeatInterval = d }
}

// WithCompleteRetries sets how many times a failed completion is retried and
// the initial backoff, which doubles per attempt.
func WithCompleteRetries(n int, backoff time.Duration) Option {
	return func(w *Worker) {
		w.completeRetries = n
		w.retryBackoff = backoff
	}
}

// WithReportTimeout bounds how long a finished job may spend reporting its
// result, including retries. Reporting outlives cancellation of Run.
func WithReportTimeout(d time.Duration) Option {
	return func(w *Worker) { w.reportTimeout = d }
}

// Worker represents a worker node that executes jobs
type Worker struct {
	ID string

	coord   Coordinator
	handler Handler
	logger  *slog.Logger
	limiter *rate.Limiter

	heartbeatInterval time.Duration
	completeRetries   int
	retryBackoff      time.Duration
	reportTimeout     time.Duration

	mu        sync.RWMutex
	activeJob string

	processed atomic.Int64
	failed    atomic.Int64
}

// NewWorker creates a new worker instance
func NewWorker(id string, coord Coordinator, handler Handler, opts ...Option) *Worker {
	w := &Worker{
		ID:                id,
		coord:             coord,
		handler:           handler,
		logger:            slog.Default(),
		limiter:           rate.NewLimiter(DefaultPollRate, DefaultPollBurst),
		heartbeatInterval: DefaultHeartbeatInterval,
		completeRetries:   DefaultCompleteRetries,
		retryBackoff:      DefaultRetryBackoff,
		reportTimeout:     DefaultReportTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("worker_id", id)
	return w
}

// Run heartbeats and processes jobs until ctx is cancelled. A cancelled
// context is a clean shutdown and yields nil.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started",
		"heartbeat_interval", w.heartbeatInterval,
		"poll_rate", float64(w.limiter.Limit()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.heartbeatLoop(gctx) })
	g.Go(func() error { return w.claimLoop(gctx) })

	err := g.Wait()
	w.logger.Info("worker stopped", "processed", w.Processed(), "failed", w.Failed())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ActiveJob returns the id of the job being executed, or "" when idle.
func (w *Worker) ActiveJob() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.activeJob
}

// Processed returns the number of jobs whose result was stored.
func (w *Worker) Processed() int64 { return w.processed.Load() }

// Failed returns the number of jobs whose result could not be stored.
func (w *Worker) Failed() int64 { return w.failed.Load() }

func (w *Worker) claimLoop(ctx context.Context) error {
	for {
		if err := w.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		job, err := w.coord.Claim(ctx, w.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("claim failed", "error", err)
			continue
		}
		if job == nil {
			continue
		}

		w.process(ctx, *job)
	}
}

func (w *Worker) setActive(jobID string) {
	w.mu.Lock()
	w.activeJob = jobID
	w.mu.Unlock()
}
