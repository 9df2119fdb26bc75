package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/athulya-anil/axon-orchestrator/pkg/client"
	"github.com/athulya-anil/axon-orchestrator/pkg/ledger"
	"github.com/athulya-anil/axon-orchestrator/pkg/models"
)

// process runs the handler for job and reports its result. A handler error
// becomes the result {"error": "..."}. The report survives cancellation of
// ctx so a job finished during shutdown is not left claimed.
func (w *Worker) process(ctx context.Context, job models.Job) {
	w.setActive(job.ID)
	defer w.setActive("")

	log := w.logger.With("job_id", job.ID)
	start := time.Now()
	log.Info("executing job")

	result, err := w.execute(ctx, job)
	if err != nil {
		log.Warn("job handler failed", "error", err)
		result = errorResult(err)
	}

	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.reportTimeout)
	defer cancel()

	if err := w.completeWithRetry(reportCtx, job.ID, result); err != nil {
		w.failed.Add(1)
		log.Error("failed to store result", "error", err)
		return
	}

	w.processed.Add(1)
	log.Info("job complete", "duration", time.Since(start))
}

func (w *Worker) execute(ctx context.Context, job models.Job) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	result, err = w.handler(ctx, job)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if !isObject(result) {
		return nil, fmt.Errorf("handler result is not a JSON object: %.64s", result)
	}
	return result, nil
}

func isObject(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	if json.Unmarshal(raw, &obj) != nil {
		return false
	}
	return obj != nil
}

// completeWithRetry stores result with exponential backoff retry logic.
// Rejections by the orchestrator are permanent and are not retried.
func (w *Worker) completeWithRetry(ctx context.Context, jobID string, result json.RawMessage) error {
	var err error

	for attempt := 0; attempt <= w.completeRetries; attempt++ {
		if attempt > 0 {
			backoff := w.retryBackoff << uint(attempt-1)
			w.logger.Info("retrying completion",
				"job_id", jobID, "attempt", attempt, "max_retries", w.completeRetries, "backoff", backoff)

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("complete %s: %w", jobID, ctx.Err())
			case <-timer.C:
			}
		}

		err = w.coord.Complete(ctx, jobID, result)
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return err
		}
	}

	return fmt.Errorf("completion failed after %d attempts: %w", w.completeRetries+1, err)
}

// isPermanent reports whether the orchestrator rejected the request, as
// opposed to failing to answer it.
func isPermanent(err error) bool {
	if errors.Is(err, ledger.ErrJobNotFound) {
		return true
	}

	var se *client.StatusError
	if errors.As(err, &se) {
		return se.Code >= 400 && se.Code < 500
	}

	var grpcErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &grpcErr) {
		switch grpcErr.GRPCStatus().Code() {
		case codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition:
			return true
		}
	}
	return false
}

func errorResult(err error) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return b
}

// EchoHandler returns the job payload wrapped with the executing worker's id.
func EchoHandler(workerID string) Handler {
	return func(_ context.Context, job models.Job) (json.RawMessage, error) {
		return json.Marshal(map[string]any{
			"worker_id": workerID,
			"echo":      job.Payload,
		})
	}
}
