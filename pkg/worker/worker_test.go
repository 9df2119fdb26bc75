package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/athulya-anil/axon-orchestrator/pkg/api"
	"github.com/athulya-anil/axon-orchestrator/pkg/client"
	"github.com/athulya-anil/axon-orchestrator/pkg/coordinator"
	"github.com/athulya-anil/axon-orchestrator/pkg/ledger"
	"github.com/athulya-anil/axon-orchestrator/pkg/liveness"
	"github.com/athulya-anil/axon-orchestrator/pkg/models"
)

type fakeCoordinator struct {
	mu            sync.Mutex
	queue         []models.Job
	results       map[string]json.RawMessage
	completeErrs  []error
	completeCalls int
	heartbeats    int
}

func newFakeCoordinator(jobs ...models.Job) *fakeCoordinator {
	return &fakeCoordinator{queue: jobs, results: make(map[string]json.RawMessage)}
}

func (f *fakeCoordinator) Claim(_ context.Context, workerID string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, nil
	}
	j := f.queue[0]
	f.queue = f.queue[1:]
	j.Status = models.StatusClaimed
	j.ClaimedBy = workerID
	return &j, nil
}

func (f *fakeCoordinator) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(f.completeErrs) > 0 {
		err := f.completeErrs[0]
		f.completeErrs = f.completeErrs[1:]
		return err
	}
	f.results[jobID] = result
	return nil
}

func (f *fakeCoordinator) Heartbeat(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return nil
}

func (f *fakeCoordinator) result(jobID string) (json.RawMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.results[jobID]
	return r, ok
}

func (f *fakeCoordinator) snapshot() (completeCalls, heartbeats int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completeCalls, f.heartbeats
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func runWorker(t *testing.T, w *Worker) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned %v after cancel", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after cancel")
		}
	}
}

func TestWorkerProcessesJobs(t *testing.T) {
	fake := newFakeCoordinator(
		models.Job{ID: "j1", Payload: json.RawMessage(`{"n":1}`)},
		models.Job{ID: "j2", Payload: json.RawMessage(`{"n":2}`)},
	)
	handler := func(_ context.Context, job models.Job) (json.RawMessage, error) {
		return json.RawMessage(fmt.Sprintf(`{"done":%q}`, job.ID)), nil
	}

	w := NewWorker("w1", fake, handler,
		WithLogger(testLogger()),
		WithPollRate(rate.Inf, 1),
		WithHeartbeatInterval(10*time.Millisecond),
	)
	stop := runWorker(t, w)
	waitFor(t, func() bool {
		_, hb := fake.snapshot()
		return w.Processed() == 2 && hb >= 1
	})
	stop()

	for _, id := range []string{"j1", "j2"} {
		r, ok := fake.result(id)
		if !ok || string(r) != fmt.Sprintf(`{"done":%q}`, id) {
			t.Errorf("Unexpected result for %s: %s", id, r)
		}
	}
	if w.ActiveJob() != "" {
		t.Errorf("Expected idle worker, active job %q", w.ActiveJob())
	}
}

func TestHandlerErrorReportedAsResult(t *testing.T) {
	fake := newFakeCoordinator(models.Job{ID: "j1", Payload: json.RawMessage(`{}`)})
	handler := func(context.Context, models.Job) (json.RawMessage, error) {
		return nil, errors.New("boom")
	}

	w := NewWorker("w1", fake, handler, WithLogger(testLogger()), WithPollRate(rate.Inf, 1))
	stop := runWorker(t, w)
	waitFor(t, func() bool { return w.Processed() == 1 })
	stop()

	r, _ := fake.result("j1")
	if string(r) != `{"error":"boom"}` {
		t.Errorf("Expected error result, got %s", r)
	}
}

func TestHandlerPanicReportedAsResult(t *testing.T) {
	w := NewWorker("w1", newFakeCoordinator(), func(context.Context, models.Job) (json.RawMessage, error) {
		panic("bad input")
	}, WithLogger(testLogger()))

	_, err := w.execute(context.Background(), models.Job{ID: "j1"})
	if err == nil || err.Error() != "handler panic: bad input" {
		t.Errorf("Expected recovered panic, got %v", err)
	}
}

func TestNonObjectHandlerResult(t *testing.T) {
	for _, raw := range []string{`[1,2]`, `"x"`, `null`, `{bad`} {
		t.Run(raw, func(t *testing.T) {
			w := NewWorker("w1", newFakeCoordinator(), func(context.Context, models.Job) (json.RawMessage, error) {
				return json.RawMessage(raw), nil
			}, WithLogger(testLogger()))

			if _, err := w.execute(context.Background(), models.Job{ID: "j1"}); err == nil {
				t.Errorf("Expected %s to be rejected", raw)
			}
		})
	}
}

func TestNonObjectResultCompletesJob(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := testLogger()
	svc := coordinator.New(ledger.New(), liveness.NewTracker(), coordinator.WithLogger(logger))
	server := httptest.NewServer(api.NewRouter(api.NewAPI(svc), logger))
	defer server.Close()

	id := svc.SubmitJob(context.Background(), json.RawMessage(`{}`))

	w := NewWorker("w1", client.NewClient(server.URL), func(context.Context, models.Job) (json.RawMessage, error) {
		return json.RawMessage(`[1,2]`), nil
	}, WithLogger(logger), WithPollRate(rate.Every(5*time.Millisecond), 1), WithCompleteRetries(2, time.Millisecond))

	stop := runWorker(t, w)
	waitFor(t, func() bool { return w.Processed()+w.Failed() == 1 })
	stop()

	j, _ := svc.GetJob(id)
	if j.Status != models.StatusComplete || w.Failed() != 0 {
		t.Fatalf("Expected job to complete, got status=%s failed=%d", j.Status, w.Failed())
	}
	var res map[string]string
	if err := json.Unmarshal(j.Result, &res); err != nil || res["error"] == "" {
		t.Errorf("Expected error result, got %s", j.Result)
	}
}

func TestShutdownReportsInFlightJob(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := testLogger()
	svc := coordinator.New(ledger.New(), liveness.NewTracker(), coordinator.WithLogger(logger))
	server := httptest.NewServer(api.NewRouter(api.NewAPI(svc), logger))
	defer server.Close()

	id := svc.SubmitJob(context.Background(), json.RawMessage(`{"x":1}`))

	started := make(chan struct{})
	handler := func(context.Context, models.Job) (json.RawMessage, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return json.RawMessage(`{"y":2}`), nil
	}

	w := NewWorker("w1", client.NewClient(server.URL), handler,
		WithLogger(logger),
		WithPollRate(rate.Every(5*time.Millisecond), 1),
	)
	stop := runWorker(t, w)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job was never claimed")
	}
	stop()

	j, _ := svc.GetJob(id)
	if j.Status != models.StatusComplete || string(j.Result) != `{"y":2}` {
		t.Errorf("Expected in-flight job to be stored, got status=%s result=%s", j.Status, j.Result)
	}
	if w.Processed() != 1 || w.Failed() != 0 {
		t.Errorf("Expected processed=1 failed=0, got %d %d", w.Processed(), w.Failed())
	}
}

func TestShutdownReportsInFlightJobToFake(t *testing.T) {
	fake := newFakeCoordinator(models.Job{ID: "j1", Payload: json.RawMessage(`{}`)})
	started := make(chan struct{})
	handler := func(context.Context, models.Job) (json.RawMessage, error) {
		close(started)
		time.Sleep(20 * time.Millisecond)
		return json.RawMessage(`{"ok":true}`), nil
	}

	w := NewWorker("w1", fake, handler, WithLogger(testLogger()), WithPollRate(rate.Inf, 1))
	stop := runWorker(t, w)
	<-started
	stop()

	if r, ok := fake.result("j1"); !ok || string(r) != `{"ok":true}` {
		t.Errorf("Expected result stored after cancel, got %s", r)
	}
}

func TestEmptyHandlerResultBecomesObject(t *testing.T) {
	w := NewWorker("w1", newFakeCoordinator(), func(context.Context, models.Job) (json.RawMessage, error) {
		return nil, nil
	}, WithLogger(testLogger()))

	r, err := w.execute(context.Background(), models.Job{ID: "j1"})
	if err != nil || string(r) != `{}` {
		t.Errorf("Expected {}, got %s (err=%v)", r, err)
	}
}

func TestCompleteWithRetry(t *testing.T) {
	transient := errors.New("connection refused")
	badRequest := &client.StatusError{Code: 400, Body: `{"error":"result must be a JSON object"}`}
	unavailable := &client.StatusError{Code: 503}
	invalidArg := status.Error(codes.InvalidArgument, "result must be a JSON object")
	grpcDown := status.Error(codes.Unavailable, "connection refused")

	tests := []struct {
		name      string
		errs      []error
		retries   int
		wantErr   error
		wantCalls int
	}{
		{name: "first attempt", retries: 3, wantCalls: 1},
		{name: "recovers after transient errors", errs: []error{transient, transient}, retries: 3, wantCalls: 3},
		{name: "gives up", errs: []error{transient, transient, transient}, retries: 2, wantErr: transient, wantCalls: 3},
		{name: "not found is permanent", errs: []error{fmt.Errorf("complete j1: %w", ledger.ErrJobNotFound)}, retries: 3, wantErr: ledger.ErrJobNotFound, wantCalls: 1},
		{name: "http 400 is permanent", errs: []error{fmt.Errorf("complete j1: %w", badRequest)}, retries: 3, wantErr: badRequest, wantCalls: 1},
		{name: "http 503 is retried", errs: []error{unavailable}, retries: 3, wantCalls: 2},
		{name: "invalid argument is permanent", errs: []error{fmt.Errorf("complete j1: %w", invalidArg)}, retries: 3, wantErr: invalidArg, wantCalls: 1},
		{name: "grpc unavailable is retried", errs: []error{fmt.Errorf("complete j1: %w", grpcDown)}, retries: 3, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeCoordinator()
			fake.completeErrs = tt.errs
			w := NewWorker("w1", fake, EchoHandler("w1"),
				WithLogger(testLogger()),
				WithCompleteRetries(tt.retries, time.Millisecond),
			)

			err := w.completeWithRetry(context.Background(), "j1", json.RawMessage(`{}`))
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
			if calls, _ := fake.snapshot(); calls != tt.wantCalls {
				t.Errorf("Expected %d Complete calls, got %d", tt.wantCalls, calls)
			}
		})
	}
}

func TestCompleteWithRetryStopsOnCancel(t *testing.T) {
	fake := newFakeCoordinator()
	fake.completeErrs = []error{errors.New("unavailable")}
	w := NewWorker("w1", fake, EchoHandler("w1"),
		WithLogger(testLogger()),
		WithCompleteRetries(3, time.Hour),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := w.completeWithRetry(ctx, "j1", json.RawMessage(`{}`))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestEchoHandler(t *testing.T) {
	r, err := EchoHandler("w9")(context.Background(), models.Job{ID: "j1", Payload: json.RawMessage(`{"x":1}`)})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var got struct {
		WorkerID string          `json:"worker_id"`
		Echo     json.RawMessage `json:"echo"`
	}
	if err := json.Unmarshal(r, &got); err != nil {
		t.Fatalf("Result is not an object: %v", err)
	}
	if got.WorkerID != "w9" || string(got.Echo) != `{"x":1}` {
		t.Errorf("Unexpected echo result %s", r)
	}
}

func TestWorkerAgainstOrchestrator(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := testLogger()
	svc := coordinator.New(ledger.New(), liveness.NewTracker(), coordinator.WithLogger(logger))
	server := httptest.NewServer(api.NewRouter(api.NewAPI(svc), logger))
	defer server.Close()

	id := svc.SubmitJob(context.Background(), json.RawMessage(`{"x":1}`))

	w := NewWorker("w1", client.NewClient(server.URL), EchoHandler("w1"),
		WithLogger(logger),
		WithPollRate(rate.Every(5*time.Millisecond), 1),
	)
	stop := runWorker(t, w)
	waitFor(t, func() bool { return w.Processed() == 1 && len(svc.ListWorkers()) == 1 })
	stop()

	j, err := svc.GetJob(id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != models.StatusComplete || j.ClaimedBy != "w1" {
		t.Errorf("Unexpected job state %+v", j)
	}
}
