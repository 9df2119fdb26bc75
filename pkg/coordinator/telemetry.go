package coordinator

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/athulya-anil/axon-orchestrator/pkg/ledger"
	"github.com/athulya-anil/axon-orchestrator/pkg/models"
)

// instrumentationName is the scope name for axon traces and metrics.
const instrumentationName = "github.com/athulya-anil/axon-orchestrator"

// instruments holds the OTel instruments shared by all operations.
// Creation errors still yield usable noop instruments.
type instruments struct {
	submitted   metric.Int64Counter
	claims      metric.Int64Counter
	completions metric.Int64Counter
	heartbeats  metric.Int64Counter
}

func newInstruments(meter metric.Meter, l *ledger.Ledger) *instruments {
	submitted, _ := meter.Int64Counter(
		"axon.jobs.submitted",
		metric.WithDescription("Total number of submitted jobs"),
		metric.WithUnit("{job}"),
	)
	claims, _ := meter.Int64Counter(
		"axon.jobs.claims",
		metric.WithDescription("Claim requests by outcome"),
		metric.WithUnit("{claim}"),
	)
	completions, _ := meter.Int64Counter(
		"axon.jobs.completions",
		metric.WithDescription("Completion requests by outcome"),
		metric.WithUnit("{completion}"),
	)
	heartbeats, _ := meter.Int64Counter(
		"axon.worker.heartbeats",
		metric.WithDescription("Total number of worker heartbeats"),
		metric.WithUnit("{heartbeat}"),
	)

	_, _ = meter.Int64ObservableGauge(
		"axon.jobs",
		metric.WithDescription("Jobs currently held by the ledger, by status"),
		metric.WithUnit("{job}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			s := l.Stats()
			o.Observe(int64(s.Queued), metric.WithAttributes(attrStatus(models.StatusQueued)))
			o.Observe(int64(s.Claimed), metric.WithAttributes(attrStatus(models.StatusClaimed)))
			o.Observe(int64(s.Complete), metric.WithAttributes(attrStatus(models.StatusComplete)))
			return nil
		}),
	)

	return &instruments{
		submitted:   submitted,
		claims:      claims,
		completions: completions,
		heartbeats:  heartbeats,
	}
}

func (c *Coordinator) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func outcome(v string) metric.AddOption {
	return metric.WithAttributes(attribute.String("outcome", v))
}

func attrJobID(id string) attribute.KeyValue { return attribute.String("axon.job.id", id) }

func attrWorkerID(id string) attribute.KeyValue { return attribute.String("axon.worker.id", id) }

func attrStatus(s models.JobStatus) attribute.KeyValue {
	return attribute.String("status", string(s))
}
