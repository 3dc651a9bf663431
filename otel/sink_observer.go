package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/proofkit/artifact"
	"github.com/petal-labs/proofkit/pipeline"
)

// SinkObserver records artifact sink writes into OpenTelemetry.
type SinkObserver struct {
	tracer  trace.Tracer
	parents *TracingHandler

	writes  metric.Int64Counter
	bytes   metric.Int64Counter
	latency metric.Float64Histogram
}

// NewSinkObserver creates a sink observer bound to meter and tracer. A nil
// tracer records metrics only.
func NewSinkObserver(meter metric.Meter, tracer trace.Tracer) (*SinkObserver, error) {
	writes, err := meter.Int64Counter(
		"proofkit.sink.writes",
		metric.WithDescription("Number of artifact sink writes"),
	)
	if err != nil {
		return nil, err
	}
	bytes, err := meter.Int64Counter(
		"proofkit.sink.bytes",
		metric.WithDescription("Artifact bytes handed to the sink"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"proofkit.sink.latency",
		metric.WithDescription("Sink write latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &SinkObserver{
		tracer:  tracer,
		writes:  writes,
		bytes:   bytes,
		latency: latency,
	}, nil
}

// ParentsFrom makes write spans children of the pipeline stage span the
// write happened in, as tracked by h.
func (o *SinkObserver) ParentsFrom(h *TracingHandler) *SinkObserver {
	o.parents = h
	return o
}

// parent returns ctx carrying the span a write span should nest under.
func (o *SinkObserver) parent(ctx context.Context) context.Context {
	if trace.SpanContextFromContext(ctx).IsValid() || o.parents == nil {
		return ctx
	}
	runID, stage, ok := pipeline.StageFromContext(ctx)
	if !ok {
		return ctx
	}
	sc := o.parents.ActiveSpanContext(runID, stage)
	if !sc.IsValid() {
		sc = o.parents.ActiveRunSpanContext(runID)
	}
	if !sc.IsValid() {
		return ctx
	}
	return trace.ContextWithSpanContext(ctx, sc)
}

// ObserveWrite records one write.
func (o *SinkObserver) ObserveWrite(ctx context.Context, observation artifact.WriteObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("sink", observation.Sink),
		attribute.String("kind", string(observation.Kind)),
		attribute.Bool("success", observation.Err == nil),
	}

	options := metric.WithAttributes(attrs...)
	o.writes.Add(ctx, 1, options)
	o.bytes.Add(ctx, int64(observation.Bytes), options)
	o.latency.Record(ctx, observation.Duration.Seconds(), options)

	if o.tracer == nil {
		return
	}
	end := time.Now()
	_, span := o.tracer.Start(o.parent(ctx), "sink.write",
		trace.WithTimestamp(end.Add(-observation.Duration)),
		trace.WithAttributes(append(attrs, attribute.String("key", observation.Key))...))
	if observation.Err != nil {
		span.SetStatus(codes.Error, observation.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
}

var _ artifact.Observer = (*SinkObserver)(nil)
