package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petal-labs/proofkit/pipeline"
)

// MetricsHandler translates pipeline events into OpenTelemetry metrics.
type MetricsHandler struct {
	stageExecutions metric.Int64Counter
	stageFailures   metric.Int64Counter
	stageDuration   metric.Float64Histogram
	validations     metric.Int64Counter
	artifacts       metric.Int64Counter
	runDuration     metric.Float64Histogram
}

// NewMetricsHandler creates the proofkit instruments on meter.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	stageExec, err := meter.Int64Counter("proofkit.stage.executions",
		metric.WithDescription("Number of completed pipeline stages"),
	)
	if err != nil {
		return nil, err
	}

	stageFail, err := meter.Int64Counter("proofkit.stage.failures",
		metric.WithDescription("Number of failed pipeline stages"),
	)
	if err != nil {
		return nil, err
	}

	stageDur, err := meter.Float64Histogram("proofkit.stage.duration",
		metric.WithDescription("Duration of a pipeline stage in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	validations, err := meter.Int64Counter("proofkit.expression.validations",
		metric.WithDescription("Number of classified expressions"),
	)
	if err != nil {
		return nil, err
	}

	artifacts, err := meter.Int64Counter("proofkit.artifacts.written",
		metric.WithDescription("Number of artifacts accepted by the sink"),
	)
	if err != nil {
		return nil, err
	}

	runDur, err := meter.Float64Histogram("proofkit.run.duration",
		metric.WithDescription("Duration of a proof run in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		stageExecutions: stageExec,
		stageFailures:   stageFail,
		stageDuration:   stageDur,
		validations:     validations,
		artifacts:       artifacts,
		runDuration:     runDur,
	}, nil
}

// Handle records the metrics for one event. It has pipeline.EventHandler
// semantics.
func (h *MetricsHandler) Handle(e pipeline.Event) {
	ctx := context.Background()
	switch e.Kind {
	case pipeline.EventStageFinished:
		attrs := metric.WithAttributes(attribute.String("stage", e.Stage))
		h.stageExecutions.Add(ctx, 1, attrs)
		h.stageDuration.Record(ctx, e.Elapsed.Seconds(), attrs)
	case pipeline.EventStageFailed:
		h.stageFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", e.Stage)))
	case pipeline.EventExpressionValidated:
		h.validations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("classification", e.PayloadString("classification")),
		))
	case pipeline.EventArtifactWritten:
		h.artifacts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", e.PayloadString("kind")),
		))
	case pipeline.EventRunFinished:
		h.runDuration.Record(ctx, e.Elapsed.Seconds(), metric.WithAttributes(
			attribute.String("status", e.PayloadString("status")),
		))
	}
}
