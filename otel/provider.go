package otel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/proofkit/pipeline"
)

const instrumentationName = "github.com/petal-labs/proofkit"

// Options configures Setup.
type Options struct {
	ServiceName string
	// OTLPEndpoint is an OTLP/HTTP collector URL. Empty keeps spans local.
	OTLPEndpoint string
}

// Telemetry owns the tracer and meter providers for one process. Metrics
// are collected on demand through a manual reader.
type Telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	reader         *sdkmetric.ManualReader

	Metrics *MetricsHandler
	Tracing *TracingHandler
	Sinks   *SinkObserver
}

// Setup builds the providers and the pipeline handlers.
func Setup(ctx context.Context, opts Options) (*Telemetry, error) {
	name := opts.ServiceName
	if name == "" {
		name = "proofkit"
	}
	res := resource.NewWithAttributes("", attribute.String("service.name", name))

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if endpoint := strings.TrimSpace(opts.OTLPEndpoint); endpoint != "" {
		exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
		if err != nil {
			return nil, fmt.Errorf("otel: otlp exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}

	reader := sdkmetric.NewManualReader()
	t := &Telemetry{
		tracerProvider: sdktrace.NewTracerProvider(tpOpts...),
		meterProvider: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		),
		reader: reader,
	}

	var err error
	if t.Metrics, err = NewMetricsHandler(t.Meter()); err != nil {
		return nil, fmt.Errorf("otel: metrics: %w", err)
	}
	t.Tracing = NewTracingHandler(t.Tracer())
	if t.Sinks, err = NewSinkObserver(t.Meter(), t.Tracer()); err != nil {
		return nil, fmt.Errorf("otel: sink observer: %w", err)
	}
	t.Sinks.ParentsFrom(t.Tracing)
	return t, nil
}

// Tracer returns the proofkit tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracerProvider.Tracer(instrumentationName)
}

// Meter returns the proofkit meter.
func (t *Telemetry) Meter() metric.Meter {
	return t.meterProvider.Meter(instrumentationName)
}

// Handler combines the metrics and tracing handlers. Tracing runs first so
// spans exist before metrics are recorded for the same event.
func (t *Telemetry) Handler() pipeline.EventHandler {
	return pipeline.MultiEventHandler(t.Tracing.Handle, t.Metrics.Handle)
}

// Decorator enriches events with the active span context.
func (t *Telemetry) Decorator() pipeline.EventHandlerDecorator {
	return Decorator(t.Tracing)
}

// Collect reads the current metric values.
func (t *Telemetry) Collect(ctx context.Context) ([]MetricPoint, error) {
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("otel: collect: %w", err)
	}
	return Summarize(rm), nil
}

// Shutdown flushes and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.tracerProvider.Shutdown(ctx),
		t.meterProvider.Shutdown(ctx),
	)
}

// MetricPoint is one flattened data point. Histograms report their count
// and sum.
type MetricPoint struct {
	Name       string
	Attributes string
	Count      uint64
	Value      float64
}

// Summarize flattens counters and histograms, sorted by name then
// attributes.
func Summarize(rm metricdata.ResourceMetrics) []MetricPoint {
	var points []MetricPoint
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					points = append(points, MetricPoint{
						Name:       m.Name,
						Attributes: formatAttributes(dp.Attributes),
						Count:      uint64(dp.Value),
						Value:      float64(dp.Value),
					})
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					points = append(points, MetricPoint{
						Name:       m.Name,
						Attributes: formatAttributes(dp.Attributes),
						Count:      dp.Count,
						Value:      dp.Sum,
					})
				}
			}
		}
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Name != points[j].Name {
			return points[i].Name < points[j].Name
		}
		return points[i].Attributes < points[j].Attributes
	})
	return points
}

func formatAttributes(set attribute.Set) string {
	parts := make([]string, 0, set.Len())
	iter := set.Iter()
	for iter.Next() {
		kv := iter.Attribute()
		parts = append(parts, string(kv.Key)+"="+kv.Value.Emit())
	}
	return strings.Join(parts, ",")
}
