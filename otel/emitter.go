package otel

import (
	"github.com/petal-labs/proofkit/pipeline"
)

// EnrichHandler wraps an EventHandler with OpenTelemetry trace context.
// Stage-level events take the stage span first and fall back to the run
// span. Events pass through unchanged when no span is active.
func EnrichHandler(next pipeline.EventHandler, tracing *TracingHandler) pipeline.EventHandler {
	return func(e pipeline.Event) {
		if e.Stage != "" {
			sc := tracing.ActiveSpanContext(e.RunID, e.Stage)
			if sc.IsValid() {
				e.TraceID = sc.TraceID().String()
				e.SpanID = sc.SpanID().String()
			}
		}
		if e.TraceID == "" && e.RunID != "" {
			sc := tracing.ActiveRunSpanContext(e.RunID)
			if sc.IsValid() {
				e.TraceID = sc.TraceID().String()
				e.SpanID = sc.SpanID().String()
			}
		}
		next(e)
	}
}

// Decorator adapts EnrichHandler to pipeline.RunOptions.
func Decorator(tracing *TracingHandler) pipeline.EventHandlerDecorator {
	return func(next pipeline.EventHandler) pipeline.EventHandler {
		return EnrichHandler(next, tracing)
	}
}
