// Package otel provides OpenTelemetry integration for proofkit pipeline
// events and artifact sinks.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/proofkit/pipeline"
)

// TracingHandler translates pipeline events into spans: one root span per
// run and one child span per stage.
type TracingHandler struct {
	tracer trace.Tracer

	mu         sync.RWMutex
	runSpans   map[string]trace.Span      // runID -> span
	runCtxs    map[string]context.Context // runID -> context (for child spans)
	stageSpans map[string]trace.Span      // runID:stage -> span
}

// NewTracingHandler creates a TracingHandler that starts spans on tracer.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer:     tracer,
		runSpans:   make(map[string]trace.Span),
		runCtxs:    make(map[string]context.Context),
		stageSpans: make(map[string]trace.Span),
	}
}

// Handle creates or ends spans for one event. It has
// pipeline.EventHandler semantics.
func (h *TracingHandler) Handle(e pipeline.Event) {
	switch e.Kind {
	case pipeline.EventRunStarted:
		h.handleRunStarted(e)
	case pipeline.EventStageStarted:
		h.handleStageStarted(e)
	case pipeline.EventStageFinished:
		h.handleStageFinished(e)
	case pipeline.EventStageFailed:
		h.handleStageFailed(e)
	case pipeline.EventExpressionValidated:
		h.addStageEvent(e,
			attribute.String("proofkit.input", e.PayloadString("input")),
			attribute.String("proofkit.classification", e.PayloadString("classification")),
		)
	case pipeline.EventArtifactWritten:
		h.addStageEvent(e,
			attribute.String("proofkit.artifact_kind", e.PayloadString("kind")),
			attribute.String("proofkit.artifact_key", e.PayloadString("key")),
		)
	case pipeline.EventRunFinished:
		h.handleRunFinished(e)
	}
}

func stageKey(runID, stage string) string {
	return runID + ":" + stage
}

func (h *TracingHandler) handleRunStarted(e pipeline.Event) {
	spanName := "run:" + e.RunID
	if theorem := e.PayloadString("theorem"); theorem != "" {
		spanName = "run:" + theorem
	}

	ctx, span := h.tracer.Start(context.Background(), spanName,
		trace.WithAttributes(
			attribute.String("proofkit.run_id", e.RunID),
			attribute.String("proofkit.transform", e.PayloadString("transform")),
		),
		trace.WithTimestamp(e.Time),
	)

	h.mu.Lock()
	h.runSpans[e.RunID] = span
	h.runCtxs[e.RunID] = ctx
	h.mu.Unlock()
}

func (h *TracingHandler) handleStageStarted(e pipeline.Event) {
	h.mu.RLock()
	parentCtx, ok := h.runCtxs[e.RunID]
	h.mu.RUnlock()
	if !ok {
		parentCtx = context.Background()
	}

	_, span := h.tracer.Start(parentCtx, "stage:"+e.Stage,
		trace.WithAttributes(
			attribute.String("proofkit.run_id", e.RunID),
			attribute.String("proofkit.stage", e.Stage),
		),
		trace.WithTimestamp(e.Time),
	)

	h.mu.Lock()
	h.stageSpans[stageKey(e.RunID, e.Stage)] = span
	h.mu.Unlock()
}

func (h *TracingHandler) popStage(e pipeline.Event) (trace.Span, bool) {
	key := stageKey(e.RunID, e.Stage)
	h.mu.Lock()
	defer h.mu.Unlock()
	span, ok := h.stageSpans[key]
	if ok {
		delete(h.stageSpans, key)
	}
	return span, ok
}

func (h *TracingHandler) handleStageFinished(e pipeline.Event) {
	span, ok := h.popStage(e)
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("proofkit.duration", e.Elapsed.String()))
	span.SetStatus(codes.Ok, "")
	span.End(trace.WithTimestamp(e.Time))
}

func (h *TracingHandler) handleStageFailed(e pipeline.Event) {
	span, ok := h.popStage(e)
	if !ok {
		return
	}
	errMsg := e.PayloadString("error")
	if errMsg == "" {
		errMsg = "unknown error"
	}
	span.SetStatus(codes.Error, errMsg)
	span.RecordError(spanError(errMsg), trace.WithTimestamp(e.Time))
	span.End(trace.WithTimestamp(e.Time))
}

func (h *TracingHandler) addStageEvent(e pipeline.Event, attrs ...attribute.KeyValue) {
	h.mu.RLock()
	span, ok := h.stageSpans[stageKey(e.RunID, e.Stage)]
	h.mu.RUnlock()
	if !ok {
		return
	}
	span.AddEvent(e.Kind.String(), trace.WithTimestamp(e.Time), trace.WithAttributes(attrs...))
}

func (h *TracingHandler) handleRunFinished(e pipeline.Event) {
	h.mu.Lock()
	span, ok := h.runSpans[e.RunID]
	if ok {
		delete(h.runSpans, e.RunID)
		delete(h.runCtxs, e.RunID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	status := e.PayloadString("status")
	span.SetAttributes(
		attribute.String("proofkit.duration", e.Elapsed.String()),
		attribute.String("proofkit.status", status),
	)
	if status == pipeline.StatusFailed {
		errMsg := e.PayloadString("error")
		if errMsg == "" {
			errMsg = "run failed"
		}
		span.SetStatus(codes.Error, errMsg)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(e.Time))
}

// ActiveSpanContext returns the SpanContext of the open stage span, or an
// empty SpanContext.
func (h *TracingHandler) ActiveSpanContext(runID, stage string) trace.SpanContext {
	h.mu.RLock()
	span, ok := h.stageSpans[stageKey(runID, stage)]
	h.mu.RUnlock()
	if !ok {
		return trace.SpanContext{}
	}
	return span.SpanContext()
}

// ActiveRunSpanContext returns the SpanContext of the open run span, or an
// empty SpanContext.
func (h *TracingHandler) ActiveRunSpanContext(runID string) trace.SpanContext {
	h.mu.RLock()
	span, ok := h.runSpans[runID]
	h.mu.RUnlock()
	if !ok {
		return trace.SpanContext{}
	}
	return span.SpanContext()
}

type spanError string

func (e spanError) Error() string { return string(e) }
