// Package pipeline runs the proof documentation pipeline: prove the
// transform, validate the expression stream and write the artifacts.
package pipeline

import (
	"log/slog"
	"sort"
	"time"
)

// EventKind identifies the type of event emitted by a run.
type EventKind string

const (
	// EventRunStarted is emitted when a run begins.
	EventRunStarted EventKind = "run.started"

	// EventStageStarted is emitted when a stage begins.
	EventStageStarted EventKind = "stage.started"

	// EventStageFinished is emitted when a stage completes successfully.
	EventStageFinished EventKind = "stage.finished"

	// EventStageFailed is emitted when a stage returns an error.
	EventStageFailed EventKind = "stage.failed"

	// EventExpressionValidated is emitted once per classified expression.
	EventExpressionValidated EventKind = "expression.validated"

	// EventArtifactWritten is emitted after a sink accepts an artifact.
	EventArtifactWritten EventKind = "artifact.written"

	// EventRunFinished is emitted when a run completes, successfully or not.
	EventRunFinished EventKind = "run.finished"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Stage names.
const (
	StageProve    = "prove"
	StageValidate = "validate"
	StageDocument = "document"
)

// Run status values carried in the run.finished payload.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Event is a small structured record of what happened during a run.
type Event struct {
	// Kind identifies the event type.
	Kind EventKind

	// RunID is the unique identifier for this run.
	RunID string

	// Stage is the stage that produced this event (empty for run-level events).
	Stage string

	// Time is when the event occurred.
	Time time.Time

	// Elapsed is the duration since the run or stage started.
	Elapsed time.Duration

	// Payload contains event-specific data.
	Payload map[string]any

	// Seq is a monotonic sequence number per run (1-indexed).
	Seq uint64

	// TraceID is the OpenTelemetry trace ID (hex-encoded, empty when OTel inactive).
	TraceID string

	// SpanID is the OpenTelemetry span ID (hex-encoded, empty when OTel inactive).
	SpanID string
}

// NewEvent creates a new event stamped at t.
func NewEvent(kind EventKind, runID string, t time.Time) Event {
	return Event{
		Kind:    kind,
		RunID:   runID,
		Time:    t,
		Payload: make(map[string]any),
	}
}

// WithStage sets the stage on the event.
func (e Event) WithStage(stage string) Event {
	e.Stage = stage
	return e
}

// WithElapsed sets the elapsed duration on the event.
func (e Event) WithElapsed(elapsed time.Duration) Event {
	e.Elapsed = elapsed
	return e
}

// WithPayload adds a key-value pair to the event payload.
func (e Event) WithPayload(key string, value any) Event {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	e.Payload[key] = value
	return e
}

// PayloadString returns a string payload value, or "".
func (e Event) PayloadString(key string) string {
	if v, ok := e.Payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// EventHandler is a function type for handling events.
type EventHandler func(Event)

// EventHandlerDecorator wraps a handler to add cross-cutting behavior, such
// as enriching events with trace metadata.
type EventHandlerDecorator func(EventHandler) EventHandler

// MultiEventHandler combines multiple handlers into one. Handlers run in
// order and nil handlers are skipped.
func MultiEventHandler(handlers ...EventHandler) EventHandler {
	return func(e Event) {
		for _, h := range handlers {
			if h != nil {
				h(e)
			}
		}
	}
}

// LogEventHandler logs every event at debug level.
func LogEventHandler(logger *slog.Logger) EventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(e Event) {
		attrs := []any{
			"kind", e.Kind.String(),
			"run_id", e.RunID,
			"seq", e.Seq,
		}
		if e.Stage != "" {
			attrs = append(attrs, "stage", e.Stage)
		}
		if e.Elapsed > 0 {
			attrs = append(attrs, "elapsed", e.Elapsed)
		}
		if e.TraceID != "" {
			attrs = append(attrs, "trace_id", e.TraceID, "span_id", e.SpanID)
		}
		keys := make([]string, 0, len(e.Payload))
		for k := range e.Payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			attrs = append(attrs, k, e.Payload[k])
		}
		logger.Debug("pipeline event", attrs...)
	}
}
