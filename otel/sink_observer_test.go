package otel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/petal-labs/proofkit/artifact"
	proofotel "github.com/petal-labs/proofkit/otel"
	"github.com/petal-labs/proofkit/pipeline"
	"github.com/petal-labs/proofkit/proof"
)

func TestSinkObserver_RecordsWrites(t *testing.T) {
	reader, mp := newTestMeter()
	exporter, tp := newTestTracer()
	observer, err := proofotel.NewSinkObserver(mp.Meter("test"), tp.Tracer("test"))
	if err != nil {
		t.Fatalf("NewSinkObserver: %v", err)
	}

	observer.ObserveWrite(context.Background(), artifact.WriteObservation{
		Sink:     "file",
		Kind:     artifact.KindLaTeX,
		Key:      artifact.LaTeXKey,
		Bytes:    120,
		Duration: 3 * time.Millisecond,
	})
	observer.ObserveWrite(context.Background(), artifact.WriteObservation{
		Sink: "file",
		Kind: artifact.KindLedger,
		Key:  "distributed_ledger/ledger_entry_20260314_150926.json",
		Err:  artifact.ErrExists,
	})

	rm := collectMetrics(t, reader)
	if got := counterValue(t, rm, "proofkit.sink.writes", "sink", "file"); got != 2 {
		t.Errorf("writes = %d, want 2", got)
	}
	if got := counterValue(t, rm, "proofkit.sink.bytes", "kind", string(artifact.KindLaTeX)); got != 120 {
		t.Errorf("bytes = %d, want 120", got)
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[1].Status.Code != otelcodes.Error {
		t.Errorf("failed write status = %v", spans[1].Status.Code)
	}
}

func TestSinkObserver_WrapsSink(t *testing.T) {
	reader, mp := newTestMeter()
	observer, err := proofotel.NewSinkObserver(mp.Meter("test"), noop.NewTracerProvider().Tracer("test"))
	if err != nil {
		t.Fatalf("NewSinkObserver: %v", err)
	}

	sink := artifact.Observe("memory", artifact.NewMemorySink(), observer)
	a := artifact.NewText(artifact.LaTeXKey, "x", time.Now(), artifact.ModeCreate)
	if err := sink.Write(context.Background(), a); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := sink.Write(context.Background(), a); !errors.Is(err, artifact.ErrExists) {
		t.Fatalf("second Write error = %v, want ErrExists", err)
	}

	rm := collectMetrics(t, reader)
	if got := counterValue(t, rm, "proofkit.sink.writes", "sink", "memory"); got != 2 {
		t.Errorf("writes = %d, want 2", got)
	}
}

func TestSinkObserver_Nil(t *testing.T) {
	var observer *proofotel.SinkObserver
	observer.ObserveWrite(context.Background(), artifact.WriteObservation{Sink: "file"})
}

func TestSinkObserver_NestsUnderStageSpan(t *testing.T) {
	_, mp := newTestMeter()
	exporter, tp := newTestTracer()
	tracing := proofotel.NewTracingHandler(tp.Tracer("test"))
	observer, err := proofotel.NewSinkObserver(mp.Meter("test"), tp.Tracer("test"))
	if err != nil {
		t.Fatalf("NewSinkObserver: %v", err)
	}
	observer.ParentsFrom(tracing)

	tr, err := proof.ParseLinearTransform("x", "5", "2")
	if err != nil {
		t.Fatalf("ParseLinearTransform: %v", err)
	}
	sink := artifact.Observe("memory", artifact.NewMemorySink(), observer)
	_, err = pipeline.NewRunner(sink, nil).Run(context.Background(), pipeline.Job{
		Description: "reversibility_proof",
		Transform:   tr,
		Expressions: []string{"(x - 5)/2"},
	}, pipeline.RunOptions{EventHandler: tracing.Handle})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	spans := exporter.GetSpans()
	stage := findSpan(spans, "stage:"+pipeline.StageDocument)
	if stage == nil {
		t.Fatal("missing document stage span")
	}
	writes := 0
	for _, s := range spans {
		if s.Name != "sink.write" {
			continue
		}
		writes++
		if s.Parent.SpanID() != stage.SpanContext.SpanID() {
			t.Errorf("sink.write %v parent = %s, want document stage span %s",
				s.Attributes, s.Parent.SpanID(), stage.SpanContext.SpanID())
		}
		if s.SpanContext.TraceID() != stage.SpanContext.TraceID() {
			t.Error("sink.write span is not in the run trace")
		}
	}
	if writes != 5 {
		t.Errorf("got %d sink.write spans, want 5", writes)
	}
}

func TestSinkObserver_RootSpanOutsidePipeline(t *testing.T) {
	_, mp := newTestMeter()
	exporter, tp := newTestTracer()
	observer, err := proofotel.NewSinkObserver(mp.Meter("test"), tp.Tracer("test"))
	if err != nil {
		t.Fatalf("NewSinkObserver: %v", err)
	}
	observer.ParentsFrom(proofotel.NewTracingHandler(tp.Tracer("test")))

	ctx := pipeline.ContextWithStage(context.Background(), "no-such-run", pipeline.StageDocument)
	observer.ObserveWrite(ctx, artifact.WriteObservation{Sink: "file", Kind: artifact.KindLaTeX})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Parent.IsValid() {
		t.Error("write outside an open stage should start a root span")
	}
}
