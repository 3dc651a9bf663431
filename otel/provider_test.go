package otel_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/petal-labs/proofkit/artifact"
	proofotel "github.com/petal-labs/proofkit/otel"
	"github.com/petal-labs/proofkit/pipeline"
	"github.com/petal-labs/proofkit/proof"
)

func TestSetup_InstrumentsPipelineRun(t *testing.T) {
	ctx := context.Background()
	tel, err := proofotel.Setup(ctx, proofotel.Options{ServiceName: "proofkit-test"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})

	tr, err := proof.ParseLinearTransform("x", "5", "2")
	if err != nil {
		t.Fatalf("ParseLinearTransform: %v", err)
	}
	sink := artifact.Observe("memory", artifact.NewMemorySink(), tel.Sinks)

	var events []pipeline.Event
	_, err = pipeline.NewRunner(sink, nil).Run(ctx, pipeline.Job{
		Description: "reversibility_proof",
		Transform:   tr,
		Expressions: []string{"(x - 5)/2", "1/0"},
	}, pipeline.RunOptions{
		EventHandler: pipeline.MultiEventHandler(tel.Handler(), func(e pipeline.Event) {
			events = append(events, e)
		}),
		EventHandlerDecorator: tel.Decorator(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// run.started precedes the run span it opens.
	for _, e := range events[1:] {
		if e.TraceID == "" {
			t.Errorf("event %s (seq %d) has no trace id", e.Kind, e.Seq)
		}
	}

	points, err := tel.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	found := map[string]bool{}
	for _, p := range points {
		found[p.Name+"|"+p.Attributes] = true
	}
	for _, want := range []string{
		"proofkit.expression.validations|classification=integrity_breach",
		"proofkit.expression.validations|classification=valid",
		"proofkit.stage.executions|stage=document",
		"proofkit.sink.writes|kind=latex,sink=memory,success=true",
	} {
		if !found[want] {
			t.Errorf("missing metric point %s", want)
		}
	}
}

var testNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func TestSummarize_Sorted(t *testing.T) {
	reader, mp := newTestMeter()
	h, err := proofotel.NewMetricsHandler(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetricsHandler: %v", err)
	}
	h.Handle(pipeline.NewEvent(pipeline.EventArtifactWritten, "r", testNow).WithPayload("kind", "symbolic"))
	h.Handle(pipeline.NewEvent(pipeline.EventArtifactWritten, "r", testNow).WithPayload("kind", "latex"))

	points := proofotel.Summarize(*collectMetrics(t, reader))
	var names []string
	for _, p := range points {
		names = append(names, p.Name+"{"+p.Attributes+"}")
	}
	got := strings.Join(names, " ")
	want := "proofkit.artifacts.written{kind=latex} proofkit.artifacts.written{kind=symbolic}"
	if got != want {
		t.Errorf("Summarize = %s, want %s", got, want)
	}
}
