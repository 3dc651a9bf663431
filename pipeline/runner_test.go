package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/petal-labs/proofkit/artifact"
	"github.com/petal-labs/proofkit/proof"
	"github.com/petal-labs/proofkit/symbolic"
)

var testStart = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

// fixedClock advances one millisecond per call.
func fixedClock() func() time.Time {
	now := testStart
	return func() time.Time {
		t := now
		now = now.Add(time.Millisecond)
		return t
	}
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func testJob(t *testing.T, expressions ...string) Job {
	t.Helper()
	tr, err := proof.ParseLinearTransform("x", "5", "2")
	if err != nil {
		t.Fatalf("ParseLinearTransform() error = %v", err)
	}
	return Job{
		Theorem:     proof.DefaultTheorem,
		Description: "reversibility_proof",
		LedgerNote:  "Reversibility proof example",
		Transform:   tr,
		Expressions: expressions,
	}
}

func testOptions(events *[]Event) RunOptions {
	return RunOptions{
		Now:   fixedClock(),
		NewID: sequentialIDs(),
		EventHandler: func(e Event) {
			*events = append(*events, e)
		},
	}
}

func TestRun_WritesAllArtifacts(t *testing.T) {
	sink := artifact.NewMemorySink()
	var events []Event

	report, err := NewRunner(sink, nil).Run(context.Background(),
		testJob(t, "(x - 5)/2", "(x + 0)/2"), testOptions(&events))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !report.Passed() {
		t.Error("Passed() = false, want true")
	}
	if report.RunID != "id-1" {
		t.Errorf("RunID = %q, want id-1", report.RunID)
	}

	wantKeys := []string{
		"symbolic/symbolic_log_reversibility_proof.json",
		"distributed_ledger/ledger_entry_20260314_150926.json",
		"public_registry/registry_proof_20260314_150926.json",
		"latex/reversibility_proof_snippet.tex",
		"validation/validation_report_20260314_150926.json",
	}
	wantLabels := []string{
		"Symbolic proof log saved",
		"Proof hash notarized",
		"Proof exported to registry",
		"LaTeX snippet saved",
		"Validation report saved",
	}
	if len(report.Artifacts) != len(wantKeys) {
		t.Fatalf("Artifacts = %+v", report.Artifacts)
	}
	for i, w := range report.Artifacts {
		if w.Key != wantKeys[i] || w.Label != wantLabels[i] {
			t.Errorf("Artifacts[%d] = %+v, want %s %q", i, w, wantKeys[i], wantLabels[i])
		}
	}
	if sink.Len() != len(wantKeys) {
		t.Errorf("sink holds %d artifacts, want %d", sink.Len(), len(wantKeys))
	}

	ledger, err := sink.Get(context.Background(), wantKeys[1])
	if err != nil {
		t.Fatalf("Get(ledger) error = %v", err)
	}
	var entry proof.LedgerEntry
	if err := json.Unmarshal(ledger.Data, &entry); err != nil {
		t.Fatalf("unmarshal ledger: %v", err)
	}
	if entry.ID != "id-2" || entry.Description != "Reversibility proof example" {
		t.Errorf("ledger entry = %+v", entry)
	}
	if entry.ProofHash != report.Proof.Hash {
		t.Errorf("ledger hash = %s, want %s", entry.ProofHash, report.Proof.Hash)
	}
	if !entry.Timestamp.Equal(testStart) {
		t.Errorf("ledger timestamp = %v, want %v", entry.Timestamp, testStart)
	}
}

func TestRun_EventSequence(t *testing.T) {
	var events []Event
	_, err := NewRunner(artifact.NewMemorySink(), nil).Run(context.Background(),
		testJob(t, "x + 1"), testOptions(&events))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var kinds []string
	for i, e := range events {
		if e.Seq != uint64(i+1) {
			t.Errorf("events[%d].Seq = %d, want %d", i, e.Seq, i+1)
		}
		if e.RunID != "id-1" {
			t.Errorf("events[%d].RunID = %q", i, e.RunID)
		}
		kinds = append(kinds, e.Kind.String())
	}
	want := []string{
		"run.started",
		"stage.started", "stage.finished",
		"stage.started", "expression.validated", "stage.finished",
		"stage.started",
		"artifact.written", "artifact.written", "artifact.written", "artifact.written", "artifact.written",
		"stage.finished",
		"run.finished",
	}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Fatalf("event kinds =\n%v\nwant\n%v", kinds, want)
	}

	last := events[len(events)-1]
	if last.PayloadString("status") != StatusCompleted {
		t.Errorf("run.finished status = %q", last.PayloadString("status"))
	}
	if last.Elapsed <= 0 {
		t.Errorf("run.finished elapsed = %v, want > 0", last.Elapsed)
	}
	validated := events[4]
	if validated.Stage != StageValidate || validated.PayloadString("classification") != "valid" {
		t.Errorf("expression.validated = %+v", validated)
	}
}

func TestRun_ExpressionFailuresDoNotAbort(t *testing.T) {
	sink := artifact.NewMemorySink()
	var events []Event

	report, err := NewRunner(sink, nil).Run(context.Background(),
		testJob(t, "x/0", "not an expression ++", "(x - 5)/2", "0/0"), testOptions(&events))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Passed() {
		t.Error("Passed() = true, want false")
	}

	got := symbolic.Classifications(report.Results)
	want := []symbolic.Classification{
		symbolic.IntegrityBreach,
		symbolic.InvalidSyntax,
		symbolic.Valid,
		symbolic.IntegrityBreach,
	}
	if len(got) != len(want) {
		t.Fatalf("classifications = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("classification[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if report.Validation.Counts[symbolic.IntegrityBreach] != 2 {
		t.Errorf("Counts = %v", report.Validation.Counts)
	}
	if len(report.Artifacts) != 5 {
		t.Errorf("Artifacts = %d, want 5", len(report.Artifacts))
	}
}

func TestRun_SecondRunSameSecondConflicts(t *testing.T) {
	sink := artifact.NewMemorySink()
	runner := NewRunner(sink, nil)
	job := testJob(t, "x")

	var events []Event
	if _, err := runner.Run(context.Background(), job, testOptions(&events)); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	events = nil
	report, err := runner.Run(context.Background(), job, testOptions(&events))
	if !errors.Is(err, artifact.ErrExists) {
		t.Fatalf("second Run() error = %v, want ErrExists", err)
	}
	if !strings.HasPrefix(err.Error(), StageDocument+": ") {
		t.Errorf("error %q not prefixed with stage", err)
	}
	// The symbolic log replaces in place; the ledger entry collides.
	if len(report.Artifacts) != 1 {
		t.Errorf("Artifacts = %+v, want only the symbolic log", report.Artifacts)
	}

	var failed, finished *Event
	for i := range events {
		switch events[i].Kind {
		case EventStageFailed:
			failed = &events[i]
		case EventRunFinished:
			finished = &events[i]
		}
	}
	if failed == nil || failed.Stage != StageDocument {
		t.Errorf("stage.failed = %+v", failed)
	}
	if finished == nil || finished.PayloadString("status") != StatusFailed || finished.PayloadString("error") == "" {
		t.Errorf("run.finished = %+v", finished)
	}
}

func TestRun_ZeroScaleFailsProveStage(t *testing.T) {
	sink := artifact.NewMemorySink()
	job := testJob(t, "x")
	job.Transform.Scale.SetInt64(0)

	var events []Event
	report, err := NewRunner(sink, nil).Run(context.Background(), job, testOptions(&events))
	if !errors.Is(err, proof.ErrZeroScale) {
		t.Fatalf("Run() error = %v, want ErrZeroScale", err)
	}
	if report == nil || report.Passed() {
		t.Fatalf("report = %+v", report)
	}
	if sink.Len() != 0 {
		t.Errorf("sink holds %d artifacts, want 0", sink.Len())
	}
	if events[1].Kind != EventStageStarted || events[2].Kind != EventStageFailed || events[2].Stage != StageProve {
		t.Errorf("events = %+v", events[:3])
	}
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := artifact.NewMemorySink()
	var events []Event
	_, err := NewRunner(sink, nil).Run(ctx, testJob(t, "x"), testOptions(&events))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if sink.Len() != 0 {
		t.Errorf("sink holds %d artifacts", sink.Len())
	}
}

func TestRun_DecoratorWrapsHandler(t *testing.T) {
	var events []Event
	opts := testOptions(&events)
	opts.EventHandlerDecorator = func(next EventHandler) EventHandler {
		return func(e Event) {
			e.TraceID = "trace"
			next(e)
		}
	}
	if _, err := NewRunner(artifact.NewMemorySink(), nil).Run(context.Background(), testJob(t), opts); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, e := range events {
		if e.TraceID != "trace" {
			t.Fatalf("event %s not decorated", e.Kind)
		}
	}
}

func TestMultiEventHandler(t *testing.T) {
	var a, b int
	h := MultiEventHandler(func(Event) { a++ }, nil, func(Event) { b++ })
	h(NewEvent(EventRunStarted, "r", testStart))
	if a != 1 || b != 1 {
		t.Errorf("handlers called a=%d b=%d", a, b)
	}
}
