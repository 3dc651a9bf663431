package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/petal-labs/proofkit/artifact"
	"github.com/petal-labs/proofkit/proof"
	"github.com/petal-labs/proofkit/symbolic"
)

// Job is the input of one run.
type Job struct {
	Theorem     string
	Description string
	LedgerNote  string
	Transform   proof.LinearTransform
	Expressions []string
}

// RunOptions configures a single run.
type RunOptions struct {
	// Now provides the current time (for testing). If nil, uses time.Now.
	Now func() time.Time

	// NewID generates run and ledger IDs. If nil, uses uuid.NewString.
	NewID func() string

	// EventHandler receives events during execution.
	EventHandler EventHandler

	// EventHandlerDecorator wraps EventHandler before the run starts.
	EventHandlerDecorator EventHandlerDecorator
}

// Written records one artifact accepted by the sink.
type Written struct {
	Kind  artifact.Kind
	Key   string
	Label string
}

// Report is the outcome of a run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	Elapsed    time.Duration
	Proof      *proof.Proof
	Results    []symbolic.Result
	Validation proof.ValidationReport
	Artifacts  []Written
}

// Passed reports whether the proof holds and every expression is valid.
func (r *Report) Passed() bool {
	return r != nil && r.Proof.Holds() && r.Validation.Passed()
}

// Runner executes jobs against an artifact sink.
type Runner struct {
	sink      artifact.Sink
	validator *symbolic.Validator
	logger    *slog.Logger
}

// NewRunner creates a Runner. If logger is nil, slog.Default() is used.
func NewRunner(sink artifact.Sink, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		sink:      sink,
		validator: symbolic.NewValidator(),
		logger:    logger,
	}
}

// run carries per-run state.
type run struct {
	*Runner
	ctx    context.Context
	opts   RunOptions
	id     string
	start  time.Time
	seq    uint64
	emitFn EventHandler
	report *Report
}

func (r *run) emit(e Event) {
	r.seq++
	e.Seq = r.seq
	if r.emitFn != nil {
		r.emitFn(e)
	}
}

func (r *run) event(kind EventKind) Event {
	return NewEvent(kind, r.id, r.opts.Now())
}

// Run proves the transform, validates the expressions and writes every
// artifact. Expression failures are recorded in the report and never abort
// the run; proof and sink failures do. The returned report is non-nil even
// on error and holds whatever was completed.
func (r *Runner) Run(ctx context.Context, job Job, opts RunOptions) (*Report, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	emit := opts.EventHandler
	if opts.EventHandlerDecorator != nil && emit != nil {
		emit = opts.EventHandlerDecorator(emit)
	}

	st := &run{
		Runner: r,
		ctx:    ctx,
		opts:   opts,
		id:     opts.NewID(),
		start:  opts.Now(),
		emitFn: emit,
	}
	st.report = &Report{RunID: st.id, StartedAt: st.start}

	st.emit(st.event(EventRunStarted).
		WithPayload("theorem", job.Theorem).
		WithPayload("transform", job.Transform.String()).
		WithPayload("expressions", len(job.Expressions)))
	r.logger.Info("proof run started", "run_id", st.id, "transform", job.Transform.String())

	err := st.execute(job)

	st.report.Elapsed = opts.Now().Sub(st.start)
	finish := st.event(EventRunFinished).WithElapsed(st.report.Elapsed)
	if err != nil {
		finish = finish.
			WithPayload("status", StatusFailed).
			WithPayload("error", err.Error())
		r.logger.Error("proof run failed", "run_id", st.id, "error", err)
	} else {
		finish = finish.
			WithPayload("status", StatusCompleted).
			WithPayload("artifacts", len(st.report.Artifacts))
		r.logger.Info("proof run finished",
			"run_id", st.id,
			"artifacts", len(st.report.Artifacts),
			"elapsed", st.report.Elapsed,
		)
	}
	st.emit(finish)

	return st.report, err
}

func (r *run) execute(job Job) error {
	var p *proof.Proof
	if err := r.stage(StageProve, func() error {
		var err error
		p, err = proof.Prove(job.Theorem, job.Transform)
		r.report.Proof = p
		return err
	}); err != nil {
		return err
	}

	if err := r.stage(StageValidate, func() error {
		r.report.Results = make([]symbolic.Result, 0, len(job.Expressions))
		for i, in := range job.Expressions {
			if err := r.ctx.Err(); err != nil {
				return err
			}
			res := r.validator.ValidateOne(i, in)
			r.report.Results = append(r.report.Results, res)
			r.emitValidated(res)
		}
		r.report.Validation = proof.NewValidationReport(r.id, r.report.Results, r.start)
		return nil
	}); err != nil {
		return err
	}

	return r.stage(StageDocument, func() error {
		return r.document(job, p)
	})
}

// stage wraps fn with started/finished/failed events.
func (r *run) stage(name string, fn func() error) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	start := r.opts.Now()
	r.emit(r.event(EventStageStarted).WithStage(name))

	err := fn()
	elapsed := r.opts.Now().Sub(start)
	if err != nil {
		r.emit(r.event(EventStageFailed).
			WithStage(name).
			WithElapsed(elapsed).
			WithPayload("error", err.Error()))
		return fmt.Errorf("%s: %w", name, err)
	}
	r.emit(r.event(EventStageFinished).WithStage(name).WithElapsed(elapsed))
	return nil
}

func (r *run) emitValidated(res symbolic.Result) {
	e := r.event(EventExpressionValidated).
		WithStage(StageValidate).
		WithPayload("index", res.Index).
		WithPayload("input", res.Input).
		WithPayload("classification", res.Classification.String()).
		WithPayload("message", res.Message())
	if res.Simplified != nil {
		e = e.WithPayload("simplified", res.Simplified.String())
	}
	r.emit(e)

	level := slog.LevelDebug
	if res.Classification != symbolic.Valid {
		level = slog.LevelWarn
	}
	r.logger.Log(r.ctx, level, "expression classified",
		"index", res.Index,
		"input", res.Input,
		"classification", res.Classification.String(),
	)
}

// document writes the artifacts in a fixed order. Time-keyed artifacts use
// create mode, so a second run within the same second fails with
// artifact.ErrExists instead of overwriting.
func (r *run) document(job Job, p *proof.Proof) error {
	at := r.start

	symLog, err := artifact.NewJSON(
		artifact.SymbolicLogKey(proof.FileDescription(job.Description)),
		proof.NewSymbolicLog(p, job.Description), at, artifact.ModeReplace)
	if err != nil {
		return err
	}
	if err := r.write(symLog, "Symbolic proof log saved"); err != nil {
		return err
	}

	ledger, err := artifact.NewJSON(artifact.LedgerKey(at),
		proof.NewLedgerEntry(p, r.opts.NewID(), job.LedgerNote, at), at, artifact.ModeCreate)
	if err != nil {
		return err
	}
	if err := r.write(ledger, "Proof hash notarized"); err != nil {
		return err
	}

	registry, err := artifact.NewJSON(artifact.RegistryKey(at),
		proof.NewRegistryRecord(p, at), at, artifact.ModeCreate)
	if err != nil {
		return err
	}
	if err := r.write(registry, "Proof exported to registry"); err != nil {
		return err
	}

	snippet, err := proof.Snippet(p)
	if err != nil {
		return err
	}
	if err := r.write(artifact.NewText(artifact.LaTeXKey, snippet, at, artifact.ModeReplace), "LaTeX snippet saved"); err != nil {
		return err
	}

	report, err := artifact.NewJSON(artifact.ValidationKey(at), r.report.Validation, at, artifact.ModeCreate)
	if err != nil {
		return err
	}
	return r.write(report, "Validation report saved")
}

func (r *run) write(a artifact.Artifact, label string) error {
	if err := r.sink.Write(ContextWithStage(r.ctx, r.id, StageDocument), a); err != nil {
		if errors.Is(err, artifact.ErrExists) {
			r.logger.Warn("artifact already exists", "key", a.Key)
		}
		return err
	}
	r.report.Artifacts = append(r.report.Artifacts, Written{Kind: a.Kind, Key: a.Key, Label: label})
	r.emit(r.event(EventArtifactWritten).
		WithStage(StageDocument).
		WithPayload("kind", string(a.Kind)).
		WithPayload("key", a.Key).
		WithPayload("label", label).
		WithPayload("bytes", len(a.Data)))
	return nil
}
