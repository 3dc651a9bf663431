package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/petal-labs/proofkit/artifact"
	"github.com/petal-labs/proofkit/config"
	"github.com/petal-labs/proofkit/otel"
	"github.com/petal-labs/proofkit/pipeline"
	"github.com/petal-labs/proofkit/proof"
	"github.com/petal-labs/proofkit/symbolic"
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Prove the configured transform, validate expressions and write all artifacts",
		Args:  inputArgs(cobra.NoArgs),
		RunE:  runRun,
	}

	cmd.Flags().String("config", "", "Config file (default: ./proofkit.yaml, then ~/.proofkit/config.yaml)")
	cmd.Flags().String("sink", "", "Override output.sink: file | sqlite | memory | log")
	cmd.Flags().String("out", "", "Override output.dir for the file sink")
	cmd.Flags().String("dsn", "", "Override output.dsn for the sqlite sink")
	cmd.Flags().Bool("mirror-log", false, "Also write every artifact to the log")
	cmd.Flags().Bool("metrics", false, "Print collected metrics after the run")
	cmd.Flags().Duration("timeout", time.Minute, "Execution timeout")

	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveRunConfig(cmd)
	if err != nil {
		return err
	}
	transform, err := cfg.LinearTransform()
	if err != nil {
		return exitError(exitInputParse, "%v", err)
	}

	logger := newLogger(cmd)
	out := stdout(cmd)

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	tel, err := otel.Setup(ctx, otel.Options{
		ServiceName:  cfg.Telemetry.ServiceName,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return exitError(exitRuntime, "telemetry: %v", err)
	}
	defer func() {
		// Detached so a timed-out run still flushes its spans.
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	opts := cfg.SinkOptions()
	opts.Logger = logger
	primary, err := artifact.Open(opts)
	if err != nil {
		return exitError(exitRuntime, "opening %s sink: %v", opts.Type, err)
	}
	defer func() {
		if err := artifact.Close(primary); err != nil {
			logger.Warn("closing sink failed", "error", err)
		}
	}()

	sink := artifact.Observe(string(opts.Type), primary, tel.Sinks)
	if mirror, _ := cmd.Flags().GetBool("mirror-log"); mirror {
		sink = artifact.NewMultiSink(artifact.ErrorPolicyFail, logger,
			artifact.Target{Name: string(opts.Type), Sink: sink},
			artifact.Target{Name: string(artifact.SinkLog), Sink: artifact.NewLogSink(logger)},
		)
	}

	job := pipeline.Job{
		Theorem:     cfg.Theorem,
		Description: cfg.Description,
		LedgerNote:  cfg.LedgerNote,
		Transform:   transform,
		Expressions: cfg.Expressions,
	}
	report, err := pipeline.NewRunner(sink, logger).Run(ctx, job, pipeline.RunOptions{
		EventHandler: pipeline.MultiEventHandler(
			tel.Handler(),
			pipeline.LogEventHandler(logger),
			statusHandler(out, primary),
		),
		EventHandlerDecorator: tel.Decorator(),
	})
	if err != nil {
		return runError(ctx, timeout, err)
	}

	fmt.Fprintf(out, "\n%s Proof run %s complete: %d %s written, %s\n",
		markOK.Sprint("🎯"), report.RunID, len(report.Artifacts),
		pluralize("artifact", len(report.Artifacts)), countsLine(report.Validation))

	if showMetrics, _ := cmd.Flags().GetBool("metrics"); showMetrics {
		printMetrics(ctx, out, tel, logger)
	}

	if !report.Passed() {
		failed := report.Validation.Total - report.Validation.Counts[symbolic.Valid]
		return exitError(exitValidation, "%d %s failed validation",
			failed, pluralize("expression", failed))
	}
	return nil
}

// resolveRunConfig loads the config and applies flag overrides.
func resolveRunConfig(cmd *cobra.Command) (config.Config, error) {
	explicit, _ := cmd.Flags().GetString("config")
	cfg, path, err := loadConfig(explicit)
	if err != nil {
		return config.Config{}, err
	}

	overrides := map[string]*string{
		"sink": &cfg.Output.Sink,
		"out":  &cfg.Output.Dir,
		"dsn":  &cfg.Output.DSN,
	}
	changed := false
	for flag, field := range overrides {
		if cmd.Flags().Changed(flag) {
			*field, _ = cmd.Flags().GetString(flag)
			changed = true
		}
	}
	if changed {
		if err := cfg.Validate(); err != nil {
			return config.Config{}, exitError(exitInputParse, "%v", err)
		}
	}

	if path != "" {
		newLogger(cmd).Debug("config loaded", "path", path)
	}
	return cfg, nil
}

// statusHandler prints one line per written artifact.
func statusHandler(w io.Writer, sink artifact.Sink) pipeline.EventHandler {
	return func(e pipeline.Event) {
		switch e.Kind {
		case pipeline.EventArtifactWritten:
			fmt.Fprintf(w, "%s %s: %s\n", markOK.Sprint("✅"), e.PayloadString("label"), displayPath(sink, e.PayloadString("key")))
		case pipeline.EventExpressionValidated:
			if e.PayloadString("classification") != symbolic.Valid.String() {
				fmt.Fprintf(w, "%s %s: %s\n", markWarn.Sprint("⚠"), e.PayloadString("input"), e.PayloadString("message"))
			}
		}
	}
}

// displayPath shows file sink artifacts by their path on disk.
func displayPath(sink artifact.Sink, key string) string {
	if fs, ok := sink.(*artifact.FileSink); ok {
		return fs.Path(key)
	}
	return key
}

func runError(ctx context.Context, timeout time.Duration, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return exitError(exitRuntime, "execution timed out after %s", timeout)
	case errors.Is(err, proof.ErrNotReversible):
		return exitError(exitValidation, "%v", err)
	case errors.Is(err, artifact.ErrExists):
		return exitError(exitRuntime, "%v (artifacts are keyed by the second; retry shortly)", err)
	default:
		return exitError(exitRuntime, "execution failed: %v", err)
	}
}

func printMetrics(ctx context.Context, w io.Writer, tel *otel.Telemetry, logger *slog.Logger) {
	points, err := tel.Collect(ctx)
	if err != nil {
		logger.Warn("collecting metrics failed", "error", err)
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Metric", "Attributes", "Count", "Value"})
	for _, p := range points {
		t.AppendRow(table.Row{p.Name, p.Attributes, p.Count, fmt.Sprintf("%.6g", p.Value)})
	}
	fmt.Fprintln(w)
	t.Render()
}
