package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/petal-labs/proofkit/config"
	"github.com/petal-labs/proofkit/proof"
	"github.com/petal-labs/proofkit/symbolic"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [expression...]",
		Short: "Classify symbolic expressions as valid, invalid syntax or integrity breach",
		Long: "Classify each expression independently. Expressions come from the arguments, " +
			"from --file (one per line), or from the expressions list in the config file.",
		RunE: runValidate,
	}

	cmd.Flags().StringP("file", "f", "", "Read expressions from a file, one per line ('-' for stdin)")
	cmd.Flags().String("config", "", "Config file used when no expressions are given")
	cmd.Flags().String("format", "text", "Output format: text | json | table")

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format, "text", "json", "table"); err != nil {
		return err
	}

	inputs, err := validateInputs(cmd, args)
	if err != nil {
		return err
	}

	results := symbolic.NewValidator().Validate(inputs)
	logger := newLogger(cmd)
	for _, r := range results {
		if r.Classification != symbolic.Valid {
			logger.Debug("expression rejected", "index", r.Index, "input", r.Input, "classification", r.Classification.String(), "error", r.Err)
		}
	}

	report := proof.NewValidationReport(uuid.NewString(), results, time.Now().UTC())
	out := stdout(cmd)
	switch format {
	case "json":
		if err := writeJSON(out, report); err != nil {
			return exitError(exitRuntime, "encoding report: %v", err)
		}
	case "table":
		printResultsTable(out, report)
	default:
		printResultsText(out, report)
	}

	if !report.Passed() {
		failed := report.Total - report.Counts[symbolic.Valid]
		return exitError(exitValidation, "%d of %d %s failed validation",
			failed, report.Total, pluralize("expression", report.Total))
	}
	return nil
}

// validateInputs resolves the expression list: arguments first, then
// --file, then the config file.
func validateInputs(cmd *cobra.Command, args []string) ([]string, error) {
	file, _ := cmd.Flags().GetString("file")
	if len(args) > 0 && file != "" {
		return nil, exitError(exitInputParse, "cannot combine expression arguments with --file")
	}
	if len(args) > 0 {
		return args, nil
	}
	if file != "" {
		return readExpressionFile(cmd, file)
	}

	explicit, _ := cmd.Flags().GetString("config")
	cfg, _, err := loadConfig(explicit)
	if err != nil {
		return nil, err
	}
	if len(cfg.Expressions) == 0 {
		return nil, exitError(exitInputParse, "no expressions given")
	}
	return cfg.Expressions, nil
}

// readExpressionFile reads one expression per non-blank line. Lines starting
// with '#' are comments.
func readExpressionFile(cmd *cobra.Command, path string) ([]string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path) // #nosec G304 -- path from user CLI flag
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, exitError(exitFileNotFound, "file not found: %s", path)
		}
		return nil, exitError(exitRuntime, "reading %s: %v", path, err)
	}

	var inputs []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		inputs = append(inputs, line)
	}
	if err := sc.Err(); err != nil {
		return nil, exitError(exitInputParse, "reading %s: %v", path, err)
	}
	if len(inputs) == 0 {
		return nil, exitError(exitInputParse, "no expressions in %s", path)
	}
	return inputs, nil
}

// loadConfig maps config errors onto exit codes.
func loadConfig(explicit string) (config.Config, string, error) {
	cfg, path, err := config.Load(explicit)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.Config{}, "", exitError(exitFileNotFound, "%v", err)
		}
		return config.Config{}, "", exitError(exitInputParse, "%v", err)
	}
	return cfg, path, nil
}

func printResultsText(w io.Writer, report proof.ValidationReport) {
	for _, e := range report.Entries {
		mark := markOK.Sprint("✔")
		if e.Status != symbolic.Valid {
			mark = markFail.Sprint("✘")
		}
		fmt.Fprintf(w, "%s [%d] %s: %s\n", mark, e.Index, e.Input, e.Message)
	}
	fmt.Fprintf(w, "\n%s\n", countsLine(report))
}

func printResultsTable(w io.Writer, report proof.ValidationReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Input", "Status", "Simplified", "Message"})
	for _, e := range report.Entries {
		status := markOK.Sprint(e.Status.String())
		if e.Status != symbolic.Valid {
			status = markFail.Sprint(e.Status.String())
		}
		t.AppendRow(table.Row{e.Index, e.Input, status, e.Simplified, e.Message})
	}
	t.AppendFooter(table.Row{"", "", "", "", countsLine(report)})
	t.Render()
}

func countsLine(report proof.ValidationReport) string {
	return fmt.Sprintf("%d valid, %d invalid_syntax, %d integrity_breach",
		report.Counts[symbolic.Valid],
		report.Counts[symbolic.InvalidSyntax],
		report.Counts[symbolic.IntegrityBreach])
}

func checkFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return exitError(exitInputParse, "unknown format %q (use %s)", format, strings.Join(allowed, ", "))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
