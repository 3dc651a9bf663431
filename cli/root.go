// Package cli implements the proofkit command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the proofkit command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "proofkit",
		Short: "Symbolic expression validation and reversibility proofs",
		Long: "proofkit validates symbolic expressions, proves that linear data transforms " +
			"are reversible, and writes the proof artifacts to a configurable sink.",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
				text.DisableColors()
			}
		},
	}

	root.PersistentFlags().BoolP("verbose", "", false, "Enable verbose/debug logging")
	root.PersistentFlags().BoolP("quiet", "", false, "Suppress all output except errors")
	root.PersistentFlags().Bool("no-color", false, "Disable colored output")

	root.SetFlagErrorFunc(flagError)

	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("proofkit version %s\n", version))

	root.AddCommand(NewValidateCmd())
	root.AddCommand(NewProveCmd())
	root.AddCommand(NewRunCmd())
	root.AddCommand(NewArtifactsCmd())
	return root
}

// newLogger builds the stderr logger selected by --verbose and --quiet.
func newLogger(cmd *cobra.Command) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel(cmd),
	}))
}

func logLevel(cmd *cobra.Command) slog.Level {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		return slog.LevelDebug
	}
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		return slog.LevelError
	}
	return slog.LevelInfo
}

// stdout returns the command's output writer, or io.Discard under --quiet.
func stdout(cmd *cobra.Command) io.Writer {
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		return io.Discard
	}
	return cmd.OutOrStdout()
}

var (
	markOK   = text.Colors{text.FgGreen, text.Bold}
	markFail = text.Colors{text.FgRed, text.Bold}
	markWarn = text.Colors{text.FgYellow}
)

// pluralize returns the singular or plural form of a word based on count.
func pluralize(word string, count int) string {
	if count == 1 {
		return word
	}
	return word + "s"
}
