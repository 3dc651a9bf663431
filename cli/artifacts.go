package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/petal-labs/proofkit/artifact"
)

// artifactEntry is the JSON shape of one listed artifact.
type artifactEntry struct {
	Key         string    `json:"key"`
	Kind        string    `json:"kind"`
	ContentType string    `json:"content_type"`
	Bytes       int       `json:"bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewArtifactsCmd creates the "artifacts" command group.
func NewArtifactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "List stored proof artifacts",
		Args:  inputArgs(cobra.NoArgs),
		RunE:  runArtifactsList,
	}

	cmd.PersistentFlags().String("sink", string(artifact.SinkFile), "Sink to read: file | sqlite")
	cmd.PersistentFlags().String("out", "logs", "File sink root")
	cmd.PersistentFlags().String("dsn", "proofkit.db", "SQLite data source")
	cmd.Flags().String("kind", "", "Only list one kind: symbolic | distributed_ledger | public_registry | latex | validation")
	cmd.Flags().String("format", "table", "Output format: table | json")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <key>",
		Short: "Print one artifact",
		Args:  inputArgs(cobra.ExactArgs(1)),
		RunE:  runArtifactsShow,
	})

	return cmd
}

// openReader opens the sink named by the flags for reading.
func openReader(cmd *cobra.Command) (artifact.Reader, func(), error) {
	sinkType, _ := cmd.Flags().GetString("sink")
	dir, _ := cmd.Flags().GetString("out")
	dsn, _ := cmd.Flags().GetString("dsn")

	switch artifact.SinkType(sinkType) {
	case artifact.SinkFile, artifact.SinkSQLite:
	default:
		return nil, nil, exitError(exitInputParse, "sink %q cannot be listed (use file or sqlite)", sinkType)
	}

	sink, err := artifact.Open(artifact.Options{
		Type:   artifact.SinkType(sinkType),
		Dir:    dir,
		DSN:    dsn,
		Logger: newLogger(cmd),
	})
	if err != nil {
		return nil, nil, exitError(exitRuntime, "opening %s sink: %v", sinkType, err)
	}
	reader, ok := artifact.AsReader(sink)
	if !ok {
		_ = artifact.Close(sink)
		return nil, nil, exitError(exitInputParse, "sink %q cannot be listed", sinkType)
	}
	return reader, func() { _ = artifact.Close(sink) }, nil
}

func runArtifactsList(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format, "table", "json"); err != nil {
		return err
	}
	var filter artifact.Filter
	if kind, _ := cmd.Flags().GetString("kind"); kind != "" {
		k, err := artifact.ParseKind(kind)
		if err != nil {
			return exitError(exitInputParse, "%v", err)
		}
		filter.Kind = k
	}

	reader, closeFn, err := openReader(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	items, err := reader.List(cmd.Context(), filter)
	if err != nil {
		return exitError(exitRuntime, "listing artifacts: %v", err)
	}

	out := stdout(cmd)
	if format == "json" {
		entries := make([]artifactEntry, 0, len(items))
		for _, a := range items {
			entries = append(entries, artifactEntry{
				Key:         a.Key,
				Kind:        string(a.Kind),
				ContentType: a.ContentType,
				Bytes:       len(a.Data),
				CreatedAt:   a.CreatedAt,
			})
		}
		if err := writeJSON(out, entries); err != nil {
			return exitError(exitRuntime, "encoding artifacts: %v", err)
		}
		return nil
	}

	if len(items) == 0 {
		fmt.Fprintln(out, "(0 artifacts)")
		return nil
	}
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Key", "Kind", "Content Type", "Size", "Created"})
	for _, a := range items {
		t.AppendRow(table.Row{
			a.Key,
			string(a.Kind),
			a.ContentType,
			humanize.Bytes(uint64(len(a.Data))),
			a.CreatedAt.Local().Format(time.DateTime),
		})
	}
	t.Render()
	fmt.Fprintf(out, "(%d %s)\n", len(items), pluralize("artifact", len(items)))
	return nil
}

func runArtifactsShow(cmd *cobra.Command, args []string) error {
	reader, closeFn, err := openReader(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	a, err := reader.Get(cmd.Context(), args[0])
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return exitError(exitFileNotFound, "artifact not found: %s", args[0])
		}
		return exitError(exitRuntime, "reading artifact: %v", err)
	}
	_, _ = cmd.OutOrStdout().Write(a.Data)
	return nil
}
