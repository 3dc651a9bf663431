package artifact

import (
	"context"
	"log/slog"
)

// LogSink writes artifacts to a structured logger instead of storage.
// Metadata is logged at Info; the body is added at Debug.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. If logger is nil, slog.Default() is used.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(ctx context.Context, a Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a, err := prepare(a)
	if err != nil {
		return err
	}

	attrs := []any{
		"key", a.Key,
		"kind", string(a.Kind),
		"content_type", a.ContentType,
		"bytes", len(a.Data),
		"mode", string(a.Mode),
	}
	if s.logger.Enabled(ctx, slog.LevelDebug) {
		attrs = append(attrs, "data", string(a.Data))
	}
	s.logger.InfoContext(ctx, "artifact", attrs...)
	return nil
}

var _ Sink = (*LogSink)(nil)
