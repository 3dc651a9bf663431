package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrorPolicy determines what a MultiSink does when one target fails.
type ErrorPolicy string

const (
	// ErrorPolicyFail stops at the first failing target.
	ErrorPolicyFail ErrorPolicy = "fail"

	// ErrorPolicyContinue logs failures, writes to the remaining targets and
	// reports every failure once all targets have been tried.
	ErrorPolicyContinue ErrorPolicy = "continue"
)

// Target is one named destination of a MultiSink.
type Target struct {
	Name string
	Sink Sink
}

// MultiSink fans each artifact out to several sinks in order.
type MultiSink struct {
	targets []Target
	policy  ErrorPolicy
	logger  *slog.Logger
}

// NewMultiSink creates a MultiSink. An empty policy defaults to
// ErrorPolicyFail; a nil logger defaults to slog.Default().
func NewMultiSink(policy ErrorPolicy, logger *slog.Logger, targets ...Target) *MultiSink {
	if policy == "" {
		policy = ErrorPolicyFail
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiSink{targets: targets, policy: policy, logger: logger}
}

func (m *MultiSink) Write(ctx context.Context, a Artifact) error {
	var errs []error
	for _, t := range m.targets {
		if err := t.Sink.Write(ctx, a); err != nil {
			err = fmt.Errorf("sink %q: %w", t.Name, err)
			if m.policy == ErrorPolicyFail {
				return err
			}
			m.logger.Warn("artifact sink failed",
				"sink", t.Name,
				"key", a.Key,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Sink = (*MultiSink)(nil)
