package pipeline

import "context"

type scopeKey struct{}

type scope struct {
	runID string
	stage string
}

// ContextWithStage returns a context recording the run and stage it is used
// in. Sink writes made during a stage receive such a context.
func ContextWithStage(ctx context.Context, runID, stage string) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope{runID: runID, stage: stage})
}

// StageFromContext reports the run and stage recorded by ContextWithStage.
func StageFromContext(ctx context.Context) (runID, stage string, ok bool) {
	s, ok := ctx.Value(scopeKey{}).(scope)
	return s.runID, s.stage, ok
}
