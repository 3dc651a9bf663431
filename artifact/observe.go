package artifact

import (
	"context"
	"time"
)

// WriteObservation describes one sink write.
type WriteObservation struct {
	Sink     string
	Kind     Kind
	Key      string
	Bytes    int
	Duration time.Duration
	Err      error
}

// Observer receives write observations. ctx is the context the write was
// made with.
type Observer interface {
	ObserveWrite(ctx context.Context, observation WriteObservation)
}

// ObservedSink reports every write to an Observer.
type ObservedSink struct {
	name     string
	sink     Sink
	observer Observer
}

// Observe wraps sink. A nil observer returns sink unchanged.
func Observe(name string, sink Sink, observer Observer) Sink {
	if observer == nil {
		return sink
	}
	return &ObservedSink{name: name, sink: sink, observer: observer}
}

func (s *ObservedSink) Write(ctx context.Context, a Artifact) error {
	start := time.Now()
	err := s.sink.Write(ctx, a)
	kind := a.Kind
	if kind == "" {
		kind = KindOf(a.Key)
	}
	s.observer.ObserveWrite(ctx, WriteObservation{
		Sink:     s.name,
		Kind:     kind,
		Key:      a.Key,
		Bytes:    len(a.Data),
		Duration: time.Since(start),
		Err:      err,
	})
	return err
}

// Unwrap returns the observed sink.
func (s *ObservedSink) Unwrap() Sink {
	return s.sink
}
