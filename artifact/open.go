package artifact

import (
	"fmt"
	"io"
	"log/slog"
)

// SinkType names a sink implementation.
type SinkType string

const (
	SinkFile   SinkType = "file"
	SinkSQLite SinkType = "sqlite"
	SinkMemory SinkType = "memory"
	SinkLog    SinkType = "log"
)

// SinkTypes lists the supported sink types.
func SinkTypes() []SinkType {
	return []SinkType{SinkFile, SinkSQLite, SinkMemory, SinkLog}
}

// Options selects and configures a sink.
type Options struct {
	Type   SinkType
	Dir    string // file sink root
	DSN    string // sqlite data source
	Logger *slog.Logger
}

// Open constructs the sink named by opts.Type. Close the result with Close.
func Open(opts Options) (Sink, error) {
	switch opts.Type {
	case SinkFile, "":
		return NewFileSink(opts.Dir), nil
	case SinkSQLite:
		if opts.DSN == "" {
			return nil, fmt.Errorf("artifact: sqlite sink requires a dsn")
		}
		sink, err := NewSQLiteSink(opts.DSN)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case SinkMemory:
		return NewMemorySink(), nil
	case SinkLog:
		return NewLogSink(opts.Logger), nil
	default:
		return nil, fmt.Errorf("artifact: unknown sink type %q", opts.Type)
	}
}

// Close closes s if it holds resources.
func Close(s Sink) error {
	if u, ok := s.(interface{ Unwrap() Sink }); ok {
		s = u.Unwrap()
	}
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// AsReader returns the Reader behind s, looking through observation
// wrappers. Log sinks cannot be read back.
func AsReader(s Sink) (Reader, bool) {
	if u, ok := s.(interface{ Unwrap() Sink }); ok {
		s = u.Unwrap()
	}
	r, ok := s.(Reader)
	return r, ok
}
