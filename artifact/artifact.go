// Package artifact persists the documents produced by a proof run.
//
// A Sink accepts artifacts; a Reader lists and fetches them back. Keys are
// slash-separated relative paths such as "latex/reversibility_proof_snippet.tex",
// and the first segment is the artifact kind.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

var (
	// ErrExists is returned when a create-mode artifact's key is taken.
	ErrExists = errors.New("artifact: already exists")

	// ErrNotFound is returned when no artifact has the requested key.
	ErrNotFound = errors.New("artifact: not found")

	// ErrInvalidKey is returned for empty, absolute or escaping keys.
	ErrInvalidKey = errors.New("artifact: invalid key")
)

// Kind groups artifacts by purpose.
type Kind string

const (
	KindSymbolicLog Kind = "symbolic"
	KindLedger      Kind = "distributed_ledger"
	KindRegistry    Kind = "public_registry"
	KindLaTeX       Kind = "latex"
	KindValidation  Kind = "validation"
)

// Kinds lists every known kind in display order.
func Kinds() []Kind {
	return []Kind{KindSymbolicLog, KindLedger, KindRegistry, KindLaTeX, KindValidation}
}

// ParseKind maps a name to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("artifact: unknown kind %q", s)
}

// Mode controls what a sink does when the key already exists.
type Mode string

const (
	// ModeCreate refuses to overwrite and fails with ErrExists.
	ModeCreate Mode = "create"
	// ModeReplace overwrites any existing artifact.
	ModeReplace Mode = "replace"
)

const (
	ContentTypeJSON  = "application/json"
	ContentTypeLaTeX = "application/x-latex"
)

// TimestampLayout formats the timestamp segment of time-keyed artifacts.
const TimestampLayout = "20060102_150405"

// Artifact is one stored document.
type Artifact struct {
	Kind        Kind
	Key         string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
	Mode        Mode
}

// Sink accepts artifacts.
type Sink interface {
	Write(ctx context.Context, a Artifact) error
}

// Filter narrows a listing. The zero value matches everything.
type Filter struct {
	Kind Kind
}

func (f Filter) match(a Artifact) bool {
	return f.Kind == "" || a.Kind == f.Kind
}

// Reader fetches stored artifacts.
type Reader interface {
	Get(ctx context.Context, key string) (Artifact, error)
	// List returns matching artifacts ordered by key.
	List(ctx context.Context, f Filter) ([]Artifact, error)
}

// Store is a sink that can also be read back and must be closed.
type Store interface {
	Sink
	Reader
	Close() error
}

// ValidateKey checks that key is a clean relative path.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	case strings.HasPrefix(key, "/"), strings.Contains(key, `\`):
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	case path.Clean(key) != key, key == "..", strings.HasPrefix(key, "../"):
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// KindOf returns the kind encoded in a key's first segment.
func KindOf(key string) Kind {
	if i := strings.IndexByte(key, '/'); i > 0 {
		return Kind(key[:i])
	}
	return ""
}

// ContentTypeOf guesses a content type from a key's extension.
func ContentTypeOf(key string) string {
	switch path.Ext(key) {
	case ".json":
		return ContentTypeJSON
	case ".tex":
		return ContentTypeLaTeX
	}
	return "application/octet-stream"
}

// SymbolicLogKey is keyed by description, so reruns replace it.
func SymbolicLogKey(description string) string {
	return fmt.Sprintf("%s/symbolic_log_%s.json", KindSymbolicLog, description)
}

// LedgerKey returns the ledger entry key for t.
func LedgerKey(t time.Time) string {
	return fmt.Sprintf("%s/ledger_entry_%s.json", KindLedger, t.Format(TimestampLayout))
}

// RegistryKey returns the registry record key for t.
func RegistryKey(t time.Time) string {
	return fmt.Sprintf("%s/registry_proof_%s.json", KindRegistry, t.Format(TimestampLayout))
}

// LaTeXKey is the fixed location of the documentation snippet.
const LaTeXKey = "latex/reversibility_proof_snippet.tex"

// ValidationKey returns the validation report key for t.
func ValidationKey(t time.Time) string {
	return fmt.Sprintf("%s/validation_report_%s.json", KindValidation, t.Format(TimestampLayout))
}

// NewJSON encodes v as an indented JSON artifact.
func NewJSON(key string, v any, at time.Time, mode Mode) (Artifact, error) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact: marshal %s: %w", key, err)
	}
	return Artifact{
		Kind:        KindOf(key),
		Key:         key,
		ContentType: ContentTypeJSON,
		Data:        append(data, '\n'),
		CreatedAt:   at,
		Mode:        mode,
	}, nil
}

// NewText wraps text content as an artifact.
func NewText(key, content string, at time.Time, mode Mode) Artifact {
	return Artifact{
		Kind:        KindOf(key),
		Key:         key,
		ContentType: ContentTypeOf(key),
		Data:        []byte(content),
		CreatedAt:   at,
		Mode:        mode,
	}
}

// prepare validates a and fills derived fields.
func prepare(a Artifact) (Artifact, error) {
	if err := ValidateKey(a.Key); err != nil {
		return a, err
	}
	if a.Kind == "" {
		a.Kind = KindOf(a.Key)
	}
	if a.ContentType == "" {
		a.ContentType = ContentTypeOf(a.Key)
	}
	if a.Mode == "" {
		a.Mode = ModeCreate
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	return a, nil
}

func clone(a Artifact) Artifact {
	a.Data = append([]byte(nil), a.Data...)
	return a
}
