package artifact

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var testTime = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

func newTestSQLite(t *testing.T) *SQLiteSink {
	t.Helper()
	s, err := NewSQLiteSink(filepath.Join(t.TempDir(), "artifacts.db"))
	if err != nil {
		t.Fatalf("NewSQLiteSink: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// stores returns every readable implementation, each freshly created.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"file":   NewFileSink(t.TempDir()),
		"sqlite": newTestSQLite(t),
		"memory": NewMemorySink(),
	}
}

func textArtifact(key, body string, mode Mode) Artifact {
	return NewText(key, body, testTime, mode)
}

func TestKeys(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{SymbolicLogKey("reversibility_proof"), "symbolic/symbolic_log_reversibility_proof.json"},
		{LedgerKey(testTime), "distributed_ledger/ledger_entry_20240309_140507.json"},
		{RegistryKey(testTime), "public_registry/registry_proof_20240309_140507.json"},
		{ValidationKey(testTime), "validation/validation_report_20240309_140507.json"},
		{LaTeXKey, "latex/reversibility_proof_snippet.tex"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("key = %q, want %q", tt.got, tt.want)
		}
		if err := ValidateKey(tt.got); err != nil {
			t.Errorf("ValidateKey(%q): %v", tt.got, err)
		}
	}
	if KindOf(LaTeXKey) != KindLaTeX {
		t.Errorf("KindOf(%q) = %q", LaTeXKey, KindOf(LaTeXKey))
	}
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"", "/abs/key.json", "a/../b.json", "../up.json", "..", "./a.json", `a\b.json`, "a//b.json"} {
		if err := ValidateKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("ValidateKey(%q) = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(string(k))
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParseKind("nope"); err == nil {
		t.Error("ParseKind(nope) expected error")
	}
}

func TestNewJSON(t *testing.T) {
	a, err := NewJSON(LedgerKey(testTime), map[string]string{"proof_hash": "abc"}, testTime, ModeCreate)
	if err != nil {
		t.Fatalf("NewJSON: %v", err)
	}
	if a.Kind != KindLedger || a.ContentType != ContentTypeJSON {
		t.Errorf("Kind/ContentType = %q/%q", a.Kind, a.ContentType)
	}
	want := "{\n    \"proof_hash\": \"abc\"\n}\n"
	if string(a.Data) != want {
		t.Errorf("Data = %q, want %q", a.Data, want)
	}

	if _, err := NewJSON("x/y.json", make(chan int), testTime, ModeCreate); err == nil {
		t.Error("NewJSON(chan) expected error")
	}
}

func TestStore_WriteGet(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			in := textArtifact(LaTeXKey, `\section*{T}`, ModeCreate)
			if err := s.Write(ctx, in); err != nil {
				t.Fatalf("Write: %v", err)
			}
			got, err := s.Get(ctx, LaTeXKey)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !bytes.Equal(got.Data, in.Data) {
				t.Errorf("Data = %q, want %q", got.Data, in.Data)
			}
			if got.Kind != KindLaTeX {
				t.Errorf("Kind = %q, want latex", got.Kind)
			}
			if got.ContentType != ContentTypeLaTeX {
				t.Errorf("ContentType = %q", got.ContentType)
			}
		})
	}
}

func TestStore_CreateRefusesOverwrite(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := LedgerKey(testTime)
			if err := s.Write(ctx, textArtifact(key, "first", ModeCreate)); err != nil {
				t.Fatalf("first Write: %v", err)
			}
			err := s.Write(ctx, textArtifact(key, "second", ModeCreate))
			if !errors.Is(err, ErrExists) {
				t.Fatalf("second Write err = %v, want ErrExists", err)
			}
			got, err := s.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got.Data) != "first" {
				t.Errorf("Data = %q, original was overwritten", got.Data)
			}
		})
	}
}

func TestStore_ReplaceOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := SymbolicLogKey("proof")
			for _, body := range []string{"v1", "v2"} {
				if err := s.Write(ctx, textArtifact(key, body, ModeReplace)); err != nil {
					t.Fatalf("Write(%s): %v", body, err)
				}
			}
			got, err := s.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got.Data) != "v2" {
				t.Errorf("Data = %q, want v2", got.Data)
			}
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "latex/missing.tex")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_ListOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	later := testTime.Add(time.Second)
	keys := []string{
		ValidationKey(testTime),
		LedgerKey(later),
		LaTeXKey,
		LedgerKey(testTime),
	}
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range keys {
				if err := s.Write(ctx, textArtifact(k, k, ModeCreate)); err != nil {
					t.Fatalf("Write(%s): %v", k, err)
				}
			}

			all, err := s.List(ctx, Filter{})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			want := []string{
				LedgerKey(testTime),
				LedgerKey(later),
				LaTeXKey,
				ValidationKey(testTime),
			}
			if len(all) != len(want) {
				t.Fatalf("List returned %d artifacts, want %d", len(all), len(want))
			}
			for i, a := range all {
				if a.Key != want[i] {
					t.Errorf("List[%d] = %s, want %s", i, a.Key, want[i])
				}
			}

			ledger, err := s.List(ctx, Filter{Kind: KindLedger})
			if err != nil {
				t.Fatalf("List(ledger): %v", err)
			}
			if len(ledger) != 2 {
				t.Errorf("List(ledger) returned %d, want 2", len(ledger))
			}
		})
	}
}

func TestStore_InvalidKey(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Write(ctx, textArtifact("../escape.json", "x", ModeCreate))
			if !errors.Is(err, ErrInvalidKey) {
				t.Errorf("err = %v, want ErrInvalidKey", err)
			}
		})
	}
}

func TestFileSink_Layout(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSink(filepath.Join(dir, "logs"))
	ctx := context.Background()

	if err := s.Write(ctx, textArtifact(LedgerKey(testTime), "{}", ModeCreate)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	path := filepath.Join(dir, "logs", "distributed_ledger", "ledger_entry_20240309_140507.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "{}" {
		t.Errorf("file content = %q", data)
	}
}

func TestFileSink_FailedCreateLeavesKeyFree(t *testing.T) {
	s := NewFileSink(t.TempDir())
	ctx := context.Background()
	key := LedgerKey(testTime)

	diskFull := errors.New("no space left on device")
	orig := writeData
	writeData = func(w io.Writer, data []byte) (int, error) {
		n, _ := w.Write(data[:len(data)/2])
		return n, diskFull
	}
	err := s.Write(ctx, textArtifact(key, `{"proof_hash":"abc"}`, ModeCreate))
	writeData = orig
	if !errors.Is(err, diskFull) {
		t.Fatalf("Write error = %v, want %v", err, diskFull)
	}
	if _, err := os.Stat(s.Path(key)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("partial file left behind: stat error = %v", err)
	}

	if err := s.Write(ctx, textArtifact(key, `{"proof_hash":"abc"}`, ModeCreate)); err != nil {
		t.Fatalf("retry Write: %v", err)
	}
	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Data) != `{"proof_hash":"abc"}` {
		t.Errorf("Data = %q", got.Data)
	}
}

func TestFileSink_ListMissingRoot(t *testing.T) {
	s := NewFileSink(filepath.Join(t.TempDir(), "absent"))
	got, err := s.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("List returned %d artifacts", len(got))
	}
}

func TestFileSink_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewFileSink(t.TempDir())
	if err := s.Write(ctx, textArtifact(LaTeXKey, "x", ModeCreate)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSQLiteSink_Persists(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "audit.db")
	ctx := context.Background()

	s, err := NewSQLiteSink(dsn)
	if err != nil {
		t.Fatalf("NewSQLiteSink: %v", err)
	}
	if err := s.Write(ctx, textArtifact(RegistryKey(testTime), "{}", ModeCreate)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewSQLiteSink(dsn)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get(ctx, RegistryKey(testTime))
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if !got.CreatedAt.Equal(testTime) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, testTime)
	}
}

func TestMemorySink_Isolation(t *testing.T) {
	s := NewMemorySink()
	ctx := context.Background()
	a := textArtifact(LaTeXKey, "abc", ModeCreate)
	if err := s.Write(ctx, a); err != nil {
		t.Fatalf("Write: %v", err)
	}
	a.Data[0] = 'z'

	got, _ := s.Get(ctx, LaTeXKey)
	if string(got.Data) != "abc" {
		t.Errorf("stored data mutated through caller slice: %q", got.Data)
	}
	got.Data[0] = 'y'
	again, _ := s.Get(ctx, LaTeXKey)
	if string(again.Data) != "abc" {
		t.Errorf("stored data mutated through returned slice: %q", again.Data)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	s := NewLogSink(logger)

	if err := s.Write(context.Background(), textArtifact(LaTeXKey, "secret body", ModeReplace)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "key=latex/reversibility_proof_snippet.tex") {
		t.Errorf("log output missing key: %s", out)
	}
	if strings.Contains(out, "secret body") {
		t.Errorf("body logged at info level: %s", out)
	}

	buf.Reset()
	debug := NewLogSink(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	_ = debug.Write(context.Background(), textArtifact(LaTeXKey, "secret body", ModeReplace))
	if !strings.Contains(buf.String(), "secret body") {
		t.Errorf("body missing at debug level: %s", buf.String())
	}
}

type failingSink struct{ err error }

func (f failingSink) Write(context.Context, Artifact) error { return f.err }

func TestMultiSink_Policies(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	quiet := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	t.Run("fail stops at first error", func(t *testing.T) {
		after := NewMemorySink()
		m := NewMultiSink(ErrorPolicyFail, quiet,
			Target{Name: "broken", Sink: failingSink{boom}},
			Target{Name: "after", Sink: after},
		)
		err := m.Write(ctx, textArtifact(LaTeXKey, "x", ModeCreate))
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want boom", err)
		}
		if after.Len() != 0 {
			t.Error("fail policy kept writing after an error")
		}
	})

	t.Run("continue tries every target", func(t *testing.T) {
		after := NewMemorySink()
		m := NewMultiSink(ErrorPolicyContinue, quiet,
			Target{Name: "broken", Sink: failingSink{boom}},
			Target{Name: "after", Sink: after},
		)
		err := m.Write(ctx, textArtifact(LaTeXKey, "x", ModeCreate))
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want boom", err)
		}
		if !strings.Contains(err.Error(), `sink "broken"`) {
			t.Errorf("err %q does not name the sink", err)
		}
		if after.Len() != 1 {
			t.Error("continue policy skipped a target")
		}
	})

	t.Run("success", func(t *testing.T) {
		a, b := NewMemorySink(), NewMemorySink()
		m := NewMultiSink("", nil, Target{Name: "a", Sink: a}, Target{Name: "b", Sink: b})
		if err := m.Write(ctx, textArtifact(LaTeXKey, "x", ModeCreate)); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if a.Len() != 1 || b.Len() != 1 {
			t.Errorf("targets got %d and %d artifacts", a.Len(), b.Len())
		}
	})
}

type ctxKey struct{}

type recordingObserver struct {
	got  []WriteObservation
	ctxs []context.Context
}

func (r *recordingObserver) ObserveWrite(ctx context.Context, o WriteObservation) {
	r.got = append(r.got, o)
	r.ctxs = append(r.ctxs, ctx)
}

func TestObserve(t *testing.T) {
	ctx := context.WithValue(context.Background(), ctxKey{}, "caller")
	mem := NewMemorySink()
	obs := &recordingObserver{}
	s := Observe("memory", mem, obs)

	_ = s.Write(ctx, textArtifact(LaTeXKey, "abcd", ModeCreate))
	_ = s.Write(ctx, textArtifact(LaTeXKey, "abcd", ModeCreate))

	if len(obs.got) != 2 {
		t.Fatalf("got %d observations, want 2", len(obs.got))
	}
	first, second := obs.got[0], obs.got[1]
	if first.Sink != "memory" || first.Kind != KindLaTeX || first.Bytes != 4 || first.Err != nil {
		t.Errorf("first observation = %+v", first)
	}
	if !errors.Is(second.Err, ErrExists) {
		t.Errorf("second observation error = %v, want ErrExists", second.Err)
	}
	for i, c := range obs.ctxs {
		if c.Value(ctxKey{}) != "caller" {
			t.Errorf("observation %d did not receive the write context", i)
		}
	}

	r, ok := AsReader(s)
	if !ok || r != Reader(mem) {
		t.Error("AsReader did not unwrap the observed sink")
	}
	if Observe("x", mem, nil) != Sink(mem) {
		t.Error("Observe with nil observer should return the sink unchanged")
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		opts     Options
		readable bool
	}{
		{Options{Type: SinkFile, Dir: dir}, true},
		{Options{Dir: dir}, true},
		{Options{Type: SinkSQLite, DSN: filepath.Join(dir, "a.db")}, true},
		{Options{Type: SinkMemory}, true},
		{Options{Type: SinkLog}, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.opts.Type), func(t *testing.T) {
			s, err := Open(tt.opts)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer Close(s)
			if _, ok := AsReader(s); ok != tt.readable {
				t.Errorf("readable = %v, want %v", ok, tt.readable)
			}
		})
	}

	if _, err := Open(Options{Type: "ftp"}); err == nil {
		t.Error("Open(ftp) expected error")
	}
	if _, err := Open(Options{Type: SinkSQLite}); err == nil {
		t.Error("Open(sqlite) without dsn expected error")
	}
	s, err := Open(Options{Type: SinkSQLite, DSN: filepath.Join(dir, "missing", "nested", "a.db")})
	if err == nil {
		t.Error("Open(sqlite) in a missing directory expected error")
	}
	if s != nil {
		t.Errorf("Open(sqlite) failure returned non-nil sink %T", s)
	}
}
