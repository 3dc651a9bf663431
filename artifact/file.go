package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// FileSink stores each artifact as a file under a root directory.
type FileSink struct {
	root string
}

// NewFileSink returns a sink rooted at dir. The directory is created on
// first write.
func NewFileSink(dir string) *FileSink {
	if dir == "" {
		dir = "."
	}
	return &FileSink{root: dir}
}

// Root returns the sink's base directory.
func (s *FileSink) Root() string {
	return s.root
}

// Path returns the filesystem path for key.
func (s *FileSink) Path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Write stores a. In create mode an existing file is never touched.
func (s *FileSink) Write(ctx context.Context, a Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a, err := prepare(a)
	if err != nil {
		return err
	}

	p := s.Path(a.Key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("filesink: create directory: %w", err)
	}

	flag := os.O_CREATE | os.O_WRONLY | os.O_EXCL
	if a.Mode == ModeReplace {
		flag = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(p, flag, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("filesink: %s: %w", a.Key, ErrExists)
		}
		return fmt.Errorf("filesink: open %s: %w", a.Key, err)
	}
	if _, err := writeData(f, a.Data); err != nil {
		_ = f.Close()
		s.discard(p, a.Mode)
		return fmt.Errorf("filesink: write %s: %w", a.Key, err)
	}
	if err := f.Close(); err != nil {
		s.discard(p, a.Mode)
		return fmt.Errorf("filesink: close %s: %w", a.Key, err)
	}
	return nil
}

// writeData is replaced in tests to simulate a failing disk.
var writeData = func(w io.Writer, data []byte) (int, error) {
	return w.Write(data)
}

// discard removes a partially written create-mode file so the key stays
// free for a retry.
func (s *FileSink) discard(path string, mode Mode) {
	if mode != ModeCreate {
		return
	}
	_ = os.Remove(path)
}

// Get reads one artifact back.
func (s *FileSink) Get(ctx context.Context, key string) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	if err := ValidateKey(key); err != nil {
		return Artifact{}, err
	}
	p := s.Path(key)
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Artifact{}, fmt.Errorf("filesink: %s: %w", key, ErrNotFound)
		}
		return Artifact{}, fmt.Errorf("filesink: stat %s: %w", key, err)
	}
	if info.IsDir() {
		return Artifact{}, fmt.Errorf("filesink: %s: %w", key, ErrNotFound)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return Artifact{}, fmt.Errorf("filesink: read %s: %w", key, err)
	}
	return Artifact{
		Kind:        KindOf(key),
		Key:         key,
		ContentType: ContentTypeOf(key),
		Data:        data,
		CreatedAt:   info.ModTime(),
	}, nil
}

// List walks the root and returns matching artifacts ordered by key. A
// missing root yields an empty listing.
func (s *FileSink) List(ctx context.Context, f Filter) ([]Artifact, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == s.root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if KindOf(key) == "" {
			return nil
		}
		if f.Kind != "" && KindOf(key) != f.Kind {
			return nil
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("filesink: list: %w", err)
	}
	sort.Strings(keys)

	out := make([]Artifact, 0, len(keys))
	for _, key := range keys {
		a, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Close is a no-op; it lets FileSink satisfy Store.
func (s *FileSink) Close() error { return nil }

var _ Store = (*FileSink)(nil)
