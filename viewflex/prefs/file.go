package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// FileStore keeps values in a YAML document, one top-level key per store
// key. Writes replace the file atomically through a rename.
type FileStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFileStore uses the YAML file at path. The file is created on first write.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger}
}

// Path of the backing file.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) read() (map[string]any, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("prefs: read %s: %w", f.path, err)
	}
	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("prefs: parse %s: %w", f.path, err)
	}
	return doc, nil
}

func (f *FileStore) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return nil, false, err
	}
	v, ok := doc[key]
	if !ok {
		return nil, false, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false, fmt.Errorf("prefs: encode %s: %w", key, err)
	}
	return raw, true, nil
}

func (f *FileStore) Update(_ context.Context, key string, fn func(json.RawMessage, bool) (json.RawMessage, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	var old json.RawMessage
	cur, ok := doc[key]
	if ok {
		if old, err = json.Marshal(cur); err != nil {
			return fmt.Errorf("prefs: encode %s: %w", key, err)
		}
	}

	v, err := fn(old, ok)
	if err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal(v, &decoded); err != nil {
		return fmt.Errorf("prefs: value of %s is not JSON: %w", key, err)
	}
	doc[key] = decoded

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("prefs: encode %s: %w", f.path, err)
	}
	return writeAtomic(f.path, out)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prefs: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("prefs: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("prefs: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("prefs: write: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("prefs: rename: %w", err)
	}
	return nil
}

// Watch follows the directory of the file, since an atomic replace shows up
// as a create or rename of the file name rather than a write to it.
func (f *FileStore) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("prefs: fsnotify: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prefs: mkdir: %w", err)
	}
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("prefs: watch %s: %w", dir, err)
	}
	onChange()

	target := filepath.Clean(f.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				onChange()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("prefs: file watch error", "path", f.path, "error", err)
		}
	}
}

func (f *FileStore) Close() error { return nil }
