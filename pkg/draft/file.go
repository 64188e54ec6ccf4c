package draft

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
)

const (
	fileLockTimeout = 3 * time.Second
	fileLockRetry   = 100 * time.Millisecond
	fileExt         = ".json"
)

// FileStorage keeps one JSON file per key under a directory. Writes go through
// a temp file and a rename so readers never observe a partial document, and a
// per-key lock file serialises writers across processes.
type FileStorage struct {
	dir string

	mu    sync.Mutex
	locks map[string]*flock.Flock
}

var (
	_ Storage = (*FileStorage)(nil)
	_ Watcher = (*FileStorage)(nil)
)

// NewFileStorage creates dir when needed and returns a storage rooted there.
func NewFileStorage(dir string) (*FileStorage, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("draft: file storage directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("draft: create storage directory: %w", err)
	}
	return &FileStorage{dir: dir, locks: make(map[string]*flock.Flock)}, nil
}

// Dir returns the storage directory.
func (f *FileStorage) Dir() string {
	return f.dir
}

func (f *FileStorage) Get(ctx context.Context, key string) (string, bool, error) {
	lock := f.lockFor(key)
	ctx, cancel := context.WithTimeout(ctx, fileLockTimeout)
	defer cancel()

	locked, err := lock.TryRLockContext(ctx, fileLockRetry)
	if err != nil {
		return "", false, fmt.Errorf("draft: acquire read lock: %w", err)
	}
	if !locked {
		return "", false, fmt.Errorf("draft: could not acquire read lock for %q", key)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(f.pathFor(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("draft: read %q: %w", key, err)
	}
	return string(data), true, nil
}

func (f *FileStorage) Set(ctx context.Context, key, value string) error {
	lock := f.lockFor(key)
	ctx, cancel := context.WithTimeout(ctx, fileLockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(ctx, fileLockRetry)
	if err != nil {
		return fmt.Errorf("draft: acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("draft: could not acquire lock for %q", key)
	}
	defer func() { _ = lock.Unlock() }()

	target := f.pathFor(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0o644); err != nil {
		return fmt.Errorf("draft: write temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("draft: rename temp file: %w", err)
	}
	return nil
}

func (f *FileStorage) Delete(ctx context.Context, key string) error {
	lock := f.lockFor(key)
	ctx, cancel := context.WithTimeout(ctx, fileLockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(ctx, fileLockRetry)
	if err != nil {
		return fmt.Errorf("draft: acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("draft: could not acquire lock for %q", key)
	}
	defer func() { _ = lock.Unlock() }()

	if err := os.Remove(f.pathFor(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("draft: delete %q: %w", key, err)
	}
	return nil
}

// Watch reports keys whose files were written, renamed into place or removed
// by anyone sharing the directory, including this process. It blocks until
// ctx is done.
func (f *FileStorage) Watch(ctx context.Context, fn func(key string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("draft: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(f.dir); err != nil {
		return fmt.Errorf("draft: watch %s: %w", f.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			key, ok := f.keyFor(event.Name)
			if !ok {
				continue
			}
			fn(key)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("draft: watch: %w", err)
		}
	}
}

func (f *FileStorage) lockFor(key string) *flock.Flock {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lock, ok := f.locks[key]; ok {
		return lock
	}
	lock := flock.New(f.pathFor(key) + ".lock")
	f.locks[key] = lock
	return lock
}

func (f *FileStorage) pathFor(key string) string {
	return filepath.Join(f.dir, encodeKey(key)+fileExt)
}

func (f *FileStorage) keyFor(path string) (string, bool) {
	if filepath.Dir(path) != filepath.Clean(f.dir) {
		return "", false
	}
	name := filepath.Base(path)
	if !strings.HasSuffix(name, fileExt) {
		return "", false
	}
	return decodeKey(strings.TrimSuffix(name, fileExt)), true
}

func encodeKey(key string) string {
	return strings.ReplaceAll(key, "/", "__")
}

func decodeKey(name string) string {
	return strings.ReplaceAll(name, "__", "/")
}
