package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileBackend persists session state as a single JSON object on disk.
//
// The file is created with 0600 permissions and its directory with 0700:
// it holds refresh tokens, which are long-lived credentials. Every mutation
// rewrites the file before returning, so a crash never loses an acknowledged
// write. Values are never logged.
type FileBackend struct {
	mu     sync.Mutex
	path   string
	values map[string]string

	// selfWrites counts pending writes made by this process so the
	// watcher can tell them apart from external ones.
	selfWrites int
}

// NewFileBackend opens (or creates) the backend file at path, loading any
// existing state.
func NewFileBackend(path string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	b := &FileBackend{
		path:   path,
		values: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}

	if err := json.Unmarshal(data, &b.values); err != nil {
		return nil, fmt.Errorf("storage file %s is corrupt: %w", path, err)
	}

	return b, nil
}

// Get returns the value for key.
func (b *FileBackend) Get(key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	value, ok := b.values[key]
	return value, ok, nil
}

// Set stores value under key and rewrites the file.
func (b *FileBackend) Set(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = value
	return b.flushLocked()
}

// Remove deletes key and rewrites the file.
func (b *FileBackend) Remove(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.values[key]; !ok {
		return nil
	}
	delete(b.values, key)
	return b.flushLocked()
}

// ClearAll wipes every stored value and rewrites the file.
func (b *FileBackend) ClearAll() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values = make(map[string]string)
	return b.flushLocked()
}

// Path returns the backing file path.
func (b *FileBackend) Path() string {
	return b.path
}

// flushLocked rewrites the backing file. Caller must hold b.mu.
func (b *FileBackend) flushLocked() error {
	data, err := json.MarshalIndent(b.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage: %w", err)
	}

	b.selfWrites++
	if err := os.WriteFile(b.path, data, 0600); err != nil {
		b.selfWrites--
		return fmt.Errorf("failed to write storage file: %w", err)
	}
	return nil
}

// reload replaces the in-memory state with the file's current contents.
func (b *FileBackend) reload() error {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			b.mu.Lock()
			b.values = make(map[string]string)
			b.mu.Unlock()
			return nil
		}
		return err
	}

	values := make(map[string]string)
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("storage file %s is corrupt: %w", b.path, err)
	}

	b.mu.Lock()
	b.values = values
	b.mu.Unlock()
	return nil
}

// consumeSelfWrite reports whether a filesystem event was caused by this
// process's own flush, consuming one pending marker if so.
func (b *FileBackend) consumeSelfWrite() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.selfWrites > 0 {
		b.selfWrites--
		return true
	}
	return false
}

// Watch reports external modifications of the backing file. Another process
// (for example a second CLI invocation signing in) rewriting the file
// produces one signal on the returned channel after the state has been
// reloaded. The watcher stops when done is closed.
//
// The directory is watched rather than the file so rename-and-replace
// writers are still observed.
func (b *FileBackend) Watch(done <-chan struct{}) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create storage watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(b.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch storage directory: %w", err)
	}

	changed := make(chan struct{}, 1)

	go func() {
		defer watcher.Close()
		defer close(changed)

		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(b.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
					continue
				}
				if b.consumeSelfWrite() {
					continue
				}
				if err := b.reload(); err != nil {
					slog.Warn("failed to reload session storage after external change",
						"path", b.path,
						"error", err.Error(),
					)
					continue
				}
				select {
				case changed <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("session storage watcher error", "error", err.Error())
			}
		}
	}()

	return changed, nil
}
