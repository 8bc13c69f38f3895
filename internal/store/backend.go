package store

import "sync"

// Backend is the key/value persistence contract for session state. Every
// write is a synchronous write-through from the caller's perspective: when
// Set returns, the value is durable as far as the backend can make it.
//
// Backends are not required to be safe for concurrent use; the ones in this
// package are, but a host supplying its own backend must serialize access
// externally if it is not.
type Backend interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)

	// Set stores value under key, overwriting any previous value.
	Set(key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error

	// ClearAll wipes the entire backend, every namespace and client.
	// This is strictly more destructive than ClientStore.Clear.
	ClearAll() error
}

// MemoryBackend is a mutex-guarded in-memory Backend. It is the default
// when no persistent backend is configured, and the natural choice in tests.
type MemoryBackend struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		values: make(map[string]string),
	}
}

// Get returns the value for key.
func (b *MemoryBackend) Get(key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	value, ok := b.values[key]
	return value, ok, nil
}

// Set stores value under key.
func (b *MemoryBackend) Set(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = value
	return nil
}

// Remove deletes key.
func (b *MemoryBackend) Remove(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
	return nil
}

// ClearAll wipes every stored value.
func (b *MemoryBackend) ClearAll() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values = make(map[string]string)
	return nil
}
