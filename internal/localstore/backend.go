// Package localstore persists the guest cart under a single storage key.
//
// A Backend holds opaque string values by key. The Store on top of it owns the
// cart serialization: one JSON array of lines, rehydrated once per session.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by Backend.Get when the key has never been written.
var ErrNotFound = errors.New("key not found")

// Backend is a durable key/value slot store.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend kinds accepted by Open.
const (
	KindFile   = "file"
	KindSQLite = "sqlite"
	KindRedis  = "redis"
	KindMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Kind string

	// Path is the file for KindFile and the database file for KindSQLite.
	Path string

	// RedisAddr and RedisPrefix configure KindRedis.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open creates the backend named by opts.Kind.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Kind {
	case KindFile, "":
		return NewFileBackend(opts.Path)
	case KindSQLite:
		return OpenSQLite(ctx, opts.Path)
	case KindRedis:
		return OpenRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.RedisPrefix)
	case KindMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", opts.Kind)
	}
}

// MemoryBackend keeps values in process memory. Used by tests and ephemeral daemons.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string]string

	// SetErr, when non-nil, is returned from every Set. Lets tests simulate a full disk.
	SetErr error
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryBackend) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	m.values[key] = value
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

var _ Backend = (*MemoryBackend)(nil)
