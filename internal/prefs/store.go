// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package prefs persists per-scope playback preferences (track choices, volume).
// Every write is a single-key read-modify-write; the last writer wins.
package prefs

import (
	"context"
	"fmt"
	"sync"
)

// Store persists string values under (scope, key).
type Store interface {
	// Get returns the value and whether it exists.
	Get(ctx context.Context, scope, key string) (string, bool, error)
	Set(ctx context.Context, scope, key, value string) error
	Delete(ctx context.Context, scope, key string) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend    string // memory, sqlite, redis
	SQLitePath string
	RedisAddr  string
	RedisDB    int
}

// NewStore creates a preference store based on the backend.
func NewStore(opts Options) (Store, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if opts.SQLitePath == "" {
			return NewMemoryStore(), nil
		}
		return NewSqliteStore(opts.SQLitePath)
	case "redis":
		return NewRedisStore(RedisConfig{Addr: opts.RedisAddr, DB: opts.RedisDB})
	case "bolt", "badger":
		return nil, fmt.Errorf("DEPRECATED: %s backend removed. Use 'sqlite'", opts.Backend)
	default:
		return nil, fmt.Errorf("unknown preference store backend: %s (supported: memory, sqlite, redis)", opts.Backend)
	}
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, scope, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[scope][key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, scope, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[scope] == nil {
		m.values[scope] = make(map[string]string)
	}
	m.values[scope][key] = value
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values[scope], key)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
