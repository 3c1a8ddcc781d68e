// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

// Package store provides the per-mod key/value storage backing kv_get,
// kv_set and kv_delete.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/samber/oops"
)

// MaxKeyLength bounds keys in every backend.
const MaxKeyLength = 256

// ErrInvalidKey is returned for empty or oversized keys.
var ErrInvalidKey = errors.New("invalid key")

// KV is namespaced key/value storage. Each mod writes in its own namespace.
// Get returns (nil, nil) for a missing key.
type KV interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Set(ctx context.Context, namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace, key string) error
}

func checkKey(namespace, key string) error {
	if key == "" || len(key) > MaxKeyLength {
		return oops.In("store").
			Code("KV_INVALID_KEY").
			With("namespace", namespace).
			With("key_length", len(key)).
			Wrap(ErrInvalidKey)
	}
	return nil
}

// MemoryKV is an in-process KV used when no database is configured.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]map[string][]byte)}
}

// Get implements KV.
func (m *MemoryKV) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkKey(namespace, key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[namespace][key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set implements KV.
func (m *MemoryKV) Set(ctx context.Context, namespace, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKey(namespace, key); err != nil {
		return err
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string][]byte)
		m.data[namespace] = ns
	}
	ns[key] = stored
	return nil
}

// Delete implements KV. Deleting a missing key is not an error.
func (m *MemoryKV) Delete(ctx context.Context, namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKey(namespace, key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[namespace], key)
	return nil
}
