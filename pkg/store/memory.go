/*
Copyright 2020 IBM All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"sort"
	"sync"
)

// memoryBackend holds entries in memory only
type memoryBackend struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryBackend creates a backend that is not persisted
func NewMemoryBackend() Backend {
	return &memoryBackend{entries: make(map[string][]byte)}
}

func (m *memoryBackend) Create(key string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; ok {
		return ErrEntryExists
	}
	m.entries[key] = append([]byte(nil), content...)
	return nil
}

func (m *memoryBackend) Replace(key string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = append([]byte(nil), content...)
	return nil
}

func (m *memoryBackend) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	content, ok := m.entries[key]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return append([]byte(nil), content...), nil
}

func (m *memoryBackend) Exists(key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.entries[key]
	return ok, nil
}

func (m *memoryBackend) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; !ok {
		return ErrEntryNotFound
	}
	delete(m.entries, key)
	return nil
}

func (m *memoryBackend) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memoryBackend) Close() error {
	return nil
}
