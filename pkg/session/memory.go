// Copyright 2026 © The Adept Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"slices"
	"sync"

	"github.com/Finndersen/adept-ai/pkg/llm"
)

// MemoryStore keeps sessions in process memory. Data is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	enabled  map[string][]string
	messages map[string][]llm.Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		enabled:  make(map[string][]string),
		messages: make(map[string][]llm.Message),
	}
}

func (m *MemoryStore) EnabledCapabilities(_ context.Context, sessionID string) ([]string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names, ok := m.enabled[sessionID]
	return slices.Clone(names), ok, nil
}

func (m *MemoryStore) SaveEnabledCapabilities(_ context.Context, sessionID string, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if names == nil {
		names = []string{}
	}
	m.enabled[sessionID] = slices.Clone(names)
	return nil
}

func (m *MemoryStore) Messages(_ context.Context, sessionID string) ([]llm.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.messages[sessionID]), nil
}

func (m *MemoryStore) AppendMessages(_ context.Context, sessionID string, msgs ...llm.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[sessionID] = append(m.messages[sessionID], msgs...)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.enabled, sessionID)
	delete(m.messages, sessionID)
	return nil
}

// Sessions returns the IDs with stored state, sorted.
func (m *MemoryStore) Sessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.messages)+len(m.enabled))
	for id := range m.messages {
		ids = append(ids, id)
	}
	for id := range m.enabled {
		if _, ok := m.messages[id]; !ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
