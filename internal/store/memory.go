package store

import (
	"context"
	"sort"
	"sync"

	"retroboard/internal/retro"
)

// MemoryStore is an in-process Persistence used in tests and single-node
// local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]retro.Document
	actions map[string]map[string]retro.Action
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:    map[string]retro.Document{},
		actions: map[string]map[string]retro.Action{},
	}
}

func (m *MemoryStore) GetDocument(_ context.Context, teamID, sessionID string) (retro.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[key(teamID, sessionID)]
	if !ok {
		return retro.Document{}, false, nil
	}
	return doc.Clone(), true, nil
}

func (m *MemoryStore) SaveDocument(_ context.Context, teamID, sessionID string, doc retro.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key(teamID, sessionID)] = doc.Clone()
	return nil
}

func (m *MemoryStore) ListGlobalActions(_ context.Context, teamID string) ([]retro.Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]retro.Action, 0, len(m.actions[teamID]))
	for _, action := range m.actions[teamID] {
		out = append(out, action)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) AppendOrUpdateGlobalAction(_ context.Context, teamID string, action retro.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.actions[teamID] == nil {
		m.actions[teamID] = map[string]retro.Action{}
	}
	m.actions[teamID][action.ID] = action
	return nil
}

func (m *MemoryStore) DeleteGlobalAction(_ context.Context, teamID, actionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.actions[teamID], actionID)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}
