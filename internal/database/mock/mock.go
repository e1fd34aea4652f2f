// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kozaktomas/frame-redactor/internal/idmgmt"
)

// MockThresholdStore is an in-memory implementation of database.ThresholdStore
type MockThresholdStore struct {
	mu       sync.RWMutex
	settings *idmgmt.Settings
	history  []idmgmt.HistoryEntry

	// Error injection
	SaveSettingsError  error
	LoadSettingsError  error
	AppendHistoryError error
	UpdateHistoryError error
	ListHistoryError   error
}

// NewMockThresholdStore creates a new empty mock threshold store
func NewMockThresholdStore() *MockThresholdStore {
	return &MockThresholdStore{}
}

// SaveSettings stores a copy of s
func (m *MockThresholdStore) SaveSettings(ctx context.Context, s idmgmt.Settings) error {
	if m.SaveSettingsError != nil {
		return m.SaveSettingsError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
	return nil
}

// LoadSettings returns the stored settings or nil
func (m *MockThresholdStore) LoadSettings(ctx context.Context) (*idmgmt.Settings, error) {
	if m.LoadSettingsError != nil {
		return nil, m.LoadSettingsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return nil, nil
	}
	s := *m.settings
	return &s, nil
}

// AppendHistory adds a history entry
func (m *MockThresholdStore) AppendHistory(ctx context.Context, e idmgmt.HistoryEntry) error {
	if m.AppendHistoryError != nil {
		return m.AppendHistoryError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.history {
		if h.Seq == e.Seq {
			return fmt.Errorf("history entry %d already exists", e.Seq)
		}
	}
	e.AffectedIDs = slices.Clone(e.AffectedIDs)
	m.history = append(m.history, e)
	slices.SortFunc(m.history, func(a, b idmgmt.HistoryEntry) int { return int(a.Seq - b.Seq) })
	return nil
}

// UpdateHistory rewrites the affected fields of the entry with e.Seq
func (m *MockThresholdStore) UpdateHistory(ctx context.Context, e idmgmt.HistoryEntry) error {
	if m.UpdateHistoryError != nil {
		return m.UpdateHistoryError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.history {
		if m.history[i].Seq == e.Seq {
			m.history[i].AffectedIDs = slices.Clone(e.AffectedIDs)
			m.history[i].AffectedPixelCount = e.AffectedPixelCount
			return nil
		}
	}
	return fmt.Errorf("history entry %d not found", e.Seq)
}

// ListHistory returns the newest limit entries, oldest first
func (m *MockThresholdStore) ListHistory(ctx context.Context, limit int) ([]idmgmt.HistoryEntry, error) {
	if m.ListHistoryError != nil {
		return nil, m.ListHistoryError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	start := 0
	if limit > 0 && len(m.history) > limit {
		start = len(m.history) - limit
	}
	out := make([]idmgmt.HistoryEntry, 0, len(m.history)-start)
	for _, e := range m.history[start:] {
		e.AffectedIDs = slices.Clone(e.AffectedIDs)
		out = append(out, e)
	}
	return out, nil
}
