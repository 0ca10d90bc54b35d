// Package seenset records which forum posts the sweep bot has already handled.
//
// Membership is append-only and never expires. AddIfAbsent is atomic in every
// backend, so bots sharing one store claim each post exactly once.
package seenset

import (
	"context"
	"sync"
)

// Set is a persistent set of processed post URLs.
type Set interface {
	Contains(ctx context.Context, postURL string) (bool, error)
	Add(ctx context.Context, postURL string) error
	// AddIfAbsent inserts postURL and reports whether this call added it.
	AddIfAbsent(ctx context.Context, postURL string) (bool, error)
}

// Memory is an in-process Set that forgets everything on restart.
type Memory struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

// NewMemory returns an empty Memory set.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]struct{})}
}

// Contains implements Set.
func (m *Memory) Contains(_ context.Context, postURL string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.items[postURL]
	return ok, nil
}

// Add implements Set.
func (m *Memory) Add(_ context.Context, postURL string) error {
	m.mu.Lock()
	m.items[postURL] = struct{}{}
	m.mu.Unlock()
	return nil
}

// AddIfAbsent implements Set.
func (m *Memory) AddIfAbsent(_ context.Context, postURL string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[postURL]; ok {
		return false, nil
	}
	m.items[postURL] = struct{}{}
	return true, nil
}

// Len reports the number of members.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
