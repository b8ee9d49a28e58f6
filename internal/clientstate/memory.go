package clientstate

import (
	"context"
	"sync"
	"time"

	"noorstitching.org/internal/backend"
)

// Memory keeps state in process. Used for development and tests.
type Memory struct {
	mu     sync.RWMutex
	states map[string]State
	now    func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{states: make(map[string]State), now: time.Now}
}

func (m *Memory) Load(_ context.Context, clientID string) (State, error) {
	if err := checkClient(clientID); err != nil {
		return State{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.states[clientID]; ok {
		return st, nil
	}
	return emptyState(clientID), nil
}

func (m *Memory) update(clientID string, fn func(*State)) error {
	if err := checkClient(clientID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[clientID]
	if !ok {
		st = emptyState(clientID)
	}
	fn(&st)
	st.UpdatedAt = m.now().UTC()
	m.states[clientID] = st
	return nil
}

func (m *Memory) SaveTokens(_ context.Context, clientID string, pair backend.TokenPair) error {
	return m.update(clientID, func(st *State) {
		st.AccessToken = pair.Access
		st.RefreshToken = pair.Refresh
	})
}

func (m *Memory) ClearTokens(_ context.Context, clientID string) error {
	return m.update(clientID, func(st *State) {
		st.AccessToken = ""
		st.RefreshToken = ""
	})
}

func (m *Memory) SaveTheme(_ context.Context, clientID string, theme Theme) error {
	if _, err := ParseTheme(string(theme)); err != nil {
		return err
	}
	return m.update(clientID, func(st *State) { st.Theme = theme })
}

// Forget drops a client entirely.
func (m *Memory) Forget(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, clientID)
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
