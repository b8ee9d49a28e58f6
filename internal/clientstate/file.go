package clientstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"noorstitching.org/internal/backend"
)

// File keeps every client in one JSON document. It backs the terminal
// client, where the process is the only writer.
type File struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewFile uses path, creating parent directories on first write.
func NewFile(path string) *File {
	return &File{path: path, now: time.Now}
}

// DefaultFilePath is ~/.config/noor/state.json or the platform equivalent.
func DefaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "noor", "state.json"), nil
}

func (f *File) read() (map[string]State, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]State{}, nil
	}
	if err != nil {
		return nil, err
	}
	states := map[string]State{}
	if len(raw) == 0 {
		return states, nil
	}
	if err := json.Unmarshal(raw, &states); err != nil {
		return nil, fmt.Errorf("clientstate: decode %s: %w", f.path, err)
	}
	return states, nil
}

func (f *File) writeAll(states map[string]State) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *File) Load(_ context.Context, clientID string) (State, error) {
	if err := checkClient(clientID); err != nil {
		return State{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	states, err := f.read()
	if err != nil {
		return State{}, err
	}
	if st, ok := states[clientID]; ok {
		return st, nil
	}
	return emptyState(clientID), nil
}

func (f *File) update(clientID string, fn func(*State)) error {
	if err := checkClient(clientID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	states, err := f.read()
	if err != nil {
		return err
	}
	st, ok := states[clientID]
	if !ok {
		st = emptyState(clientID)
	}
	fn(&st)
	st.UpdatedAt = f.now().UTC()
	states[clientID] = st
	return f.writeAll(states)
}

func (f *File) SaveTokens(_ context.Context, clientID string, pair backend.TokenPair) error {
	return f.update(clientID, func(st *State) {
		st.AccessToken = pair.Access
		st.RefreshToken = pair.Refresh
	})
}

func (f *File) ClearTokens(_ context.Context, clientID string) error {
	return f.update(clientID, func(st *State) {
		st.AccessToken = ""
		st.RefreshToken = ""
	})
}

func (f *File) SaveTheme(_ context.Context, clientID string, theme Theme) error {
	if _, err := ParseTheme(string(theme)); err != nil {
		return err
	}
	return f.update(clientID, func(st *State) { st.Theme = theme })
}

func (f *File) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.read()
	return err
}

func (f *File) Close() error { return nil }
