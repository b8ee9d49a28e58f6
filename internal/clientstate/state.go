// Package clientstate persists what a client keeps between visits: its token
// pair and its theme preference.
package clientstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"noorstitching.org/internal/backend"
)

// Theme is the display preference of a client.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// ParseTheme accepts a theme name in any case.
func ParseTheme(raw string) (Theme, error) {
	t := Theme(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTheme, raw)
}

var (
	ErrInvalidTheme  = errors.New("clientstate: invalid theme")
	ErrInvalidClient = errors.New("clientstate: invalid client id")
)

// State is the persisted record of one client. A client that was never seen
// has the zero tokens and ThemeSystem.
type State struct {
	ClientID     string    `json:"client_id"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Theme        Theme     `json:"theme"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Tokens returns the stored pair.
func (s State) Tokens() backend.TokenPair {
	return backend.TokenPair{Access: s.AccessToken, Refresh: s.RefreshToken}
}

func emptyState(clientID string) State {
	return State{ClientID: clientID, Theme: ThemeSystem}
}

// Store persists client state.
type Store interface {
	Load(ctx context.Context, clientID string) (State, error)
	SaveTokens(ctx context.Context, clientID string, pair backend.TokenPair) error
	ClearTokens(ctx context.Context, clientID string) error
	SaveTheme(ctx context.Context, clientID string, theme Theme) error
	Ping(ctx context.Context) error
	Close() error
}

func checkClient(clientID string) error {
	if strings.TrimSpace(clientID) == "" {
		return ErrInvalidClient
	}
	return nil
}

// Tokens binds a Store to one client so it can back a session store.
type Tokens struct {
	store    Store
	clientID string
}

// TokensFor returns the token view of clientID in store.
func TokensFor(store Store, clientID string) Tokens {
	return Tokens{store: store, clientID: clientID}
}

func (t Tokens) LoadTokens(ctx context.Context) (backend.TokenPair, error) {
	st, err := t.store.Load(ctx, t.clientID)
	if err != nil {
		return backend.TokenPair{}, err
	}
	return st.Tokens(), nil
}

func (t Tokens) SaveTokens(ctx context.Context, pair backend.TokenPair) error {
	return t.store.SaveTokens(ctx, t.clientID, pair)
}

func (t Tokens) ClearTokens(ctx context.Context) error {
	return t.store.ClearTokens(ctx, t.clientID)
}
