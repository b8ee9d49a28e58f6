package clientstate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"noorstitching.org/internal/backend"
)

func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	st, err := s.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("Load unknown: %v", err)
	}
	if st.Theme != ThemeSystem || st.AccessToken != "" {
		t.Fatalf("unknown client should be empty: %+v", st)
	}

	if err := s.SaveTokens(ctx, "c1", backend.TokenPair{Access: "a", Refresh: "r"}); err != nil {
		t.Fatalf("SaveTokens: %v", err)
	}
	if err := s.SaveTheme(ctx, "c1", ThemeDark); err != nil {
		t.Fatalf("SaveTheme: %v", err)
	}
	st, _ = s.Load(ctx, "c1")
	if st.Tokens() != (backend.TokenPair{Access: "a", Refresh: "r"}) || st.Theme != ThemeDark {
		t.Fatalf("unexpected state %+v", st)
	}

	if err := s.ClearTokens(ctx, "c1"); err != nil {
		t.Fatalf("ClearTokens: %v", err)
	}
	st, _ = s.Load(ctx, "c1")
	if st.AccessToken != "" || st.RefreshToken != "" || st.Theme != ThemeDark {
		t.Fatalf("clear must keep theme only: %+v", st)
	}

	if err := s.SaveTheme(ctx, "c1", Theme("neon")); !errors.Is(err, ErrInvalidTheme) {
		t.Fatalf("expected ErrInvalidTheme, got %v", err)
	}
	if _, err := s.Load(ctx, " "); !errors.Is(err, ErrInvalidClient) {
		t.Fatalf("expected ErrInvalidClient, got %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemory())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	storeContract(t, NewFile(path))

	// A second handle on the same file sees the persisted state.
	st, err := NewFile(path).Load(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.Theme != ThemeDark {
		t.Fatalf("theme not persisted: %+v", st)
	}
}

func TestTokensAdapter(t *testing.T) {
	mem := NewMemory()
	tok := TokensFor(mem, "browser-1")
	ctx := context.Background()
	if err := tok.SaveTokens(ctx, backend.TokenPair{Access: "x", Refresh: "y"}); err != nil {
		t.Fatalf("SaveTokens: %v", err)
	}
	pair, err := tok.LoadTokens(ctx)
	if err != nil || pair.Access != "x" {
		t.Fatalf("LoadTokens = %+v, %v", pair, err)
	}
	if other, _ := TokensFor(mem, "browser-2").LoadTokens(ctx); other.Access != "" {
		t.Fatal("clients must not share tokens")
	}
	if err := tok.ClearTokens(ctx); err != nil {
		t.Fatalf("ClearTokens: %v", err)
	}
	if pair, _ := tok.LoadTokens(ctx); pair != (backend.TokenPair{}) {
		t.Fatalf("tokens survived clear: %+v", pair)
	}
}

func TestParseTheme(t *testing.T) {
	for raw, want := range map[string]Theme{"Light": ThemeLight, " dark ": ThemeDark, "SYSTEM": ThemeSystem} {
		got, err := ParseTheme(raw)
		if err != nil || got != want {
			t.Fatalf("ParseTheme(%q) = %s, %v", raw, got, err)
		}
	}
	if _, err := ParseTheme(""); err == nil {
		t.Fatal("empty theme must be rejected")
	}
}
