package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NOOR_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.GRPCAddr != ":9090" {
		t.Fatalf("unexpected addrs: %q %q", cfg.HTTPAddr, cfg.GRPCAddr)
	}
	if cfg.StateDriver != DriverMemory {
		t.Fatalf("unexpected driver: %q", cfg.StateDriver)
	}
	if cfg.BackendTimeout != 15*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.BackendTimeout)
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.env")
	content := "NOOR_BACKEND_URL=https://api.noor.example/api/\nNOOR_CLIENT_IDLE_TTL_SECONDS=90\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("NOOR_ENV_FILE", path)
	t.Cleanup(func() {
		os.Unsetenv("NOOR_BACKEND_URL")
		os.Unsetenv("NOOR_CLIENT_IDLE_TTL_SECONDS")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BackendURL != "https://api.noor.example/api/" {
		t.Fatalf("backend url not read from env file: %q", cfg.BackendURL)
	}
	if cfg.ClientIdleTTL != 90*time.Second {
		t.Fatalf("idle ttl = %v, want 90s", cfg.ClientIdleTTL)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		BackendURL:      "http://127.0.0.1:8000/api/",
		StateDriver:     DriverMemory,
		RateBurst:       1,
		RatePerSec:      1,
		LoginRatePerMin: 1,
	}
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "relative backend", mutate: func(c *Config) { c.BackendURL = "/api" }, wantErr: true},
		{name: "postgres without dsn", mutate: func(c *Config) { c.StateDriver = DriverPostgres }, wantErr: true},
		{name: "postgres with dsn", mutate: func(c *Config) { c.StateDriver = DriverPostgres; c.PostgresDSN = "postgres://x" }},
		{name: "redis without addr", mutate: func(c *Config) { c.StateDriver = DriverRedis }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.StateDriver = "sqlite" }, wantErr: true},
		{name: "zero burst", mutate: func(c *Config) { c.RateBurst = 0 }, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
