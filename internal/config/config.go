package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// State drivers for persisted client state.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Config struct {
	HTTPAddr       string
	GRPCAddr       string
	BackendURL     string
	BackendTimeout time.Duration

	StateDriver   string
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string

	CookieSecure  bool
	ClientIdleTTL time.Duration

	RateBurst        int
	RatePerSec       int
	LoginRatePerMin  int
	ShutdownDeadline time.Duration
}

// Load reads the optional .env file (NOOR_ENV_FILE, default ".env") and then
// the process environment. A missing env file is not an error.
func Load() (Config, error) {
	envFile := getenv("NOOR_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}
	cfg := Config{
		HTTPAddr:         getenv("NOOR_HTTP_ADDR", ":8080"),
		GRPCAddr:         getenv("NOOR_GRPC_ADDR", ":9090"),
		BackendURL:       getenv("NOOR_BACKEND_URL", "http://127.0.0.1:8000/api/"),
		BackendTimeout:   getenvDuration("NOOR_BACKEND_TIMEOUT", 15*time.Second),
		StateDriver:      strings.ToLower(getenv("NOOR_STATE_DRIVER", DriverMemory)),
		PostgresDSN:      os.Getenv("NOOR_PG_DSN"),
		RedisAddr:        os.Getenv("NOOR_REDIS_ADDR"),
		RedisPassword:    os.Getenv("NOOR_REDIS_PASSWORD"),
		CookieSecure:     getenvBool("NOOR_COOKIE_SECURE", false),
		ClientIdleTTL:    getenvDuration("NOOR_CLIENT_IDLE_TTL", 30*time.Minute),
		RateBurst:        getenvInt("NOOR_RATE_BURST", 50),
		RatePerSec:       getenvInt("NOOR_RATE_PER_SEC", 20),
		LoginRatePerMin:  getenvInt("NOOR_LOGIN_RATE_PER_MIN", 10),
		ShutdownDeadline: getenvDuration("NOOR_SHUTDOWN_DEADLINE", 10*time.Second),
	}
	return cfg, cfg.Validate()
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("NOOR_BACKEND_URL %q is not an absolute URL", c.BackendURL)
	}
	switch c.StateDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return errors.New("NOOR_PG_DSN is required for the postgres state driver")
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			return errors.New("NOOR_REDIS_ADDR is required for the redis state driver")
		}
	default:
		return fmt.Errorf("unknown NOOR_STATE_DRIVER %q", c.StateDriver)
	}
	if c.RateBurst <= 0 || c.RatePerSec <= 0 || c.LoginRatePerMin <= 0 {
		return errors.New("rate limits must be positive")
	}
	return nil
}

func getenv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
