package clientstate

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"noorstitching.org/internal/backend"
)

const (
	redisKeyPrefix   = "noor:client:"
	fieldAccess      = "access"
	fieldRefresh     = "refresh"
	fieldTheme       = "theme"
	fieldUpdatedAt   = "updated_at"
	defaultRedisIdle = 30 * 24 * time.Hour
)

// Redis stores each client as a hash that expires after ttl of inactivity.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedis wraps a go-redis client. ttl <= 0 keeps clients for 30 days.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultRedisIdle
	}
	return &Redis{rdb: rdb, ttl: ttl, now: time.Now}
}

// DialRedis connects and pings addr.
func DialRedis(ctx context.Context, addr, password string, ttl time.Duration) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return NewRedis(rdb, ttl), nil
}

func redisKey(clientID string) string { return redisKeyPrefix + clientID }

func (r *Redis) Load(ctx context.Context, clientID string) (State, error) {
	if err := checkClient(clientID); err != nil {
		return State{}, err
	}
	vals, err := r.rdb.HGetAll(ctx, redisKey(clientID)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(vals) == 0) {
		return emptyState(clientID), nil
	}
	if err != nil {
		return State{}, err
	}
	st := emptyState(clientID)
	st.AccessToken = vals[fieldAccess]
	st.RefreshToken = vals[fieldRefresh]
	if t, err := ParseTheme(vals[fieldTheme]); err == nil {
		st.Theme = t
	}
	if ts, err := time.Parse(time.RFC3339Nano, vals[fieldUpdatedAt]); err == nil {
		st.UpdatedAt = ts
	}
	return st, nil
}

func (r *Redis) write(ctx context.Context, clientID string, set map[string]any, del ...string) error {
	if err := checkClient(clientID); err != nil {
		return err
	}
	key := redisKey(clientID)
	set[fieldUpdatedAt] = r.now().UTC().Format(time.RFC3339Nano)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(del) > 0 {
			pipe.HDel(ctx, key, del...)
		}
		pipe.HSet(ctx, key, set)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	return err
}

func (r *Redis) SaveTokens(ctx context.Context, clientID string, pair backend.TokenPair) error {
	return r.write(ctx, clientID, map[string]any{fieldAccess: pair.Access, fieldRefresh: pair.Refresh})
}

func (r *Redis) ClearTokens(ctx context.Context, clientID string) error {
	return r.write(ctx, clientID, map[string]any{}, fieldAccess, fieldRefresh)
}

func (r *Redis) SaveTheme(ctx context.Context, clientID string, theme Theme) error {
	if _, err := ParseTheme(string(theme)); err != nil {
		return err
	}
	return r.write(ctx, clientID, map[string]any{fieldTheme: string(theme)})
}

func (r *Redis) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }

func (r *Redis) Close() error { return r.rdb.Close() }
