package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const scanBatch = 200

// Store is a best-effort JSON cache. Failures are logged and reported as a
// miss, never returned to the caller.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewStore wraps a Redis client.
func NewStore(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{client: client, ttl: ttl, logger: logger}
}

// Get decodes key into dest and reports whether a usable value was found.
func (s *Store) Get(ctx context.Context, key string, dest any) bool {
	if s == nil || s.client == nil {
		return false
	}
	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("cache get", slog.String("key", key), slog.Any("error", err))
		}
		return false
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		s.logger.Warn("cache decode", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return true
}

// Set stores value under key with the store TTL.
func (s *Store) Set(ctx context.Context, key string, value any) {
	if s == nil || s.client == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("cache encode", slog.String("key", key), slog.Any("error", err))
		return
	}
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.logger.Warn("cache set", slog.String("key", key), slog.Any("error", err))
	}
}

// Delete removes exact keys.
func (s *Store) Delete(ctx context.Context, keys ...string) {
	if s == nil || s.client == nil || len(keys) == 0 {
		return
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn("cache delete", slog.Any("keys", keys), slog.Any("error", err))
	}
}

// DeleteByPattern removes every key matching a glob pattern such as "billing:invoices:list:4:*".
func (s *Store) DeleteByPattern(ctx context.Context, pattern string) {
	if s == nil || s.client == nil {
		return
	}
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			s.logger.Warn("cache scan", slog.String("pattern", pattern), slog.Any("error", err))
			return
		}
		if len(keys) > 0 {
			if err := s.client.Unlink(ctx, keys...).Err(); err != nil {
				s.logger.Warn("cache unlink", slog.String("pattern", pattern), slog.Any("error", err))
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

// Fetch loads key into dest, calling loader on a miss. Concurrent misses for
// the same key share one loader call, which outlives any single caller's
// cancellation. Loader errors are returned; cache errors are not.
func (s *Store) Fetch(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if s.Get(ctx, key, dest) {
		return nil
	}
	loadCtx := context.WithoutCancel(ctx)
	var group *singleflight.Group
	if s != nil {
		group = &s.group
	} else {
		group = &singleflight.Group{}
	}
	ch := group.DoChan(key, func() (any, error) {
		value, err := loader(loadCtx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if s != nil && s.client != nil {
			if err := s.client.Set(loadCtx, key, raw, s.ttl).Err(); err != nil {
				s.logger.Warn("cache set", slog.String("key", key), slog.Any("error", err))
			}
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.([]byte), dest)
	}
}
