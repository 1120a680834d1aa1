package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyspace prefix so the cache can share a Redis instance with other apps.
const redisNamespace = "bilifeed:cache:"

// Redis is a Store backed by a shared Redis instance. Entries are stored as
// JSON with the identity field inside, so identity validation works the same
// as the SQLite backend; Redis expiry is set as well so dead entries do not
// accumulate.
type Redis struct {
	rdb *redis.Client
	now func() time.Time
}

// OpenRedis connects to redisURL (redis://...) and pings it.
func OpenRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis unreachable: %w", err)
	}
	return &Redis{rdb: rdb, now: time.Now}, nil
}

func (r *Redis) Get(ctx context.Context, key, identity string) (json.RawMessage, bool, error) {
	data, err := r.rdb.Get(ctx, redisNamespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: redis get %s: %w", key, err)
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		// Corrupt entry: treat as miss rather than serving garbage.
		return nil, false, nil
	}
	if !e.live(r.now(), identity) {
		return nil, false, nil
	}
	return e.Value, true, nil
}

func (r *Redis) Put(ctx context.Context, key string, value json.RawMessage, identity string, ttl time.Duration) error {
	data, err := json.Marshal(entry{
		Value:    value,
		Identity: identity,
		CachedAt: r.now().Unix(),
		TTL:      int64(ttl / time.Second),
	})
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, redisNamespace+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set %s: %w", key, err)
	}
	return nil
}

// globEscaper makes a caller-supplied prefix safe as a literal SCAN
// pattern, same concern as the SQLite LIKE escaping.
var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func (r *Redis) Sweep(ctx context.Context, prefix string) (int, error) {
	removed := 0
	iter := r.rdb.Scan(ctx, 0, redisNamespace+globEscaper.Replace(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, fmt.Errorf("cache: redis del: %w", err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("cache: redis scan: %w", err)
	}
	return removed, nil
}

func (r *Redis) Close() error { return r.rdb.Close() }
