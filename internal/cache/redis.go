package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	entryKeyPrefix    = "cache:entry:"
	inflightKeyPrefix = "cache:inflight:"
	accessIndexKey    = "cache:idx"
)

// RedisStore is the Redis-backed SharedStore. Entries live under their own
// keys with a TTL; a ZSET scored by last-access time drives the staleness
// sweep. In-flight markers use SET NX EX, which is what makes the
// single-flight acquisition atomic across instances.
type RedisStore struct {
	client goredis.Cmdable
	logger zerolog.Logger
	now    func() time.Time
}

var _ SharedStore = (*RedisStore)(nil)

// NewRedisStore creates a SharedStore on the given Redis client.
func NewRedisStore(client goredis.Cmdable, logger zerolog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger.With().Str("service", "SharedCache").Logger(),
		now:    time.Now,
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := s.client.Get(ctx, entryKeyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("shared cache get %s: %w", key, err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("shared cache decode %s: %w", key, err)
	}

	// Access metadata for sweeping lives in the index, not in the immutable
	// entry payload. A failed touch only postpones the sweep for this key;
	// it must not turn a decoded hit into a miss.
	now := s.now().UTC()
	if err := s.client.ZAdd(ctx, accessIndexKey, goredis.Z{Score: float64(now.Unix()), Member: key}).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Failed to touch access index")
	}
	e.LastAccessed = now
	e.AccessCount++
	return &e, nil
}

func (s *RedisStore) Set(ctx context.Context, entry *Entry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("shared cache encode %s: %w", entry.Key, err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, entryKeyPrefix+entry.Key, raw, ttl)
	pipe.ZAdd(ctx, accessIndexKey, goredis.Z{Score: float64(s.now().UTC().Unix()), Member: entry.Key})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("shared cache set %s: %w", entry.Key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, entryKeyPrefix+key)
	pipe.ZRem(ctx, accessIndexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("shared cache delete %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) AcquireInFlight(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, inflightKeyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire in-flight marker %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) ReleaseInFlight(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, inflightKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release in-flight marker %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) InFlight(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, inflightKeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check in-flight marker %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) SweepStale(ctx context.Context, cutoff time.Time) (int, error) {
	max := fmt.Sprintf("%d", cutoff.UTC().Unix())
	keys, err := s.client.ZRangeByScore(ctx, accessIndexKey, &goredis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return 0, fmt.Errorf("listing stale cache entries: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	for _, key := range keys {
		pipe.Del(ctx, entryKeyPrefix+key)
		pipe.ZRem(ctx, accessIndexKey, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("reaping stale cache entries: %w", err)
	}
	return len(keys), nil
}
