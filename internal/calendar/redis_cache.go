package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares availability answers between gateway replicas. Entries
// are namespaced by a generation counter; Invalidate bumps the counter and
// stale entries age out through their TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// setIfCurrent writes ARGV[2] to KEYS[2] only while the generation in KEYS[1]
// still equals ARGV[1]. ARGV[3] is the TTL in milliseconds, 0 for none.
var setIfCurrent = redis.NewScript(`
local cur = redis.call('GET', KEYS[1]) or '0'
if cur ~= ARGV[1] then
	return 0
end
if ARGV[3] == '0' then
	redis.call('SET', KEYS[2], ARGV[2])
else
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
end
return 1
`)

// NewRedisCache returns a RedisCache storing keys under prefix.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "calmcp:availability:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) genKey() string { return c.prefix + "gen" }

func (c *RedisCache) key(gen int64, start, end time.Time) string {
	return fmt.Sprintf("%s%d:%s", c.prefix, gen, rangeKey(start, end))
}

func (c *RedisCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cache generation: %w", err)
	}
	return gen, nil
}

func (c *RedisCache) Get(ctx context.Context, gen int64, start, end time.Time) (Availability, bool, error) {
	data, err := c.client.Get(ctx, c.key(gen, start, end)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Availability{}, false, nil
	}
	if err != nil {
		return Availability{}, false, err
	}
	var a Availability
	if err := json.Unmarshal(data, &a); err != nil {
		return Availability{}, false, fmt.Errorf("decode cached availability: %w", err)
	}
	return a, true, nil
}

func (c *RedisCache) Set(ctx context.Context, gen int64, start, end time.Time, a Availability) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	keys := []string{c.genKey(), c.key(gen, start, end)}
	ttl := strconv.FormatInt(c.ttl.Milliseconds(), 10)
	return setIfCurrent.Run(ctx, c.client, keys, strconv.FormatInt(gen, 10), data, ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, c.genKey()).Err()
}
