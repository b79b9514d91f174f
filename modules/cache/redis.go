package cache

import (
	"context"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// releaseIfOwner is a Lua script so acquire-checked-release is atomic: a
// leader that is slow to call ReleaseLock must never delete a lock some
// other node has since acquired after this one's TTL expired.
const releaseIfOwner = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// RedisClient is the cache.Client backed by Redis, grounded on the
// teacher's pkg/cache.RedisClient (MGet/MSet over a single go-redis
// connection) and on cache_calls.py's use of a single redis pipeline per
// COLD/WARM write-back.
type RedisClient struct {
	rdb *goredis.Client
}

// NewRedisClient dials addr (host:port) lazily — go-redis connects on
// first use, matching redis.StrictRedis's own lazy-connection behavior in
// the original Python implementation.
func NewRedisClient(addr string) *RedisClient {
	return &RedisClient{rdb: goredis.NewClient(&goredis.Options{Addr: addr})}
}

func (c *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap("get", err)
	}
	return b, nil
}

func (c *RedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return wrap("set", c.rdb.Set(ctx, key, value, ttl).Err())
}

func (c *RedisClient) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	pipe := c.rdb.Pipeline()
	cmds := make([]*goredis.StringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.Get(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != goredis.Nil {
		return nil, wrap("mget", err)
	}

	out := make([][]byte, len(keys))
	for i, cmd := range cmds {
		b, err := cmd.Bytes()
		if err == goredis.Nil {
			out[i] = nil
			continue
		}
		if err != nil {
			return nil, wrap("mget", err)
		}
		out[i] = b
	}
	return out, nil
}

func (c *RedisClient) MSet(ctx context.Context, items map[string]SetItem) error {
	if len(items) == 0 {
		return nil
	}
	pipe := c.rdb.Pipeline()
	for key, item := range items {
		pipe.Set(ctx, key, item.Value, item.TTL)
	}
	_, err := pipe.Exec(ctx)
	return wrap("mset", err)
}

func (c *RedisClient) SetAdd(ctx context.Context, setKey, member string) error {
	return wrap("sadd", c.rdb.SAdd(ctx, setKey, member).Err())
}

func (c *RedisClient) SetMembers(ctx context.Context, setKey string) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, wrap("smembers", err)
	}
	return members, nil
}

func (c *RedisClient) Delete(ctx context.Context, key string) error {
	return wrap("del", c.rdb.Del(ctx, key).Err())
}

func (c *RedisClient) FlushAll(ctx context.Context) error {
	return wrap("flushall", c.rdb.FlushAll(ctx).Err())
}

func (c *RedisClient) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, wrap("acquire_lock", err)
	}
	return ok, nil
}

func (c *RedisClient) ReleaseLock(ctx context.Context, key, owner string) error {
	err := c.rdb.Eval(ctx, releaseIfOwner, []string{key}, owner).Err()
	if err != nil && err != goredis.Nil {
		return wrap("release_lock", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *RedisClient) Close() error {
	return c.rdb.Close()
}
