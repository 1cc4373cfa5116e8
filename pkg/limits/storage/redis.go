package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mercator-hq/sentinel/pkg/limits"
)

// RedisClient is the subset of Redis operations the store needs.
// It is satisfied by the adapter returned from NewRedisClient and can be
// faked in tests.
type RedisClient interface {
	// Eval executes a Lua script.
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close closes the underlying connection pool.
	Close() error
}

// RedisStoreConfig configures the Redis store and its client.
type RedisStoreConfig struct {
	// Addresses is one address for a standalone server, several for a cluster.
	Addresses []string

	Username string
	Password string
	DB       int

	// KeyPrefix namespaces every key written by the store.
	// Default: "sentinel:rl"
	KeyPrefix string

	// DialTimeout bounds connection establishment.
	// Default: 5 seconds
	DialTimeout time.Duration

	// PoolSize is the maximum number of socket connections.
	// Default: go-redis default (10 per CPU)
	PoolSize int
}

type redisClientAdapter struct {
	client redis.UniversalClient
}

// NewRedisClient creates a go-redis universal client (standalone or cluster,
// depending on the number of addresses) wrapped as a RedisClient.
func NewRedisClient(cfg RedisStoreConfig) RedisClient {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	return &redisClientAdapter{
		client: redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:       cfg.Addresses,
			Username:    cfg.Username,
			Password:    cfg.Password,
			DB:          cfg.DB,
			DialTimeout: cfg.DialTimeout,
			PoolSize:    cfg.PoolSize,
		}),
	}
}

func (a *redisClientAdapter) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return a.client.Eval(ctx, script, keys, args...).Result()
}

func (a *redisClientAdapter) Ping(ctx context.Context) error {
	return a.client.Ping(ctx).Err()
}

func (a *redisClientAdapter) Close() error {
	return a.client.Close()
}

// Scores are microseconds since the epoch and are passed to the scripts as
// strings; Lua would format large numbers with only 14 significant digits.

// incrementScript trims, appends and counts every window log of one client.
//
//	KEYS[1..n]   window logs
//	KEYS[n+1]    client index set
//	ARGV[1]      now (µs)
//	ARGV[2]      member, unique per request
//	ARGV[1+2i]   cutoff of KEYS[i] (µs)
//	ARGV[2+2i]   TTL of KEYS[i] (ms)
const incrementScript = `
local n = #KEYS - 1
local index = KEYS[#KEYS]
local longest = 0
local result = {}
for i = 1, n do
  local key = KEYS[i]
  local ttl = tonumber(ARGV[2 + 2 * i])
  redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[1 + 2 * i])
  redis.call('ZADD', key, ARGV[1], ARGV[2])
  local count = redis.call('ZCARD', key)
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  redis.call('PEXPIRE', key, ttl)
  redis.call('SADD', index, key)
  if ttl > longest then longest = ttl end
  result[#result + 1] = count
  result[#result + 1] = oldest[2]
end
if redis.call('PTTL', index) < longest then
  redis.call('PEXPIRE', index, longest)
end
return result
`

// peekScript counts one window log without modifying it.
//
//	KEYS[1]  window log
//	ARGV[1]  cutoff (µs), exclusive
const peekScript = `
local count = redis.call('ZCOUNT', KEYS[1], '(' .. ARGV[1], '+inf')
if count == 0 then
  return {0}
end
local oldest = redis.call('ZRANGEBYSCORE', KEYS[1], '(' .. ARGV[1], '+inf', 'WITHSCORES', 'LIMIT', 0, 1)
return {count, oldest[2]}
`

// resetScript deletes every log listed in a client index, then the index.
// The logs share the index's hash slot, so this is cluster safe.
//
//	KEYS[1]  client index set
const resetScript = `
local removed = 0
for _, key in ipairs(redis.call('SMEMBERS', KEYS[1])) do
  removed = removed + redis.call('DEL', key)
end
redis.call('DEL', KEYS[1])
return removed
`

// RedisStore implements Store on Redis sorted sets.
// One sorted set holds the log of one window key; members are unique per
// request and scored by their timestamp. Every key of a client shares a
// hash tag, so a whole batch runs as one script on one node. Idle logs
// expire through Redis TTLs, so Sweep has nothing to do.
type RedisStore struct {
	client    RedisClient
	keyPrefix string
}

// NewRedisStore creates a Redis store on top of client.
func NewRedisStore(client RedisClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "sentinel:rl"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

// logKey renders "<prefix>:{<client>}:<policy>:<window>".
func (r *RedisStore) logKey(key limits.WindowKey) string {
	return r.keyPrefix + ":{" + string(key.Client) + "}:" + key.Policy + ":" + key.Window
}

// indexKey renders "<prefix>:{<client>}:keys".
func (r *RedisStore) indexKey(client limits.ClientID) string {
	return r.keyPrefix + ":{" + string(client) + "}:keys"
}

// Increment trims and appends to one log.
func (r *RedisStore) Increment(ctx context.Context, key limits.WindowKey, now time.Time, duration time.Duration) (Count, error) {
	counts, err := r.IncrementBatch(ctx, now, []Increment{{Key: key, Duration: duration}})
	if err != nil {
		return Count{}, err
	}
	return counts[0], nil
}

// IncrementBatch runs one script for the whole batch. All keys must belong
// to the same client.
func (r *RedisStore) IncrementBatch(ctx context.Context, now time.Time, batch []Increment) ([]Count, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	client := batch[0].Key.Client

	keys := make([]string, 0, len(batch)+1)
	args := make([]interface{}, 0, 2+2*len(batch))
	args = append(args, micros(now), fmt.Sprintf("%d-%s", now.UnixMicro(), uuid.NewString()))

	for _, inc := range batch {
		if inc.Key.Client != client {
			return nil, storeError("increment", inc.Key.String(),
				fmt.Errorf("batch mixes clients %s and %s", client, inc.Key.Client))
		}
		keys = append(keys, r.logKey(inc.Key))
		args = append(args, micros(now.Add(-inc.Duration)), ttlMillis(inc.Duration))
	}
	keys = append(keys, r.indexKey(client))

	res, err := r.client.Eval(ctx, incrementScript, keys, args...)
	if err != nil {
		return nil, storeError("increment", string(client), err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 2*len(batch) {
		return nil, storeError("increment", string(client), fmt.Errorf("unexpected script reply %v", res))
	}

	counts := make([]Count, len(batch))
	for i := range batch {
		c, err := parseCount(values[2*i], values[2*i+1])
		if err != nil {
			return nil, storeError("increment", keys[i], err)
		}
		counts[i] = c
	}
	return counts, nil
}

// Peek counts the live members of one log.
func (r *RedisStore) Peek(ctx context.Context, key limits.WindowKey, now time.Time, duration time.Duration) (Count, error) {
	k := r.logKey(key)

	res, err := r.client.Eval(ctx, peekScript, []string{k}, micros(now.Add(-duration)))
	if err != nil {
		return Count{}, storeError("peek", k, err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) == 0 {
		return Count{}, storeError("peek", k, fmt.Errorf("unexpected script reply %v", res))
	}

	var oldest interface{}
	if len(values) > 1 {
		oldest = values[1]
	}
	c, err := parseCount(values[0], oldest)
	if err != nil {
		return Count{}, storeError("peek", k, err)
	}
	return c, nil
}

// Reset deletes every log of the client through its index set.
func (r *RedisStore) Reset(ctx context.Context, client limits.ClientID) (int, error) {
	res, err := r.client.Eval(ctx, resetScript, []string{r.indexKey(client)})
	if err != nil {
		return 0, storeError("reset", string(client), err)
	}

	removed, ok := res.(int64)
	if !ok {
		return 0, storeError("reset", string(client), fmt.Errorf("unexpected script reply %v", res))
	}
	return int(removed), nil
}

// Sweep is a no-op; Redis expires idle logs itself.
func (r *RedisStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

// Ping checks connectivity to Redis.
func (r *RedisStore) Ping(ctx context.Context) error {
	return storeError("ping", "", r.client.Ping(ctx))
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func micros(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}

// ttlMillis rounds a duration up to whole milliseconds, at least one.
func ttlMillis(d time.Duration) string {
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms < 1 {
		ms = 1
	}
	return strconv.FormatInt(int64(ms), 10)
}

var errBadReply = errors.New("malformed script reply")

// parseCount decodes a (count, oldest score) pair from a script reply.
func parseCount(count, oldest interface{}) (Count, error) {
	n, ok := count.(int64)
	if !ok {
		return Count{}, fmt.Errorf("%w: count %v", errBadReply, count)
	}
	c := Count{Count: int(n)}
	if n == 0 || oldest == nil {
		return c, nil
	}

	s, ok := oldest.(string)
	if !ok {
		return Count{}, fmt.Errorf("%w: score %v", errBadReply, oldest)
	}
	score, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Count{}, fmt.Errorf("%w: score %q: %v", errBadReply, s, err)
	}
	c.Oldest = time.UnixMicro(int64(score))
	return c, nil
}
