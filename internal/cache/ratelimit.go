package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	riderBucketPrefix = "ridesplit:rl:rider:"
	ipBucketPrefix    = "ridesplit:rl:ip:"
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// bucket describes one token bucket: refill rate in tokens per second and
// capacity. Idle buckets expire once they would have refilled completely.
type bucket struct {
	rate  float64
	burst int
}

func (b bucket) idleTTL() time.Duration {
	full := time.Duration(float64(b.burst) / b.rate * float64(time.Second))
	return full + time.Second
}

// tokenBucketScript refills and spends a token atomically. Timestamps are
// integer milliseconds so the script stays exact under Lua's number type.
//
// Returns {allowed, remaining, retry_after_ms, full_in_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1]) / 1000.0
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
	tokens = burst
	ts = now
end

tokens = math.min(burst, tokens + math.max(0, now - ts) * rate)

local allowed = 0
local retry_after = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
else
	retry_after = math.ceil((1 - tokens) / rate)
end

redis.call('HSET', key, 'tokens', tokens, 'ts', now)
redis.call('PEXPIRE', key, ttl)

return {allowed, math.floor(tokens), retry_after, math.ceil((burst - tokens) / rate)}
`)

// CheckUserRateLimit spends one request from a signed-in rider's budget of
// ratePerMinute. A zero rate disables limiting.
func (c *Cache) CheckUserRateLimit(ctx context.Context, userID string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if ratePerMinute <= 0 {
		return unlimited(burst), nil
	}
	b := bucket{rate: float64(ratePerMinute) / 60, burst: burst}
	return c.take(ctx, riderBucketPrefix+userID, b)
}

// CheckIPRateLimit spends one request from a client IP's budget. Used on
// the unauthenticated sign-up and sign-in routes. The IP is hashed before
// it becomes part of a key.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 {
		return unlimited(burst), nil
	}
	b := bucket{rate: float64(ratePerSecond), burst: burst}
	return c.take(ctx, ipBucketPrefix+hashIP(ip), b)
}

func (c *Cache) take(ctx context.Context, key string, b bucket) (*RateLimitResult, error) {
	if b.burst < 1 {
		b.burst = 1
	}
	now := c.now()

	res, err := tokenBucketScript.Run(ctx, c.client,
		[]string{key},
		b.rate, b.burst, now.UnixMilli(), b.idleTTL().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(res) != 4 {
		return nil, fmt.Errorf("rate limit %s: unexpected script reply %v", key, res)
	}

	return &RateLimitResult{
		Allowed:    res[0] == 1,
		Remaining:  res[1],
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
		ResetAt:    now.Add(time.Duration(res[3]) * time.Millisecond),
	}, nil
}

func unlimited(burst int) *RateLimitResult {
	return &RateLimitResult{
		Allowed:   true,
		Remaining: int64(burst),
		ResetAt:   time.Now(),
	}
}

// hashIP returns the first 8 bytes of the SHA-256 of ip, hex encoded.
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
