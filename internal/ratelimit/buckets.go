// Package ratelimit implements token buckets shared by every server instance through Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable is returned when the shared store cannot be reached or answers garbage.
var ErrStoreUnavailable = errors.New("ratelimit: store unavailable")

// Limit describes one bucket: it holds at most Capacity tokens and gains RefillTokens every RefillPeriod.
type Limit struct {
	Capacity     int64
	RefillTokens int64
	RefillPeriod time.Duration
}

// Valid reports whether the limit can be enforced.
func (l Limit) Valid() bool {
	return l.Capacity > 0 && l.RefillTokens > 0 && l.RefillPeriod >= time.Millisecond
}

// Scale multiplies capacity and refill by n.
func (l Limit) Scale(n int64) Limit {
	if n < 1 {
		n = 1
	}
	return Limit{Capacity: l.Capacity * n, RefillTokens: l.RefillTokens * n, RefillPeriod: l.RefillPeriod}
}

// ttl is long enough for an idle bucket to refill completely, plus one period.
func (l Limit) ttl() time.Duration {
	periods := (l.Capacity + l.RefillTokens - 1) / l.RefillTokens
	return time.Duration(periods+1) * l.RefillPeriod
}

// Decision is the outcome of one consume attempt. A declined request is a value, not an error.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
	// Degraded is set when the store could not be consulted and the operation's fail policy decided.
	Degraded bool
}

// KEYS[1] bucket hash. ARGV: capacity, refill tokens, refill period ms, now ms, ttl ms.
// Returns {allowed, remaining, retry_after_ms}.
const tokenBucketScript = `
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local period = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = capacity
  ts = now
end

if now > ts then
  local periods = math.floor((now - ts) / period)
  if periods > 0 then
    tokens = math.min(capacity, tokens + periods * refill)
    ts = ts + periods * period
  end
end

local allowed = 0
local retry = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
else
  retry = ts + period - now
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, tokens, retry}
`

var tokenBucketLua = redis.NewScript(tokenBucketScript)

// RedisBuckets keeps bucket state in Redis hashes. The whole read-refill-consume-write
// step runs as one script, so concurrent callers on the same key never both take the last token.
type RedisBuckets struct {
	client redis.Scripter
	now    func() time.Time
}

// NewRedisBuckets returns buckets stored through client.
func NewRedisBuckets(client redis.Scripter) *RedisBuckets {
	return &RedisBuckets{client: client, now: time.Now}
}

// WithClock replaces the time source whose milliseconds are passed to the script.
func (b *RedisBuckets) WithClock(now func() time.Time) *RedisBuckets {
	b.now = now
	return b
}

// TryConsume takes one token from the bucket at key.
func (b *RedisBuckets) TryConsume(ctx context.Context, key string, limit Limit) (Decision, error) {
	if !limit.Valid() {
		return Decision{}, fmt.Errorf("ratelimit: invalid limit %+v", limit)
	}
	res, err := tokenBucketLua.Run(ctx, b.client, []string{key},
		limit.Capacity,
		limit.RefillTokens,
		limit.RefillPeriod.Milliseconds(),
		b.now().UnixMilli(),
		limit.ttl().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply %v", ErrStoreUnavailable, res)
	}
	return Decision{
		Allowed:    res[0] == 1,
		Remaining:  res[1],
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}
