package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limit bounds the number of hits per key inside a trailing window.
// Max <= 0 disables the limit.
type Limit struct {
	Max    int
	Window time.Duration
}

// Enabled reports whether the limit is enforced.
func (l Limit) Enabled() bool {
	return l.Max > 0 && l.Window > 0
}

// ARGV: now ms, window ms, max (<=0 means record only), member.
// Returns the number of hits in the window after the call, or -1 when the
// hit was rejected.
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
if max > 0 and count >= max then
  return -1
end

redis.call("ZADD", key, now, ARGV[4])
redis.call("PEXPIRE", key, window)
return count + 1
`

var slidingWindowLua = redis.NewScript(slidingWindowScript)

// Window is a sliding-window counter namespaced by prefix.
type Window struct {
	redis  redis.UniversalClient
	prefix string
	limit  Limit
	now    func() time.Time
}

// NewWindow creates a [Window]. now defaults to time.Now.
func NewWindow(redisClient redis.UniversalClient, prefix string, limit Limit, now func() time.Time) *Window {
	if now == nil {
		now = time.Now
	}
	return &Window{
		redis:  redisClient,
		prefix: prefix,
		limit:  limit,
		now:    now,
	}
}

// Limit returns the configured limit.
func (w *Window) Limit() Limit {
	return w.limit
}

func (w *Window) key(id string) string {
	return w.prefix + id
}

// Allow records a hit for id unless the window is already full, in which
// case it returns ErrRateLimited and records nothing. A disabled limit
// always allows.
func (w *Window) Allow(ctx context.Context, id string) error {
	if !w.limit.Enabled() {
		return nil
	}
	n, err := w.run(ctx, id, int64(w.limit.Max))
	if err != nil {
		return err
	}
	if n < 0 {
		return ErrRateLimited
	}
	return nil
}

// Record adds a hit without enforcing the limit and returns the count in
// the window including this hit.
func (w *Window) Record(ctx context.Context, id string) (int, error) {
	if !w.limit.Enabled() {
		return 0, nil
	}
	n, err := w.run(ctx, id, 0)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Check returns ErrRateLimited when id has no budget left, without recording.
func (w *Window) Check(ctx context.Context, id string) error {
	if !w.limit.Enabled() {
		return nil
	}
	n, err := w.Count(ctx, id)
	if err != nil {
		return err
	}
	if n >= w.limit.Max {
		return ErrRateLimited
	}
	return nil
}

// Count returns the hits for id inside the current window.
func (w *Window) Count(ctx context.Context, id string) (int, error) {
	now := w.now().UnixMilli()
	min := strconv.FormatInt(now-w.limit.Window.Milliseconds(), 10)
	n, err := w.redis.ZCount(ctx, w.key(id), "("+min, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

// Reset clears the window for id.
func (w *Window) Reset(ctx context.Context, id string) error {
	if err := w.redis.Del(ctx, w.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (w *Window) run(ctx context.Context, id string, max int64) (int64, error) {
	n, err := slidingWindowLua.Run(ctx, w.redis,
		[]string{w.key(id)},
		w.now().UnixMilli(),
		w.limit.Window.Milliseconds(),
		max,
		uuid.NewString(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}
