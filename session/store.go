package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when a session does not exist (or is not owned by the caller).
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned by RenewIfNeeded for a session whose expiry has passed.
	ErrExpired = errors.New("session expired")
	// ErrStaleGeneration is returned by RenewIfNeeded in strict mode when the
	// caller's generation no longer matches the stored one.
	ErrStaleGeneration = errors.New("session generation is stale")
	// ErrRedisUnavailable wraps backend failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const (
	// DefaultLifetime matches the default refresh token lifetime.
	DefaultLifetime = 30 * 24 * time.Hour
	// DefaultRenewalThreshold is the remaining lifetime under which a session is renewed.
	DefaultRenewalThreshold = 24 * time.Hour
)

const (
	renewStatusNotFound    int64 = 0
	renewStatusExpired     int64 = 1
	renewStatusStale       int64 = 2
	renewStatusNotNeeded   int64 = 3
	renewStatusInvalidBlob int64 = 4
	renewStatusRenewed     int64 = 5
)

// Shared Lua helpers. Offsets follow the layout documented in encoder.go.
const luaSessionHelpers = `
local function read_be(s, i, width)
  local n = 0
  for k = 0, width - 1 do
    local b = string.byte(s, i + k)
    if not b then
      return nil
    end
    n = n * 256 + b
  end
  return n
end

local function write_be(n, width)
  local out = {}
  for k = width, 1, -1 do
    out[k] = string.char(n % 256)
    n = math.floor(n / 256)
  end
  return table.concat(out)
end

local function parse_session(data)
  if string.byte(data, 1) ~= 1 then
    return nil
  end
  local expires_at = read_be(data, 10, 8)
  local generation = read_be(data, 18, 4)
  local user_len = string.byte(data, 22)
  if not expires_at or not generation or not user_len or user_len == 0 then
    return nil
  end
  if #data < 22 + user_len then
    return nil
  end
  return {
    expires_at = expires_at,
    generation = generation,
    user_id = string.sub(data, 23, 22 + user_len)
  }
end
`

const renewScript = luaSessionHelpers + `
local session_key = KEYS[1]
local now = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local lifetime = tonumber(ARGV[3])
local expected_generation = tonumber(ARGV[4])
local user_prefix = ARGV[5]

local data = redis.call("GET", session_key)
if not data then
  return {0}
end

local parsed = parse_session(data)
if not parsed then
  return {4}
end

if parsed.expires_at <= now then
  return {1}
end

if expected_generation >= 0 and parsed.generation ~= expected_generation then
  return {2, parsed.expires_at, parsed.generation}
end

if parsed.expires_at - now > threshold then
  return {3, parsed.expires_at, parsed.generation}
end

local next_expiry = now + lifetime
local next_generation = (parsed.generation + 1) % 4294967296
local updated = string.sub(data, 1, 9) .. write_be(next_expiry, 8) .. write_be(next_generation, 4) .. string.sub(data, 22)

redis.call("SET", session_key, updated, "PX", lifetime)
redis.call("PEXPIRE", user_prefix .. parsed.user_id, lifetime)

return {5, next_expiry, next_generation}
`

var renewLua = redis.NewScript(renewScript)

const deleteScript = luaSessionHelpers + `
local session_key = KEYS[1]
local session_id = ARGV[1]
local user_prefix = ARGV[2]
local expected_owner = ARGV[3]

local data = redis.call("GET", session_key)
if not data then
  return 0
end

local parsed = parse_session(data)
if not parsed then
  redis.call("DEL", session_key)
  return 1
end

if expected_owner ~= "" and parsed.user_id ~= expected_owner then
  return -1
end

redis.call("DEL", session_key)
redis.call("ZREM", user_prefix .. parsed.user_id, session_id)
return 1
`

var deleteLua = redis.NewScript(deleteScript)

const deleteAllScript = `
local ids = redis.call("ZRANGE", KEYS[1], 0, -1)
local deleted = 0
for _, id in ipairs(ids) do
  deleted = deleted + redis.call("DEL", ARGV[1] .. id)
end
redis.call("DEL", KEYS[1])
return deleted
`

var deleteAllLua = redis.NewScript(deleteAllScript)

// Config tunes a Store.
type Config struct {
	// Prefix namespaces every key. Defaults to "as".
	Prefix string
	// Lifetime is applied on create and on renewal. Defaults to DefaultLifetime.
	Lifetime time.Duration
	// RenewalThreshold is the remaining lifetime at or under which
	// RenewIfNeeded extends a session. Defaults to DefaultRenewalThreshold.
	RenewalThreshold time.Duration
	// StrictGeneration makes RenewIfNeeded reject callers holding an older
	// generation than the stored one.
	StrictGeneration bool
	// Now overrides the store clock. Defaults to time.Now.
	Now func() time.Time
}

// Store is the Redis-backed session ledger.
type Store struct {
	redis  redis.UniversalClient
	config Config
}

// NewStore creates a session [Store] backed by the given Redis client.
func NewStore(rdb redis.UniversalClient, cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = "as"
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultLifetime
	}
	if cfg.RenewalThreshold <= 0 {
		cfg.RenewalThreshold = DefaultRenewalThreshold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		redis:  rdb,
		config: cfg,
	}
}

// Lifetime returns the lifetime applied on create and renewal.
func (s *Store) Lifetime() time.Duration {
	return s.config.Lifetime
}

func (s *Store) key(sessionID string) string {
	return s.config.Prefix + ":" + sessionID
}

func (s *Store) userPrefix() string {
	return s.config.Prefix + "u:"
}

func (s *Store) userKey(userID string) string {
	return s.userPrefix() + userID
}

// Create persists a new session for userID expiring one lifetime from now.
//
//	Performance: 1 MULTI (SET + ZADD + PEXPIRE).
func (s *Store) Create(ctx context.Context, userID, userAgent string) (*Session, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}

	now := s.config.Now().Truncate(time.Millisecond)
	sess := &Session{
		ID:        sid.String(),
		UserID:    userID,
		UserAgent: userAgent,
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(s.config.Lifetime).UTC(),
	}

	sess.UserAgent = truncateUserAgent(sess.UserAgent)
	data, err := Encode(sess)
	if err != nil {
		return nil, err
	}

	userKey := s.userKey(userID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.ID), data, s.config.Lifetime)
		pipe.ZAdd(ctx, userKey, redis.Z{Score: float64(now.UnixMilli()), Member: sess.ID})
		pipe.PExpire(ctx, userKey, s.config.Lifetime)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return sess, nil
}

// Get loads a session by ID. Expired sessions are returned as stored;
// callers decide with [Session.Expired].
//
//	Performance: 1 Redis GET.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.ID = sessionID

	return sess, nil
}

// RenewIfNeeded extends sess to now + lifetime when its remaining lifetime
// is at or under the renewal threshold, and reports whether it did. The
// check and the write run in one Lua script, so concurrent callers cannot
// both renew inside the same window. sess is updated in place.
//
//	Performance: 1 EVALSHA.
func (s *Store) RenewIfNeeded(ctx context.Context, sess *Session) (bool, error) {
	if sess == nil || sess.ID == "" {
		return false, ErrNotFound
	}

	expected := int64(-1)
	if s.config.StrictGeneration {
		expected = int64(sess.Generation)
	}

	now := s.config.Now()
	raw, err := renewLua.Run(ctx, s.redis,
		[]string{s.key(sess.ID)},
		now.UnixMilli(),
		s.config.RenewalThreshold.Milliseconds(),
		s.config.Lifetime.Milliseconds(),
		expected,
		s.userPrefix(),
	).Slice()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(raw) == 0 {
		return false, ErrCorrupt
	}

	status, _ := raw[0].(int64)
	switch status {
	case renewStatusNotFound:
		return false, ErrNotFound
	case renewStatusExpired:
		return false, ErrExpired
	case renewStatusInvalidBlob:
		return false, ErrCorrupt
	case renewStatusStale:
		return false, ErrStaleGeneration
	case renewStatusNotNeeded, renewStatusRenewed:
		if len(raw) < 3 {
			return false, ErrCorrupt
		}
		expiresAt, _ := raw[1].(int64)
		generation, _ := raw[2].(int64)
		sess.ExpiresAt = time.UnixMilli(expiresAt).UTC()
		sess.Generation = uint32(generation)
		return status == renewStatusRenewed, nil
	default:
		return false, ErrCorrupt
	}
}

// DeleteByID removes a session. Deleting a missing session is not an error.
func (s *Store) DeleteByID(ctx context.Context, sessionID string) error {
	_, err := s.delete(ctx, sessionID, "")
	return err
}

// DeleteOwned removes a session only if userID owns it; otherwise it
// returns ErrNotFound so callers cannot probe other users' session IDs.
func (s *Store) DeleteOwned(ctx context.Context, userID, sessionID string) error {
	deleted, err := s.delete(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

func (s *Store) delete(ctx context.Context, sessionID, owner string) (bool, error) {
	res, err := deleteLua.Run(ctx, s.redis, []string{s.key(sessionID)}, sessionID, s.userPrefix(), owner).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return res == 1, nil
}

// DeleteAllForUser removes every session indexed for userID and the index
// itself in one Lua script. It returns the number of session blobs deleted.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	n, err := deleteAllLua.Run(ctx, s.redis, []string{s.userKey(userID)}, s.config.Prefix+":").Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

// ListActiveForUser returns the user's unexpired sessions, newest first.
// Index members whose blob is gone are pruned on the way.
//
//	Performance: ZREVRANGE + MGET (+ ZREM when pruning).
func (s *Store) ListActiveForUser(ctx context.Context, userID string) ([]*Session, error) {
	userKey := s.userKey(userID)

	ids, err := s.redis.ZRevRange(ctx, userKey, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Session{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}

	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := s.config.Now()
	out := make([]*Session, 0, len(ids))
	var dangling []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			dangling = append(dangling, ids[i])
			continue
		}
		sess, err := Decode([]byte(raw))
		if err != nil || sess.UserID != userID {
			dangling = append(dangling, ids[i])
			continue
		}
		sess.ID = ids[i]
		if sess.Expired(now) {
			continue
		}
		out = append(out, sess)
	}

	if len(dangling) > 0 {
		if err := s.redis.ZRem(ctx, userKey, dangling...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return out, nil
}

// Ping measures a Redis round trip.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
