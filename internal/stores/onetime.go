package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/redis/go-redis/v9"
)

const (
	codeRecordVersionV1 = 1

	maxIssueAttempts  = 4
	maxConsumeRetries = 4
)

var (
	// ErrCodeNotFound covers missing, expired, already consumed and
	// wrong-purpose codes alike.
	ErrCodeNotFound = errors.New("one-time code not found")
	// ErrRateLimited is returned by Issue when the per-user window is full.
	ErrRateLimited = errors.New("one-time code issuance rate limited")
	// ErrCodeCollision is returned when no unique value could be generated.
	ErrCodeCollision = errors.New("one-time code collision")
	// ErrRedisUnavailable wraps backend failures.
	ErrRedisUnavailable = errors.New("code store redis unavailable")
	// ErrCorrupt is returned for records that cannot be decoded.
	ErrCorrupt = errors.New("one-time code record corrupt")
)

// Purpose scopes a code to a single flow.
type Purpose uint8

const (
	PurposeEmailVerification Purpose = iota + 1
	PurposePasswordReset
)

func (p Purpose) String() string {
	switch p {
	case PurposeEmailVerification:
		return "email-verification"
	case PurposePasswordReset:
		return "password-reset"
	default:
		return "unknown"
	}
}

// Code is an issued one-time code.
type Code struct {
	Value     string
	UserID    string
	Purpose   Purpose
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Limit caps issuance per user and purpose inside a trailing window.
// Max <= 0 disables the cap.
type Limit struct {
	Max    int
	Window time.Duration
}

// KEYS: code key, issuance index key.
// ARGV: record, lifetime ms, now ms, window ms, max, member.
// Returns -1 when rate limited, 0 on value collision and 1 when stored.
const issueScript = `
local code_key = KEYS[1]
local index_key = KEYS[2]
local lifetime = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local window = tonumber(ARGV[4])
local max = tonumber(ARGV[5])

if max > 0 and window > 0 then
  redis.call("ZREMRANGEBYSCORE", index_key, "-inf", now - window)
  if redis.call("ZCARD", index_key) >= max then
    return -1
  end
end

local ok = redis.call("SET", code_key, ARGV[1], "NX", "PX", lifetime)
if not ok then
  return 0
end

if max > 0 and window > 0 then
  redis.call("ZADD", index_key, now, ARGV[6])
  redis.call("PEXPIRE", index_key, window)
end

return 1
`

var issueLua = redis.NewScript(issueScript)

// CodeStore persists one-time codes in Redis.
type CodeStore struct {
	redis    redis.UniversalClient
	prefix   string
	now      func() time.Time
	generate func() (string, error)
}

// NewCodeStore creates a [CodeStore]. now defaults to time.Now.
func NewCodeStore(redisClient redis.UniversalClient, prefix string, now func() time.Time) *CodeStore {
	if prefix == "" {
		prefix = "aoc"
	}
	if now == nil {
		now = time.Now
	}
	return &CodeStore{
		redis:    redisClient,
		prefix:   prefix,
		now:      now,
		generate: internal.NewOneTimeCode,
	}
}

func (s *CodeStore) key(value string) string {
	return s.prefix + ":" + value
}

func (s *CodeStore) indexKey(userID string, purpose Purpose) string {
	return s.prefix + "i:" + purpose.String() + ":" + userID
}

// Issue creates a code for userID that expires after lifetime.
//
// Issue may return ErrRateLimited when limit is exhausted, ErrCodeCollision
// when repeated value generation collides, or ErrRedisUnavailable.
func (s *CodeStore) Issue(ctx context.Context, userID string, purpose Purpose, lifetime time.Duration, limit Limit) (*Code, error) {
	if userID == "" || len(userID) > 255 {
		return nil, errors.New("userID must be 1-255 bytes")
	}
	if lifetime <= 0 {
		return nil, errors.New("code lifetime must be positive")
	}

	now := s.now().Truncate(time.Millisecond).UTC()
	code := &Code{
		UserID:    userID,
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(lifetime),
	}
	record := encodeCodeRecord(code)
	indexKey := s.indexKey(userID, purpose)

	for i := 0; i < maxIssueAttempts; i++ {
		value, err := s.generate()
		if err != nil {
			return nil, err
		}

		res, err := issueLua.Run(ctx, s.redis,
			[]string{s.key(value), indexKey},
			record,
			lifetime.Milliseconds(),
			now.UnixMilli(),
			limit.Window.Milliseconds(),
			limit.Max,
			value,
		).Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		switch res {
		case 1:
			code.Value = value
			return code, nil
		case -1:
			return nil, ErrRateLimited
		}
	}

	return nil, ErrCodeCollision
}

// Consume deletes the code and returns its owner. It succeeds at most once
// per code, even under concurrent callers. A code issued for a different
// purpose is left in place.
func (s *CodeStore) Consume(ctx context.Context, value string, purpose Purpose) (string, error) {
	if value == "" {
		return "", ErrCodeNotFound
	}
	key := s.key(value)

	for i := 0; i < maxConsumeRetries; i++ {
		var userID string

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrCodeNotFound
				}
				return err
			}

			code, err := decodeCodeRecord(data)
			if err != nil {
				return err
			}

			if code.Purpose != purpose {
				return ErrCodeNotFound
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			if !code.ExpiresAt.After(s.now()) {
				return ErrCodeNotFound
			}

			userID = code.UserID
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, ErrCodeNotFound), errors.Is(err, ErrCorrupt):
				return "", err
			default:
				return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		}

		return userID, nil
	}

	return "", ErrCodeNotFound
}

// Layout: version, purpose, created ms, expires ms, user id length, user id.
func encodeCodeRecord(code *Code) []byte {
	var buf bytes.Buffer
	buf.Grow(1 + 1 + 8 + 8 + 1 + len(code.UserID))

	buf.WriteByte(codeRecordVersionV1)
	buf.WriteByte(byte(code.Purpose))
	_ = binary.Write(&buf, binary.BigEndian, code.CreatedAt.UnixMilli())
	_ = binary.Write(&buf, binary.BigEndian, code.ExpiresAt.UnixMilli())
	buf.WriteByte(byte(len(code.UserID)))
	buf.WriteString(code.UserID)

	return buf.Bytes()
}

func decodeCodeRecord(data []byte) (*Code, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil || version != codeRecordVersionV1 {
		return nil, ErrCorrupt
	}
	purpose, err := r.ReadByte()
	if err != nil {
		return nil, ErrCorrupt
	}

	var createdAt, expiresAt int64
	if err := binary.Read(r, binary.BigEndian, &createdAt); err != nil {
		return nil, ErrCorrupt
	}
	if err := binary.Read(r, binary.BigEndian, &expiresAt); err != nil {
		return nil, ErrCorrupt
	}

	userLen, err := r.ReadByte()
	if err != nil || userLen == 0 {
		return nil, ErrCorrupt
	}
	userID := make([]byte, userLen)
	if _, err := io.ReadFull(r, userID); err != nil {
		return nil, ErrCorrupt
	}
	if r.Len() != 0 {
		return nil, ErrCorrupt
	}

	return &Code{
		UserID:    string(userID),
		Purpose:   Purpose(purpose),
		CreatedAt: time.UnixMilli(createdAt).UTC(),
		ExpiresAt: time.UnixMilli(expiresAt).UTC(),
	}, nil
}
