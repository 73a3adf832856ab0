package rate

import "errors"

var (
	// ErrRateLimited is returned when a key has used up its window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps backend failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
