package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/redis/go-redis/v9"
)

const (
	defaultMFALoginMaxAttempts = 5
	defaultMFALoginWindow      = 5 * time.Minute
)

var (
	ErrMFALoginRateLimited = errors.New("mfa login rate limited")
	ErrMFALoginUnavailable = errors.New("mfa login limiter unavailable")
)

// MFALoginConfig holds the thresholds for second-factor login attempts.
type MFALoginConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// MFALoginLimiter counts every code submission per user. A successful
// verification resets the budget.
type MFALoginLimiter struct {
	window *rate.Window
}

// NewMFALoginLimiter creates the limiter. Zero-value fields in cfg fall back
// to 5 attempts per 5 minutes.
func NewMFALoginLimiter(redisClient redis.UniversalClient, cfg MFALoginConfig, now func() time.Time) *MFALoginLimiter {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultMFALoginMaxAttempts
	}
	win := cfg.Window
	if win <= 0 {
		win = defaultMFALoginWindow
	}
	return &MFALoginLimiter{
		window: rate.NewWindow(redisClient, "amfl:", rate.Limit{Max: max, Window: win}, now),
	}
}

// Attempt spends one unit of the user's budget.
func (l *MFALoginLimiter) Attempt(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	return mapMFALogin(l.window.Allow(ctx, userID))
}

// Reset restores the user's budget after a successful verification.
func (l *MFALoginLimiter) Reset(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	return mapMFALogin(l.window.Reset(ctx, userID))
}

func mapMFALogin(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrMFALoginRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrMFALoginUnavailable, err)
	}
}
