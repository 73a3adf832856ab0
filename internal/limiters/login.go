package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLoginRateLimited = errors.New("login rate limited")
	ErrLoginUnavailable = errors.New("login limiter unavailable")
)

// LoginConfig configures the failed-login throttle. MaxFailures <= 0
// disables it.
type LoginConfig struct {
	MaxFailures      int
	Window           time.Duration
	EnableIPThrottle bool
}

// LoginLimiter counts failed password logins per email and, optionally,
// per client IP.
type LoginLimiter struct {
	byEmail *rate.Window
	byIP    *rate.Window
	ip      bool
}

// NewLoginLimiter returns nil when cfg disables the throttle, which the
// nil-safe methods treat as "always allow".
func NewLoginLimiter(redisClient redis.UniversalClient, cfg LoginConfig, now func() time.Time) *LoginLimiter {
	if cfg.MaxFailures <= 0 || cfg.Window <= 0 {
		return nil
	}
	limit := rate.Limit{Max: cfg.MaxFailures, Window: cfg.Window}
	return &LoginLimiter{
		byEmail: rate.NewWindow(redisClient, "alf:", limit, now),
		byIP:    rate.NewWindow(redisClient, "alfi:", limit, now),
		ip:      cfg.EnableIPThrottle,
	}
}

// Check rejects the attempt when either budget is exhausted.
func (l *LoginLimiter) Check(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.byEmail.Check(ctx, email); err != nil {
		return mapLogin(err)
	}
	if l.ip && ip != "" {
		if err := l.byIP.Check(ctx, ip); err != nil {
			return mapLogin(err)
		}
	}
	return nil
}

// RecordFailure spends one unit of each budget.
func (l *LoginLimiter) RecordFailure(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	if _, err := l.byEmail.Record(ctx, email); err != nil {
		return mapLogin(err)
	}
	if l.ip && ip != "" {
		if _, err := l.byIP.Record(ctx, ip); err != nil {
			return mapLogin(err)
		}
	}
	return nil
}

// Reset clears the per-email budget after a successful login. The IP budget
// is left alone so one good account cannot launder a spraying client.
func (l *LoginLimiter) Reset(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}
	return mapLogin(l.byEmail.Reset(ctx, email))
}

func mapLogin(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrLoginRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrLoginUnavailable, err)
	}
}
