package authcore

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/logging"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/mfa"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
	"github.com/redis/go-redis/v9"
)

// dummyPassword is hashed once at build time; login verifies against it
// when the email is unknown.
const dummyPassword = "authcore-timing-equalizer"

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users     identity.Store
	notifier  notify.Notifier
	logger    *slog.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the client backing sessions, one-time codes and throttles.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserStore(store identity.Store) *Builder {
	b.users = store
	return b
}

// WithNotifier sets the message transport. Without one, messages are
// written to the engine logger.
func (b *Builder) WithNotifier(n notify.Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets the audit destination. Audit.Enabled must also be set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides time.Now for every time-dependent component.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the engine.
//
// Build may return an error when the builder was already used, the
// configuration is invalid, or Redis or the user store is missing.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.users == nil {
		return nil, errors.New("user store is required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	log := logging.NewSlogLogger(b.logger).With("source", "auth")

	codec, err := jwt.NewCodec(jwt.Config{
		Access: jwt.ClassConfig{
			Secret:   []byte(cfg.Tokens.AccessSecret),
			Audience: cfg.Tokens.AccessAudience,
			Lifetime: cfg.Tokens.AccessLifetime,
		},
		Refresh: jwt.ClassConfig{
			Secret:   []byte(cfg.Tokens.RefreshSecret),
			Audience: cfg.Tokens.RefreshAudience,
			Lifetime: cfg.Tokens.RefreshLifetime,
		},
		Issuer: cfg.Tokens.Issuer,
		Now:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	hasher, err := password.NewHasher(cfg.hasherConfig())
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	notifier := b.notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logging.NewSlogLogger(b.logger))
	}

	e := &Engine{
		config:   cfg,
		now:      now,
		log:      log,
		users:    b.users,
		notifier: notifier,
		tokens:   codec,
		hasher:   hasher,
		sessions: session.NewStore(b.redis, session.Config{
			Prefix:           cfg.Session.RedisPrefix,
			Lifetime:         codec.Lifetime(jwt.ClassRefresh),
			RenewalThreshold: cfg.Session.RenewalThreshold,
			StrictGeneration: cfg.Security.StrictRefreshRotation,
			Now:              now,
		}),
		codes: stores.NewCodeStore(b.redis, cfg.Codes.RedisPrefix, now),
		totp: mfa.New(mfa.Config{
			Issuer: cfg.MFA.Issuer,
			QRSize: cfg.MFA.QRSize,
			Now:    now,
		}),
		loginLimiter: limiters.NewLoginLimiter(b.redis, limiters.LoginConfig{
			MaxFailures:      cfg.Security.LoginMaxFailures,
			Window:           cfg.Security.LoginFailureWindow,
			EnableIPThrottle: cfg.Security.EnableIPThrottle,
		}, now),
		mfaLimiter: limiters.NewMFALoginLimiter(b.redis, limiters.MFALoginConfig{
			MaxAttempts: cfg.MFA.LoginMaxAttempts,
			Window:      cfg.MFA.LoginWindow,
		}, now),
		metrics: NewMetrics(cfg.Metrics),
	}

	if cfg.Audit.Enabled {
		e.audit = audit.NewDispatcher(audit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink)
	}

	e.flow = e.newFlowService(dummyHash)
	b.built = true

	return e, nil
}
