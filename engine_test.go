package authcore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/session"
)

func TestBuildRequiresCollaborators(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected error without redis client")
	}

	env := newTestEnv(t, nil)
	if _, err := New().WithConfig(testConfig()).WithRedis(env.rdb).Build(); err == nil {
		t.Fatal("expected error without user store")
	}

	b := New().WithConfig(testConfig()).WithRedis(env.rdb).WithUserStore(env.users)
	if _, err := b.Build(); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestRegisterSendsConfirmationLinkAndVerifies(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	user, code := env.register(t, "  Alice@Example.COM ")
	if user.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.EmailVerified {
		t.Fatal("new user must not be verified")
	}

	msg := env.notifier.last(t)
	if msg.Kind != notify.KindEmailVerification || msg.To != "alice@example.com" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if !strings.HasPrefix(msg.Link, "http://localhost:3000/confirm-account?code=") {
		t.Fatalf("unexpected link %q", msg.Link)
	}
	if want := env.clock.Now().Add(45 * time.Minute); !msg.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, msg.ExpiresAt)
	}

	verified, err := env.engine.VerifyEmail(ctx, code)
	if err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	if !verified.EmailVerified {
		t.Fatal("expected verified user")
	}

	if _, err := env.engine.VerifyEmail(ctx, code); !errors.Is(err, ErrVerificationCodeInvalid) {
		t.Fatalf("expected ErrVerificationCodeInvalid on reuse, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricEmailVerificationSuccess]; got != 1 {
		t.Fatalf("expected 1 verification, got %d", got)
	}
}

func TestVerifyEmailExpiredCode(t *testing.T) {
	env := newTestEnv(t, nil)
	_, code := env.register(t, "alice@example.com")

	env.clock.Advance(46 * time.Minute)
	if _, err := env.engine.VerifyEmail(context.Background(), code); !errors.Is(err, ErrVerificationCodeInvalid) {
		t.Fatalf("expected ErrVerificationCodeInvalid, got %v", err)
	}
}

func TestRegisterDuplicateEmailCaseInsensitive(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice@example.com")

	_, err := env.engine.Register(context.Background(), RegisterInput{
		Name:     "Other",
		Email:    "ALICE@example.com",
		Password: testPassword,
	})
	if !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
	if env.notifier.count() != 1 {
		t.Fatalf("expected no second notification, got %d", env.notifier.count())
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.engine.Register(context.Background(), RegisterInput{
		Name:     "Alice",
		Email:    "alice@example.com",
		Password: "short",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if msg := FieldErrors(err)["password"]; msg != "Password must be at least 6 characters long" {
		t.Fatalf("unexpected password message %q", msg)
	}
	if KindOf(err) != KindValidation {
		t.Fatalf("expected KindValidation, got %v", KindOf(err))
	}
}

func TestRegisterNotificationFailureKeepsUser(t *testing.T) {
	env := newTestEnv(t, nil)
	env.notifier.err = errors.New("smtp down")

	user, err := env.engine.Register(context.Background(), RegisterInput{
		Name:     "Alice",
		Email:    "alice@example.com",
		Password: testPassword,
	})
	if !errors.Is(err, ErrNotificationFailed) {
		t.Fatalf("expected ErrNotificationFailed, got %v", err)
	}
	if user == nil {
		t.Fatal("expected created user alongside notification error")
	}
	if _, err := env.users.ByEmail(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("user should persist: %v", err)
	}
}

func TestLoginIssuesSessionAndAuthenticates(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.register(t, "alice@example.com")

	res := env.login(t, "Alice@Example.com")
	if res.MFARequired {
		t.Fatal("did not expect MFA")
	}
	if res.User == nil || res.User.Email != "alice@example.com" {
		t.Fatalf("unexpected user %+v", res.User)
	}

	p, err := env.engine.Authenticate(ctx, res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if p.UserID != res.User.ID || p.SessionID != res.Tokens.SessionID {
		t.Fatalf("unexpected principal %+v", p)
	}

	if _, err := env.engine.Authenticate(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh token must not authenticate, got %v", err)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.register(t, "alice@example.com")

	_, unknownErr := env.engine.Login(ctx, "nobody@example.com", testPassword, "")
	_, wrongErr := env.engine.Login(ctx, "alice@example.com", "wrong-password", "")

	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v / %v", unknownErr, wrongErr)
	}
	if MessageOf(unknownErr) != MessageOf(wrongErr) || CodeOf(unknownErr) != CodeOf(wrongErr) {
		t.Fatal("unknown email and wrong password must look identical")
	}
}

func TestLoginRequireVerifiedEmail(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Security.RequireVerifiedEmail = true
	})
	ctx := context.Background()
	_, code := env.register(t, "alice@example.com")

	if _, err := env.engine.Login(ctx, "alice@example.com", testPassword, ""); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}
	if _, err := env.engine.VerifyEmail(ctx, code); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	env.login(t, "alice@example.com")
}

func TestLoginThrottle(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Security.LoginMaxFailures = 2
	})
	ctx := context.Background()
	env.register(t, "alice@example.com")

	for i := 0; i < 2; i++ {
		if _, err := env.engine.Login(ctx, "alice@example.com", "bad-password", ""); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", testPassword, ""); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}

	env.clock.Advance(16 * time.Minute)
	env.login(t, "alice@example.com")
}

func TestLoginUsesContextUserAgent(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice@example.com")

	ctx := WithUserAgent(context.Background(), "ctx-agent")
	res, err := env.engine.Login(ctx, "alice@example.com", testPassword, "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	p := Principal{UserID: res.User.ID, SessionID: res.Tokens.SessionID}
	views, err := env.engine.ListSessions(ctx, p)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(views) != 1 || views[0].UserAgent != "ctx-agent" {
		t.Fatalf("unexpected sessions %+v", views)
	}
}

func TestRefreshRotatesOnlyNearExpiry(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.register(t, "alice@example.com")
	res := env.login(t, "alice@example.com")

	early, err := env.engine.Refresh(ctx, res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if early.Rotated || early.RefreshToken != "" {
		t.Fatal("fresh session must not rotate")
	}
	if early.AccessToken == "" || early.SessionID != res.Tokens.SessionID {
		t.Fatalf("unexpected refresh result %+v", early)
	}

	env.clock.Advance(29*24*time.Hour + time.Hour)
	late, err := env.engine.Refresh(ctx, res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh near expiry failed: %v", err)
	}
	if !late.Rotated || late.RefreshToken == "" {
		t.Fatal("expected rotation inside the renewal threshold")
	}
	if want := env.clock.Now().Add(30 * 24 * time.Hour); !late.RefreshExpiresAt.Equal(want) {
		t.Fatalf("expected refresh expiry %v, got %v", want, late.RefreshExpiresAt)
	}

	if _, err := env.engine.Authenticate(ctx, late.AccessToken); err != nil {
		t.Fatalf("Authenticate with refreshed access token failed: %v", err)
	}
}

func TestRefreshLenientKeepsOldTokenUsable(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.register(t, "alice@example.com")
	res := env.login(t, "alice@example.com")

	env.clock.Advance(29*24*time.Hour + time.Hour)
	if _, err := env.engine.Refresh(ctx, res.Tokens.RefreshToken); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, res.Tokens.RefreshToken); err != nil {
		t.Fatalf("old refresh token should stay valid without strict rotation: %v", err)
	}
}

func TestRefreshStrictRotationDetectsReuse(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Security.StrictRefreshRotation = true
	})
	ctx := context.Background()
	env.register(t, "alice@example.com")
	res := env.login(t, "alice@example.com")

	env.clock.Advance(29*24*time.Hour + time.Hour)
	rotated, err := env.engine.Refresh(ctx, res.Tokens.RefreshToken)
	if err != nil || !rotated.Rotated {
		t.Fatalf("expected rotation, got %+v, %v", rotated, err)
	}

	if _, err := env.engine.Refresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("reuse must revoke the session, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRefreshReuseDetected]; got != 1 {
		t.Fatalf("expected 1 reuse, got %d", got)
	}
}

func TestRefreshAfterTokenExpiryFails(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice@example.com")
	res := env.login(t, "alice@example.com")

	env.clock.Advance(31 * 24 * time.Hour)
	_, err := env.engine.Refresh(context.Background(), res.Tokens.RefreshToken)
	if KindOf(err) != KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestRefreshAndAuthenticateRejectExpiredSession(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.register(t, "alice@example.com")
	res := env.login(t, "alice@example.com")

	// Both tokens stay valid; only the stored session is past its expiry.
	key := "as:" + res.Tokens.SessionID
	raw, err := env.rdb.Get(ctx, key).Bytes()
	if err != nil {
		t.Fatalf("read session: %v", err)
	}
	sess, err := session.Decode(raw)
	if err != nil {
		t.Fatalf("decode session: %v", err)
	}
	sess.ExpiresAt = env.clock.Now().Add(-time.Second)
	data, err := session.Encode(sess)
	if err != nil {
		t.Fatalf("encode session: %v", err)
	}
	if err := env.rdb.Set(ctx, key, data, time.Hour).Err(); err != nil {
		t.Fatalf("write session: %v", err)
	}

	if _, err := env.engine.Refresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Refresh: expected ErrSessionExpired, got %v", err)
	}
	if _, err := env.engine.Authenticate(ctx, res.Tokens.AccessToken); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Authenticate: expected ErrSessionExpired, got %v", err)
	}

	views, err := env.engine.ListSessions(ctx, principalOf(res))
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("expired session must not be listed, got %+v", views)
	}
}

func TestLogoutInvalidatesAccessTokenImmediately(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.register(t, "alice@example.com")
	res := env.login(t, "alice@example.com")

	if err := env.engine.Logout(ctx, res.Tokens.SessionID); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := env.engine.Authenticate(ctx, res.Tokens.AccessToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := env.engine.Logout(ctx, res.Tokens.SessionID); err != nil {
		t.Fatalf("second Logout must succeed: %v", err)
	}
}

func TestLogoutAll(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user, _ := env.register(t, "alice@example.com")
	a := env.login(t, "alice@example.com")
	b := env.login(t, "alice@example.com")

	n, err := env.engine.LogoutAll(ctx, user.ID)
	if err != nil {
		t.Fatalf("LogoutAll failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 sessions revoked, got %d", n)
	}
	for _, tok := range []string{a.Tokens.AccessToken, b.Tokens.AccessToken} {
		if _, err := env.engine.Authenticate(ctx, tok); err == nil {
			t.Fatal("expected revoked session to fail authentication")
		}
	}
}

func TestPing(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.engine.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	env.mr.Close()
	if _, err := env.engine.Ping(context.Background()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
