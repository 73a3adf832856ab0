package jwt

import (
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func testConfig(clock *testClock) Config {
	return Config{
		Access: ClassConfig{
			Secret:   []byte("access-secret-0123456789"),
			Audience: "user",
			Lifetime: "15m",
		},
		Refresh: ClassConfig{
			Secret:   []byte("refresh-secret-0123456789"),
			Audience: "user",
			Lifetime: "30d",
		},
		Now: clock.Now,
	}
}

func newTestCodec(t testing.TB) (*Codec, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c, err := NewCodec(testConfig(clock))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c, clock
}

func TestSignVerifyAccessRoundTrip(t *testing.T) {
	c, clock := newTestCodec(t)

	token, exp, err := c.Sign(Claims{UserID: "u1", SessionID: "s1"}, ClassAccess)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if want := clock.now.Add(15 * time.Minute); !exp.Equal(want) {
		t.Fatalf("expiry = %v, want %v", exp, want)
	}

	claims, err := c.Verify(token, ClassAccess)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "u1" || claims.SessionID != "s1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "user" {
		t.Fatalf("unexpected audience: %v", claims.Audience)
	}
}

func TestRefreshTokenOmitsUserID(t *testing.T) {
	c, _ := newTestCodec(t)

	token, _, err := c.Sign(Claims{UserID: "u1", SessionID: "s1", Generation: 3}, ClassRefresh)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	claims, err := c.Verify(token, ClassRefresh)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "" {
		t.Fatalf("refresh token leaked user id %q", claims.UserID)
	}
	if claims.Generation != 3 {
		t.Fatalf("generation = %d, want 3", claims.Generation)
	}
}

func TestVerifyRejectsCrossClassTokens(t *testing.T) {
	c, _ := newTestCodec(t)

	refresh, _, err := c.Sign(Claims{SessionID: "s1"}, ClassRefresh)
	if err != nil {
		t.Fatalf("Sign refresh: %v", err)
	}
	if _, err := c.Verify(refresh, ClassAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}

	access, _, err := c.Sign(Claims{UserID: "u1", SessionID: "s1"}, ClassAccess)
	if err != nil {
		t.Fatalf("Sign access: %v", err)
	}
	if _, err := c.Verify(access, ClassRefresh); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access token accepted as refresh: %v", err)
	}
}

func TestVerifyExpiredAndForgedFailIdentically(t *testing.T) {
	c, clock := newTestCodec(t)

	token, _, err := c.Sign(Claims{UserID: "u1", SessionID: "s1"}, ClassAccess)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	otherCfg := testConfig(clock)
	otherCfg.Access.Secret = []byte("attacker-secret-0123456789")
	other, err := NewCodec(otherCfg)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	forged, _, err := other.Sign(Claims{UserID: "u1", SessionID: "s1"}, ClassAccess)
	if err != nil {
		t.Fatalf("Sign forged: %v", err)
	}
	_, forgedErr := c.Verify(forged, ClassAccess)

	clock.now = clock.now.Add(16 * time.Minute)
	_, expiredErr := c.Verify(token, ClassAccess)

	if forgedErr != ErrTokenInvalid || expiredErr != ErrTokenInvalid {
		t.Fatalf("expected identical ErrTokenInvalid, got forged=%v expired=%v", forgedErr, expiredErr)
	}
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	clock := &testClock{now: time.Now()}
	cfg := testConfig(clock)
	signer, err := NewCodec(cfg)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	cfg.Access.Audience = "admin"
	verifier, err := NewCodec(cfg)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	token, _, err := signer.Sign(Claims{UserID: "u1", SessionID: "s1"}, ClassAccess)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := verifier.Verify(token, ClassAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected wrong audience rejection, got %v", err)
	}
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	c, clock := newTestCodec(t)

	claims := Claims{
		UserID:    "u1",
		SessionID: "s1",
		RegisteredClaims: gjwt.RegisteredClaims{
			Audience:  gjwt.ClaimStrings{"user"},
			IssuedAt:  gjwt.NewNumericDate(clock.now),
			ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Minute)),
		},
	}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if _, err := c.Verify(token, ClassAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected none algorithm rejection, got %v", err)
	}
}

func TestNewCodecRejectsUnsafeConfig(t *testing.T) {
	clock := &testClock{now: time.Now()}

	shared := testConfig(clock)
	shared.Refresh.Secret = shared.Access.Secret
	if _, err := NewCodec(shared); err == nil {
		t.Fatal("expected shared secret rejection")
	}

	short := testConfig(clock)
	short.Access.Secret = []byte("short")
	if _, err := NewCodec(short); err == nil {
		t.Fatal("expected short secret rejection")
	}

	noAudience := testConfig(clock)
	noAudience.Refresh.Audience = ""
	if _, err := NewCodec(noAudience); err == nil {
		t.Fatal("expected missing audience rejection")
	}

	badLifetime := testConfig(clock)
	badLifetime.Access.Lifetime = "15s"
	if _, err := NewCodec(badLifetime); err == nil {
		t.Fatal("expected lifetime rejection")
	}
}
