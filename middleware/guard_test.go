package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/authcore"
)

type fakeAuthenticator struct {
	tokens map[string]authcore.Principal
	err    error
	seen   string
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, token string) (*authcore.Principal, error) {
	f.seen = token
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.tokens[token]
	if !ok {
		return nil, authcore.ErrTokenInvalid
	}
	return &p, nil
}

func principalEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Fatal("expected principal in context")
		}
		_, _ = w.Write([]byte(p.UserID + "/" + p.SessionID))
	})
}

func TestGuardAcceptsCookieAndBearer(t *testing.T) {
	auth := &fakeAuthenticator{tokens: map[string]authcore.Principal{
		"good": {UserID: "u1", SessionID: "s1"},
	}}
	h := Guard(auth, nil)(principalEcho(t))

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "good"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "u1/s1" {
		t.Fatalf("cookie: unexpected response %d %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/session", nil)
	req.Header.Set("Authorization", "bearer good")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer: unexpected status %d", rec.Code)
	}
}

func TestGuardCookieWinsOverHeader(t *testing.T) {
	auth := &fakeAuthenticator{tokens: map[string]authcore.Principal{"cookie": {UserID: "u1"}}}
	h := Guard(auth, nil)(principalEcho(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "cookie"})
	req.Header.Set("Authorization", "Bearer header")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if auth.seen != "cookie" {
		t.Fatalf("expected cookie token, got %q", auth.seen)
	}
}

func TestGuardRejects(t *testing.T) {
	cases := []struct {
		name   string
		header string
		err    error
		status int
		code   string
	}{
		{"missing", "", nil, http.StatusUnauthorized, "AUTH_TOKEN_NOT_FOUND"},
		{"malformed header", "Basic abc", nil, http.StatusUnauthorized, "AUTH_TOKEN_NOT_FOUND"},
		{"invalid", "Bearer bad", nil, http.StatusUnauthorized, "AUTH_INVALID_TOKEN"},
		{"session gone", "Bearer x", authcore.ErrSessionNotFound, http.StatusUnauthorized, "AUTH_SESSION_NOT_FOUND"},
		{"backend down", "Bearer x", fmt.Errorf("%w: dial tcp", authcore.ErrStoreUnavailable), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			auth := &fakeAuthenticator{err: tc.err}
			h := Guard(auth, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatal("next must not run")
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			var body errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.ErrorCode != tc.code {
				t.Fatalf("expected %s, got %s", tc.code, body.ErrorCode)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if ip := clientIP(req, true); ip != "203.0.113.7" {
		t.Fatalf("expected forwarded ip, got %q", ip)
	}
	if ip := clientIP(req, false); ip != "10.0.0.1" {
		t.Fatalf("expected remote ip, got %q", ip)
	}
}
