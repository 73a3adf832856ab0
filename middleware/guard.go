package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
)

// AccessTokenCookie is the cookie the access token is read from before the
// Authorization header is consulted.
const AccessTokenCookie = "accessToken"

// Authenticator resolves an access token to the calling principal.
// *authcore.Engine satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*authcore.Principal, error)
}

// ErrorWriter renders a rejected request.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by Guard.
func PrincipalFromContext(ctx context.Context) (authcore.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(authcore.Principal)
	return p, ok
}

// WithPrincipal stores p in ctx the way Guard does. Handlers under test use
// it to skip authentication.
func WithPrincipal(ctx context.Context, p authcore.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// Guard rejects requests without a valid access token and stores the
// principal in the request context. A nil onError writes a JSON error body.
func Guard(auth Authenticator, onError ErrorWriter) func(http.Handler) http.Handler {
	if onError == nil {
		onError = WriteJSONError
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				onError(w, r, authcore.ErrUnauthorized)
				return
			}

			token, ok := AccessToken(r)
			if !ok {
				onError(w, r, authcore.ErrTokenMissing)
				return
			}

			p, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				onError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), *p)))
		})
	}
}

// AccessToken extracts the access token from the accessToken cookie or a
// Bearer Authorization header, in that order.
func AccessToken(r *http.Request) (string, bool) {
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

type errorBody struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

// WriteJSONError writes {message, errorCode}. Every client-side kind is
// reported as 401; internal failures keep 500.
func WriteJSONError(w http.ResponseWriter, _ *http.Request, err error) {
	status := authcore.KindOf(err).HTTPStatus()
	if status < http.StatusInternalServerError {
		status = http.StatusUnauthorized
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Message:   authcore.MessageOf(err),
		ErrorCode: authcore.CodeOf(err),
	})
}
