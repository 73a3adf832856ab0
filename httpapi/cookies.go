package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/authcore/middleware"
)

const refreshTokenCookie = "refreshToken"

// cookieJar writes the token cookies. The refresh cookie is scoped to the
// refresh route so it is never sent anywhere else.
type cookieJar struct {
	refreshPath string
	secure      bool
	sameSite    http.SameSite
}

func newCookieJar(basePath string, production bool) cookieJar {
	jar := cookieJar{
		refreshPath: basePath + "/auth/refresh",
		sameSite:    http.SameSiteLaxMode,
	}
	if production {
		jar.secure = true
		jar.sameSite = http.SameSiteNoneMode
	}
	return jar
}

func (c cookieJar) cookie(name, value, path string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expires,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: c.sameSite,
	}
}

func (c cookieJar) setAccess(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, c.cookie(middleware.AccessTokenCookie, token, "/", expires))
}

func (c cookieJar) setRefresh(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, c.cookie(refreshTokenCookie, token, c.refreshPath, expires))
}

func (c cookieJar) clear(w http.ResponseWriter) {
	for _, ck := range []*http.Cookie{
		c.cookie(middleware.AccessTokenCookie, "", "/", time.Time{}),
		c.cookie(refreshTokenCookie, "", c.refreshPath, time.Time{}),
	} {
		ck.MaxAge = -1
		http.SetCookie(w, ck)
	}
}
