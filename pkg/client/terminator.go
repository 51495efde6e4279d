package client

import (
	"log/slog"
	"net/http"
)

// SessionTerminator force-ends the current session. The host session system
// owns session state; this boundary lets the gate trigger a logout without
// knowing how sessions are stored.
type SessionTerminator interface {
	TerminateSession(w http.ResponseWriter, r *http.Request) error
}

// CookieSessionTerminator terminates cookie-based sessions by expiring the
// access and refresh token cookies
type CookieSessionTerminator struct {
	Path     string
	HttpOnly bool
	Secure   bool
}

// NewCookieSessionTerminator creates a cookie-based session terminator
func NewCookieSessionTerminator(httpOnly, secure bool) *CookieSessionTerminator {
	return &CookieSessionTerminator{
		Path:     "/",
		HttpOnly: httpOnly,
		Secure:   secure,
	}
}

// TerminateSession clears the session token cookies
func (t *CookieSessionTerminator) TerminateSession(w http.ResponseWriter, r *http.Request) error {
	for _, tokenName := range []string{ACCESS_TOKEN_NAME, REFRESH_TOKEN_NAME} {
		cookie := &http.Cookie{
			Name:     tokenName,
			Path:     t.Path,
			Value:    "",
			MaxAge:   -1,
			HttpOnly: t.HttpOnly,
			Secure:   t.Secure,
		}
		http.SetCookie(w, cookie)
	}

	slog.Info("Session terminated", "path", r.URL.Path)
	return nil
}
