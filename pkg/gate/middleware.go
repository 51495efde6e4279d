package gate

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/tendant/device-gate/pkg/client"
)

// BlockNotifier is told when a user transitions into the blocked state.
// Implementations must not fail the request path; errors are logged and
// swallowed by the middleware.
type BlockNotifier interface {
	NotifyBlocked(ctx context.Context, userID uuid.UUID, fingerprint string) error
}

// MiddlewareConfig holds the HTTP-facing configuration of the gate
type MiddlewareConfig struct {
	// DenialURL is the fixed destination blocked users are sent to
	DenialURL string
	// AdminRoles are exempt from the device cap
	AdminRoles []string
	// BypassPrefixes are path prefixes the redirector never intercepts
	// (admin console, internal/session APIs) so a blocked account can
	// still be revoked and the session layer stays reachable
	BypassPrefixes []string
}

// Middleware enforces the device cap on authenticated requests
type Middleware struct {
	service    *Service
	config     MiddlewareConfig
	terminator client.SessionTerminator
	notifier   BlockNotifier
}

// NewMiddleware creates the gate middleware
func NewMiddleware(service *Service, config MiddlewareConfig, terminator client.SessionTerminator) *Middleware {
	if len(config.AdminRoles) == 0 {
		config.AdminRoles = []string{"admin", "superadmin"}
	}
	return &Middleware{
		service:    service,
		config:     config,
		terminator: terminator,
	}
}

// WithNotifier attaches a block notifier
func (m *Middleware) WithNotifier(notifier BlockNotifier) *Middleware {
	m.notifier = notifier
	return m
}

// Handler runs the admission gate on every authenticated, non-administrator
// request. Administrators and unauthenticated requests pass through
// untouched.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, exempt := m.subject(r)
		if exempt {
			next.ServeHTTP(w, r)
			return
		}

		// The denial page itself is never gated, otherwise a blocked
		// user could not land anywhere
		if m.isDenialPath(r) || m.isBypassPath(r) {
			next.ServeHTTP(w, r)
			return
		}

		result, err := m.service.CheckAdmission(r.Context(), userID, r.UserAgent())
		if err != nil {
			slog.Error("Admission check failed", "userID", userID, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if result.Decision != DecisionBlocked {
			next.ServeHTTP(w, r)
			return
		}

		// The blocked flag is already persisted at this point, so the
		// redirect intent survives an interrupted logout: the next
		// request is caught by Redirector no matter what happens below.
		if result.Transitioned {
			m.notifyBlocked(r.Context(), userID, result.Fingerprint)
		}

		if err := m.terminator.TerminateSession(w, r); err != nil {
			slog.Error("Failed to terminate session for blocked user", "userID", userID, "error", err)
		}

		http.Redirect(w, r, m.config.DenialURL, http.StatusFound)
	})
}

// Redirector intercepts every request from an already-blocked user and
// forces navigation to the denial destination. It runs independently of the
// admission gate so blocking persists across the forced logout. Requests
// already targeting the denial destination or a bypass prefix pass through.
func (m *Middleware) Redirector(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, exempt := m.subject(r)
		if exempt {
			next.ServeHTTP(w, r)
			return
		}

		if m.isDenialPath(r) || m.isBypassPath(r) {
			next.ServeHTTP(w, r)
			return
		}

		blocked, err := m.service.IsBlocked(r.Context(), userID)
		if err != nil {
			slog.Error("Block state check failed", "userID", userID, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if blocked {
			http.Redirect(w, r, m.config.DenialURL, http.StatusFound)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// subject extracts the user the gate applies to. Unauthenticated requests,
// administrators, and tokens without a usable user id are exempt.
func (m *Middleware) subject(r *http.Request) (uuid.UUID, bool) {
	authCtx := client.GetAuthContext(r)
	if !authCtx.IsAuthenticated {
		return uuid.Nil, true
	}
	if authCtx.HasAnyRole(m.config.AdminRoles...) {
		return uuid.Nil, true
	}
	if authCtx.User.UserUuid == uuid.Nil {
		slog.Warn("Authenticated user without parseable user id, skipping device gate",
			"userId", authCtx.User.UserId)
		return uuid.Nil, true
	}
	return authCtx.User.UserUuid, false
}

// isDenialPath reports whether the request already targets the denial
// destination (loop prevention)
func (m *Middleware) isDenialPath(r *http.Request) bool {
	denial := m.config.DenialURL
	if u, err := url.Parse(denial); err == nil && u.Path != "" {
		denial = u.Path
	}
	return r.URL.Path == denial
}

// isBypassPath reports whether the request targets an administrative or
// internal route
func (m *Middleware) isBypassPath(r *http.Request) bool {
	for _, prefix := range m.config.BypassPrefixes {
		if prefix != "" && strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// notifyBlocked tells the notifier about a fresh block, never failing the
// request
func (m *Middleware) notifyBlocked(ctx context.Context, userID uuid.UUID, fp string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.NotifyBlocked(ctx, userID, fp); err != nil {
		slog.Error("Failed to send block notification", "userID", userID, "error", err)
	}
}
