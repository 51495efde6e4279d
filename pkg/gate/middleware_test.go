package gate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/device-gate/pkg/client"
	"github.com/tendant/device-gate/pkg/fingerprint"
	"github.com/tendant/device-gate/pkg/slot"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) NotifyBlocked(_ context.Context, userID uuid.UUID, fingerprint string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, userID.String()+":"+fingerprint)
	return nil
}

type failingTerminator struct {
	calls int
}

func (t *failingTerminator) TerminateSession(w http.ResponseWriter, r *http.Request) error {
	t.calls++
	return errors.New("session backend unavailable")
}

func setupMiddleware(t *testing.T, maxDevices int, config MiddlewareConfig) (*Middleware, *Service) {
	repo := slot.NewInMemRepositoryWithOptions(slot.RepositoryOptions{MaxDevices: maxDevices})
	service := NewService(repo, fingerprint.NewDefaultGenerator())
	if config.DenialURL == "" {
		config.DenialURL = "/device-limit"
	}
	m := NewMiddleware(service, config, client.NewCookieSessionTerminator(true, false))
	return m, service
}

func authedRequest(userID uuid.UUID, path, userAgent string, roles ...string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.Header.Set("User-Agent", userAgent)
	authUser := &client.AuthUser{
		UserId:   userID.String(),
		UserUuid: userID,
		ExtraClaims: client.ExtraClaims{
			Roles: roles,
		},
	}
	return r.WithContext(context.WithValue(r.Context(), client.AuthUserKey, authUser))
}

func nextProbe() (http.Handler, *bool) {
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}), &called
}

func TestHandler_AllowedUserPassesThrough(t *testing.T) {
	m, _ := setupMiddleware(t, 1, MiddlewareConfig{})
	next, called := nextProbe()
	userID := uuid.New()

	rec := httptest.NewRecorder()
	m.Handler(next).ServeHTTP(rec, authedRequest(userID, "/dashboard", uaDeviceA))

	assert.True(t, *called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_UnauthenticatedPassesThrough(t *testing.T) {
	m, _ := setupMiddleware(t, 1, MiddlewareConfig{})
	next, called := nextProbe()

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	m.Handler(next).ServeHTTP(rec, r)

	assert.True(t, *called)
}

func TestHandler_AdminExempt(t *testing.T) {
	// An administrator is never gated, even with the cap already spent
	m, service := setupMiddleware(t, 1, MiddlewareConfig{})
	next, called := nextProbe()
	userID := uuid.New()

	_, err := service.CheckAdmission(context.Background(), userID, uaDeviceA)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.Handler(next).ServeHTTP(rec, authedRequest(userID, "/dashboard", uaDeviceB, "admin"))

	assert.True(t, *called)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The admin's second device never touched the record
	blocked, err := service.IsBlocked(context.Background(), userID)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestHandler_BlocksAndRedirects(t *testing.T) {
	notifier := &recordingNotifier{}
	m, service := setupMiddleware(t, 1, MiddlewareConfig{DenialURL: "/device-limit"})
	m.WithNotifier(notifier)
	next, called := nextProbe()
	userID := uuid.New()

	_, err := service.CheckAdmission(context.Background(), userID, uaDeviceA)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.Handler(next).ServeHTTP(rec, authedRequest(userID, "/dashboard", uaDeviceB))

	assert.False(t, *called)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/device-limit", rec.Header().Get("Location"))

	// Session cookies are expired as part of the forced logout
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		assert.Equal(t, -1, c.MaxAge)
	}

	// Notified exactly once, on the transition
	assert.Len(t, notifier.calls, 1)

	// A later request from the same device repeats the redirect but not
	// the notification
	rec = httptest.NewRecorder()
	m.Handler(next).ServeHTTP(rec, authedRequest(userID, "/dashboard", uaDeviceB))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Len(t, notifier.calls, 1)
}

func TestHandler_BlockPersistsWhenLogoutFails(t *testing.T) {
	// Redirect intent is durable: the blocked flag is written before the
	// session teardown, so a failing terminator cannot lose the block
	repo := slot.NewInMemRepositoryWithOptions(slot.RepositoryOptions{MaxDevices: 1})
	service := NewService(repo, fingerprint.NewDefaultGenerator())
	terminator := &failingTerminator{}
	m := NewMiddleware(service, MiddlewareConfig{DenialURL: "/device-limit"}, terminator)
	next, _ := nextProbe()
	userID := uuid.New()

	_, err := service.CheckAdmission(context.Background(), userID, uaDeviceA)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.Handler(next).ServeHTTP(rec, authedRequest(userID, "/dashboard", uaDeviceB))

	assert.Equal(t, 1, terminator.calls)
	assert.Equal(t, http.StatusFound, rec.Code)

	blocked, err := service.IsBlocked(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestHandler_DenialPathNeverGated(t *testing.T) {
	// Loop prevention: a blocked user must be able to load the denial
	// page itself
	m, service := setupMiddleware(t, 1, MiddlewareConfig{DenialURL: "/device-limit"})
	next, called := nextProbe()
	userID := uuid.New()

	_, err := service.CheckAdmission(context.Background(), userID, uaDeviceA)
	require.NoError(t, err)
	_, err = service.CheckAdmission(context.Background(), userID, uaDeviceB)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.Handler(next).ServeHTTP(rec, authedRequest(userID, "/device-limit", uaDeviceB))

	assert.True(t, *called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_AbsoluteDenialURLLoopPrevention(t *testing.T) {
	m, service := setupMiddleware(t, 1, MiddlewareConfig{
		DenialURL: "https://accounts.example.com/device-limit",
	})
	next, called := nextProbe()
	userID := uuid.New()

	_, err := service.CheckAdmission(context.Background(), userID, uaDeviceA)
	require.NoError(t, err)
	_, err = service.CheckAdmission(context.Background(), userID, uaDeviceB)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.Handler(next).ServeHTTP(rec, authedRequest(userID, "/device-limit", uaDeviceB))

	assert.True(t, *called)
}

func TestHandler_BypassPrefixes(t *testing.T) {
	m, service := setupMiddleware(t, 1, MiddlewareConfig{
		DenialURL:      "/device-limit",
		BypassPrefixes: []string{"/admin", "/internal/session"},
	})
	next, called := nextProbe()
	userID := uuid.New()

	_, err := service.CheckAdmission(context.Background(), userID, uaDeviceA)
	require.NoError(t, err)
	_, err = service.CheckAdmission(context.Background(), userID, uaDeviceB)
	require.NoError(t, err)

	for _, path := range []string{"/admin/users", "/internal/session/refresh"} {
		*called = false
		rec := httptest.NewRecorder()
		m.Handler(next).ServeHTTP(rec, authedRequest(userID, path, uaDeviceB))
		assert.True(t, *called, "path %s should bypass the gate", path)
	}
}

func TestRedirector_BlockedUser(t *testing.T) {
	m, service := setupMiddleware(t, 1, MiddlewareConfig{DenialURL: "/device-limit"})
	next, called := nextProbe()
	userID := uuid.New()

	// Not blocked yet: pass through, and the redirector performs no
	// admission writes of its own
	rec := httptest.NewRecorder()
	m.Redirector(next).ServeHTTP(rec, authedRequest(userID, "/dashboard", uaDeviceA))
	assert.True(t, *called)

	_, err := service.CheckAdmission(context.Background(), userID, uaDeviceA)
	require.NoError(t, err)
	_, err = service.CheckAdmission(context.Background(), userID, uaDeviceB)
	require.NoError(t, err)

	// Blocked: every path redirects, whatever device is asking
	*called = false
	rec = httptest.NewRecorder()
	m.Redirector(next).ServeHTTP(rec, authedRequest(userID, "/reports", uaDeviceA))
	assert.False(t, *called)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/device-limit", rec.Header().Get("Location"))

	// Except the denial page itself
	rec = httptest.NewRecorder()
	m.Redirector(next).ServeHTTP(rec, authedRequest(userID, "/device-limit", uaDeviceA))
	assert.True(t, *called)
}

func TestRedirector_UnauthenticatedPassesThrough(t *testing.T) {
	m, _ := setupMiddleware(t, 1, MiddlewareConfig{})
	next, called := nextProbe()

	rec := httptest.NewRecorder()
	m.Redirector(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.True(t, *called)
}
