package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
)

type ExtraClaims struct {
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

type AuthUser struct {
	UserId string `json:"user_id,omitempty"`
	// UserUuid is the parsed form of UserId, convenient for storage keys
	UserUuid    uuid.UUID
	ExtraClaims ExtraClaims `json:"extra_claims,omitempty"`
}

func (i AuthUser) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user", i.UserId),
		slog.Any("extra_claims", i.ExtraClaims),
	)
}

// contextKey is a value for use with context.WithValue. It's used as
// a pointer so it fits in an interface{} without allocation. This technique
// for defining context keys was copied from Go 1.7's new use of context in net/http.
type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "device-gate context value " + k.name
}

const (
	ACCESS_TOKEN_NAME  = "access_token"
	REFRESH_TOKEN_NAME = "refresh_token"
)

var (
	AuthUserKey = &contextKey{"AuthUser"}
)

// AuthContext describes the authentication state of a request as seen by
// the gate and the admin surface
type AuthContext struct {
	IsAuthenticated bool
	User            *AuthUser
}

// HasAnyRole checks if the authenticated user has any of the given roles
func (c *AuthContext) HasAnyRole(roles ...string) bool {
	if c.User == nil {
		return false
	}
	for _, userRole := range c.User.ExtraClaims.Roles {
		for _, role := range roles {
			if userRole == role {
				return true
			}
		}
	}
	return false
}

// GetAuthContext extracts the authentication state from the request context.
// Requests that never passed AuthUserMiddleware are unauthenticated.
func GetAuthContext(r *http.Request) *AuthContext {
	authUser, ok := r.Context().Value(AuthUserKey).(*AuthUser)
	if !ok || authUser == nil {
		return &AuthContext{IsAuthenticated: false}
	}
	return &AuthContext{IsAuthenticated: true, User: authUser}
}

func LoadFromMap[T any](m map[string]interface{}, c *T) error {
	data, err := json.Marshal(m)
	if err == nil {
		err = json.Unmarshal(data, c)
	}
	return err
}

// AuthUserMiddleware extracts the authenticated user from verified JWT
// claims and stores it in the request context. Must be used after a
// jwtauth verifier and authenticator.
func AuthUserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, jwtClaims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			http.Error(w, fmt.Sprintf("missing or invalid JWT: %v", err), http.StatusUnauthorized)
			return
		}
		if jwtClaims == nil {
			http.Error(w, "missing JWT claims", http.StatusUnauthorized)
			return
		}

		claims := make(map[string]interface{}, len(jwtClaims))
		for k, v := range jwtClaims {
			claims[k] = v
		}

		authUser := new(AuthUser)

		// Process extra claims if they exist
		if extraClaimsRaw, exists := claims["extra_claims"]; exists {
			extraClaims, ok := extraClaimsRaw.(map[string]interface{})
			if !ok {
				http.Error(w, "invalid extra claims format", http.StatusUnauthorized)
				return
			}
			if err := LoadFromMap(extraClaims, &authUser.ExtraClaims); err != nil {
				slog.Error("failed to parse extra claims", "error", err)
				http.Error(w, "invalid extra claims data", http.StatusUnauthorized)
				return
			}
		}

		// Also load standard claims directly from the token
		if err := LoadFromMap(claims, authUser); err != nil {
			slog.Error("failed to parse standard claims", "error", err)
			http.Error(w, "invalid token claims", http.StatusUnauthorized)
			return
		}

		// The subject claim carries the user id when user_id is absent
		if authUser.UserId == "" {
			if sub, ok := claims["sub"].(string); ok {
				authUser.UserId = sub
			}
		}
		if authUser.UserId == "" {
			http.Error(w, "missing user ID in token", http.StatusUnauthorized)
			return
		}

		userUUID, err := uuid.Parse(authUser.UserId)
		if err != nil {
			slog.Warn("failed to parse user ID as UUID", "userId", authUser.UserId, "error", err)
			// Continue processing as we have the string version
		} else {
			authUser.UserUuid = userUUID
		}

		slog.Debug("authenticated user", "userId", authUser.UserId, "roles", authUser.ExtraClaims.Roles)

		ctx := context.WithValue(r.Context(), AuthUserKey, authUser)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Verifier wraps jwtauth.Verify with cookie and header token extraction
func Verifier(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return jwtauth.Verify(ja, jwtauth.TokenFromHeader, TokenFromCookie)(next)
	}
}

func TokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(ACCESS_TOKEN_NAME)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// IsAdmin checks if the user has the "admin" or "superadmin" role
func IsAdmin(user *AuthUser) bool {
	return IsAdminWithRoles(user, []string{"admin", "superadmin"})
}

// IsAdminWithRoles checks if the user has any of the specified admin roles
func IsAdminWithRoles(user *AuthUser, adminRoles []string) bool {
	if user == nil || user.ExtraClaims.Roles == nil {
		return false
	}

	for _, userRole := range user.ExtraClaims.Roles {
		for _, adminRole := range adminRoles {
			if userRole == adminRole {
				return true
			}
		}
	}

	return false
}
