package revoke

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	deviceerrors "github.com/tendant/device-gate/pkg/errors"
)

// DefaultTokenExpiry bounds how long a revocation token stays redeemable
const DefaultTokenExpiry = 5 * time.Minute

const tokenAudience = "device-gate-revoke"

// ActionTokenService issues and redeems single-use revocation tokens. A
// token is bound to one target user and one action: redeeming it a second
// time, or against a different user, fails.
type ActionTokenService struct {
	secret []byte
	issuer string
	expiry time.Duration

	mu   sync.Mutex
	used map[string]time.Time
}

// NewActionTokenService creates a token service with the default expiry
func NewActionTokenService(secret, issuer string) *ActionTokenService {
	return NewActionTokenServiceWithExpiry(secret, issuer, DefaultTokenExpiry)
}

// NewActionTokenServiceWithExpiry creates a token service with a custom
// expiry window
func NewActionTokenServiceWithExpiry(secret, issuer string, expiry time.Duration) *ActionTokenService {
	if expiry <= 0 {
		expiry = DefaultTokenExpiry
	}
	return &ActionTokenService{
		secret: []byte(secret),
		issuer: issuer,
		expiry: expiry,
		used:   make(map[string]time.Time),
	}
}

// Issue mints a single-use token authorizing revocation of the target user
func (s *ActionTokenService) Issue(targetUserID uuid.UUID) (string, time.Time, error) {
	if targetUserID == uuid.Nil {
		return "", time.Time{}, deviceerrors.InvalidTarget("target user id must not be zero")
	}

	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   targetUserID.String(),
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{tokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		ID:        uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		slog.Error("Failed to sign revocation token", "err", err)
		return "", time.Time{}, fmt.Errorf("failed to sign revocation token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Redeem validates a token against the target user and consumes it. The
// token id is remembered until its expiry so a replay within the validity
// window is rejected.
func (s *ActionTokenService) Redeem(tokenStr string, targetUserID uuid.UUID) error {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithAudience(tokenAudience), jwt.WithIssuer(s.issuer))
	if err != nil || token == nil || !token.Valid {
		slog.Warn("Invalid revocation token", "targetUserID", targetUserID, "err", err)
		return deviceerrors.Wrap(err, deviceerrors.ErrCodeTokenInvalid, "revocation token is invalid or expired")
	}

	if claims.Subject != targetUserID.String() {
		slog.Warn("Revocation token subject mismatch",
			"tokenSubject", claims.Subject, "targetUserID", targetUserID)
		return deviceerrors.New(deviceerrors.ErrCodeTokenInvalid, "revocation token was issued for a different user")
	}
	if claims.ID == "" {
		return deviceerrors.New(deviceerrors.ErrCodeTokenInvalid, "revocation token has no id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(time.Now().UTC())

	if _, replayed := s.used[claims.ID]; replayed {
		slog.Warn("Revocation token replayed", "tokenID", claims.ID, "targetUserID", targetUserID)
		return deviceerrors.New(deviceerrors.ErrCodeTokenReplayed, "revocation token has already been used")
	}
	s.used[claims.ID] = claims.ExpiresAt.Time
	return nil
}

// pruneLocked drops remembered token ids that are past their expiry and
// can no longer validate anyway. Caller holds the mutex.
func (s *ActionTokenService) pruneLocked(now time.Time) {
	for id, expiresAt := range s.used {
		if now.After(expiresAt) {
			delete(s.used, id)
		}
	}
}
