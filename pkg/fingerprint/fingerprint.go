package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
)

// hashedPrefix marks fingerprints derived from the raw user-agent hash
// fallback rather than parsed device attributes
const hashedPrefix = "ua-hash:"

// Generator derives stable device fingerprints from user-agent strings.
// The fingerprint is a SHA-256 hash of the combined device attributes:
// device name, OS name, brand, and model. It is deliberately coarse; real
// devices reporting identical attributes collide, and that is accepted.
type Generator struct {
	parser Parser
}

// NewGenerator creates a fingerprint generator backed by the given parser.
// A nil parser degrades every fingerprint to the hashed-UA fallback.
func NewGenerator(parser Parser) *Generator {
	return &Generator{parser: parser}
}

// NewDefaultGenerator creates a generator with the default user-agent parser
func NewDefaultGenerator() *Generator {
	return NewGenerator(NewUAParser())
}

// Fingerprint derives a device fingerprint from a user-agent string.
// Pure function of its input: no side effects, never fails. An empty
// user-agent yields the fixed all-sentinel fingerprint; an unavailable
// parser yields a deterministic hash of the raw string.
func (g *Generator) Fingerprint(userAgent string) string {
	if userAgent == "" {
		return hashAttributes(DeviceAttributes{}.withDefaults())
	}

	if g.parser == nil {
		return hashRawUserAgent(userAgent)
	}

	attrs, err := g.parser.Parse(userAgent)
	if err != nil {
		slog.Debug("User agent parser unavailable, falling back to hashed fingerprint", "error", err)
		return hashRawUserAgent(userAgent)
	}

	return hashAttributes(attrs.withDefaults())
}

// RequestFingerprint is a convenience that derives a fingerprint from an
// HTTP request's User-Agent header
func (g *Generator) RequestFingerprint(r *http.Request) string {
	return g.Fingerprint(r.UserAgent())
}

// hashAttributes creates a SHA-256 hash of the combined device attributes
func hashAttributes(attrs DeviceAttributes) string {
	combined := fmt.Sprintf("%s|%s|%s|%s",
		attrs.DeviceName,
		attrs.OSName,
		attrs.Brand,
		attrs.Model,
	)

	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// hashRawUserAgent creates the degraded fingerprint from the raw user-agent
func hashRawUserAgent(userAgent string) string {
	hash := sha256.Sum256([]byte(userAgent))
	return hashedPrefix + hex.EncodeToString(hash[:])
}
