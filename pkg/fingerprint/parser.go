package fingerprint

import (
	"errors"
	"strings"

	"github.com/mileusna/useragent"
)

// Sentinel attribute values used when the parser cannot report a field.
// Absent input still yields a deterministic fingerprint.
const (
	UnknownDevice = "unknown-device"
	UnknownOS     = "unknown-os"
	UnknownBrand  = "unknown-brand"
	UnknownModel  = "unknown-model"
)

// ErrParserUnavailable signals that the user-agent parsing capability could
// not produce device attributes. Callers degrade to a hashed fingerprint.
var ErrParserUnavailable = errors.New("user agent parser unavailable")

// DeviceAttributes contains the components used to generate a device fingerprint
type DeviceAttributes struct {
	DeviceName string
	OSName     string
	Brand      string
	Model      string
}

// withDefaults fills absent fields with the fixed sentinels
func (a DeviceAttributes) withDefaults() DeviceAttributes {
	if a.DeviceName == "" {
		a.DeviceName = UnknownDevice
	}
	if a.OSName == "" {
		a.OSName = UnknownOS
	}
	if a.Brand == "" {
		a.Brand = UnknownBrand
	}
	if a.Model == "" {
		a.Model = UnknownModel
	}
	return a
}

// Parser extracts device attributes from a raw user-agent string.
// Implementations return ErrParserUnavailable when they cannot produce
// attributes so the caller can fall back to a hashed fingerprint.
type Parser interface {
	Parse(userAgent string) (DeviceAttributes, error)
}

// UAParser implements Parser on top of the useragent library.
type UAParser struct{}

// NewUAParser creates a new user-agent backed parser
func NewUAParser() *UAParser {
	return &UAParser{}
}

// Parse extracts device attributes from the user-agent string.
// OS and browser version strings are kept in full; two devices differing
// only by a patch version produce different attributes when the library
// reports that difference.
func (p *UAParser) Parse(userAgentStr string) (DeviceAttributes, error) {
	ua := useragent.Parse(userAgentStr)

	attrs := DeviceAttributes{
		Model: ua.Device,
		Brand: determineBrand(userAgentStr),
	}

	if ua.Name != "" {
		attrs.DeviceName = ua.Name
		if ua.Version != "" {
			attrs.DeviceName = ua.Name + "/" + ua.Version
		}
	}

	if ua.OS != "" {
		attrs.OSName = ua.OS
		if ua.OSVersion != "" {
			attrs.OSName = ua.OS + "/" + ua.OSVersion
		}
	}

	return attrs.withDefaults(), nil
}

// determineBrand extracts a coarse hardware brand from the user agent
func determineBrand(userAgent string) string {
	if userAgent == "" {
		return ""
	}

	switch {
	case contains(userAgent, "iPhone"), contains(userAgent, "iPad"),
		contains(userAgent, "Macintosh"), contains(userAgent, "Mac OS X"):
		return "Apple"
	case contains(userAgent, "Samsung"), contains(userAgent, "SM-"):
		return "Samsung"
	case contains(userAgent, "Pixel"):
		return "Google"
	case contains(userAgent, "Huawei"):
		return "Huawei"
	case contains(userAgent, "Xiaomi"), contains(userAgent, "Redmi"):
		return "Xiaomi"
	case contains(userAgent, "Windows"):
		return "PC"
	case contains(userAgent, "CrOS"):
		return "Chromebook"
	case contains(userAgent, "Linux"), contains(userAgent, "Android"):
		return "Generic"
	}

	return ""
}

// contains is a case-insensitive substring check
func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
