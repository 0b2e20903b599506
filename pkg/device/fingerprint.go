package device

import (
	"fmt"
	"strings"

	"github.com/tendant/simple-deviceid/pkg/attributes"
)

// Well-known attribute names in client fingerprint documents
const (
	AttrUserAgent       = "userAgent"
	AttrPlatform        = "platform"
	AttrClientIPAddress = "clientDeviceIpAddress"
)

// WithClientIP returns a copy of attrs carrying the client IP address observed by the
// server. attrs itself is not modified; empty attrs and an empty ip are returned unchanged.
func WithClientIP(attrs *attributes.Map, ip string) *attributes.Map {
	if attrs.IsEmpty() || ip == "" {
		return attrs
	}
	out := attrs.Clone()
	out.Set(AttrClientIPAddress, attributes.String(ip))
	return out
}

// GenerateProfileName builds a display name from the fingerprint's user agent or platform,
// suffixed with the start of the profile id so names stay distinct, e.g. "Mac (1f2e3d4c)".
func GenerateProfileName(attrs *attributes.Map, id string) string {
	label := "Unknown Device"
	if ua, ok := attrs.GetString(AttrUserAgent); ok && ua != "" {
		label = determineDeviceName(ua)
	} else if platform, ok := attrs.GetString(AttrPlatform); ok && platform != "" {
		label = determineDeviceName(platform)
	}

	suffix := id
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	if suffix == "" {
		return label
	}
	return fmt.Sprintf("%s (%s)", label, suffix)
}

// determineDeviceName extracts a human-readable device name from a user agent or platform string
func determineDeviceName(userAgent string) string {
	// Check for common mobile devices
	if contains(userAgent, "iPhone") {
		return "iPhone"
	} else if contains(userAgent, "iPad") {
		return "iPad"
	} else if contains(userAgent, "Android") && (contains(userAgent, "Mobile") || contains(userAgent, "Pixel") || contains(userAgent, "Samsung") || contains(userAgent, "SM-")) {
		if contains(userAgent, "Pixel") {
			return "Google Pixel"
		} else if contains(userAgent, "Samsung") || contains(userAgent, "SM-") {
			return "Samsung Phone"
		}
		return "Android Phone"
	} else if contains(userAgent, "Android") {
		return "Android Tablet"
	}

	// Check for desktop operating systems
	if contains(userAgent, "Macintosh") || contains(userAgent, "Mac OS X") || contains(userAgent, "MacIntel") {
		return "Mac"
	} else if contains(userAgent, "Windows") || contains(userAgent, "Win32") {
		return "Windows PC"
	} else if contains(userAgent, "CrOS") {
		return "Chromebook"
	} else if contains(userAgent, "Linux") {
		return "Linux"
	}

	return "Unknown Device"
}

func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
