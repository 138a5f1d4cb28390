package authz

import "strings"

// ClientPlatform is the calling application's declared category. It arrives
// out-of-band (the X-Client-Type header or login body), not from the token,
// so it is attacker-influenceable input: an admin-class platform value never
// grants elevated trust on its own.
type ClientPlatform string

const (
	PlatformAndroidStudent ClientPlatform = "ANDROID_STUDENT"
	PlatformDesktopAdmin   ClientPlatform = "DESKTOP_ADMIN"
	PlatformWebAdmin       ClientPlatform = "WEB_ADMIN"
	PlatformUnknown        ClientPlatform = "UNKNOWN"
)

// ParseClientPlatform maps a wire value to a ClientPlatform. Unrecognized or
// empty values map to PlatformUnknown rather than failing; unknown platforms
// fall back to email-based role inference.
func ParseClientPlatform(value string) ClientPlatform {
	switch ClientPlatform(strings.ToUpper(strings.TrimSpace(value))) {
	case PlatformAndroidStudent:
		return PlatformAndroidStudent
	case PlatformDesktopAdmin:
		return PlatformDesktopAdmin
	case PlatformWebAdmin:
		return PlatformWebAdmin
	default:
		return PlatformUnknown
	}
}

// IsAdminClass reports whether the platform declares an admin application.
// Admin-class platforms require the email allow-list check before any role
// is granted.
func (p ClientPlatform) IsAdminClass() bool {
	return p == PlatformDesktopAdmin || p == PlatformWebAdmin
}

// KnownPlatforms lists all recognized client platform values, for the
// client-info endpoint.
func KnownPlatforms() []ClientPlatform {
	return []ClientPlatform{
		PlatformAndroidStudent,
		PlatformDesktopAdmin,
		PlatformWebAdmin,
		PlatformUnknown,
	}
}
