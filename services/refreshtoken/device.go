package refreshtoken

import (
	"unicode/utf8"

	"github.com/mileusna/useragent"
)

const unknownDevice = "Unknown device"

// DeviceLabel summarises a User-Agent header into a short label such as "Chrome on macOS".
func DeviceLabel(userAgent string) string {
	if userAgent == "" {
		return unknownDevice
	}

	ua := useragent.Parse(userAgent)

	switch {
	case ua.Name != "" && ua.OS != "":
		return truncate(ua.Name+" on "+ua.OS, 128)
	case ua.Name != "":
		return truncate(ua.Name, 128)
	case ua.OS != "":
		return truncate(ua.OS, 128)
	default:
		return unknownDevice
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
