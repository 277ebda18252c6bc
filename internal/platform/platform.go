// Package platform defines the supported media platforms and the link
// classifier that maps raw message text to a normalized URL.
package platform

import "regexp"

// Platform identifies a supported media source.
type Platform string

const (
	Instagram  Platform = "instagram"
	YouTube    Platform = "youtube"
	SoundCloud Platform = "soundcloud"
)

type info struct {
	displayName string
	pattern     *regexp.Regexp
	dailyLimit  int
}

// URL patterns are scheme-optional and www-optional with a host allow-list
// per platform. The first match in the text wins. The host must sit at a
// non-word, non-dot boundary so a look-alike such as notinstagram.com or
// evil.instagram.com never matches; the URL itself is capture group 1.
var registry = map[Platform]info{
	Instagram: {
		displayName: "Instagram",
		pattern:     regexp.MustCompile(`(?i)(?:^|[^\w.])((https?://)?(www\.)?instagram\.com/[^\s]+)`),
		dailyLimit:  4,
	},
	YouTube: {
		displayName: "YouTube",
		pattern:     regexp.MustCompile(`(?i)(?:^|[^\w.])((https?://)?(www\.)?(youtube\.com|youtu\.be)/[^\s]+)`),
		dailyLimit:  1,
	},
	SoundCloud: {
		displayName: "SoundCloud",
		pattern:     regexp.MustCompile(`(?i)(?:^|[^\w.])((https?://)?(www\.)?soundcloud\.com/[^\s]+)`),
		dailyLimit:  10,
	},
}

// All returns the supported platforms in stable menu order.
func All() []Platform {
	return []Platform{Instagram, YouTube, SoundCloud}
}

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	_, ok := registry[p]
	return ok
}

// DisplayName returns the human-readable platform name.
func (p Platform) DisplayName() string {
	if in, ok := registry[p]; ok {
		return in.displayName
	}
	return string(p)
}

// DefaultDailyLimit returns the built-in daily admission limit for p.
// Config may override it per platform.
func (p Platform) DefaultDailyLimit() int {
	if in, ok := registry[p]; ok {
		return in.dailyLimit
	}
	return 0
}

// Classify extracts the first URL in text that matches the expected
// platform's pattern. It returns false when the text contains no link for
// that platform (including links that belong to a different platform).
func Classify(text string, expected Platform) (string, bool) {
	in, ok := registry[expected]
	if !ok {
		return "", false
	}
	m := in.pattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}
