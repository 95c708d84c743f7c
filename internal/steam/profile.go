// Package steam validates Steam community profile URLs supplied by buyers.
package steam

import (
	"regexp"
	"strings"
)

// Matches both vanity and numeric profile paths, with or without "www",
// case-insensitive. Kept permissive on the token to accept trailing slashes
// and dotted vanity names.
var reProfileURL = regexp.MustCompile(`(?i)^https?://(www\.)?steamcommunity\.com/(id|profiles)/[A-Za-z0-9_./-]+$`)

// ValidProfileURL reports whether s is an acceptable delivery destination.
func ValidProfileURL(s string) bool {
	return reProfileURL.MatchString(strings.TrimSpace(s))
}
