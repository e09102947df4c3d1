package room

import (
	"regexp"
	"strings"
)

// Room tokens are human-shareable: either three dash-separated groups of
// 1-3 uppercase alphanumerics (XX-XX-XX) or 6-9 uppercase alphanumerics
// once dashes are stripped.
var (
	groupedTokenRegex = regexp.MustCompile(`^[A-Z0-9]{1,3}-[A-Z0-9]{1,3}-[A-Z0-9]{1,3}$`)
	compactTokenRegex = regexp.MustCompile(`^[A-Z0-9]{6,9}$`)
)

// IsValidToken reports whether token matches either accepted shape.
func IsValidToken(token string) bool {
	return groupedTokenRegex.MatchString(token) ||
		compactTokenRegex.MatchString(strings.ReplaceAll(token, "-", ""))
}
