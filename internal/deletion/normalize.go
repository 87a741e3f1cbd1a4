package deletion

import "strings"

// schemePrefixes are checked longest first so "file://" is not left as "//".
var schemePrefixes = []string{"file://", "file:"}

// NormalizePath strips at most one local-file scheme prefix from locator.
// Symlinks and relative segments are left alone.
func NormalizePath(locator string) string {
	for _, p := range schemePrefixes {
		if strings.HasPrefix(locator, p) {
			return locator[len(p):]
		}
	}
	return locator
}
