package util

import "strings"

// NormalizeSymbol upper-cases and trims an instrument ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
