package cache

import (
	"fmt"
	"strings"
)

// Key joins parts with ':' in the usual Redis namespace style.
func Key(parts ...interface{}) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprint(&b, p)
	}
	return b.String()
}
