package http

import (
	"time"

	xutil "BarPull/pkg/util"
)

// ParseTime tries RFC3339, a bare date and unix seconds or milliseconds.
func ParseTime(s string) (time.Time, bool) { return xutil.ParseTime(s) }

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time { return xutil.ParseTimeDefault(s, def) }
