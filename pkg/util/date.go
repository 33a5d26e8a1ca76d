package util

import (
	"strconv"
	"time"
)

// ParseTime accepts RFC3339(Nano), a bare date, unix seconds or unix
// milliseconds. The result is always UTC.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		// 10^11 seconds is year 5138; anything larger is milliseconds.
		if ts > 1e11 {
			return time.UnixMilli(ts).UTC(), true
		}
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// AlignDown truncates t to a multiple of d counted from the Unix epoch.
func AlignDown(t time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return t.UTC()
	}
	ms := t.UnixMilli()
	step := d.Milliseconds()
	r := ms % step
	if r < 0 {
		r += step
	}
	return time.UnixMilli(ms - r).UTC()
}

// MinTime returns the earlier of a and b.
func MinTime(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

// MaxTime returns the later of a and b.
func MaxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
