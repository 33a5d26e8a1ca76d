package models

import "time"

// GapInterval spans two persisted bars with at least one missing bar between them.
type GapInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MissingBars returns how many bars of width interval are absent inside the gap.
func (g GapInterval) MissingBars(interval time.Duration) int {
	if interval <= 0 {
		return 0
	}
	n := int(g.End.Sub(g.Start)/interval) - 1
	if n < 0 {
		return 0
	}
	return n
}
