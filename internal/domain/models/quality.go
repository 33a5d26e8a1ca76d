package models

import "time"

// QualitySnapshot is an immutable completeness/freshness measurement.
type QualitySnapshot struct {
	ID               int64      `json:"id,omitempty"`
	Symbol           string     `json:"symbol"`
	Timeframe        Timeframe  `json:"timeframe"`
	WindowStart      time.Time  `json:"window_start"`
	WindowEnd        time.Time  `json:"window_end"`
	WindowHours      int        `json:"window_hours"`
	ExpectedCount    int64      `json:"expected_count"`
	ActualCount      int64      `json:"actual_count"`
	MissingCount     int64      `json:"missing_count"`
	CompletenessPct  float64    `json:"completeness_pct"`
	HasGaps          bool       `json:"has_gaps"`
	LatestBarAt      *time.Time `json:"latest_bar_at,omitempty"`
	StalenessSeconds int64      `json:"staleness_seconds"`
	CreatedAt        time.Time  `json:"created_at"`
}
