package models

import "time"

// CoverageRange is the per (symbol, timeframe) ingestion bookkeeping row.
type CoverageRange struct {
	Symbol          string    `json:"symbol"`
	Timeframe       Timeframe `json:"timeframe"`
	EarliestCovered time.Time `json:"earliest_covered"`
	LatestCovered   time.Time `json:"latest_covered"`
	TotalBarCount   int64     `json:"total_bar_count"`
	IsComplete      bool      `json:"is_complete"`
	UpdatedAt       time.Time `json:"updated_at"`
}
