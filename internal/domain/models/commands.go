package models

import "time"

// Commands travel through the job queue and the HTTP API.

type BackfillCommand struct {
	Symbol    string     `json:"symbol" validate:"required"`
	Timeframe string     `json:"timeframe" default:"1h" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
	// Incremental resumes from the latest coverage instead of Start.
	Incremental bool `json:"incremental,omitempty"`
	Async       bool `json:"async,omitempty"`
}

type RepairCommand struct {
	Symbol        string `json:"symbol" validate:"required"`
	Timeframe     string `json:"timeframe" default:"1h" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	LookbackHours int    `json:"lookback_hours" default:"168" validate:"gte=1,lte=87600"`
	Async         bool   `json:"async,omitempty"`
}

type QualityCommand struct {
	Symbol        string `json:"symbol" query:"symbol" validate:"required"`
	Timeframe     string `json:"timeframe" query:"timeframe" default:"1h" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	LookbackHours int    `json:"lookback_hours" query:"lookback_hours" default:"24" validate:"gte=1,lte=87600"`
}

type CoverageQuery struct {
	Symbol    string `query:"symbol" validate:"required"`
	Timeframe string `query:"timeframe" default:"1h" validate:"oneof=1m 5m 15m 1h 4h 1d"`
}

type QualityHistoryQuery struct {
	Symbol    string `query:"symbol" validate:"required"`
	Timeframe string `query:"timeframe" default:"1h" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	Limit     int    `query:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type BarsQuery struct {
	Symbol    string `query:"symbol" validate:"required"`
	Timeframe string `query:"timeframe" default:"1h" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	From      string `query:"from"`
	To        string `query:"to"`
	Limit     int    `query:"limit" default:"1000" validate:"gte=1,lte=50000"`
}

type JobStatusQuery struct {
	Kind      string `query:"kind" default:"backfill" validate:"oneof=backfill repair quality"`
	Symbol    string `query:"symbol" validate:"required"`
	Timeframe string `query:"timeframe" default:"1h" validate:"oneof=1m 5m 15m 1h 4h 1d"`
}
