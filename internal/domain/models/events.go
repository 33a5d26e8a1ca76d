package models

import "time"

// ChunkSavedEvent is emitted after one chunk is durably upserted.
type ChunkSavedEvent struct {
	Symbol      string    `json:"symbol"`
	Timeframe   Timeframe `json:"timeframe"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Provider    string    `json:"provider,omitempty"`
	Inserted    int       `json:"inserted"`
	Updated     int       `json:"updated"`
	At          time.Time `json:"at"`
}

// JobFinishedEvent is emitted once per backfill or repair job.
type JobFinishedEvent struct {
	JobResult
	BarsInserted int `json:"bars_inserted"`
	Details      any `json:"details,omitempty"`
}
