package models

import "time"

// JobState is a backfill state machine position.
type JobState string

const (
	JobInit        JobState = "INIT"
	JobChunking    JobState = "CHUNKING"
	JobFetching    JobState = "FETCHING"
	JobSaving      JobState = "SAVING"
	JobRangeUpdate JobState = "RANGE_UPDATE"
	JobDone        JobState = "DONE"
	JobFailed      JobState = "FAILED"
	JobCancelled   JobState = "CANCELLED"
)

// CoverageScope decides how a finished job writes its CoverageRange.
type CoverageScope string

const (
	// ScopeRange overwrites coverage with exactly the requested range.
	ScopeRange CoverageScope = "range"
	// ScopeMerge widens the existing coverage row and never shrinks it.
	ScopeMerge CoverageScope = "merge"
)

// JobKind identifies an entry point.
type JobKind string

const (
	JobKindBackfill JobKind = "backfill"
	JobKindRepair   JobKind = "repair"
	JobKindQuality  JobKind = "quality"
)

// BackfillJob is one orchestrator run over [Start, End).
type BackfillJob struct {
	Symbol    string
	Timeframe Timeframe
	Start     *time.Time
	End       *time.Time
	Scope     CoverageScope
}

// ChunkOutcome separates "no data" from "could not fetch".
type ChunkOutcome string

const (
	ChunkFetched   ChunkOutcome = "fetched"
	ChunkEmpty     ChunkOutcome = "empty"
	ChunkExhausted ChunkOutcome = "exhausted"
)

// ChunkResult is what the provider chain hands back for one window.
type ChunkResult struct {
	Bars     []Bar
	Provider string
	Outcome  ChunkOutcome
	Attempts int
}

// UpsertResult counts rows written by one chunk upsert.
type UpsertResult struct {
	Inserted int
	Updated  int
}

// Written is the number of rows the upsert touched.
func (u UpsertResult) Written() int { return u.Inserted + u.Updated }

// JobResult is the outcome reported back to whoever triggered the job.
type JobResult struct {
	Kind       JobKind   `json:"kind"`
	Symbol     string    `json:"symbol"`
	Timeframe  Timeframe `json:"timeframe"`
	Success    bool      `json:"success"`
	Reason     string    `json:"reason,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// BackfillResult summarizes one orchestrator run.
type BackfillResult struct {
	JobResult
	Start           time.Time      `json:"start"`
	End             time.Time      `json:"end"`
	State           JobState       `json:"state"`
	Chunks          int            `json:"chunks"`
	EmptyChunks     int            `json:"empty_chunks"`
	ExhaustedChunks int            `json:"exhausted_chunks"`
	BarsInserted    int            `json:"bars_inserted"`
	BarsWritten     int            `json:"bars_written"`
	Providers       map[string]int `json:"providers,omitempty"`
	Coverage        *CoverageRange `json:"coverage,omitempty"`
}

// RepairResult summarizes one gap repair pass.
type RepairResult struct {
	JobResult
	LookbackHours int           `json:"lookback_hours"`
	GapsFound     int           `json:"gaps_found"`
	GapsRepaired  int           `json:"gaps_repaired"`
	MissingBars   int           `json:"missing_bars"`
	BarsInserted  int           `json:"bars_inserted"`
	Gaps          []GapInterval `json:"gaps,omitempty"`
}
