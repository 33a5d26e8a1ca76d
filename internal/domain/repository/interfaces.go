package repository

import (
	"context"
	"time"

	"BarPull/internal/domain/models"
)

// BarStore persists bars. Every range is half-open: [from, to).
type BarStore interface {
	// UpsertBars writes one chunk atomically. Rows are keyed by
	// (symbol, timeframe, ts) and the latest write wins.
	UpsertBars(ctx context.Context, symbol string, tf models.Timeframe, bars []models.Bar) (models.UpsertResult, error)
	ListBars(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time, limit int) ([]models.Bar, error)
	ListTimestamps(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time) ([]time.Time, error)
	CountBars(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time) (int64, error)
	// LatestTimestamp returns ErrNotFound when no bar exists for the key.
	LatestTimestamp(ctx context.Context, symbol string, tf models.Timeframe) (time.Time, error)
}

type CoverageStore interface {
	UpsertCoverage(ctx context.Context, c models.CoverageRange) error
	// GetCoverage returns ErrNotFound when the key was never ingested.
	GetCoverage(ctx context.Context, symbol string, tf models.Timeframe) (*models.CoverageRange, error)
}

// QualityStore is an append-only snapshot log.
type QualityStore interface {
	AppendSnapshot(ctx context.Context, s *models.QualitySnapshot) error
	ListSnapshots(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.QualitySnapshot, error)
}

// Store is the full persistence surface of one backend.
type Store interface {
	BarStore
	CoverageStore
	QualityStore
	Init(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// FetchRequest is one bounded provider request. EndMs is inclusive.
type FetchRequest struct {
	Pair     string
	Interval string
	StartMs  int64
	EndMs    int64
	Limit    int
}

// BarProvider fetches one window from one upstream source. Errors are
// classified with Permanent or Transient; zero rows is not an error.
type BarProvider interface {
	ID() string
	FetchWindow(ctx context.Context, req FetchRequest) ([]models.Bar, error)
}

// ChunkFetcher resolves one chunk across the configured providers.
type ChunkFetcher interface {
	FetchChunk(ctx context.Context, symbol string, tf models.Timeframe, start, end time.Time) (models.ChunkResult, error)
	// MaxRows is the smallest row cap among the providers.
	MaxRows() int
}

// InstrumentRegistry is the read-only symbol registry.
type InstrumentRegistry interface {
	// Lookup returns ErrNotFound for unknown symbols.
	Lookup(ctx context.Context, symbol string) (models.Instrument, error)
	List(ctx context.Context) ([]models.Instrument, error)
}

// Locker guards a (symbol, timeframe) key against concurrent writers.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// EventPublisher emits ingestion events for downstream readers.
type EventPublisher interface {
	PublishChunkSaved(ctx context.Context, e models.ChunkSavedEvent) error
	PublishJobFinished(ctx context.Context, e models.JobFinishedEvent) error
	PublishQuality(ctx context.Context, s models.QualitySnapshot) error
	Close() error
}

// JobDispatcher hands a command to the background worker pool.
type JobDispatcher interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

type Metrics interface {
	RecordChunk(provider string, outcome models.ChunkOutcome, bars int)
	RecordProviderError(provider, kind string)
	RecordRetry(provider string)
	RecordBarsSaved(symbol string, tf models.Timeframe, inserted, updated int)
	RecordJob(kind models.JobKind, success bool)
	RecordCompleteness(symbol string, tf models.Timeframe, pct float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

// JobStatusStore keeps the last finished result per job kind and series.
type JobStatusStore interface {
	SaveStatus(ctx context.Context, e models.JobFinishedEvent) error
	// LastStatus returns ErrNotFound when no job of kind has finished.
	LastStatus(ctx context.Context, kind models.JobKind, symbol string, tf models.Timeframe) (*models.JobFinishedEvent, error)
}
