package metrics

import "BarPull/internal/domain/models"

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordChunk(string, models.ChunkOutcome, int)         {}
func (Nop) RecordProviderError(string, string)                   {}
func (Nop) RecordRetry(string)                                   {}
func (Nop) RecordBarsSaved(string, models.Timeframe, int, int)   {}
func (Nop) RecordJob(models.JobKind, bool)                       {}
func (Nop) RecordCompleteness(string, models.Timeframe, float64) {}
func (Nop) RecordError(string)                                   {}
func (Nop) RecordLatency(string, float64)                        {}
