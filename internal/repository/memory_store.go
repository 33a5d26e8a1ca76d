package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"BarPull/internal/domain/models"
	"BarPull/internal/domain/repository"
)

type seriesKey struct {
	symbol string
	tf     models.Timeframe
}

// MemoryStore keeps everything in process. It backs tests and the
// memory backend; nothing survives a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	bars      map[seriesKey]map[int64]models.Bar
	coverage  map[seriesKey]models.CoverageRange
	snapshots map[seriesKey][]models.QualitySnapshot
	nextID    int64
	// FailWrites makes UpsertBars fail; tests use it to drive FAILED jobs.
	FailWrites error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bars:      make(map[seriesKey]map[int64]models.Bar),
		coverage:  make(map[seriesKey]models.CoverageRange),
		snapshots: make(map[seriesKey][]models.QualitySnapshot),
	}
}

func (s *MemoryStore) Init(context.Context) error   { return nil }
func (s *MemoryStore) Health(context.Context) error { return nil }
func (s *MemoryStore) Close() error                 { return nil }

func (s *MemoryStore) UpsertBars(_ context.Context, symbol string, tf models.Timeframe, bars []models.Bar) (models.UpsertResult, error) {
	var res models.UpsertResult
	if len(bars) == 0 {
		return res, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return res, s.FailWrites
	}

	k := seriesKey{symbol, tf}
	m, ok := s.bars[k]
	if !ok {
		m = make(map[int64]models.Bar)
		s.bars[k] = m
	}
	for _, b := range bars {
		b.Symbol, b.Timeframe = symbol, tf
		b.Timestamp = b.Timestamp.UTC()
		ts := b.Timestamp.UnixMilli()
		if _, exists := m[ts]; exists {
			res.Updated++
		} else {
			res.Inserted++
		}
		m[ts] = b
	}
	return res, nil
}

// inRange returns ascending bars in [from, to).
func (s *MemoryStore) inRange(symbol string, tf models.Timeframe, from, to time.Time) []models.Bar {
	m := s.bars[seriesKey{symbol, tf}]
	out := make([]models.Bar, 0, len(m))
	for _, b := range m {
		if !b.Timestamp.Before(from) && b.Timestamp.Before(to) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (s *MemoryStore) ListBars(_ context.Context, symbol string, tf models.Timeframe, from, to time.Time, limit int) ([]models.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.inRange(symbol, tf, from, to)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListTimestamps(_ context.Context, symbol string, tf models.Timeframe, from, to time.Time) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bars := s.inRange(symbol, tf, from, to)
	out := make([]time.Time, len(bars))
	for i, b := range bars {
		out[i] = b.Timestamp
	}
	return out, nil
}

func (s *MemoryStore) CountBars(_ context.Context, symbol string, tf models.Timeframe, from, to time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.inRange(symbol, tf, from, to))), nil
}

func (s *MemoryStore) LatestTimestamp(_ context.Context, symbol string, tf models.Timeframe) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest time.Time
	for _, b := range s.bars[seriesKey{symbol, tf}] {
		if b.Timestamp.After(latest) {
			latest = b.Timestamp
		}
	}
	if latest.IsZero() {
		return time.Time{}, fmt.Errorf("latest bar %s/%s: %w", symbol, tf, repository.ErrNotFound)
	}
	return latest, nil
}

func (s *MemoryStore) UpsertCoverage(_ context.Context, c models.CoverageRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.EarliestCovered = c.EarliestCovered.UTC()
	c.LatestCovered = c.LatestCovered.UTC()
	s.coverage[seriesKey{c.Symbol, c.Timeframe}] = c
	return nil
}

func (s *MemoryStore) GetCoverage(_ context.Context, symbol string, tf models.Timeframe) (*models.CoverageRange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.coverage[seriesKey{symbol, tf}]
	if !ok {
		return nil, fmt.Errorf("coverage %s/%s: %w", symbol, tf, repository.ErrNotFound)
	}
	return &c, nil
}

func (s *MemoryStore) AppendSnapshot(_ context.Context, snap *models.QualitySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	snap.ID = s.nextID
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	k := seriesKey{snap.Symbol, snap.Timeframe}
	s.snapshots[k] = append(s.snapshots[k], *snap)
	return nil
}

// ListSnapshots returns the newest snapshots first.
func (s *MemoryStore) ListSnapshots(_ context.Context, symbol string, tf models.Timeframe, limit int) ([]models.QualitySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.snapshots[seriesKey{symbol, tf}]
	out := make([]models.QualitySnapshot, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
