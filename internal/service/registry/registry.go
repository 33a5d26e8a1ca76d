package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"BarPull/internal/domain/models"
	"BarPull/internal/domain/repository"
	"BarPull/pkg/config"
)

// Static is an in-memory instrument registry loaded from configuration.
type Static struct {
	byKey map[string]models.Instrument
	list  []models.Instrument
}

// New builds a registry. Instruments are addressable by ticker or ID.
func New(instruments []models.Instrument) *Static {
	r := &Static{byKey: make(map[string]models.Instrument, len(instruments)*2)}
	for _, in := range instruments {
		in.Ticker = strings.ToUpper(strings.TrimSpace(in.Ticker))
		if in.Ticker == "" {
			continue
		}
		if in.ID == "" {
			in.ID = in.Ticker
		}
		if _, dup := r.byKey[in.Ticker]; dup {
			continue
		}
		r.byKey[in.Ticker] = in
		r.byKey[strings.ToUpper(in.ID)] = in
		r.list = append(r.list, in)
	}
	sort.Slice(r.list, func(i, j int) bool { return r.list[i].Ticker < r.list[j].Ticker })
	return r
}

// FromConfig maps the configured instruments.
func FromConfig(items []config.Instrument) *Static {
	out := make([]models.Instrument, 0, len(items))
	for _, it := range items {
		out = append(out, models.Instrument{ID: it.ID, Ticker: it.Ticker, Active: !it.Disabled})
	}
	return New(out)
}

func (r *Static) Lookup(_ context.Context, symbol string) (models.Instrument, error) {
	in, ok := r.byKey[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return models.Instrument{}, fmt.Errorf("instrument %q: %w", symbol, repository.ErrNotFound)
	}
	return in, nil
}

// List returns every instrument, active or not, sorted by ticker.
func (r *Static) List(_ context.Context) ([]models.Instrument, error) {
	out := make([]models.Instrument, len(r.list))
	copy(out, r.list)
	return out, nil
}

// Active returns the tickers the scheduler should work on.
func (r *Static) Active(ctx context.Context) []string {
	all, _ := r.List(ctx)
	out := make([]string, 0, len(all))
	for _, in := range all {
		if in.Active {
			out = append(out, in.Ticker)
		}
	}
	return out
}
