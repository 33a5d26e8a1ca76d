package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLCV observation. (Symbol, Timeframe, Timestamp) is its natural key.
type Bar struct {
	Symbol    string          `json:"symbol"`
	Timeframe Timeframe       `json:"timeframe"`
	Timestamp time.Time       `json:"ts"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	Provider  string          `json:"provider,omitempty"`
}

// NormalizeBars returns bars inside [from, to) that open on a tf boundary,
// sorted ascending with one entry per timestamp. Later duplicates win.
func NormalizeBars(bars []Bar, tf Timeframe, from, to time.Time) []Bar {
	if len(bars) == 0 {
		return nil
	}
	byTs := make(map[int64]Bar, len(bars))
	for _, b := range bars {
		ts := b.Timestamp.UTC()
		if ts.Before(from) || !ts.Before(to) || !tf.Align(ts).Equal(ts) {
			continue
		}
		b.Timestamp = ts
		byTs[ts.UnixMilli()] = b
	}
	out := make([]Bar, 0, len(byTs))
	for _, b := range byTs {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
