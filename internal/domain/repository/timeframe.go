package repository

import (
	"fmt"
	"time"

	"BarPull/internal/domain/models"
)

// DefaultMaxRowsPerRequest is the common upstream row cap for one kline request.
const DefaultMaxRowsPerRequest = 1000

// TimeframeRule is the chunking rule for one timeframe.
type TimeframeRule struct {
	IntervalCode  string
	MaxWindowDays int
}

// MaxWindow returns the nominal window length.
func (r TimeframeRule) MaxWindow() time.Duration {
	return time.Duration(r.MaxWindowDays) * 24 * time.Hour
}

// TimeframePolicy holds per-timeframe chunking rules.
type TimeframePolicy struct {
	rules map[models.Timeframe]TimeframeRule
}

// DefaultTimeframePolicy returns the standard rule table.
func DefaultTimeframePolicy() *TimeframePolicy {
	return &TimeframePolicy{rules: map[models.Timeframe]TimeframeRule{
		models.TF1m:  {IntervalCode: "1m", MaxWindowDays: 1},
		models.TF5m:  {IntervalCode: "5m", MaxWindowDays: 5},
		models.TF15m: {IntervalCode: "15m", MaxWindowDays: 10},
		models.TF1h:  {IntervalCode: "1h", MaxWindowDays: 41},
		models.TF4h:  {IntervalCode: "4h", MaxWindowDays: 166},
		models.TF1d:  {IntervalCode: "1d", MaxWindowDays: 1000},
	}}
}

// NewTimeframePolicy builds a policy from an explicit table. Unknown
// timeframes in the table are rejected.
func NewTimeframePolicy(rules map[models.Timeframe]TimeframeRule) (*TimeframePolicy, error) {
	p := &TimeframePolicy{rules: make(map[models.Timeframe]TimeframeRule, len(rules))}
	for tf, r := range rules {
		if !tf.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedTimeframe, tf)
		}
		if r.MaxWindowDays <= 0 || r.IntervalCode == "" {
			return nil, fmt.Errorf("%w: invalid rule for %s", ErrConfiguration, tf)
		}
		p.rules[tf] = r
	}
	return p, nil
}

// Resolve returns the rule for tf.
func (p *TimeframePolicy) Resolve(tf models.Timeframe) (TimeframeRule, error) {
	r, ok := p.rules[tf]
	if !ok {
		return TimeframeRule{}, fmt.Errorf("%w: %q", ErrUnsupportedTimeframe, tf)
	}
	return r, nil
}

// Window returns the effective chunk length for tf: the nominal window,
// shortened so that one chunk never holds more than maxRows bars.
func (p *TimeframePolicy) Window(tf models.Timeframe, maxRows int) (time.Duration, error) {
	r, err := p.Resolve(tf)
	if err != nil {
		return 0, err
	}
	w := r.MaxWindow()
	if maxRows > 0 {
		if byRows := time.Duration(maxRows) * tf.Duration(); byRows < w {
			w = byRows
		}
	}
	return w, nil
}

// ParseTimeframe converts raw input to a supported timeframe.
func ParseTimeframe(s string) (models.Timeframe, error) {
	tf := models.Timeframe(s)
	if !tf.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedTimeframe, s)
	}
	return tf, nil
}
