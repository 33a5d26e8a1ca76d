package models

import (
	"time"

	"BarPull/pkg/util"
)

// Timeframe is the bar bucket width.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// Timeframes lists every supported timeframe in ascending width.
func Timeframes() []Timeframe {
	return []Timeframe{TF1m, TF5m, TF15m, TF1h, TF4h, TF1d}
}

// Duration returns the bucket width, or zero for unknown timeframes.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Minutes returns the bucket width in minutes.
func (tf Timeframe) Minutes() int {
	return int(tf.Duration() / time.Minute)
}

// Align returns the open time of the bar containing t. Unknown timeframes
// leave t unchanged.
func (tf Timeframe) Align(t time.Time) time.Time {
	return util.AlignDown(t, tf.Duration())
}

// Valid reports whether tf is one of the supported timeframes.
func (tf Timeframe) Valid() bool {
	return tf.Duration() > 0
}

func (tf Timeframe) String() string { return string(tf) }
