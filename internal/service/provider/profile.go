package provider

import (
	"fmt"

	"BarPull/internal/domain/models"
	"BarPull/internal/domain/repository"
)

// Profile describes one kline-compatible REST API.
type Profile struct {
	Name    string
	BaseURL string
	Path    string
	MaxRows int
	// Intervals overrides the default interval code per timeframe.
	Intervals map[models.Timeframe]string
}

var profiles = map[string]Profile{
	"binance": {
		Name:    "binance",
		BaseURL: "https://api.binance.com",
		Path:    "/api/v3/klines",
		MaxRows: 1000,
	},
	"binance_us": {
		Name:    "binance_us",
		BaseURL: "https://api.binance.us",
		Path:    "/api/v3/klines",
		MaxRows: 1000,
	},
	"mexc": {
		Name:    "mexc",
		BaseURL: "https://api.mexc.com",
		Path:    "/api/v3/klines",
		MaxRows: 1000,
		Intervals: map[models.Timeframe]string{
			models.TF1h: "60m",
		},
	},
}

// LookupProfile returns a known wire profile by name.
func LookupProfile(name string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", repository.ErrUnknownProvider, name)
	}
	return p, nil
}
