package models

// Instrument is a tradable symbol known to the registry.
type Instrument struct {
	ID     string `json:"id"`
	Ticker string `json:"ticker"`
	Active bool   `json:"active"`
}
