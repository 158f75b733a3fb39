package model

import "time"

// CachedJobOrder is a locally cached copy of reference data fetched from
// the remote record store; informational only, never traversed by the
// sync engine.
type CachedJobOrder struct {
	JobOrderID string  `json:"jobOrderId"`
	JobNumber  string  `json:"jobNumber"`
	Customer   string  `json:"customer"`
	Origin     string  `json:"origin"`
	Destination string `json:"destination"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	CachedAt time.Time `json:"cachedAt"`
}
