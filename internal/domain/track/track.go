// Package track provides the Track domain entity.
package track

import "time"

// Status is the conversion/readiness status of a catalog track.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Track represents a catalog entry that the overlay can play.
// A track is immutable once it is marked ready.
type Track struct {
	ID          int64  // Catalog ID
	Title       string // Track title
	Artist      string // Artist name
	Album       string // Album name (optional)
	FilePath    string // Media file served to the viewing client
	DurationSec int    // Track duration in whole seconds
	Order       int    // Sequence position, strictly increasing across the catalog
	Status      Status // Readiness status
}

// Duration returns the track duration as a time.Duration.
func (t *Track) Duration() time.Duration {
	return time.Duration(t.DurationSec) * time.Second
}

// IsPlayable reports whether the track can be loaded into the now-playing state.
func (t *Track) IsPlayable() bool {
	return t.Status == StatusReady && t.DurationSec > 0
}
