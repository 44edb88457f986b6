// Package playback advances the now-playing state and applies repeat modes.
package playback

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// RepeatMode controls what happens when the current track completes.
type RepeatMode string

const (
	RepeatNone RepeatMode = "none" // Stop at the end of the track
	RepeatOne  RepeatMode = "one"  // Restart the same track
	RepeatAll  RepeatMode = "all"  // Advance through the catalog, wrapping around
)

// ParseRepeatMode parses a repeat mode name. An empty string means RepeatNone.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch RepeatMode(strings.ToLower(strings.TrimSpace(s))) {
	case RepeatNone, "":
		return RepeatNone, nil
	case RepeatOne:
		return RepeatOne, nil
	case RepeatAll:
		return RepeatAll, nil
	default:
		return "", errors.Newf("unknown repeat mode %q", s)
	}
}

// String returns the string representation of the repeat mode.
func (m RepeatMode) String() string {
	return string(m)
}

// State is the singleton now-playing record.
type State struct {
	TrackID     *int64     // Loaded track (nil before the first load)
	TrackTitle  string     // Snapshot of the track at load time
	FilePath    string     // Snapshot of the track at load time
	DurationSec int        // Snapshot of the track at load time
	PositionSec int        // Elapsed playback in seconds
	IsPlaying   bool       // Whether the clock advances the position
	RepeatMode  RepeatMode // Completion behaviour
	Emotion     string     // Free-form mood tag shown by the overlay
	StartedAt   time.Time  // When the current track (re)started
	UpdatedAt   time.Time  // Last write
	EndedAt     *time.Time // Set only on natural completion under RepeatNone
}

// HasTrack reports whether a track is loaded.
func (s *State) HasTrack() bool {
	return s.TrackID != nil
}

// Remaining returns the remaining playback time, never negative.
func (s *State) Remaining() time.Duration {
	r := s.DurationSec - s.PositionSec
	if r < 0 {
		r = 0
	}
	return time.Duration(r) * time.Second
}

// Status returns "idle", "playing", "paused" or "ended".
func (s *State) Status() string {
	switch {
	case !s.HasTrack():
		return "idle"
	case s.IsPlaying:
		return "playing"
	case s.EndedAt != nil:
		return "ended"
	default:
		return "paused"
	}
}
