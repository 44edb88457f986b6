// Package playlist provides an in-memory ordered view of the track catalog.
package playlist

import (
	"context"
	"sort"

	"github.com/osa030/onair/internal/domain/track"
)

// Catalog is an ordered, read-only set of tracks.
// It answers the same successor queries as the persistent store and is used
// where the catalog is already in memory.
type Catalog struct {
	Tracks []track.Track // Playable tracks sorted by Order ascending

	all map[int64]track.Track // Every track, whatever its status
}

// NewCatalog builds a catalog from tracks in any order.
// Tracks that are not playable are left out of play order but can still be
// looked up by ID.
func NewCatalog(tracks []track.Track) *Catalog {
	all := make(map[int64]track.Track, len(tracks))
	ready := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		all[t.ID] = t
		if t.IsPlayable() {
			ready = append(ready, t)
		}
	}
	sort.SliceStable(ready, func(i, j int) bool { return ready[i].Order < ready[j].Order })
	return &Catalog{Tracks: ready, all: all}
}

// TrackAfter returns the track with the smallest order strictly greater than order,
// or nil when there is none.
func (c *Catalog) TrackAfter(_ context.Context, order int) (*track.Track, error) {
	i := sort.Search(len(c.Tracks), func(i int) bool { return c.Tracks[i].Order > order })
	if i == len(c.Tracks) {
		return nil, nil
	}
	t := c.Tracks[i]
	return &t, nil
}

// FirstTrack returns the track with the smallest order, or nil for an empty catalog.
func (c *Catalog) FirstTrack(_ context.Context) (*track.Track, error) {
	if len(c.Tracks) == 0 {
		return nil, nil
	}
	t := c.Tracks[0]
	return &t, nil
}

// GetTrack returns the track with the given ID whatever its status, or nil.
func (c *Catalog) GetTrack(_ context.Context, id int64) (*track.Track, error) {
	t, ok := c.all[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// IDs returns all track IDs in play order.
func (c *Catalog) IDs() []int64 {
	ids := make([]int64, len(c.Tracks))
	for i, t := range c.Tracks {
		ids[i] = t.ID
	}
	return ids
}

// TotalDuration returns the total duration of all tracks in seconds.
func (c *Catalog) TotalDuration() int64 {
	var total int64
	for _, t := range c.Tracks {
		total += int64(t.DurationSec)
	}
	return total
}
