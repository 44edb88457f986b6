package playlist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/onair/internal/domain/track"
)

func readyTrack(id int64, order, duration int) track.Track {
	return track.Track{ID: id, Title: "t", DurationSec: duration, Order: order, Status: track.StatusReady}
}

func TestNewCatalog_SortsAndFilters(t *testing.T) {
	c := NewCatalog([]track.Track{
		readyTrack(3, 30, 100),
		readyTrack(1, 10, 100),
		{ID: 9, Order: 5, DurationSec: 100, Status: track.StatusPending},
		readyTrack(2, 20, 100),
	})

	assert.Equal(t, []int64{1, 2, 3}, c.IDs())
	assert.Equal(t, int64(300), c.TotalDuration())
}

func TestCatalog_TrackAfter(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog([]track.Track{readyTrack(1, 1, 180), readyTrack(2, 2, 200), readyTrack(5, 7, 60)})

	tests := []struct {
		name   string
		order  int
		wantID int64
		none   bool
	}{
		{name: "next in sequence", order: 1, wantID: 2},
		{name: "skips gap", order: 2, wantID: 5},
		{name: "between orders", order: 3, wantID: 5},
		{name: "before first", order: -1, wantID: 1},
		{name: "after last", order: 7, none: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.TrackAfter(ctx, tt.order)
			require.NoError(t, err)
			if tt.none {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestCatalog_FirstTrack(t *testing.T) {
	ctx := context.Background()

	empty := NewCatalog(nil)
	got, err := empty.FirstTrack(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	c := NewCatalog([]track.Track{readyTrack(2, 2, 200), readyTrack(1, 1, 180)})
	got, err = c.FirstTrack(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.ID)
}

func TestCatalog_GetTrack(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog([]track.Track{readyTrack(1, 1, 180), readyTrack(2, 2, 200)})

	got, err := c.GetTrack(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Order)

	got, err = c.GetTrack(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCatalog_GetTrackIgnoresStatus(t *testing.T) {
	ctx := context.Background()
	failed := track.Track{ID: 2, Title: "b", DurationSec: 200, Order: 2, Status: track.StatusFailed}
	c := NewCatalog([]track.Track{readyTrack(1, 1, 180), failed, readyTrack(3, 3, 120)})

	assert.Equal(t, []int64{1, 3}, c.IDs())

	got, err := c.GetTrack(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, track.StatusFailed, got.Status)

	next, err := c.TrackAfter(ctx, got.Order)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, int64(3), next.ID)
}
