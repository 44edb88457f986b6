package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/onair/internal/app/playback"
	"github.com/osa030/onair/internal/domain/event"
	"github.com/osa030/onair/internal/domain/playlist"
	"github.com/osa030/onair/internal/domain/track"
)

func TestStore_RepeatAllTransitions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)

	ending := func(tr *track.Track) playback.State {
		id := tr.ID
		return playback.State{
			TrackID:     &id,
			DurationSec: tr.DurationSec,
			PositionSec: tr.DurationSec - 2,
			IsPlaying:   true,
			RepeatMode:  playback.RepeatAll,
		}
	}

	tests := []struct {
		name   string
		setup  func(t *testing.T, s *Store) (playback.State, int64)
		wantNo bool
	}{
		{
			name: "advances to next order",
			setup: func(t *testing.T, s *Store) (playback.State, int64) {
				a := addReady(t, s, "a", 1, 180)
				b := addReady(t, s, "b", 2, 200)
				return ending(a), b.ID
			},
		},
		{
			name: "wraps to minimum order",
			setup: func(t *testing.T, s *Store) (playback.State, int64) {
				a := addReady(t, s, "a", 1, 180)
				b := addReady(t, s, "b", 2, 200)
				return ending(b), a.ID
			},
		},
		{
			name: "skips tracks that are not ready",
			setup: func(t *testing.T, s *Store) (playback.State, int64) {
				a := addReady(t, s, "a", 1, 180)
				b := addReady(t, s, "b", 2, 200)
				c := addReady(t, s, "c", 3, 120)
				require.NoError(t, s.SetTrackStatus(ctx, b.ID, track.StatusFailed, 0))
				return ending(a), c.ID
			},
		},
		{
			name: "current track no longer ready keeps its place",
			setup: func(t *testing.T, s *Store) (playback.State, int64) {
				addReady(t, s, "a", 1, 180)
				b := addReady(t, s, "b", 2, 200)
				c := addReady(t, s, "c", 3, 120)
				require.NoError(t, s.SetTrackStatus(ctx, b.ID, track.StatusFailed, 0))
				return ending(b), c.ID
			},
		},
		{
			name: "unknown current track restarts from first",
			setup: func(t *testing.T, s *Store) (playback.State, int64) {
				a := addReady(t, s, "a", 1, 180)
				addReady(t, s, "b", 2, 200)
				st := ending(a)
				missing := int64(99)
				st.TrackID = &missing
				return st, a.ID
			},
		},
		{
			name: "no ready track leaves state unchanged",
			setup: func(t *testing.T, s *Store) (playback.State, int64) {
				a := addReady(t, s, "a", 1, 180)
				require.NoError(t, s.SetTrackStatus(ctx, a.ID, track.StatusFailed, 0))
				return ending(a), 0
			},
			wantNo: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTestStore(t)
			state, wantID := tt.setup(t, s)

			next, events, err := playback.Transition(ctx, state, 3, s, now)
			require.NoError(t, err)

			// The in-memory catalog must agree with the store.
			tracks, err := s.ListTracks(ctx)
			require.NoError(t, err)
			memNext, memEvents, err := playback.Transition(ctx, state, 3, playlist.NewCatalog(tracks), now)
			require.NoError(t, err)
			assert.Equal(t, next, memNext)
			assert.Equal(t, events, memEvents)

			if tt.wantNo {
				assert.Equal(t, state, next)
				assert.Empty(t, events)
				return
			}
			require.NotNil(t, next.TrackID)
			assert.Equal(t, wantID, *next.TrackID)
			assert.Equal(t, 0, next.PositionSec)
			require.Len(t, events, 1)
			assert.Equal(t, event.TrackChanged, events[0].Type)
		})
	}
}
