package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/onair/internal/app/playback"
	"github.com/osa030/onair/internal/domain/message"
	"github.com/osa030/onair/internal/domain/track"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "overlay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addReady(t *testing.T, s *Store, title string, order, duration int) *track.Track {
	t.Helper()
	tr, err := s.AddTrack(context.Background(), track.Track{
		Title:       title,
		FilePath:    "/media/" + title + ".mp3",
		DurationSec: duration,
		Order:       order,
		Status:      track.StatusReady,
	})
	require.NoError(t, err)
	return tr
}

func TestStore_PlaybackStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	st, err := s.ReadPlaybackState(ctx)
	require.NoError(t, err)
	assert.Nil(t, st, "absent row reads as nil")

	id := int64(3)
	started := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	want := playback.State{
		TrackID:     &id,
		TrackTitle:  "Night Drive",
		FilePath:    "/media/night.mp3",
		DurationSec: 180,
		PositionSec: 42,
		IsPlaying:   true,
		RepeatMode:  playback.RepeatAll,
		Emotion:     "calm",
		StartedAt:   started,
		UpdatedAt:   started.Add(42 * time.Second),
	}
	require.NoError(t, s.WritePlaybackState(ctx, want))

	got, err := s.ReadPlaybackState(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	// Upsert keeps a single row.
	ended := started.Add(3 * time.Minute)
	want.IsPlaying = false
	want.EndedAt = &ended
	require.NoError(t, s.WritePlaybackState(ctx, want))

	got, err = s.ReadPlaybackState(ctx)
	require.NoError(t, err)
	assert.False(t, got.IsPlaying)
	require.NotNil(t, got.EndedAt)
	assert.True(t, ended.Equal(*got.EndedAt))

	var rows int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM now_playing`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestStore_WritePlaybackStateRejectsNegativePosition(t *testing.T) {
	s := openTestStore(t)
	err := s.WritePlaybackState(context.Background(), playback.State{PositionSec: -1})
	assert.Error(t, err)
}

func TestStore_TrackNavigation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first, err := s.FirstTrack(ctx)
	require.NoError(t, err)
	assert.Nil(t, first)

	a := addReady(t, s, "a", 10, 180)
	_, err = s.AddTrack(ctx, track.Track{Title: "pending", FilePath: "/media/p.mp3", Order: 15})
	require.NoError(t, err)
	b := addReady(t, s, "b", 20, 200)

	first, err = s.FirstTrack(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ID, first.ID)

	next, err := s.TrackAfter(ctx, a.Order)
	require.NoError(t, err)
	assert.Equal(t, b.ID, next.ID, "pending tracks are skipped")

	next, err = s.TrackAfter(ctx, b.Order)
	require.NoError(t, err)
	assert.Nil(t, next)

	got, err := s.GetTrack(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, *b, *got)

	missing, err := s.GetTrack(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := s.ListTracks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int{10, 15, 20}, []int{all[0].Order, all[1].Order, all[2].Order})
}

func TestStore_AddTrackAppendsOrder(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	addReady(t, s, "a", 5, 100)
	tr, err := s.AddTrack(ctx, track.Track{Title: "b", FilePath: "/media/b.mp3"})
	require.NoError(t, err)
	assert.Equal(t, 6, tr.Order)
	assert.Equal(t, track.StatusPending, tr.Status)

	require.NoError(t, s.SetTrackStatus(ctx, tr.ID, track.StatusReady, 210))
	got, err := s.GetTrack(ctx, tr.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPlayable())
	assert.Equal(t, 210, got.DurationSec)

	err = s.SetTrackStatus(ctx, 999, track.StatusFailed, 0)
	assert.True(t, errors.Is(err, ErrUnknownTrack))
}

func TestStore_ReorderTracks(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	a := addReady(t, s, "a", 1, 100)
	b := addReady(t, s, "b", 2, 100)
	c := addReady(t, s, "c", 3, 100)

	require.NoError(t, s.ReorderTracks(ctx, []int64{c.ID, a.ID}))

	all, err := s.ListTracks(ctx)
	require.NoError(t, err)
	ids := []int64{all[0].ID, all[1].ID, all[2].ID}
	assert.Equal(t, []int64{c.ID, a.ID, b.ID}, ids)
	assert.Equal(t, []int{1, 2, 3}, []int{all[0].Order, all[1].Order, all[2].Order})

	err = s.ReorderTracks(ctx, []int64{a.ID, 999})
	assert.True(t, errors.Is(err, ErrUnknownTrack))

	// A failed reorder leaves the catalog untouched.
	all, err = s.ListTracks(ctx)
	require.NoError(t, err)
	assert.Equal(t, c.ID, all[0].ID)
}

func TestStore_SaveMessage(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	m, err := message.Decode(map[string]any{"text": "hello viewers", "role": "brian"})
	require.NoError(t, err)

	id, err := s.SaveMessage(ctx, m)
	require.NoError(t, err)
	assert.Positive(t, id)

	var sent, role string
	var delivered *string
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT sent, role, delivered_at FROM overlay_messages WHERE id = ?`, id).Scan(&sent, &role, &delivered))
	assert.Equal(t, "Y", sent)
	assert.Equal(t, "brian", role)
	require.NotNil(t, delivered)
}

func TestStore_Notices(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	var ids []int64
	for _, text := range []string{"first", "second", "third"} {
		id, err := s.SaveNotice(ctx, message.Notice{Text: text, Slot: "top"})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, s.SetActiveNotices(ctx, []int64{ids[0], ids[2]}))
	notices, err := s.ListNotices(ctx)
	require.NoError(t, err)
	require.Len(t, notices, 3)
	assert.Equal(t, "third", notices[0].Text, "newest first")
	assert.True(t, notices[0].Active)
	assert.False(t, notices[1].Active)
	assert.True(t, notices[2].Active)

	require.NoError(t, s.SetActiveNotices(ctx, nil))
	notices, err = s.ListNotices(ctx)
	require.NoError(t, err)
	for _, n := range notices {
		assert.False(t, n.Active)
	}
}

func TestStore_Ping(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
