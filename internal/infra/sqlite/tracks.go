package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/osa030/onair/internal/domain/fault"
	"github.com/osa030/onair/internal/domain/track"
)

// ErrUnknownTrack is returned for an ID not in the catalog. It is marked fault.ErrNotFound.
var ErrUnknownTrack = errors.New("unknown track")

const trackColumns = `id, title, artist, album, file_path, duration_sec, track_no, status`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrack(row rowScanner) (*track.Track, error) {
	var t track.Track
	var status string
	if err := row.Scan(&t.ID, &t.Title, &t.Artist, &t.Album, &t.FilePath, &t.DurationSec, &t.Order, &status); err != nil {
		return nil, err
	}
	t.Status = track.Status(status)
	return &t, nil
}

// queryTrack runs a single-row track query and maps no rows to nil.
func (s *Store) queryTrack(ctx context.Context, query string, args ...any) (*track.Track, error) {
	t, err := scanTrack(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Storage(err, "failed to query track")
	}
	return t, nil
}

// AddTrack inserts a track and returns it with its assigned ID.
// A zero Order appends the track after the last one.
func (s *Store) AddTrack(ctx context.Context, t track.Track) (*track.Track, error) {
	if t.Status == "" {
		t.Status = track.StatusPending
	}
	if t.Order == 0 {
		if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(track_no), 0) + 1 FROM tracks`).Scan(&t.Order); err != nil {
			return nil, fault.Storage(err, "failed to compute track order")
		}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tracks (title, artist, album, file_path, duration_sec, track_no, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Title, t.Artist, t.Album, t.FilePath, t.DurationSec, t.Order, string(t.Status), formatTime(s.now()),
	)
	if err != nil {
		return nil, fault.Storage(err, "failed to insert track")
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return nil, fault.Storage(err, "failed to read track id")
	}
	return &t, nil
}

// SetTrackStatus updates the readiness of a track, and its duration once known.
func (s *Store) SetTrackStatus(ctx context.Context, id int64, status track.Status, durationSec int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tracks SET status = ?, duration_sec = CASE WHEN ? > 0 THEN ? ELSE duration_sec END WHERE id = ?`,
		string(status), durationSec, durationSec, id)
	if err != nil {
		return fault.Storage(err, "failed to update track status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fault.NotFound(ErrUnknownTrack, fmt.Sprintf("track %d", id))
	}
	return nil
}

// ListTracks returns every track ordered by track number.
func (s *Store) ListTracks(ctx context.Context) ([]track.Track, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+trackColumns+` FROM tracks ORDER BY track_no ASC`)
	if err != nil {
		return nil, fault.Storage(err, "failed to list tracks")
	}
	defer rows.Close()

	var tracks []track.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, fault.Storage(err, "failed to scan track")
		}
		tracks = append(tracks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Storage(err, "failed to list tracks")
	}
	return tracks, nil
}

// GetTrack returns the track with the given ID, or nil.
func (s *Store) GetTrack(ctx context.Context, id int64) (*track.Track, error) {
	return s.queryTrack(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = ?`, id)
}

// TrackAfter returns the ready track with the smallest order greater than order, or nil.
func (s *Store) TrackAfter(ctx context.Context, order int) (*track.Track, error) {
	return s.queryTrack(ctx, `SELECT `+trackColumns+` FROM tracks
		WHERE track_no > ? AND status = 'ready' AND duration_sec > 0
		ORDER BY track_no ASC LIMIT 1`, order)
}

// FirstTrack returns the ready track with the smallest order, or nil.
func (s *Store) FirstTrack(ctx context.Context) (*track.Track, error) {
	return s.queryTrack(ctx, `SELECT `+trackColumns+` FROM tracks
		WHERE status = 'ready' AND duration_sec > 0
		ORDER BY track_no ASC LIMIT 1`)
}

// ReorderTracks renumbers the given tracks 1..n in the given order.
// Tracks not listed keep their relative order after them.
func (s *Store) ReorderTracks(ctx context.Context, ids []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault.Storage(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM tracks ORDER BY track_no ASC`)
	if err != nil {
		return fault.Storage(err, "failed to list tracks")
	}
	var current []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fault.Storage(err, "failed to scan track id")
		}
		current = append(current, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fault.Storage(err, "failed to list tracks")
	}

	known := make(map[int64]bool, len(current))
	for _, id := range current {
		known[id] = true
	}
	listed := make(map[int64]bool, len(ids))
	order := make([]int64, 0, len(current))
	for _, id := range ids {
		if !known[id] {
			return fault.NotFound(ErrUnknownTrack, fmt.Sprintf("track %d", id))
		}
		if listed[id] {
			continue
		}
		listed[id] = true
		order = append(order, id)
	}
	for _, id := range current {
		if !listed[id] {
			order = append(order, id)
		}
	}

	// Move everything out of the way first so the unique index holds at each step.
	if _, err := tx.ExecContext(ctx, `UPDATE tracks SET track_no = -track_no`); err != nil {
		return fault.Storage(err, "failed to reorder tracks")
	}
	for i, id := range order {
		if _, err := tx.ExecContext(ctx, `UPDATE tracks SET track_no = ? WHERE id = ?`, i+1, id); err != nil {
			return fault.Storage(err, "failed to reorder tracks")
		}
	}

	return fault.Storage(tx.Commit(), "failed to commit reorder")
}
