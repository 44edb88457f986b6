package sqlite

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/osa030/onair/internal/app/playback"
	"github.com/osa030/onair/internal/domain/fault"
)

// ReadPlaybackState returns the now-playing row, or nil when none exists.
func (s *Store) ReadPlaybackState(ctx context.Context) (*playback.State, error) {
	var (
		st                        playback.State
		trackID                   sql.NullInt64
		playing                   int
		mode                      string
		started, updated, endedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT track_id, track_title, file_path, duration_sec, current_pos_sec,
		       is_playing, repeat_mode, emotion, started_at, updated_at, ended_at
		FROM now_playing WHERE id = 1`).Scan(
		&trackID, &st.TrackTitle, &st.FilePath, &st.DurationSec, &st.PositionSec,
		&playing, &mode, &st.Emotion, &started, &updated, &endedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Storage(err, "failed to read now playing")
	}

	if trackID.Valid {
		id := trackID.Int64
		st.TrackID = &id
	}
	st.IsPlaying = playing != 0
	if st.RepeatMode, err = playback.ParseRepeatMode(mode); err != nil {
		return nil, fault.Storage(err, "invalid repeat mode in now playing")
	}
	if st.StartedAt, err = parseTime(started); err != nil {
		return nil, fault.Storage(err, "invalid started_at")
	}
	if st.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fault.Storage(err, "invalid updated_at")
	}
	if endedAt.Valid {
		t, err := parseTime(endedAt)
		if err != nil {
			return nil, fault.Storage(err, "invalid ended_at")
		}
		st.EndedAt = &t
	}
	return &st, nil
}

// WritePlaybackState creates or replaces the now-playing row.
func (s *Store) WritePlaybackState(ctx context.Context, st playback.State) error {
	if st.PositionSec < 0 {
		return errors.Newf("negative position %d", st.PositionSec)
	}

	var trackID sql.NullInt64
	if st.TrackID != nil {
		trackID = sql.NullInt64{Int64: *st.TrackID, Valid: true}
	}
	var endedAt sql.NullString
	if st.EndedAt != nil {
		endedAt = formatTime(*st.EndedAt)
	}
	updated := st.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}
	playing := 0
	if st.IsPlaying {
		playing = 1
	}
	mode := st.RepeatMode
	if mode == "" {
		mode = playback.RepeatNone
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO now_playing (id, track_id, track_title, file_path, duration_sec, current_pos_sec,
		                         is_playing, repeat_mode, emotion, started_at, updated_at, ended_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			track_id = excluded.track_id,
			track_title = excluded.track_title,
			file_path = excluded.file_path,
			duration_sec = excluded.duration_sec,
			current_pos_sec = excluded.current_pos_sec,
			is_playing = excluded.is_playing,
			repeat_mode = excluded.repeat_mode,
			emotion = excluded.emotion,
			started_at = excluded.started_at,
			updated_at = excluded.updated_at,
			ended_at = excluded.ended_at`,
		trackID, st.TrackTitle, st.FilePath, st.DurationSec, st.PositionSec,
		playing, mode.String(), st.Emotion, formatTime(st.StartedAt), formatTime(updated), endedAt,
	)
	return fault.Storage(err, "failed to write now playing")
}
