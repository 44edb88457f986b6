// Package sqlite provides the SQLite-backed state store for the overlay:
// the now-playing row, the track catalog, chat messages and notices.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/osa030/onair/internal/domain/fault"
)

const schema = `
CREATE TABLE IF NOT EXISTS tracks (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	title        TEXT    NOT NULL,
	artist       TEXT    NOT NULL DEFAULT '',
	album        TEXT    NOT NULL DEFAULT '',
	file_path    TEXT    NOT NULL,
	duration_sec INTEGER NOT NULL DEFAULT 0,
	track_no     INTEGER NOT NULL UNIQUE,
	status       TEXT    NOT NULL DEFAULT 'pending',
	created_at   TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS now_playing (
	id              INTEGER PRIMARY KEY CHECK (id = 1),
	track_id        INTEGER,
	track_title     TEXT    NOT NULL DEFAULT '',
	file_path       TEXT    NOT NULL DEFAULT '',
	duration_sec    INTEGER NOT NULL DEFAULT 0,
	current_pos_sec INTEGER NOT NULL DEFAULT 0 CHECK (current_pos_sec >= 0),
	is_playing      INTEGER NOT NULL DEFAULT 0,
	repeat_mode     TEXT    NOT NULL DEFAULT 'none',
	emotion         TEXT    NOT NULL DEFAULT 'custom',
	started_at      TEXT,
	updated_at      TEXT,
	ended_at        TEXT
);

CREATE TABLE IF NOT EXISTS overlay_messages (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	text          TEXT    NOT NULL,
	role          TEXT    NOT NULL,
	imoji         TEXT,
	overlay_date  TEXT,
	broadcast_ymd TEXT,
	seq           INTEGER,
	priority      INTEGER NOT NULL DEFAULT 10,
	type          TEXT    NOT NULL DEFAULT 'chat',
	session_id    TEXT    NOT NULL DEFAULT 'live',
	repeatable    TEXT    NOT NULL DEFAULT 'N',
	with_promo    TEXT    NOT NULL DEFAULT 'N',
	sent          TEXT    NOT NULL DEFAULT 'N',
	created_at    TEXT    NOT NULL,
	delivered_at  TEXT
);

CREATE TABLE IF NOT EXISTS overlay_notices (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	text       TEXT NOT NULL,
	slot       TEXT NOT NULL DEFAULT 'top',
	is_active  TEXT NOT NULL DEFAULT 'N',
	created_at TEXT NOT NULL
);
`

// Store is the SQLite state store.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fault.Storage(err, "failed to create database directory")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fault.Storage(err, "failed to open database")
	}
	// A single connection keeps the pragmas below in effect for every query.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, `
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
		PRAGMA synchronous = NORMAL;
	`); err != nil {
		db.Close()
		return nil, fault.Storage(err, "failed to configure database")
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fault.Storage(err, "failed to create schema")
	}

	zlog.Info().Msgf("sqlite: database opened: path=%s", path)
	return &Store{
		db:   db,
		path: path,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return fault.Storage(s.db.PingContext(ctx), "database ping failed")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid timestamp %q", ns.String)
	}
	return t, nil
}

func yn(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}
