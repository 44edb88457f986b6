package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/osa030/onair/internal/domain/fault"
	"github.com/osa030/onair/internal/domain/message"
)

// SaveMessage stores a chat message and marks it delivered.
func (s *Store) SaveMessage(ctx context.Context, m *message.Message) (int64, error) {
	now := s.now()
	created := m.Timestamp
	if created.IsZero() {
		created = now
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO overlay_messages
			(text, role, imoji, overlay_date, broadcast_ymd, seq, priority, type, session_id,
			 repeatable, with_promo, sent, created_at, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'Y', ?, ?)`,
		m.Text, m.Role, nullString(m.Imoji), nullString(m.OverlayDate), nullString(m.BroadcastYMD),
		sql.NullInt64{Int64: int64(m.Seq), Valid: m.Seq > 0}, m.Priority, m.Type, m.SessionID,
		m.Repeatable, m.WithPromo, formatTime(created), formatTime(now),
	)
	if err != nil {
		return 0, fault.Storage(err, "failed to insert message")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fault.Storage(err, "failed to read message id")
	}
	return id, nil
}

// SaveNotice stores a notice and returns its ID.
func (s *Store) SaveNotice(ctx context.Context, n message.Notice) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO overlay_notices (text, slot, is_active, created_at) VALUES (?, ?, ?, ?)`,
		n.Text, n.Slot, yn(n.Active), formatTime(s.now()))
	if err != nil {
		return 0, fault.Storage(err, "failed to insert notice")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fault.Storage(err, "failed to read notice id")
	}
	return id, nil
}

// ListNotices returns all notices, newest first.
func (s *Store) ListNotices(ctx context.Context) ([]message.Notice, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, text, slot, is_active FROM overlay_notices ORDER BY id DESC`)
	if err != nil {
		return nil, fault.Storage(err, "failed to list notices")
	}
	defer rows.Close()

	var notices []message.Notice
	for rows.Next() {
		var n message.Notice
		var active string
		if err := rows.Scan(&n.ID, &n.Text, &n.Slot, &active); err != nil {
			return nil, fault.Storage(err, "failed to scan notice")
		}
		n.Active = active == "Y"
		notices = append(notices, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Storage(err, "failed to list notices")
	}
	return notices, nil
}

// SetActiveNotices activates exactly the given notices and deactivates the rest.
func (s *Store) SetActiveNotices(ctx context.Context, ids []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault.Storage(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE overlay_notices SET is_active = 'N'`); err != nil {
		return fault.Storage(err, "failed to deactivate notices")
	}
	if len(ids) > 0 {
		args := make([]any, len(ids))
		for i, id := range ids {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
		if _, err := tx.ExecContext(ctx, `UPDATE overlay_notices SET is_active = 'Y' WHERE id IN (`+placeholders+`)`, args...); err != nil {
			return fault.Storage(err, "failed to activate notices")
		}
	}

	return fault.Storage(tx.Commit(), "failed to commit notice update")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
