package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// RecentChat returns up to limit chat rows, oldest first.
func (s *SQLiteIndex) RecentChat(ctx context.Context, limit int) ([]ChatRow, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, name, text, at FROM (
			SELECT seq, session_id, name, text, at FROM chat ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatRow
	for rows.Next() {
		var c ChatRow
		var at string
		if err := rows.Scan(&c.SessionID, &c.Name, &c.Text, &at); err != nil {
			return nil, err
		}
		c.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Session(ctx context.Context, id string) (SessionRow, bool, error) {
	var se SessionRow
	var joined string
	var left sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, addr, joined_at, left_at FROM sessions WHERE id=?`, id,
	).Scan(&se.ID, &se.Name, &se.Addr, &joined, &left)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRow{}, false, nil
	}
	if err != nil {
		return SessionRow{}, false, err
	}
	se.JoinedAt, _ = time.Parse(time.RFC3339Nano, joined)
	if left.Valid {
		se.LeftAt, _ = time.Parse(time.RFC3339Nano, left.String)
	}
	return se, true, nil
}

func (s *SQLiteIndex) Meta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}
