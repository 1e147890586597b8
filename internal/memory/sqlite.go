package memory

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite. It does not serialize access by
// itself; the Registry's per-room locking provides that.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	for _, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// DB exposes the underlying handle so collaborators (e.g. the workflow
// journal) can share one database file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Append(ctx context.Context, roomID string, msg Message, dedupeKey string) (Message, error) {
	if dedupeKey != "" {
		var existing Message
		err := s.db.QueryRowContext(ctx,
			`SELECT seq, role, content, ts FROM messages WHERE room_id = ? AND dedupe_key = ?`,
			roomID, dedupeKey,
		).Scan(&existing.Seq, &existing.Role, &existing.Content, &existing.Ts)
		if err == nil {
			return existing, nil
		}
		if err != sql.ErrNoRows {
			return Message{}, storeErr("append", err)
		}
	}

	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE room_id = ?`,
		roomID,
	).Scan(&seq)
	if err != nil {
		return Message{}, storeErr("append", err)
	}

	if msg.Ts == 0 {
		msg.Ts = time.Now().Unix()
	}

	var key *string
	if dedupeKey != "" {
		key = &dedupeKey
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (room_id, seq, role, content, ts, dedupe_key) VALUES (?, ?, ?, ?, ?, ?)`,
		roomID, seq, msg.Role, msg.Content, msg.Ts, key,
	)
	if err != nil {
		return Message{}, storeErr("append", err)
	}

	msg.Seq = seq
	return msg, nil
}

func (s *SQLiteStore) Context(ctx context.Context, roomID string, limit int) (ContextView, error) {
	var view ContextView

	err := s.db.QueryRowContext(ctx,
		`SELECT summary FROM summaries WHERE room_id = ?`,
		roomID,
	).Scan(&view.Summary)
	if err != nil && err != sql.ErrNoRows {
		return ContextView{}, storeErr("context", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, role, content, ts FROM (
			SELECT seq, role, content, ts
			FROM messages WHERE room_id = ? ORDER BY seq DESC LIMIT ?
		) sub ORDER BY seq ASC`,
		roomID, limit,
	)
	if err != nil {
		return ContextView{}, storeErr("context", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Seq, &msg.Role, &msg.Content, &msg.Ts); err != nil {
			return ContextView{}, storeErr("context", err)
		}
		view.Messages = append(view.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return ContextView{}, storeErr("context", err)
	}

	return view, nil
}

func (s *SQLiteStore) SetSummary(ctx context.Context, roomID, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO summaries (room_id, summary, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
		roomID, text,
	)
	if err != nil {
		return storeErr("set summary", err)
	}
	return nil
}

func (s *SQLiteStore) ApproxSize(ctx context.Context, roomID string) (int64, error) {
	var size int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(LENGTH(content)), 0) FROM messages WHERE room_id = ?`,
		roomID,
	).Scan(&size)
	if err != nil {
		return 0, storeErr("approx size", err)
	}
	return size, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
