package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/roostd/roostd/internal/history"
)

// Sink appends events to a SQLite table, the default history destination
// for single-host kiosk deployments.
type Sink struct {
	db *sql.DB
}

func New(path string) (*Sink, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	_, _ = db.Exec("PRAGMA busy_timeout=3000;")
	s := &Sink{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agent_history(
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			label TEXT NOT NULL,
			pid INTEGER NOT NULL,
			exit_status INTEGER NOT NULL,
			occurred_at TIMESTAMP NOT NULL,
			detail TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agent_history_label ON agent_history(label);`,
		`CREATE INDEX IF NOT EXISTS idx_agent_history_occurred ON agent_history(occurred_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_history(id, type, label, pid, exit_status, occurred_at, detail) VALUES(?,?,?,?,?,?,?)`,
		e.ID, string(e.Type), e.Label, e.PID, e.ExitStatus, e.OccurredAt.UTC(), e.Detail)
	return err
}

// Recent returns the latest events for a label, newest first. limit <= 0
// defaults to 50.
func (s *Sink) Recent(ctx context.Context, label string, limit int) ([]history.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, label, pid, exit_status, occurred_at, detail
		 FROM agent_history WHERE label = ? ORDER BY occurred_at DESC LIMIT ?`, label, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []history.Event
	for rows.Next() {
		var e history.Event
		var typ string
		if err := rows.Scan(&e.ID, &typ, &e.Label, &e.PID, &e.ExitStatus, &e.OccurredAt, &e.Detail); err != nil {
			return nil, err
		}
		e.Type = history.EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Sink) Close() error { return s.db.Close() }
