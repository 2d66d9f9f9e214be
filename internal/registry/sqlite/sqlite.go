package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/roostd/roostd/internal/agent"
)

// DB implements registry.Store for SQLite (modernc.org/sqlite, CGO-free).
// DSN is a filesystem path; use ":memory:" for in-memory.
type DB struct {
	db *sql.DB
}

func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents(
			label TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			target TEXT NOT NULL,
			browser TEXT NOT NULL DEFAULT '',
			keep_alive BOOLEAN NOT NULL,
			run_at_load BOOLEAN NOT NULL,
			successful_exit_only BOOLEAN NOT NULL,
			descriptor_path TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			installed BOOLEAN NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agents_kind ON agents(kind);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Create(ctx context.Context, d agent.Descriptor) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents(label, kind, target, browser, keep_alive, run_at_load, successful_exit_only, descriptor_path, created_at, installed)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		d.Label, string(d.Kind), d.Target, d.Browser,
		d.RunPolicy.KeepAlive, d.RunPolicy.RunAtLoad, d.RunPolicy.SuccessfulExitOnly,
		d.DescriptorPath, d.CreatedAt.UTC(), d.Installed)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return agent.ErrConflict
		}
		return err
	}
	return nil
}

func (s *DB) Get(ctx context.Context, label string) (agent.Descriptor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT label, kind, target, browser, keep_alive, run_at_load, successful_exit_only, descriptor_path, created_at, installed
		 FROM agents WHERE label = ?`, label)
	return scanDescriptor(row)
}

func (s *DB) List(ctx context.Context) ([]agent.Descriptor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, kind, target, browser, keep_alive, run_at_load, successful_exit_only, descriptor_path, created_at, installed
		 FROM agents ORDER BY label`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []agent.Descriptor
	for rows.Next() {
		d, err := scanDescriptor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *DB) SetInstalled(ctx context.Context, label string, installed bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET installed = ? WHERE label = ?`, installed, label)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return agent.ErrNotFound
	}
	return nil
}

func (s *DB) Delete(ctx context.Context, label string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE label = ?`, label)
	return err
}

func (s *DB) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDescriptor(row rowScanner) (agent.Descriptor, error) {
	var d agent.Descriptor
	var kind string
	var createdAt time.Time
	err := row.Scan(&d.Label, &kind, &d.Target, &d.Browser,
		&d.RunPolicy.KeepAlive, &d.RunPolicy.RunAtLoad, &d.RunPolicy.SuccessfulExitOnly,
		&d.DescriptorPath, &createdAt, &d.Installed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return agent.Descriptor{}, agent.ErrNotFound
		}
		return agent.Descriptor{}, err
	}
	d.Kind = agent.Kind(kind)
	d.CreatedAt = createdAt
	return d, nil
}
