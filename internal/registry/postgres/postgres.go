package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/roostd/roostd/internal/agent"
)

// DB implements registry.Store for PostgreSQL via pgx's database/sql driver.
type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
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
			created_at TIMESTAMPTZ NOT NULL,
			installed BOOLEAN NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agents_kind ON agents(kind);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Create(ctx context.Context, d agent.Descriptor) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO agents(label, kind, target, browser, keep_alive, run_at_load, successful_exit_only, descriptor_path, created_at, installed)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`,
		d.Label, string(d.Kind), d.Target, d.Browser,
		d.RunPolicy.KeepAlive, d.RunPolicy.RunAtLoad, d.RunPolicy.SuccessfulExitOnly,
		d.DescriptorPath, d.CreatedAt.UTC(), d.Installed)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return agent.ErrConflict
		}
		return err
	}
	return nil
}

func (p *DB) Get(ctx context.Context, label string) (agent.Descriptor, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT label, kind, target, browser, keep_alive, run_at_load, successful_exit_only, descriptor_path, created_at, installed
		FROM agents WHERE label = $1;`, label)
	return scanDescriptor(row)
}

func (p *DB) List(ctx context.Context) ([]agent.Descriptor, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT label, kind, target, browser, keep_alive, run_at_load, successful_exit_only, descriptor_path, created_at, installed
		FROM agents ORDER BY label;`)
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

func (p *DB) SetInstalled(ctx context.Context, label string, installed bool) error {
	res, err := p.db.ExecContext(ctx, `UPDATE agents SET installed = $1 WHERE label = $2;`, installed, label)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return agent.ErrNotFound
	}
	return nil
}

func (p *DB) Delete(ctx context.Context, label string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM agents WHERE label = $1;`, label)
	return err
}

func (p *DB) Close() error { return p.db.Close() }

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
