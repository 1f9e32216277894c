package repository

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
)

// DBAdapter runs fully rendered SQL against either a pgx pool or a database/sql handle.
type DBAdapter interface {
	Query(ctx context.Context, query string) (DBRows, error)
	Exec(ctx context.Context, query string) (DBResult, error)
}

// DBRows is the subset of a result set the repositories read.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// DBResult reports the outcome of a statement.
type DBResult interface {
	RowsAffected() (int64, error)
}

// PGXAdapter executes through pgxpool.
type PGXAdapter struct {
	pool *pgxpool.Pool
}

// NewPGXAdapter wraps a pool.
func NewPGXAdapter(pool *pgxpool.Pool) *PGXAdapter {
	return &PGXAdapter{pool: pool}
}

func (p *PGXAdapter) Query(ctx context.Context, query string) (DBRows, error) {
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return &pgxRows{rows: rows}, nil
}

func (p *PGXAdapter) Exec(ctx context.Context, query string) (DBResult, error) {
	tag, err := p.pool.Exec(ctx, query)
	if err != nil {
		return nil, err
	}
	return &pgxResult{tag: tag}, nil
}

type pgxRows struct {
	rows pgx.Rows
}

func (p *pgxRows) Next() bool             { return p.rows.Next() }
func (p *pgxRows) Scan(dest ...any) error { return p.rows.Scan(dest...) }
func (p *pgxRows) Err() error             { return p.rows.Err() }

func (p *pgxRows) Close() error {
	p.rows.Close()
	return nil
}

type pgxResult struct {
	tag pgconn.CommandTag
}

func (p *pgxResult) RowsAffected() (int64, error) {
	return p.tag.RowsAffected(), nil
}

// SQLXAdapter executes through sqlx and lib/pq.
type SQLXAdapter struct {
	db *sqlx.DB
}

// NewSQLXAdapter wraps a sqlx handle.
func NewSQLXAdapter(db *sqlx.DB) *SQLXAdapter {
	return &SQLXAdapter{db: db}
}

func (s *SQLXAdapter) Query(ctx context.Context, query string) (DBRows, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &stdRows{rows: rows}, nil
}

func (s *SQLXAdapter) Exec(ctx context.Context, query string) (DBResult, error) {
	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return result, nil
}

type stdRows struct {
	rows *sql.Rows
}

func (s *stdRows) Next() bool             { return s.rows.Next() }
func (s *stdRows) Scan(dest ...any) error { return s.rows.Scan(dest...) }
func (s *stdRows) Err() error             { return s.rows.Err() }
func (s *stdRows) Close() error           { return s.rows.Close() }
