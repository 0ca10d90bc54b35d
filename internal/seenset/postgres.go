package seenset

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable is the Postgres table holding processed post URLs.
const DefaultTable = "processed_threads"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type queryExecCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// PostgresConfig controls the Postgres connection pool.
type PostgresConfig struct {
	DSN      string
	Table    string
	MaxConns int32
}

// Postgres stores members as rows keyed by post URL.
type Postgres struct {
	pool  queryExecCloser
	table string
}

// NewPostgres connects to Postgres using cfg.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database url is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewPostgresWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresWithPool constructs a set from an existing pool (primarily for testing).
func NewPostgresWithPool(pool queryExecCloser, table string) (*Postgres, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Postgres{pool: pool, table: table}, nil
}

// EnsureSchema creates the backing table when missing.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	post_url TEXT PRIMARY KEY,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Contains implements Set.
func (s *Postgres) Contains(ctx context.Context, postURL string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE post_url = $1)`, s.table)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, postURL).Scan(&exists); err != nil {
		return false, fmt.Errorf("query %s: %w", s.table, err)
	}
	return exists, nil
}

// Add implements Set. Re-adding a member is a no-op.
func (s *Postgres) Add(ctx context.Context, postURL string) error {
	_, err := s.AddIfAbsent(ctx, postURL)
	return err
}

// AddIfAbsent implements Set. The primary key makes the insert the arbiter
// between concurrent callers.
func (s *Postgres) AddIfAbsent(ctx context.Context, postURL string) (bool, error) {
	query := fmt.Sprintf(`INSERT INTO %s (post_url) VALUES ($1) ON CONFLICT (post_url) DO NOTHING`, s.table)
	tag, err := s.pool.Exec(ctx, query, postURL)
	if err != nil {
		return false, fmt.Errorf("insert %s: %w", s.table, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Close releases the underlying pool resources.
func (s *Postgres) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
