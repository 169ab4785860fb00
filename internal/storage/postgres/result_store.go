// Package postgres records batch results in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/logohunter/internal/batch"
	"github.com/JakeFAU/logohunter/internal/candidate"
)

const defaultTable = "logo_results"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrNotFound is returned when a domain has no recorded result.
var ErrNotFound = errors.New("result not found")

// Config controls the connection pool.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// Pool is the subset of pgxpool.Pool the store uses.
type Pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ResultStore writes one row per batch Result. Expected schema:
//
//	CREATE TABLE logo_results (
//		run_id      TEXT NOT NULL,
//		domain      TEXT NOT NULL,
//		line        INT,
//		outcome     TEXT NOT NULL,
//		url         TEXT,
//		format      TEXT,
//		width       INT,
//		height      INT,
//		score       INT,
//		attempts    INT,
//		stored      TEXT,
//		error       TEXT,
//		duration_ms BIGINT,
//		recorded_at TIMESTAMPTZ NOT NULL
//	);
type ResultStore struct {
	pool  Pool
	table string
	now   func() time.Time
}

// Open connects a pool with cfg.
func Open(ctx context.Context, cfg Config) (*ResultStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool builds a store over an existing pool.
func NewWithPool(pool Pool, table string) (*ResultStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ResultStore{pool: pool, table: table, now: time.Now}, nil
}

// Close releases the pool.
func (s *ResultStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Record inserts res.
func (s *ResultStore) Record(ctx context.Context, res batch.Result) error {
	if s == nil || s.pool == nil {
		return errors.New("result store is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id, domain, line, outcome, url, format, width, height,
	score, attempts, stored, error, duration_ms, recorded_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)`, s.table)
	_, err := s.pool.Exec(ctx, query,
		res.RunID,
		res.Domain,
		res.Line,
		res.Outcome,
		res.URL,
		string(res.Format),
		res.Width,
		res.Height,
		res.Score,
		res.Attempts,
		res.Stored,
		res.Error,
		res.DurationMS,
		s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert result for %s: %w", res.Domain, err)
	}
	return nil
}

// Latest returns the most recent result recorded for domain.
func (s *ResultStore) Latest(ctx context.Context, domain string) (batch.Result, error) {
	query := fmt.Sprintf(`
SELECT run_id, domain, line, outcome, url, format, width, height,
	score, attempts, stored, error, duration_ms
FROM %s
WHERE domain = $1
ORDER BY recorded_at DESC
LIMIT 1`, s.table)

	var (
		res    batch.Result
		format string
	)
	err := s.pool.QueryRow(ctx, query, domain).Scan(
		&res.RunID,
		&res.Domain,
		&res.Line,
		&res.Outcome,
		&res.URL,
		&format,
		&res.Width,
		&res.Height,
		&res.Score,
		&res.Attempts,
		&res.Stored,
		&res.Error,
		&res.DurationMS,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return batch.Result{}, ErrNotFound
		}
		return batch.Result{}, fmt.Errorf("query latest result for %s: %w", domain, err)
	}
	res.Format = candidate.Format(format)
	return res, nil
}
