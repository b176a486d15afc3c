// Package postgres provides Postgres-backed persistence for rank records.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rankscope/rankscope/internal/storage"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RankStoreConfig controls the Postgres connection pool used for rank rows.
type RankStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RankStore writes one row per keyword record into Postgres, keyed by run.
type RankStore struct {
	pool  execCloser
	table string
}

// NewRankStore creates a Postgres-backed RankStore using the provided config.
func NewRankStore(ctx context.Context, cfg RankStoreConfig) (*RankStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "rank_records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
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
	return &RankStore{pool: pool, table: table}, nil
}

// NewRankStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRankStoreWithPool(pool execCloser, table string) (*RankStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "rank_records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RankStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *RankStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StoreRun inserts one row per record of the run.
func (s *RankStore) StoreRun(ctx context.Context, run storage.RunRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("rank store is not configured")
	}
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	run_ts,
	run_mode,
	target_domain,
	keyword,
	found,
	organic_rank,
	absolute_rank,
	result_type,
	result_url,
	result_title,
	language_code,
	se_domain,
	location_name,
	device,
	os,
	depth,
	note
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
)`, s.table)

	for _, rec := range run.Records {
		args := []any{
			run.ID,
			run.Timestamp,
			run.Mode,
			run.Domain,
			rec.Keyword,
			rec.Found,
			rec.OrganicRank,
			rec.AbsoluteRank,
			rec.Type,
			rec.URL,
			rec.Title,
			rec.LanguageCode,
			rec.SEDomain,
			rec.LocationName,
			string(rec.Device),
			rec.OS,
			rec.Depth,
			rec.Note,
		}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert rank record %q: %w", rec.Keyword, err)
		}
	}
	return nil
}
