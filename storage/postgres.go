package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "priceflow/config"
	"priceflow/logger"
	"priceflow/models"
)

// ErrNoSymbols is returned by CountSince when called without symbols.
var ErrNoSymbols = errors.New("no symbols given")

// Store writes price points into PostgreSQL and answers freshness queries.
type Store struct {
	pool      *pgxpool.Pool
	layout    tableLayout
	batchSize int
	log       *logger.Log
}

// Open builds a connection pool from cfg and checks it with a ping.
func Open(ctx context.Context, cfg appconfig.PostgresConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	s := New(pool, cfg)
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s.log.WithComponent("store_writer").WithFields(logger.Fields{
		"host":      poolCfg.ConnConfig.Host,
		"database":  poolCfg.ConnConfig.Database,
		"table":     cfg.Table.Name,
		"max_conns": poolCfg.MaxConns,
	}).Info("connected to postgres")
	return s, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, cfg appconfig.PostgresConfig) *Store {
	layout := newTableLayout(cfg.Table)
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 500
	}
	if limit := layout.maxRowsPerStatement(); batch > limit {
		batch = limit
	}
	return &Store{
		pool:      pool,
		layout:    layout,
		batchSize: batch,
		log:       logger.GetLogger(),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Upsert writes all rows of one symbol in a single transaction and returns
// the number of rows written after collapsing duplicate timestamps. An empty
// input returns immediately without touching the database.
func (s *Store) Upsert(ctx context.Context, symbol string, rows []models.PricePoint) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	for _, r := range rows {
		if r.Symbol != symbol {
			return 0, fmt.Errorf("upsert %s: row carries symbol %q", symbol, r.Symbol)
		}
	}

	start := time.Now()
	rows = dedupe(rows)

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for i := 0; i < len(rows); i += s.batchSize {
			j := i + s.batchSize
			if j > len(rows) {
				j = len(rows)
			}
			chunk := rows[i:j]
			if _, err := tx.Exec(ctx, s.layout.upsertSQL(len(chunk)), s.layout.upsertArgs(chunk)...); err != nil {
				return fmt.Errorf("rows %d-%d: %w", i, j-1, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("upsert %s: %w", symbol, err)
	}

	logger.LogPerformanceEntry(s.log.WithFields(nil), "store_writer", "upsert", time.Since(start), logger.Fields{
		"symbol": symbol,
		"rows":   len(rows),
	})
	return len(rows), nil
}

// CountSince counts rows per symbol with a timestamp at or after since.
// Every requested symbol is present in the result, zero when it has no rows.
func (s *Store) CountSince(ctx context.Context, symbols []string, since time.Time) (map[string]int64, error) {
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}
	counts := make(map[string]int64, len(symbols))
	for _, sym := range symbols {
		counts[sym] = 0
	}

	rows, err := s.pool.Query(ctx, s.layout.countSinceSQL(), since.UTC(), symbols)
	if err != nil {
		return nil, fmt.Errorf("count rows since %s: %w", since.Format(time.RFC3339), err)
	}
	defer rows.Close()

	for rows.Next() {
		var sym string
		var n int64
		if err := rows.Scan(&sym, &n); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[sym] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}
	return counts, nil
}

// DeleteBefore removes rows older than cutoff and returns how many went.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, s.layout.deleteBeforeSQL(), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete rows before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}
