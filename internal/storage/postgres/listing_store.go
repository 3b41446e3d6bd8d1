// Package postgres upserts crawled listings into a Postgres table.
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

	"github.com/JakeFAU/openrice-crawler/internal/crawler"
)

// DefaultTable receives listings when no table is configured.
const DefaultTable = "openrice_listings"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ListingStoreConfig controls the Postgres connection pool used for listing rows.
type ListingStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ListingStore writes listing rows into Postgres, keyed by listing URL.
type ListingStore struct {
	pool  pool
	table string
}

// NewListingStore connects a pool using cfg.
func NewListingStore(ctx context.Context, cfg ListingStoreConfig) (*ListingStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ListingStore{pool: p, table: table}, nil
}

// NewListingStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewListingStoreWithPool(p pool, table string) (*ListingStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ListingStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ListingStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the listing table when it does not exist.
func (s *ListingStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	listing_key   TEXT PRIMARY KEY,
	last_run_id   TEXT NOT NULL,
	name          TEXT NOT NULL,
	cuisine       TEXT NOT NULL,
	dish_type     TEXT NOT NULL,
	price_band    TEXT NOT NULL,
	phone         TEXT NOT NULL DEFAULT '',
	opening_hours TEXT NOT NULL DEFAULT '',
	rating        DOUBLE PRECISION NOT NULL DEFAULT 0,
	review_count  INTEGER NOT NULL DEFAULT 0,
	special_dish  TEXT NOT NULL DEFAULT '',
	address       TEXT NOT NULL DEFAULT '',
	url           TEXT NOT NULL DEFAULT '',
	district      TEXT NOT NULL,
	first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// SaveListings upserts records in one transaction and returns the number of
// rows written. A failure rolls back the whole batch.
func (s *ListingStore) SaveListings(ctx context.Context, runID string, records []crawler.ListingRecord) (int, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("listing store is not configured")
	}
	if runID == "" {
		return 0, errors.New("run id is required")
	}
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	query := s.upsertQuery()
	written := 0
	for _, rec := range records {
		tag, err := tx.Exec(ctx, query,
			ListingKey(rec),
			runID,
			rec.Name,
			rec.Cuisine,
			rec.DishType,
			rec.PriceBand,
			rec.Phone,
			rec.OpeningHours,
			rec.Rating,
			rec.ReviewCount,
			rec.SpecialDish,
			rec.Address,
			rec.URL,
			rec.District,
		)
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				return 0, fmt.Errorf("upsert %q: %w (rollback: %v)", rec.Name, err, rbErr)
			}
			return 0, fmt.Errorf("upsert %q: %w", rec.Name, err)
		}
		written += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit listings: %w", err)
	}
	return written, nil
}

func (s *ListingStore) upsertQuery() string {
	return fmt.Sprintf(`
INSERT INTO %s (
	listing_key,
	last_run_id,
	name,
	cuisine,
	dish_type,
	price_band,
	phone,
	opening_hours,
	rating,
	review_count,
	special_dish,
	address,
	url,
	district
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
ON CONFLICT (listing_key) DO UPDATE SET
	last_run_id = EXCLUDED.last_run_id,
	name = EXCLUDED.name,
	cuisine = EXCLUDED.cuisine,
	dish_type = EXCLUDED.dish_type,
	price_band = EXCLUDED.price_band,
	phone = EXCLUDED.phone,
	opening_hours = EXCLUDED.opening_hours,
	rating = EXCLUDED.rating,
	review_count = EXCLUDED.review_count,
	special_dish = EXCLUDED.special_dish,
	address = EXCLUDED.address,
	district = EXCLUDED.district,
	last_seen_at = now()`, s.table)
}

// ListingKey returns the primary key for a record: its URL, or
// district|name|address when the listing has no link.
func ListingKey(rec crawler.ListingRecord) string {
	if rec.URL != "" {
		return rec.URL
	}
	return rec.District + "|" + rec.Name + "|" + rec.Address
}
