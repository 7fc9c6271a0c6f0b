// Package postgres provides the pgx-backed rating store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/benlen10/esrb-tool-v2/internal/ratings"
	"github.com/benlen10/esrb-tool-v2/internal/store"
)

const recordColumns = `game_id, game_title, platform, rating, descriptors, url, summary, created_at`

// pgxPool is the subset of pgxpool.Pool used by the store. pgxmock's pool
// satisfies it, which keeps the store testable without a live database.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists rating records and scrape-run log entries in Postgres.
type Store struct {
	pool pgxPool
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN      string
	MaxConns int32
}

// New connects to Postgres and bootstraps the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
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
	s := &Store{pool: pool}
	if err := s.bootstrap(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing). No schema bootstrap is performed.
func NewWithPool(pool pgxPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// bootstrap creates the tables and indexes if they do not exist yet.
func (s *Store) bootstrap(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ratings (
			game_id BIGINT PRIMARY KEY,
			game_title TEXT NOT NULL,
			platform TEXT NOT NULL DEFAULT '',
			rating TEXT NOT NULL DEFAULT '',
			descriptors TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS scrape_log (
			id BIGSERIAL PRIMARY KEY,
			scrape_date TIMESTAMPTZ NOT NULL DEFAULT now(),
			games_added INT NOT NULL,
			games_skipped INT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ratings_rating ON ratings (rating)`,
		`CREATE INDEX IF NOT EXISTS idx_ratings_title ON ratings (game_title)`,
		`CREATE INDEX IF NOT EXISTS idx_ratings_platform ON ratings (platform)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}

// Exists reports whether a record with the given game id is stored.
func (s *Store) Exists(ctx context.Context, gameID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ratings WHERE game_id = $1)`, gameID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check game %d: %w", gameID, err)
	}
	return exists, nil
}

// Insert stores a new rating record. The row commits on its own; created_at
// is set by the database at insert time and never changes afterwards.
func (s *Store) Insert(ctx context.Context, rec ratings.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ratings (game_id, game_title, platform, rating, descriptors, url, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.GameID, rec.Title, rec.Platform, rec.Rating, rec.Descriptors, rec.URL, rec.Summary,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("insert game %d: %w", rec.GameID, store.ErrDuplicateID)
		}
		return fmt.Errorf("insert game %d: %w", rec.GameID, err)
	}
	return nil
}

// AppendRunLog records one completed scrape run.
func (s *Store) AppendRunLog(ctx context.Context, added, skipped int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scrape_log (games_added, games_skipped) VALUES ($1, $2)`,
		added, skipped,
	)
	if err != nil {
		return fmt.Errorf("append run log: %w", err)
	}
	return nil
}

// List returns one page of records matching the filters plus the total count.
func (s *Store) List(ctx context.Context, filters store.ListFilters) (store.ListResult, error) {
	if filters.PerPage <= 0 {
		filters.PerPage = 50
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}

	where, args := buildWhere(filters.Search, filters.Platform, filters.Rating)

	countQuery := "SELECT COUNT(*) FROM ratings" + where
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return store.ListResult{}, fmt.Errorf("count ratings: %w", err)
	}

	dir := "ASC"
	if filters.Descending {
		dir = "DESC"
	}
	query := fmt.Sprintf("SELECT %s FROM ratings%s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		recordColumns, where, store.ParseSortColumn(string(filters.Sort)), dir,
		len(args)+1, len(args)+2)
	args = append(args, filters.PerPage, (filters.Page-1)*filters.PerPage)

	records, err := s.queryRecords(ctx, query, args...)
	if err != nil {
		return store.ListResult{}, err
	}
	return store.ListResult{Records: records, Total: total}, nil
}

// Export returns all rows matching the filter set, ordered by title.
func (s *Store) Export(ctx context.Context, filters store.ExportFilters) ([]ratings.Record, error) {
	where, args := buildWhere(filters.Search, filters.Platform, filters.Rating)
	query := fmt.Sprintf("SELECT %s FROM ratings%s ORDER BY game_title", recordColumns, where)
	return s.queryRecords(ctx, query, args...)
}

// ExportByTitle returns title-filtered rows; the caller applies any
// platform/rating filtering in application code.
func (s *Store) ExportByTitle(ctx context.Context, search string) ([]ratings.Record, error) {
	where, args := buildWhere(search, "", "")
	query := fmt.Sprintf("SELECT %s FROM ratings%s ORDER BY game_title", recordColumns, where)
	return s.queryRecords(ctx, query, args...)
}

// Stats summarizes the stored corpus.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	var stats store.Stats
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ratings`).Scan(&stats.Total); err != nil {
		return store.Stats{}, fmt.Errorf("count ratings: %w", err)
	}

	platforms, err := s.queryStrings(ctx,
		`SELECT DISTINCT platform FROM ratings WHERE platform <> '' ORDER BY platform`)
	if err != nil {
		return store.Stats{}, fmt.Errorf("distinct platforms: %w", err)
	}
	stats.Platforms = platforms

	ratingVals, err := s.queryStrings(ctx,
		`SELECT DISTINCT rating FROM ratings WHERE rating <> '' ORDER BY rating`)
	if err != nil {
		return store.Stats{}, fmt.Errorf("distinct ratings: %w", err)
	}
	stats.Ratings = ratingVals

	if err := s.pool.QueryRow(ctx,
		`SELECT MAX(scrape_date) FROM scrape_log`).Scan(&stats.LastScrape); err != nil {
		return store.Stats{}, fmt.Errorf("last scrape: %w", err)
	}
	return stats, nil
}

// buildWhere composes the shared filter clause: title substring, platform
// substring, exact rating. Returns an empty string when no filter applies.
func buildWhere(search, platform, rating string) (string, []any) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 3)
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if search = strings.TrimSpace(search); search != "" {
		where = append(where, fmt.Sprintf("game_title ILIKE %s", arg("%"+search+"%")))
	}
	if platform = strings.TrimSpace(platform); platform != "" {
		where = append(where, fmt.Sprintf("platform ILIKE %s", arg("%"+platform+"%")))
	}
	if rating = strings.TrimSpace(rating); rating != "" {
		where = append(where, fmt.Sprintf("rating = %s", arg(rating)))
	}

	if len(where) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]ratings.Record, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ratings: %w", err)
	}
	defer rows.Close()

	records := make([]ratings.Record, 0)
	for rows.Next() {
		var rec ratings.Record
		if err := rows.Scan(
			&rec.GameID,
			&rec.Title,
			&rec.Platform,
			&rec.Rating,
			&rec.Descriptors,
			&rec.URL,
			&rec.Summary,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan rating row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rating rows: %w", err)
	}
	return records, nil
}

func (s *Store) queryStrings(ctx context.Context, query string) ([]string, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return values, nil
}
