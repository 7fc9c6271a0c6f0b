// Package store defines the persistence contracts consumed by the
// ingestion pipeline and the query API.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/benlen10/esrb-tool-v2/internal/ratings"
)

// ErrDuplicateID is returned by Insert when the game id is already present.
// The pipeline checks Exists before inserting, so seeing this error means a
// store-level race and must propagate as a defect.
var ErrDuplicateID = errors.New("duplicate game id")

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// RecordStore is the pipeline-facing persistence surface. Each operation is
// synchronous and immediately durable; inserts commit independently so a
// mid-run failure preserves everything ingested so far.
type RecordStore interface {
	Exists(ctx context.Context, gameID int64) (bool, error)
	Insert(ctx context.Context, rec ratings.Record) error
	AppendRunLog(ctx context.Context, added, skipped int) error
}

// SortColumn names a whitelisted ORDER BY target.
type SortColumn string

// Whitelisted sortable columns. Anything else falls back to SortByGameID.
const (
	SortByGameID   SortColumn = "game_id"
	SortByTitle    SortColumn = "game_title"
	SortByPlatform SortColumn = "platform"
	SortByRating   SortColumn = "rating"
)

// ParseSortColumn maps a raw query parameter onto the whitelist.
func ParseSortColumn(raw string) SortColumn {
	switch SortColumn(raw) {
	case SortByTitle, SortByPlatform, SortByRating:
		return SortColumn(raw)
	default:
		return SortByGameID
	}
}

// ListFilters encapsulates search, sort, and pagination options for List.
type ListFilters struct {
	Search     string // substring match on title
	Platform   string // substring match on platform
	Rating     string // exact match
	Sort       SortColumn
	Descending bool
	Page       int
	PerPage    int
}

// ListResult returns one page of records plus the unpaginated total.
type ListResult struct {
	Records []ratings.Record
	Total   int
}

// ExportFilters narrows the CSV export row set.
type ExportFilters struct {
	Search   string
	Platform string
	Rating   string
}

// Stats summarizes the stored corpus for the stats endpoint.
type Stats struct {
	Total      int        `json:"total"`
	Platforms  []string   `json:"platforms"`
	Ratings    []string   `json:"ratings"`
	LastScrape *time.Time `json:"last_scrape"`
}

// QueryStore is the API-facing read surface over the same table the
// pipeline fills.
type QueryStore interface {
	List(ctx context.Context, filters ListFilters) (ListResult, error)
	// Export applies the full filter set server-side and orders by title.
	Export(ctx context.Context, filters ExportFilters) ([]ratings.Record, error)
	// ExportByTitle fetches title-filtered rows only; callers apply
	// platform/rating filtering in application code. This is the alternate
	// query strategy kept for multi-value filters.
	ExportByTitle(ctx context.Context, search string) ([]ratings.Record, error)
	Stats(ctx context.Context) (Stats, error)
}
