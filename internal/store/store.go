// Package store is the record store client: parameterized queries over the
// single records table plus a small key/value config table. Two SQL dialects
// are supported behind one implementation: SQLite (modernc.org/sqlite) for
// local use and Postgres (lib/pq) for deployments.
package store

import (
	"context"
	"errors"

	"github.com/Jiangye-Song/resume-agent/internal/records"
)

// ErrNotFound is returned when a record or config key does not exist.
var ErrNotFound = errors.New("store: not found")

// Config keys used by the application.
const (
	// KeySystemPrompt holds the direct RAG system prompt.
	KeySystemPrompt = "system_prompt"
	// KeyPanelPasscode holds the SHA-256 hex digest of the admin passcode.
	KeyPanelPasscode = "panel_passcode"
)

// SortOrder is the direction of a date sort.
type SortOrder string

const (
	// SortDesc orders most recent first.
	SortDesc SortOrder = "DESC"
	// SortAsc orders oldest first.
	SortAsc SortOrder = "ASC"
)

// Valid reports whether o is ASC or DESC.
func (o SortOrder) Valid() bool {
	return o == SortAsc || o == SortDesc
}

// DateQuery selects records by date ranges. Nil bounds impose no constraint;
// all supplied bounds are combined with AND and are inclusive.
type DateQuery struct {
	// RecordType restricts results to one type when non-empty.
	RecordType records.Type
	// StartAfter is the inclusive lower bound on start_date.
	StartAfter *records.Date
	// StartBefore is the inclusive upper bound on start_date.
	StartBefore *records.Date
	// EndAfter is the inclusive lower bound on end_date.
	EndAfter *records.Date
	// EndBefore is the inclusive upper bound on end_date.
	EndBefore *records.Date
	// Order sorts by start_date; ties break on priority descending.
	Order SortOrder
	// Limit caps the number of rows returned.
	Limit int
}

// FilterQuery selects records by type, tags and priority range.
type FilterQuery struct {
	// RecordType restricts results to one type when non-empty.
	RecordType records.Type
	// Tags to match. Empty means no tag constraint.
	Tags []string
	// MatchAll requires every tag to be present instead of any.
	MatchAll bool
	// PriorityMin is the inclusive lower priority bound, when set.
	PriorityMin *int
	// PriorityMax is the inclusive upper priority bound, when set.
	PriorityMax *int
	// Limit caps the number of rows returned.
	Limit int
}

// StatsFilter narrows the record set aggregated by the statistics queries.
type StatsFilter struct {
	// RecordType restricts to one type when non-empty.
	RecordType records.Type
	// Tags keeps records carrying any of these tags.
	Tags []string
	// StartYear keeps records starting in or after this year.
	StartYear *int
	// EndYear keeps records starting in or before this year.
	EndYear *int
}

// TagCount is one row of a tag distribution.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// YearCount is one row of a timeline.
type YearCount struct {
	Year   int      `json:"year"`
	Count  int      `json:"count"`
	Titles []string `json:"titles"`
}

// TypeCount is one row of a type distribution.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// RecordStore is the query surface used by the tools, the re-index pipeline
// and the admin API. Implementations must be safe for concurrent use.
type RecordStore interface {
	// RecordsByDate runs a date range query.
	RecordsByDate(ctx context.Context, q DateQuery) ([]records.Record, error)
	// FilterRecords runs a type/tag/priority query ordered by priority then recency.
	FilterRecords(ctx context.Context, q FilterQuery) ([]records.Record, error)
	// Get returns one record by id or ErrNotFound.
	Get(ctx context.Context, id string) (*records.Record, error)
	// Count returns the size of the filtered set.
	Count(ctx context.Context, f StatsFilter) (int, error)
	// TagDistribution counts tags across the filtered set, most frequent first.
	TagDistribution(ctx context.Context, f StatsFilter, topN int) ([]TagCount, error)
	// Timeline groups the filtered set by start year, most recent first.
	Timeline(ctx context.Context, f StatsFilter, topN int) ([]YearCount, error)
	// TypeDistribution counts records per type, most frequent first.
	TypeDistribution(ctx context.Context, f StatsFilter) ([]TypeCount, error)
	// List returns every record ordered by priority, type and id.
	List(ctx context.Context) ([]records.Record, error)
	// Upsert creates or replaces a record.
	Upsert(ctx context.Context, r records.Record) error
	// Delete removes a record; deleting a missing id returns ErrNotFound.
	Delete(ctx context.Context, id string) error
	// GetConfig reads a config value or returns ErrNotFound.
	GetConfig(ctx context.Context, key string) (string, error)
	// SetConfig writes a config value.
	SetConfig(ctx context.Context, key, value string) error
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases the connection pool.
	Close() error
}
