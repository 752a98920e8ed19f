package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/Jiangye-Song/resume-agent/internal/records"
)

// recordColumns is the column list every record query selects, in scan order.
const recordColumns = `records.id, records.type, records.title, records.summary, records.tags, records.facts,
       records.detail_site, records.additional_url, records.start_date, records.end_date, records.priority`

// SQLStore is a RecordStore over database/sql. It is safe for concurrent use;
// each query borrows a pooled connection and returns it before the call ends.
type SQLStore struct {
	// db is the underlying connection pool.
	db *sql.DB
	// d holds the dialect-specific SQL fragments.
	d *dialect
}

var _ RecordStore = (*SQLStore)(nil)

// migrate applies the idempotent schema.
func (s *SQLStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.d.schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Name identifies the store in readiness checks.
func (s *SQLStore) Name() string {
	return "record_store"
}

// Driver returns the SQL driver name.
func (s *SQLStore) Driver() string {
	return s.d.name
}

// Ping checks connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB exposes the pool so the pgvector index can share a Postgres connection.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// RecordsByDate runs a date range query. Records without a start_date sort
// last in both directions.
func (s *SQLStore) RecordsByDate(ctx context.Context, q DateQuery) ([]records.Record, error) {
	order := q.Order
	if !order.Valid() {
		order = SortDesc
	}

	b := newBuilder(s.d)
	if q.RecordType != "" {
		b.and("records.type = " + b.arg(string(q.RecordType)))
	}
	if q.StartAfter != nil {
		b.and("records.start_date >= " + b.arg(q.StartAfter.String()))
	}
	if q.StartBefore != nil {
		b.and("records.start_date <= " + b.arg(q.StartBefore.String()))
	}
	if q.EndAfter != nil {
		b.and("records.end_date >= " + b.arg(q.EndAfter.String()))
	}
	if q.EndBefore != nil {
		b.and("records.end_date <= " + b.arg(q.EndBefore.String()))
	}

	query := "SELECT " + recordColumns + " FROM records" + b.clause() +
		fmt.Sprintf(" ORDER BY records.start_date %s NULLS LAST, records.priority DESC, records.id ASC", order) +
		" LIMIT " + b.arg(q.Limit)

	out, err := s.queryRecords(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("store: records by date: %w", err)
	}
	return out, nil
}

// FilterRecords runs a type/tag/priority query ordered by priority, then
// start_date descending with undated records last.
func (s *SQLStore) FilterRecords(ctx context.Context, q FilterQuery) ([]records.Record, error) {
	b := newBuilder(s.d)
	if q.RecordType != "" {
		b.and("records.type = " + b.arg(string(q.RecordType)))
	}
	if len(q.Tags) > 0 {
		if q.MatchAll {
			b.and(s.d.tagsAll(b, q.Tags))
		} else {
			b.and(s.d.tagsAny(b, q.Tags))
		}
	}
	if q.PriorityMin != nil {
		b.and("records.priority >= " + b.arg(*q.PriorityMin))
	}
	if q.PriorityMax != nil {
		b.and("records.priority <= " + b.arg(*q.PriorityMax))
	}

	query := "SELECT " + recordColumns + " FROM records" + b.clause() +
		" ORDER BY records.priority DESC, records.start_date DESC NULLS LAST, records.id ASC" +
		" LIMIT " + b.arg(q.Limit)

	out, err := s.queryRecords(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("store: filter records: %w", err)
	}
	return out, nil
}

// Get returns one record by id or ErrNotFound.
func (s *SQLStore) Get(ctx context.Context, id string) (*records.Record, error) {
	b := newBuilder(s.d)
	query := "SELECT " + recordColumns + " FROM records WHERE records.id = " + b.arg(id)

	out, err := s.queryRecords(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return &out[0], nil
}

// List returns every record ordered by priority, type and id.
func (s *SQLStore) List(ctx context.Context) ([]records.Record, error) {
	out, err := s.queryRecords(ctx, "SELECT "+recordColumns+" FROM records ORDER BY records.priority DESC, records.type, records.id")
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return out, nil
}

// statsWhere applies a StatsFilter to b.
func (s *SQLStore) statsWhere(b *builder, f StatsFilter) {
	if f.RecordType != "" {
		b.and("records.type = " + b.arg(string(f.RecordType)))
	}
	if len(f.Tags) > 0 {
		b.and(s.d.tagsAny(b, f.Tags))
	}
	if f.StartYear != nil {
		b.and(s.d.yearExpr + " >= " + b.arg(*f.StartYear))
	}
	if f.EndYear != nil {
		b.and(s.d.yearExpr + " <= " + b.arg(*f.EndYear))
	}
}

// Count returns the size of the filtered set.
func (s *SQLStore) Count(ctx context.Context, f StatsFilter) (int, error) {
	b := newBuilder(s.d)
	s.statsWhere(b, f)

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records"+b.clause(), b.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// TagDistribution explodes tags across the filtered set and counts each,
// most frequent first with ties broken alphabetically.
func (s *SQLStore) TagDistribution(ctx context.Context, f StatsFilter, topN int) ([]TagCount, error) {
	b := newBuilder(s.d)
	s.statsWhere(b, f)
	query := "SELECT je.value, COUNT(*) AS n FROM " + s.d.explodeTags + b.clause() +
		" GROUP BY je.value ORDER BY n DESC, je.value ASC LIMIT " + b.arg(topN)

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("store: tag distribution: %w", err)
	}
	defer rows.Close()

	out := []TagCount{}
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, fmt.Errorf("store: tag distribution: scan: %w", err)
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: tag distribution: %w", err)
	}
	return out, nil
}

// Timeline groups dated records in the filtered set by start year. Years are
// ordered most recent first and truncated to topN; titles within a year are
// ordered most recent first.
func (s *SQLStore) Timeline(ctx context.Context, f StatsFilter, topN int) ([]YearCount, error) {
	b := newBuilder(s.d)
	b.and("records.start_date IS NOT NULL")
	s.statsWhere(b, f)
	query := "SELECT " + s.d.yearExpr + " AS yr, records.title FROM records" + b.clause() +
		" ORDER BY records.start_date DESC, records.priority DESC, records.id ASC"

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("store: timeline: %w", err)
	}
	defer rows.Close()

	out := []YearCount{}
	for rows.Next() {
		var (
			year  int
			title string
		)
		if err := rows.Scan(&year, &title); err != nil {
			return nil, fmt.Errorf("store: timeline: scan: %w", err)
		}
		if n := len(out); n > 0 && out[n-1].Year == year {
			out[n-1].Count++
			out[n-1].Titles = append(out[n-1].Titles, title)
			continue
		}
		if len(out) == topN {
			break
		}
		out = append(out, YearCount{Year: year, Count: 1, Titles: []string{title}})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: timeline: %w", err)
	}
	return out, nil
}

// TypeDistribution counts records per type, most frequent first.
func (s *SQLStore) TypeDistribution(ctx context.Context, f StatsFilter) ([]TypeCount, error) {
	b := newBuilder(s.d)
	s.statsWhere(b, f)
	query := "SELECT records.type, COUNT(*) AS n FROM records" + b.clause() +
		" GROUP BY records.type ORDER BY n DESC, records.type ASC"

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("store: type distribution: %w", err)
	}
	defer rows.Close()

	out := []TypeCount{}
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return nil, fmt.Errorf("store: type distribution: scan: %w", err)
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: type distribution: %w", err)
	}
	return out, nil
}

// Upsert creates or replaces a record after normalizing and validating it.
func (s *SQLStore) Upsert(ctx context.Context, r records.Record) error {
	r.Normalize()
	if err := r.Validate(); err != nil {
		return fmt.Errorf("store: upsert: %w", err)
	}

	tags, err := s.d.encodeList(r.Tags)
	if err != nil {
		return fmt.Errorf("store: upsert: encode tags: %w", err)
	}
	facts, err := s.d.encodeList(r.Facts)
	if err != nil {
		return fmt.Errorf("store: upsert: encode facts: %w", err)
	}
	detail, err := json.Marshal(r.DetailSite)
	if err != nil {
		return fmt.Errorf("store: upsert: encode detail_site: %w", err)
	}
	extra, err := json.Marshal(r.AdditionalURL)
	if err != nil {
		return fmt.Errorf("store: upsert: encode additional_url: %w", err)
	}

	b := newBuilder(s.d)
	values := []string{
		b.arg(r.ID),
		b.arg(string(r.Type)),
		b.arg(r.Title),
		b.arg(nullString(r.Summary)),
		b.arg(tags),
		b.arg(facts),
		b.arg(string(detail)),
		b.arg(string(extra)),
		b.arg(nullString(records.FormatOptional(r.StartDate))),
		b.arg(nullString(records.FormatOptional(r.EndDate))),
		b.arg(r.Priority),
	}
	query := `INSERT INTO records (id, type, title, summary, tags, facts, detail_site, additional_url, start_date, end_date, priority)
VALUES (` + strings.Join(values, ", ") + `)
ON CONFLICT (id) DO UPDATE SET
    type = excluded.type, title = excluded.title, summary = excluded.summary,
    tags = excluded.tags, facts = excluded.facts, detail_site = excluded.detail_site,
    additional_url = excluded.additional_url, start_date = excluded.start_date,
    end_date = excluded.end_date, priority = excluded.priority`

	if _, err := s.db.ExecContext(ctx, query, b.args...); err != nil {
		return fmt.Errorf("store: upsert %s: %w", r.ID, err)
	}
	return nil
}

// Delete removes a record by id.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	b := newBuilder(s.d)
	res, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE id = "+b.arg(id), b.args...)
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetConfig reads a config value or returns ErrNotFound.
func (s *SQLStore) GetConfig(ctx context.Context, key string) (string, error) {
	b := newBuilder(s.d)
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = "+b.arg(key), b.args...).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: get config %s: %w", key, err)
	}
	return v, nil
}

// SetConfig writes a config value.
func (s *SQLStore) SetConfig(ctx context.Context, key, value string) error {
	b := newBuilder(s.d)
	query := "INSERT INTO config (key, value, updated_at) VALUES (" + b.arg(key) + ", " + b.arg(value) + ", CURRENT_TIMESTAMP)" +
		" ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at"
	if _, err := s.db.ExecContext(ctx, query, b.args...); err != nil {
		return fmt.Errorf("store: set config %s: %w", key, err)
	}
	return nil
}

// queryRecords runs query and scans every row into a Record.
func (s *SQLStore) queryRecords(ctx context.Context, query string, args ...any) ([]records.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []records.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// scanRecord scans one row selected with recordColumns.
func scanRecord(rows *sql.Rows) (records.Record, error) {
	var (
		r          records.Record
		typ        string
		summary    sql.NullString
		tags       stringList
		facts      stringList
		detail     linkList
		extra      linkList
		start, end sql.NullString
		priority   sql.NullInt64
	)
	if err := rows.Scan(&r.ID, &typ, &r.Title, &summary, &tags, &facts, &detail, &extra, &start, &end, &priority); err != nil {
		return records.Record{}, fmt.Errorf("scan: %w", err)
	}
	r.Type = records.Type(typ)
	r.Summary = summary.String
	r.Tags = tags
	r.Facts = facts
	r.DetailSite = detail
	r.AdditionalURL = extra
	r.Priority = records.DefaultPriority
	if priority.Valid {
		r.Priority = records.ClampPriority(int(priority.Int64))
	}

	var err error
	if start.Valid {
		if r.StartDate, err = records.ParseOptionalDate(start.String); err != nil {
			return records.Record{}, err
		}
	}
	if end.Valid {
		if r.EndDate, err = records.ParseOptionalDate(end.String); err != nil {
			return records.Record{}, err
		}
	}
	return r, nil
}

// nullString maps "" to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// stringList scans either a JSON array (SQLite) or a Postgres text[] literal.
type stringList []string

// Scan implements sql.Scanner.
func (l *stringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = []string{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("store: cannot scan %T into string list", src)
	}

	raw = bytes.TrimSpace(raw)
	out := []string{}
	switch {
	case len(raw) == 0:
	case raw[0] == '{':
		var arr pq.StringArray
		if err := arr.Scan(raw); err != nil {
			return fmt.Errorf("store: scan text[]: %w", err)
		}
		out = append(out, arr...)
	default:
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("store: scan json list: %w", err)
		}
		if out == nil {
			out = []string{}
		}
	}
	*l = out
	return nil
}

// linkList scans a JSON link array stored as TEXT or JSONB.
type linkList []records.Link

// Scan implements sql.Scanner.
func (l *linkList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = []records.Link{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("store: cannot scan %T into link list", src)
	}
	links, err := records.ParseLinks(raw)
	if err != nil {
		return err
	}
	*l = links
	return nil
}
