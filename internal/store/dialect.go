package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// dialect captures the SQL differences between SQLite and Postgres.
type dialect struct {
	// name is the database/sql driver name.
	name string
	// numbered selects $n placeholders instead of ?.
	numbered bool
	// yearExpr extracts the start year as an integer.
	yearExpr string
	// schema is the idempotent DDL applied on open.
	schema string
	// encodeList converts a string slice into a driver argument.
	encodeList func([]string) (any, error)
	// tagsAny renders "record has at least one of tags".
	tagsAny func(q *builder, tags []string) string
	// tagsAll renders "record has every one of tags".
	tagsAll func(q *builder, tags []string) string
	// explodeTags is the FROM clause yielding one row per (record, tag) as je.value.
	explodeTags string
}

var sqliteDialect = &dialect{
	name:     "sqlite",
	yearExpr: "CAST(strftime('%Y', records.start_date) AS INTEGER)",
	schema: `
CREATE TABLE IF NOT EXISTS records (
    id             TEXT    PRIMARY KEY,
    type           TEXT    NOT NULL CHECK (type IN ('project','education','experience','fact')),
    title          TEXT    NOT NULL,
    summary        TEXT,
    tags           TEXT    NOT NULL DEFAULT '[]',
    facts          TEXT    NOT NULL DEFAULT '[]',
    detail_site    TEXT    NOT NULL DEFAULT '[]',
    additional_url TEXT    NOT NULL DEFAULT '[]',
    start_date     TEXT,
    end_date       TEXT,
    priority       INTEGER NOT NULL DEFAULT 3 CHECK (priority BETWEEN 0 AND 3)
);
CREATE INDEX IF NOT EXISTS idx_records_type_start ON records (type, start_date);
CREATE TABLE IF NOT EXISTS config (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`,
	encodeList: func(v []string) (any, error) {
		if v == nil {
			v = []string{}
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	},
	tagsAny: func(q *builder, tags []string) string {
		return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(records.tags) AS t WHERE t.value IN (%s))", q.list(tags))
	},
	tagsAll: func(q *builder, tags []string) string {
		distinct := uniqueStrings(tags)
		return fmt.Sprintf("(SELECT COUNT(DISTINCT t.value) FROM json_each(records.tags) AS t WHERE t.value IN (%s)) = %s",
			q.list(distinct), q.arg(len(distinct)))
	},
	explodeTags: "records, json_each(records.tags) AS je",
}

var postgresDialect = &dialect{
	name:     "postgres",
	numbered: true,
	yearExpr: "CAST(EXTRACT(YEAR FROM records.start_date) AS INTEGER)",
	schema: `
CREATE TABLE IF NOT EXISTS records (
    id             TEXT    PRIMARY KEY,
    type           TEXT    NOT NULL CHECK (type IN ('project','education','experience','fact')),
    title          TEXT    NOT NULL,
    summary        TEXT,
    tags           TEXT[]  NOT NULL DEFAULT '{}',
    facts          TEXT[]  NOT NULL DEFAULT '{}',
    detail_site    JSONB   NOT NULL DEFAULT '[]',
    additional_url JSONB   NOT NULL DEFAULT '[]',
    start_date     DATE,
    end_date       DATE,
    priority       INTEGER NOT NULL DEFAULT 3 CHECK (priority BETWEEN 0 AND 3)
);
CREATE INDEX IF NOT EXISTS idx_records_type_start ON records (type, start_date);
CREATE INDEX IF NOT EXISTS idx_records_tags ON records USING GIN (tags);
CREATE TABLE IF NOT EXISTS config (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`,
	encodeList: func(v []string) (any, error) {
		if v == nil {
			v = []string{}
		}
		return pq.Array(v), nil
	},
	tagsAny: func(q *builder, tags []string) string {
		return "records.tags && " + q.arg(pq.Array(tags)) + "::text[]"
	},
	tagsAll: func(q *builder, tags []string) string {
		return "records.tags @> " + q.arg(pq.Array(tags)) + "::text[]"
	},
	explodeTags: "records, unnest(records.tags) AS je(value)",
}

// builder accumulates WHERE predicates and their positional arguments.
type builder struct {
	d     *dialect
	where []string
	args  []any
}

func newBuilder(d *dialect) *builder {
	return &builder{d: d}
}

// arg appends v and returns its placeholder.
func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	if b.d.numbered {
		return fmt.Sprintf("$%d", len(b.args))
	}
	return "?"
}

// list appends each value and returns a comma-separated placeholder list.
func (b *builder) list(vals []string) string {
	ph := make([]string, len(vals))
	for i, v := range vals {
		ph[i] = b.arg(v)
	}
	return strings.Join(ph, ", ")
}

// and adds a predicate.
func (b *builder) and(pred string) {
	b.where = append(b.where, pred)
}

// clause renders " WHERE a AND b" or "".
func (b *builder) clause() string {
	if len(b.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.where, " AND ")
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
