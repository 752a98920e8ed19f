package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // register "postgres" driver
	_ "modernc.org/sqlite" // register "sqlite" driver
)

const (
	// DriverSQLite selects the embedded SQLite dialect.
	DriverSQLite = "sqlite"
	// DriverPostgres selects the Postgres dialect.
	DriverPostgres = "postgres"

	// DefaultPoolMin is the default number of idle connections.
	DefaultPoolMin = 2
	// DefaultPoolMax is the default connection cap.
	DefaultPoolMax = 10

	// connMaxLifetime recycles connections so a restarted database is picked up.
	connMaxLifetime = 30 * time.Minute
)

// Config selects and sizes the record store.
type Config struct {
	// Driver is DriverSQLite or DriverPostgres.
	Driver string
	// URL is a postgres DSN or a SQLite path (":memory:" for tests).
	URL string
	// PoolMin is the number of idle connections kept open.
	PoolMin int
	// PoolMax caps open connections.
	PoolMax int
}

// ConfigFromEnv reads DATABASE_DRIVER, DATABASE_URL, DATABASE_POOL_MIN and
// DATABASE_POOL_MAX. A postgres:// URL implies the postgres driver; with no
// URL at all the store falls back to SQLite at DefaultDBPath.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Driver:  strings.ToLower(os.Getenv("DATABASE_DRIVER")),
		URL:     os.Getenv("DATABASE_URL"),
		PoolMin: getEnvInt("DATABASE_POOL_MIN", DefaultPoolMin),
		PoolMax: getEnvInt("DATABASE_POOL_MAX", DefaultPoolMax),
	}
	if cfg.Driver == "" {
		if strings.HasPrefix(cfg.URL, "postgres://") || strings.HasPrefix(cfg.URL, "postgresql://") {
			cfg.Driver = DriverPostgres
		} else {
			cfg.Driver = DriverSQLite
		}
	}
	if cfg.URL == "" && cfg.Driver == DriverSQLite {
		p, err := DefaultDBPath()
		if err != nil {
			return Config{}, err
		}
		cfg.URL = p
	}
	return cfg, nil
}

// DefaultDBPath returns ~/.resume-agent/records.db, creating the directory.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".resume-agent")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "records.db"), nil
}

// Open connects to the configured database and applies the schema.
func Open(ctx context.Context, cfg Config) (*SQLStore, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return OpenSQLite(ctx, cfg.URL, cfg.PoolMin, cfg.PoolMax)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.URL, cfg.PoolMin, cfg.PoolMax)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q (supported: sqlite, postgres)", cfg.Driver)
	}
}

// OpenSQLite opens (or creates) a SQLite database at path. ":memory:" is
// pinned to a single connection since every connection would otherwise see
// its own empty database.
func OpenSQLite(ctx context.Context, path string, poolMin, poolMax int) (*SQLStore, error) {
	dsn := path
	if path == ":memory:" {
		poolMin, poolMax = 1, 1
	} else {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	s, err := finishOpen(ctx, db, sqliteDialect, poolMin, poolMax)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		db.SetConnMaxLifetime(0)
	}
	return s, nil
}

// OpenPostgres connects to Postgres with a bounded pool.
func OpenPostgres(ctx context.Context, dsn string, poolMin, poolMax int) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: DATABASE_URL is required for postgres")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	return finishOpen(ctx, db, postgresDialect, poolMin, poolMax)
}

func finishOpen(ctx context.Context, db *sql.DB, d *dialect, poolMin, poolMax int) (*SQLStore, error) {
	if poolMax <= 0 {
		poolMax = DefaultPoolMax
	}
	if poolMin <= 0 || poolMin > poolMax {
		poolMin = min(DefaultPoolMin, poolMax)
	}
	db.SetMaxOpenConns(poolMax)
	db.SetMaxIdleConns(poolMin)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", d.name, err)
	}

	s := &SQLStore{db: db, d: d}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// getEnvInt reads an integer env var, returning def when unset or invalid.
func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
