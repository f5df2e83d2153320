package db

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know about.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Config describes one connection pool.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Open opens a pooled connection to one of the two stores and verifies it with
// a ping.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	dsn := cfg.DSN
	switch cfg.Driver {
	case DriverSQLite:
		dsn = SQLiteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

// SQLiteDSN turns a database path into a DSN with the pragmas every pooled
// connection needs. Transactions start with BEGIN IMMEDIATE so that a reserve
// transaction holds the write lock from its first read, and times are written
// in a fixed layout so that range comparisons on text columns are correct.
// A DSN that already carries query parameters is returned unchanged.
func SQLiteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}

	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")
	q.Set("_time_format", "sqlite")

	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + "?" + q.Encode()
}

// DriverNamer is satisfied by *sqlx.DB and *sqlx.Tx.
type DriverNamer interface {
	DriverName() string
}

// IsPostgres reports whether db talks to PostgreSQL.
func IsPostgres(db DriverNamer) bool {
	return db.DriverName() == DriverPostgres
}

// Dialect returns the goqu dialect name for db.
func Dialect(db DriverNamer) string {
	if IsPostgres(db) {
		return "postgres"
	}
	return "sqlite3"
}
