package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect names the SQL backends the stores run on.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// DB wraps a SQL connection together with the dialect its statements are
// rewritten for.
type DB struct {
	conn    *sql.DB
	dialect Dialect
}

// OpenSQLite opens (or creates) the SQLite file at dbPath.
func OpenSQLite(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time, or SQLITE_BUSY.
	conn.SetMaxOpenConns(1)
	return finish(conn, DialectSQLite)
}

// Open connects to a server database. driver is "postgres" or "mysql".
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	d := Dialect(driver)
	switch d {
	case DialectPostgres, DialectMySQL:
	case DialectSQLite:
		return OpenSQLite(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
	if d == DialectMySQL && !strings.Contains(dsn, "parseTime") {
		dsn += sep(dsn) + "parseTime=true"
	}
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return finish(conn, d)
}

func sep(dsn string) string {
	if strings.Contains(dsn, "?") {
		return "&"
	}
	return "?"
}

func finish(conn *sql.DB, d Dialect) (*DB, error) {
	db := &DB{conn: conn, dialect: d}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Dialect() Dialect { return db.dialect }

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// rebind rewrites ? placeholders to $n for postgres.
func (db *DB) rebind(query string) string {
	if db.dialect != DialectPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// types returns the key, text and blob column types for the dialect.
func (db *DB) types() (key, text, blob string) {
	switch db.dialect {
	case DialectPostgres:
		return "TEXT", "TEXT", "BYTEA"
	case DialectMySQL:
		return "VARCHAR(191)", "LONGTEXT", "LONGBLOB"
	}
	return "TEXT", "TEXT", "BLOB"
}

func (db *DB) migrate() error {
	key, text, blob := db.types()
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			doc_id ` + key + ` PRIMARY KEY,
			page_id ` + key + ` NOT NULL,
			version BIGINT NOT NULL DEFAULT 0,
			snapshot_json ` + text + ` NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS change_log (
			doc_id ` + key + ` NOT NULL,
			version BIGINT NOT NULL,
			id ` + key + ` NOT NULL,
			name ` + key + ` NOT NULL,
			origin ` + key + ` NOT NULL,
			payload ` + blob + ` NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (doc_id, version)
		)`,
	}
	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %s: %w", m[:40], err)
		}
	}
	return nil
}
