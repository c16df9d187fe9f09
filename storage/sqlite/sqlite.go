// Package sqlite is the concrete storage.Store and syncengine.Storage
// backing for the wallet, built directly on database/sql and
// modernc.org/sqlite rather than a generated query layer: the handful
// of tables here are few and simple enough that hand-written SQL stays
// readable, without pulling in a code-generation pipeline for an
// unrelated schema.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/btcsuite/btclog"
	_ "modernc.org/sqlite"

	"github.com/sparkwallet/spark/internal/sparklog"
)

var log = sparklog.Disabled()

// UseLogger sets the package-wide logger used by the storage
// subsystem (tag "STOR").
func UseLogger(logger btclog.Logger) {
	log = logger
}

//go:embed migrations/*.sql
var migrationFiles embed.FS

// DB is the sqlite-backed store. It implements storage.Store directly
// and syncengine.Storage via the methods in sync.go.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and
// migrates it to the latest schema. Pass ":memory:" for an ephemeral
// database, e.g. in tests.
func Open(ctx context.Context, path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	conn.SetMaxOpenConns(1) // modernc.org/sqlite has no internal connection pool coordination

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}

	if err := migrateUp(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn}, nil
}

// migrateUp applies every embedded *.up.sql file in filename order not
// yet recorded in schema_migrations, each inside its own transaction.
// Migrations are numbered "NNNNNN_name.up.sql"; schema_migrations
// tracks the numeric prefix already applied.
func migrateUp(conn *sql.DB) error {
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("sqlite: create schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("sqlite: read migrations: %w", err)
	}

	var ups []fs.DirEntry
	for _, e := range entries {
		if len(e.Name()) > 7 && e.Name()[len(e.Name())-7:] == ".up.sql" {
			ups = append(ups, e)
		}
	}
	sort.Slice(ups, func(i, j int) bool { return ups[i].Name() < ups[j].Name() })

	for _, e := range ups {
		var version int
		if _, err := fmt.Sscanf(e.Name(), "%06d_", &version); err != nil {
			return fmt.Errorf("sqlite: migration filename %q: %w", e.Name(), err)
		}

		var applied int
		_ = conn.QueryRow(`SELECT 1 FROM schema_migrations WHERE version = ?`, version).Scan(&applied)
		if applied == 1 {
			continue
		}

		contents, err := fs.ReadFile(migrationFiles, "migrations/"+e.Name())
		if err != nil {
			return fmt.Errorf("sqlite: read migration %q: %w", e.Name(), err)
		}

		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("sqlite: migration %q: begin: %w", e.Name(), err)
		}
		if _, err := tx.Exec(string(contents)); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite: migration %q: %w", e.Name(), err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite: migration %q: record version: %w", e.Name(), err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("sqlite: migration %q: commit: %w", e.Name(), err)
		}
		log.Infof("storage: applied migration %s", e.Name())
	}

	return nil
}

// Close releases the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
