package database

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection shared by every repository.
type DB struct {
	*sql.DB
}

// NewConnection opens (or creates) the SQLite database at the given path and
// applies pending schema migrations. Passing ":memory:" yields an ephemeral
// database, used by tests.
func NewConnection(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The single connection is shared by all workers; SQLite serializes
	// writers, so cap the pool to avoid lock contention.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	db := &DB{conn}

	if err := RunMigrations(db); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}
