package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// SchemaVersion is the schema version this build understands. It must match
// the number of the newest migration under migrations/.
const SchemaVersion = 3

// ErrIncompatibleSchema is returned when the on-disk schema was written by a
// newer build. There is no downgrade path, so refusing to run is the only
// safe option.
var ErrIncompatibleSchema = errors.New("database schema is newer than this build supports")

//go:embed migrations/*.sql
var migrationFS embed.FS

// RunMigrations applies all pending migrations, one version at a time. Each
// migration bumps config.db_schema_version itself, so the stored version and
// the migration chain cannot drift apart.
func RunMigrations(db *DB) error {
	stored, err := storedSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read stored schema version: %w", err)
	}
	if stored > SchemaVersion {
		return fmt.Errorf("%w: on-disk version %d, supported version %d",
			ErrIncompatibleSchema, stored, SchemaVersion)
	}

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// storedSchemaVersion reads config.db_schema_version. A database without a
// config table (fresh file) reports version 0.
func storedSchemaVersion(db *DB) (int, error) {
	var exists int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'config'").Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, nil
	}

	var value string
	err = db.QueryRow("SELECT value FROM config WHERE key = 'db_schema_version'").Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	version, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("malformed db_schema_version %q: %w", value, err)
	}
	return version, nil
}

// StoredSchemaVersion exposes the persisted schema version for health
// reporting and tests.
func (db *DB) StoredSchemaVersion() (int, error) {
	return storedSchemaVersion(db)
}
