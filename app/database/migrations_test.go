package database

import (
	"errors"
	"path/filepath"
	"strconv"
	"testing"
)

func TestRunMigrations_FreshDatabase(t *testing.T) {
	db := newTestDB(t)

	version, err := db.StoredSchemaVersion()
	if err != nil {
		t.Fatalf("Failed to read stored schema version: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("Expected stored schema version %d, got %d", SchemaVersion, version)
	}
}

func TestRunMigrations_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := NewConnection(path)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	db.Close()

	// Reopening an up-to-date database is a no-op.
	db, err = NewConnection(path)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()

	version, err := db.StoredSchemaVersion()
	if err != nil {
		t.Fatalf("Failed to read stored schema version: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("Expected stored schema version %d after reopen, got %d", SchemaVersion, version)
	}
}

func TestRunMigrations_NewerSchemaRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := NewConnection(path)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	_, err = db.Exec("UPDATE config SET value = ? WHERE key = 'db_schema_version'", strconv.Itoa(SchemaVersion+1))
	if err != nil {
		t.Fatalf("Failed to bump schema version: %v", err)
	}
	db.Close()

	_, err = NewConnection(path)
	if err == nil {
		t.Fatal("Expected error opening database with newer schema")
	}
	if !errors.Is(err, ErrIncompatibleSchema) {
		t.Errorf("Expected ErrIncompatibleSchema, got %v", err)
	}
}
