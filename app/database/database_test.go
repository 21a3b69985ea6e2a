package database

import (
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestSource(t *testing.T, db *DB) *Source {
	t.Helper()

	src, err := NewSourceRepository(db).CreateSource("Test Source", "local", "")
	if err != nil {
		t.Fatalf("Failed to create test source: %v", err)
	}
	return src
}

func createTestFeed(t *testing.T, db *DB, sourceID, folderID int64, url string) *Feed {
	t.Helper()

	feed, err := NewFeedRepository(db).CreateFeed(sourceID, folderID, url, "Test Feed")
	if err != nil {
		t.Fatalf("Failed to create test feed: %v", err)
	}
	return feed
}
