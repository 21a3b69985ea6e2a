package source

import (
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/feedloom/feedloom/app/database"
	"github.com/feedloom/feedloom/app/feed"
)

func newTestSource(t *testing.T) (Source, Deps) {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	httpClient := &http.Client{Timeout: 5 * time.Second}
	deps := Deps{
		Sources:                database.NewSourceRepository(db),
		Folders:                database.NewFolderRepository(db),
		Feeds:                  database.NewFeedRepository(db),
		Posts:                  database.NewPostRepository(db),
		Scripts:                database.NewScriptRepository(db),
		ScriptFolders:          database.NewScriptFolderRepository(db),
		Logs:                   database.NewLogRepository(db),
		Fetcher:                feed.NewFetcher(httpClient, "test-agent"),
		Parser:                 feed.NewParser(),
		HTTPClient:             httpClient,
		UserAgent:              "test-agent",
		DefaultRefreshInterval: 30 * time.Minute,
	}

	record, err := deps.Sources.CreateSource("Test", TypeLocal, "")
	if err != nil {
		t.Fatalf("Failed to create source record: %v", err)
	}

	src, err := New(*record, deps)
	if err != nil {
		t.Fatalf("Failed to build source: %v", err)
	}
	return src, deps
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(database.Source{Type: "carrier-pigeon"}, Deps{})
	if err == nil {
		t.Fatal("Expected error for unknown source type")
	}
	if !strings.Contains(err.Error(), "unsupported source type") {
		t.Errorf("Expected unsupported source type error, got %v", err)
	}
}

func TestAddFolder_ReusesByTitle(t *testing.T) {
	src, _ := newTestSource(t)

	first, err := src.AddFolder(0, "News")
	if err != nil {
		t.Fatalf("Failed to add folder: %v", err)
	}
	second, err := src.AddFolder(0, "News")
	if err != nil {
		t.Fatalf("Failed to re-add folder: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("Expected same folder for same title, got %d and %d", first.ID, second.ID)
	}
}

func TestAddFeed_Deduplicates(t *testing.T) {
	src, _ := newTestSource(t)

	first, err := src.AddFeed(0, "https://example.com/feed.xml")
	if err != nil {
		t.Fatalf("Failed to add feed: %v", err)
	}
	second, err := src.AddFeed(0, "https://example.com/feed.xml")
	if err != nil {
		t.Fatalf("Failed to re-add feed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("Expected same feed for same URL, got %d and %d", first.ID, second.ID)
	}
}

func TestRemoveFolder_CascadesSubtree(t *testing.T) {
	src, deps := newTestSource(t)

	parent, err := src.AddFolder(0, "Parent")
	if err != nil {
		t.Fatalf("Failed to add folder: %v", err)
	}
	child, err := src.AddFolder(parent.ID, "Child")
	if err != nil {
		t.Fatalf("Failed to add child folder: %v", err)
	}

	inChild, err := src.AddFeed(child.ID, "https://example.com/a.xml")
	if err != nil {
		t.Fatalf("Failed to add feed: %v", err)
	}
	outside, err := src.AddFeed(0, "https://example.com/b.xml")
	if err != nil {
		t.Fatalf("Failed to add feed: %v", err)
	}

	post, _, err := deps.Posts.UpsertPost(inChild.ID, database.PostAttributes{GUID: "g", Title: "Post"})
	if err != nil {
		t.Fatalf("Failed to upsert post: %v", err)
	}

	if err := src.RemoveFolder(parent.ID); err != nil {
		t.Fatalf("Failed to remove folder: %v", err)
	}

	if f, _ := deps.Folders.GetFolder(child.ID); f != nil {
		t.Error("Child folder must be removed with its parent")
	}
	if f, _ := deps.Feeds.GetFeed(inChild.ID); f != nil {
		t.Error("Feed inside the subtree must be removed")
	}
	if p, _ := deps.Posts.GetPost(post.ID); p != nil {
		t.Error("Posts of removed feeds must be gone")
	}
	if f, _ := deps.Feeds.GetFeed(outside.ID); f == nil {
		t.Error("Feed outside the subtree must survive")
	}
}

func TestMoveFolder_RejectsCycle(t *testing.T) {
	src, _ := newTestSource(t)

	parent, err := src.AddFolder(0, "Parent")
	if err != nil {
		t.Fatalf("Failed to add folder: %v", err)
	}
	child, err := src.AddFolder(parent.ID, "Child")
	if err != nil {
		t.Fatalf("Failed to add child folder: %v", err)
	}

	if _, err := src.MoveFolder(parent.ID, child.ID, 0); err == nil {
		t.Error("Moving a folder into its own subtree must fail")
	}
	if _, err := src.MoveFolder(parent.ID, parent.ID, 0); err == nil {
		t.Error("Moving a folder into itself must fail")
	}
}

func TestMoveFeed_RemapCoversSiblings(t *testing.T) {
	src, deps := newTestSource(t)

	var feeds []*database.Feed
	for _, name := range []string{"a", "b", "c"} {
		f, err := src.AddFeed(0, "https://example.com/"+name+".xml")
		if err != nil {
			t.Fatalf("Failed to add feed %s: %v", name, err)
		}
		feeds = append(feeds, f)
	}

	// Move the last feed to the front.
	remap, err := src.MoveFeed(feeds[2].ID, 0, 0)
	if err != nil {
		t.Fatalf("Failed to move feed: %v", err)
	}

	moved, err := deps.Feeds.GetFeed(feeds[2].ID)
	if err != nil {
		t.Fatalf("Failed to get moved feed: %v", err)
	}
	for _, other := range feeds[:2] {
		f, err := deps.Feeds.GetFeed(other.ID)
		if err != nil {
			t.Fatalf("Failed to get feed: %v", err)
		}
		if f.SortOrder <= moved.SortOrder {
			t.Errorf("Feed %d should sort after the moved feed (%d vs %d)", f.ID, f.SortOrder, moved.SortOrder)
		}
	}

	// Every reported remap entry matches the database.
	for id, order := range remap {
		f, err := deps.Feeds.GetFeed(id)
		if err != nil {
			t.Fatalf("Failed to get feed %d: %v", id, err)
		}
		if f.SortOrder != order {
			t.Errorf("Remap says feed %d has order %d, database has %d", id, order, f.SortOrder)
		}
	}
}

func TestSortFolder_Alphabetical(t *testing.T) {
	src, deps := newTestSource(t)

	titles := []string{"zebra", "Apple", "mango"}
	for i, title := range titles {
		f, err := src.AddFeed(0, "https://example.com/"+title+".xml")
		if err != nil {
			t.Fatalf("Failed to add feed: %v", err)
		}
		if err := deps.Feeds.SetFeedSortOrder(f.ID, (i+1)*database.SortOrderStep); err != nil {
			t.Fatalf("Failed to set sort order: %v", err)
		}
		// Titles default to the URL; give them real names to sort by.
		if err := deps.Feeds.UpdateFeedMetadata(f.ID, database.FeedMetadata{Title: title}); err != nil {
			t.Fatalf("Failed to set feed title: %v", err)
		}
	}

	result, err := src.SortFolder(0)
	if err != nil {
		t.Fatalf("Failed to sort folder: %v", err)
	}
	if result == nil {
		t.Fatal("Expected sort result")
	}

	feeds, err := deps.Feeds.GetFeedsInFolder(src.ID(), 0)
	if err != nil {
		t.Fatalf("Failed to get feeds: %v", err)
	}
	var got []string
	for _, f := range feeds {
		got = append(got, f.Title)
	}
	want := []string{"Apple", "mango", "zebra"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, got)
		}
	}
}
