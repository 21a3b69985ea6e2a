package source

import (
	"strings"
	"testing"
)

const testOPML = `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>Subscriptions</title></head>
  <body>
    <outline text="News">
      <outline text="World">
        <outline type="rss" text="World News" xmlUrl="https://example.com/world.xml"/>
      </outline>
      <outline type="rss" text="Breaking" xmlUrl="https://example.com/breaking.xml"/>
    </outline>
    <outline type="rss" text="Standalone" xmlUrl="https://example.com/standalone.xml"/>
  </body>
</opml>`

func TestImportOPML(t *testing.T) {
	src, deps := newTestSource(t)

	affected, err := src.ImportOPML(testOPML, 0)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(affected) != 2 {
		t.Errorf("Expected 2 affected top-level folders (News and root), got %v", affected)
	}

	news, err := deps.Folders.GetFolderByTitle(src.ID(), 0, "News")
	if err != nil || news == nil {
		t.Fatalf("Expected News folder, got %v (err %v)", news, err)
	}
	world, err := deps.Folders.GetFolderByTitle(src.ID(), news.ID, "World")
	if err != nil || world == nil {
		t.Fatalf("Expected World folder under News, got %v (err %v)", world, err)
	}

	if f, _ := deps.Feeds.GetFeedByURL(src.ID(), world.ID, "https://example.com/world.xml"); f == nil {
		t.Error("Expected world feed in News/World")
	}
	if f, _ := deps.Feeds.GetFeedByURL(src.ID(), news.ID, "https://example.com/breaking.xml"); f == nil {
		t.Error("Expected breaking feed in News")
	}
	if f, _ := deps.Feeds.GetFeedByURL(src.ID(), 0, "https://example.com/standalone.xml"); f == nil {
		t.Error("Expected standalone feed at the root")
	}
}

func TestImportOPML_Idempotent(t *testing.T) {
	src, deps := newTestSource(t)

	if _, err := src.ImportOPML(testOPML, 0); err != nil {
		t.Fatalf("First import failed: %v", err)
	}
	if _, err := src.ImportOPML(testOPML, 0); err != nil {
		t.Fatalf("Second import failed: %v", err)
	}

	feeds, err := deps.Feeds.GetFeeds(src.ID())
	if err != nil {
		t.Fatalf("Failed to get feeds: %v", err)
	}
	if len(feeds) != 3 {
		t.Errorf("Expected 3 feeds after repeated import, got %d", len(feeds))
	}

	folders, err := deps.Folders.GetAllFolders(src.ID())
	if err != nil {
		t.Fatalf("Failed to get folders: %v", err)
	}
	if len(folders) != 2 {
		t.Errorf("Expected 2 folders after repeated import, got %d", len(folders))
	}
}

func TestExportOPML_RoundTrip(t *testing.T) {
	src, _ := newTestSource(t)

	if _, err := src.ImportOPML(testOPML, 0); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	exported, err := src.ExportOPML()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	for _, want := range []string{
		`text="News"`,
		`text="World"`,
		`xmlUrl="https://example.com/world.xml"`,
		`xmlUrl="https://example.com/breaking.xml"`,
		`xmlUrl="https://example.com/standalone.xml"`,
	} {
		if !strings.Contains(exported, want) {
			t.Errorf("Exported OPML missing %s", want)
		}
	}

	// The export itself imports cleanly into a fresh source.
	other, otherDeps := newTestSource(t)
	if _, err := other.ImportOPML(exported, 0); err != nil {
		t.Fatalf("Re-import of exported OPML failed: %v", err)
	}
	feeds, err := otherDeps.Feeds.GetFeeds(other.ID())
	if err != nil {
		t.Fatalf("Failed to get feeds: %v", err)
	}
	if len(feeds) != 3 {
		t.Errorf("Expected 3 feeds after round trip, got %d", len(feeds))
	}
}
