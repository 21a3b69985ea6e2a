package feed

import (
	"testing"
	"time"
)

const rssSample = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Sample Feed</title>
    <link>https://example.com</link>
    <description>Testing</description>
    <language>en-us</language>
    <item>
      <title>With GUID</title>
      <link>https://example.com/1</link>
      <guid>explicit-guid</guid>
      <description>summary text</description>
      <comments>https://example.com/1#comments</comments>
      <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
      <enclosure url="https://example.com/1.mp3" type="audio/mpeg" length="12345"/>
      <category>Tech</category>
      <category>News</category>
    </item>
    <item>
      <title>Without GUID</title>
      <link>https://example.com/2</link>
      <description>another summary</description>
    </item>
  </channel>
</rss>`

func TestParser_Run(t *testing.T) {
	parser := NewParser()

	doc, err := parser.Run([]byte(rssSample))
	if err != nil {
		t.Fatalf("Failed to parse feed: %v", err)
	}

	if doc.Metadata.Title != "Sample Feed" {
		t.Errorf("Expected title 'Sample Feed', got %q", doc.Metadata.Title)
	}
	if doc.Metadata.Link != "https://example.com" {
		t.Errorf("Expected link 'https://example.com', got %q", doc.Metadata.Link)
	}
	if doc.Metadata.Language != "en-us" {
		t.Errorf("Expected language 'en-us', got %q", doc.Metadata.Language)
	}
	if len(doc.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(doc.Items))
	}

	first := doc.Items[0]
	if first.GUID != "explicit-guid" {
		t.Errorf("Explicit guid must win, got %q", first.GUID)
	}
	if first.Content != "summary text" {
		t.Errorf("Description should back fill content, got %q", first.Content)
	}
	if first.CommentsURL != "https://example.com/1#comments" {
		t.Errorf("Expected comments URL, got %q", first.CommentsURL)
	}
	if first.PublishedAt == nil {
		t.Error("Expected published date")
	} else if first.PublishedAt.Year() != 2006 {
		t.Errorf("Expected published year 2006, got %d", first.PublishedAt.Year())
	}
	if len(first.Enclosures) != 1 {
		t.Fatalf("Expected 1 enclosure, got %d", len(first.Enclosures))
	}
	if first.Enclosures[0].Size != 12345 {
		t.Errorf("Expected enclosure size 12345, got %d", first.Enclosures[0].Size)
	}
	if first.Enclosures[0].MimeType != "audio/mpeg" {
		t.Errorf("Expected enclosure mime type audio/mpeg, got %q", first.Enclosures[0].MimeType)
	}
	if len(first.Categories) != 2 {
		t.Errorf("Expected 2 categories, got %v", first.Categories)
	}
}

func TestParser_GUIDFallbackIsDeterministic(t *testing.T) {
	parser := NewParser()

	doc1, err := parser.Run([]byte(rssSample))
	if err != nil {
		t.Fatalf("Failed to parse feed: %v", err)
	}
	doc2, err := parser.Run([]byte(rssSample))
	if err != nil {
		t.Fatalf("Failed to parse feed again: %v", err)
	}

	guid1 := doc1.Items[1].GUID
	guid2 := doc2.Items[1].GUID
	if guid1 == "" {
		t.Fatal("Expected derived guid for item without one")
	}
	if guid1 != guid2 {
		t.Errorf("Derived guid must be stable across parses: %q vs %q", guid1, guid2)
	}
}

func TestDeriveGUID_FallbackOrder(t *testing.T) {
	if got := deriveGUID("explicit", Item{Link: "l", Title: "t"}); got != "explicit" {
		t.Errorf("Explicit guid must win, got %q", got)
	}

	byLink := deriveGUID("", Item{Link: "l", Title: "t", Content: "c"})
	byTitle := deriveGUID("", Item{Title: "t", Content: "c"})
	byContent := deriveGUID("", Item{Content: "c"})

	if byLink == byTitle || byTitle == byContent || byLink == byContent {
		t.Error("Different fallback bases must derive different guids")
	}
	if byLink != deriveGUID("", Item{Link: "l"}) {
		t.Error("Link-derived guid must ignore the other fields")
	}

	// A fully empty item gets a random guid, unique per call.
	if deriveGUID("", Item{}) == deriveGUID("", Item{}) {
		t.Error("Empty items must not collide on a shared guid")
	}
}

func TestParser_AtomDates(t *testing.T) {
	atom := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Feed</title>
  <link href="https://example.com"/>
  <updated>2024-05-01T00:00:00Z</updated>
  <entry>
    <title>Entry</title>
    <link href="https://example.com/entry"/>
    <id>entry-1</id>
    <updated>2024-05-01T12:00:00Z</updated>
    <content type="html">body</content>
  </entry>
</feed>`

	parser := NewParser()
	doc, err := parser.Run([]byte(atom))
	if err != nil {
		t.Fatalf("Failed to parse atom feed: %v", err)
	}
	if len(doc.Items) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(doc.Items))
	}

	item := doc.Items[0]
	if item.PublishedAt == nil {
		t.Fatal("Updated date should back fill published date")
	}
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if !item.PublishedAt.Equal(want) {
		t.Errorf("Expected published %v, got %v", want, item.PublishedAt)
	}
	if item.GUID != "entry-1" {
		t.Errorf("Expected atom id as guid, got %q", item.GUID)
	}
}

func TestParser_InvalidInput(t *testing.T) {
	parser := NewParser()
	if _, err := parser.Run([]byte("this is not a feed")); err == nil {
		t.Error("Expected error for garbage input")
	}
}
