package script

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/feedloom/feedloom/app/database"
)

func newRunContext(t *testing.T) (*RunContext, *database.DB) {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	src, err := database.NewSourceRepository(db).CreateSource("Test Source", "local", "")
	if err != nil {
		t.Fatalf("Failed to create source: %v", err)
	}
	feed, err := database.NewFeedRepository(db).CreateFeed(src.ID, 0, "https://example.com/feed.xml", "Test Feed")
	if err != nil {
		t.Fatalf("Failed to create feed: %v", err)
	}

	posts := database.NewPostRepository(db)
	post, _, err := posts.UpsertPost(feed.ID, database.PostAttributes{
		GUID:    "guid-1",
		Title:   "Original Title",
		Link:    "https://example.com/1",
		Content: "Original content",
		Author:  "Alice",
		Enclosures: []database.EnclosureAttributes{
			{URL: "https://example.com/ep1.mp3", MimeType: "audio/mpeg", Size: 1024},
		},
	})
	if err != nil {
		t.Fatalf("Failed to create post: %v", err)
	}

	return &RunContext{Source: src, Feed: feed, Post: post, Posts: posts}, db
}

func run(t *testing.T, rc *RunContext, body string) {
	t.Helper()

	if err := RunPostScript(context.Background(), body, rc, nil); err != nil {
		t.Fatalf("Script failed: %v", err)
	}
}

func TestRunPostScript_PrintCapture(t *testing.T) {
	rc, _ := newRunContext(t)

	var lines []string
	err := RunPostScript(context.Background(), `print("hello", 42)`, rc, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("Script failed: %v", err)
	}
	if len(lines) != 1 || lines[0] != "hello\t42" {
		t.Errorf("Expected captured line %q, got %v", "hello\t42", lines)
	}
}

func TestRunPostScript_SyntaxError(t *testing.T) {
	rc, _ := newRunContext(t)

	err := RunPostScript(context.Background(), `this is not lua`, rc, nil)
	var scriptErr *ScriptError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("Expected *ScriptError, got %v", err)
	}
}

func TestRunPostScript_RuntimeError(t *testing.T) {
	rc, _ := newRunContext(t)

	err := RunPostScript(context.Background(), `error("boom")`, rc, nil)
	var scriptErr *ScriptError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("Expected *ScriptError, got %v", err)
	}
	if !strings.Contains(scriptErr.Message, "boom") {
		t.Errorf("Expected error message to mention boom, got %q", scriptErr.Message)
	}
}

func TestRunPostScript_SandboxedLibraries(t *testing.T) {
	rc, _ := newRunContext(t)

	// The filesystem and process libraries must not exist, and the base
	// library loaders that reach the filesystem must be stripped.
	run(t, rc, `
		assert(os == nil, "os is loaded")
		assert(io == nil, "io is loaded")
		assert(debug == nil, "debug is loaded")
		assert(dofile == nil, "dofile is present")
		assert(loadfile == nil, "loadfile is present")
		assert(string.upper("ok") == "OK", "string library missing")
		assert(math.floor(1.5) == 1, "math library missing")
		assert(type(table.insert) == "function", "table library missing")
	`)
}

func TestRunPostScript_AppVersion(t *testing.T) {
	rc, _ := newRunContext(t)

	run(t, rc, `assert(AppVersion == "`+EngineVersion+`", "wrong AppVersion: " .. tostring(AppVersion))`)
}

func TestCurrentPost_FieldAccessors(t *testing.T) {
	rc, _ := newRunContext(t)

	run(t, rc, `
		assert(CurrentPost.getTitle() == "Original Title")
		assert(CurrentPost.getAuthor() == "Alice")
		CurrentPost.setTitle("Rewritten")
		CurrentPost.setContent("New content")
	`)

	if rc.Post.Title != "Rewritten" {
		t.Errorf("Expected in-memory title %q, got %q", "Rewritten", rc.Post.Title)
	}

	stored, err := rc.Posts.GetPost(rc.Post.ID)
	if err != nil {
		t.Fatalf("Failed to reload post: %v", err)
	}
	if stored.Title != "Rewritten" {
		t.Errorf("Expected stored title %q, got %q", "Rewritten", stored.Title)
	}
	if stored.Content != "New content" {
		t.Errorf("Expected stored content %q, got %q", "New content", stored.Content)
	}
}

func TestCurrentPost_ReadStatus(t *testing.T) {
	rc, _ := newRunContext(t)

	run(t, rc, `
		assert(CurrentPost.isRead() == false)
		CurrentPost.markAsRead()
		assert(CurrentPost.isRead() == true)
	`)

	stored, err := rc.Posts.GetPost(rc.Post.ID)
	if err != nil {
		t.Fatalf("Failed to reload post: %v", err)
	}
	if !stored.IsRead {
		t.Error("Expected post to be marked read in the database")
	}

	run(t, rc, `CurrentPost.markAsUnread()`)
	stored, _ = rc.Posts.GetPost(rc.Post.ID)
	if stored.IsRead {
		t.Error("Expected post to be marked unread in the database")
	}
}

func TestCurrentPost_Flags(t *testing.T) {
	rc, _ := newRunContext(t)

	run(t, rc, `
		CurrentPost.flag("red")
		CurrentPost.flag("blue")
		CurrentPost.unflag("blue")
	`)

	flags, err := rc.Posts.GetFlags(rc.Post.ID)
	if err != nil {
		t.Fatalf("Failed to load flags: %v", err)
	}
	if len(flags) != 1 || flags[0] != database.FlagRed {
		t.Errorf("Expected exactly a red flag, got %v", flags)
	}
}

func TestCurrentPost_UnknownFlagColor(t *testing.T) {
	rc, _ := newRunContext(t)

	err := RunPostScript(context.Background(), `CurrentPost.flag("chartreuse")`, rc, nil)
	var scriptErr *ScriptError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("Expected *ScriptError, got %v", err)
	}
	if !strings.Contains(scriptErr.Message, "chartreuse") {
		t.Errorf("Expected error to name the bad color, got %q", scriptErr.Message)
	}
}

func TestCurrentPost_ScriptFolders(t *testing.T) {
	rc, db := newRunContext(t)

	folder, err := database.NewScriptFolderRepository(db).CreateScriptFolder(rc.Source.ID, "Podcasts", true, false)
	if err != nil {
		t.Fatalf("Failed to create script folder: %v", err)
	}

	run(t, rc, `CurrentPost.assignToScriptFolder(`+strconv.FormatInt(folder.ID, 10)+`)`)

	total, posts, err := rc.Posts.GetScriptFolderPosts(folder.ID, database.PostQueryOptions{})
	if err != nil {
		t.Fatalf("Failed to query script folder posts: %v", err)
	}
	if total != 1 || len(posts) != 1 || posts[0].ID != rc.Post.ID {
		t.Fatalf("Expected the post in the script folder, got total=%d posts=%v", total, posts)
	}

	run(t, rc, `CurrentPost.unassignFromScriptFolder(`+strconv.FormatInt(folder.ID, 10)+`)`)

	total, _, err = rc.Posts.GetScriptFolderPosts(folder.ID, database.PostQueryOptions{})
	if err != nil {
		t.Fatalf("Failed to query script folder posts: %v", err)
	}
	if total != 0 {
		t.Errorf("Expected empty script folder after unassign, got %d", total)
	}
}

func TestCurrentPost_UnknownScriptFolder(t *testing.T) {
	rc, _ := newRunContext(t)

	err := RunPostScript(context.Background(), `CurrentPost.assignToScriptFolder(999)`, rc, nil)
	var scriptErr *ScriptError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("Expected *ScriptError, got %v", err)
	}
	if !strings.Contains(scriptErr.Message, "999") {
		t.Errorf("Expected error to name the folder id, got %q", scriptErr.Message)
	}
}

func TestCurrentPost_Enclosures(t *testing.T) {
	rc, _ := newRunContext(t)

	run(t, rc, `
		assert(CurrentPost.enclosures.count() == 1)
		local enc = CurrentPost.enclosures.get(1)
		assert(enc.url == "https://example.com/ep1.mp3")
		assert(enc.mimeType == "audio/mpeg")
		assert(enc.size == 1024)

		CurrentPost.enclosures.add("https://example.com/ep2.ogg", "audio/ogg", 2048)
		assert(CurrentPost.enclosures.count() == 2)

		CurrentPost.enclosures.setURL(1, "https://cdn.example.com/ep1.mp3")
	`)

	stored, err := rc.Posts.GetPost(rc.Post.ID)
	if err != nil {
		t.Fatalf("Failed to reload post: %v", err)
	}
	if len(stored.Enclosures) != 2 {
		t.Fatalf("Expected 2 enclosures, got %d", len(stored.Enclosures))
	}
	if stored.Enclosures[0].URL != "https://cdn.example.com/ep1.mp3" {
		t.Errorf("Expected rewritten enclosure URL, got %q", stored.Enclosures[0].URL)
	}
}

func TestCurrentPost_EnclosureIndexOutOfRange(t *testing.T) {
	rc, _ := newRunContext(t)

	err := RunPostScript(context.Background(), `CurrentPost.enclosures.get(5)`, rc, nil)
	var scriptErr *ScriptError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("Expected *ScriptError, got %v", err)
	}
}

func TestCurrentPost_Titles(t *testing.T) {
	rc, _ := newRunContext(t)

	run(t, rc, `
		assert(CurrentPost.feedTitle() == "Test Feed")
		assert(CurrentPost.sourceTitle() == "Test Source")
	`)
}

func TestShouldRun(t *testing.T) {
	base := database.Script{
		Type:        "lua",
		IsEnabled:   true,
		RunOnEvents: database.ScriptEventNewPost,
	}

	tests := []struct {
		name   string
		mutate func(*database.Script)
		event  database.ScriptEvents
		feedID int64
		want   bool
	}{
		{"enabled matching event", nil, database.ScriptEventNewPost, 1, true},
		{"disabled", func(s *database.Script) { s.IsEnabled = false }, database.ScriptEventNewPost, 1, false},
		{"wrong type", func(s *database.Script) { s.Type = "javascript" }, database.ScriptEventNewPost, 1, false},
		{"unsubscribed event", nil, database.ScriptEventUpdatePost, 1, false},
		{"both events subscribed", func(s *database.Script) {
			s.RunOnEvents = database.ScriptEventNewPost | database.ScriptEventUpdatePost
		}, database.ScriptEventUpdatePost, 1, true},
		{"feed in filter", func(s *database.Script) { s.RunOnFeedIDs = []int64{3, 1} }, database.ScriptEventNewPost, 1, true},
		{"feed not in filter", func(s *database.Script) { s.RunOnFeedIDs = []int64{3, 4} }, database.ScriptEventNewPost, 1, false},
		{"empty filter matches any feed", nil, database.ScriptEventNewPost, 42, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			if tt.mutate != nil {
				tt.mutate(&s)
			}
			if got := ShouldRun(s, tt.event, tt.feedID); got != tt.want {
				t.Errorf("ShouldRun = %v, want %v", got, tt.want)
			}
		})
	}
}
