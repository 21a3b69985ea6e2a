package database

import (
	"errors"
	"testing"
	"time"
)

func TestUpsertPost_Deduplication(t *testing.T) {
	db := newTestDB(t)
	src := createTestSource(t, db)
	feed := createTestFeed(t, db, src.ID, 0, "https://example.com/feed.xml")
	posts := NewPostRepository(db)

	attrs := PostAttributes{
		GUID:    "guid-1",
		Title:   "First Post",
		Link:    "https://example.com/1",
		Content: "Hello",
	}

	_, status, err := posts.UpsertPost(feed.ID, attrs)
	if err != nil {
		t.Fatalf("Failed to upsert post: %v", err)
	}
	if status != UpsertNew {
		t.Errorf("Expected UpsertNew on first upsert, got %v", status)
	}

	// Same guid with identical content is a no-op.
	_, status, err = posts.UpsertPost(feed.ID, attrs)
	if err != nil {
		t.Fatalf("Failed to upsert post second time: %v", err)
	}
	if status != UpsertUnchanged {
		t.Errorf("Expected UpsertUnchanged on identical upsert, got %v", status)
	}

	total, _, err := posts.GetPosts([]int64{feed.ID}, PostQueryOptions{})
	if err != nil {
		t.Fatalf("Failed to query posts: %v", err)
	}
	if total != 1 {
		t.Errorf("Expected 1 post after duplicate upsert, got %d", total)
	}
}

func TestUpsertPost_UpdatePreservesReadStateAndFlags(t *testing.T) {
	db := newTestDB(t)
	src := createTestSource(t, db)
	feed := createTestFeed(t, db, src.ID, 0, "https://example.com/feed.xml")
	posts := NewPostRepository(db)

	post, _, err := posts.UpsertPost(feed.ID, PostAttributes{
		GUID:    "guid-1",
		Title:   "Original",
		Content: "Original content",
	})
	if err != nil {
		t.Fatalf("Failed to upsert post: %v", err)
	}

	if err := posts.SetPostsReadStatus([]int64{post.ID}, true); err != nil {
		t.Fatalf("Failed to mark post read: %v", err)
	}
	if err := posts.SetFlag(post.ID, FlagRed); err != nil {
		t.Fatalf("Failed to flag post: %v", err)
	}

	updated, status, err := posts.UpsertPost(feed.ID, PostAttributes{
		GUID:    "guid-1",
		Title:   "Edited",
		Content: "Edited content",
	})
	if err != nil {
		t.Fatalf("Failed to upsert updated post: %v", err)
	}
	if status != UpsertUpdated {
		t.Errorf("Expected UpsertUpdated for changed content, got %v", status)
	}
	if updated.ID != post.ID {
		t.Errorf("Update must keep the row, got new ID %d (was %d)", updated.ID, post.ID)
	}
	if !updated.IsRead {
		t.Error("Read state must survive a content update")
	}

	flags, err := posts.GetFlags(post.ID)
	if err != nil {
		t.Fatalf("Failed to get flags: %v", err)
	}
	if len(flags) != 1 || flags[0] != FlagRed {
		t.Errorf("Flags must survive a content update, got %v", flags)
	}
}

func TestSetFlag_Idempotent(t *testing.T) {
	db := newTestDB(t)
	src := createTestSource(t, db)
	feed := createTestFeed(t, db, src.ID, 0, "https://example.com/feed.xml")
	posts := NewPostRepository(db)

	post, _, err := posts.UpsertPost(feed.ID, PostAttributes{GUID: "guid-1", Title: "Post"})
	if err != nil {
		t.Fatalf("Failed to upsert post: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := posts.SetFlag(post.ID, FlagBlue); err != nil {
			t.Fatalf("SetFlag attempt %d failed: %v", i, err)
		}
	}

	flags, err := posts.GetFlags(post.ID)
	if err != nil {
		t.Fatalf("Failed to get flags: %v", err)
	}
	if len(flags) != 1 {
		t.Errorf("Expected 1 flag after repeated SetFlag, got %d", len(flags))
	}

	if err := posts.ClearFlag(post.ID, FlagBlue); err != nil {
		t.Fatalf("ClearFlag failed: %v", err)
	}
	// Clearing an absent flag is a no-op.
	if err := posts.ClearFlag(post.ID, FlagBlue); err != nil {
		t.Fatalf("ClearFlag on unflagged post failed: %v", err)
	}

	flags, err = posts.GetFlags(post.ID)
	if err != nil {
		t.Fatalf("Failed to get flags: %v", err)
	}
	if len(flags) != 0 {
		t.Errorf("Expected no flags after clear, got %v", flags)
	}
}

func TestSetFlag_InvalidColor(t *testing.T) {
	db := newTestDB(t)
	src := createTestSource(t, db)
	feed := createTestFeed(t, db, src.ID, 0, "https://example.com/feed.xml")
	posts := NewPostRepository(db)

	post, _, err := posts.UpsertPost(feed.ID, PostAttributes{GUID: "guid-1", Title: "Post"})
	if err != nil {
		t.Fatalf("Failed to upsert post: %v", err)
	}

	err = posts.SetFlag(post.ID, FlagColor(99))
	if !errors.Is(err, ErrInvalidFlagColor) {
		t.Errorf("Expected ErrInvalidFlagColor, got %v", err)
	}
}

func TestMarkFeedsRead_Boundary(t *testing.T) {
	db := newTestDB(t)
	src := createTestSource(t, db)
	feed := createTestFeed(t, db, src.ID, 0, "https://example.com/feed.xml")
	posts := NewPostRepository(db)

	var ids []int64
	for _, guid := range []string{"a", "b", "c"} {
		post, _, err := posts.UpsertPost(feed.ID, PostAttributes{GUID: guid, Title: guid})
		if err != nil {
			t.Fatalf("Failed to upsert post %s: %v", guid, err)
		}
		ids = append(ids, post.ID)
	}

	// Only posts at or below the boundary flip; the newest stays unread so
	// a post arriving mid-operation is never swallowed.
	affected, err := posts.MarkFeedsRead([]int64{feed.ID}, ids[1])
	if err != nil {
		t.Fatalf("Failed to mark feed read: %v", err)
	}
	if len(affected) != 1 || affected[0] != feed.ID {
		t.Errorf("Expected affected feeds [%d], got %v", feed.ID, affected)
	}

	for i, id := range ids {
		post, err := posts.GetPost(id)
		if err != nil {
			t.Fatalf("Failed to get post %d: %v", id, err)
		}
		wantRead := id <= ids[1]
		if post.IsRead != wantRead {
			t.Errorf("Post %d (index %d): IsRead = %v, want %v", id, i, post.IsRead, wantRead)
		}
	}

	// Marking again touches no feed.
	affected, err = posts.MarkFeedsRead([]int64{feed.ID}, ids[1])
	if err != nil {
		t.Fatalf("Failed to mark feed read again: %v", err)
	}
	if len(affected) != 0 {
		t.Errorf("Expected no affected feeds on repeat mark, got %v", affected)
	}
}

func TestAssignToScriptFolder_InvalidID(t *testing.T) {
	db := newTestDB(t)
	src := createTestSource(t, db)
	feed := createTestFeed(t, db, src.ID, 0, "https://example.com/feed.xml")
	posts := NewPostRepository(db)

	post, _, err := posts.UpsertPost(feed.ID, PostAttributes{GUID: "guid-1", Title: "Post"})
	if err != nil {
		t.Fatalf("Failed to upsert post: %v", err)
	}

	err = posts.AssignToScriptFolder(post.ID, 12345)
	if !errors.Is(err, ErrInvalidScriptFolderID) {
		t.Errorf("Expected ErrInvalidScriptFolderID, got %v", err)
	}
}

func TestGetPosts_Filters(t *testing.T) {
	db := newTestDB(t)
	src := createTestSource(t, db)
	feed := createTestFeed(t, db, src.ID, 0, "https://example.com/feed.xml")
	posts := NewPostRepository(db)

	now := time.Now().UTC()
	older := now.Add(-time.Hour)

	first, _, err := posts.UpsertPost(feed.ID, PostAttributes{
		GUID: "a", Title: "Go release notes", Content: "generics", PublishedAt: &older,
	})
	if err != nil {
		t.Fatalf("Failed to upsert post: %v", err)
	}
	if _, _, err := posts.UpsertPost(feed.ID, PostAttributes{
		GUID: "b", Title: "Weather", Content: "rain", PublishedAt: &now,
	}); err != nil {
		t.Fatalf("Failed to upsert post: %v", err)
	}

	if err := posts.SetPostsReadStatus([]int64{first.ID}, true); err != nil {
		t.Fatalf("Failed to mark post read: %v", err)
	}

	total, result, err := posts.GetPosts([]int64{feed.ID}, PostQueryOptions{UnreadOnly: true})
	if err != nil {
		t.Fatalf("Failed to query unread posts: %v", err)
	}
	if total != 1 || len(result) != 1 || result[0].GUID != "b" {
		t.Errorf("Expected only unread post b, got total=%d posts=%v", total, result)
	}

	total, result, err = posts.GetPosts([]int64{feed.ID}, PostQueryOptions{Search: "release"})
	if err != nil {
		t.Fatalf("Failed to search posts: %v", err)
	}
	if total != 1 || len(result) != 1 || result[0].GUID != "a" {
		t.Errorf("Expected search to match post a, got total=%d", total)
	}

	// Newest first by default.
	_, result, err = posts.GetPosts([]int64{feed.ID}, PostQueryOptions{})
	if err != nil {
		t.Fatalf("Failed to query posts: %v", err)
	}
	if len(result) != 2 || result[0].GUID != "b" {
		t.Errorf("Expected newest post first, got %v", result)
	}
}

func TestGetDistinctCategories_CaseFolded(t *testing.T) {
	db := newTestDB(t)
	src := createTestSource(t, db)
	feed := createTestFeed(t, db, src.ID, 0, "https://example.com/feed.xml")
	posts := NewPostRepository(db)

	if _, _, err := posts.UpsertPost(feed.ID, PostAttributes{
		GUID: "a", Title: "A", Categories: []string{"Tech", "News"},
	}); err != nil {
		t.Fatalf("Failed to upsert post: %v", err)
	}
	if _, _, err := posts.UpsertPost(feed.ID, PostAttributes{
		GUID: "b", Title: "B", Categories: []string{"tech"},
	}); err != nil {
		t.Fatalf("Failed to upsert post: %v", err)
	}

	categories, err := posts.GetDistinctCategories([]int64{feed.ID})
	if err != nil {
		t.Fatalf("Failed to get categories: %v", err)
	}
	if len(categories) != 2 {
		t.Errorf("Expected 2 case-folded categories, got %d (%v)", len(categories), categories)
	}
}
