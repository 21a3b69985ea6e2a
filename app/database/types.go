package database

import (
	"time"
)

// ScriptEvents is a bitmask of feed lifecycle events a script subscribes to.
type ScriptEvents int

const (
	ScriptEventNewPost ScriptEvents = 1 << iota
	ScriptEventUpdatePost
)

// Contains reports whether event is part of the set.
func (e ScriptEvents) Contains(event ScriptEvents) bool {
	return e&event != 0
}

// PostAttributes is a normalized feed item handed to UpsertPost. The parser
// produces these; the repository decides insert versus update by
// (feed_id, guid).
type PostAttributes struct {
	GUID        string
	Title       string
	Link        string
	Content     string
	Author      string
	CommentsURL string
	Thumbnail   string
	PublishedAt *time.Time
	Enclosures  []EnclosureAttributes
	Categories  []string
}

// EnclosureAttributes describes one attachment on an incoming item.
type EnclosureAttributes struct {
	URL      string
	MimeType string
	Size     int64
}

// UpsertStatus reports what UpsertPost did with an incoming item.
type UpsertStatus int

const (
	// UpsertUnchanged means the guid was known and content did not differ.
	UpsertUnchanged UpsertStatus = iota
	// UpsertNew means a post was inserted.
	UpsertNew
	// UpsertUpdated means an existing post's content changed.
	UpsertUpdated
)

// PostQueryOptions narrows and pages a post query. The zero value returns
// the first page with the default page size.
type PostQueryOptions struct {
	PerPage     int
	Page        int // 1-based
	UnreadOnly  bool
	UnreadFirst bool
	Search      string    // substring match over title and content
	CategoryID  int64     // 0 = no filter
	FlagColor   FlagColor // FlagGray = no filter
}

// DefaultPerPage caps unpaged queries.
const DefaultPerPage = 100

// SortOrderStep is the gap left between sibling sort orders so a dragged
// item can be slotted between two neighbors without resequencing the whole
// sibling set.
const SortOrderStep = 10

// SourceStatistics aggregates counters for one source.
type SourceStatistics struct {
	FeedCount   int
	PostCount   int
	UnreadCount int
	OldestPost  *time.Time
	NewestPost  *time.Time
}
