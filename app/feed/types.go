package feed

import (
	"time"
)

// Document is the normalized form of a fetched feed, regardless of whether
// it arrived as RSS, Atom or JSON Feed.
type Document struct {
	Metadata Metadata
	Items    []Item
}

// Metadata carries the feed-level fields.
type Metadata struct {
	GUID        string
	Title       string
	Subtitle    string
	Link        string
	Description string
	Language    string
	Copyright   string
	IconURL     string
}

// Item is one normalized feed entry. GUID is always populated: either the
// document's explicit guid or a derived one (see deriveGUID).
type Item struct {
	GUID        string
	Title       string
	Link        string
	Content     string
	Author      string
	CommentsURL string
	Thumbnail   string
	PublishedAt *time.Time
	Enclosures  []Enclosure
	Categories  []string
}

// Enclosure is an attachment reference on an item.
type Enclosure struct {
	URL      string
	MimeType string
	Size     int64
}
