package database

import (
	"time"
)

// Source is one configured account. A local source keeps its data in this
// database; a remote source proxies another server instance and only its
// registration row lives here.
type Source struct {
	ID         int64
	Title      string
	Type       string // "local" or "remote"
	SortOrder  int
	ConfigData string // JSON blob, transport specific (remote URL, API key)
	LastError  string
}

// Folder is a node in the per-source folder tree. ParentID 0 means the
// source root.
type Folder struct {
	ID        int64
	SourceID  int64
	ParentID  int64
	Title     string
	SortOrder int
}

// Feed is a single subscription.
type Feed struct {
	ID               int64
	SourceID         int64
	FolderID         int64
	URL              string
	GUID             string
	Title            string
	Subtitle         string
	Link             string
	Description      string
	Language         string
	Copyright        string
	IconURL          string
	IconHash         string
	IconData         []byte
	SortOrder        int
	RefreshInterval  int // seconds, 0 = server default
	LastChecked      *time.Time
	NextFetchAt      *time.Time
	LastRefreshError string
	ETag             string
	LastModified     string
	UnreadCount      int // computed, not a column
}

// Post is a stored feed item. Flags, enclosures and categories are loaded
// alongside the row when a query asks for full posts.
type Post struct {
	ID           int64
	FeedID       int64
	IsRead       bool
	Title        string
	Link         string
	Content      string
	Author       string
	CommentsURL  string
	GUID         string
	Thumbnail    string
	PublishedAt  *time.Time
	CreatedAt    time.Time
	FlagColors   []FlagColor
	Enclosures   []Enclosure
	Categories   []Category
	FeedTitle    string // joined for display, not a posts column
}

// Enclosure is an attachment reference on a post.
type Enclosure struct {
	ID       int64
	PostID   int64
	URL      string
	MimeType string
	Size     int64
}

// Category is a per-feed label attached to posts.
type Category struct {
	ID     int64
	FeedID int64
	Title  string
}

// Script is a user-authored Lua script bound to feed lifecycle events.
type Script struct {
	ID           int64
	SourceID     int64
	Title        string
	Type         string // only "lua" today
	IsEnabled    bool
	RunOnEvents  ScriptEvents
	RunOnFeedIDs []int64 // empty = all feeds
	Script       string
}

// ScriptFolder is a named bag of posts, orthogonal to the folder tree.
type ScriptFolder struct {
	ID         int64
	SourceID   int64
	Title      string
	ShowTotal  bool
	ShowUnread bool
}

// Log is one engine log entry, kept per source/feed for error surfacing.
type Log struct {
	ID        int64
	SourceID  int64
	FeedID    int64
	Level     int
	Message   string
	CreatedAt time.Time
}

// Log levels.
const (
	LogLevelInfo  = 0
	LogLevelWarn  = 1
	LogLevelError = 2
)
