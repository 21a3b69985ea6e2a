// Package source aggregates the folder tree, feeds, posts, scripts and
// script folders of one configured account behind a single capability set,
// with a local SQLite-backed implementation and a remote HTTP-backed one.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/feedloom/feedloom/app/database"
	"github.com/feedloom/feedloom/app/feed"
)

// Source type strings. The factory is a closed set over these.
const (
	TypeLocal  = "local"
	TypeRemote = "remote"
)

// ErrUnsupportedSourceType is returned by the factory for unknown type
// strings.
var ErrUnsupportedSourceType = errors.New("unsupported source type")

// ErrSourceNotFound is returned by registry lookups for unknown IDs.
var ErrSourceNotFound = errors.New("source not found")

// PostsPage is one page of a filtered post query plus the total match count.
type PostsPage struct {
	Total int             `json:"total"`
	Posts []database.Post `json:"posts"`
}

// SortResult maps entity ID to new sort order for the siblings that moved,
// feeds and folders reported separately so callers can patch their state
// without a reload.
type SortResult struct {
	Feeds   map[int64]int `json:"feeds"`
	Folders map[int64]int `json:"folders"`
}

// RefreshOutcome summarizes one feed refresh cycle.
type RefreshOutcome struct {
	Feed         *database.Feed `json:"feed"`
	NotModified  bool           `json:"not_modified"`
	NewPosts     int            `json:"new_posts"`
	UpdatedPosts int            `json:"updated_posts"`
}

// Source is the capability set shared by the local and remote variants.
// Post-returning operations deliver single-owner copies; nothing handed out
// here is shared mutable state.
type Source interface {
	ID() int64
	Type() string
	Title() string

	GetFeeds() ([]database.Feed, error)
	GetFolders() ([]database.Folder, error)
	GetScripts() ([]database.Script, error)
	GetScriptFolders() ([]database.ScriptFolder, error)
	GetStatistics() (*database.SourceStatistics, error)
	GetUnreadCounts() (map[int64]int, error)

	AddFolder(parentID int64, title string) (*database.Folder, error)
	RemoveFolder(folderID int64) error
	MoveFolder(folderID, newParentID int64, position int) (map[int64]int, error)
	SortFolder(folderID int64) (*SortResult, error)
	FolderAndSubfolderIDs(folderID int64) ([]int64, error)
	FeedIDsInFoldersAndSubfolders(folderID int64) ([]int64, error)

	AddFeed(folderID int64, url string) (*database.Feed, error)
	RemoveFeed(feedID int64) error
	MoveFeed(feedID, newFolderID int64, position int) (map[int64]int, error)
	RefreshFeed(ctx context.Context, feedID int64) (*RefreshOutcome, error)
	FeedsDueForRefresh(now time.Time) ([]database.Feed, error)

	GetPost(postID int64) (*database.Post, error)
	GetFeedPosts(feedID int64, opts database.PostQueryOptions) (*PostsPage, error)
	GetFolderPosts(folderID int64, opts database.PostQueryOptions) (*PostsPage, error)
	GetScriptFolderPosts(scriptFolderID int64, opts database.PostQueryOptions) (*PostsPage, error)
	GetCategories(folderID int64) ([]database.Category, error)
	MarkFeedRead(feedID, maxPostID int64) ([]int64, error)
	MarkFolderRead(folderID, maxPostID int64) ([]int64, error)
	SetPostsReadStatus(postIDs []int64, read bool) error
	SetPostsFlagStatus(postIDs []int64, color database.FlagColor, flagged bool) error
	AssignPostsToScriptFolder(postIDs []int64, scriptFolderID int64, assign bool) error

	ImportOPML(opml string, parentFolderID int64) ([]int64, error)
	ExportOPML() (string, error)

	RunScript(ctx context.Context, scriptBody string, postID int64, printFn func(string)) error
}

// Deps bundles everything a source implementation needs. The registry owns
// one Deps value and shares it across all sources.
type Deps struct {
	Sources       database.SourceRepository
	Folders       database.FolderRepository
	Feeds         database.FeedRepository
	Posts         database.PostRepository
	Scripts       database.ScriptRepository
	ScriptFolders database.ScriptFolderRepository
	Logs          database.LogRepository

	Fetcher    *feed.Fetcher
	Parser     *feed.Parser
	HTTPClient *http.Client
	UserAgent  string

	// DefaultRefreshInterval applies to feeds with refresh_interval 0.
	DefaultRefreshInterval time.Duration
}

// New is the factory over the closed local/remote variant set.
func New(record database.Source, deps Deps) (Source, error) {
	switch record.Type {
	case TypeLocal:
		return newLocal(record, deps), nil
	case TypeRemote:
		return newRemote(record, deps)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSourceType, record.Type)
	}
}
