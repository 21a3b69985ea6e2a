package database

import (
	"time"
)

// FeedMetadata carries the feed-level fields refreshed on every fetch.
type FeedMetadata struct {
	GUID        string
	Title       string
	Subtitle    string
	Link        string
	Description string
	Language    string
	Copyright   string
	IconURL     string
}

type SourceRepository interface {
	GetSources(typeFilter string) ([]Source, error)
	GetSource(id int64) (*Source, error)
	CreateSource(title, sourceType, configData string) (*Source, error)
	UpdateSourceTitle(id int64, title string) error
	UpdateSourceError(id int64, message string) error
	DeleteSource(id int64) error
	GetStatistics(sourceID int64) (*SourceStatistics, error)
}

type FolderRepository interface {
	GetFolder(id int64) (*Folder, error)
	GetChildFolders(sourceID, parentID int64) ([]Folder, error)
	GetAllFolders(sourceID int64) ([]Folder, error)
	GetFolderByTitle(sourceID, parentID int64, title string) (*Folder, error)
	CreateFolder(sourceID, parentID int64, title string) (*Folder, error)
	UpdateFolderTitle(id int64, title string) error
	SetFolderParent(id, parentID int64, sortOrder int) error
	SetFolderSortOrder(id int64, sortOrder int) error
	DeleteFolders(ids []int64) error
	SubtreeFolderIDs(sourceID, folderID int64) ([]int64, error)
	ResequenceFolders(sourceID, parentID int64) (map[int64]int, error)
}

type FeedRepository interface {
	GetFeed(id int64) (*Feed, error)
	GetFeeds(sourceID int64) ([]Feed, error)
	GetFeedsInFolder(sourceID, folderID int64) ([]Feed, error)
	GetFeedByURL(sourceID, folderID int64, url string) (*Feed, error)
	GetFeedsDueForRefresh(sourceID int64, now time.Time) ([]Feed, error)
	CreateFeed(sourceID, folderID int64, url, title string) (*Feed, error)
	DeleteFeed(id int64) error
	DeleteFeedsInFolders(sourceID int64, folderIDs []int64) ([]int64, error)
	UpdateFeedMetadata(id int64, meta FeedMetadata) error
	UpdateFeedIcon(id int64, iconURL, iconHash string, iconData []byte) error
	UpdateFeedFetchState(id int64, etag, lastModified string, lastChecked, nextFetch time.Time) error
	SetFeedRefreshError(id int64, message string) error
	SetFeedRefreshInterval(id int64, seconds int) error
	SetFeedFolder(id, folderID int64, sortOrder int) error
	SetFeedSortOrder(id int64, sortOrder int) error
	ResequenceFeeds(sourceID, folderID int64) (map[int64]int, error)
	GetUnreadCounts(sourceID int64) (map[int64]int, error)
}

type PostRepository interface {
	GetPost(id int64) (*Post, error)
	GetPosts(feedIDs []int64, opts PostQueryOptions) (int, []Post, error)
	GetScriptFolderPosts(scriptFolderID int64, opts PostQueryOptions) (int, []Post, error)
	UpsertPost(feedID int64, attrs PostAttributes) (*Post, UpsertStatus, error)
	UpdatePostFields(id int64, title, link, content, author, commentsURL string) error
	SetPostsReadStatus(postIDs []int64, read bool) error
	MarkFeedsRead(feedIDs []int64, maxPostID int64) ([]int64, error)
	SetFlag(postID int64, color FlagColor) error
	ClearFlag(postID int64, color FlagColor) error
	GetFlags(postID int64) ([]FlagColor, error)
	AssignToScriptFolder(postID, scriptFolderID int64) error
	UnassignFromScriptFolder(postID, scriptFolderID int64) error
	ReplaceEnclosures(postID int64, enclosures []EnclosureAttributes) error
	AddEnclosure(postID int64, enc EnclosureAttributes) error
	UpdateEnclosure(id int64, enc EnclosureAttributes) error
	RemoveEnclosure(id int64) error
	GetDistinctCategories(feedIDs []int64) ([]Category, error)
}

type ScriptRepository interface {
	GetScript(id int64) (*Script, error)
	GetScripts(sourceID int64) ([]Script, error)
	CreateScript(sourceID int64, title string, events ScriptEvents, feedIDs []int64, body string) (*Script, error)
	UpdateScript(id int64, title string, isEnabled bool, events ScriptEvents, feedIDs []int64, body string) error
	DeleteScript(id int64) error
}

type ScriptFolderRepository interface {
	GetScriptFolder(id int64) (*ScriptFolder, error)
	GetScriptFolders(sourceID int64) ([]ScriptFolder, error)
	CreateScriptFolder(sourceID int64, title string, showTotal, showUnread bool) (*ScriptFolder, error)
	UpdateScriptFolder(id int64, title string, showTotal, showUnread bool) error
	DeleteScriptFolder(id int64) error
}

type LogRepository interface {
	Add(sourceID, feedID int64, level int, message string) error
	GetLogs(sourceID int64, perPage, page int) (int, []Log, error)
}
