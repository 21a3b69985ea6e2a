package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/feedloom/feedloom/app/database"
)

// APIVersion is the wire protocol revision shared by the API server and the
// remote source client. A remote connection to a server speaking a different
// revision is refused outright.
const APIVersion = 1

// ErrUnsupportedAPIVersion is returned when a remote server speaks a
// different protocol revision than this build.
var ErrUnsupportedAPIVersion = errors.New("unsupported api version")

// remoteConfig is the parsed config_data of a remote source record.
type remoteConfig struct {
	URL    string `json:"url"`
	APIKey string `json:"api_key"`
}

var _ Source = (*Remote)(nil)

// Remote proxies the Source capability set to another instance over its
// HTTP API. It holds no state beyond identity and connection details; every
// call is one round trip.
type Remote struct {
	record database.Source
	client *http.Client

	baseURL  string
	apiKey   string
	remoteID int64
}

func newRemote(record database.Source, deps Deps) (*Remote, error) {
	var config remoteConfig
	if err := json.Unmarshal([]byte(record.ConfigData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse remote source config: %w", err)
	}
	if config.URL == "" {
		return nil, errors.New("remote source config has no url")
	}

	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	s := &Remote{
		record:  record,
		client:  client,
		baseURL: strings.TrimRight(config.URL, "/"),
		apiKey:  config.APIKey,
	}
	if err := s.handshake(); err != nil {
		return nil, err
	}
	return s, nil
}

// handshake verifies the protocol revision and resolves the server-side
// source ID the remote URL points at.
func (s *Remote) handshake() error {
	var version struct {
		APIVersion int   `json:"api_version"`
		SourceID   int64 `json:"source_id"`
	}
	if err := s.doJSON(http.MethodGet, "/version", nil, nil, &version); err != nil {
		return fmt.Errorf("remote handshake failed: %w", err)
	}
	if version.APIVersion != APIVersion {
		return fmt.Errorf("%w: server speaks %d, this build speaks %d",
			ErrUnsupportedAPIVersion, version.APIVersion, APIVersion)
	}
	s.remoteID = version.SourceID
	return nil
}

func (s *Remote) ID() int64     { return s.record.ID }
func (s *Remote) Type() string  { return TypeRemote }
func (s *Remote) Title() string { return s.record.Title }

func (s *Remote) sourcePath(suffix string) string {
	return fmt.Sprintf("/sources/%d%s", s.remoteID, suffix)
}

func (s *Remote) GetFeeds() ([]database.Feed, error) {
	var feeds []database.Feed
	err := s.doJSON(http.MethodGet, s.sourcePath("/feeds"), nil, nil, &feeds)
	return feeds, err
}

func (s *Remote) GetFolders() ([]database.Folder, error) {
	var folders []database.Folder
	err := s.doJSON(http.MethodGet, s.sourcePath("/folders"), nil, nil, &folders)
	return folders, err
}

func (s *Remote) GetScripts() ([]database.Script, error) {
	var scripts []database.Script
	err := s.doJSON(http.MethodGet, s.sourcePath("/scripts"), nil, nil, &scripts)
	return scripts, err
}

func (s *Remote) GetScriptFolders() ([]database.ScriptFolder, error) {
	var folders []database.ScriptFolder
	err := s.doJSON(http.MethodGet, s.sourcePath("/scriptfolders"), nil, nil, &folders)
	return folders, err
}

func (s *Remote) GetStatistics() (*database.SourceStatistics, error) {
	var stats database.SourceStatistics
	if err := s.doJSON(http.MethodGet, s.sourcePath("/statistics"), nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *Remote) GetUnreadCounts() (map[int64]int, error) {
	var counts map[int64]int
	err := s.doJSON(http.MethodGet, s.sourcePath("/unread-counts"), nil, nil, &counts)
	return counts, err
}

func (s *Remote) AddFolder(parentID int64, title string) (*database.Folder, error) {
	body := map[string]any{"parent_id": parentID, "title": title}
	var folder database.Folder
	if err := s.doJSON(http.MethodPost, s.sourcePath("/folders"), nil, body, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

func (s *Remote) RemoveFolder(folderID int64) error {
	return s.doJSON(http.MethodDelete, s.sourcePath(fmt.Sprintf("/folders/%d", folderID)), nil, nil, nil)
}

func (s *Remote) MoveFolder(folderID, newParentID int64, position int) (map[int64]int, error) {
	body := map[string]any{"parent_id": newParentID, "position": position}
	var remap map[int64]int
	err := s.doJSON(http.MethodPost, s.sourcePath(fmt.Sprintf("/folders/%d/move", folderID)), nil, body, &remap)
	return remap, err
}

func (s *Remote) SortFolder(folderID int64) (*SortResult, error) {
	var result SortResult
	if err := s.doJSON(http.MethodPost, s.sourcePath(fmt.Sprintf("/folders/%d/sort", folderID)), nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Remote) FolderAndSubfolderIDs(folderID int64) ([]int64, error) {
	var ids []int64
	err := s.doJSON(http.MethodGet, s.sourcePath(fmt.Sprintf("/folders/%d/subtree", folderID)), nil, nil, &ids)
	return ids, err
}

func (s *Remote) FeedIDsInFoldersAndSubfolders(folderID int64) ([]int64, error) {
	var ids []int64
	err := s.doJSON(http.MethodGet, s.sourcePath(fmt.Sprintf("/folders/%d/feed-ids", folderID)), nil, nil, &ids)
	return ids, err
}

func (s *Remote) AddFeed(folderID int64, feedURL string) (*database.Feed, error) {
	body := map[string]any{"folder_id": folderID, "url": feedURL}
	var f database.Feed
	if err := s.doJSON(http.MethodPost, s.sourcePath("/feeds"), nil, body, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Remote) RemoveFeed(feedID int64) error {
	return s.doJSON(http.MethodDelete, s.sourcePath(fmt.Sprintf("/feeds/%d", feedID)), nil, nil, nil)
}

func (s *Remote) MoveFeed(feedID, newFolderID int64, position int) (map[int64]int, error) {
	body := map[string]any{"folder_id": newFolderID, "position": position}
	var remap map[int64]int
	err := s.doJSON(http.MethodPost, s.sourcePath(fmt.Sprintf("/feeds/%d/move", feedID)), nil, body, &remap)
	return remap, err
}

func (s *Remote) RefreshFeed(ctx context.Context, feedID int64) (*RefreshOutcome, error) {
	var outcome RefreshOutcome
	err := s.doJSONContext(ctx, http.MethodPost, s.sourcePath(fmt.Sprintf("/feeds/%d/refresh", feedID)), nil, nil, &outcome)
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

func (s *Remote) FeedsDueForRefresh(now time.Time) ([]database.Feed, error) {
	query := url.Values{"now": {now.UTC().Format(time.RFC3339)}}
	var feeds []database.Feed
	err := s.doJSON(http.MethodGet, s.sourcePath("/feeds/due"), query, nil, &feeds)
	return feeds, err
}

func (s *Remote) GetPost(postID int64) (*database.Post, error) {
	var post database.Post
	if err := s.doJSON(http.MethodGet, s.sourcePath(fmt.Sprintf("/posts/%d", postID)), nil, nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *Remote) GetFeedPosts(feedID int64, opts database.PostQueryOptions) (*PostsPage, error) {
	var page PostsPage
	err := s.doJSON(http.MethodGet, s.sourcePath(fmt.Sprintf("/feeds/%d/posts", feedID)), postQueryValues(opts), nil, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *Remote) GetFolderPosts(folderID int64, opts database.PostQueryOptions) (*PostsPage, error) {
	var page PostsPage
	err := s.doJSON(http.MethodGet, s.sourcePath(fmt.Sprintf("/folders/%d/posts", folderID)), postQueryValues(opts), nil, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *Remote) GetScriptFolderPosts(scriptFolderID int64, opts database.PostQueryOptions) (*PostsPage, error) {
	var page PostsPage
	err := s.doJSON(http.MethodGet, s.sourcePath(fmt.Sprintf("/scriptfolders/%d/posts", scriptFolderID)), postQueryValues(opts), nil, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *Remote) GetCategories(folderID int64) ([]database.Category, error) {
	query := url.Values{"folder_id": {strconv.FormatInt(folderID, 10)}}
	var categories []database.Category
	err := s.doJSON(http.MethodGet, s.sourcePath("/categories"), query, nil, &categories)
	return categories, err
}

func (s *Remote) MarkFeedRead(feedID, maxPostID int64) ([]int64, error) {
	body := map[string]any{"max_post_id": maxPostID}
	var ids []int64
	err := s.doJSON(http.MethodPost, s.sourcePath(fmt.Sprintf("/feeds/%d/read", feedID)), nil, body, &ids)
	return ids, err
}

func (s *Remote) MarkFolderRead(folderID, maxPostID int64) ([]int64, error) {
	body := map[string]any{"max_post_id": maxPostID}
	var ids []int64
	err := s.doJSON(http.MethodPost, s.sourcePath(fmt.Sprintf("/folders/%d/read", folderID)), nil, body, &ids)
	return ids, err
}

func (s *Remote) SetPostsReadStatus(postIDs []int64, read bool) error {
	body := map[string]any{"post_ids": postIDs, "read": read}
	return s.doJSON(http.MethodPost, s.sourcePath("/posts/read"), nil, body, nil)
}

func (s *Remote) SetPostsFlagStatus(postIDs []int64, color database.FlagColor, flagged bool) error {
	body := map[string]any{"post_ids": postIDs, "color": int(color), "flagged": flagged}
	return s.doJSON(http.MethodPost, s.sourcePath("/posts/flag"), nil, body, nil)
}

func (s *Remote) AssignPostsToScriptFolder(postIDs []int64, scriptFolderID int64, assign bool) error {
	body := map[string]any{"post_ids": postIDs, "script_folder_id": scriptFolderID, "assign": assign}
	return s.doJSON(http.MethodPost, s.sourcePath("/posts/scriptfolder"), nil, body, nil)
}

func (s *Remote) ImportOPML(opml string, parentFolderID int64) ([]int64, error) {
	body := map[string]any{"opml": opml, "folder_id": parentFolderID}
	var ids []int64
	err := s.doJSON(http.MethodPost, s.sourcePath("/opml/import"), nil, body, &ids)
	return ids, err
}

func (s *Remote) ExportOPML() (string, error) {
	var result struct {
		OPML string `json:"opml"`
	}
	if err := s.doJSON(http.MethodGet, s.sourcePath("/opml/export"), nil, nil, &result); err != nil {
		return "", err
	}
	return result.OPML, nil
}

func (s *Remote) RunScript(ctx context.Context, scriptBody string, postID int64, printFn func(string)) error {
	body := map[string]any{"body": scriptBody, "post_id": postID}
	var result struct {
		Output []string `json:"output"`
	}
	if err := s.doJSONContext(ctx, http.MethodPost, s.sourcePath("/scripts/run"), nil, body, &result); err != nil {
		return err
	}
	if printFn != nil {
		for _, line := range result.Output {
			printFn(line)
		}
	}
	return nil
}

func postQueryValues(opts database.PostQueryOptions) url.Values {
	query := url.Values{}
	if opts.PerPage > 0 {
		query.Set("per_page", strconv.Itoa(opts.PerPage))
	}
	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.UnreadOnly {
		query.Set("unread_only", "true")
	}
	if opts.UnreadFirst {
		query.Set("unread_first", "true")
	}
	if opts.Search != "" {
		query.Set("search", opts.Search)
	}
	if opts.CategoryID != 0 {
		query.Set("category_id", strconv.FormatInt(opts.CategoryID, 10))
	}
	if opts.FlagColor != database.FlagGray {
		query.Set("flag", opts.FlagColor.Name())
	}
	return query
}

func (s *Remote) doJSON(method, path string, query url.Values, reqBody, respBody any) error {
	return s.doJSONContext(context.Background(), method, path, query, reqBody, respBody)
}

func (s *Remote) doJSONContext(ctx context.Context, method, path string, query url.Values, reqBody, respBody any) error {
	endpoint := s.baseURL + "/api" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeRemoteError(resp)
	}
	if respBody == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeRemoteError surfaces the server's error message when it sent one,
// falling back to the HTTP status.
func decodeRemoteError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("remote error (status %d): %s", resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("remote request failed with status %d", resp.StatusCode)
}
