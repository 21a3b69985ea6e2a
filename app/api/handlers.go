package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feedloom/feedloom/app/agent"
	"github.com/feedloom/feedloom/app/database"
	"github.com/feedloom/feedloom/app/source"
)

type Handler struct {
	registry *source.Registry
	runner   *agent.Runner
	logs     database.LogRepository
	cache    *Cache
}

func NewHandler(registry *source.Registry, runner *agent.Runner, logs database.LogRepository, cache *Cache) *Handler {
	return &Handler{
		registry: registry,
		runner:   runner,
		logs:     logs,
		cache:    cache,
	}
}

// GetVersion is the remote-source handshake endpoint. source_id names the
// local source a remote connection proxies to.
func (h *Handler) GetVersion(c *gin.Context) {
	locals := h.registry.GetSources(source.TypeLocal)
	if len(locals) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no local source configured"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"api_version": source.APIVersion,
		"source_id":   locals[0].ID(),
	})
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"sources":   len(h.registry.GetSources("")),
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) ListSources(c *gin.Context) {
	sources := h.registry.GetSources(c.Query("type"))

	out := make([]gin.H, 0, len(sources))
	for _, src := range sources {
		out = append(out, gin.H{
			"id":    src.ID(),
			"type":  src.Type(),
			"title": src.Title(),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetSource(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":    src.ID(),
		"type":  src.Type(),
		"title": src.Title(),
	})
}

func (h *Handler) CreateSource(c *gin.Context) {
	var req struct {
		Title      string `json:"title"`
		Type       string `json:"type"`
		ConfigData string `json:"config_data"`
	}
	if !bindJSON(c, &req) {
		return
	}

	src, err := h.registry.CreateSource(req.Title, req.Type, req.ConfigData)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, source.ErrUnsupportedSourceType) || errors.Is(err, source.ErrUnsupportedAPIVersion) {
			status = http.StatusBadRequest
		}
		slog.Error("Failed to create source", "type", req.Type, "error", err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":    src.ID(),
		"type":  src.Type(),
		"title": src.Title(),
	})
}

func (h *Handler) RemoveSource(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.registry.RemoveSource(id); err != nil {
		if errors.Is(err, source.ErrSourceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		slog.Error("Failed to remove source", "source_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetStatistics(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}

	stats, err := src.GetStatistics()
	if err != nil {
		serverError(c, "get_statistics", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetUnreadCounts(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}

	counts, err := src.GetUnreadCounts()
	if err != nil {
		serverError(c, "get_unread_counts", err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (h *Handler) GetLogs(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}

	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "100"))
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))

	total, logs, err := h.logs.GetLogs(src.ID(), perPage, page)
	if err != nil {
		serverError(c, "get_logs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "logs": logs})
}

func (h *Handler) ListFolders(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}

	folders, err := src.GetFolders()
	if err != nil {
		serverError(c, "get_folders", err)
		return
	}
	c.JSON(http.StatusOK, folders)
}

func (h *Handler) AddFolder(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}

	var req struct {
		ParentID int64  `json:"parent_id"`
		Title    string `json:"title"`
	}
	if !bindJSON(c, &req) {
		return
	}

	folder, err := src.AddFolder(req.ParentID, req.Title)
	if err != nil {
		serverError(c, "add_folder", err)
		return
	}
	h.invalidate()
	c.JSON(http.StatusOK, folder)
}

func (h *Handler) RemoveFolder(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}
	folderID, ok := paramID(c, "folderID")
	if !ok {
		return
	}

	if err := src.RemoveFolder(folderID); err != nil {
		serverError(c, "remove_folder", err)
		return
	}
	h.invalidate()
	c.Status(http.StatusNoContent)
}

func (h *Handler) MoveFolder(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}
	folderID, ok := paramID(c, "folderID")
	if !ok {
		return
	}

	var req struct {
		ParentID int64 `json:"parent_id"`
		Position int   `json:"position"`
	}
	if !bindJSON(c, &req) {
		return
	}

	remap, err := src.MoveFolder(folderID, req.ParentID, req.Position)
	if err != nil {
		serverError(c, "move_folder", err)
		return
	}
	h.invalidate()
	c.JSON(http.StatusOK, remap)
}

func (h *Handler) SortFolder(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}
	folderID, ok := paramID(c, "folderID")
	if !ok {
		return
	}

	result, err := src.SortFolder(folderID)
	if err != nil {
		serverError(c, "sort_folder", err)
		return
	}
	h.invalidate()
	c.JSON(http.StatusOK, result)
}

func (h *Handler) FolderSubtree(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}
	folderID, ok := paramID(c, "folderID")
	if !ok {
		return
	}

	ids, err := src.FolderAndSubfolderIDs(folderID)
	if err != nil {
		serverError(c, "folder_subtree", err)
		return
	}
	c.JSON(http.StatusOK, ids)
}

func (h *Handler) FolderFeedIDs(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}
	folderID, ok := paramID(c, "folderID")
	if !ok {
		return
	}

	ids, err := src.FeedIDsInFoldersAndSubfolders(folderID)
	if err != nil {
		serverError(c, "folder_feed_ids", err)
		return
	}
	c.JSON(http.StatusOK, ids)
}

func (h *Handler) ListFeeds(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}

	feeds, err := src.GetFeeds()
	if err != nil {
		serverError(c, "get_feeds", err)
		return
	}
	c.JSON(http.StatusOK, feeds)
}

func (h *Handler) AddFeed(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}

	var req struct {
		FolderID int64  `json:"folder_id"`
		URL      string `json:"url"`
	}
	if !bindJSON(c, &req) {
		return
	}

	f, err := src.AddFeed(req.FolderID, req.URL)
	if err != nil {
		serverError(c, "add_feed", err)
		return
	}
	h.invalidate()
	h.runner.QueueRefreshFeed(src.ID(), f.ID, nil)
	c.JSON(http.StatusOK, f)
}

func (h *Handler) RemoveFeed(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}
	feedID, ok := paramID(c, "feedID")
	if !ok {
		return
	}

	if err := src.RemoveFeed(feedID); err != nil {
		serverError(c, "remove_feed", err)
		return
	}
	h.invalidate()
	c.Status(http.StatusNoContent)
}

func (h *Handler) MoveFeed(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}
	feedID, ok := paramID(c, "feedID")
	if !ok {
		return
	}

	var req struct {
		FolderID int64 `json:"folder_id"`
		Position int   `json:"position"`
	}
	if !bindJSON(c, &req) {
		return
	}

	remap, err := src.MoveFeed(feedID, req.FolderID, req.Position)
	if err != nil {
		serverError(c, "move_feed", err)
		return
	}
	h.invalidate()
	c.JSON(http.StatusOK, remap)
}

// RefreshFeed runs the refresh synchronously so the caller gets the
// outcome; fan-out refreshes go through RefreshSource instead.
func (h *Handler) RefreshFeed(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}
	feedID, ok := paramID(c, "feedID")
	if !ok {
		return
	}

	outcome, err := src.RefreshFeed(c.Request.Context(), feedID)
	if err != nil {
		serverError(c, "refresh_feed", err)
		return
	}
	h.invalidate()
	c.JSON(http.StatusOK, outcome)
}

// RefreshSource enqueues one refresh job per feed and returns immediately.
func (h *Handler) RefreshSource(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}

	h.runner.QueueRefreshSource(src.ID(), nil)
	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}

func (h *Handler) FeedsDue(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}

	now := time.Now().UTC()
	if raw := c.Query("now"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid now parameter"})
			return
		}
		now = parsed
	}

	feeds, err := src.FeedsDueForRefresh(now)
	if err != nil {
		serverError(c, "feeds_due", err)
		return
	}
	c.JSON(http.StatusOK, feeds)
}

// lookupSource resolves the :id route parameter against the registry,
// answering the request itself on failure.
func (h *Handler) lookupSource(c *gin.Context) (source.Source, bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return nil, false
	}

	src, err := h.registry.GetSource(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, false
	}
	return src, true
}

// invalidate drops cached list responses after any mutation.
func (h *Handler) invalidate() {
	if h.cache != nil {
		h.cache.Flush()
	}
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + " parameter"})
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, target any) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func serverError(c *gin.Context, operation string, err error) {
	slog.Error("API operation failed", "operation", operation, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
