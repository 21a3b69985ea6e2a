package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/feedloom/feedloom/app/database"
)

func (h *Handler) GetPost(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}
	postID, ok := paramID(c, "postID")
	if !ok {
		return
	}

	post, err := src.GetPost(postID)
	if err != nil {
		serverError(c, "get_post", err)
		return
	}
	if post == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *Handler) GetFeedPosts(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}
	feedID, ok := paramID(c, "feedID")
	if !ok {
		return
	}

	opts, ok := parsePostQuery(c)
	if !ok {
		return
	}

	page, err := src.GetFeedPosts(feedID, opts)
	if err != nil {
		serverError(c, "get_feed_posts", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) GetFolderPosts(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}
	folderID, ok := paramID(c, "folderID")
	if !ok {
		return
	}

	opts, ok := parsePostQuery(c)
	if !ok {
		return
	}

	page, err := src.GetFolderPosts(folderID, opts)
	if err != nil {
		serverError(c, "get_folder_posts", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) GetScriptFolderPosts(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}
	scriptFolderID, ok := paramID(c, "scriptFolderID")
	if !ok {
		return
	}

	opts, ok := parsePostQuery(c)
	if !ok {
		return
	}

	page, err := src.GetScriptFolderPosts(scriptFolderID, opts)
	if err != nil {
		serverError(c, "get_script_folder_posts", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) GetCategories(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}

	folderID, err := strconv.ParseInt(c.DefaultQuery("folder_id", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid folder_id parameter"})
		return
	}

	categories, err := src.GetCategories(folderID)
	if err != nil {
		serverError(c, "get_categories", err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *Handler) MarkFeedRead(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}
	feedID, ok := paramID(c, "feedID")
	if !ok {
		return
	}

	var req struct {
		MaxPostID int64 `json:"max_post_id"`
	}
	if !bindJSON(c, &req) {
		return
	}

	ids, err := src.MarkFeedRead(feedID, req.MaxPostID)
	if err != nil {
		serverError(c, "mark_feed_read", err)
		return
	}
	c.JSON(http.StatusOK, ids)
}

func (h *Handler) MarkFolderRead(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}
	folderID, ok := paramID(c, "folderID")
	if !ok {
		return
	}

	var req struct {
		MaxPostID int64 `json:"max_post_id"`
	}
	if !bindJSON(c, &req) {
		return
	}

	ids, err := src.MarkFolderRead(folderID, req.MaxPostID)
	if err != nil {
		serverError(c, "mark_folder_read", err)
		return
	}
	c.JSON(http.StatusOK, ids)
}

func (h *Handler) SetPostsReadStatus(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}

	var req struct {
		PostIDs []int64 `json:"post_ids"`
		Read    bool    `json:"read"`
	}
	if !bindJSON(c, &req) {
		return
	}

	if err := src.SetPostsReadStatus(req.PostIDs, req.Read); err != nil {
		serverError(c, "set_posts_read_status", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) SetPostsFlagStatus(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}

	var req struct {
		PostIDs []int64 `json:"post_ids"`
		Color   int     `json:"color"`
		Flagged bool    `json:"flagged"`
	}
	if !bindJSON(c, &req) {
		return
	}

	color := database.FlagColor(req.Color)
	if !color.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": database.ErrInvalidFlagColor.Error()})
		return
	}

	if err := src.SetPostsFlagStatus(req.PostIDs, color, req.Flagged); err != nil {
		serverError(c, "set_posts_flag_status", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) AssignPostsToScriptFolder(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}

	var req struct {
		PostIDs        []int64 `json:"post_ids"`
		ScriptFolderID int64   `json:"script_folder_id"`
		Assign         bool    `json:"assign"`
	}
	if !bindJSON(c, &req) {
		return
	}

	if err := src.AssignPostsToScriptFolder(req.PostIDs, req.ScriptFolderID, req.Assign); err != nil {
		serverError(c, "assign_posts_to_script_folder", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListScripts(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}

	scripts, err := src.GetScripts()
	if err != nil {
		serverError(c, "get_scripts", err)
		return
	}
	c.JSON(http.StatusOK, scripts)
}

func (h *Handler) ListScriptFolders(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}

	folders, err := src.GetScriptFolders()
	if err != nil {
		serverError(c, "get_script_folders", err)
		return
	}
	c.JSON(http.StatusOK, folders)
}

// RunScript executes an ad-hoc script body against one post, collecting
// print output into the response.
func (h *Handler) RunScript(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}

	var req struct {
		Body   string `json:"body"`
		PostID int64  `json:"post_id"`
	}
	if !bindJSON(c, &req) {
		return
	}

	output := []string{}
	err := src.RunScript(c.Request.Context(), req.Body, req.PostID, func(line string) {
		output = append(output, line)
	})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "output": output})
		return
	}
	c.JSON(http.StatusOK, gin.H{"output": output})
}

func (h *Handler) ImportOPML(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}

	var req struct {
		OPML     string `json:"opml"`
		FolderID int64  `json:"folder_id"`
	}
	if !bindJSON(c, &req) {
		return
	}

	folderIDs, err := src.ImportOPML(req.OPML, req.FolderID)
	if err != nil {
		serverError(c, "import_opml", err)
		return
	}
	h.invalidate()
	for _, folderID := range folderIDs {
		h.runner.QueueRefreshFolder(src.ID(), folderID, nil)
	}
	c.JSON(http.StatusOK, folderIDs)
}

func (h *Handler) ExportOPML(c *gin.Context) {
	src, ok := h.lookupSource(c)
	if !ok {
		return
	}

	opml, err := src.ExportOPML()
	if err != nil {
		serverError(c, "export_opml", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"opml": opml})
}

func parsePostQuery(c *gin.Context) (database.PostQueryOptions, bool) {
	var opts database.PostQueryOptions

	perPage, err := strconv.Atoi(c.DefaultQuery("per_page", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid per_page parameter"})
		return opts, false
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page parameter"})
		return opts, false
	}

	opts.PerPage = perPage
	opts.Page = page
	opts.UnreadOnly = c.Query("unread_only") == "true"
	opts.UnreadFirst = c.Query("unread_first") == "true"
	opts.Search = c.Query("search")

	if raw := c.Query("category_id"); raw != "" {
		categoryID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category_id parameter"})
			return opts, false
		}
		opts.CategoryID = categoryID
	}

	if name := c.Query("flag"); name != "" {
		color, err := database.FlagColorFromName(name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return opts, false
		}
		opts.FlagColor = color
	}

	return opts, true
}
