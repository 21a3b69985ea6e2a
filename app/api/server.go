// Package api exposes every source operation over HTTP+JSON. The wire
// shapes are the app/source request and result types, so a remote source on
// another instance consumes the responses directly.
package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer builds the gin engine with all routes configured. When
// apiAccessKey is empty the API runs unauthenticated; otherwise every /api
// route requires the key.
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-API-Key, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	r.GET("/health", handler.GetHealth)

	api := r.Group("/api")
	if apiAccessKey != "" {
		api.Use(authMiddleware(apiAccessKey))
	}

	api.GET("/version", handler.GetVersion)

	api.GET("/sources", handler.ListSources)
	api.POST("/sources", handler.CreateSource)
	api.GET("/sources/:id", handler.GetSource)
	api.DELETE("/sources/:id", handler.RemoveSource)
	api.GET("/sources/:id/statistics", handler.GetStatistics)
	api.GET("/sources/:id/unread-counts", handler.GetUnreadCounts)
	api.GET("/sources/:id/logs", handler.GetLogs)

	api.GET("/sources/:id/folders", cached(handler, handler.ListFolders))
	api.POST("/sources/:id/folders", handler.AddFolder)
	api.DELETE("/sources/:id/folders/:folderID", handler.RemoveFolder)
	api.POST("/sources/:id/folders/:folderID/move", handler.MoveFolder)
	api.POST("/sources/:id/folders/:folderID/sort", handler.SortFolder)
	api.GET("/sources/:id/folders/:folderID/subtree", handler.FolderSubtree)
	api.GET("/sources/:id/folders/:folderID/feed-ids", handler.FolderFeedIDs)
	api.GET("/sources/:id/folders/:folderID/posts", handler.GetFolderPosts)
	api.POST("/sources/:id/folders/:folderID/read", handler.MarkFolderRead)

	api.GET("/sources/:id/feeds", cached(handler, handler.ListFeeds))
	api.POST("/sources/:id/feeds", handler.AddFeed)
	api.GET("/sources/:id/feeds/due", handler.FeedsDue)
	api.DELETE("/sources/:id/feeds/:feedID", handler.RemoveFeed)
	api.POST("/sources/:id/feeds/:feedID/move", handler.MoveFeed)
	api.POST("/sources/:id/feeds/:feedID/refresh", handler.RefreshFeed)
	api.GET("/sources/:id/feeds/:feedID/posts", handler.GetFeedPosts)
	api.POST("/sources/:id/feeds/:feedID/read", handler.MarkFeedRead)

	api.GET("/sources/:id/posts/:postID", handler.GetPost)
	api.POST("/sources/:id/posts/read", handler.SetPostsReadStatus)
	api.POST("/sources/:id/posts/flag", handler.SetPostsFlagStatus)
	api.POST("/sources/:id/posts/scriptfolder", handler.AssignPostsToScriptFolder)
	api.GET("/sources/:id/categories", handler.GetCategories)

	api.GET("/sources/:id/scripts", handler.ListScripts)
	api.POST("/sources/:id/scripts/run", handler.RunScript)
	api.GET("/sources/:id/scriptfolders", handler.ListScriptFolders)
	api.GET("/sources/:id/scriptfolders/:scriptFolderID/posts", handler.GetScriptFolderPosts)

	api.POST("/sources/:id/opml/import", handler.ImportOPML)
	api.GET("/sources/:id/opml/export", handler.ExportOPML)

	api.POST("/sources/:id/refresh", handler.RefreshSource)

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}

// cached wraps hot list endpoints in the Redis response cache when one is
// configured.
func cached(handler *Handler, fn gin.HandlerFunc) gin.HandlerFunc {
	if handler.cache == nil {
		return fn
	}
	return handler.cache.Middleware(fn)
}

func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
