package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "api:"

// Cache is a Redis-backed response cache for hot GET endpoints. Entries
// expire on their own; mutations flush the whole namespace, which is cheap
// at the key counts involved.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache connects to Redis at addr, failing fast when it is unreachable.
func NewCache(addr string, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{client: client, ttl: ttl}, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// Middleware serves cached JSON for repeated GETs and records fresh 200
// responses. Cache failures degrade to pass-through.
func (c *Cache) Middleware(fn gin.HandlerFunc) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		key := cacheKey(ctx.Request.URL.RequestURI())

		data, err := c.client.Get(ctx.Request.Context(), key).Bytes()
		if err == nil {
			ctx.Data(http.StatusOK, "application/json; charset=utf-8", data)
			ctx.Abort()
			return
		}
		if err != redis.Nil {
			slog.Warn("Cache read failed", "key", key, "error", err)
		}

		recorder := &responseRecorder{ResponseWriter: ctx.Writer}
		ctx.Writer = recorder

		fn(ctx)

		if recorder.Status() != http.StatusOK || recorder.body.Len() == 0 {
			return
		}
		if err := c.client.Set(ctx.Request.Context(), key, recorder.body.Bytes(), c.ttl).Err(); err != nil {
			slog.Warn("Cache write failed", "key", key, "error", err)
		}
	}
}

// Flush drops every cached response.
func (c *Cache) Flush() {
	ctx := context.Background()
	iter := c.client.Scan(ctx, 0, cacheKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			slog.Warn("Cache flush failed", "key", iter.Val(), "error", err)
		}
	}
	if err := iter.Err(); err != nil {
		slog.Warn("Cache scan failed", "error", err)
	}
}

func cacheKey(uri string) string {
	hash := sha256.Sum256([]byte(uri))
	return fmt.Sprintf("%s%x", cacheKeyPrefix, hash[:8])
}

// responseRecorder tees the response body so it can be cached after the
// handler runs.
type responseRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	r.body.Write(data)
	return r.ResponseWriter.Write(data)
}

func (r *responseRecorder) WriteString(s string) (int, error) {
	r.body.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}
