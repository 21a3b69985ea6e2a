package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/feedloom/feedloom/app/database"
	"github.com/feedloom/feedloom/app/feed"
	"github.com/feedloom/feedloom/app/script"
)

// RefreshFeed runs one full fetch/parse/merge cycle for a feed. A failed
// refresh records the error on the feed and in the log and never touches
// already-stored posts.
func (s *Local) RefreshFeed(ctx context.Context, feedID int64) (*RefreshOutcome, error) {
	feedRec, err := s.getOwnFeed(feedID)
	if err != nil {
		return nil, err
	}

	result, err := s.deps.Fetcher.Run(ctx, feedRec.URL, feedRec.ETag, feedRec.LastModified)
	if err != nil {
		return nil, s.recordRefreshError(feedRec, err)
	}

	now := time.Now().UTC()
	nextFetch := now.Add(s.refreshInterval(feedRec))

	if result.NotModified {
		// Nothing new; a 304 still clears any prior error.
		err = s.deps.Feeds.UpdateFeedFetchState(feedRec.ID, result.ETag, result.LastModified, now, nextFetch)
		if err != nil {
			return nil, err
		}
		updated, err := s.deps.Feeds.GetFeed(feedRec.ID)
		if err != nil {
			return nil, err
		}
		return &RefreshOutcome{Feed: updated, NotModified: true}, nil
	}

	doc, err := s.deps.Parser.Run(result.Data)
	if err != nil {
		return nil, s.recordRefreshError(feedRec, err)
	}

	// Feed-level metadata always tracks the freshest fetch.
	meta := database.FeedMetadata{
		GUID:        doc.Metadata.GUID,
		Title:       doc.Metadata.Title,
		Subtitle:    doc.Metadata.Subtitle,
		Link:        doc.Metadata.Link,
		Description: doc.Metadata.Description,
		Language:    doc.Metadata.Language,
		Copyright:   doc.Metadata.Copyright,
		IconURL:     doc.Metadata.IconURL,
	}
	if meta.IconURL == "" {
		meta.IconURL = feedRec.IconURL
	}
	if err := s.deps.Feeds.UpdateFeedMetadata(feedRec.ID, meta); err != nil {
		return nil, err
	}

	s.refreshIcon(ctx, feedRec, doc.Metadata)

	scripts, err := s.deps.Scripts.GetScripts(s.record.ID)
	if err != nil {
		return nil, err
	}

	outcome := &RefreshOutcome{}
	for _, item := range doc.Items {
		attrs := database.PostAttributes{
			GUID:        item.GUID,
			Title:       item.Title,
			Link:        item.Link,
			Content:     item.Content,
			Author:      item.Author,
			CommentsURL: item.CommentsURL,
			Thumbnail:   item.Thumbnail,
			PublishedAt: item.PublishedAt,
			Categories:  item.Categories,
		}
		for _, enc := range item.Enclosures {
			attrs.Enclosures = append(attrs.Enclosures, database.EnclosureAttributes{
				URL: enc.URL, MimeType: enc.MimeType, Size: enc.Size,
			})
		}

		post, status, err := s.deps.Posts.UpsertPost(feedRec.ID, attrs)
		if err != nil {
			return nil, s.recordRefreshError(feedRec, err)
		}

		switch status {
		case database.UpsertNew:
			outcome.NewPosts++
			s.runEventScripts(ctx, scripts, database.ScriptEventNewPost, feedRec, post)
		case database.UpsertUpdated:
			outcome.UpdatedPosts++
			s.runEventScripts(ctx, scripts, database.ScriptEventUpdatePost, feedRec, post)
		}
	}

	err = s.deps.Feeds.UpdateFeedFetchState(feedRec.ID, result.ETag, result.LastModified, now, nextFetch)
	if err != nil {
		return nil, err
	}

	outcome.Feed, err = s.deps.Feeds.GetFeed(feedRec.ID)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *Local) FeedsDueForRefresh(now time.Time) ([]database.Feed, error) {
	return s.deps.Feeds.GetFeedsDueForRefresh(s.record.ID, now)
}

func (s *Local) refreshInterval(feedRec *database.Feed) time.Duration {
	if feedRec.RefreshInterval > 0 {
		return time.Duration(feedRec.RefreshInterval) * time.Second
	}
	return s.deps.DefaultRefreshInterval
}

// recordRefreshError stores the failure on the feed and appends a log
// entry. Stored posts stay untouched.
func (s *Local) recordRefreshError(feedRec *database.Feed, cause error) error {
	message := cause.Error()
	if err := s.deps.Feeds.SetFeedRefreshError(feedRec.ID, message); err != nil {
		slog.Error("Failed to record refresh error", "feed_id", feedRec.ID, "error", err)
	}
	if err := s.deps.Logs.Add(s.record.ID, feedRec.ID, database.LogLevelError, message); err != nil {
		slog.Error("Failed to append refresh log entry", "feed_id", feedRec.ID, "error", err)
	}
	return fmt.Errorf("refresh of %s failed: %w", feedRec.URL, cause)
}

// refreshIcon is best effort: icon trouble never fails a refresh.
func (s *Local) refreshIcon(ctx context.Context, feedRec *database.Feed, meta feed.Metadata) {
	iconURL := meta.IconURL
	if iconURL == "" && meta.Link != "" {
		discovered, err := feed.FetchIconURL(ctx, s.deps.HTTPClient, s.deps.UserAgent, meta.Link)
		if err != nil {
			slog.Debug("Icon discovery failed", "feed_id", feedRec.ID, "error", err)
			return
		}
		iconURL = discovered
	}
	if iconURL == "" || iconURL == feedRec.IconURL && len(feedRec.IconData) > 0 {
		return
	}

	data, err := s.fetchIconData(ctx, iconURL)
	if err != nil {
		slog.Debug("Icon download failed", "feed_id", feedRec.ID, "url", iconURL, "error", err)
		return
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	if hash == feedRec.IconHash {
		return
	}
	if err := s.deps.Feeds.UpdateFeedIcon(feedRec.ID, iconURL, hash, data); err != nil {
		slog.Error("Failed to store feed icon", "feed_id", feedRec.ID, "error", err)
	}
}

func (s *Local) fetchIconData(ctx context.Context, iconURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iconURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.deps.UserAgent)

	resp, err := s.deps.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

// runEventScripts applies the enable/event/feed filters outside the sandbox
// and runs each matching script in its own interpreter. A script failure is
// logged and recorded but never aborts the refresh.
func (s *Local) runEventScripts(ctx context.Context, scripts []database.Script, event database.ScriptEvents, feedRec *database.Feed, post *database.Post) {
	for _, sc := range scripts {
		if !script.ShouldRun(sc, event, feedRec.ID) {
			continue
		}
		rc := &script.RunContext{
			Source: &s.record,
			Feed:   feedRec,
			Post:   post,
			Posts:  s.deps.Posts,
		}
		if err := script.RunPostScript(ctx, sc.Script, rc, nil); err != nil {
			slog.Warn("Script failed", "script_id", sc.ID, "post_id", post.ID, "error", err)
			if logErr := s.deps.Logs.Add(s.record.ID, feedRec.ID, database.LogLevelWarn,
				fmt.Sprintf("script %q: %s", sc.Title, err.Error())); logErr != nil {
				slog.Error("Failed to log script failure", "error", logErr)
			}
		}
	}
}

// RunScript executes an ad-hoc script body against one post, capturing
// print output for the caller. Used by the interactive script test run.
func (s *Local) RunScript(ctx context.Context, scriptBody string, postID int64, printFn func(string)) error {
	post, err := s.deps.Posts.GetPost(postID)
	if err != nil {
		return err
	}
	if post == nil {
		return fmt.Errorf("post %d not found", postID)
	}
	feedRec, err := s.getOwnFeed(post.FeedID)
	if err != nil {
		return err
	}
	rc := &script.RunContext{
		Source: &s.record,
		Feed:   feedRec,
		Post:   post,
		Posts:  s.deps.Posts,
	}
	return script.RunPostScript(ctx, scriptBody, rc, printFn)
}
