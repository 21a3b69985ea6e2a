package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ FeedRepository = (*feedRepo)(nil)

type feedRepo struct {
	db *DB
}

func NewFeedRepository(db *DB) FeedRepository {
	return &feedRepo{db: db}
}

const feedColumns = `id, source_id, folder_id, url, guid, title, subtitle, link,
	description, language, copyright, icon_url, icon_hash, icon_data,
	sort_order, refresh_interval, last_checked, next_fetch_at,
	last_refresh_error, etag, last_modified`

func scanFeed(row interface{ Scan(...any) error }) (*Feed, error) {
	var f Feed
	err := row.Scan(
		&f.ID, &f.SourceID, &f.FolderID, &f.URL, &f.GUID, &f.Title, &f.Subtitle,
		&f.Link, &f.Description, &f.Language, &f.Copyright, &f.IconURL,
		&f.IconHash, &f.IconData, &f.SortOrder, &f.RefreshInterval,
		&f.LastChecked, &f.NextFetchAt, &f.LastRefreshError, &f.ETag,
		&f.LastModified,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *feedRepo) GetFeed(id int64) (*Feed, error) {
	f, err := scanFeed(r.db.QueryRow(
		"SELECT "+feedColumns+" FROM feeds WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}
	return f, nil
}

func (r *feedRepo) GetFeeds(sourceID int64) ([]Feed, error) {
	return r.queryFeeds(
		"SELECT "+feedColumns+" FROM feeds WHERE source_id = ? ORDER BY folder_id, sort_order, id",
		sourceID)
}

func (r *feedRepo) GetFeedsInFolder(sourceID, folderID int64) ([]Feed, error) {
	return r.queryFeeds(
		"SELECT "+feedColumns+" FROM feeds WHERE source_id = ? AND folder_id = ? ORDER BY sort_order, id",
		sourceID, folderID)
}

func (r *feedRepo) GetFeedsDueForRefresh(sourceID int64, now time.Time) ([]Feed, error) {
	return r.queryFeeds(
		"SELECT "+feedColumns+" FROM feeds WHERE source_id = ? AND (next_fetch_at IS NULL OR next_fetch_at <= ?) ORDER BY id",
		sourceID, now)
}

func (r *feedRepo) queryFeeds(query string, args ...any) ([]Feed, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, *f)
	}
	return feeds, rows.Err()
}

func (r *feedRepo) GetFeedByURL(sourceID, folderID int64, url string) (*Feed, error) {
	f, err := scanFeed(r.db.QueryRow(
		"SELECT "+feedColumns+" FROM feeds WHERE source_id = ? AND folder_id = ? AND url = ?",
		sourceID, folderID, url))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed by URL: %w", err)
	}
	return f, nil
}

func (r *feedRepo) CreateFeed(sourceID, folderID int64, url, title string) (*Feed, error) {
	var maxOrder sql.NullInt64
	err := r.db.QueryRow(
		"SELECT MAX(sort_order) FROM feeds WHERE source_id = ? AND folder_id = ?",
		sourceID, folderID).Scan(&maxOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to get feed sort order: %w", err)
	}

	res, err := r.db.Exec(`
		INSERT INTO feeds (source_id, folder_id, url, title, sort_order)
		VALUES (?, ?, ?, ?, ?)
	`, sourceID, folderID, url, title, int(maxOrder.Int64)+SortOrderStep)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get feed id: %w", err)
	}
	return r.GetFeed(id)
}

func (r *feedRepo) DeleteFeed(id int64) error {
	_, err := r.db.Exec("DELETE FROM feeds WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete feed: %w", err)
	}
	return nil
}

// DeleteFeedsInFolders deletes every feed parented under the given folders
// and returns their IDs. Posts cascade through the feed foreign key.
func (r *feedRepo) DeleteFeedsInFolders(sourceID int64, folderIDs []int64) ([]int64, error) {
	if len(folderIDs) == 0 {
		return nil, nil
	}

	args := append([]any{sourceID}, int64Args(folderIDs)...)
	rows, err := r.db.Query(
		"SELECT id FROM feeds WHERE source_id = ? AND folder_id IN ("+placeholders(len(folderIDs))+")",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds in folders: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan feed id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	_, err = r.db.Exec(
		"DELETE FROM feeds WHERE id IN ("+placeholders(len(ids))+")", int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to delete feeds: %w", err)
	}
	return ids, nil
}

func (r *feedRepo) UpdateFeedMetadata(id int64, meta FeedMetadata) error {
	_, err := r.db.Exec(`
		UPDATE feeds
		SET guid = ?, title = ?, subtitle = ?, link = ?, description = ?,
		    language = ?, copyright = ?, icon_url = ?
		WHERE id = ?
	`, meta.GUID, meta.Title, meta.Subtitle, meta.Link, meta.Description,
		meta.Language, meta.Copyright, meta.IconURL, id)
	if err != nil {
		return fmt.Errorf("failed to update feed metadata: %w", err)
	}
	return nil
}

func (r *feedRepo) UpdateFeedIcon(id int64, iconURL, iconHash string, iconData []byte) error {
	_, err := r.db.Exec(
		"UPDATE feeds SET icon_url = ?, icon_hash = ?, icon_data = ? WHERE id = ?",
		iconURL, iconHash, iconData, id)
	if err != nil {
		return fmt.Errorf("failed to update feed icon: %w", err)
	}
	return nil
}

// UpdateFeedFetchState records a completed fetch cycle and clears any prior
// refresh error.
func (r *feedRepo) UpdateFeedFetchState(id int64, etag, lastModified string, lastChecked, nextFetch time.Time) error {
	_, err := r.db.Exec(`
		UPDATE feeds
		SET etag = ?, last_modified = ?, last_checked = ?, next_fetch_at = ?,
		    last_refresh_error = ''
		WHERE id = ?
	`, etag, lastModified, lastChecked, nextFetch, id)
	if err != nil {
		return fmt.Errorf("failed to update feed fetch state: %w", err)
	}
	return nil
}

func (r *feedRepo) SetFeedRefreshError(id int64, message string) error {
	_, err := r.db.Exec(
		"UPDATE feeds SET last_refresh_error = ?, last_checked = ? WHERE id = ?",
		message, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set feed refresh error: %w", err)
	}
	return nil
}

func (r *feedRepo) SetFeedRefreshInterval(id int64, seconds int) error {
	_, err := r.db.Exec("UPDATE feeds SET refresh_interval = ? WHERE id = ?", seconds, id)
	if err != nil {
		return fmt.Errorf("failed to set feed refresh interval: %w", err)
	}
	return nil
}

func (r *feedRepo) SetFeedFolder(id, folderID int64, sortOrder int) error {
	_, err := r.db.Exec(
		"UPDATE feeds SET folder_id = ?, sort_order = ? WHERE id = ?",
		folderID, sortOrder, id)
	if err != nil {
		return fmt.Errorf("failed to move feed: %w", err)
	}
	return nil
}

func (r *feedRepo) SetFeedSortOrder(id int64, sortOrder int) error {
	_, err := r.db.Exec("UPDATE feeds SET sort_order = ? WHERE id = ?", sortOrder, id)
	if err != nil {
		return fmt.Errorf("failed to set feed sort order: %w", err)
	}
	return nil
}

// ResequenceFeeds rewrites sibling sort orders with the standard step and
// returns only the entries whose order actually changed.
func (r *feedRepo) ResequenceFeeds(sourceID, folderID int64) (map[int64]int, error) {
	siblings, err := r.GetFeedsInFolder(sourceID, folderID)
	if err != nil {
		return nil, err
	}

	remap := make(map[int64]int)
	for i, f := range siblings {
		newOrder := (i + 1) * SortOrderStep
		if f.SortOrder == newOrder {
			continue
		}
		if err := r.SetFeedSortOrder(f.ID, newOrder); err != nil {
			return nil, err
		}
		remap[f.ID] = newOrder
	}
	return remap, nil
}

func (r *feedRepo) GetUnreadCounts(sourceID int64) (map[int64]int, error) {
	rows, err := r.db.Query(`
		SELECT f.id, COUNT(p.id)
		FROM feeds f
		LEFT JOIN posts p ON p.feed_id = f.id AND p.is_read = 0
		WHERE f.source_id = ?
		GROUP BY f.id
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get unread counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var feedID int64
		var count int
		if err := rows.Scan(&feedID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan unread count: %w", err)
		}
		counts[feedID] = count
	}
	return counts, rows.Err()
}
