package database

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/text/cases"
)

// ErrInvalidScriptFolderID is returned when a post is assigned to a script
// folder that does not exist.
var ErrInvalidScriptFolderID = errors.New("invalid script folder id")

var _ PostRepository = (*postRepo)(nil)

type postRepo struct {
	db *DB
}

func NewPostRepository(db *DB) PostRepository {
	return &postRepo{db: db}
}

const postColumns = `p.id, p.feed_id, p.is_read, p.title, p.link, p.content,
	p.author, p.comments_url, p.guid, p.thumbnail, p.published_at,
	p.created_at, f.title`

func scanPost(row interface{ Scan(...any) error }) (*Post, error) {
	var p Post
	err := row.Scan(
		&p.ID, &p.FeedID, &p.IsRead, &p.Title, &p.Link, &p.Content, &p.Author,
		&p.CommentsURL, &p.GUID, &p.Thumbnail, &p.PublishedAt, &p.CreatedAt,
		&p.FeedTitle,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postRepo) GetPost(id int64) (*Post, error) {
	p, err := scanPost(r.db.QueryRow(
		"SELECT "+postColumns+" FROM posts p JOIN feeds f ON f.id = p.feed_id WHERE p.id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	if err := r.loadPostDetails([]*Post{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPosts returns the total number of posts matching the filters plus one
// page of fully-loaded posts.
func (r *postRepo) GetPosts(feedIDs []int64, opts PostQueryOptions) (int, []Post, error) {
	if len(feedIDs) == 0 {
		return 0, nil, nil
	}

	where := "p.feed_id IN (" + placeholders(len(feedIDs)) + ")"
	args := int64Args(feedIDs)
	return r.queryPosts(where, args, opts)
}

func (r *postRepo) GetScriptFolderPosts(scriptFolderID int64, opts PostQueryOptions) (int, []Post, error) {
	where := "p.id IN (SELECT post_id FROM scriptfolder_posts WHERE scriptfolder_id = ?)"
	return r.queryPosts(where, []any{scriptFolderID}, opts)
}

func (r *postRepo) queryPosts(where string, args []any, opts PostQueryOptions) (int, []Post, error) {
	if opts.UnreadOnly {
		where += " AND p.is_read = 0"
	}
	if opts.Search != "" {
		where += " AND (p.title LIKE ? OR p.content LIKE ?)"
		pattern := "%" + opts.Search + "%"
		args = append(args, pattern, pattern)
	}
	if opts.CategoryID != 0 {
		where += " AND EXISTS (SELECT 1 FROM post_categories pc WHERE pc.post_id = p.id AND pc.category_id = ?)"
		args = append(args, opts.CategoryID)
	}
	if opts.FlagColor != FlagGray {
		where += " AND EXISTS (SELECT 1 FROM flags fl WHERE fl.post_id = p.id AND fl.flag_id = ?)"
		args = append(args, int(opts.FlagColor))
	}

	var total int
	err := r.db.QueryRow("SELECT COUNT(*) FROM posts p WHERE "+where, args...).Scan(&total)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to count posts: %w", err)
	}

	order := "COALESCE(p.published_at, p.created_at) DESC, p.id DESC"
	if opts.UnreadFirst {
		order = "p.is_read ASC, " + order
	}

	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	page := opts.Page
	if page <= 0 {
		page = 1
	}

	query := "SELECT " + postColumns + " FROM posts p JOIN feeds f ON f.id = p.feed_id WHERE " +
		where + " ORDER BY " + order + " LIMIT ? OFFSET ?"
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}

	refs := make([]*Post, len(posts))
	for i := range posts {
		refs[i] = &posts[i]
	}
	if err := r.loadPostDetails(refs); err != nil {
		return 0, nil, err
	}
	return total, posts, nil
}

// loadPostDetails attaches flags, enclosures and categories to an already
// scanned page of posts with three bulk queries.
func (r *postRepo) loadPostDetails(posts []*Post) error {
	if len(posts) == 0 {
		return nil
	}

	byID := make(map[int64]*Post, len(posts))
	ids := make([]int64, 0, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}
	in := placeholders(len(ids))
	args := int64Args(ids)

	rows, err := r.db.Query(
		"SELECT post_id, flag_id FROM flags WHERE post_id IN ("+in+") ORDER BY flag_id", args...)
	if err != nil {
		return fmt.Errorf("failed to get post flags: %w", err)
	}
	for rows.Next() {
		var postID int64
		var flagID int
		if err := rows.Scan(&postID, &flagID); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan flag row: %w", err)
		}
		p := byID[postID]
		p.FlagColors = append(p.FlagColors, FlagColor(flagID))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.db.Query(
		"SELECT id, post_id, url, mime_type, size FROM post_enclosures WHERE post_id IN ("+in+") ORDER BY id", args...)
	if err != nil {
		return fmt.Errorf("failed to get post enclosures: %w", err)
	}
	for rows.Next() {
		var e Enclosure
		if err := rows.Scan(&e.ID, &e.PostID, &e.URL, &e.MimeType, &e.Size); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan enclosure row: %w", err)
		}
		p := byID[e.PostID]
		p.Enclosures = append(p.Enclosures, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.db.Query(`
		SELECT pc.post_id, c.id, c.feed_id, c.title
		FROM post_categories pc
		JOIN categories c ON c.id = pc.category_id
		WHERE pc.post_id IN (`+in+`)
		ORDER BY c.title`, args...)
	if err != nil {
		return fmt.Errorf("failed to get post categories: %w", err)
	}
	for rows.Next() {
		var postID int64
		var c Category
		if err := rows.Scan(&postID, &c.ID, &c.FeedID, &c.Title); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan category row: %w", err)
		}
		p := byID[postID]
		p.Categories = append(p.Categories, c)
	}
	rows.Close()
	return rows.Err()
}

// UpsertPost inserts or updates a post keyed by (feed_id, guid). Updating
// preserves is_read, flags and script folder membership; the enclosure set
// is replaced wholesale.
func (r *postRepo) UpsertPost(feedID int64, attrs PostAttributes) (*Post, UpsertStatus, error) {
	var existingID int64
	var existingContent string
	err := r.db.QueryRow(
		"SELECT id, content FROM posts WHERE feed_id = ? AND guid = ?",
		feedID, attrs.GUID).Scan(&existingID, &existingContent)

	switch {
	case err == sql.ErrNoRows:
		res, err := r.db.Exec(`
			INSERT INTO posts (feed_id, guid, title, link, content, author,
				comments_url, thumbnail, published_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, feedID, attrs.GUID, attrs.Title, attrs.Link, attrs.Content,
			attrs.Author, attrs.CommentsURL, attrs.Thumbnail, attrs.PublishedAt)
		if err != nil {
			return nil, UpsertUnchanged, fmt.Errorf("failed to insert post: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, UpsertUnchanged, fmt.Errorf("failed to get post id: %w", err)
		}
		if err := r.ReplaceEnclosures(id, attrs.Enclosures); err != nil {
			return nil, UpsertUnchanged, err
		}
		if err := r.attachCategories(feedID, id, attrs.Categories); err != nil {
			return nil, UpsertUnchanged, err
		}
		post, err := r.GetPost(id)
		if err != nil {
			return nil, UpsertUnchanged, err
		}
		return post, UpsertNew, nil

	case err != nil:
		return nil, UpsertUnchanged, fmt.Errorf("failed to look up post by guid: %w", err)
	}

	_, err = r.db.Exec(`
		UPDATE posts
		SET title = ?, link = ?, content = ?, author = ?, comments_url = ?,
		    thumbnail = ?, published_at = ?
		WHERE id = ?
	`, attrs.Title, attrs.Link, attrs.Content, attrs.Author, attrs.CommentsURL,
		attrs.Thumbnail, attrs.PublishedAt, existingID)
	if err != nil {
		return nil, UpsertUnchanged, fmt.Errorf("failed to update post: %w", err)
	}
	if err := r.ReplaceEnclosures(existingID, attrs.Enclosures); err != nil {
		return nil, UpsertUnchanged, err
	}
	if err := r.attachCategories(feedID, existingID, attrs.Categories); err != nil {
		return nil, UpsertUnchanged, err
	}

	post, err := r.GetPost(existingID)
	if err != nil {
		return nil, UpsertUnchanged, err
	}
	if existingContent != attrs.Content {
		return post, UpsertUpdated, nil
	}
	return post, UpsertUnchanged, nil
}

func (r *postRepo) attachCategories(feedID, postID int64, titles []string) error {
	for _, title := range titles {
		if title == "" {
			continue
		}
		var categoryID int64
		err := r.db.QueryRow(
			"SELECT id FROM categories WHERE feed_id = ? AND title = ?",
			feedID, title).Scan(&categoryID)
		if err == sql.ErrNoRows {
			res, err := r.db.Exec(
				"INSERT INTO categories (feed_id, title) VALUES (?, ?)", feedID, title)
			if err != nil {
				return fmt.Errorf("failed to create category: %w", err)
			}
			categoryID, err = res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get category id: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("failed to look up category: %w", err)
		}

		_, err = r.db.Exec(
			"INSERT OR IGNORE INTO post_categories (post_id, category_id) VALUES (?, ?)",
			postID, categoryID)
		if err != nil {
			return fmt.Errorf("failed to attach category: %w", err)
		}
	}
	return nil
}

func (r *postRepo) UpdatePostFields(id int64, title, link, content, author, commentsURL string) error {
	_, err := r.db.Exec(`
		UPDATE posts
		SET title = ?, link = ?, content = ?, author = ?, comments_url = ?
		WHERE id = ?
	`, title, link, content, author, commentsURL, id)
	if err != nil {
		return fmt.Errorf("failed to update post fields: %w", err)
	}
	return nil
}

func (r *postRepo) SetPostsReadStatus(postIDs []int64, read bool) error {
	if len(postIDs) == 0 {
		return nil
	}
	args := append([]any{read}, int64Args(postIDs)...)
	_, err := r.db.Exec(
		"UPDATE posts SET is_read = ? WHERE id IN ("+placeholders(len(postIDs))+")", args...)
	if err != nil {
		return fmt.Errorf("failed to set read status: %w", err)
	}
	return nil
}

// MarkFeedsRead marks unread posts with id <= maxPostID read across the
// given feeds and returns the feed IDs that actually changed. The bound
// keeps posts arriving mid-operation unread.
func (r *postRepo) MarkFeedsRead(feedIDs []int64, maxPostID int64) ([]int64, error) {
	if len(feedIDs) == 0 {
		return nil, nil
	}
	in := placeholders(len(feedIDs))
	args := append(int64Args(feedIDs), maxPostID)

	rows, err := r.db.Query(
		"SELECT DISTINCT feed_id FROM posts WHERE feed_id IN ("+in+") AND is_read = 0 AND id <= ?",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find unread feeds: %w", err)
	}
	defer rows.Close()

	var affected []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan feed id: %w", err)
		}
		affected = append(affected, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	_, err = r.db.Exec(
		"UPDATE posts SET is_read = 1 WHERE feed_id IN ("+in+") AND is_read = 0 AND id <= ?",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to mark feeds read: %w", err)
	}
	return affected, nil
}

// SetFlag applies a flag color. Unflag-before-flag keeps the operation
// idempotent; FlagGray is the "no flag" sentinel and is never stored.
func (r *postRepo) SetFlag(postID int64, color FlagColor) error {
	if !color.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidFlagColor, int(color))
	}
	if color == FlagGray {
		return nil
	}
	if err := r.ClearFlag(postID, color); err != nil {
		return err
	}
	_, err := r.db.Exec(
		"INSERT INTO flags (post_id, flag_id) VALUES (?, ?)", postID, int(color))
	if err != nil {
		return fmt.Errorf("failed to set flag: %w", err)
	}
	return nil
}

func (r *postRepo) ClearFlag(postID int64, color FlagColor) error {
	if !color.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidFlagColor, int(color))
	}
	if color == FlagGray {
		return nil
	}
	_, err := r.db.Exec(
		"DELETE FROM flags WHERE post_id = ? AND flag_id = ?", postID, int(color))
	if err != nil {
		return fmt.Errorf("failed to clear flag: %w", err)
	}
	return nil
}

func (r *postRepo) GetFlags(postID int64) ([]FlagColor, error) {
	rows, err := r.db.Query(
		"SELECT flag_id FROM flags WHERE post_id = ? ORDER BY flag_id", postID)
	if err != nil {
		return nil, fmt.Errorf("failed to get flags: %w", err)
	}
	defer rows.Close()

	var colors []FlagColor
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan flag: %w", err)
		}
		colors = append(colors, FlagColor(id))
	}
	return colors, rows.Err()
}

// AssignToScriptFolder is idempotent: any existing membership row is removed
// before the insert.
func (r *postRepo) AssignToScriptFolder(postID, scriptFolderID int64) error {
	var exists int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM scriptfolders WHERE id = ?", scriptFolderID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check script folder: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %d", ErrInvalidScriptFolderID, scriptFolderID)
	}

	if err := r.UnassignFromScriptFolder(postID, scriptFolderID); err != nil {
		return err
	}
	_, err = r.db.Exec(
		"INSERT INTO scriptfolder_posts (scriptfolder_id, post_id) VALUES (?, ?)",
		scriptFolderID, postID)
	if err != nil {
		return fmt.Errorf("failed to assign post to script folder: %w", err)
	}
	return nil
}

func (r *postRepo) UnassignFromScriptFolder(postID, scriptFolderID int64) error {
	_, err := r.db.Exec(
		"DELETE FROM scriptfolder_posts WHERE scriptfolder_id = ? AND post_id = ?",
		scriptFolderID, postID)
	if err != nil {
		return fmt.Errorf("failed to unassign post from script folder: %w", err)
	}
	return nil
}

func (r *postRepo) ReplaceEnclosures(postID int64, enclosures []EnclosureAttributes) error {
	if _, err := r.db.Exec("DELETE FROM post_enclosures WHERE post_id = ?", postID); err != nil {
		return fmt.Errorf("failed to clear enclosures: %w", err)
	}
	for _, enc := range enclosures {
		if err := r.AddEnclosure(postID, enc); err != nil {
			return err
		}
	}
	return nil
}

func (r *postRepo) AddEnclosure(postID int64, enc EnclosureAttributes) error {
	_, err := r.db.Exec(
		"INSERT INTO post_enclosures (post_id, url, mime_type, size) VALUES (?, ?, ?, ?)",
		postID, enc.URL, enc.MimeType, enc.Size)
	if err != nil {
		return fmt.Errorf("failed to add enclosure: %w", err)
	}
	return nil
}

func (r *postRepo) UpdateEnclosure(id int64, enc EnclosureAttributes) error {
	_, err := r.db.Exec(
		"UPDATE post_enclosures SET url = ?, mime_type = ?, size = ? WHERE id = ?",
		enc.URL, enc.MimeType, enc.Size, id)
	if err != nil {
		return fmt.Errorf("failed to update enclosure: %w", err)
	}
	return nil
}

func (r *postRepo) RemoveEnclosure(id int64) error {
	_, err := r.db.Exec("DELETE FROM post_enclosures WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to remove enclosure: %w", err)
	}
	return nil
}

// GetDistinctCategories returns categories across the given feeds,
// deduplicated case-insensitively. The first spelling encountered wins.
func (r *postRepo) GetDistinctCategories(feedIDs []int64) ([]Category, error) {
	if len(feedIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(
		"SELECT id, feed_id, title FROM categories WHERE feed_id IN ("+placeholders(len(feedIDs))+") ORDER BY title, id",
		int64Args(feedIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	defer rows.Close()

	fold := cases.Fold()
	seen := make(map[string]bool)
	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.FeedID, &c.Title); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		key := fold.String(c.Title)
		if seen[key] {
			continue
		}
		seen[key] = true
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(categories, func(i, j int) bool {
		return fold.String(categories[i].Title) < fold.String(categories[j].Title)
	})
	return categories, nil
}
