package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ SourceRepository = (*sourceRepo)(nil)

type sourceRepo struct {
	db *DB
}

func NewSourceRepository(db *DB) SourceRepository {
	return &sourceRepo{db: db}
}

const sourceColumns = "id, title, type, sort_order, config_data, last_error"

func scanSource(row interface{ Scan(...any) error }) (*Source, error) {
	var s Source
	err := row.Scan(&s.ID, &s.Title, &s.Type, &s.SortOrder, &s.ConfigData, &s.LastError)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sourceRepo) GetSources(typeFilter string) ([]Source, error) {
	query := "SELECT " + sourceColumns + " FROM sources"
	var args []any
	if typeFilter != "" {
		query += " WHERE type = ?"
		args = append(args, typeFilter)
	}
	query += " ORDER BY sort_order, id"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, *s)
	}
	return sources, rows.Err()
}

func (r *sourceRepo) GetSource(id int64) (*Source, error) {
	s, err := scanSource(r.db.QueryRow(
		"SELECT "+sourceColumns+" FROM sources WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return s, nil
}

func (r *sourceRepo) CreateSource(title, sourceType, configData string) (*Source, error) {
	var maxOrder sql.NullInt64
	if err := r.db.QueryRow("SELECT MAX(sort_order) FROM sources").Scan(&maxOrder); err != nil {
		return nil, fmt.Errorf("failed to get source sort order: %w", err)
	}

	sortOrder := int(maxOrder.Int64) + SortOrderStep
	res, err := r.db.Exec(`
		INSERT INTO sources (title, type, sort_order, config_data)
		VALUES (?, ?, ?, ?)
	`, title, sourceType, sortOrder, configData)
	if err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get source id: %w", err)
	}
	return r.GetSource(id)
}

func (r *sourceRepo) UpdateSourceTitle(id int64, title string) error {
	_, err := r.db.Exec("UPDATE sources SET title = ? WHERE id = ?", title, id)
	if err != nil {
		return fmt.Errorf("failed to update source title: %w", err)
	}
	return nil
}

func (r *sourceRepo) UpdateSourceError(id int64, message string) error {
	_, err := r.db.Exec("UPDATE sources SET last_error = ? WHERE id = ?", message, id)
	if err != nil {
		return fmt.Errorf("failed to update source error: %w", err)
	}
	return nil
}

func (r *sourceRepo) DeleteSource(id int64) error {
	_, err := r.db.Exec("DELETE FROM sources WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	return nil
}

func (r *sourceRepo) GetStatistics(sourceID int64) (*SourceStatistics, error) {
	var stats SourceStatistics
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM feeds WHERE source_id = ?", sourceID).Scan(&stats.FeedCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count feeds: %w", err)
	}

	err = r.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN p.is_read = 0 THEN 1 ELSE 0 END), 0)
		FROM posts p
		JOIN feeds f ON f.id = p.feed_id
		WHERE f.source_id = ?
	`, sourceID).Scan(&stats.PostCount, &stats.UnreadCount)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate post statistics: %w", err)
	}

	// MIN/MAX strip the column's time affinity under sqlite, so bound posts
	// are fetched with plain column selects.
	for _, bound := range []struct {
		order string
		dest  **time.Time
	}{
		{"ASC", &stats.OldestPost},
		{"DESC", &stats.NewestPost},
	} {
		var ts time.Time
		err = r.db.QueryRow(`
			SELECT p.published_at
			FROM posts p
			JOIN feeds f ON f.id = p.feed_id
			WHERE f.source_id = ? AND p.published_at IS NOT NULL
			ORDER BY p.published_at `+bound.order+`
			LIMIT 1
		`, sourceID).Scan(&ts)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get post time bound: %w", err)
		}
		t := ts
		*bound.dest = &t
	}

	return &stats, nil
}
