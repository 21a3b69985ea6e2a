package database

import (
	"fmt"
)

var _ LogRepository = (*logRepo)(nil)

type logRepo struct {
	db *DB
}

func NewLogRepository(db *DB) LogRepository {
	return &logRepo{db: db}
}

func (r *logRepo) Add(sourceID, feedID int64, level int, message string) error {
	_, err := r.db.Exec(
		"INSERT INTO logs (source_id, feed_id, level, message) VALUES (?, ?, ?, ?)",
		sourceID, feedID, level, message)
	if err != nil {
		return fmt.Errorf("failed to add log entry: %w", err)
	}
	return nil
}

func (r *logRepo) GetLogs(sourceID int64, perPage, page int) (int, []Log, error) {
	var total int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM logs WHERE source_id = ?", sourceID).Scan(&total)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to count logs: %w", err)
	}

	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page <= 0 {
		page = 1
	}

	rows, err := r.db.Query(`
		SELECT id, source_id, feed_id, level, message, created_at
		FROM logs
		WHERE source_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, sourceID, perPage, (page-1)*perPage)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []Log
	for rows.Next() {
		var l Log
		if err := rows.Scan(&l.ID, &l.SourceID, &l.FeedID, &l.Level, &l.Message, &l.CreatedAt); err != nil {
			return 0, nil, fmt.Errorf("failed to scan log row: %w", err)
		}
		logs = append(logs, l)
	}
	return total, logs, rows.Err()
}
