package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

var _ ScriptRepository = (*scriptRepo)(nil)

type scriptRepo struct {
	db *DB
}

func NewScriptRepository(db *DB) ScriptRepository {
	return &scriptRepo{db: db}
}

const scriptColumns = "id, source_id, title, type, is_enabled, run_on_events, run_on_feed_ids, script"

func scanScript(row interface{ Scan(...any) error }) (*Script, error) {
	var s Script
	var feedIDs string
	err := row.Scan(&s.ID, &s.SourceID, &s.Title, &s.Type, &s.IsEnabled,
		&s.RunOnEvents, &feedIDs, &s.Script)
	if err != nil {
		return nil, err
	}
	s.RunOnFeedIDs, err = parseFeedIDList(feedIDs)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *scriptRepo) GetScript(id int64) (*Script, error) {
	s, err := scanScript(r.db.QueryRow(
		"SELECT "+scriptColumns+" FROM scripts WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get script: %w", err)
	}
	return s, nil
}

func (r *scriptRepo) GetScripts(sourceID int64) ([]Script, error) {
	rows, err := r.db.Query(
		"SELECT "+scriptColumns+" FROM scripts WHERE source_id = ? ORDER BY id", sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get scripts: %w", err)
	}
	defer rows.Close()

	var scripts []Script
	for rows.Next() {
		s, err := scanScript(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan script row: %w", err)
		}
		scripts = append(scripts, *s)
	}
	return scripts, rows.Err()
}

func (r *scriptRepo) CreateScript(sourceID int64, title string, events ScriptEvents, feedIDs []int64, body string) (*Script, error) {
	res, err := r.db.Exec(`
		INSERT INTO scripts (source_id, title, type, is_enabled, run_on_events, run_on_feed_ids, script)
		VALUES (?, ?, 'lua', 1, ?, ?, ?)
	`, sourceID, title, int(events), formatFeedIDList(feedIDs), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create script: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get script id: %w", err)
	}
	return r.GetScript(id)
}

func (r *scriptRepo) UpdateScript(id int64, title string, isEnabled bool, events ScriptEvents, feedIDs []int64, body string) error {
	_, err := r.db.Exec(`
		UPDATE scripts
		SET title = ?, is_enabled = ?, run_on_events = ?, run_on_feed_ids = ?, script = ?
		WHERE id = ?
	`, title, isEnabled, int(events), formatFeedIDList(feedIDs), body, id)
	if err != nil {
		return fmt.Errorf("failed to update script: %w", err)
	}
	return nil
}

func (r *scriptRepo) DeleteScript(id int64) error {
	_, err := r.db.Exec("DELETE FROM scripts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete script: %w", err)
	}
	return nil
}

// run_on_feed_ids is a comma-joined list; empty means "all feeds".
func parseFeedIDList(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed feed id list %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func formatFeedIDList(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
