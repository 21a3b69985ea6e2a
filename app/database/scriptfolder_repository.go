package database

import (
	"database/sql"
	"fmt"
)

var _ ScriptFolderRepository = (*scriptFolderRepo)(nil)

type scriptFolderRepo struct {
	db *DB
}

func NewScriptFolderRepository(db *DB) ScriptFolderRepository {
	return &scriptFolderRepo{db: db}
}

const scriptFolderColumns = "id, source_id, title, show_total, show_unread"

func scanScriptFolder(row interface{ Scan(...any) error }) (*ScriptFolder, error) {
	var sf ScriptFolder
	err := row.Scan(&sf.ID, &sf.SourceID, &sf.Title, &sf.ShowTotal, &sf.ShowUnread)
	if err != nil {
		return nil, err
	}
	return &sf, nil
}

func (r *scriptFolderRepo) GetScriptFolder(id int64) (*ScriptFolder, error) {
	sf, err := scanScriptFolder(r.db.QueryRow(
		"SELECT "+scriptFolderColumns+" FROM scriptfolders WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get script folder: %w", err)
	}
	return sf, nil
}

func (r *scriptFolderRepo) GetScriptFolders(sourceID int64) ([]ScriptFolder, error) {
	rows, err := r.db.Query(
		"SELECT "+scriptFolderColumns+" FROM scriptfolders WHERE source_id = ? ORDER BY title, id",
		sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get script folders: %w", err)
	}
	defer rows.Close()

	var folders []ScriptFolder
	for rows.Next() {
		sf, err := scanScriptFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan script folder row: %w", err)
		}
		folders = append(folders, *sf)
	}
	return folders, rows.Err()
}

func (r *scriptFolderRepo) CreateScriptFolder(sourceID int64, title string, showTotal, showUnread bool) (*ScriptFolder, error) {
	res, err := r.db.Exec(`
		INSERT INTO scriptfolders (source_id, title, show_total, show_unread)
		VALUES (?, ?, ?, ?)
	`, sourceID, title, showTotal, showUnread)
	if err != nil {
		return nil, fmt.Errorf("failed to create script folder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get script folder id: %w", err)
	}
	return r.GetScriptFolder(id)
}

func (r *scriptFolderRepo) UpdateScriptFolder(id int64, title string, showTotal, showUnread bool) error {
	_, err := r.db.Exec(`
		UPDATE scriptfolders SET title = ?, show_total = ?, show_unread = ? WHERE id = ?
	`, title, showTotal, showUnread, id)
	if err != nil {
		return fmt.Errorf("failed to update script folder: %w", err)
	}
	return nil
}

func (r *scriptFolderRepo) DeleteScriptFolder(id int64) error {
	_, err := r.db.Exec("DELETE FROM scriptfolders WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete script folder: %w", err)
	}
	return nil
}
