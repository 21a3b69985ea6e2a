package database

import (
	"database/sql"
	"fmt"
	"strings"
)

var _ FolderRepository = (*folderRepo)(nil)

type folderRepo struct {
	db *DB
}

func NewFolderRepository(db *DB) FolderRepository {
	return &folderRepo{db: db}
}

const folderColumns = "id, source_id, parent_id, title, sort_order"

func scanFolder(row interface{ Scan(...any) error }) (*Folder, error) {
	var f Folder
	err := row.Scan(&f.ID, &f.SourceID, &f.ParentID, &f.Title, &f.SortOrder)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *folderRepo) GetFolder(id int64) (*Folder, error) {
	f, err := scanFolder(r.db.QueryRow(
		"SELECT "+folderColumns+" FROM folders WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}
	return f, nil
}

func (r *folderRepo) GetChildFolders(sourceID, parentID int64) ([]Folder, error) {
	return r.queryFolders(
		"SELECT "+folderColumns+" FROM folders WHERE source_id = ? AND parent_id = ? ORDER BY sort_order, id",
		sourceID, parentID)
}

func (r *folderRepo) GetAllFolders(sourceID int64) ([]Folder, error) {
	return r.queryFolders(
		"SELECT "+folderColumns+" FROM folders WHERE source_id = ? ORDER BY parent_id, sort_order, id",
		sourceID)
}

func (r *folderRepo) queryFolders(query string, args ...any) ([]Folder, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get folders: %w", err)
	}
	defer rows.Close()

	var folders []Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder row: %w", err)
		}
		folders = append(folders, *f)
	}
	return folders, rows.Err()
}

func (r *folderRepo) GetFolderByTitle(sourceID, parentID int64, title string) (*Folder, error) {
	f, err := scanFolder(r.db.QueryRow(
		"SELECT "+folderColumns+" FROM folders WHERE source_id = ? AND parent_id = ? AND title = ?",
		sourceID, parentID, title))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder by title: %w", err)
	}
	return f, nil
}

func (r *folderRepo) CreateFolder(sourceID, parentID int64, title string) (*Folder, error) {
	var maxOrder sql.NullInt64
	err := r.db.QueryRow(
		"SELECT MAX(sort_order) FROM folders WHERE source_id = ? AND parent_id = ?",
		sourceID, parentID).Scan(&maxOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to get folder sort order: %w", err)
	}

	res, err := r.db.Exec(`
		INSERT INTO folders (source_id, parent_id, title, sort_order)
		VALUES (?, ?, ?, ?)
	`, sourceID, parentID, title, int(maxOrder.Int64)+SortOrderStep)
	if err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get folder id: %w", err)
	}
	return r.GetFolder(id)
}

func (r *folderRepo) UpdateFolderTitle(id int64, title string) error {
	_, err := r.db.Exec("UPDATE folders SET title = ? WHERE id = ?", title, id)
	if err != nil {
		return fmt.Errorf("failed to update folder title: %w", err)
	}
	return nil
}

func (r *folderRepo) SetFolderParent(id, parentID int64, sortOrder int) error {
	_, err := r.db.Exec(
		"UPDATE folders SET parent_id = ?, sort_order = ? WHERE id = ?",
		parentID, sortOrder, id)
	if err != nil {
		return fmt.Errorf("failed to move folder: %w", err)
	}
	return nil
}

func (r *folderRepo) SetFolderSortOrder(id int64, sortOrder int) error {
	_, err := r.db.Exec("UPDATE folders SET sort_order = ? WHERE id = ?", sortOrder, id)
	if err != nil {
		return fmt.Errorf("failed to set folder sort order: %w", err)
	}
	return nil
}

func (r *folderRepo) DeleteFolders(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := "DELETE FROM folders WHERE id IN (" + placeholders(len(ids)) + ")"
	if _, err := r.db.Exec(query, int64Args(ids)...); err != nil {
		return fmt.Errorf("failed to delete folders: %w", err)
	}
	return nil
}

// SubtreeFolderIDs returns folderID plus every descendant folder ID, in
// breadth-first order. folderID 0 yields every folder of the source.
func (r *folderRepo) SubtreeFolderIDs(sourceID, folderID int64) ([]int64, error) {
	all, err := r.GetAllFolders(sourceID)
	if err != nil {
		return nil, err
	}

	children := make(map[int64][]int64, len(all))
	for _, f := range all {
		children[f.ParentID] = append(children[f.ParentID], f.ID)
	}

	ids := []int64{folderID}
	for i := 0; i < len(ids); i++ {
		ids = append(ids, children[ids[i]]...)
	}

	if folderID == 0 {
		// Root is not a real folder row; drop the sentinel.
		ids = ids[1:]
	}
	return ids, nil
}

// ResequenceFolders rewrites sibling sort orders with the standard step and
// returns only the entries whose order actually changed.
func (r *folderRepo) ResequenceFolders(sourceID, parentID int64) (map[int64]int, error) {
	siblings, err := r.GetChildFolders(sourceID, parentID)
	if err != nil {
		return nil, err
	}

	remap := make(map[int64]int)
	for i, f := range siblings {
		newOrder := (i + 1) * SortOrderStep
		if f.SortOrder == newOrder {
			continue
		}
		if err := r.SetFolderSortOrder(f.ID, newOrder); err != nil {
			return nil, err
		}
		remap[f.ID] = newOrder
	}
	return remap, nil
}

// placeholders builds "?, ?, ?" for IN clauses.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
