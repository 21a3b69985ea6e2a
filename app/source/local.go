package source

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/feedloom/feedloom/app/database"
)

var _ Source = (*Local)(nil)

// Local is the SQLite-backed source. All state lives in the repositories;
// the struct itself only carries identity and the creation mutex.
type Local struct {
	record database.Source
	deps   Deps

	// creationMu serializes feed and folder creation so two concurrent
	// add/import operations targeting the same folder cannot race into
	// duplicates. Everything else relies on SQLite transaction semantics.
	creationMu sync.Mutex
}

func newLocal(record database.Source, deps Deps) *Local {
	return &Local{record: record, deps: deps}
}

func (s *Local) ID() int64     { return s.record.ID }
func (s *Local) Type() string  { return TypeLocal }
func (s *Local) Title() string { return s.record.Title }

func (s *Local) GetFeeds() ([]database.Feed, error) {
	feeds, err := s.deps.Feeds.GetFeeds(s.record.ID)
	if err != nil {
		return nil, err
	}
	counts, err := s.deps.Feeds.GetUnreadCounts(s.record.ID)
	if err != nil {
		return nil, err
	}
	for i := range feeds {
		feeds[i].UnreadCount = counts[feeds[i].ID]
	}
	return feeds, nil
}

func (s *Local) GetFolders() ([]database.Folder, error) {
	return s.deps.Folders.GetAllFolders(s.record.ID)
}

func (s *Local) GetScripts() ([]database.Script, error) {
	return s.deps.Scripts.GetScripts(s.record.ID)
}

func (s *Local) GetScriptFolders() ([]database.ScriptFolder, error) {
	return s.deps.ScriptFolders.GetScriptFolders(s.record.ID)
}

func (s *Local) GetStatistics() (*database.SourceStatistics, error) {
	return s.deps.Sources.GetStatistics(s.record.ID)
}

func (s *Local) GetUnreadCounts() (map[int64]int, error) {
	return s.deps.Feeds.GetUnreadCounts(s.record.ID)
}

func (s *Local) AddFolder(parentID int64, title string) (*database.Folder, error) {
	s.creationMu.Lock()
	defer s.creationMu.Unlock()
	return s.addFolderLocked(parentID, title)
}

// addFolderLocked reuses an existing sibling with the same title, which
// keeps OPML re-imports from piling up duplicate folders.
func (s *Local) addFolderLocked(parentID int64, title string) (*database.Folder, error) {
	if err := s.checkFolderExists(parentID); err != nil {
		return nil, err
	}
	existing, err := s.deps.Folders.GetFolderByTitle(s.record.ID, parentID, title)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return s.deps.Folders.CreateFolder(s.record.ID, parentID, title)
}

func (s *Local) checkFolderExists(folderID int64) error {
	if folderID == 0 {
		return nil
	}
	folder, err := s.deps.Folders.GetFolder(folderID)
	if err != nil {
		return err
	}
	if folder == nil || folder.SourceID != s.record.ID {
		return fmt.Errorf("folder %d not found", folderID)
	}
	return nil
}

// RemoveFolder deletes the folder, every descendant folder, their feeds and
// those feeds' posts. Siblings outside the subtree are untouched.
func (s *Local) RemoveFolder(folderID int64) error {
	if err := s.checkFolderExists(folderID); err != nil {
		return err
	}
	subtree, err := s.deps.Folders.SubtreeFolderIDs(s.record.ID, folderID)
	if err != nil {
		return err
	}
	if _, err := s.deps.Feeds.DeleteFeedsInFolders(s.record.ID, subtree); err != nil {
		return err
	}
	return s.deps.Folders.DeleteFolders(subtree)
}

// MoveFolder reparents the folder, slots it at position among its new
// siblings and returns the full sort-order remap for every sibling whose
// order shifted.
func (s *Local) MoveFolder(folderID, newParentID int64, position int) (map[int64]int, error) {
	folder, err := s.deps.Folders.GetFolder(folderID)
	if err != nil {
		return nil, err
	}
	if folder == nil || folder.SourceID != s.record.ID {
		return nil, fmt.Errorf("folder %d not found", folderID)
	}
	if err := s.checkFolderExists(newParentID); err != nil {
		return nil, err
	}
	subtree, err := s.deps.Folders.SubtreeFolderIDs(s.record.ID, folderID)
	if err != nil {
		return nil, err
	}
	for _, id := range subtree {
		if id == newParentID {
			return nil, fmt.Errorf("cannot move folder %d into its own subtree", folderID)
		}
	}

	oldParent := folder.ParentID
	if err := s.deps.Folders.SetFolderParent(folderID, newParentID, positionSortOrder(position)); err != nil {
		return nil, err
	}

	remap, err := s.deps.Folders.ResequenceFolders(s.record.ID, newParentID)
	if err != nil {
		return nil, err
	}
	if oldParent != newParentID {
		oldRemap, err := s.deps.Folders.ResequenceFolders(s.record.ID, oldParent)
		if err != nil {
			return nil, err
		}
		for id, order := range oldRemap {
			remap[id] = order
		}
	}
	return remap, nil
}

// SortFolder reorders the immediate children of a folder alphabetically and
// returns separate remaps for feeds and subfolders.
func (s *Local) SortFolder(folderID int64) (*SortResult, error) {
	if err := s.checkFolderExists(folderID); err != nil {
		return nil, err
	}

	feeds, err := s.deps.Feeds.GetFeedsInFolder(s.record.ID, folderID)
	if err != nil {
		return nil, err
	}
	sortFeedsByTitle(feeds)
	feedRemap := make(map[int64]int)
	for i, f := range feeds {
		newOrder := (i + 1) * database.SortOrderStep
		if f.SortOrder != newOrder {
			if err := s.deps.Feeds.SetFeedSortOrder(f.ID, newOrder); err != nil {
				return nil, err
			}
			feedRemap[f.ID] = newOrder
		}
	}

	folders, err := s.deps.Folders.GetChildFolders(s.record.ID, folderID)
	if err != nil {
		return nil, err
	}
	sortFoldersByTitle(folders)
	folderRemap := make(map[int64]int)
	for i, f := range folders {
		newOrder := (i + 1) * database.SortOrderStep
		if f.SortOrder != newOrder {
			if err := s.deps.Folders.SetFolderSortOrder(f.ID, newOrder); err != nil {
				return nil, err
			}
			folderRemap[f.ID] = newOrder
		}
	}

	return &SortResult{Feeds: feedRemap, Folders: folderRemap}, nil
}

func (s *Local) FolderAndSubfolderIDs(folderID int64) ([]int64, error) {
	return s.deps.Folders.SubtreeFolderIDs(s.record.ID, folderID)
}

// FeedIDsInFoldersAndSubfolders resolves every feed under the folder
// subtree, folder 0 meaning the whole source.
func (s *Local) FeedIDsInFoldersAndSubfolders(folderID int64) ([]int64, error) {
	if folderID == 0 {
		feeds, err := s.deps.Feeds.GetFeeds(s.record.ID)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, len(feeds))
		for i, f := range feeds {
			ids[i] = f.ID
		}
		return ids, nil
	}

	subtree, err := s.deps.Folders.SubtreeFolderIDs(s.record.ID, folderID)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, fid := range subtree {
		feeds, err := s.deps.Feeds.GetFeedsInFolder(s.record.ID, fid)
		if err != nil {
			return nil, err
		}
		for _, f := range feeds {
			ids = append(ids, f.ID)
		}
	}
	return ids, nil
}

// AddFeed creates a subscription under folderID. Creation for a given URL
// within a folder is serialized by the creation mutex; a concurrent add of
// the same URL returns the existing feed instead of a duplicate.
func (s *Local) AddFeed(folderID int64, url string) (*database.Feed, error) {
	s.creationMu.Lock()
	defer s.creationMu.Unlock()

	if err := s.checkFolderExists(folderID); err != nil {
		return nil, err
	}
	existing, err := s.deps.Feeds.GetFeedByURL(s.record.ID, folderID, url)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return s.deps.Feeds.CreateFeed(s.record.ID, folderID, url, url)
}

func (s *Local) RemoveFeed(feedID int64) error {
	feedRec, err := s.getOwnFeed(feedID)
	if err != nil {
		return err
	}
	return s.deps.Feeds.DeleteFeed(feedRec.ID)
}

func (s *Local) MoveFeed(feedID, newFolderID int64, position int) (map[int64]int, error) {
	feedRec, err := s.getOwnFeed(feedID)
	if err != nil {
		return nil, err
	}
	if err := s.checkFolderExists(newFolderID); err != nil {
		return nil, err
	}

	oldFolder := feedRec.FolderID
	if err := s.deps.Feeds.SetFeedFolder(feedID, newFolderID, positionSortOrder(position)); err != nil {
		return nil, err
	}

	remap, err := s.deps.Feeds.ResequenceFeeds(s.record.ID, newFolderID)
	if err != nil {
		return nil, err
	}
	if oldFolder != newFolderID {
		oldRemap, err := s.deps.Feeds.ResequenceFeeds(s.record.ID, oldFolder)
		if err != nil {
			return nil, err
		}
		for id, order := range oldRemap {
			remap[id] = order
		}
	}
	return remap, nil
}

func (s *Local) getOwnFeed(feedID int64) (*database.Feed, error) {
	feedRec, err := s.deps.Feeds.GetFeed(feedID)
	if err != nil {
		return nil, err
	}
	if feedRec == nil || feedRec.SourceID != s.record.ID {
		return nil, fmt.Errorf("feed %d not found", feedID)
	}
	return feedRec, nil
}

func sortFeedsByTitle(feeds []database.Feed) {
	sort.SliceStable(feeds, func(i, j int) bool {
		return strings.ToLower(feeds[i].Title) < strings.ToLower(feeds[j].Title)
	})
}

func sortFoldersByTitle(folders []database.Folder) {
	sort.SliceStable(folders, func(i, j int) bool {
		return strings.ToLower(folders[i].Title) < strings.ToLower(folders[j].Title)
	})
}

// positionSortOrder converts a 0-based target position into a sort order
// that lands between the neighbors at that position. The follow-up
// resequence rewrites the whole sibling set with the standard step.
func positionSortOrder(position int) int {
	if position < 0 {
		position = 0
	}
	return position*database.SortOrderStep + database.SortOrderStep/2
}
