package source

import (
	"github.com/feedloom/feedloom/app/feed"
)

// ImportOPML recreates the folder hierarchy of an OPML document beneath
// parentFolderID, reusing existing folders by title, and adds one feed per
// entry. It returns the IDs of the top-level folders that gained content,
// so callers can refresh just those subtrees.
func (s *Local) ImportOPML(opml string, parentFolderID int64) ([]int64, error) {
	entries, err := feed.ParseOPML(opml)
	if err != nil {
		return nil, err
	}

	s.creationMu.Lock()
	defer s.creationMu.Unlock()

	if err := s.checkFolderExists(parentFolderID); err != nil {
		return nil, err
	}

	affected := make(map[int64]bool)
	for _, entry := range entries {
		folderID := parentFolderID
		for i, title := range entry.FolderHierarchy {
			folder, err := s.addFolderLocked(folderID, title)
			if err != nil {
				return nil, err
			}
			if i == 0 {
				affected[folder.ID] = true
			}
			folderID = folder.ID
		}
		if len(entry.FolderHierarchy) == 0 {
			affected[parentFolderID] = true
		}

		existing, err := s.deps.Feeds.GetFeedByURL(s.record.ID, folderID, entry.URL)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}
		title := entry.Title
		if title == "" {
			title = entry.URL
		}
		if _, err := s.deps.Feeds.CreateFeed(s.record.ID, folderID, entry.URL, title); err != nil {
			return nil, err
		}
	}

	ids := make([]int64, 0, len(affected))
	for id := range affected {
		ids = append(ids, id)
	}
	return ids, nil
}

// ExportOPML renders the source's full folder tree and subscriptions.
func (s *Local) ExportOPML() (string, error) {
	outlines, err := s.exportFolder(0)
	if err != nil {
		return "", err
	}
	return feed.ExportOPML(s.record.Title, outlines)
}

func (s *Local) exportFolder(folderID int64) ([]feed.OPMLOutline, error) {
	var outlines []feed.OPMLOutline

	folders, err := s.deps.Folders.GetChildFolders(s.record.ID, folderID)
	if err != nil {
		return nil, err
	}
	for _, folder := range folders {
		children, err := s.exportFolder(folder.ID)
		if err != nil {
			return nil, err
		}
		outlines = append(outlines, feed.OPMLOutline{
			Title:    folder.Title,
			Children: children,
		})
	}

	feeds, err := s.deps.Feeds.GetFeedsInFolder(s.record.ID, folderID)
	if err != nil {
		return nil, err
	}
	for _, f := range feeds {
		outlines = append(outlines, feed.OPMLOutline{
			Title:    f.Title,
			URL:      f.URL,
			SiteLink: f.Link,
		})
	}

	return outlines, nil
}
