package source

import (
	"fmt"

	"github.com/feedloom/feedloom/app/database"
)

func (s *Local) GetPost(postID int64) (*database.Post, error) {
	return s.deps.Posts.GetPost(postID)
}

func (s *Local) GetFeedPosts(feedID int64, opts database.PostQueryOptions) (*PostsPage, error) {
	if _, err := s.getOwnFeed(feedID); err != nil {
		return nil, err
	}
	total, posts, err := s.deps.Posts.GetPosts([]int64{feedID}, opts)
	if err != nil {
		return nil, err
	}
	return &PostsPage{Total: total, Posts: posts}, nil
}

// GetFolderPosts aggregates posts across the folder and every descendant
// folder's feeds. Folder 0 covers the whole source.
func (s *Local) GetFolderPosts(folderID int64, opts database.PostQueryOptions) (*PostsPage, error) {
	feedIDs, err := s.FeedIDsInFoldersAndSubfolders(folderID)
	if err != nil {
		return nil, err
	}
	total, posts, err := s.deps.Posts.GetPosts(feedIDs, opts)
	if err != nil {
		return nil, err
	}
	return &PostsPage{Total: total, Posts: posts}, nil
}

func (s *Local) GetScriptFolderPosts(scriptFolderID int64, opts database.PostQueryOptions) (*PostsPage, error) {
	sf, err := s.deps.ScriptFolders.GetScriptFolder(scriptFolderID)
	if err != nil {
		return nil, err
	}
	if sf == nil || sf.SourceID != s.record.ID {
		return nil, fmt.Errorf("script folder %d not found", scriptFolderID)
	}
	total, posts, err := s.deps.Posts.GetScriptFolderPosts(scriptFolderID, opts)
	if err != nil {
		return nil, err
	}
	return &PostsPage{Total: total, Posts: posts}, nil
}

func (s *Local) GetCategories(folderID int64) ([]database.Category, error) {
	feedIDs, err := s.FeedIDsInFoldersAndSubfolders(folderID)
	if err != nil {
		return nil, err
	}
	return s.deps.Posts.GetDistinctCategories(feedIDs)
}

func (s *Local) MarkFeedRead(feedID, maxPostID int64) ([]int64, error) {
	if _, err := s.getOwnFeed(feedID); err != nil {
		return nil, err
	}
	return s.deps.Posts.MarkFeedsRead([]int64{feedID}, maxPostID)
}

// MarkFolderRead marks the whole subtree read up to maxPostID and returns
// the feed IDs whose unread badges need refreshing.
func (s *Local) MarkFolderRead(folderID, maxPostID int64) ([]int64, error) {
	feedIDs, err := s.FeedIDsInFoldersAndSubfolders(folderID)
	if err != nil {
		return nil, err
	}
	return s.deps.Posts.MarkFeedsRead(feedIDs, maxPostID)
}

func (s *Local) SetPostsReadStatus(postIDs []int64, read bool) error {
	return s.deps.Posts.SetPostsReadStatus(postIDs, read)
}

func (s *Local) SetPostsFlagStatus(postIDs []int64, color database.FlagColor, flagged bool) error {
	for _, id := range postIDs {
		var err error
		if flagged {
			err = s.deps.Posts.SetFlag(id, color)
		} else {
			err = s.deps.Posts.ClearFlag(id, color)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Local) AssignPostsToScriptFolder(postIDs []int64, scriptFolderID int64, assign bool) error {
	for _, id := range postIDs {
		var err error
		if assign {
			err = s.deps.Posts.AssignToScriptFolder(id, scriptFolderID)
		} else {
			err = s.deps.Posts.UnassignFromScriptFolder(id, scriptFolderID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
