package agent

import (
	"context"

	"github.com/feedloom/feedloom/app/database"
	"github.com/feedloom/feedloom/app/source"
)

// Completion callback types. Callbacks run on worker goroutines; a nil
// callback discards the result. Errors reach the callback and the runner's
// process-wide error callback both.
type (
	RefreshFn    func(outcome *source.RefreshOutcome, err error)
	PostsFn      func(page *source.PostsPage, err error)
	PostIDsFn    func(postIDs []int64, err error)
	FolderFn     func(folder *database.Folder, err error)
	FeedFn       func(feed *database.Feed, err error)
	RemapFn      func(remap map[int64]int, err error)
	SortFn       func(result *source.SortResult, err error)
	FolderIDsFn  func(folderIDs []int64, err error)
	StatisticsFn func(stats *database.SourceStatistics, err error)
	DoneFn       func(err error)
)

func (r *Runner) QueueRefreshFeed(sourceID, feedID int64, done RefreshFn) {
	r.enqueue(newJob(JobTypeRefreshFeed, sourceID, r.withSource(sourceID, func(ctx context.Context, src source.Source) error {
		outcome, err := src.RefreshFeed(ctx, feedID)
		if done != nil {
			done(outcome, err)
		}
		return err
	})))
}

// QueueRefreshSource fans out one refresh job per feed, so a slow feed
// never blocks the rest of the source.
func (r *Runner) QueueRefreshSource(sourceID int64, done RefreshFn) {
	r.enqueue(newJob(JobTypeRefreshSource, sourceID, r.withSource(sourceID, func(ctx context.Context, src source.Source) error {
		feeds, err := src.GetFeeds()
		if err != nil {
			return err
		}
		for _, f := range feeds {
			r.QueueRefreshFeed(sourceID, f.ID, done)
		}
		return nil
	})))
}

func (r *Runner) QueueRefreshFolder(sourceID, folderID int64, done RefreshFn) {
	r.enqueue(newJob(JobTypeRefreshFolder, sourceID, r.withSource(sourceID, func(ctx context.Context, src source.Source) error {
		feedIDs, err := src.FeedIDsInFoldersAndSubfolders(folderID)
		if err != nil {
			return err
		}
		for _, feedID := range feedIDs {
			r.QueueRefreshFeed(sourceID, feedID, done)
		}
		return nil
	})))
}

func (r *Runner) QueueGetFeedPosts(sourceID, feedID int64, opts database.PostQueryOptions, done PostsFn) {
	r.enqueue(newJob(JobTypeGetPosts, sourceID, r.withSource(sourceID, func(ctx context.Context, src source.Source) error {
		page, err := src.GetFeedPosts(feedID, opts)
		if done != nil {
			done(page, err)
		}
		return err
	})))
}

func (r *Runner) QueueGetFolderPosts(sourceID, folderID int64, opts database.PostQueryOptions, done PostsFn) {
	r.enqueue(newJob(JobTypeGetPosts, sourceID, r.withSource(sourceID, func(ctx context.Context, src source.Source) error {
		page, err := src.GetFolderPosts(folderID, opts)
		if done != nil {
			done(page, err)
		}
		return err
	})))
}

func (r *Runner) QueueGetScriptFolderPosts(sourceID, scriptFolderID int64, opts database.PostQueryOptions, done PostsFn) {
	r.enqueue(newJob(JobTypeGetPosts, sourceID, r.withSource(sourceID, func(ctx context.Context, src source.Source) error {
		page, err := src.GetScriptFolderPosts(scriptFolderID, opts)
		if done != nil {
			done(page, err)
		}
		return err
	})))
}

func (r *Runner) QueueMarkFeedRead(sourceID, feedID, maxPostID int64, done PostIDsFn) {
	r.enqueue(newJob(JobTypeMarkRead, sourceID, r.withSource(sourceID, func(ctx context.Context, src source.Source) error {
		ids, err := src.MarkFeedRead(feedID, maxPostID)
		if done != nil {
			done(ids, err)
		}
		return err
	})))
}

func (r *Runner) QueueMarkFolderRead(sourceID, folderID, maxPostID int64, done PostIDsFn) {
	r.enqueue(newJob(JobTypeMarkRead, sourceID, r.withSource(sourceID, func(ctx context.Context, src source.Source) error {
		ids, err := src.MarkFolderRead(folderID, maxPostID)
		if done != nil {
			done(ids, err)
		}
		return err
	})))
}

func (r *Runner) QueueSetPostsReadStatus(sourceID int64, postIDs []int64, read bool, done DoneFn) {
	r.enqueue(newJob(JobTypeSetReadStatus, sourceID, r.withSource(sourceID, func(ctx context.Context, src source.Source) error {
		err := src.SetPostsReadStatus(postIDs, read)
		if done != nil {
			done(err)
		}
		return err
	})))
}

func (r *Runner) QueueSetPostsFlagStatus(sourceID int64, postIDs []int64, color database.FlagColor, flagged bool, done DoneFn) {
	r.enqueue(newJob(JobTypeSetFlagStatus, sourceID, r.withSource(sourceID, func(ctx context.Context, src source.Source) error {
		err := src.SetPostsFlagStatus(postIDs, color, flagged)
		if done != nil {
			done(err)
		}
		return err
	})))
}

func (r *Runner) QueueAssignPostsToScriptFolder(sourceID int64, postIDs []int64, scriptFolderID int64, assign bool, done DoneFn) {
	r.enqueue(newJob(JobTypeAssignScriptFolder, sourceID, r.withSource(sourceID, func(ctx context.Context, src source.Source) error {
		err := src.AssignPostsToScriptFolder(postIDs, scriptFolderID, assign)
		if done != nil {
			done(err)
		}
		return err
	})))
}

func (r *Runner) QueueAddFolder(sourceID, parentID int64, title string, done FolderFn) {
	r.enqueue(newJob(JobTypeAddFolder, sourceID, r.withSource(sourceID, func(ctx context.Context, src source.Source) error {
		folder, err := src.AddFolder(parentID, title)
		if done != nil {
			done(folder, err)
		}
		return err
	})))
}

func (r *Runner) QueueRemoveFolder(sourceID, folderID int64, done DoneFn) {
	r.enqueue(newJob(JobTypeRemoveFolder, sourceID, r.withSource(sourceID, func(ctx context.Context, src source.Source) error {
		err := src.RemoveFolder(folderID)
		if done != nil {
			done(err)
		}
		return err
	})))
}

func (r *Runner) QueueMoveFolder(sourceID, folderID, newParentID int64, position int, done RemapFn) {
	r.enqueue(newJob(JobTypeMoveFolder, sourceID, r.withSource(sourceID, func(ctx context.Context, src source.Source) error {
		remap, err := src.MoveFolder(folderID, newParentID, position)
		if done != nil {
			done(remap, err)
		}
		return err
	})))
}

func (r *Runner) QueueSortFolder(sourceID, folderID int64, done SortFn) {
	r.enqueue(newJob(JobTypeSortFolder, sourceID, r.withSource(sourceID, func(ctx context.Context, src source.Source) error {
		result, err := src.SortFolder(folderID)
		if done != nil {
			done(result, err)
		}
		return err
	})))
}

func (r *Runner) QueueAddFeed(sourceID, folderID int64, url string, done FeedFn) {
	r.enqueue(newJob(JobTypeAddFeed, sourceID, r.withSource(sourceID, func(ctx context.Context, src source.Source) error {
		f, err := src.AddFeed(folderID, url)
		if done != nil {
			done(f, err)
		}
		if err != nil {
			return err
		}
		// A fresh subscription has no posts until its first refresh.
		r.QueueRefreshFeed(sourceID, f.ID, nil)
		return nil
	})))
}

func (r *Runner) QueueRemoveFeed(sourceID, feedID int64, done DoneFn) {
	r.enqueue(newJob(JobTypeRemoveFeed, sourceID, r.withSource(sourceID, func(ctx context.Context, src source.Source) error {
		err := src.RemoveFeed(feedID)
		if done != nil {
			done(err)
		}
		return err
	})))
}

func (r *Runner) QueueMoveFeed(sourceID, feedID, newFolderID int64, position int, done RemapFn) {
	r.enqueue(newJob(JobTypeMoveFeed, sourceID, r.withSource(sourceID, func(ctx context.Context, src source.Source) error {
		remap, err := src.MoveFeed(feedID, newFolderID, position)
		if done != nil {
			done(remap, err)
		}
		return err
	})))
}

func (r *Runner) QueueImportOPML(sourceID int64, opml string, parentFolderID int64, done FolderIDsFn) {
	r.enqueue(newJob(JobTypeImportOPML, sourceID, r.withSource(sourceID, func(ctx context.Context, src source.Source) error {
		folderIDs, err := src.ImportOPML(opml, parentFolderID)
		if done != nil {
			done(folderIDs, err)
		}
		if err != nil {
			return err
		}
		for _, folderID := range folderIDs {
			r.QueueRefreshFolder(sourceID, folderID, nil)
		}
		return nil
	})))
}

// QueueRunScript executes an ad-hoc script body against one post, streaming
// print output through printFn.
func (r *Runner) QueueRunScript(sourceID int64, scriptBody string, postID int64, printFn func(string), done DoneFn) {
	r.enqueue(newJob(JobTypeRunScript, sourceID, r.withSource(sourceID, func(ctx context.Context, src source.Source) error {
		err := src.RunScript(ctx, scriptBody, postID, printFn)
		if done != nil {
			done(err)
		}
		return err
	})))
}

func (r *Runner) QueueGetSourceStatistics(sourceID int64, done StatisticsFn) {
	r.enqueue(newJob(JobTypeGetStatistics, sourceID, r.withSource(sourceID, func(ctx context.Context, src source.Source) error {
		stats, err := src.GetStatistics()
		if done != nil {
			done(stats, err)
		}
		return err
	})))
}
