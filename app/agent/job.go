// Package agent runs every source operation asynchronously on a worker
// pool. Callers enqueue through the Queue* methods and receive results via
// completion callbacks invoked on worker goroutines; failures additionally
// flow through the process-wide error callback.
package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type JobType string

const (
	JobTypeRefreshFeed        JobType = "refresh_feed"
	JobTypeRefreshSource      JobType = "refresh_source"
	JobTypeRefreshFolder      JobType = "refresh_folder"
	JobTypeGetPosts           JobType = "get_posts"
	JobTypeMarkRead           JobType = "mark_read"
	JobTypeSetReadStatus      JobType = "set_read_status"
	JobTypeSetFlagStatus      JobType = "set_flag_status"
	JobTypeAssignScriptFolder JobType = "assign_script_folder"
	JobTypeAddFolder          JobType = "add_folder"
	JobTypeRemoveFolder       JobType = "remove_folder"
	JobTypeMoveFolder         JobType = "move_folder"
	JobTypeSortFolder         JobType = "sort_folder"
	JobTypeAddFeed            JobType = "add_feed"
	JobTypeRemoveFeed         JobType = "remove_feed"
	JobTypeMoveFeed           JobType = "move_feed"
	JobTypeImportOPML         JobType = "import_opml"
	JobTypeRunScript          JobType = "run_script"
	JobTypeGetStatistics      JobType = "get_statistics"
)

// Job is one unit of queued work. The closure carries the whole operation,
// completion callback included; the surrounding fields exist for logging
// and error attribution.
type Job struct {
	ID        string
	Type      JobType
	SourceID  int64
	StartedAt *time.Time

	run func(ctx context.Context) error
}

func newJob(jobType JobType, sourceID int64, run func(ctx context.Context) error) *Job {
	return &Job{
		ID:       uuid.NewString(),
		Type:     jobType,
		SourceID: sourceID,
		run:      run,
	}
}

func (j *Job) Start() {
	now := time.Now()
	j.StartedAt = &now
}

func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	return time.Since(*j.StartedAt)
}
