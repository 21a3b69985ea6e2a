package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/feedloom/feedloom/app/source"
)

const jobTimeout = 5 * time.Minute

// ErrorFn receives every job failure, attributed to the source the job ran
// against. sourceID is 0 when the failure predates source resolution.
type ErrorFn func(sourceID int64, message string)

// Runner owns the job queue and worker pool. All mutations and queries go
// through its Queue* methods; nothing executes on the caller's goroutine.
type Runner struct {
	registry    *source.Registry
	onError     ErrorFn
	workerCount int
	interval    time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	workerWg sync.WaitGroup
	tickerWg sync.WaitGroup

	mu     sync.Mutex
	closed bool
	queue  chan *Job
}

// NewRunner builds a stopped runner. interval is the cadence of the
// background pass that refreshes due feeds; zero disables it.
func NewRunner(registry *source.Registry, workerCount int, interval time.Duration, onError ErrorFn) *Runner {
	ctx, cancel := context.WithCancel(context.Background())

	if workerCount < 1 {
		workerCount = 1
	}
	if onError == nil {
		onError = func(int64, string) {}
	}

	return &Runner{
		registry:    registry,
		onError:     onError,
		workerCount: workerCount,
		interval:    interval,
		ctx:         ctx,
		cancel:      cancel,
		queue:       make(chan *Job, 300),
	}
}

func (r *Runner) Start() {
	for i := 0; i < r.workerCount; i++ {
		r.workerWg.Add(1)
		go r.worker(i)
	}

	if r.interval <= 0 {
		return
	}

	r.tickerWg.Add(1)
	go func() {
		defer r.tickerWg.Done()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.refreshDueFeeds()

		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				r.refreshDueFeeds()
			}
		}
	}()
}

// JoinAll stops intake, waits for every queued job to finish, then joins
// the workers. Safe to call once.
func (r *Runner) JoinAll() {
	r.cancel()
	r.tickerWg.Wait()

	r.mu.Lock()
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.workerWg.Wait()
}

func (r *Runner) enqueue(job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.onError(job.SourceID, fmt.Sprintf("agent stopped, dropping %s job", job.Type))
		return
	}

	select {
	case r.queue <- job:
	default:
		slog.Warn("Job queue full", "type", job.Type, "id", job.ID)
		r.onError(job.SourceID, fmt.Sprintf("job queue is full, dropping %s job", job.Type))
	}
}

func (r *Runner) worker(id int) {
	defer r.workerWg.Done()

	// Workers drain the channel until it is closed and empty, so JoinAll
	// never abandons accepted work.
	for job := range r.queue {
		r.executeJob(id, job)
	}
}

func (r *Runner) executeJob(workerID int, job *Job) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Job panicked", "worker_id", workerID, "type", job.Type, "id", job.ID, "panic", rec)
			r.onError(job.SourceID, fmt.Sprintf("%s job panicked: %v", job.Type, rec))
		}
	}()

	job.Start()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := job.run(ctx); err != nil {
		slog.Error("Job failed", "worker_id", workerID, "type", job.Type, "id", job.ID, "duration", job.Duration().String(), "error", err)
		r.onError(job.SourceID, err.Error())
		return
	}

	slog.Debug("Job completed", "worker_id", workerID, "type", job.Type, "id", job.ID, "duration", job.Duration().String())
}

// refreshDueFeeds enqueues one refresh job per overdue feed across all
// local sources.
func (r *Runner) refreshDueFeeds() {
	now := time.Now().UTC()
	for _, src := range r.registry.GetSources(source.TypeLocal) {
		feeds, err := src.FeedsDueForRefresh(now)
		if err != nil {
			slog.Warn("Failed to list due feeds", "source_id", src.ID(), "error", err)
			continue
		}
		for _, f := range feeds {
			r.QueueRefreshFeed(src.ID(), f.ID, nil)
		}
	}
}

// withSource resolves the source and runs op against it, so Queue* closures
// reduce to the operation itself.
func (r *Runner) withSource(sourceID int64, op func(ctx context.Context, src source.Source) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		src, err := r.registry.GetSource(sourceID)
		if err != nil {
			return err
		}
		return op(ctx, src)
	}
}
