package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job is one unit of asynchronous work. Result and Error are set by the
// worker; callers poll by ID.
type Job struct {
	ID          string     `json:"id"`
	VideoID     string     `json:"video_id"`
	Lang        string     `json:"lang,omitempty"`
	TargetCount int        `json:"target_count,omitempty"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	Result      any        `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// JobFunc performs the work for one job and returns its result.
type JobFunc func(ctx context.Context, job *Job) (any, error)

// JobQueue is a capacity-capped FIFO queue processed by a single worker,
// strictly one job at a time.
type JobQueue struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	pending  chan *Job
	run      JobFunc
	onFinish func(Job)
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	closed   bool
}

// NewJobQueue creates a queue with the given capacity and starts its worker.
// onFinish, if non-nil, receives a snapshot of each job after it reaches a
// terminal state (done or failed, with Error and FinishedAt set).
func NewJobQueue(capacity int, run JobFunc, onFinish func(Job)) *JobQueue {
	if capacity <= 0 {
		capacity = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &JobQueue{
		jobs:     make(map[string]*Job),
		pending:  make(chan *Job, capacity),
		run:      run,
		onFinish: onFinish,
		cancel:   cancel,
	}
	q.wg.Add(1)
	go q.worker(ctx)
	return q
}

// Enqueue adds a job and returns a snapshot of its queued state. Returns
// ErrQueueFull at capacity and ErrQueueClosed after Close.
func (q *JobQueue) Enqueue(videoID, lang string, targetCount int) (Job, error) {
	job := &Job{
		ID:          uuid.NewString(),
		VideoID:     videoID,
		Lang:        lang,
		TargetCount: targetCount,
		Status:      JobQueued,
		CreatedAt:   time.Now().UTC(),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return Job{}, ErrQueueClosed
	}
	select {
	case q.pending <- job:
	default:
		q.mu.Unlock()
		IncrJobsRejected()
		return Job{}, ErrQueueFull
	}
	q.jobs[job.ID] = job
	snap := *job
	q.mu.Unlock()

	IncrJobsEnqueued()
	slog.Info("queue: job enqueued", slog.String("job_id", job.ID), slog.String("video_id", videoID))
	return snap, nil
}

// Get returns a snapshot of the job with the given ID.
func (q *JobQueue) Get(id string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Len reports how many jobs are waiting (not including a running one).
func (q *JobQueue) Len() int {
	return len(q.pending)
}

// Close stops accepting jobs and waits for the worker to drain.
func (q *JobQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.pending)
	q.wg.Wait()
	q.cancel()
}

func (q *JobQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for job := range q.pending {
		q.process(ctx, job)
	}
}

func (q *JobQueue) process(ctx context.Context, job *Job) {
	now := time.Now().UTC()
	q.mu.Lock()
	job.Status = JobRunning
	job.StartedAt = &now
	q.mu.Unlock()

	result, err := q.run(ctx, job)

	done := time.Now().UTC()
	q.mu.Lock()
	job.FinishedAt = &done
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
	} else {
		job.Status = JobDone
		job.Result = result
	}
	snap := *job
	q.mu.Unlock()

	if err != nil {
		slog.Warn("queue: job failed",
			slog.String("job_id", snap.ID),
			slog.String("video_id", snap.VideoID),
			slog.Any("error", err))
	} else {
		slog.Info("queue: job done",
			slog.String("job_id", snap.ID),
			slog.String("video_id", snap.VideoID),
			slog.Duration("elapsed", done.Sub(now)))
	}
	if q.onFinish != nil {
		q.onFinish(snap)
	}
}
