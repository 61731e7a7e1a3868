package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"shopify-catalog-scraper/internal/types"
)

// JobState is the lifecycle state of a background job
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

const maxJobLogs = 200

// Runner is the work of a job. It must poll cb.Cancel.
type Runner func(ctx context.Context, cb types.Callbacks) (string, error)

// Progress is the last progress report of a job
type Progress struct {
	Message string `json:"message"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}

// JobStatus is a snapshot of a job
type JobStatus struct {
	ID         string     `json:"id"`
	Supplier   string     `json:"supplier"`
	State      JobState   `json:"state"`
	Progress   Progress   `json:"progress"`
	Logs       []string   `json:"logs"`
	OutputPath string     `json:"output_path,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Job is one operation running on its own goroutine
type Job struct {
	id        string
	supplier  string
	startedAt time.Time
	cancelled atomic.Bool
	done      chan struct{}

	mu         sync.Mutex
	state      JobState
	progress   Progress
	logs       []string
	outputPath string
	err        error
	finishedAt *time.Time
}

// ID returns the job id
func (j *Job) ID() string {
	return j.id
}

// Cancel asks the job to stop at its next cancellation point
func (j *Job) Cancel() {
	j.cancelled.Store(true)
}

// Done is closed when the job finished
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finished and returns its outcome
func (j *Job) Wait() (string, error) {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.outputPath, j.err
}

// Status returns a snapshot of the job
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	status := JobStatus{
		ID:         j.id,
		Supplier:   j.supplier,
		State:      j.state,
		Progress:   j.progress,
		Logs:       append([]string(nil), j.logs...),
		OutputPath: j.outputPath,
		StartedAt:  j.startedAt,
		FinishedAt: j.finishedAt,
	}
	if j.err != nil {
		status.Error = j.err.Error()
	}
	return status
}

func (j *Job) finished() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

func (j *Job) callbacks() types.Callbacks {
	return types.Callbacks{
		Progress: func(message string, current, total int) {
			j.mu.Lock()
			defer j.mu.Unlock()
			j.progress = Progress{Message: message, Current: current, Total: total}
		},
		Log: func(message string) {
			j.mu.Lock()
			defer j.mu.Unlock()
			j.logs = append(j.logs, message)
			if len(j.logs) > maxJobLogs {
				j.logs = j.logs[len(j.logs)-maxJobLogs:]
			}
		},
		Cancel: j.cancelled.Load,
	}
}

func (j *Job) finish(path string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	j.finishedAt = &now
	j.outputPath = path
	j.err = err
	switch {
	case err == nil:
		j.state = JobCompleted
	case errors.Is(err, types.ErrCancelled):
		j.state = JobCancelled
	default:
		j.state = JobFailed
	}
}

// Jobs runs and tracks background jobs
type Jobs struct {
	ctx    context.Context
	logger types.Logger

	mu   sync.Mutex
	jobs map[string]*Job
}

// NewJobs creates a job tracker. Jobs run under ctx, cancelling it stops them.
func NewJobs(ctx context.Context, logger types.Logger) *Jobs {
	return &Jobs{ctx: ctx, logger: logger, jobs: map[string]*Job{}}
}

// Start runs the work on its own goroutine and returns at once
func (js *Jobs) Start(supplier string, run Runner) *Job {
	job := newJob(supplier)
	js.mu.Lock()
	js.jobs[job.id] = job
	js.mu.Unlock()

	js.launch(job, run)
	return job
}

// StartExclusive starts the work unless the supplier already has a running
// job, which is returned with false instead.
func (js *Jobs) StartExclusive(supplier string, run Runner) (*Job, bool) {
	js.mu.Lock()
	if active, busy := js.active(supplier); busy {
		js.mu.Unlock()
		return active, false
	}
	job := newJob(supplier)
	js.jobs[job.id] = job
	js.mu.Unlock()

	js.launch(job, run)
	return job, true
}

func newJob(supplier string) *Job {
	return &Job{
		id:        uuid.NewString(),
		supplier:  supplier,
		startedAt: time.Now(),
		state:     JobRunning,
		done:      make(chan struct{}),
	}
}

func (js *Jobs) launch(job *Job, run Runner) {
	supplier := job.supplier
	js.logger.Infof("Job %s started for %s", job.id, supplier)
	go func() {
		defer close(job.done)
		defer func() {
			if r := recover(); r != nil {
				js.logger.Errorf("Job %s panicked: %v", job.id, r)
				job.finish("", errors.New("internal error"))
			}
		}()

		path, err := run(js.ctx, job.callbacks())
		job.finish(path, err)
		if err != nil && !errors.Is(err, types.ErrCancelled) {
			js.logger.Errorf("Job %s for %s failed: %v", job.id, supplier, err)
			return
		}
		js.logger.Infof("Job %s for %s finished (%s)", job.id, supplier, job.Status().State)
	}()
}

// Get returns a job by id
func (js *Jobs) Get(id string) (*Job, bool) {
	js.mu.Lock()
	defer js.mu.Unlock()
	job, ok := js.jobs[id]
	return job, ok
}

// List returns a snapshot of every job, most recent first
func (js *Jobs) List() []JobStatus {
	js.mu.Lock()
	jobs := make([]*Job, 0, len(js.jobs))
	for _, job := range js.jobs {
		jobs = append(jobs, job)
	}
	js.mu.Unlock()

	statuses := make([]JobStatus, 0, len(jobs))
	for _, job := range jobs {
		statuses = append(statuses, job.Status())
	}
	sort.Slice(statuses, func(i, k int) bool { return statuses[i].StartedAt.After(statuses[k].StartedAt) })
	return statuses
}

// Active returns the running job of a supplier
func (js *Jobs) Active(supplier string) (*Job, bool) {
	js.mu.Lock()
	defer js.mu.Unlock()
	return js.active(supplier)
}

func (js *Jobs) active(supplier string) (*Job, bool) {
	for _, job := range js.jobs {
		if job.supplier == supplier && !job.finished() {
			return job, true
		}
	}
	return nil, false
}

// Shutdown cancels every job and waits for them to finish, or for ctx
func (js *Jobs) Shutdown(ctx context.Context) error {
	js.CancelAll()
	js.mu.Lock()
	jobs := lo.Values(js.jobs)
	js.mu.Unlock()

	for _, job := range jobs {
		select {
		case <-job.Done():
		case <-ctx.Done():
			return fmt.Errorf("jobs still running: %w", ctx.Err())
		}
	}
	return nil
}

// CancelAll asks every running job to stop
func (js *Jobs) CancelAll() {
	js.mu.Lock()
	defer js.mu.Unlock()
	for _, job := range js.jobs {
		job.Cancel()
	}
}
