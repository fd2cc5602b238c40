// Package jobs runs background units of work with cancellation, progress
// reporting and a result channel. Job state is persisted through a
// ports.JobStatusStore so other processes can poll it.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/core/ports"
)

// ProgressFunc reports completion in percent (0-100).
type ProgressFunc func(percent float64)

// HandlerFunc executes one job request.
type HandlerFunc func(ctx context.Context, req domain.JobRequest, progress ProgressFunc) (any, error)

// Observer receives job lifecycle events, typically metrics.
type Observer interface {
	StartJob(kind string)
	FinishJob(kind string, duration time.Duration, err error)
	ObserveQueueLag(kind string, lag time.Duration)
}

// Outcome is delivered once on a job's result channel.
type Outcome struct {
	Result any
	Err    error
}

type Runner struct {
	statuses ports.JobStatusStore
	handlers map[domain.JobKind]HandlerFunc
	observer Observer
	logger   *slog.Logger
	slots    chan struct{}
	now      func() time.Time

	mu      sync.Mutex
	running map[string]*Job
}

func NewRunner(
	statuses ports.JobStatusStore,
	handlers map[domain.JobKind]HandlerFunc,
	concurrency int,
	observer Observer,
	logger *slog.Logger,
) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		statuses: statuses,
		handlers: handlers,
		observer: observer,
		logger:   logger,
		slots:    make(chan struct{}, concurrency),
		now:      time.Now,
		running:  make(map[string]*Job),
	}
}

// Job is a submitted unit of work.
type Job struct {
	req    domain.JobRequest
	cancel context.CancelFunc
	result chan Outcome

	mu       sync.Mutex
	progress float64
	state    domain.JobState
}

func (j *Job) ID() string { return j.req.ID }

// Cancel signals the job's context. Work already past its cancellation points completes.
func (j *Job) Cancel() { j.cancel() }

// Result yields exactly one Outcome when the job finishes.
func (j *Job) Result() <-chan Outcome { return j.result }

func (j *Job) Progress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

func (j *Job) State() domain.JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Wait blocks until the job finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) (any, error) {
	select {
	case out := <-j.result:
		return out.Result, out.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Submit starts req in the background. Unknown kinds are rejected up front.
func (r *Runner) Submit(ctx context.Context, req domain.JobRequest) (*Job, error) {
	handler, ok := r.handlers[req.Kind]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit job", fmt.Errorf("unknown job kind %q", req.Kind))
	}
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = r.now().UTC()
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		req:    req,
		cancel: cancel,
		result: make(chan Outcome, 1),
		state:  domain.JobQueued,
	}

	r.mu.Lock()
	r.running[req.ID] = job
	r.mu.Unlock()

	r.persist(ctx, job, "", nil)
	go r.run(jobCtx, job, handler)
	return job, nil
}

// Cancel cancels a running job by id.
func (r *Runner) Cancel(id string) bool {
	r.mu.Lock()
	job, ok := r.running[id]
	r.mu.Unlock()
	if ok {
		job.Cancel()
	}
	return ok
}

func (r *Runner) run(ctx context.Context, job *Job, handler HandlerFunc) {
	defer job.cancel()
	defer func() {
		r.mu.Lock()
		delete(r.running, job.req.ID)
		r.mu.Unlock()
	}()

	select {
	case r.slots <- struct{}{}:
		defer func() { <-r.slots }()
	case <-ctx.Done():
		r.finish(job, nil, ctx.Err(), 0, false)
		return
	}

	kind := string(job.req.Kind)
	started := r.now()
	if r.observer != nil {
		r.observer.ObserveQueueLag(kind, started.Sub(job.req.EnqueuedAt))
		r.observer.StartJob(kind)
	}
	job.mu.Lock()
	job.state = domain.JobRunning
	job.mu.Unlock()
	r.persist(ctx, job, "", nil)

	progress := func(percent float64) {
		job.mu.Lock()
		if percent <= job.progress {
			job.mu.Unlock()
			return
		}
		if percent > 100 {
			percent = 100
		}
		job.progress = percent
		job.mu.Unlock()
		r.persist(ctx, job, "", nil)
	}

	result, err := r.invoke(ctx, job, handler, progress)
	r.finish(job, result, err, r.now().Sub(started), true)
}

func (r *Runner) invoke(ctx context.Context, job *Job, handler HandlerFunc, progress ProgressFunc) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", job.req.ID, rec)
		}
	}()
	return handler(ctx, job.req, progress)
}

func (r *Runner) finish(job *Job, result any, err error, duration time.Duration, started bool) {
	state := domain.JobSucceeded
	switch {
	case err != nil && ctxErr(err):
		state = domain.JobCanceled
	case err != nil:
		state = domain.JobFailed
	}

	job.mu.Lock()
	job.state = state
	if state == domain.JobSucceeded {
		job.progress = 100
	}
	job.mu.Unlock()

	if r.observer != nil && started {
		r.observer.FinishJob(string(job.req.Kind), duration, err)
	}

	errMessage := ""
	if err != nil {
		errMessage = err.Error()
		r.logger.Error("job_failed", "job_id", job.req.ID, "kind", job.req.Kind, "state", state, "error", err)
	} else {
		r.logger.Info("job_finished", "job_id", job.req.ID, "kind", job.req.Kind, "duration_ms", duration.Milliseconds())
	}
	r.persist(context.Background(), job, errMessage, result)
	job.result <- Outcome{Result: result, Err: err}
}

func ctxErr(err error) bool {
	return domain.IsKind(err, context.Canceled) || domain.IsKind(err, context.DeadlineExceeded)
}

func (r *Runner) persist(ctx context.Context, job *Job, errMessage string, result any) {
	if r.statuses == nil {
		return
	}
	job.mu.Lock()
	status := domain.JobStatus{
		ID:        job.req.ID,
		Kind:      job.req.Kind,
		State:     job.state,
		Progress:  job.progress,
		Error:     errMessage,
		CreatedAt: job.req.EnqueuedAt,
		UpdatedAt: r.now().UTC(),
	}
	job.mu.Unlock()

	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			r.logger.Warn("job_result_marshal_failed", "job_id", job.req.ID, "error", err)
		} else {
			status.Result = raw
		}
	}
	if err := r.statuses.SaveJobStatus(context.WithoutCancel(ctx), status); err != nil {
		r.logger.Warn("job_status_save_failed", "job_id", job.req.ID, "error", err)
	}
}
