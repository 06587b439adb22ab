package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type RunnerOptions struct {
	PollInterval  time.Duration
	MaxConcurrent int
	JobTimeout    time.Duration
}

// Runner polls for pending jobs and executes up to MaxConcurrent of them at
// a time.
type Runner struct {
	service      *Service
	repo         Repository
	logger       *slog.Logger
	pollInterval time.Duration
	jobTimeout   time.Duration

	slots   chan struct{}
	wg      sync.WaitGroup
	active  atomic.Int32
	running atomic.Bool
	paused  atomic.Bool
}

func NewRunner(service *Service, repo Repository, opts RunnerOptions, logger *slog.Logger) *Runner {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	return &Runner{
		service:      service,
		repo:         repo,
		logger:       logger,
		pollInterval: opts.PollInterval,
		jobTimeout:   opts.JobTimeout,
		slots:        make(chan struct{}, opts.MaxConcurrent),
	}
}

// Start blocks until ctx is cancelled, then waits for in-flight jobs.
func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("job runner started",
		"poll_interval", r.pollInterval,
		"max_concurrent", cap(r.slots))

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopping", "active_jobs", r.ActiveJobs())
			r.wg.Wait()
			r.running.Store(false)
			return
		case <-ticker.C:
			if !r.paused.Load() {
				r.RunOnce(ctx)
			}
		}
	}
}

// RunOnce claims as many pending jobs as there are free slots and starts
// them. It returns the number of jobs started.
func (r *Runner) RunOnce(ctx context.Context) int {
	free := cap(r.slots) - len(r.slots)
	if free <= 0 {
		return 0
	}

	pending, err := r.repo.ListPendingJobs(ctx, free)
	if err != nil {
		r.logger.Error("failed to list pending jobs", "error", err)
		return 0
	}

	started := 0
	for _, job := range pending {
		claimed, err := r.service.Claim(ctx, job)
		if err != nil {
			r.logger.Error("failed to claim job", "job_id", job.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}

		r.slots <- struct{}{}
		r.wg.Add(1)
		r.active.Add(1)
		started++

		go func(job *Job) {
			defer func() {
				r.active.Add(-1)
				<-r.slots
				r.wg.Done()
			}()
			r.execute(ctx, job)
		}(job)
	}
	return started
}

func (r *Runner) execute(ctx context.Context, job *Job) {
	jobCtx := ctx
	if r.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, r.jobTimeout)
		defer cancel()
	}

	r.logger.Info("processing job", "job_id", job.ID)

	if err := r.service.Run(jobCtx, job); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			r.logger.Warn("job timed out", "job_id", job.ID, "timeout", r.jobTimeout)
			return
		}
		r.logger.Debug("job finished with error", "job_id", job.ID, "error", err)
	}
}

// Wait blocks until every started job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("job runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("job runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

func (r *Runner) ActiveJobs() int {
	return int(r.active.Load())
}
