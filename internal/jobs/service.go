package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/heimdex/heimdex-aligner/internal/align"
	"github.com/heimdex/heimdex-aligner/internal/analysis"
	"github.com/heimdex/heimdex-aligner/internal/downstream"
	"github.com/heimdex/heimdex-aligner/internal/logging"
	"github.com/heimdex/heimdex-aligner/internal/pipeline"
	"github.com/heimdex/heimdex-aligner/internal/storage"
)

var (
	ErrSourceRequired = errors.New("source uri is required")
	ErrJobNotPending  = errors.New("job is not pending")
	ErrJobNotFinished = errors.New("job has not finished")
	ErrJobFailed      = errors.New("job failed")
)

// JobService is the surface the HTTP API and CLI use.
type JobService interface {
	Submit(ctx context.Context, sourceURI, s3Key string) (*Job, error)
	Align(ctx context.Context, raw []byte, s3Key string) pipeline.Result
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	CountJobs(ctx context.Context) (map[string]int, error)
	GetResult(ctx context.Context, id string) (*align.Output, error)
}

type Service struct {
	repo       Repository
	store      storage.ObjectStore
	processor  pipeline.Pipeline
	downstream downstream.Client
	logger     *slog.Logger
}

// NewService wires the job service. client may be nil, in which case results
// are only stored.
func NewService(repo Repository, store storage.ObjectStore, processor pipeline.Pipeline, client downstream.Client, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		store:      store,
		processor:  processor,
		downstream: client,
		logger:     logger,
	}
}

// Submit records a pending job for the document at sourceURI. A non-empty
// s3Key overrides the key carried in the document.
func (s *Service) Submit(ctx context.Context, sourceURI, s3Key string) (*Job, error) {
	sourceURI = strings.TrimSpace(sourceURI)
	if sourceURI == "" {
		return nil, ErrSourceRequired
	}

	ts := time.Now()
	job := &Job{
		ID:        NewID(),
		Status:    StatusPending,
		SourceURI: sourceURI,
		S3Key:     strings.TrimSpace(s3Key),
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Info("job submitted", "job_id", job.ID, "source_uri", logging.SanitizePath(sourceURI))
	return job, nil
}

// Execute claims a pending job and runs it to completion.
func (s *Service) Execute(ctx context.Context, job *Job) error {
	claimed, err := s.Claim(ctx, job)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrJobNotPending
	}
	return s.Run(ctx, job)
}

func (s *Service) Claim(ctx context.Context, job *Job) (bool, error) {
	claimed, err := s.repo.ClaimJob(ctx, job.ID)
	if err != nil {
		return false, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
	}
	if claimed {
		job.Status = StatusRunning
	}
	return claimed, nil
}

// Run executes a job that has already been claimed. The returned error is
// the job's failure cause; the job row is updated either way.
func (s *Service) Run(ctx context.Context, job *Job) error {
	logger := logging.WithJobID(s.logger, job.ID)
	started := time.Now()

	// Bookkeeping must land even when the job's own context has expired.
	writeCtx := context.WithoutCancel(ctx)

	data, err := s.fetch(ctx, logger, job.SourceURI)
	if err != nil {
		s.fail(writeCtx, logger, job, err)
		return err
	}

	res := s.processor.Process(ctx, job.ID, data, job.S3Key)
	if res.Status == pipeline.StatusFailed {
		s.fail(writeCtx, logger, job, res.Err)
		return res.Err
	}

	if err := s.repo.CompleteJob(writeCtx, job.ID, string(res.Status), res.Output.S3Key, res.Output.Segments); err != nil {
		err = fmt.Errorf("failed to store result: %w", err)
		s.fail(writeCtx, logger, job, err)
		return err
	}
	job.Status = StatusCompleted
	job.Outcome = string(res.Status)
	job.SegmentCount = len(res.Output.Segments)

	logger.Info("job completed",
		"outcome", res.Status,
		"segment_count", job.SegmentCount,
		"duration", time.Since(started))

	if res.Status == pipeline.StatusSegments && s.downstream != nil {
		if err := s.downstream.Deliver(ctx, job.ID, res.Output); err != nil {
			var deliveryErr *downstream.DeliveryError
			if errors.As(err, &deliveryErr) {
				logger.Error("downstream rejected output",
					"status", deliveryErr.StatusCode,
					"retryable", deliveryErr.IsRetryable())
			} else {
				logger.Error("downstream delivery failed", "error", err)
			}
		}
	}

	return nil
}

func (s *Service) fail(ctx context.Context, logger *slog.Logger, job *Job, cause error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if err := s.repo.FailJob(ctx, job.ID, msg); err != nil {
		logger.Error("failed to record job failure", "error", err)
	}
	job.Status = StatusFailed
	job.Outcome = string(pipeline.StatusFailed)
	job.Error = msg
	logger.Warn("job failed", "error", msg)
}

// fetch reads the analysis document. When the URI points at job metadata the
// standard output it references is read instead.
func (s *Service) fetch(ctx context.Context, logger *slog.Logger, uri string) ([]byte, error) {
	data, err := s.store.Get(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", uri, err)
	}

	if analysis.IsJobMetadata(data) {
		target, err := analysis.ResolveStandardOutput(data)
		if err != nil {
			return nil, err
		}
		logger.Info("resolved job metadata", "standard_output", target)
		data, err = s.store.Get(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
		}
	}

	logger.Debug("fetched analysis document", "size", humanize.Bytes(uint64(len(data))))
	return data, nil
}

// Align processes a document synchronously without creating a job.
func (s *Service) Align(ctx context.Context, raw []byte, s3Key string) pipeline.Result {
	return s.processor.Process(ctx, "sync-"+NewID(), raw, s3Key)
}

func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.GetJob(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	return s.repo.ListJobs(ctx, limit)
}

func (s *Service) CountJobs(ctx context.Context) (map[string]int, error) {
	return s.repo.CountJobsByStatus(ctx)
}

// GetResult returns the output contract of a completed job, or nil when the
// job does not exist.
func (s *Service) GetResult(ctx context.Context, id string) (*align.Output, error) {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	switch job.Status {
	case StatusCompleted:
	case StatusFailed:
		return nil, fmt.Errorf("%w: %s", ErrJobFailed, job.Error)
	default:
		return nil, ErrJobNotFinished
	}

	segments, err := s.repo.GetSegments(ctx, id)
	if err != nil {
		return nil, err
	}
	out := align.Assemble(segments, job.S3Key)
	return &out, nil
}
