// Package downstream hands alignment output to the next pipeline stage.
package downstream

import (
	"context"
	"log/slog"

	"github.com/heimdex/heimdex-aligner/internal/align"
)

type Client interface {
	Deliver(ctx context.Context, jobID string, out align.Output) error
}

// StubClient is used when no downstream endpoint is configured.
type StubClient struct {
	logger *slog.Logger
}

func NewStubClient(logger *slog.Logger) *StubClient {
	return &StubClient{logger: logger}
}

func (c *StubClient) Deliver(ctx context.Context, jobID string, out align.Output) error {
	c.logger.Info("downstream stub: delivery requested (no endpoint configured)",
		"job_id", jobID,
		"s3_key", out.S3Key,
		"segment_count", len(out.Segments))
	return nil
}
