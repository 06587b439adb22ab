package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/heimdex/heimdex-aligner/internal/align"
)

// DeliveryError is returned when the downstream endpoint answers with a
// non-2xx status.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("downstream delivery failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx). Client errors are
// permanent.
func (e *DeliveryError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// HTTPClient POSTs the output contract as JSON to a single endpoint.
type HTTPClient struct {
	endpoint   string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(endpoint, token string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		token:    token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (c *HTTPClient) Deliver(ctx context.Context, jobID string, out align.Output) error {
	body, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Aligner-Job-Id", jobID)
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Info("delivering alignment output",
		"url", c.endpoint,
		"job_id", jobID,
		"segment_count", len(out.Segments),
		"body_size", humanize.Bytes(uint64(len(body))))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Info("delivery accepted", "job_id", jobID, "status", resp.StatusCode)
		return nil
	}

	return &DeliveryError{StatusCode: resp.StatusCode, Body: string(respBody)}
}
