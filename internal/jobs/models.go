// Package jobs persists alignment jobs and executes them in the background.
package jobs

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Config keys stored in the config table.
const (
	ConfigAuthToken  = "auth_token"
	ConfigInstanceID = "instance_id"
)

type Job struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	SourceURI    string    `json:"source_uri"`
	S3Key        string    `json:"s3_key,omitempty"`
	SegmentCount int       `json:"segment_count"`
	Outcome      string    `json:"outcome,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Finished reports whether the job reached a terminal status.
func (j *Job) Finished() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

func NewID() string {
	return uuid.NewString()
}
