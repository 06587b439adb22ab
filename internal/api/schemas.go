package api

import (
	"time"

	"github.com/heimdex/heimdex-aligner/internal/align"
	"github.com/heimdex/heimdex-aligner/internal/jobs"
	"github.com/heimdex/heimdex-aligner/internal/pipeline"
)

type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	UptimeS    int64  `json:"uptime_s"`
	InstanceID string `json:"instance_id"`
}

type StatusResponse struct {
	State      string         `json:"state"`
	ActiveJobs int            `json:"active_jobs"`
	Jobs       map[string]int `json:"jobs"`
	LastError  string         `json:"last_error,omitempty"`
}

type AlignResponse struct {
	Status   pipeline.Status        `json:"status"`
	Segments []align.MatchedSegment `json:"segments"`
	S3Key    string                 `json:"s3_key"`
	Stats    StatsResponse          `json:"stats"`
}

type StatsResponse struct {
	Shots                int    `json:"shots"`
	Utterances           int    `json:"utterances"`
	UtteranceSource      string `json:"utterance_source,omitempty"`
	SkippedShots         int    `json:"skipped_shots"`
	SkippedUtterances    int    `json:"skipped_utterances"`
	ShortShots           int    `json:"short_shots"`
	UnmatchedShots       int    `json:"unmatched_shots"`
	UnassignedUtterances int    `json:"unassigned_utterances"`
}

type SubmitJobRequest struct {
	SourceURI string `json:"source_uri"`
	S3Key     string `json:"s3_key,omitempty"`
}

type SubmitJobResponse struct {
	JobID string `json:"job_id"`
}

type JobResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	SourceURI    string `json:"source_uri"`
	S3Key        string `json:"s3_key,omitempty"`
	Outcome      string `json:"outcome,omitempty"`
	SegmentCount int    `json:"segment_count"`
	Error        string `json:"error,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type RunnerResponse struct {
	Paused bool `json:"paused"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func JobToResponse(j *jobs.Job) JobResponse {
	return JobResponse{
		ID:           j.ID,
		Status:       j.Status,
		SourceURI:    j.SourceURI,
		S3Key:        j.S3Key,
		Outcome:      j.Outcome,
		SegmentCount: j.SegmentCount,
		Error:        j.Error,
		CreatedAt:    j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    j.UpdatedAt.Format(time.RFC3339),
	}
}

func ResultToResponse(res pipeline.Result) AlignResponse {
	return AlignResponse{
		Status:   res.Status,
		Segments: res.Output.Segments,
		S3Key:    res.Output.S3Key,
		Stats: StatsResponse{
			Shots:                res.Stats.Shots,
			Utterances:           res.Stats.Utterances,
			UtteranceSource:      string(res.Stats.UtteranceSource),
			SkippedShots:         res.Stats.SkippedShots,
			SkippedUtterances:    res.Stats.SkippedUtterances,
			ShortShots:           res.Stats.ShortShots,
			UnmatchedShots:       res.Stats.UnmatchedShots,
			UnassignedUtterances: res.Stats.UnassignedUtterances,
		},
	}
}
