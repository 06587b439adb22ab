// Package pipeline runs one analysis document through normalization,
// matching and assembly and reports a tagged outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/heimdex/heimdex-aligner/internal/align"
	"github.com/heimdex/heimdex-aligner/internal/analysis"
	"github.com/heimdex/heimdex-aligner/internal/logging"
)

// Status is the outcome tag of a processing run.
type Status string

const (
	StatusSegments Status = "segments"
	StatusEmpty    Status = "empty"
	StatusFailed   Status = "failed"
)

// ErrPanic wraps a panic recovered while processing a document.
var ErrPanic = errors.New("alignment panicked")

type Pipeline interface {
	Process(ctx context.Context, jobID string, raw []byte, keyOverride string) Result
}

// Stats describes what happened to the elements of a document.
type Stats struct {
	Shots                int
	Utterances           int
	UtteranceSource      analysis.Source
	SkippedShots         int
	SkippedUtterances    int
	ShortShots           int
	UnmatchedShots       int
	UnassignedUtterances int
}

type Result struct {
	Status Status
	Output align.Output
	Stats  Stats
	Err    error
}

// ErrorMessage returns the failure cause, or an empty string.
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func failed(err error) Result {
	return Result{
		Status: StatusFailed,
		Output: align.Assemble(nil, ""),
		Err:    err,
	}
}

type Processor struct {
	logger *slog.Logger
	align  func([]analysis.Shot, []analysis.Utterance) align.Report
}

func NewProcessor(logger *slog.Logger) *Processor {
	return &Processor{
		logger: logging.WithComponent(logger, "pipeline"),
		align:  align.Align,
	}
}

// Process aligns one raw analysis document. A non-empty keyOverride replaces
// the storage key found in the document's metadata.
func (p *Processor) Process(ctx context.Context, jobID string, raw []byte, keyOverride string) (result Result) {
	logger := logging.WithJobID(p.logger, jobID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("recovered from panic during alignment",
				"panic", r,
				"stack", string(debug.Stack()))
			result = failed(fmt.Errorf("%w: %v", ErrPanic, r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return failed(err)
	}

	doc, err := analysis.Normalize(raw)
	if err != nil {
		logger.Warn("analysis document rejected", "error", err)
		return failed(fmt.Errorf("failed to normalize document: %w", err))
	}

	report := p.align(doc.Shots, doc.Utterances)

	key := doc.S3Key
	if keyOverride != "" {
		key = keyOverride
	}

	result = Result{
		Output: align.Assemble(report.Segments, key),
		Stats: Stats{
			Shots:                len(doc.Shots),
			Utterances:           len(doc.Utterances),
			UtteranceSource:      doc.UtteranceSource,
			SkippedShots:         doc.SkippedShots,
			SkippedUtterances:    doc.SkippedUtterances,
			ShortShots:           report.ShortShots,
			UnmatchedShots:       report.UnmatchedShots,
			UnassignedUtterances: report.Assignment.UnassignedCount(),
		},
	}
	if len(result.Output.Segments) == 0 {
		result.Status = StatusEmpty
	} else {
		result.Status = StatusSegments
	}

	logger.Info("alignment finished",
		"status", result.Status,
		"segments", len(result.Output.Segments),
		"shots", result.Stats.Shots,
		"utterances", result.Stats.Utterances,
		"utterance_source", result.Stats.UtteranceSource,
		"short_shots", result.Stats.ShortShots,
		"unassigned_utterances", result.Stats.UnassignedUtterances)
	if doc.SkippedShots > 0 || doc.SkippedUtterances > 0 {
		logger.Warn("skipped undecodable elements",
			"shots", doc.SkippedShots,
			"utterances", doc.SkippedUtterances)
	}

	return result
}
