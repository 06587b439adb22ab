package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-aligner/internal/align"
	"github.com/heimdex/heimdex-aligner/internal/logging"
	"github.com/heimdex/heimdex-aligner/internal/pipeline"
)

const (
	formatJSON  = "json"
	formatTable = "table"

	maxTranscriptColumn = 60
)

func newAlignCommand() *cobra.Command {
	var s3Key string
	var format string

	cmd := &cobra.Command{
		Use:   "align FILE",
		Short: "Align one analysis document and print the segments",
		Long:  "Align one analysis document and print the segments. Use - to read from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" {
				format = formatJSON
				if isTerminal(cmd.OutOrStdout()) {
					format = formatTable
				}
			}
			if format != formatJSON && format != formatTable {
				return fmt.Errorf("unknown format %q (want json or table)", format)
			}

			res, err := processFile(cmd, args[0], s3Key)
			if err != nil {
				return err
			}

			if format == formatTable {
				printSegmentTable(cmd.OutOrStdout(), res)
				return nil
			}
			if res.Status == pipeline.StatusEmpty {
				fmt.Fprintln(cmd.ErrOrStderr(), "no segments found")
			}
			return writeJSON(cmd, res.Output)
		},
	}

	cmd.Flags().StringVar(&s3Key, "s3-key", "", "Override the storage key of the source video")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: json or table (default table on a terminal)")
	return cmd
}

// processFile runs the document at path through the pipeline. A failed run
// is returned as an error.
func processFile(cmd *cobra.Command, path, s3Key string) (pipeline.Result, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return pipeline.Result{}, err
	}

	logger := logging.New(cmd.ErrOrStderr(), "warn")
	res := pipeline.NewProcessor(logger).Process(cmd.Context(), "cli", data, s3Key)
	if res.Status == pipeline.StatusFailed {
		return res, fmt.Errorf("alignment failed: %s", res.ErrorMessage())
	}
	return res, nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func printSegmentTable(w io.Writer, res pipeline.Result) {
	if res.Status == pipeline.StatusEmpty {
		fmt.Fprintln(w, "no segments found")
	} else {
		fmt.Fprintln(w, renderTable(
			[]string{"#", "Start", "End", "Length", "Transcript"},
			segmentRows(res.Output.Segments),
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
		))
	}

	s := res.Stats
	source := string(s.UtteranceSource)
	if source == "" {
		source = "none"
	}
	fmt.Fprintf(w, "%s shots, %s utterances from %s, %s segments",
		humanize.Comma(int64(s.Shots)),
		humanize.Comma(int64(s.Utterances)),
		source,
		humanize.Comma(int64(len(res.Output.Segments))))
	if s.ShortShots > 0 {
		fmt.Fprintf(w, ", %d short shots", s.ShortShots)
	}
	if s.UnassignedUtterances > 0 {
		fmt.Fprintf(w, ", %d unassigned utterances", s.UnassignedUtterances)
	}
	fmt.Fprintln(w)
	if res.Output.S3Key != "" {
		fmt.Fprintf(w, "s3 key: %s\n", res.Output.S3Key)
	}
}

func segmentRows(segments []align.MatchedSegment) [][]string {
	rows := make([][]string, 0, len(segments))
	for i, seg := range segments {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			seg.StartTime,
			seg.EndTime,
			(time.Duration(seg.EndMs-seg.StartMs) * time.Millisecond).String(),
			truncate(seg.Transcript, maxTranscriptColumn),
		})
	}
	return rows
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}
