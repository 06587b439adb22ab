// Package export renders matched segments for editing tools.
package export

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/heimdex/heimdex-aligner/internal/align"
)

const (
	DefaultFrameRate = 30.0
	maxCommentRunes  = 240
	maxTitleRunes    = 80
)

// GenerateEDL renders a CMX3600 edit decision list with one event per
// segment. Source timecodes come from the shot boundaries and the record
// timeline is laid out back to back.
func GenerateEDL(segments []align.MatchedSegment, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = int(DefaultFrameRate)
		frameRate = DefaultFrameRate
	}

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame(frameRate) {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	var recordMs int64
	for i, seg := range segments {
		durationMs := seg.EndMs - seg.StartMs
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s",
				i+1, "AX", "V",
				msToTimecode(seg.StartMs, fps), msToTimecode(seg.EndMs, fps),
				msToTimecode(recordMs, fps), msToTimecode(recordMs+durationMs, fps)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", title),
		)
		if seg.StartTime != "" || seg.EndTime != "" {
			lines = append(lines, fmt.Sprintf("* SHOT:  %s - %s", seg.StartTime, seg.EndTime))
		}
		lines = append(lines, fmt.Sprintf("* COMMENT:  %s", commentText(seg.Transcript)))

		recordMs += durationMs
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// WriteEDL writes <title>.edl into dir and returns the file path.
func WriteEDL(dir, title string, segments []align.MatchedSegment, frameRate float64) (string, error) {
	if err := ValidateOutputDir(dir); err != nil {
		return "", err
	}

	name := SanitizeName(title, maxTitleRunes)
	if name == "" {
		name = "segments"
	}

	path := filepath.Join(dir, name+".edl")
	if err := os.WriteFile(path, []byte(GenerateEDL(segments, name, frameRate)), 0644); err != nil {
		return "", fmt.Errorf("write edl: %w", err)
	}
	return path, nil
}

func isDropFrame(frameRate float64) bool {
	return math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01
}

// commentText flattens a transcript onto a single EDL comment line.
func commentText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > maxCommentRunes {
		s = string(runes[:maxCommentRunes-3]) + "..."
	}
	return s
}

func msToTimecode(ms int64, fps int) string {
	if ms < 0 {
		ms = 0
	}
	totalFrames := int64(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % int64(fps)
	totalSeconds := totalFrames / int64(fps)
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
