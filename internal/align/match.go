// Package align matches speech utterances to video shots.
//
// Every utterance is awarded to at most one shot. Shots are visited in
// ascending start order and an utterance goes to the first shot that holds
// more than half of the utterance's own duration, so an earlier shot always
// wins a tie with a later one.
package align

import (
	"sort"
	"strings"

	"github.com/heimdex/heimdex-aligner/internal/analysis"
)

// MinShotDurationMs is the shortest shot that can be emitted.
const MinShotDurationMs = 1000

// Unassigned marks an utterance that no shot consumed.
const Unassigned = -1

// MatchedSegment is one shot paired with the narration spoken during it.
type MatchedSegment struct {
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Transcript string `json:"transcript"`

	StartMs    int64 `json:"-"`
	EndMs      int64 `json:"-"`
	Utterances []int `json:"-"`
}

// Assignment maps each utterance index to the index of the shot that consumed
// it, in the caller's original shot order, or to Unassigned.
type Assignment []int

// UnassignedCount returns how many utterances no shot consumed.
func (a Assignment) UnassignedCount() int {
	n := 0
	for _, shot := range a {
		if shot == Unassigned {
			n++
		}
	}
	return n
}

// Report is the full outcome of one matching pass.
type Report struct {
	Segments   []MatchedSegment
	Assignment Assignment

	ShortShots     int
	UnmatchedShots int
}

// Match returns the matched segments for shots and utterances.
func Match(shots []analysis.Shot, utterances []analysis.Utterance) []MatchedSegment {
	return Align(shots, utterances).Segments
}

// Align runs a matching pass and returns the segments together with the
// assignment record. Neither input slice is modified.
func Align(shots []analysis.Shot, utterances []analysis.Utterance) Report {
	report := Report{
		Segments:   []MatchedSegment{},
		Assignment: make(Assignment, len(utterances)),
	}
	for i := range report.Assignment {
		report.Assignment[i] = Unassigned
	}

	order := make([]int, len(shots))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return shots[order[a]].StartMs < shots[order[b]].StartMs
	})

	for _, shotIdx := range order {
		shot := shots[shotIdx]
		if shot.DurationMs() < MinShotDurationMs {
			report.ShortShots++
			continue
		}

		var texts []string
		var consumed []int
		for uttIdx, utt := range utterances {
			if report.Assignment[uttIdx] != Unassigned {
				continue
			}
			if !Qualifies(shot, utt) {
				continue
			}
			report.Assignment[uttIdx] = shotIdx
			texts = append(texts, utt.Text)
			consumed = append(consumed, uttIdx)
		}

		transcript := strings.TrimSpace(strings.Join(texts, " "))
		if transcript == "" {
			report.UnmatchedShots++
			continue
		}

		report.Segments = append(report.Segments, MatchedSegment{
			StartTime:  shot.StartTimecode,
			EndTime:    shot.EndTimecode,
			Transcript: transcript,
			StartMs:    shot.StartMs,
			EndMs:      shot.EndMs,
			Utterances: consumed,
		})
	}

	return report
}

// Overlap returns the milliseconds during which both intervals run. The
// second value is false when the intervals do not touch.
func Overlap(shot analysis.Shot, utt analysis.Utterance) (int64, bool) {
	if utt.StartMs > shot.EndMs || utt.EndMs < shot.StartMs {
		return 0, false
	}
	return min(shot.EndMs, utt.EndMs) - max(shot.StartMs, utt.StartMs), true
}

// Qualifies reports whether more than half of the utterance falls inside the
// shot. Utterances with zero or negative duration never qualify. The
// comparison is done in integers, so exactly half does not qualify, and is
// written without doubling so it cannot overflow.
func Qualifies(shot analysis.Shot, utt analysis.Utterance) bool {
	duration := utt.DurationMs()
	if duration <= 0 {
		return false
	}
	overlap, ok := Overlap(shot, utt)
	if !ok {
		return false
	}
	return overlap > duration-overlap
}
