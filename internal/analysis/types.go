// Package analysis turns video analysis documents into flat shot and
// utterance lists that the aligner can work with.
package analysis

// Shot is a visually distinct interval of a video.
type Shot struct {
	StartMs       int64
	EndMs         int64
	StartTimecode string
	EndTimecode   string
}

// DurationMs returns the length of the shot in milliseconds.
func (s Shot) DurationMs() int64 {
	return s.EndMs - s.StartMs
}

// Utterance is a contiguous span of recognized speech.
type Utterance struct {
	StartMs int64
	EndMs   int64
	Text    string
}

// DurationMs returns the length of the utterance in milliseconds.
func (u Utterance) DurationMs() int64 {
	return u.EndMs - u.StartMs
}

// Source names the document grouping utterances were read from.
type Source string

const (
	SourceNone     Source = ""
	SourceScenes   Source = "scenes"
	SourceChapters Source = "chapters"
)

// utteranceSources lists the groupings in priority order. The first one that
// yields at least one utterance wins.
var utteranceSources = []Source{SourceScenes, SourceChapters}

// Normalized is the flat view of one analysis document.
type Normalized struct {
	Shots           []Shot
	Utterances      []Utterance
	UtteranceSource Source
	S3Key           string

	// Elements that were present but could not be decoded.
	SkippedShots      int
	SkippedUtterances int
}
