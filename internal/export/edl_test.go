package export

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/heimdex/heimdex-aligner/internal/align"
)

func TestGenerateEDL_SingleSegment(t *testing.T) {
	segments := []align.MatchedSegment{{
		StartTime:  "00:00:00:00",
		EndTime:    "00:00:02:00",
		Transcript: "hello\nthere",
		StartMs:    0,
		EndMs:      2000,
	}}

	edl := GenerateEDL(segments, "Keynote", 30.0)

	for _, want := range []string{
		"TITLE: Keynote",
		"FCM: NON-DROP FRAME",
		"001  AX       V     C        00:00:00:00 00:00:02:00 00:00:00:00 00:00:02:00",
		"* FROM CLIP NAME:  Keynote",
		"* SHOT:  00:00:00:00 - 00:00:02:00",
		"* COMMENT:  hello there",
	} {
		if !strings.Contains(edl, want) {
			t.Errorf("missing %q in EDL:\n%s", want, edl)
		}
	}
}

func TestGenerateEDL_RecordTimelineIsContiguous(t *testing.T) {
	segments := []align.MatchedSegment{
		{Transcript: "a", StartMs: 5000, EndMs: 6000},
		{Transcript: "b", StartMs: 10000, EndMs: 11500},
	}

	edl := GenerateEDL(segments, "Multi", 30.0)

	if !strings.Contains(edl, "001  AX       V     C        00:00:05:00 00:00:06:00 00:00:00:00 00:00:01:00") {
		t.Fatalf("first event line mismatch:\n%s", edl)
	}
	if !strings.Contains(edl, "002  AX       V     C        00:00:10:00 00:00:11:15 00:00:01:00 00:00:02:15") {
		t.Fatalf("second event line mismatch or bad record offset:\n%s", edl)
	}
	if strings.Contains(edl, "* SHOT:") {
		t.Errorf("segments without timecodes should not get a SHOT line:\n%s", edl)
	}
}

func TestGenerateEDL_FrameRates(t *testing.T) {
	segs := []align.MatchedSegment{{Transcript: "x", StartMs: 0, EndMs: 1000}}

	if edl := GenerateEDL(segs, "Drop", 29.97); !strings.Contains(edl, "FCM: DROP FRAME") {
		t.Errorf("expected drop frame FCM, got:\n%s", edl)
	}
	if edl := GenerateEDL(segs, "Default", 0); !strings.Contains(edl, "00:00:00:00 00:00:01:00") {
		t.Errorf("zero frame rate should fall back to the default, got:\n%s", edl)
	}
}

func TestGenerateEDL_LongTranscriptTruncated(t *testing.T) {
	segs := []align.MatchedSegment{{Transcript: strings.Repeat("word ", 200), StartMs: 0, EndMs: 1000}}

	edl := GenerateEDL(segs, "Long", 25)
	for _, line := range strings.Split(edl, "\n") {
		if strings.HasPrefix(line, "* COMMENT:") {
			text := strings.TrimPrefix(line, "* COMMENT:  ")
			if len([]rune(text)) != maxCommentRunes || !strings.HasSuffix(text, "...") {
				t.Errorf("comment length = %d, want %d with ellipsis", len([]rune(text)), maxCommentRunes)
			}
			return
		}
	}
	t.Fatal("no COMMENT line in EDL")
}

func TestMsToTimecode(t *testing.T) {
	tests := []struct {
		ms   int64
		fps  int
		want string
	}{
		{0, 30, "00:00:00:00"},
		{1000, 30, "00:00:01:00"},
		{1500, 30, "00:00:01:15"},
		{3723000, 25, "01:02:03:00"},
		{-40, 30, "00:00:00:00"},
	}

	for _, tc := range tests {
		if got := msToTimecode(tc.ms, tc.fps); got != tc.want {
			t.Errorf("msToTimecode(%d, %d) = %s, want %s", tc.ms, tc.fps, got, tc.want)
		}
	}
}

func TestWriteEDL(t *testing.T) {
	dir := t.TempDir()
	segs := []align.MatchedSegment{{Transcript: "hi", StartMs: 0, EndMs: 2000}}

	path, err := WriteEDL(dir, "My Talk: Part 1", segs, 30)
	if err != nil {
		t.Fatalf("WriteEDL() error = %v", err)
	}
	if path != filepath.Join(dir, "My Talk_ Part 1.edl") {
		t.Errorf("path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "TITLE: My Talk_ Part 1\n") {
		t.Errorf("unexpected EDL contents:\n%s", data)
	}

	path, err = WriteEDL(dir, "<>", segs, 30)
	if err != nil {
		t.Fatalf("WriteEDL() error = %v", err)
	}
	if filepath.Base(path) != "__.edl" {
		t.Errorf("path = %s", path)
	}

	path, err = WriteEDL(dir, "", segs, 30)
	if err != nil {
		t.Fatalf("WriteEDL() error = %v", err)
	}
	if filepath.Base(path) != "segments.edl" {
		t.Errorf("blank title path = %s, want segments.edl", path)
	}

	if _, err := WriteEDL(filepath.Join(dir, "missing"), "x", segs, 30); !errors.Is(err, ErrInvalidOutputDir) {
		t.Errorf("WriteEDL(missing dir) error = %v, want ErrInvalidOutputDir", err)
	}
}
