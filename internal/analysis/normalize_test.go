package analysis

import (
	"errors"
	"testing"
)

func TestNormalize_ShotsAndScenes(t *testing.T) {
	doc := []byte(`{
		"shots": [
			{"start_timestamp_millis": 0, "end_timestamp_millis": 2000, "start_timecode_smpte": "00:00:00:00", "end_timecode_smpte": "00:00:02:00"},
			{"start_timestamp_millis": 2000, "end_timestamp_millis": 4000, "start_timecode_smpte": "00:00:02:00", "end_timecode_smpte": "00:00:04:00"}
		],
		"scenes": [
			{"audio_segments": [{"start_timestamp_millis": 100, "end_timestamp_millis": 900, "text": "one"}, {"start_timestamp_millis": 1000, "end_timestamp_millis": 1900, "text": "two"}]},
			{"audio_segments": [{"start_timestamp_millis": 2100, "end_timestamp_millis": 3900, "text": "three"}]}
		],
		"metadata": {"s3_key": "talk.mp4"}
	}`)

	got, err := Normalize(doc)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if len(got.Shots) != 2 {
		t.Fatalf("shots = %d, want 2", len(got.Shots))
	}
	if got.Shots[1].StartTimecode != "00:00:02:00" || got.Shots[1].EndMs != 4000 {
		t.Errorf("shot[1] = %+v", got.Shots[1])
	}

	wantTexts := []string{"one", "two", "three"}
	if len(got.Utterances) != len(wantTexts) {
		t.Fatalf("utterances = %d, want %d", len(got.Utterances), len(wantTexts))
	}
	for i, want := range wantTexts {
		if got.Utterances[i].Text != want {
			t.Errorf("utterance[%d].Text = %q, want %q", i, got.Utterances[i].Text, want)
		}
	}
	if got.UtteranceSource != SourceScenes {
		t.Errorf("UtteranceSource = %q, want %q", got.UtteranceSource, SourceScenes)
	}
	if got.S3Key != "talk.mp4" {
		t.Errorf("S3Key = %q, want talk.mp4", got.S3Key)
	}
}

func TestNormalize_ChaptersFallback(t *testing.T) {
	doc := []byte(`{
		"scenes": [{"audio_segments": []}, {}],
		"chapters": [
			{"audio_segments": [{"start_timestamp_millis": 0, "end_timestamp_millis": 500, "text": "a"}]},
			{"audio_segments": [{"start_timestamp_millis": 600, "end_timestamp_millis": 900, "text": "b"}]}
		]
	}`)

	got, err := Normalize(doc)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.UtteranceSource != SourceChapters {
		t.Fatalf("UtteranceSource = %q, want %q", got.UtteranceSource, SourceChapters)
	}
	if len(got.Utterances) != 2 || got.Utterances[0].Text != "a" || got.Utterances[1].Text != "b" {
		t.Fatalf("utterances = %+v", got.Utterances)
	}
}

func TestNormalize_ScenesWinOverChapters(t *testing.T) {
	doc := []byte(`{
		"scenes": [{"audio_segments": [{"start_timestamp_millis": 0, "end_timestamp_millis": 500, "text": "from scenes"}]}],
		"chapters": [{"audio_segments": [{"start_timestamp_millis": 0, "end_timestamp_millis": 500, "text": "from chapters"}]}]
	}`)

	got, err := Normalize(doc)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(got.Utterances) != 1 || got.Utterances[0].Text != "from scenes" {
		t.Fatalf("utterances = %+v, want scenes data kept", got.Utterances)
	}
	if got.UtteranceSource != SourceScenes {
		t.Errorf("UtteranceSource = %q, want %q", got.UtteranceSource, SourceScenes)
	}
}

func TestNormalize_MissingKeys(t *testing.T) {
	got, err := Normalize([]byte(`{}`))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.Shots == nil || got.Utterances == nil {
		t.Fatal("containers should be empty, not nil")
	}
	if len(got.Shots) != 0 || len(got.Utterances) != 0 {
		t.Fatalf("got %d shots, %d utterances, want none", len(got.Shots), len(got.Utterances))
	}
	if got.UtteranceSource != SourceNone {
		t.Errorf("UtteranceSource = %q, want none", got.UtteranceSource)
	}
	if got.S3Key != "" {
		t.Errorf("S3Key = %q, want empty", got.S3Key)
	}
}

func TestNormalize_MalformedContainers(t *testing.T) {
	doc := []byte(`{
		"shots": "not-a-list",
		"scenes": {"audio_segments": []},
		"chapters": [42, {"audio_segments": "nope"}, {"audio_segments": [{"start_timestamp_millis": 1, "end_timestamp_millis": 2, "text": "ok"}]}],
		"metadata": {"s3_key": 17}
	}`)

	got, err := Normalize(doc)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(got.Shots) != 0 {
		t.Errorf("shots = %d, want 0", len(got.Shots))
	}
	if len(got.Utterances) != 1 || got.Utterances[0].Text != "ok" {
		t.Errorf("utterances = %+v", got.Utterances)
	}
	if got.S3Key != "" {
		t.Errorf("S3Key = %q, want empty for non-string key", got.S3Key)
	}
}

func TestNormalize_SkipsBadElements(t *testing.T) {
	doc := []byte(`{
		"shots": [
			{"start_timestamp_millis": -5, "end_timestamp_millis": 2000},
			{"start_timestamp_millis": "soon", "end_timestamp_millis": 2000},
			{"start_timestamp_millis": 10.9, "end_timestamp_millis": 2000.2, "start_timecode_smpte": "A", "end_timecode_smpte": "B"},
			"garbage",
			{"end_timestamp_millis": 5000, "start_timecode_smpte": "NO_START"},
			{"start_timestamp_millis": 0, "start_timecode_smpte": "NO_END"},
			{"start_timestamp_millis": null, "end_timestamp_millis": 5000},
			{"start_timestamp_millis": 0, "end_timestamp_millis": 9007199254740993}
		],
		"scenes": [{"audio_segments": [
			{"start_timestamp_millis": 0, "end_timestamp_millis": 100, "text": 5},
			{"start_timestamp_millis": 0, "end_timestamp_millis": 100, "text": null},
			{"start_timestamp_millis": 0, "end_timestamp_millis": 100},
			{"text": "no times"},
			{"start_timestamp_millis": 0, "end_timestamp_millis": null, "text": "null end"}
		]}]
	}`)

	got, err := Normalize(doc)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(got.Shots) != 1 {
		t.Fatalf("shots = %d, want 1", len(got.Shots))
	}
	if got.Shots[0].StartMs != 10 || got.Shots[0].EndMs != 2000 {
		t.Errorf("float timestamps should truncate, got %+v", got.Shots[0])
	}
	if got.SkippedShots != 7 {
		t.Errorf("SkippedShots = %d, want 7", got.SkippedShots)
	}
	if len(got.Utterances) != 2 {
		t.Errorf("utterances = %d, want 2", len(got.Utterances))
	}
	if got.SkippedUtterances != 3 {
		t.Errorf("SkippedUtterances = %d, want 3", got.SkippedUtterances)
	}
}

func TestNormalize_NotAnObject(t *testing.T) {
	inputs := []string{``, `[]`, `"text"`, `null`, `{broken`}
	for _, in := range inputs {
		if _, err := Normalize([]byte(in)); !errors.Is(err, ErrNotObject) {
			t.Errorf("Normalize(%q) error = %v, want ErrNotObject", in, err)
		}
	}
}

func TestResolveStandardOutput(t *testing.T) {
	meta := []byte(`{"output_metadata": [{"segment_metadata": [{"standard_output_path": "s3://out/job/0/standard_output/0/result.json"}]}]}`)

	if !IsJobMetadata(meta) {
		t.Fatal("IsJobMetadata() = false, want true")
	}
	uri, err := ResolveStandardOutput(meta)
	if err != nil {
		t.Fatalf("ResolveStandardOutput() error = %v", err)
	}
	if uri != "s3://out/job/0/standard_output/0/result.json" {
		t.Errorf("uri = %q", uri)
	}
}

func TestResolveStandardOutput_Missing(t *testing.T) {
	cases := []string{
		`{"output_metadata": []}`,
		`{"output_metadata": [{"segment_metadata": []}]}`,
		`{"output_metadata": [{"segment_metadata": [{"standard_output_path": "  "}]}]}`,
		`[]`,
	}
	for _, c := range cases {
		if _, err := ResolveStandardOutput([]byte(c)); !errors.Is(err, ErrNoStandardOutput) {
			t.Errorf("ResolveStandardOutput(%s) error = %v, want ErrNoStandardOutput", c, err)
		}
	}

	if IsJobMetadata([]byte(`{"shots": []}`)) {
		t.Error("analysis output should not be treated as job metadata")
	}
}
