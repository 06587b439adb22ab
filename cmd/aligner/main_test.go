package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/heimdex/heimdex-aligner/internal/align"
)

const sampleDoc = `{
	"shots": [
		{"start_timestamp_millis": 0, "end_timestamp_millis": 2000, "start_timecode_smpte": "00:00:00:00", "end_timecode_smpte": "00:00:02:00"},
		{"start_timestamp_millis": 2000, "end_timestamp_millis": 4000, "start_timecode_smpte": "00:00:02:00", "end_timecode_smpte": "00:00:04:00"}
	],
	"chapters": [{"audio_segments": [
		{"start_timestamp_millis": 100, "end_timestamp_millis": 1900, "text": "hello"},
		{"start_timestamp_millis": 2100, "end_timestamp_millis": 3900, "text": "world"}
	]}],
	"metadata": {"s3_key": "videos/demo.mp4"}
}`

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "analysis.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	out, _, err := runCLIWithStderr(t, stdin, args...)
	return out, err
}

func runCLIWithStderr(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestAlignCommand_JSON(t *testing.T) {
	path := writeDoc(t, sampleDoc)

	out, err := runCLI(t, "", "align", path)
	if err != nil {
		t.Fatalf("align error = %v", err)
	}

	var got align.Output
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.S3Key != "videos/demo.mp4" {
		t.Errorf("s3_key = %q", got.S3Key)
	}
	if len(got.Segments) != 2 || got.Segments[0].Transcript != "hello" || got.Segments[1].StartTime != "00:00:02:00" {
		t.Errorf("segments = %+v", got.Segments)
	}
}

func TestAlignCommand_Stdin(t *testing.T) {
	out, err := runCLI(t, sampleDoc, "align", "-", "--s3-key", "override.mp4")
	if err != nil {
		t.Fatalf("align error = %v", err)
	}
	if !strings.Contains(out, `"s3_key": "override.mp4"`) {
		t.Errorf("output = %s, want override key", out)
	}
}

func TestAlignCommand_Table(t *testing.T) {
	path := writeDoc(t, sampleDoc)

	out, err := runCLI(t, "", "align", path, "--format", "table")
	if err != nil {
		t.Fatalf("align error = %v", err)
	}
	for _, want := range []string{"hello", "world", "2 shots, 2 utterances from chapters, 2 segments", "s3 key: videos/demo.mp4"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestAlignCommand_Empty(t *testing.T) {
	path := writeDoc(t, `{"shots": []}`)

	out, err := runCLI(t, "", "align", path, "--format", "table")
	if err != nil {
		t.Fatalf("align error = %v", err)
	}
	if !strings.Contains(out, "no segments found") {
		t.Errorf("output = %q", out)
	}

	out, stderr, err := runCLIWithStderr(t, "", "align", path, "--format", "json")
	if err != nil {
		t.Fatalf("align error = %v", err)
	}
	if !strings.Contains(out, `"segments": []`) {
		t.Errorf("json output = %q, want empty segments array", out)
	}
	if !strings.Contains(stderr, "no segments found") {
		t.Errorf("stderr = %q, want no segments notice", stderr)
	}
	if strings.Contains(out, "no segments found") {
		t.Errorf("notice leaked into json output: %q", out)
	}

	_, stderr, err = runCLIWithStderr(t, "", "align", writeDoc(t, sampleDoc), "--format", "json")
	if err != nil {
		t.Fatalf("align error = %v", err)
	}
	if strings.Contains(stderr, "no segments found") {
		t.Errorf("stderr = %q, want no notice when segments exist", stderr)
	}
}

func TestAlignCommand_Errors(t *testing.T) {
	bad := writeDoc(t, `[1, 2, 3]`)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "not an object", args: []string{"align", bad}, wantErr: "alignment failed"},
		{name: "missing file", args: []string{"align", filepath.Join(t.TempDir(), "nope.json")}, wantErr: "file not found"},
		{name: "bad format", args: []string{"align", bad, "--format", "xml"}, wantErr: "unknown format"},
		{name: "no args", args: []string{"align"}, wantErr: "accepts 1 arg"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := runCLI(t, "", tc.args...)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestExportCommand(t *testing.T) {
	path := writeDoc(t, sampleDoc)
	outDir := t.TempDir()

	out, err := runCLI(t, "", "export", path, "--out", outDir, "--title", "Demo", "--fps", "25")
	if err != nil {
		t.Fatalf("export error = %v", err)
	}
	if !strings.Contains(out, "wrote 2 segments") {
		t.Errorf("output = %q", out)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "Demo.edl"))
	if err != nil {
		t.Fatalf("edl not written: %v", err)
	}
	if !strings.HasPrefix(string(data), "TITLE: Demo") {
		t.Errorf("edl = %s", data)
	}

	if _, err := runCLI(t, "", "export", path); err == nil {
		t.Error("export without --out succeeded")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Errorf("truncate = %q, want abcd…", got)
	}
}
