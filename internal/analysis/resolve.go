package analysis

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoStandardOutput is returned when job metadata does not point at a
// standard output document.
var ErrNoStandardOutput = errors.New("job metadata has no standard output path")

type jobMetadata struct {
	OutputMetadata []struct {
		SegmentMetadata []struct {
			StandardOutputPath string `json:"standard_output_path"`
		} `json:"segment_metadata"`
	} `json:"output_metadata"`
}

// IsJobMetadata reports whether data looks like an analysis job's metadata
// document rather than the analysis output itself.
func IsJobMetadata(data []byte) bool {
	root, err := decodeObject(data)
	if err != nil || root == nil {
		return false
	}
	_, ok := root["output_metadata"]
	return ok
}

// ResolveStandardOutput returns the URI of the first segment's standard output.
func ResolveStandardOutput(data []byte) (string, error) {
	var meta jobMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", errors.Join(ErrNoStandardOutput, err)
	}
	if len(meta.OutputMetadata) == 0 || len(meta.OutputMetadata[0].SegmentMetadata) == 0 {
		return "", ErrNoStandardOutput
	}
	uri := strings.TrimSpace(meta.OutputMetadata[0].SegmentMetadata[0].StandardOutputPath)
	if uri == "" {
		return "", ErrNoStandardOutput
	}
	return uri, nil
}
