package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrNotObject is returned when a document is not a JSON object at all.
var ErrNotObject = errors.New("analysis document is not a JSON object")

var errNegativeTimestamp = errors.New("negative timestamp")

// maxTimestampMs bounds accepted timestamps so interval arithmetic on them
// cannot overflow.
const maxTimestampMs = 1 << 53

type shotRecord struct {
	Start         *millis `json:"start_timestamp_millis"`
	End           *millis `json:"end_timestamp_millis"`
	StartTimecode string  `json:"start_timecode_smpte"`
	EndTimecode   string  `json:"end_timecode_smpte"`
}

type utteranceRecord struct {
	Start *millis `json:"start_timestamp_millis"`
	End   *millis `json:"end_timestamp_millis"`
	Text  string  `json:"text"`
}

// interval returns both timestamps, or false when either is missing or null.
func interval(start, end *millis) (int64, int64, bool) {
	if start == nil || end == nil {
		return 0, 0, false
	}
	return int64(*start), int64(*end), true
}

// Normalize decodes an analysis document into shots and utterances.
//
// Missing or wrongly typed containers are treated as empty. Elements inside a
// container that cannot be decoded are skipped and counted. Only a document
// that is not a JSON object is an error.
func Normalize(data []byte) (*Normalized, error) {
	root, err := decodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if root == nil {
		return nil, ErrNotObject
	}

	out := &Normalized{
		Shots:      []Shot{},
		Utterances: []Utterance{},
	}

	for _, raw := range decodeList(root["shots"]) {
		var rec shotRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			out.SkippedShots++
			continue
		}
		start, end, ok := interval(rec.Start, rec.End)
		if !ok {
			out.SkippedShots++
			continue
		}
		out.Shots = append(out.Shots, Shot{
			StartMs:       start,
			EndMs:         end,
			StartTimecode: rec.StartTimecode,
			EndTimecode:   rec.EndTimecode,
		})
	}

	for _, src := range utteranceSources {
		utterances, skipped := flattenGroups(root[string(src)])
		out.SkippedUtterances += skipped
		if len(utterances) > 0 {
			out.Utterances = utterances
			out.UtteranceSource = src
			break
		}
	}

	out.S3Key = metadataKey(root["metadata"])
	return out, nil
}

// flattenGroups concatenates the audio_segments of every group in order.
func flattenGroups(raw json.RawMessage) ([]Utterance, int) {
	var utterances []Utterance
	skipped := 0

	for _, groupRaw := range decodeList(raw) {
		group, err := decodeObject(groupRaw)
		if err != nil || group == nil {
			continue
		}
		for _, segRaw := range decodeList(group["audio_segments"]) {
			var rec utteranceRecord
			if err := json.Unmarshal(segRaw, &rec); err != nil {
				skipped++
				continue
			}
			start, end, ok := interval(rec.Start, rec.End)
			if !ok {
				skipped++
				continue
			}
			utterances = append(utterances, Utterance{
				StartMs: start,
				EndMs:   end,
				Text:    rec.Text,
			})
		}
	}
	return utterances, skipped
}

func metadataKey(raw json.RawMessage) string {
	meta, err := decodeObject(raw)
	if err != nil || meta == nil {
		return ""
	}
	var key string
	if err := json.Unmarshal(meta["s3_key"], &key); err != nil {
		return ""
	}
	return key
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// decodeList returns the elements of a JSON array, or nil for anything else.
func decodeList(raw json.RawMessage) []json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	return list
}

// millis accepts integer and float JSON numbers up to maxTimestampMs.
// Fractions are truncated.
type millis int64

func (m *millis) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}

	if i, err := n.Int64(); err == nil {
		if i < 0 {
			return errNegativeTimestamp
		}
		if i > maxTimestampMs {
			return fmt.Errorf("timestamp out of range: %s", n)
		}
		*m = millis(i)
		return nil
	}

	f, err := n.Float64()
	if err != nil {
		return err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f > maxTimestampMs {
		return fmt.Errorf("timestamp out of range: %s", n)
	}
	if f < 0 {
		return errNegativeTimestamp
	}
	*m = millis(int64(f))
	return nil
}
