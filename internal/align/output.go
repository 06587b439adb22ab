package align

// Output is the contract handed to the next pipeline stage.
type Output struct {
	Segments []MatchedSegment `json:"segments"`
	S3Key    string           `json:"s3_key"`
}

// Assemble bundles matched segments with the storage key of the source video.
func Assemble(segments []MatchedSegment, s3Key string) Output {
	if segments == nil {
		segments = []MatchedSegment{}
	}
	return Output{Segments: segments, S3Key: s3Key}
}
