// Package video holds the media-side types and tooling of the pipeline:
// transcripts, source probing, subtitle generation and the clip renderer.
package video

import (
	"fmt"
	"sort"
)

// TranscriptSegment is one timed line of speech. Within a transcript,
// segments are monotonic and non-overlapping.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func (s TranscriptSegment) Duration() float64 {
	return s.End - s.Start
}

type Transcript []TranscriptSegment

// Duration returns the end time of the last segment.
func (t Transcript) Duration() float64 {
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1].End
}

// Validate checks the transcript invariants: every segment has
// 0 <= start < end and segments do not overlap each other.
func (t Transcript) Validate() error {
	for i, seg := range t {
		if seg.Start < 0 || seg.Start >= seg.End {
			return fmt.Errorf("segment %d has invalid bounds [%f, %f]", i, seg.Start, seg.End)
		}
		if i > 0 && t[i-1].End > seg.Start {
			return fmt.Errorf("segment %d starts at %f before previous segment ends at %f", i, seg.Start, t[i-1].End)
		}
	}
	return nil
}

// Normalize sorts segments by start time, drops empty ones and clamps any
// overlap so the result satisfies Validate. Speech-to-text output is mostly
// well formed already; this guards against the occasional glitch segment.
func (t Transcript) Normalize() Transcript {
	out := make(Transcript, 0, len(t))
	for _, seg := range t {
		if seg.Text == "" || seg.End <= seg.Start || seg.End <= 0 {
			continue
		}
		if seg.Start < 0 {
			seg.Start = 0
		}
		out = append(out, seg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	for i := 1; i < len(out); i++ {
		if out[i].Start < out[i-1].End {
			out[i].Start = out[i-1].End
		}
	}
	result := out[:0]
	for _, seg := range out {
		if seg.End > seg.Start {
			result = append(result, seg)
		}
	}
	return result
}

// Clip returns the segments that intersect [start, end), trimmed to the
// range bounds.
func (t Transcript) Clip(start, end float64) Transcript {
	var out Transcript
	for _, seg := range t {
		if seg.End <= start || seg.Start >= end {
			continue
		}
		if seg.Start < start {
			seg.Start = start
		}
		if seg.End > end {
			seg.End = end
		}
		out = append(out, seg)
	}
	return out
}
