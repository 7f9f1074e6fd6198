package selector

import "github.com/clipfab/shorts-api/config"

// Positions of the fixed fallback ranges as fractions of the source
// duration.
var fallbackStartFractions = []float64{0.10, 0.45, 0.80}

// FixedRanges is the last-resort strategy for sources with no usable
// transcript: three evenly spread ranges of the midpoint duration, clipped
// to fit inside the source. Subtitles are skipped for these downstream.
func FixedRanges(sourceDurationSec float64, p Params) []Range {
	if sourceDurationSec <= 0 {
		return nil
	}
	duration := clampFloat((p.MinSec+p.MaxSec)/2, p.MinSec, p.MaxSec)

	ranges := make([]Range, 0, config.MinGuaranteedClips)
	for _, frac := range fallbackStartFractions {
		start := frac * sourceDurationSec
		if start+duration > sourceDurationSec {
			start = sourceDurationSec - duration
		}
		if start < 0 {
			start = 0
		}
		end := start + duration
		if end > sourceDurationSec {
			end = sourceDurationSec
		}
		if end <= start {
			continue
		}
		r := Range{Start: start, End: end, Method: MethodFallback, Reason: "fixed position fallback"}
		if len(ranges) > 0 && ranges[len(ranges)-1].Overlaps(r) {
			continue
		}
		ranges = append(ranges, r)
	}
	return ranges
}
