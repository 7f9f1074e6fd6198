// Package selector chooses the time ranges that become clips. Three
// strategies compose with a strict fallback order: LLM ranking, rule-based
// scoring over the transcript, and fixed evenly spaced ranges when there is
// no usable transcript at all.
package selector

import (
	"context"
	"sort"

	"github.com/clipfab/shorts-api/config"
	"github.com/clipfab/shorts-api/log"
	"github.com/clipfab/shorts-api/metrics"
	"github.com/clipfab/shorts-api/video"
)

type Method string

const (
	MethodLLM      Method = "llm"
	MethodRule     Method = "rule"
	MethodFallback Method = "fallback"
)

// Range is one selected [Start, End) interval in the source, tagged with
// the strategy that produced it.
type Range struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Method Method  `json:"method"`
	Reason string  `json:"reason,omitempty"`
}

func (r Range) Duration() float64 {
	return r.End - r.Start
}

func (r Range) Overlaps(other Range) bool {
	return r.Start < other.End && other.Start < r.End
}

// Params are the selection knobs, already validated and defaulted by the
// job registry.
type Params struct {
	TargetCount    int
	MinSec         float64
	MaxSec         float64
	Language       string
	TitleHint      string
	ForceRuleBased bool
}

// ChatClient is the single-turn LLM call the first strategy needs.
type ChatClient interface {
	Complete(ctx context.Context, jobID, system, user string) (string, error)
}

// Engine runs the strategy cascade. A nil Chat disables the LLM strategy,
// which is how a missing credential is represented.
type Engine struct {
	Chat ChatClient
}

// Select returns up to TargetCount non-overlapping ranges in chronological
// order. The result can be shorter than TargetCount; the worker enforces
// the minimum clip guarantee.
func (e *Engine) Select(ctx context.Context, jobID string, transcript video.Transcript, sourceDurationSec float64, p Params) []Range {
	if !p.ForceRuleBased && e.Chat != nil && len(transcript) > 0 {
		ranges, err := e.selectLLM(ctx, jobID, transcript, sourceDurationSec, p)
		if err != nil {
			metrics.Metrics.LLMRequests.WithLabelValues("failure").Inc()
			log.LogWarn(jobID, "LLM selection failed, falling back to rule-based", "stage", "selecting", "err", err.Error())
		} else {
			metrics.Metrics.LLMRequests.WithLabelValues("success").Inc()
			log.Log(jobID, "LLM selection succeeded", "stage", "selecting", "range_count", len(ranges))
			return ranges
		}
	}

	ranges := RuleBased(transcript, sourceDurationSec, p)
	if len(ranges) >= config.MinGuaranteedClips {
		log.Log(jobID, "rule-based selection succeeded", "stage", "selecting", "range_count", len(ranges))
		return ranges
	}

	log.LogWarn(jobID, "rule-based selection produced too few ranges, using fixed fallback",
		"stage", "selecting", "range_count", len(ranges))
	return FixedRanges(sourceDurationSec, p)
}

// sortChronological orders ranges by start, shorter range first on ties.
func sortChronological(ranges []Range) {
	sort.SliceStable(ranges, func(i, j int) bool {
		if ranges[i].Start != ranges[j].Start {
			return ranges[i].Start < ranges[j].Start
		}
		return ranges[i].Duration() < ranges[j].Duration()
	})
}

// dropOverlapping keeps the earliest-starting range of every overlapping
// pair. Input must already be sorted chronologically.
func dropOverlapping(ranges []Range) []Range {
	var out []Range
	for _, r := range ranges {
		if len(out) > 0 && out[len(out)-1].Overlaps(r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
