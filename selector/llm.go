package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/clipfab/shorts-api/config"
	"github.com/clipfab/shorts-api/video"
)

const llmRequestTimeout = 60 * time.Second

// The transcript sent to the model is capped to keep the prompt inside
// typical context windows; long sources still get their first chunk ranked.
const maxPromptTranscriptChars = 8000

const systemPrompt = "You are a short-form video editor. You pick the segments of a talk " +
	"video that will retain viewers best. Respond with JSON only."

type llmCandidate struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Reason string  `json:"reason"`
}

func (e *Engine) selectLLM(ctx context.Context, jobID string, transcript video.Transcript, sourceDurationSec float64, p Params) ([]Range, error) {
	ctx, cancel := context.WithTimeout(ctx, llmRequestTimeout)
	defer cancel()

	response, err := e.Chat.Complete(ctx, jobID, systemPrompt, buildPrompt(transcript, p))
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}

	candidates, err := parseLLMResponse(response)
	if err != nil {
		return nil, fmt.Errorf("unusable chat response: %w", err)
	}

	ranges := postValidate(candidates, transcript, p)
	if len(ranges) < p.TargetCount {
		ranges = padWithRuleBased(ranges, transcript, sourceDurationSec, p)
	}
	if len(ranges) < config.MinGuaranteedClips {
		return nil, fmt.Errorf("only %d valid ranges after post-validation, need %d",
			len(ranges), config.MinGuaranteedClips)
	}
	sortChronological(ranges)
	return ranges, nil
}

func buildPrompt(transcript video.Transcript, p Params) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(
		"Pick exactly %d segments of %.0f-%.0f seconds from this %s transcript of a talk video.\n",
		p.TargetCount, p.MinSec, p.MaxSec, p.Language))
	sb.WriteString("Prefer segments with a conclusion, a surprise, or the core of a how-to. ")
	sb.WriteString("Each segment must be a concatenation of contiguous transcript lines, ")
	sb.WriteString("must not cut a sentence in half, and segments must not overlap.\n")
	if p.TitleHint != "" {
		sb.WriteString(fmt.Sprintf("Video title: %s\n", p.TitleHint))
	}
	sb.WriteString("\nTranscript:\n")
	for i, seg := range transcript {
		line := fmt.Sprintf("[%d] [%.1fs - %.1fs] %s\n", i, seg.Start, seg.End, seg.Text)
		if sb.Len()+len(line) > maxPromptTranscriptChars {
			break
		}
		sb.WriteString(line)
	}
	sb.WriteString(fmt.Sprintf(
		"\nReturn a JSON object of the form "+
			`{"segments": [{"start": <seconds>, "end": <seconds>, "reason": "<short reason>"}]}`+
			" with exactly %d entries and nothing else.\n", p.TargetCount))
	return sb.String()
}

// parseLLMResponse digs the candidate array out of whatever the model sent
// back: a bare array, a {"segments": [...]} object, or either of those
// wrapped in markdown code fences or prose.
func parseLLMResponse(content string) ([]llmCandidate, error) {
	content = stripCodeFence(content)

	var candidates []llmCandidate
	if err := json.Unmarshal([]byte(content), &candidates); err == nil {
		return candidates, nil
	}

	var wrapper struct {
		Segments []llmCandidate `json:"segments"`
	}
	if err := json.Unmarshal([]byte(content), &wrapper); err == nil && len(wrapper.Segments) > 0 {
		return wrapper.Segments, nil
	}

	// Last resort: slice out the outermost array embedded in prose.
	open := strings.Index(content, "[")
	closing := strings.LastIndex(content, "]")
	if open >= 0 && closing > open {
		if err := json.Unmarshal([]byte(content[open:closing+1]), &candidates); err == nil {
			return candidates, nil
		}
	}
	return nil, fmt.Errorf("no JSON candidate array found in response")
}

func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "```json"); idx >= 0 {
		content = content[idx+len("```json"):]
	} else if idx := strings.Index(content, "```"); idx >= 0 {
		content = content[idx+len("```"):]
	} else {
		return content
	}
	if end := strings.Index(content, "```"); end >= 0 {
		content = content[:end]
	}
	return strings.TrimSpace(content)
}

// postValidate enforces the selection invariants on LLM output: snap range
// bounds to transcript segment boundaries, drop ranges with out-of-bounds
// durations, resolve overlaps in favor of the earliest-starting range, and
// truncate to the target count.
func postValidate(candidates []llmCandidate, transcript video.Transcript, p Params) []Range {
	var ranges []Range
	for _, cand := range candidates {
		if cand.End <= cand.Start {
			continue
		}
		start, end, ok := snapToBoundaries(transcript, cand.Start, cand.End)
		if !ok {
			continue
		}
		duration := end - start
		if duration < p.MinSec || duration > p.MaxSec {
			continue
		}
		ranges = append(ranges, Range{Start: start, End: end, Method: MethodLLM, Reason: cand.Reason})
	}
	sortChronological(ranges)
	ranges = dropOverlapping(ranges)
	if len(ranges) > p.TargetCount {
		ranges = ranges[:p.TargetCount]
	}
	return ranges
}

// snapToBoundaries aligns a range with the transcript so it becomes a
// concatenation of whole segments: the start snaps back to the start of the
// segment containing it, the end snaps forward to the end of the segment
// containing it. Snapping in those directions never excludes content the
// model asked for.
func snapToBoundaries(transcript video.Transcript, start, end float64) (float64, float64, bool) {
	if len(transcript) == 0 {
		return 0, 0, false
	}

	snappedStart := -1.0
	for _, seg := range transcript {
		if seg.End > start {
			snappedStart = seg.Start
			break
		}
	}
	snappedEnd := -1.0
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Start < end {
			snappedEnd = transcript[i].End
			break
		}
	}
	if snappedStart < 0 || snappedEnd <= snappedStart {
		return 0, 0, false
	}
	return snappedStart, snappedEnd, true
}

// padWithRuleBased tops up a short LLM result with rule-based ranges that do
// not overlap the kept ones. Padded ranges keep their rule tag so the
// output is honest about where each clip came from. Scoring uses the real
// source duration, same as a pure rule-based run.
func padWithRuleBased(kept []Range, transcript video.Transcript, sourceDurationSec float64, p Params) []Range {
	for _, candidate := range RuleBased(transcript, sourceDurationSec, p) {
		if len(kept) >= p.TargetCount {
			break
		}
		overlaps := false
		for _, existing := range kept {
			if candidate.Overlaps(existing) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, candidate)
		}
	}
	return kept
}
