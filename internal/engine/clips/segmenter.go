package clips

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aryawidjaja/go_clips/internal/engine"
)

// llmSpan is the raw window the model proposes before clamping.
type llmSpan struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Score float64 `json:"score"`
}

// clipMetadata is one entry of the batch metadata response.
type clipMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	KeyQuote    string `json:"key_quote"`
}

// Segment produces clip suggestions for a transcript. The LLM path proposes
// candidate windows; durations are clamped, overlaps resolved greedily by
// score, and metadata is filled by a second batch call. Any LLM failure
// degrades to the rule-based fallback — Segment never fails on a valid
// transcript.
func Segment(ctx context.Context, t *engine.Transcript, opts Options) ([]Clip, error) {
	if err := engine.Validate(t); err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	opts = opts.withDefaults()

	llm := engine.Cfg.LLMClient
	if llm == nil {
		slog.Info("clips: no llm configured, using fallback segmentation",
			slog.String("video_id", t.VideoID))
		return FallbackSegment(t, opts), nil
	}

	accepted, err := proposeClips(ctx, llm, t, opts)
	if err != nil {
		slog.Warn("clips: llm segmentation failed, using fallback",
			slog.String("video_id", t.VideoID),
			slog.Any("error", err))
		return FallbackSegment(t, opts), nil
	}
	if len(accepted) == 0 {
		slog.Warn("clips: llm proposed no usable spans, using fallback",
			slog.String("video_id", t.VideoID))
		return FallbackSegment(t, opts), nil
	}

	fillMetadata(ctx, llm, t, accepted)

	engine.IncrClipsGenerated(len(accepted))
	return accepted, nil
}

// proposeClips runs the span call and reduces the raw spans to an accepted,
// ordered clip list.
func proposeClips(ctx context.Context, llm *engine.LLMClient, t *engine.Transcript, opts Options) ([]Clip, error) {
	spans, err := engine.CompleteJSON[[]llmSpan](ctx, llm, spanSystemPrompt, buildSpanPrompt(t, opts))
	if err != nil {
		return nil, err
	}

	duration := t.Duration()
	candidates := make([]Clip, 0, len(spans))
	for _, sp := range spans {
		c, ok := clampSpan(sp, duration, opts)
		if !ok {
			continue
		}
		c.Text = sliceText(t, c.Start, c.End)
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		candidates = append(candidates, c)
	}

	accepted := resolveOverlaps(candidates, opts)
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })
	return accepted, nil
}

// clampSpan forces a proposed span into [MinSec, MaxSec] and inside the video.
// Too-long spans shrink symmetrically around their center; too-short spans
// grow the same way. Spans that cannot be made valid (outside the video,
// inverted, or video shorter than MinSec) are dropped.
func clampSpan(sp llmSpan, duration float64, opts Options) (Clip, bool) {
	start, end := sp.Start, sp.End
	if end <= start {
		return Clip{}, false
	}
	if start >= duration || end <= 0 {
		return Clip{}, false
	}
	if start < 0 {
		start = 0
	}
	if end > duration {
		end = duration
	}

	length := end - start
	center := start + length/2

	if length > opts.MaxSec {
		length = opts.MaxSec
	} else if length < opts.MinSec {
		length = opts.MinSec
	}
	if length > duration {
		return Clip{}, false
	}

	start = center - length/2
	end = center + length/2
	if start < 0 {
		start, end = 0, length
	}
	if end > duration {
		start, end = duration-length, duration
	}

	score := sp.Score
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return Clip{Start: start, End: end, Duration: end - start, Score: score}, true
}

// resolveOverlaps accepts candidates greedily by descending score, rejecting
// any candidate overlapping an accepted one by more than the tolerance, until
// TargetCount clips are accepted.
func resolveOverlaps(candidates []Clip, opts Options) []Clip {
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })

	accepted := make([]Clip, 0, opts.TargetCount)
	for _, c := range candidates {
		if len(accepted) >= opts.TargetCount {
			break
		}
		if overlapsAny(c, accepted, opts.OverlapTol) {
			continue
		}
		accepted = append(accepted, c)
	}
	return accepted
}

func overlapsAny(c Clip, accepted []Clip, tol float64) bool {
	for _, a := range accepted {
		if overlapSeconds(c, a) > tol {
			return true
		}
	}
	return false
}

func overlapSeconds(a, b Clip) float64 {
	start := a.Start
	if b.Start > start {
		start = b.Start
	}
	end := a.End
	if b.End < end {
		end = b.End
	}
	if end <= start {
		return 0
	}
	return end - start
}

// fillMetadata runs the batch metadata call and writes titles into the
// accepted clips. On failure or a miscounted response, rule-based metadata
// substitutes per clip; the clips themselves are already final.
func fillMetadata(ctx context.Context, llm *engine.LLMClient, t *engine.Transcript, accepted []Clip) {
	metas, err := engine.CompleteJSON[[]clipMetadata](ctx, llm, metadataSystemPrompt, buildMetadataPrompt(t, accepted))
	if err != nil || len(metas) != len(accepted) {
		slog.Warn("clips: metadata call failed, using rule-based titles",
			slog.String("video_id", t.VideoID),
			slog.Int("expected", len(accepted)),
			slog.Int("got", len(metas)),
			slog.Any("error", err))
		for i := range accepted {
			applyRuleMetadata(&accepted[i])
		}
		return
	}

	for i := range accepted {
		m := metas[i]
		accepted[i].Title = strings.TrimSpace(m.Title)
		accepted[i].Description = strings.TrimSpace(m.Description)
		accepted[i].KeyQuote = strings.TrimSpace(m.KeyQuote)
		if accepted[i].Title == "" {
			applyRuleMetadata(&accepted[i])
		}
	}
}

// applyRuleMetadata fills metadata from the clip text alone.
func applyRuleMetadata(c *Clip) {
	if c.Title == "" {
		c.Title = keywordTitle(c.Text)
	}
	if c.KeyQuote == "" {
		c.KeyQuote = firstSentence(c.Text)
	}
}
