// Package clips turns a transcript into a set of short, self-contained clip
// suggestions using an LLM with a rule-based fallback.
package clips

import (
	"strings"

	"github.com/aryawidjaja/go_clips/internal/engine"
)

// Clip is one suggested cut. Start/End/Duration are seconds; Text is the
// transcript slice covered by the window.
type Clip struct {
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Duration    float64 `json:"duration"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	KeyQuote    string  `json:"key_quote,omitempty"`
	Text        string  `json:"text,omitempty"`
	Score       float64 `json:"score"`
	Fallback    bool    `json:"fallback,omitempty"`
}

// Options bound the segmenter output. Zero values pick up engine defaults.
type Options struct {
	MinSec       float64 // shortest acceptable clip
	MaxSec       float64 // longest acceptable clip
	TargetCount  int     // desired number of clips
	OverlapTol   float64 // seconds of overlap tolerated between accepted clips
	MaxPromptLen int     // transcript chars sent to the LLM before truncation
}

func (o Options) withDefaults() Options {
	cfg := engine.Cfg
	if o.MinSec <= 0 {
		o.MinSec = cfg.ClipMinSec
	}
	if o.MinSec <= 0 {
		o.MinSec = 15
	}
	if o.MaxSec <= 0 {
		o.MaxSec = cfg.ClipMaxSec
	}
	if o.MaxSec <= 0 {
		o.MaxSec = 90
	}
	if o.MaxSec < o.MinSec {
		o.MaxSec = o.MinSec
	}
	if o.TargetCount <= 0 {
		o.TargetCount = cfg.ClipTargetCount
	}
	if o.TargetCount <= 0 {
		o.TargetCount = 5
	}
	if o.OverlapTol <= 0 {
		o.OverlapTol = cfg.ClipOverlapTolSec
	}
	if o.OverlapTol <= 0 {
		o.OverlapTol = 1.0
	}
	if o.MaxPromptLen <= 0 {
		o.MaxPromptLen = cfg.ClipMaxPromptChars
	}
	return o
}

// sliceText returns the transcript text covered by [start, end].
func sliceText(t *engine.Transcript, start, end float64) string {
	var parts []string
	for _, s := range t.Segments {
		if s.End <= start || s.Start >= end {
			continue
		}
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}
