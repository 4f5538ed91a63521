package clips

import (
	"fmt"
	"strings"

	"github.com/aryawidjaja/go_clips/internal/engine"
)

const spanSystemPrompt = `You are a video editor's assistant. You read podcast and talk transcripts and pick the moments most likely to work as standalone short clips: a complete thought, a strong claim, a story with a payoff, or a practical tip. Respond with JSON only, no prose.`

const metadataSystemPrompt = `You are a video editor's assistant. You write short, punchy titles and descriptions for video clips. Respond with JSON only, no prose.`

// buildSpanPrompt renders the transcript as timestamped lines and asks for
// candidate clip windows. Long transcripts are truncated to maxChars from the
// front; the model sees real timestamps so truncation only loses tail
// candidates, never shifts times.
func buildSpanPrompt(t *engine.Transcript, opts Options) string {
	var sb strings.Builder
	for _, seg := range t.Segments {
		line := fmt.Sprintf("[%.1f-%.1f] %s\n", seg.Start, seg.End, seg.Text)
		if sb.Len()+len(line) > opts.MaxPromptLen {
			break
		}
		sb.WriteString(line)
	}

	return fmt.Sprintf(`Below is a video transcript with [start-end] timestamps in seconds.

Pick up to %d moments that would work as standalone clips of %.0f to %.0f seconds.
For each, return the start and end timestamps (seconds, from the transcript), and a score from 0.0 to 1.0 for how compelling the moment is.

Respond with a JSON array only:
[{"start": 12.5, "end": 68.0, "score": 0.9}, ...]

Transcript:
%s`, opts.TargetCount*2, opts.MinSec, opts.MaxSec, sb.String())
}

// buildMetadataPrompt asks for title/description/key quote for each accepted
// clip in a single batch call.
func buildMetadataPrompt(t *engine.Transcript, accepted []Clip) string {
	var sb strings.Builder
	for i, c := range accepted {
		fmt.Fprintf(&sb, "Clip %d (%.0fs-%.0fs): %s\n\n", i+1, c.Start, c.End, truncateText(c.Text, 1500))
	}

	return fmt.Sprintf(`Here are %d clips cut from the video %q.

For each clip, write:
- "title": at most 60 characters, no clickbait caps
- "description": one or two sentences
- "key_quote": the single strongest verbatim quote from the clip text

Respond with a JSON array of %d objects in the same order:
[{"title": "...", "description": "...", "key_quote": "..."}, ...]

%s`, len(accepted), t.Title, len(accepted), sb.String())
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
