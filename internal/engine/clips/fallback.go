package clips

import (
	"sort"
	"strings"

	"github.com/aryawidjaja/go_clips/internal/engine"
)

// transitionMarkers are phrases that open a new topic or beat. A segment
// starting with one of these is a good clip boundary. English and Indonesian,
// matching the channels this pipeline is pointed at.
var transitionMarkers = []string{
	// en
	"so ", "now ", "but ", "however", "next ", "first", "second", "third",
	"finally", "in conclusion", "the key", "the most important", "let me",
	"here's the", "one thing",
	// id
	"jadi ", "nah ", "selanjutnya", "pertama", "kedua", "ketiga",
	"terakhir", "kesimpulannya", "yang penting", "intinya",
}

// stopwords excluded from keyword titles. English and Indonesian.
var stopwords = map[string]bool{
	// en
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "for": true,
	"with": true, "that": true, "this": true, "these": true, "those": true,
	"it": true, "its": true, "i": true, "you": true, "we": true, "they": true,
	"he": true, "she": true, "my": true, "your": true, "our": true, "so": true,
	"not": true, "no": true, "do": true, "does": true, "did": true, "have": true,
	"has": true, "had": true, "will": true, "would": true, "can": true,
	"could": true, "just": true, "like": true, "about": true, "what": true,
	"when": true, "how": true, "very": true, "really": true, "going": true,
	"get": true, "got": true, "there": true, "here": true, "then": true,
	// id
	"yang": true, "dan": true, "di": true, "ke": true, "dari": true,
	"ini": true, "itu": true, "dengan": true, "untuk": true, "pada": true,
	"adalah": true, "tidak": true, "bisa": true, "akan": true, "juga": true,
	"saya": true, "kita": true, "kami": true, "kamu": true, "dia": true,
	"ada": true, "jadi": true, "kalau": true, "karena": true, "atau": true,
	"nah": true, "ya": true, "sih": true, "aja": true, "gitu": true,
}

// FallbackSegment cuts clips without an LLM: boundaries come from topic
// transition markers when present, fixed windows otherwise, and titles from
// word frequency. Every returned clip honors the duration bounds; a video
// shorter than MinSec yields no clips.
func FallbackSegment(t *engine.Transcript, opts Options) []Clip {
	opts = opts.withDefaults()
	engine.IncrFallbackSegments()

	boundaries := markerBoundaries(t)
	clips := clipsFromBoundaries(t, boundaries, opts)
	if len(clips) < opts.TargetCount {
		clips = mergeWindows(clips, fixedWindows(t, opts, len(clips)), opts)
	}

	if len(clips) > opts.TargetCount {
		clips = clips[:opts.TargetCount]
	}
	for i := range clips {
		clips[i].Fallback = true
		applyRuleMetadata(&clips[i])
	}
	return clips
}

// markerBoundaries returns segment start times where a transition phrase
// opens the segment.
func markerBoundaries(t *engine.Transcript) []float64 {
	var bounds []float64
	for _, seg := range t.Segments {
		text := strings.ToLower(strings.TrimSpace(seg.Text))
		for _, m := range transitionMarkers {
			if strings.HasPrefix(text, m) {
				bounds = append(bounds, seg.Start)
				break
			}
		}
	}
	return bounds
}

// clipsFromBoundaries builds candidate windows starting at each boundary,
// extended to MaxSec or the next boundary, and keeps those at least MinSec.
func clipsFromBoundaries(t *engine.Transcript, bounds []float64, opts Options) []Clip {
	duration := t.Duration()
	var clips []Clip
	for i, start := range bounds {
		end := start + opts.MaxSec
		if i+1 < len(bounds) && bounds[i+1] < end {
			end = bounds[i+1]
		}
		if end > duration {
			end = duration
		}
		if end-start < opts.MinSec {
			continue
		}
		text := sliceText(t, start, end)
		if strings.TrimSpace(text) == "" {
			continue
		}
		clips = append(clips, Clip{
			Start:    start,
			End:      end,
			Duration: end - start,
			Text:     text,
			Score:    0.5,
		})
	}
	return clips
}

// fixedWindows tiles the video with evenly spaced windows, skipping the
// first `skip` to favor boundary-derived clips.
func fixedWindows(t *engine.Transcript, opts Options, skip int) []Clip {
	duration := t.Duration()
	length := opts.MaxSec
	if duration < length {
		length = duration
	}
	if length < opts.MinSec {
		// Whole video shorter than the minimum: no window can satisfy the
		// duration floor, same as the clamp on proposed spans.
		return nil
	}

	var clips []Clip
	step := length
	for start := 0.0; start+opts.MinSec <= duration; start += step {
		end := start + length
		if end > duration {
			end = duration
		}
		if end-start < opts.MinSec {
			break
		}
		text := sliceText(t, start, end)
		if strings.TrimSpace(text) == "" {
			continue
		}
		clips = append(clips, Clip{
			Start:    start,
			End:      end,
			Duration: end - start,
			Text:     text,
			Score:    0.3,
		})
	}
	if skip < len(clips) {
		return clips[skip:]
	}
	return nil
}

// mergeWindows appends filler windows that do not overlap existing clips
// beyond the tolerance.
func mergeWindows(clips, filler []Clip, opts Options) []Clip {
	for _, f := range filler {
		if len(clips) >= opts.TargetCount {
			break
		}
		if overlapsAny(f, clips, opts.OverlapTol) {
			continue
		}
		clips = append(clips, f)
	}
	sort.Slice(clips, func(i, j int) bool { return clips[i].Start < clips[j].Start })
	return clips
}

// keywordTitle builds a title from the most frequent non-stopword terms.
func keywordTitle(text string) string {
	freq := map[string]int{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?\"'()[]:;")
		if len(w) < 3 || stopwords[w] {
			continue
		}
		freq[w]++
	}
	if len(freq) == 0 {
		return "Clip"
	}

	type wc struct {
		word  string
		count int
	}
	words := make([]wc, 0, len(freq))
	for w, c := range freq {
		words = append(words, wc{w, c})
	}
	sort.Slice(words, func(i, j int) bool {
		if words[i].count != words[j].count {
			return words[i].count > words[j].count
		}
		return words[i].word < words[j].word
	})

	n := 3
	if len(words) < n {
		n = len(words)
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = titleCase(words[i].word)
	}
	return strings.Join(parts, " ")
}

func titleCase(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + w[1:]
}

// firstSentence returns the first sentence of text, capped at 200 chars.
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			return text[:i+1]
		}
		if i >= 200 {
			return text[:i] + "..."
		}
	}
	return text
}
