package engine

import (
	"fmt"
	"regexp"
	"strings"
)

// TranscriptSegment is one timestamped caption unit. Start and End are
// seconds from the beginning of the video. Immutable once created.
type TranscriptSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Transcript is the normalized output of one extraction strategy.
type Transcript struct {
	VideoID  string              `json:"video_id"`
	Title    string              `json:"title,omitempty"`
	Language string              `json:"language,omitempty"`
	Source   string              `json:"source"` // strategy that produced it
	Segments []TranscriptSegment `json:"segments"`
}

// Text joins all segment text with single spaces.
func (t *Transcript) Text() string {
	var sb strings.Builder
	for _, s := range t.Segments {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// CharCount returns the total character count of the joined text.
func (t *Transcript) CharCount() int { return len(t.Text()) }

// WordCount returns the total word count of the joined text.
func (t *Transcript) WordCount() int { return len(strings.Fields(t.Text())) }

// Duration returns the end timestamp of the last segment, in seconds.
func (t *Transcript) Duration() float64 {
	if len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].End
}

// minTranscriptChars is the smallest transcript accepted by Validate.
const minTranscriptChars = 50

// Validate fails closed on transcripts too short or malformed to segment.
func Validate(t *Transcript) error {
	if t == nil {
		return fmt.Errorf("nil transcript")
	}
	if len(t.Segments) == 0 {
		return fmt.Errorf("transcript has no segments")
	}
	if n := t.CharCount(); n < minTranscriptChars {
		return fmt.Errorf("transcript too short: %d chars (minimum %d)", n, minTranscriptChars)
	}
	for i, s := range t.Segments {
		if s.End < s.Start {
			return fmt.Errorf("segment %d: end %.3f before start %.3f", i, s.End, s.Start)
		}
	}
	return nil
}

var videoIDPatterns = []*regexp.Regexp{
	// Standard watch URL (including mobile)
	regexp.MustCompile(`(?:m\.)?youtube\.com/watch\?v=([a-zA-Z0-9_-]{11})`),
	// Short URL
	regexp.MustCompile(`youtu\.be/([a-zA-Z0-9_-]{11})`),
	// Embed and legacy URLs
	regexp.MustCompile(`youtube\.com/(?:embed|v)/([a-zA-Z0-9_-]{11})`),
	// Shorts
	regexp.MustCompile(`youtube\.com/shorts/([a-zA-Z0-9_-]{11})`),
	// Live streams
	regexp.MustCompile(`youtube\.com/live/([a-zA-Z0-9_-]{11})`),
}

var bareVideoID = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// ExtractVideoID pulls the video ID from the common YouTube URL formats,
// or accepts a bare 11-character ID.
func ExtractVideoID(rawURL string) (string, error) {
	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(rawURL); len(m) > 1 {
			return m[1], nil
		}
	}
	if bareVideoID.MatchString(rawURL) {
		return rawURL, nil
	}
	return "", fmt.Errorf("could not extract video ID from %q", rawURL)
}
