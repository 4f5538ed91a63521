package engine

import (
	"strings"
	"testing"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"watch url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"watch with params", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ", false},
		{"mobile", "https://m.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"short url", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"short url with t", "https://youtu.be/dQw4w9WgXcQ?t=10", "dQw4w9WgXcQ", false},
		{"embed", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"legacy v", "https://www.youtube.com/v/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"shorts", "https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"live", "https://www.youtube.com/live/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"bare id", "dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"not youtube", "https://vimeo.com/12345", "", true},
		{"too short", "abc", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractVideoID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractVideoID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	longText := strings.Repeat("word ", 20)
	tests := []struct {
		name    string
		t       *Transcript
		wantErr bool
	}{
		{"nil", nil, true},
		{"no segments", &Transcript{VideoID: "x"}, true},
		{"too short", &Transcript{Segments: []TranscriptSegment{{Text: "hi", Start: 0, End: 1}}}, true},
		{"inverted times", &Transcript{Segments: []TranscriptSegment{{Text: longText, Start: 5, End: 1}}}, true},
		{"valid", &Transcript{Segments: []TranscriptSegment{{Text: longText, Start: 0, End: 5}}}, false},
		{"exactly 50 chars", &Transcript{Segments: []TranscriptSegment{{Text: strings.Repeat("a", 50), Start: 0, End: 1}}}, false},
		{"49 chars", &Transcript{Segments: []TranscriptSegment{{Text: strings.Repeat("a", 49), Start: 0, End: 1}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.t)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTranscriptHelpers(t *testing.T) {
	tr := &Transcript{Segments: []TranscriptSegment{
		{Text: "hello world", Start: 0, End: 2},
		{Text: "again", Start: 2, End: 4.5},
	}}
	if got := tr.Text(); got != "hello world again" {
		t.Errorf("Text() = %q", got)
	}
	if got := tr.WordCount(); got != 3 {
		t.Errorf("WordCount() = %d, want 3", got)
	}
	if got := tr.CharCount(); got != len("hello world again") {
		t.Errorf("CharCount() = %d", got)
	}
	if got := tr.Duration(); got != 4.5 {
		t.Errorf("Duration() = %v, want 4.5", got)
	}
}
