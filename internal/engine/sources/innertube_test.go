package sources

import (
	"errors"
	"testing"

	"github.com/aryawidjaja/go_clips/internal/engine"
)

func TestSelectCaptionTrack(t *testing.T) {
	tracks := []captionTrack{
		{BaseURL: "u1", LanguageCode: "de"},
		{BaseURL: "u2", LanguageCode: "en-GB"},
		{BaseURL: "u3", LanguageCode: "en"},
		{BaseURL: "u4", LanguageCode: "id"},
	}

	tests := []struct {
		name string
		lang string
		want string
	}{
		{"exact match", "en", "en"},
		{"exact id", "id", "id"},
		{"prefix match", "en-AU", "en-GB"},
		{"preferred list fallback", "fr", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectCaptionTrack(tracks, tt.lang)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.LanguageCode != tt.want {
				t.Errorf("selected %q, want %q", got.LanguageCode, tt.want)
			}
		})
	}
}

func TestSelectCaptionTrackFirstWhenNoPreferred(t *testing.T) {
	tracks := []captionTrack{
		{BaseURL: "u1", LanguageCode: "de"},
		{BaseURL: "u2", LanguageCode: "fr"},
	}
	got, err := selectCaptionTrack(tracks, "ja")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.LanguageCode != "de" {
		t.Errorf("expected first track, got %q", got.LanguageCode)
	}
}

func TestSelectCaptionTrackEmpty(t *testing.T) {
	if _, err := selectCaptionTrack(nil, "en"); err == nil {
		t.Error("expected error for empty track list")
	}
}

func TestNeedsPoToken(t *testing.T) {
	if !needsPoToken("https://www.youtube.com/api/timedtext?v=x&exp=xpe&lang=en") {
		t.Error("exp=xpe track should require PoToken")
	}
	if needsPoToken("https://www.youtube.com/api/timedtext?v=x&lang=en") {
		t.Error("plain track should not require PoToken")
	}
}

func TestCheckPlayability(t *testing.T) {
	mk := func(status, reason string) *playerResponse {
		pr := &playerResponse{}
		pr.PlayabilityStatus = &struct {
			Status string `json:"status"`
			Reason string `json:"reason"`
		}{Status: status, Reason: reason}
		return pr
	}

	tests := []struct {
		name      string
		pr        *playerResponse
		wantClass engine.ErrorClass
		wantErr   bool
	}{
		{"no status block", &playerResponse{}, 0, false},
		{"ok", mk("OK", ""), 0, false},
		{"login required", mk("LOGIN_REQUIRED", "Sign in to confirm"), engine.ClassBotDetection, true},
		{"unplayable", mk("UNPLAYABLE", "Video unavailable"), engine.ClassNotFound, true},
		{"error", mk("ERROR", "removed"), engine.ClassNotFound, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkPlayability("innertube", tt.pr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var se *engine.StrategyError
			if !errors.As(err, &se) {
				t.Fatalf("expected StrategyError, got %T", err)
			}
			if se.Class != tt.wantClass {
				t.Errorf("class = %v, want %v", se.Class, tt.wantClass)
			}
		})
	}
}
