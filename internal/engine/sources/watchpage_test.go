package sources

import (
	"testing"
)

const watchPageFixture = `<!DOCTYPE html>
<html><head><title>Test Video - YouTube</title></head>
<body>
<script>var someOther = {"x": 1};</script>
<script>var ytInitialPlayerResponse = {"videoDetails":{"videoId":"abc123def45","title":"Test \"Video\" Title"},"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[{"baseUrl":"https://www.youtube.com/api/timedtext?v=abc123def45","languageCode":"en","kind":"asr"}]}},"playabilityStatus":{"status":"OK"}};var meta = {};</script>
</body></html>`

func TestExtractPlayerResponse(t *testing.T) {
	pr, err := extractPlayerResponse([]byte(watchPageFixture))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pr.VideoDetails.VideoID != "abc123def45" {
		t.Errorf("videoId = %q", pr.VideoDetails.VideoID)
	}
	if pr.VideoDetails.Title != `Test "Video" Title` {
		t.Errorf("title = %q", pr.VideoDetails.Title)
	}
	if pr.Captions == nil {
		t.Fatal("captions missing")
	}
	tracks := pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) != 1 || tracks[0].LanguageCode != "en" {
		t.Errorf("tracks = %+v", tracks)
	}
}

func TestExtractPlayerResponseMissing(t *testing.T) {
	page := `<html><body><script>var unrelated = {"a":1};</script></body></html>`
	if _, err := extractPlayerResponse([]byte(page)); err == nil {
		t.Error("expected error when marker is absent")
	}
}

func TestMatchBraces(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", `{"a":1};rest`, `{"a":1}`},
		{"nested", `{"a":{"b":[1,2]}};`, `{"a":{"b":[1,2]}}`},
		{"brace in string", `{"t":"a } b"};`, `{"t":"a } b"}`},
		{"escaped quote", `{"t":"say \"hi\""};`, `{"t":"say \"hi\""}`},
		{"unbalanced", `{"a":1`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchBraces(tt.in); got != tt.want {
				t.Errorf("matchBraces(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsConsentWall(t *testing.T) {
	if !isConsentWall([]byte(`<a href="https://consent.youtube.com/m?continue=x">Accept</a>`)) {
		t.Error("consent redirect should be detected")
	}
	if !isConsentWall([]byte(`<div>Sign in to confirm you're not a bot</div>`)) {
		t.Error("sign-in wall should be detected")
	}
	if isConsentWall([]byte(watchPageFixture)) {
		t.Error("normal watch page misdetected as wall")
	}
}
