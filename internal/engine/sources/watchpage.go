package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aryawidjaja/go_clips/internal/engine"
)

// WatchPageStrategy scrapes the video watch page for the inline
// ytInitialPlayerResponse object and pulls caption tracks from it. With a
// browser-fingerprint client and cookies this often works where the API
// clients get walled.
type WatchPageStrategy struct {
	browser *engine.BrowserClient
}

func NewWatchPageStrategy(browser *engine.BrowserClient) *WatchPageStrategy {
	return &WatchPageStrategy{browser: browser}
}

func (s *WatchPageStrategy) Name() string { return "watchpage" }

func (s *WatchPageStrategy) Available() bool { return true }

func (s *WatchPageStrategy) Fetch(ctx context.Context, videoID, lang string) (*engine.Transcript, error) {
	watchURL := "https://www.youtube.com/watch?v=" + videoID

	page, err := s.fetchPage(ctx, watchURL)
	if err != nil {
		return nil, err
	}

	if isConsentWall(page) {
		return nil, engine.NewStrategyError(s.Name(), engine.ClassBotDetection,
			fmt.Errorf("watch page served a consent/login wall"))
	}

	pr, err := extractPlayerResponse(page)
	if err != nil {
		return nil, engine.NewStrategyError(s.Name(), engine.ClassFormat, err)
	}

	if err := checkPlayability(s.Name(), pr); err != nil {
		return nil, err
	}
	if pr.Captions == nil || len(pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks) == 0 {
		return nil, engine.NewStrategyError(s.Name(), engine.ClassNoCaptions,
			fmt.Errorf("watch page has no caption tracks for %s", videoID))
	}

	track, err := selectCaptionTrack(pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks, lang)
	if err != nil {
		return nil, engine.NewStrategyError(s.Name(), engine.ClassNoCaptions, err)
	}

	segs, err := fetchCaptionTrack(ctx, s.Name(), track)
	if err != nil {
		return nil, err
	}

	return &engine.Transcript{
		VideoID:  videoID,
		Title:    pr.VideoDetails.Title,
		Language: track.LanguageCode,
		Segments: segs,
	}, nil
}

// fetchPage prefers the TLS-fingerprinted browser client when configured and
// falls back to the plain HTTP client.
func (s *WatchPageStrategy) fetchPage(ctx context.Context, watchURL string) ([]byte, error) {
	if s.browser != nil {
		return s.browser.Get(watchURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, watchURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range engine.ChromeHeaders() {
		req.Header.Set(k, v)
	}

	resp, err := engine.Cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch watch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
		return nil, engine.NewStrategyError(s.Name(), engine.ClassBotDetection,
			fmt.Errorf("watch page status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("watch page status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// isConsentWall detects the EU consent interstitial and the "sign in to
// confirm" page, both of which return 200 with no player data.
func isConsentWall(page []byte) bool {
	lower := bytes.ToLower(page)
	return bytes.Contains(lower, []byte("consent.youtube.com")) ||
		bytes.Contains(lower, []byte("sign in to confirm"))
}

// extractPlayerResponse locates the ytInitialPlayerResponse assignment inside
// the page's inline <script> tags and decodes the balanced JSON object that
// follows it.
func extractPlayerResponse(page []byte) (*playerResponse, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse watch page: %w", err)
	}

	const marker = "ytInitialPlayerResponse"
	var raw string
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		idx := strings.Index(text, marker)
		if idx == -1 {
			return true
		}
		brace := strings.Index(text[idx:], "{")
		if brace == -1 {
			return true
		}
		raw = matchBraces(text[idx+brace:])
		return raw == ""
	})
	if raw == "" {
		return nil, fmt.Errorf("ytInitialPlayerResponse not found in watch page")
	}

	var pr playerResponse
	if err := json.Unmarshal([]byte(raw), &pr); err != nil {
		return nil, fmt.Errorf("decode player response: %w", err)
	}
	return &pr, nil
}

// matchBraces returns the balanced {...} prefix of s, string-literal aware.
func matchBraces(s string) string {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
