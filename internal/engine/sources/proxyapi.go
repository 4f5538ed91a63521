package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aryawidjaja/go_clips/internal/engine"
)

// ProxyAPIStrategy routes the watch-page fetch through a paid scraping proxy
// with residential IPs and anti-bot bypass. Last resort: it costs money per
// request, so it sits at the end of the default cascade order and is disabled
// entirely without an API key.
type ProxyAPIStrategy struct {
	apiKey  string
	apiBase string
}

func NewProxyAPIStrategy(apiKey, apiBase string) *ProxyAPIStrategy {
	if apiBase == "" {
		apiBase = "https://api.scraperapi.com"
	}
	return &ProxyAPIStrategy{apiKey: apiKey, apiBase: strings.TrimRight(apiBase, "/")}
}

func (s *ProxyAPIStrategy) Name() string { return "proxyapi" }

func (s *ProxyAPIStrategy) Available() bool { return s.apiKey != "" }

func (s *ProxyAPIStrategy) Fetch(ctx context.Context, videoID, lang string) (*engine.Transcript, error) {
	watchURL := "https://www.youtube.com/watch?v=" + videoID

	page, err := s.proxyGet(ctx, watchURL)
	if err != nil {
		return nil, err
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
			fmt.Errorf("proxied watch page has no caption tracks for %s", videoID))
	}

	track, err := selectCaptionTrack(pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks, lang)
	if err != nil {
		return nil, engine.NewStrategyError(s.Name(), engine.ClassNoCaptions, err)
	}

	// The caption track URL must also go through the proxy; YouTube binds
	// timedtext URLs to the requesting IP.
	if needsPoToken(track.BaseURL) {
		return nil, engine.NewStrategyError(s.Name(), engine.ClassBotDetection,
			fmt.Errorf("caption track requires PoToken"))
	}
	trackURL := track.BaseURL
	if u, perr := url.Parse(trackURL); perr == nil {
		q := u.Query()
		q.Set("fmt", "json3")
		u.RawQuery = q.Encode()
		trackURL = u.String()
	}
	raw, err := s.proxyGet(ctx, trackURL)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, engine.NewStrategyError(s.Name(), engine.ClassNoCaptions,
			fmt.Errorf("empty caption response for %s", videoID))
	}

	segs, err := engine.Normalize(engine.DetectFormat(raw), raw)
	if err != nil {
		return nil, engine.NewStrategyError(s.Name(), engine.ClassFormat, err)
	}

	return &engine.Transcript{
		VideoID:  videoID,
		Title:    pr.VideoDetails.Title,
		Language: track.LanguageCode,
		Segments: segs,
	}, nil
}

// proxyGet fetches target through the scraping API's GET interface
// (?api_key=...&url=<target>).
func (s *ProxyAPIStrategy) proxyGet(ctx context.Context, target string) ([]byte, error) {
	q := url.Values{}
	q.Set("api_key", s.apiKey)
	q.Set("url", target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiBase+"/?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := engine.Cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxy request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("proxy read: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return data, nil
	case http.StatusUnauthorized, http.StatusPaymentRequired:
		return nil, fmt.Errorf("proxy api rejected key (status %d): %s", resp.StatusCode, proxyErrMsg(data))
	case http.StatusForbidden, http.StatusTooManyRequests:
		return nil, engine.NewStrategyError(s.Name(), engine.ClassBotDetection,
			fmt.Errorf("proxy api status %d: %s", resp.StatusCode, proxyErrMsg(data)))
	default:
		return nil, fmt.Errorf("proxy api status %d: %s", resp.StatusCode, proxyErrMsg(data))
	}
}

// proxyErrMsg extracts the error message from a proxy API JSON error body.
func proxyErrMsg(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	if len(data) > 200 {
		data = data[:200]
	}
	return string(data)
}
