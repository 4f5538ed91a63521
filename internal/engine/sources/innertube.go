// Package sources implements the individual transcript extraction strategies
// run by the engine cascade.
package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aryawidjaja/go_clips/internal/engine"
)

// YouTube Innertube API — low-level constants, types, and HTTP primitives.
// Higher-level logic lives in the strategy files.

const (
	ytPlayerURL      = "https://www.youtube.com/youtubei/v1/player"
	ytAndroidVersion = "20.10.38"
	ytAndroidSdk     = 30
	ytAndroidUA      = "com.google.android.youtube/" + ytAndroidVersion + " (Linux; U; Android 11) gzip"
)

// preferredLangs is the caption language preference order when the requested
// language is absent.
var preferredLangs = []string{"en", "en-US", "id", "en-GB"}

// --- ANDROID client types (/player endpoint) ---

type innertubeReq struct {
	VideoID        string       `json:"videoId"`
	Context        innertubeCtx `json:"context"`
	RacyCheckOk    bool         `json:"racyCheckOk"`
	ContentCheckOk bool         `json:"contentCheckOk"`
}

type innertubeCtx struct {
	Client innertubeClient `json:"client"`
}

type innertubeClient struct {
	ClientName        string `json:"clientName"`
	ClientVersion     string `json:"clientVersion"`
	AndroidSdkVersion int    `json:"androidSdkVersion,omitempty"`
	Hl                string `json:"hl,omitempty"`
	Gl                string `json:"gl,omitempty"`
}

// playerResponse is the subset of the /player payload the strategies need.
// The same shape appears inline as ytInitialPlayerResponse on the watch page.
type playerResponse struct {
	VideoDetails struct {
		VideoID string `json:"videoId"`
		Title   string `json:"title"`
	} `json:"videoDetails"`
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" = auto-generated
}

// postPlayer calls the Innertube /player endpoint with the ANDROID client,
// which returns caption data without a PoToken on most networks.
func postPlayer(ctx context.Context, strategy, videoID string) (*playerResponse, error) {
	payload := innertubeReq{
		VideoID: videoID,
		Context: innertubeCtx{
			Client: innertubeClient{
				ClientName:        "ANDROID",
				ClientVersion:     ytAndroidVersion,
				AndroidSdkVersion: ytAndroidSdk,
				Hl:                "en",
				Gl:                "US",
			},
		},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal player request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ytPlayerURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", ytAndroidUA)

	resp, err := engine.Cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("player request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
		return nil, engine.NewStrategyError(strategy, engine.ClassBotDetection,
			fmt.Errorf("player endpoint status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("player endpoint status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read player response: %w", err)
	}

	var pr playerResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("decode player response: %w", err)
	}
	return &pr, nil
}

// checkPlayability turns playability failures into classified errors.
func checkPlayability(strategy string, pr *playerResponse) error {
	if pr.PlayabilityStatus == nil {
		return nil
	}
	status := pr.PlayabilityStatus.Status
	reason := pr.PlayabilityStatus.Reason
	switch status {
	case "", "OK":
		return nil
	case "LOGIN_REQUIRED":
		return engine.NewStrategyError(strategy, engine.ClassBotDetection,
			fmt.Errorf("login required: %s", reason))
	case "UNPLAYABLE", "ERROR":
		return engine.NewStrategyError(strategy, engine.ClassNotFound,
			fmt.Errorf("video unavailable: %s", reason))
	default:
		return fmt.Errorf("playability %s: %s", status, reason)
	}
}

// selectCaptionTrack picks the best track for lang.
// Priority: exact match → prefix match → preferred language list → first.
func selectCaptionTrack(tracks []captionTrack, lang string) (*captionTrack, error) {
	if len(tracks) == 0 {
		return nil, fmt.Errorf("no caption tracks")
	}

	for i := range tracks {
		if tracks[i].LanguageCode == lang {
			return &tracks[i], nil
		}
	}

	prefix := strings.Split(lang, "-")[0]
	for i := range tracks {
		if strings.HasPrefix(tracks[i].LanguageCode, prefix) {
			return &tracks[i], nil
		}
	}

	for _, pref := range preferredLangs {
		for i := range tracks {
			if tracks[i].LanguageCode == pref {
				return &tracks[i], nil
			}
		}
	}

	return &tracks[0], nil
}

// needsPoToken reports whether a caption track URL requires a PoToken
// (browser-only). Tracks with &exp=xpe cannot be fetched server-side.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// fetchCaptionTrack downloads a caption track as JSON3 and normalizes it.
// The track baseURL serves XML by default; fmt=json3 switches formats.
func fetchCaptionTrack(ctx context.Context, strategy string, track *captionTrack) ([]engine.TranscriptSegment, error) {
	if needsPoToken(track.BaseURL) {
		return nil, engine.NewStrategyError(strategy, engine.ClassBotDetection,
			fmt.Errorf("caption track requires PoToken"))
	}

	trackURL := track.BaseURL
	if u, err := url.Parse(trackURL); err == nil {
		q := u.Query()
		q.Set("fmt", "json3")
		u.RawQuery = q.Encode()
		trackURL = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trackURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", ytAndroidUA)

	resp, err := engine.Cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch captions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
		return nil, engine.NewStrategyError(strategy, engine.ClassBotDetection,
			fmt.Errorf("caption fetch status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("caption fetch status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read captions: %w", err)
	}
	if len(data) == 0 {
		return nil, engine.NewStrategyError(strategy, engine.ClassNoCaptions,
			fmt.Errorf("empty caption response"))
	}

	segs, err := engine.Normalize(engine.DetectFormat(data), data)
	if err != nil {
		return nil, engine.NewStrategyError(strategy, engine.ClassFormat, err)
	}
	return segs, nil
}
