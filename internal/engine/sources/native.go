package sources

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"

	youtube "github.com/kkdai/youtube/v2"

	"github.com/aryawidjaja/go_clips/internal/engine"
)

// NativeStrategy uses the kkdai/youtube library's transcript endpoint. It is
// the cheapest strategy (no scraping, no subprocess) but also the first to
// break when YouTube tightens bot checks, so failures here are expected and
// the cascade moves on.
type NativeStrategy struct {
	client youtube.Client
}

func NewNativeStrategy(httpClient *http.Client) *NativeStrategy {
	return &NativeStrategy{client: youtube.Client{HTTPClient: httpClient}}
}

func (s *NativeStrategy) Name() string { return "native" }

func (s *NativeStrategy) Available() bool { return true }

func (s *NativeStrategy) Fetch(ctx context.Context, videoID, lang string) (*engine.Transcript, error) {
	video, err := s.client.GetVideoContext(ctx, videoID)
	if err != nil {
		// kkdai errors are opaque strings; Classify's signature table
		// sorts out bot walls vs missing videos.
		return nil, fmt.Errorf("get video: %w", err)
	}

	transcript, err := s.client.GetTranscriptCtx(ctx, video, lang)
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	if len(transcript) == 0 {
		return nil, engine.NewStrategyError(s.Name(), engine.ClassNoCaptions,
			fmt.Errorf("video %s transcript is empty", videoID))
	}

	segs := make([]engine.TranscriptSegment, 0, len(transcript))
	for _, seg := range transcript {
		text := strings.TrimSpace(html.UnescapeString(seg.Text))
		if text == "" {
			continue
		}
		start := float64(seg.StartMs) / 1000.0
		segs = append(segs, engine.TranscriptSegment{
			Text:  text,
			Start: start,
			End:   start + float64(seg.Duration)/1000.0,
		})
	}

	return &engine.Transcript{
		VideoID:  videoID,
		Title:    video.Title,
		Language: lang,
		Segments: segs,
	}, nil
}
