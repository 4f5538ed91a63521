package sources

import (
	"context"
	"fmt"

	"github.com/aryawidjaja/go_clips/internal/engine"
)

// InnertubeStrategy extracts captions through the Innertube /player endpoint
// with the ANDROID client, which sidesteps the PoToken requirement that the
// WEB client triggers on datacenter IPs.
type InnertubeStrategy struct{}

func NewInnertubeStrategy() *InnertubeStrategy { return &InnertubeStrategy{} }

func (s *InnertubeStrategy) Name() string { return "innertube" }

func (s *InnertubeStrategy) Available() bool { return true }

func (s *InnertubeStrategy) Fetch(ctx context.Context, videoID, lang string) (*engine.Transcript, error) {
	pr, err := postPlayer(ctx, s.Name(), videoID)
	if err != nil {
		return nil, err
	}

	if err := checkPlayability(s.Name(), pr); err != nil {
		return nil, err
	}

	if pr.Captions == nil || len(pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks) == 0 {
		return nil, engine.NewStrategyError(s.Name(), engine.ClassNoCaptions,
			fmt.Errorf("video %s has no caption tracks", videoID))
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
