package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/aryawidjaja/go_clips/internal/engine"
)

// defaultInvidiousInstances are public mirrors used when no instance list is
// configured. Mirrors come and go; the config list takes precedence.
var defaultInvidiousInstances = []string{
	"https://inv.nadeko.net",
	"https://yewtu.be",
	"https://invidious.nerdvpn.de",
}

// InvidiousStrategy fetches captions from Invidious mirror instances, which
// proxy YouTube from their own IPs. Instances rotate per call so one dead
// mirror does not pin the strategy. The rotation index is atomic: one
// strategy value serves all concurrent requests.
type InvidiousStrategy struct {
	instances []string
	next      atomic.Int64
}

func NewInvidiousStrategy(instances []string) *InvidiousStrategy {
	if len(instances) == 0 {
		instances = defaultInvidiousInstances
	}
	cleaned := make([]string, 0, len(instances))
	for _, inst := range instances {
		inst = strings.TrimRight(strings.TrimSpace(inst), "/")
		if inst != "" {
			cleaned = append(cleaned, inst)
		}
	}
	return &InvidiousStrategy{instances: cleaned}
}

func (s *InvidiousStrategy) Name() string { return "invidious" }

func (s *InvidiousStrategy) Available() bool { return len(s.instances) > 0 }

func (s *InvidiousStrategy) Fetch(ctx context.Context, videoID, lang string) (*engine.Transcript, error) {
	var errs []error

	for range s.instances {
		inst := s.nextInstance()

		t, err := s.fetchFrom(ctx, inst, videoID, lang)
		if err == nil {
			return t, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", inst, err))

		if engine.Classify(err).Terminal() {
			return nil, err
		}
		if ctx.Err() != nil {
			break
		}
		slog.Debug("invidious: instance failed, rotating",
			slog.String("instance", inst),
			slog.Any("error", err))
	}

	return nil, fmt.Errorf("all invidious instances failed: %w", errors.Join(errs...))
}

// nextInstance returns the next mirror in round-robin order.
func (s *InvidiousStrategy) nextInstance() string {
	idx := int(s.next.Add(1)-1) % len(s.instances)
	return s.instances[idx]
}

// invidiousCaption is one entry of the /api/v1/captions/{id} listing.
type invidiousCaption struct {
	Label        string `json:"label"`
	LanguageCode string `json:"languageCode"`
	URL          string `json:"url"`
}

// fetchFrom gets captions from one instance. The listing comes as JSON; the
// caption body itself is WebVTT.
func (s *InvidiousStrategy) fetchFrom(ctx context.Context, instance, videoID, lang string) (*engine.Transcript, error) {
	listURL := fmt.Sprintf("%s/api/v1/captions/%s", instance, videoID)
	resp, err := engine.FetchWithRetry(ctx, listURL, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, err
	}
	listBody, err := engine.ReadResponseBody(resp)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read caption listing: %w", err)
	}

	track, err := pickInvidiousCaption(listBody, lang)
	if err != nil {
		return nil, engine.NewStrategyError(s.Name(), engine.ClassNoCaptions, err)
	}

	capURL := fmt.Sprintf("%s/api/v1/captions/%s?label=%s", instance, videoID, url.QueryEscape(track.Label))
	resp, err = engine.FetchWithRetry(ctx, capURL, nil)
	if err != nil {
		return nil, err
	}
	raw, err := engine.ReadResponseBody(resp)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read caption body: %w", err)
	}
	if len(raw) == 0 {
		return nil, engine.NewStrategyError(s.Name(), engine.ClassNoCaptions,
			fmt.Errorf("empty caption body for %s", videoID))
	}

	segs, err := engine.Normalize(engine.DetectFormat(raw), raw)
	if err != nil {
		return nil, engine.NewStrategyError(s.Name(), engine.ClassFormat, err)
	}

	return &engine.Transcript{
		VideoID:  videoID,
		Language: track.LanguageCode,
		Segments: segs,
	}, nil
}

// pickInvidiousCaption chooses a track from the listing JSON using the same
// preference order as the direct strategies.
func pickInvidiousCaption(listing []byte, lang string) (*invidiousCaption, error) {
	var payload struct {
		Captions []invidiousCaption `json:"captions"`
	}
	if err := json.Unmarshal(listing, &payload); err != nil {
		return nil, fmt.Errorf("decode caption listing: %w", err)
	}
	if len(payload.Captions) == 0 {
		return nil, fmt.Errorf("no captions listed")
	}

	tracks := make([]captionTrack, len(payload.Captions))
	for i, c := range payload.Captions {
		tracks[i] = captionTrack{BaseURL: c.URL, LanguageCode: c.LanguageCode}
	}
	chosen, err := selectCaptionTrack(tracks, lang)
	if err != nil {
		return nil, err
	}
	for i := range payload.Captions {
		if payload.Captions[i].LanguageCode == chosen.LanguageCode && payload.Captions[i].URL == chosen.BaseURL {
			return &payload.Captions[i], nil
		}
	}
	return &payload.Captions[0], nil
}
