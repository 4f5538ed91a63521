package engine

import (
	"context"
	"testing"
	"time"
)

func TestCacheKeyDeterministic(t *testing.T) {
	k1 := CacheKey("transcript", "abc12345678", "en")
	k2 := CacheKey("transcript", "abc12345678", "en")
	k3 := CacheKey("transcript", "abc12345678", "id")
	if k1 != k2 {
		t.Error("same parts must produce the same key")
	}
	if k1 == k3 {
		t.Error("different parts must produce different keys")
	}
	if len(k1) != 3+24 {
		t.Errorf("unexpected key length %d: %q", len(k1), k1)
	}
}

func TestCacheGetMissBeforeInit(t *testing.T) {
	if transcriptCache == nil {
		if _, ok := CacheGet(context.Background(), CacheKey("x")); ok {
			t.Error("uninitialized cache must miss, not panic")
		}
	}
}

func TestCacheSetGet(t *testing.T) {
	InitCache("", time.Minute, 10, time.Minute)

	tr := &Transcript{
		VideoID:  "cachevid0001",
		Language: "en",
		Source:   "native",
		Segments: []TranscriptSegment{{Text: "cached segment", Start: 0, End: 2}},
	}
	key := CacheKey("transcript", tr.VideoID, tr.Language)
	CacheSet(context.Background(), key, tr)

	got, ok := CacheGet(context.Background(), key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.VideoID != tr.VideoID || got.Source != tr.Source || len(got.Segments) != 1 {
		t.Errorf("cached transcript mangled: %+v", got)
	}
}

func TestCacheExpiry(t *testing.T) {
	InitCache("", 10*time.Millisecond, 10, time.Minute)

	tr := &Transcript{VideoID: "cachevid0002", Segments: []TranscriptSegment{{Text: "x", Start: 0, End: 1}}}
	key := CacheKey("transcript", tr.VideoID, "en")
	CacheSet(context.Background(), key, tr)

	time.Sleep(20 * time.Millisecond)
	if _, ok := CacheGet(context.Background(), key); ok {
		t.Error("expired entry must not be served")
	}
}

func TestCacheEviction(t *testing.T) {
	InitCache("", time.Minute, 2, time.Minute)

	ctx := context.Background()
	for _, id := range []string{"evictvid0001", "evictvid0002", "evictvid0003"} {
		CacheSet(ctx, CacheKey("transcript", id, "en"),
			&Transcript{VideoID: id, Segments: []TranscriptSegment{{Text: "x", Start: 0, End: 1}}})
	}

	count := 0
	transcriptCache.l1.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count > 2 {
		t.Errorf("L1 exceeded max entries: %d > 2", count)
	}
}
