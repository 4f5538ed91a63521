package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeStrategy is a scriptable Strategy for cascade tests.
type fakeStrategy struct {
	name      string
	available bool
	calls     int
	fetch     func(call int) (*Transcript, error)
}

func (f *fakeStrategy) Name() string    { return f.name }
func (f *fakeStrategy) Available() bool { return f.available }
func (f *fakeStrategy) Fetch(_ context.Context, videoID, _ string) (*Transcript, error) {
	f.calls++
	return f.fetch(f.calls)
}

func validFake(videoID string) *Transcript {
	return &Transcript{
		VideoID: videoID,
		Segments: []TranscriptSegment{
			{Text: "a transcript segment long enough to pass minimum validation checks", Start: 0, End: 5},
		},
	}
}

func failWith(class ErrorClass) func(int) (*Transcript, error) {
	return func(int) (*Transcript, error) {
		return nil, NewStrategyError("fake", class, errors.New("scripted failure"))
	}
}

func succeed(videoID string) func(int) (*Transcript, error) {
	return func(int) (*Transcript, error) { return validFake(videoID), nil }
}

func newTestRunner(strategies ...Strategy) *Runner {
	return &Runner{
		Strategies:     strategies,
		AttemptTimeout: time.Second,
		MaxRetries:     0,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
	}
}

func TestRunnerStopsAtFirstSuccess(t *testing.T) {
	first := &fakeStrategy{name: "first", available: true, fetch: failWith(ClassNoCaptions)}
	second := &fakeStrategy{name: "second", available: true, fetch: succeed("vid_success_1")}
	third := &fakeStrategy{name: "third", available: true, fetch: succeed("vid_success_1")}

	r := newTestRunner(first, second, third)
	tr, attempts, err := r.Run(context.Background(), "vid_success_1", "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Source != "second" {
		t.Errorf("Source = %q, want second", tr.Source)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls: first=%d second=%d, want 1/1", first.calls, second.calls)
	}
	if third.calls != 0 {
		t.Errorf("strategies after the winner must never run, third called %d times", third.calls)
	}
	if len(attempts) != 2 {
		t.Errorf("expected 2 attempts, got %d", len(attempts))
	}
}

func TestRunnerSkipsUnavailable(t *testing.T) {
	offline := &fakeStrategy{name: "offline", available: false, fetch: succeed("vid_skip_1")}
	online := &fakeStrategy{name: "online", available: true, fetch: succeed("vid_skip_1")}

	r := newTestRunner(offline, online)
	tr, _, err := r.Run(context.Background(), "vid_skip_1", "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if offline.calls != 0 {
		t.Error("unavailable strategy must not be attempted")
	}
	if tr.Source != "online" {
		t.Errorf("Source = %q, want online", tr.Source)
	}
}

func TestRunnerTerminalStopsCascade(t *testing.T) {
	gone := &fakeStrategy{name: "gone", available: true, fetch: failWith(ClassNotFound)}
	next := &fakeStrategy{name: "next", available: true, fetch: succeed("vid_term_1")}

	r := newTestRunner(gone, next)
	_, _, err := r.Run(context.Background(), "vid_term_1", "en")
	if err == nil {
		t.Fatal("expected error")
	}
	if next.calls != 0 {
		t.Error("terminal failure must stop the cascade before later strategies")
	}
}

func TestRunnerRetriesRetryableClass(t *testing.T) {
	flaky := &fakeStrategy{name: "flaky", available: true, fetch: func(call int) (*Transcript, error) {
		if call < 3 {
			return nil, NewStrategyError("flaky", ClassNetwork, errors.New("connection reset"))
		}
		return validFake("vid_retry_1"), nil
	}}

	r := newTestRunner(flaky)
	r.MaxRetries = 3
	tr, attempts, err := r.Run(context.Background(), "vid_retry_1", "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flaky.calls != 3 {
		t.Errorf("expected 3 calls, got %d", flaky.calls)
	}
	if len(attempts) != 3 {
		t.Errorf("expected 3 attempt records, got %d", len(attempts))
	}
	if tr.Source != "flaky" {
		t.Errorf("Source = %q", tr.Source)
	}
}

func TestRunnerDoesNotRetryNonRetryable(t *testing.T) {
	s := &fakeStrategy{name: "nocaps", available: true, fetch: failWith(ClassNoCaptions)}

	r := newTestRunner(s)
	r.MaxRetries = 3
	_, _, err := r.Run(context.Background(), "vid_noretry_1", "en")
	if err == nil {
		t.Fatal("expected error")
	}
	if s.calls != 1 {
		t.Errorf("no_captions must not retry, got %d calls", s.calls)
	}
}

func TestRunnerRejectsInvalidTranscript(t *testing.T) {
	short := &fakeStrategy{name: "short", available: true, fetch: func(int) (*Transcript, error) {
		return &Transcript{VideoID: "vid_invalid_1", Segments: []TranscriptSegment{{Text: "hi", Start: 0, End: 1}}}, nil
	}}
	good := &fakeStrategy{name: "good", available: true, fetch: succeed("vid_invalid_1")}

	r := newTestRunner(short, good)
	tr, _, err := r.Run(context.Background(), "vid_invalid_1", "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Source != "good" {
		t.Errorf("invalid transcript must not win, Source = %q", tr.Source)
	}
}

func TestRunnerJoinsAllFailures(t *testing.T) {
	a := &fakeStrategy{name: "a", available: true, fetch: failWith(ClassNoCaptions)}
	b := &fakeStrategy{name: "b", available: true, fetch: failWith(ClassFormat)}

	r := newTestRunner(a, b)
	_, attempts, err := r.Run(context.Background(), "vid_join_1", "en")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	for _, want := range []string{"a", "b"} {
		found := false
		for _, at := range attempts {
			if at.Strategy == want {
				found = true
			}
		}
		if !found {
			t.Errorf("attempt trail missing strategy %q", want)
		}
	}
	msg := fmt.Sprintf("%v", err)
	if msg == "" {
		t.Error("aggregate error should carry detail")
	}
}

func TestRunnerOrderProperty(t *testing.T) {
	// For every K: strategies before K each attempted once, K succeeds,
	// strategies after K never attempted.
	for k := 0; k < 4; k++ {
		strategies := make([]Strategy, 4)
		fakes := make([]*fakeStrategy, 4)
		for i := 0; i < 4; i++ {
			f := &fakeStrategy{name: fmt.Sprintf("s%d", i), available: true}
			if i == k {
				f.fetch = succeed(fmt.Sprintf("vid_order_%d", k))
			} else {
				f.fetch = failWith(ClassNoCaptions)
			}
			fakes[i] = f
			strategies[i] = f
		}

		r := newTestRunner(strategies...)
		tr, _, err := r.Run(context.Background(), fmt.Sprintf("vid_order_%d", k), "en")
		if err != nil {
			t.Fatalf("k=%d: unexpected error: %v", k, err)
		}
		if tr.Source != fmt.Sprintf("s%d", k) {
			t.Errorf("k=%d: Source = %q", k, tr.Source)
		}
		for i, f := range fakes {
			want := 0
			if i <= k {
				want = 1
			}
			if f.calls != want {
				t.Errorf("k=%d: strategy %d called %d times, want %d", k, i, f.calls, want)
			}
		}
	}
}
