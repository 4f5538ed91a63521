package clipserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryawidjaja/go_clips/internal/engine"
	"github.com/aryawidjaja/go_clips/internal/engine/clips"
)

func TestMain(m *testing.M) {
	engine.Init(engine.Config{})

	dir, err := os.MkdirTemp("", "clipserver-test-*")
	if err != nil {
		panic(err)
	}
	clips.SetArchivePath(filepath.Join(dir, "archive.db"))

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

// stubStrategy returns a fixed transcript or error.
type stubStrategy struct {
	t   *engine.Transcript
	err error
}

func (s *stubStrategy) Name() string    { return "stub" }
func (s *stubStrategy) Available() bool { return true }
func (s *stubStrategy) Fetch(_ context.Context, videoID, _ string) (*engine.Transcript, error) {
	if s.err != nil {
		return nil, s.err
	}
	t := *s.t
	t.VideoID = videoID
	return &t, nil
}

func stubTranscript() *engine.Transcript {
	return &engine.Transcript{
		Title:    "Stub Video",
		Language: "en",
		Segments: []engine.TranscriptSegment{
			{Text: "a stub transcript segment that is comfortably past the length floor", Start: 0, End: 30},
		},
	}
}

func newTestServer(strat engine.Strategy) *Server {
	runner := &engine.Runner{
		Strategies:     []engine.Strategy{strat},
		AttemptTimeout: 2 * time.Second,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
	}
	return New(Options{
		Addr:          ":0",
		Runner:        runner,
		QueueCapacity: 4,
		ClientPerMin:  600,
		ClientBurst:   100,
	})
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateClipsAccepted(t *testing.T) {
	s := newTestServer(&stubStrategy{t: stubTranscript()})
	defer s.queue.Close()

	rec := doRequest(s, http.MethodPost, "/api/v1/clips",
		`{"url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp createClipsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "dQw4w9WgXcQ", resp.VideoID)
	assert.Equal(t, "queued", resp.Status)

	// Poll until the single worker finishes the job.
	deadline := time.After(5 * time.Second)
	for {
		rec = doRequest(s, http.MethodGet, "/api/v1/jobs/"+resp.JobID, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var job engine.Job
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
		if job.Status == engine.JobDone {
			result, ok := job.Result.(map[string]any)
			require.True(t, ok, "result should be an object")
			assert.Equal(t, "dQw4w9WgXcQ", result["video_id"])
			assert.NotEmpty(t, result["clips"])
			return
		}
		require.NotEqual(t, engine.JobFailed, job.Status, "job failed: %s", job.Error)

		select {
		case <-deadline:
			t.Fatalf("job stuck in %s", job.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// memStore is an in-memory jobStore double.
type memStore struct {
	mu   sync.Mutex
	jobs map[string]engine.Job
}

func newMemStore() *memStore { return &memStore{jobs: map[string]engine.Job{}} }

func (m *memStore) Save(_ context.Context, job *engine.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*engine.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &job, nil
}

func (m *memStore) Close() {}

func TestFinishedJobIsPersisted(t *testing.T) {
	s := newTestServer(&stubStrategy{t: stubTranscript()})
	defer s.queue.Close()
	store := newMemStore()
	s.store = store

	rec := doRequest(s, http.MethodPost, "/api/v1/clips",
		`{"url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp createClipsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// The store must end up with the terminal state, not the queued/running
	// snapshot: a restart serves jobs from there.
	deadline := time.After(5 * time.Second)
	for {
		stored, err := store.Get(context.Background(), resp.JobID)
		if err == nil && stored.Status == engine.JobDone {
			assert.NotNil(t, stored.FinishedAt, "stored job should carry the finish timestamp")
			assert.NotNil(t, stored.Result, "stored job should carry the result")
			return
		}
		select {
		case <-deadline:
			if err != nil {
				t.Fatalf("job never persisted: %v", err)
			}
			t.Fatalf("persisted job stuck in %s", stored.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestFailedJobIsPersistedWithError(t *testing.T) {
	s := newTestServer(&stubStrategy{
		err: engine.NewStrategyError("stub", engine.ClassNotFound, errors.New("gone")),
	})
	defer s.queue.Close()
	store := newMemStore()
	s.store = store

	rec := doRequest(s, http.MethodPost, "/api/v1/clips",
		`{"url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp createClipsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	deadline := time.After(5 * time.Second)
	for {
		stored, err := store.Get(context.Background(), resp.JobID)
		if err == nil && stored.Status == engine.JobFailed {
			assert.NotEmpty(t, stored.Error, "stored job should carry the failure message")
			assert.NotNil(t, stored.FinishedAt)
			return
		}
		select {
		case <-deadline:
			t.Fatal("failed job never reached the store in terminal state")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestCreateClipsBadRequest(t *testing.T) {
	s := newTestServer(&stubStrategy{t: stubTranscript()})
	defer s.queue.Close()

	rec := doRequest(s, http.MethodPost, "/api/v1/clips", `{"url":"https://vimeo.com/123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/v1/clips", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJobNotFound(t *testing.T) {
	s := newTestServer(&stubStrategy{t: stubTranscript()})
	defer s.queue.Close()

	rec := doRequest(s, http.MethodGet, "/api/v1/jobs/nonexistent", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTranscript(t *testing.T) {
	s := newTestServer(&stubStrategy{t: stubTranscript()})
	defer s.queue.Close()

	rec := doRequest(s, http.MethodGet, "/api/v1/transcript/dQw4w9WgXcQ", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var tr engine.Transcript
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	assert.Equal(t, "dQw4w9WgXcQ", tr.VideoID)
	assert.Equal(t, "stub", tr.Source)
	assert.NotEmpty(t, tr.Segments)
}

func TestGetTranscriptNotFound(t *testing.T) {
	s := newTestServer(&stubStrategy{
		err: engine.NewStrategyError("stub", engine.ClassNotFound, errors.New("gone")),
	})
	defer s.queue.Close()

	rec := doRequest(s, http.MethodGet, "/api/v1/transcript/aaaaaaaaaaa", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["attempts"], "failure response should include the attempt trail")
}

func TestGetTranscriptInvalidID(t *testing.T) {
	s := newTestServer(&stubStrategy{t: stubTranscript()})
	defer s.queue.Close()

	rec := doRequest(s, http.MethodGet, "/api/v1/transcript/notanid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(&stubStrategy{t: stubTranscript()})
	defer s.queue.Close()

	rec := doRequest(s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, true, health["ok"])

	rec = doRequest(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "extract_requests")
	assert.Contains(t, rec.Body.String(), "jobs_enqueued")
}

func TestRateLimitMiddleware(t *testing.T) {
	strat := &stubStrategy{t: stubTranscript()}
	runner := &engine.Runner{Strategies: []engine.Strategy{strat}, AttemptTimeout: time.Second}
	s := New(Options{
		Addr:         ":0",
		Runner:       runner,
		ClientPerMin: 1,
		ClientBurst:  2,
	})
	defer s.queue.Close()

	// Burst of 2 passes, the third request from the same IP is limited.
	for i := 0; i < 2; i++ {
		rec := doRequest(s, http.MethodGet, "/api/v1/jobs/whatever", "")
		require.NotEqual(t, http.StatusTooManyRequests, rec.Code, "request %d", i+1)
	}
	rec := doRequest(s, http.MethodGet, "/api/v1/jobs/whatever", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Health endpoint is outside the API limiter.
	rec = doRequest(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", getClientIP(req))

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", getClientIP(req))
}
