package clipserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/aryawidjaja/go_clips/internal/engine"
	"github.com/aryawidjaja/go_clips/internal/engine/clips"
)

type createClipsRequest struct {
	URL         string `json:"url"`
	Lang        string `json:"lang,omitempty"`
	TargetCount int    `json:"target_count,omitempty"`
}

type createClipsResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	VideoID string `json:"video_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleCreateClips accepts a video URL and enqueues the extract+segment job.
// Responds 202 with the job ID; clients poll /jobs/{id}.
func (s *Server) handleCreateClips(w http.ResponseWriter, r *http.Request) {
	var req createClipsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	videoID, err := engine.ExtractVideoID(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.queue.Enqueue(videoID, req.Lang, req.TargetCount)
	if err != nil {
		msg := "job queue is full, retry later"
		if errors.Is(err, engine.ErrQueueClosed) {
			msg = "server is shutting down"
		}
		writeError(w, http.StatusServiceUnavailable, msg)
		return
	}

	// Persistence is best-effort; the in-memory queue is canonical.
	if s.store != nil {
		if serr := s.store.Save(r.Context(), &job); serr != nil {
			slog.Warn("server: job persistence failed",
				slog.String("job_id", job.ID),
				slog.Any("error", serr))
		}
	}

	writeJSON(w, http.StatusAccepted, createClipsResponse{
		JobID: job.ID, Status: string(job.Status), VideoID: videoID,
	})
}

// handleGetJob returns job state. Falls back to the persistent store for jobs
// that predate the current process.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if job, ok := s.queue.Get(id); ok {
		writeJSON(w, http.StatusOK, job)
		return
	}

	if s.store != nil {
		if job, err := s.store.Get(r.Context(), id); err == nil {
			writeJSON(w, http.StatusOK, job)
			return
		}
	}

	writeError(w, http.StatusNotFound, fmt.Sprintf("job %s not found", id))
}

// handleGetTranscript runs the extraction cascade synchronously. Cached
// transcripts return immediately; cold requests can take the full cascade.
func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	videoID := mux.Vars(r)["videoID"]
	if _, err := engine.ExtractVideoID(videoID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid video ID")
		return
	}
	lang := r.URL.Query().Get("lang")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	t, attempts, err := s.runner.Run(ctx, videoID, lang)
	if err != nil {
		status := http.StatusBadGateway
		if engine.Classify(err) == engine.ClassNotFound {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]any{
			"error":    err.Error(),
			"attempts": attemptSummaries(attempts),
		})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleListClips returns archived clips for a video.
func (s *Server) handleListClips(w http.ResponseWriter, r *http.Request) {
	videoID := mux.Vars(r)["videoID"]
	if _, err := engine.ExtractVideoID(videoID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid video ID")
		return
	}

	archived, err := clips.ListArchived(r.Context(), videoID, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "archive lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"video_id": videoID,
		"clips":    archived,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": "go_clips",
		"queued":  s.queue.Len(),
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(engine.FormatMetrics()))
}

// processJob is the queue worker body: extract, segment, archive, persist.
func (s *Server) processJob(ctx context.Context, job *engine.Job) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	t, _, err := s.runner.Run(ctx, job.VideoID, job.Lang)
	if err != nil {
		return nil, err
	}

	set, err := clips.Segment(ctx, t, clips.Options{TargetCount: job.TargetCount})
	if err != nil {
		return nil, err
	}

	if err := clips.SaveClips(ctx, t.VideoID, t.Title, set); err != nil {
		// Archive failures don't void the result.
		slog.Warn("server: clip archive write failed",
			slog.String("video_id", t.VideoID),
			slog.Any("error", err))
	}

	return map[string]any{
		"video_id": t.VideoID,
		"title":    t.Title,
		"language": t.Language,
		"source":   t.Source,
		"clips":    set,
	}, nil
}

// persistFinished is the queue's completion hook: it writes the terminal job
// snapshot (status, error, result, timestamps) to the store so finished jobs
// survive restarts.
func (s *Server) persistFinished(job engine.Job) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.Save(ctx, &job); err != nil {
		slog.Warn("server: job persistence failed",
			slog.String("job_id", job.ID),
			slog.Any("error", err))
	}
}

func attemptSummaries(attempts []engine.Attempt) []map[string]any {
	out := make([]map[string]any, 0, len(attempts))
	for _, a := range attempts {
		entry := map[string]any{
			"strategy":   a.Strategy,
			"elapsed_ms": a.Elapsed.Milliseconds(),
		}
		if a.Err != nil {
			entry["class"] = a.Class.String()
			entry["error"] = a.Err.Error()
		}
		out = append(out, entry)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
