// Package clipserver exposes the extraction and segmentation engine over HTTP.
package clipserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/aryawidjaja/go_clips/internal/engine"
)

// jobStore is the persistence surface the server needs; *JobStore satisfies
// it.
type jobStore interface {
	Save(ctx context.Context, job *engine.Job) error
	Get(ctx context.Context, id string) (*engine.Job, error)
	Close()
}

// Server wires the cascade runner, the job queue and the optional persistent
// job store behind a mux router.
type Server struct {
	runner    *engine.Runner
	queue     *engine.JobQueue
	store     jobStore // nil = in-memory jobs only
	ipLimiter *engine.KeyedLimiter
	http      *http.Server
}

// Options configures the server.
type Options struct {
	Addr           string
	Runner         *engine.Runner
	Store          *JobStore
	QueueCapacity  int
	ClientPerMin   int // per-IP request rate limit
	ClientBurst    int
	AllowedOrigins []string
}

// New builds the server and its job queue. The queue worker processes one
// job at a time: extract, segment, archive.
func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ClientPerMin <= 0 {
		opts.ClientPerMin = 30
	}
	if opts.ClientBurst <= 0 {
		opts.ClientBurst = 10
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		runner:    opts.Runner,
		ipLimiter: engine.NewKeyedLimiter(opts.ClientPerMin, opts.ClientBurst, 5*time.Minute),
	}
	if opts.Store != nil {
		s.store = opts.Store
	}
	s.queue = engine.NewJobQueue(opts.QueueCapacity, s.processJob, s.persistFinished)

	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/clips", s.handleCreateClips).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}", s.handleGetJob).Methods(http.MethodGet)
	api.HandleFunc("/transcript/{videoID}", s.handleGetTranscript).Methods(http.MethodGet)
	api.HandleFunc("/clips/{videoID}", s.handleListClips).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	handler := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(r)

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}
	return s
}

// ListenAndServe blocks serving HTTP until the context is cancelled, then
// shuts down gracefully and drains the job queue.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server: listening", slog.String("addr", s.http.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := s.http.Shutdown(shutdownCtx)

	s.queue.Close()
	if s.store != nil {
		s.store.Close()
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("server: stopped")
	return nil
}
