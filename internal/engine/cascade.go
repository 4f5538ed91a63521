package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Strategy is one concrete method of obtaining a transcript.
type Strategy interface {
	// Name identifies the strategy in logs, metrics and config.
	Name() string
	// Available reports whether the strategy's prerequisites (binary on
	// PATH, API key, mirror list) are met. Unavailable strategies are
	// skipped without counting as failures.
	Available() bool
	// Fetch extracts the transcript for videoID in the preferred language.
	Fetch(ctx context.Context, videoID, lang string) (*Transcript, error)
}

// Attempt records one cascade step for logging and the aggregate result.
type Attempt struct {
	Strategy  string
	StartedAt time.Time
	Elapsed   time.Duration
	Class     ErrorClass
	Err       error
}

// Runner iterates an ordered strategy list until one produces a valid
// transcript. Failures are classified; bot-detection, timeout and network
// failures retry the same strategy with exponential backoff and jitter,
// anything else advances to the next strategy.
type Runner struct {
	Strategies     []Strategy
	AttemptTimeout time.Duration
	MaxRetries     int // retries per strategy on retryable failures
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	Limiter        *Limiter // nil = unlimited
}

// NewRunner builds a runner from engine configuration, ordering strategies
// by cfg.StrategyOrder (unknown names are ignored, unnamed strategies drop).
func NewRunner(strategies []Strategy, limiter *Limiter) *Runner {
	byName := make(map[string]Strategy, len(strategies))
	for _, s := range strategies {
		byName[s.Name()] = s
	}

	ordered := strategies
	if len(cfg.StrategyOrder) > 0 {
		ordered = make([]Strategy, 0, len(cfg.StrategyOrder))
		for _, name := range cfg.StrategyOrder {
			if s, ok := byName[name]; ok {
				ordered = append(ordered, s)
			} else {
				slog.Warn("cascade: unknown strategy in order, skipping", slog.String("strategy", name))
			}
		}
	}

	return &Runner{
		Strategies:     ordered,
		AttemptTimeout: cfg.AttemptTimeout,
		MaxRetries:     cfg.MaxRetries,
		BackoffInitial: cfg.BackoffInitial,
		BackoffMax:     cfg.BackoffMax,
		Limiter:        limiter,
	}
}

// Run tries each strategy in order and returns the first transcript that
// passes validation, together with the attempt trail. On exhaustion the
// error joins every attempt's failure.
func (r *Runner) Run(ctx context.Context, videoID, lang string) (*Transcript, []Attempt, error) {
	IncrExtractRequests()

	if lang == "" {
		lang = cfg.Lang
	}

	key := CacheKey("transcript", videoID, lang)
	if t, ok := CacheGet(ctx, key); ok {
		slog.Info("cascade: cache hit", slog.String("video_id", videoID))
		return t, nil, nil
	}

	var attempts []Attempt
	var errs []error

	for _, strat := range r.Strategies {
		if !strat.Available() {
			slog.Debug("cascade: strategy unavailable, skipping", slog.String("strategy", strat.Name()))
			continue
		}

		t, attempt := r.runStrategy(ctx, strat, videoID, lang)
		attempts = append(attempts, attempt...)

		if t != nil {
			CacheSet(ctx, key, t)
			return t, attempts, nil
		}

		last := attempts[len(attempts)-1]
		errs = append(errs, last.Err)

		if last.Class.Terminal() {
			slog.Info("cascade: terminal failure, stopping",
				slog.String("strategy", last.Strategy),
				slog.String("class", last.Class.String()))
			break
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
	}

	IncrExtractFailures()
	if len(errs) == 0 {
		return nil, attempts, fmt.Errorf("no extraction strategy available for video %s", videoID)
	}
	return nil, attempts, fmt.Errorf("all extraction strategies failed for video %s: %w", videoID, errors.Join(errs...))
}

// runStrategy executes one strategy with retry-on-retryable semantics.
// Returns the transcript on success, or nil with the attempt records.
func (r *Runner) runStrategy(ctx context.Context, strat Strategy, videoID, lang string) (*Transcript, []Attempt) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.BackoffInitial
	bo.MaxInterval = r.BackoffMax

	var attempts []Attempt

	for try := 0; ; try++ {
		if r.Limiter != nil {
			if err := r.Limiter.Wait(ctx); err != nil {
				attempts = append(attempts, Attempt{
					Strategy: strat.Name(), StartedAt: time.Now(), Class: ClassTimeout, Err: err,
				})
				return nil, attempts
			}
		}

		IncrStrategyAttempts()
		attempt := Attempt{Strategy: strat.Name(), StartedAt: time.Now()}

		attemptCtx, cancel := context.WithTimeout(ctx, r.AttemptTimeout)
		t, err := strat.Fetch(attemptCtx, videoID, lang)
		cancel()

		attempt.Elapsed = time.Since(attempt.StartedAt)

		if err == nil {
			if verr := Validate(t); verr != nil {
				err = NewStrategyError(strat.Name(), ClassFormat, verr)
			}
		}

		if err == nil {
			slog.Info("cascade: strategy succeeded",
				slog.String("strategy", strat.Name()),
				slog.String("video_id", videoID),
				slog.Int("segments", len(t.Segments)),
				slog.Duration("elapsed", attempt.Elapsed))
			attempts = append(attempts, attempt)
			t.Source = strat.Name()
			return t, attempts
		}

		attempt.Err = err
		attempt.Class = Classify(err)
		attempts = append(attempts, attempt)

		if attempt.Class == ClassBotDetection {
			IncrBotDetections()
		}

		slog.Warn("cascade: strategy failed",
			slog.String("strategy", strat.Name()),
			slog.String("video_id", videoID),
			slog.String("class", attempt.Class.String()),
			slog.Duration("elapsed", attempt.Elapsed),
			slog.Any("error", err))

		if attempt.Class.Terminal() || !attempt.Class.Retryable() || try >= r.MaxRetries {
			return nil, attempts
		}

		wait := bo.NextBackOff()
		IncrStrategyRetries()
		slog.Debug("cascade: backing off",
			slog.String("strategy", strat.Name()),
			slog.Duration("wait", wait),
			slog.Int("retry", try+1))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, attempts
		}
	}
}
