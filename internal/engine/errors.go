package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorClass categorizes extraction failures. Strategies raise the class at
// the point of detection; Classify only falls back to message matching for
// errors coming out of third-party libraries and subprocess stderr.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassBotDetection
	ClassNotFound
	ClassNoCaptions
	ClassTimeout
	ClassNetwork
	ClassFormat
)

func (c ErrorClass) String() string {
	switch c {
	case ClassBotDetection:
		return "bot_detection"
	case ClassNotFound:
		return "not_found"
	case ClassNoCaptions:
		return "no_captions"
	case ClassTimeout:
		return "timeout"
	case ClassNetwork:
		return "network"
	case ClassFormat:
		return "format"
	default:
		return "unknown"
	}
}

// Retryable reports whether the same strategy is worth retrying after backoff.
func (c ErrorClass) Retryable() bool {
	switch c {
	case ClassBotDetection, ClassTimeout, ClassNetwork:
		return true
	}
	return false
}

// Terminal reports whether the failure applies to the video itself, so no
// strategy can succeed and the cascade should stop early.
func (c ErrorClass) Terminal() bool {
	return c == ClassNotFound
}

// StrategyError is a classified failure from one extraction strategy.
type StrategyError struct {
	Strategy string
	Class    ErrorClass
	Err      error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Strategy, e.Class, e.Err)
}

func (e *StrategyError) Unwrap() error { return e.Err }

// NewStrategyError wraps err with an explicit class.
func NewStrategyError(strategy string, class ErrorClass, err error) *StrategyError {
	return &StrategyError{Strategy: strategy, Class: class, Err: err}
}

// ErrQueueFull is returned when the job queue is at capacity.
var ErrQueueFull = errors.New("job queue full")

// ErrQueueClosed is returned when enqueueing after shutdown has begun.
var ErrQueueClosed = errors.New("job queue closed")

// httpStatusError wraps an HTTP status code worth classifying or retrying.
type httpStatusError struct {
	StatusCode int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("status %d", e.StatusCode)
}

// botSignatures are message fragments from upstream tooling (yt-dlp stderr,
// library errors) that indicate an anti-automation wall. This table is the
// translation shim for errors we do not raise ourselves; wording changes
// upstream will degrade it, so prefer typed StrategyError wherever possible.
var botSignatures = []string{
	"sign in to confirm",
	"confirm you're not a bot",
	"too many requests",
	"429",
	"captcha",
	"login_required",
	"requires login",
	"account cookies are no longer valid",
}

var notFoundSignatures = []string{
	"video unavailable",
	"video not found",
	"video is private",
	"private video",
	"this video has been removed",
}

var noCaptionsSignatures = []string{
	"no subtitles",
	"no captions",
	"no suitable caption",
	"transcript is disabled",
	"transcripts disabled",
	"has no subtitles",
	"requested format is not available",
}

// Classify maps an error to an ErrorClass. Typed errors win; the string table
// only handles opaque third-party messages.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}

	var se *StrategyError
	if errors.As(err, &se) {
		return se.Class
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}

	var httpErr *httpStatusError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case 403, 429:
			return ClassBotDetection
		case 404, 410:
			return ClassNotFound
		}
		if httpErr.StatusCode >= 500 {
			return ClassNetwork
		}
		return ClassUnknown
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, s := range botSignatures {
		if strings.Contains(msg, s) {
			return ClassBotDetection
		}
	}
	for _, s := range notFoundSignatures {
		if strings.Contains(msg, s) {
			return ClassNotFound
		}
	}
	for _, s := range noCaptionsSignatures {
		if strings.Contains(msg, s) {
			return ClassNoCaptions
		}
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") {
		return ClassTimeout
	}
	return ClassUnknown
}
