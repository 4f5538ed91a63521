package engine

import (
	"net/http"
	"time"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	// LLM (Groq / OpenAI-compatible chat completions)
	LLMAPIKey      string
	LLMAPIBase     string
	LLMModel       string
	LLMTemperature float64
	LLMMaxTokens   int

	// Extraction
	Lang               string        // preferred caption language, e.g. "en"
	StrategyOrder      []string      // cascade order by strategy name
	AttemptTimeout     time.Duration // per-strategy attempt timeout
	MaxRetries         int           // retries per strategy on retryable failures
	BackoffInitial     time.Duration
	BackoffMax         time.Duration
	CookiesFile        string   // Netscape-format cookie file, passed to yt-dlp and the browser client
	YtDlpPath          string   // yt-dlp binary, "yt-dlp" by default
	InvidiousInstances []string // mirror hosts, tried in rotation
	ProxyAPIKey        string   // paid scraping proxy; empty = strategy disabled
	ProxyAPIBase       string

	// Rate limiting (outbound requests to YouTube and mirrors)
	RatePerMinute int
	RateBurst     int

	// Segmentation
	ClipMinSec         float64
	ClipMaxSec         float64
	ClipTargetCount    int
	ClipOverlapTolSec  float64
	ClipMaxPromptChars int

	// Clients
	HTTPClient    *http.Client
	BrowserClient *BrowserClient // nil = watch-page scraping falls back to HTTPClient
	LLMClient     *LLMClient     // nil = LLM path disabled, heuristics only
}

var cfg Config

// Cfg exposes the engine configuration for sub-packages (sources, clips).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
func Init(c Config) {
	if c.Lang == "" {
		c.Lang = "en"
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 45 * time.Second
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = 2 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.ClipMaxPromptChars <= 0 {
		c.ClipMaxPromptChars = 24000
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	cfg = c
	Cfg = &cfg
}
