// go_clips extracts YouTube transcripts through a multi-strategy cascade and
// cuts them into short clip suggestions with an LLM.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/aryawidjaja/go_clips/internal/clipserver"
	"github.com/aryawidjaja/go_clips/internal/engine"
	"github.com/aryawidjaja/go_clips/internal/engine/clips"
	"github.com/aryawidjaja/go_clips/internal/engine/sources"
	"github.com/aryawidjaja/go_clips/internal/env"
)

var rootCmd = &cobra.Command{
	Use:   "go_clips",
	Short: "YouTube transcript extraction and clip segmentation",
	Long: `go_clips pulls transcripts from YouTube through a cascade of extraction
strategies (library, Innertube API, watch-page scrape, yt-dlp, Invidious
mirrors, paid proxy) and segments them into short clip suggestions.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(transcriptCmd)
	rootCmd.AddCommand(clipsCmd)

	serveCmd.Flags().String("addr", "", "listen address (default :8080, or PORT)")
	transcriptCmd.Flags().String("lang", "", "preferred caption language")
	clipsCmd.Flags().String("lang", "", "preferred caption language")
	clipsCmd.Flags().Int("count", 0, "target number of clips")
}

// initConfig loads .env, sets up logging, and injects engine configuration.
func initConfig() {
	_ = godotenv.Load()

	level := slog.LevelInfo
	if env.Bool("DEBUG", false) {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	browser, err := engine.NewBrowserClient(env.Str("YT_COOKIES_FILE", ""))
	if err != nil {
		slog.Warn("browser client init failed, watch-page strategy degrades to plain http",
			slog.Any("error", err))
		browser = nil
	}

	c := engine.Config{
		LLMAPIKey:      env.Str("GROQ_API_KEY", ""),
		LLMAPIBase:     env.Str("GROQ_API_BASE", ""),
		LLMModel:       env.Str("GROQ_MODEL", ""),
		LLMTemperature: env.Float("LLM_TEMPERATURE", 0.3),
		LLMMaxTokens:   env.Int("LLM_MAX_TOKENS", 4096),

		Lang:               env.Str("YT_LANG", "en"),
		StrategyOrder:      env.List("STRATEGY_ORDER", "native,innertube,watchpage,ytdlp,invidious,proxyapi"),
		AttemptTimeout:     env.Duration("ATTEMPT_TIMEOUT", 45*time.Second),
		MaxRetries:         env.Int("MAX_RETRIES", 2),
		BackoffInitial:     env.Duration("BACKOFF_INITIAL", 2*time.Second),
		BackoffMax:         env.Duration("BACKOFF_MAX", 30*time.Second),
		CookiesFile:        env.Str("YT_COOKIES_FILE", ""),
		YtDlpPath:          env.Str("YTDLP_PATH", "yt-dlp"),
		InvidiousInstances: env.List("INVIDIOUS_INSTANCES", ""),
		ProxyAPIKey:        env.Str("PROXY_API_KEY", ""),
		ProxyAPIBase:       env.Str("PROXY_API_BASE", ""),

		RatePerMinute: env.Int("RATE_LIMIT_PER_MINUTE", 30),
		RateBurst:     env.Int("RATE_BURST", 5),

		ClipMinSec:         env.Float("CLIP_MIN_SEC", 15),
		ClipMaxSec:         env.Float("CLIP_MAX_SEC", 90),
		ClipTargetCount:    env.Int("CLIP_TARGET_COUNT", 5),
		ClipOverlapTolSec:  env.Float("CLIP_OVERLAP_TOLERANCE_SEC", 1.0),
		ClipMaxPromptChars: env.Int("CLIP_MAX_PROMPT_CHARS", 24000),

		HTTPClient:    engine.NewFetchClient(),
		BrowserClient: browser,
	}
	c.LLMClient = engine.NewLLMClient(c.LLMAPIKey, c.LLMAPIBase, c.LLMModel, c.LLMTemperature, c.LLMMaxTokens)
	engine.Init(c)

	engine.InitCache(
		env.Str("REDIS_URL", ""),
		env.Duration("CACHE_TTL", time.Hour),
		env.Int("CACHE_MAX_ENTRIES", 500),
		env.Duration("CACHE_CLEANUP_INTERVAL", 5*time.Minute),
	)

	if path := env.Str("ARCHIVE_PATH", ""); path != "" {
		clips.SetArchivePath(path)
	}
}

// buildRunner assembles the strategy cascade from configuration.
func buildRunner() *engine.Runner {
	cfg := engine.Cfg
	strategies := []engine.Strategy{
		sources.NewNativeStrategy(cfg.HTTPClient),
		sources.NewInnertubeStrategy(),
		sources.NewWatchPageStrategy(cfg.BrowserClient),
		sources.NewYtDlpStrategy(cfg.YtDlpPath, cfg.CookiesFile),
		sources.NewInvidiousStrategy(cfg.InvidiousInstances),
		sources.NewProxyAPIStrategy(cfg.ProxyAPIKey, cfg.ProxyAPIBase),
	}
	limiter := engine.NewLimiter(cfg.RatePerMinute, cfg.RateBurst)
	return engine.NewRunner(strategies, limiter)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = ":" + env.Str("PORT", "8080")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var store *clipserver.JobStore
		if dbURL := env.Str("DATABASE_URL", ""); dbURL != "" {
			var err error
			store, err = clipserver.ConnectJobStore(ctx, dbURL)
			if err != nil {
				return fmt.Errorf("connect job store: %w", err)
			}
		}

		srv := clipserver.New(clipserver.Options{
			Addr:           addr,
			Runner:         buildRunner(),
			Store:          store,
			QueueCapacity:  env.Int("QUEUE_CAPACITY", 32),
			ClientPerMin:   env.Int("CLIENT_RATE_PER_MINUTE", 30),
			ClientBurst:    env.Int("CLIENT_RATE_BURST", 10),
			AllowedOrigins: env.List("CORS_ORIGINS", "*"),
		})
		return srv.ListenAndServe(ctx)
	},
}

var transcriptCmd = &cobra.Command{
	Use:   "transcript <url-or-id>",
	Short: "Extract a transcript and print it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		videoID, err := engine.ExtractVideoID(args[0])
		if err != nil {
			return err
		}
		lang, _ := cmd.Flags().GetString("lang")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		t, _, err := buildRunner().Run(ctx, videoID, lang)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	},
}

var clipsCmd = &cobra.Command{
	Use:   "clips <url-or-id>",
	Short: "Extract a transcript and print clip suggestions as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		videoID, err := engine.ExtractVideoID(args[0])
		if err != nil {
			return err
		}
		lang, _ := cmd.Flags().GetString("lang")
		count, _ := cmd.Flags().GetInt("count")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		t, _, err := buildRunner().Run(ctx, videoID, lang)
		if err != nil {
			return err
		}

		set, err := clips.Segment(ctx, t, clips.Options{TargetCount: count})
		if err != nil {
			return err
		}
		if err := clips.SaveClips(ctx, t.VideoID, t.Title, set); err != nil {
			slog.Warn("clip archive write failed", slog.Any("error", err))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"video_id": t.VideoID,
			"title":    t.Title,
			"source":   t.Source,
			"clips":    set,
		})
	},
}
