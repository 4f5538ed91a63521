package sources

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/aryawidjaja/go_clips/internal/engine"
)

// ytdlpClientArgs are tried in order: each entry is an extractor-arg client
// permutation. When YouTube walls one innertube client, another often still
// serves subtitles.
var ytdlpClientArgs = [][]string{
	nil, // yt-dlp default client mix
	{"--extractor-args", "youtube:player_client=android"},
	{"--extractor-args", "youtube:player_client=tv"},
	{"--extractor-args", "youtube:player_client=web", "--user-agent", ""},
}

// YtDlpStrategy shells out to the yt-dlp binary to download subtitle files.
// Slowest strategy, but yt-dlp's extractor keeps pace with YouTube changes
// far better than any in-process code.
type YtDlpStrategy struct {
	binary      string
	cookiesFile string
}

func NewYtDlpStrategy(binary, cookiesFile string) *YtDlpStrategy {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YtDlpStrategy{binary: binary, cookiesFile: cookiesFile}
}

func (s *YtDlpStrategy) Name() string { return "ytdlp" }

// Available checks the binary exists on PATH (or at the configured path).
func (s *YtDlpStrategy) Available() bool {
	_, err := exec.LookPath(s.binary)
	return err == nil
}

func (s *YtDlpStrategy) Fetch(ctx context.Context, videoID, lang string) (*engine.Transcript, error) {
	tmpDir, err := os.MkdirTemp("", "ytdlp-subs-*")
	if err != nil {
		return nil, fmt.Errorf("mkdtemp: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	var lastErr error
	for i, clientArgs := range ytdlpClientArgs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Each permutation writes into its own directory so a subtitle file
		// from an earlier failed attempt is never re-globbed.
		runDir := filepath.Join(tmpDir, fmt.Sprintf("c%d", i))
		if err := os.Mkdir(runDir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir: %w", err)
		}

		raw, runErr := s.run(ctx, runDir, videoID, lang, clientArgs)
		if runErr != nil {
			lastErr = runErr
			cls := engine.Classify(runErr)
			if cls.Terminal() {
				return nil, runErr
			}
			slog.Debug("ytdlp: client permutation failed",
				slog.Int("permutation", i),
				slog.String("class", cls.String()),
				slog.Any("error", runErr))
			continue
		}

		segs, normErr := engine.Normalize(engine.DetectFormat(raw), raw)
		if normErr != nil {
			lastErr = engine.NewStrategyError(s.Name(), engine.ClassFormat, normErr)
			continue
		}
		return &engine.Transcript{
			VideoID:  videoID,
			Language: lang,
			Segments: segs,
		}, nil
	}

	if lastErr == nil {
		lastErr = engine.NewStrategyError(s.Name(), engine.ClassNoCaptions,
			fmt.Errorf("yt-dlp produced no subtitle files for %s", videoID))
	}
	return nil, lastErr
}

// run executes one yt-dlp invocation and returns the first subtitle file it
// wrote.
func (s *YtDlpStrategy) run(ctx context.Context, tmpDir, videoID, lang string, clientArgs []string) ([]byte, error) {
	args := buildYtDlpArgs(tmpDir, videoID, lang, s.cookiesFile, clientArgs)

	cmd := exec.CommandContext(ctx, s.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		// stderr carries YouTube's wall messages ("Sign in to confirm...");
		// Classify's signature table picks them up downstream.
		return nil, fmt.Errorf("yt-dlp: %s", msg)
	}

	if path, ok := firstSubtitleFile(tmpDir); ok {
		return os.ReadFile(path)
	}
	return nil, engine.NewStrategyError("ytdlp", engine.ClassNoCaptions,
		fmt.Errorf("no subtitle file written for %s", videoID))
}

// firstSubtitleFile returns the richest subtitle file in dir, preferring
// json3 over vtt over srt. Only dir itself is searched, not siblings.
func firstSubtitleFile(dir string) (string, bool) {
	for _, pattern := range []string{"*.json3", "*.vtt", "*.srt"} {
		matches, _ := filepath.Glob(filepath.Join(dir, pattern))
		if len(matches) > 0 {
			return matches[0], true
		}
	}
	return "", false
}

// buildYtDlpArgs assembles the subtitle-only download command.
func buildYtDlpArgs(tmpDir, videoID, lang, cookiesFile string, clientArgs []string) []string {
	subLangs := lang + ".*," + lang
	args := []string{
		"--skip-download",
		"--write-subs",
		"--write-auto-subs",
		"--sub-langs", subLangs,
		"--sub-format", "json3/vtt/srt",
		"--no-warnings",
		"--no-playlist",
		"-o", filepath.Join(tmpDir, "%(id)s"),
	}
	if cookiesFile != "" {
		args = append(args, "--cookies", cookiesFile)
	}
	for _, a := range clientArgs {
		if a == "" {
			a = engine.RandomUserAgent()
		}
		args = append(args, a)
	}
	args = append(args, "https://www.youtube.com/watch?v="+videoID)
	return args
}
