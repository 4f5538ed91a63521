package engine

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	ExtractRequests   atomic.Int64
	ExtractFailures   atomic.Int64
	StrategyAttempts  atomic.Int64
	StrategyRetries   atomic.Int64
	BotDetections     atomic.Int64
	LLMCalls          atomic.Int64
	LLMErrors         atomic.Int64
	ClipsGenerated    atomic.Int64
	FallbackSegments  atomic.Int64
	JobsEnqueued      atomic.Int64
	JobsRejected      atomic.Int64
}

// Incrementors for the engine and its sub-packages.
func IncrExtractRequests()     { metrics.ExtractRequests.Add(1) }
func IncrExtractFailures()     { metrics.ExtractFailures.Add(1) }
func IncrStrategyAttempts()    { metrics.StrategyAttempts.Add(1) }
func IncrStrategyRetries()     { metrics.StrategyRetries.Add(1) }
func IncrBotDetections()       { metrics.BotDetections.Add(1) }
func IncrLLMCalls()            { metrics.LLMCalls.Add(1) }
func IncrLLMErrors()           { metrics.LLMErrors.Add(1) }
func IncrClipsGenerated(n int) { metrics.ClipsGenerated.Add(int64(n)) }
func IncrFallbackSegments()    { metrics.FallbackSegments.Add(1) }
func IncrJobsEnqueued()        { metrics.JobsEnqueued.Add(1) }
func IncrJobsRejected()        { metrics.JobsRejected.Add(1) }

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"extract_requests":  metrics.ExtractRequests.Load(),
		"extract_failures":  metrics.ExtractFailures.Load(),
		"strategy_attempts": metrics.StrategyAttempts.Load(),
		"strategy_retries":  metrics.StrategyRetries.Load(),
		"bot_detections":    metrics.BotDetections.Load(),
		"llm_calls":         metrics.LLMCalls.Load(),
		"llm_errors":        metrics.LLMErrors.Load(),
		"clips_generated":   metrics.ClipsGenerated.Load(),
		"fallback_segments": metrics.FallbackSegments.Load(),
		"jobs_enqueued":     metrics.JobsEnqueued.Load(),
		"jobs_rejected":     metrics.JobsRejected.Load(),
		"cache_hits":        hits,
		"cache_misses":      misses,
	}
}

// FormatMetrics returns metrics as a simple text format for the HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	keys := []string{
		"extract_requests", "extract_failures",
		"strategy_attempts", "strategy_retries", "bot_detections",
		"llm_calls", "llm_errors",
		"clips_generated", "fallback_segments",
		"jobs_enqueued", "jobs_rejected",
		"cache_hits", "cache_misses",
	}
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}
