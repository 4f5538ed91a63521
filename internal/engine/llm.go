package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LLMClient talks to an OpenAI-compatible chat completions API (Groq by
// default). It is a plain call contract: prompt in, text out. No streaming,
// no tool use.
type LLMClient struct {
	apiKey      string
	apiBase     string
	model       string
	temperature float64
	maxTokens   int
	http        *http.Client
}

// NewLLMClient builds a client from engine configuration.
// Returns nil when no API key is configured (LLM path disabled).
func NewLLMClient(apiKey, apiBase, model string, temperature float64, maxTokens int) *LLMClient {
	if apiKey == "" {
		return nil
	}
	if apiBase == "" {
		apiBase = "https://api.groq.com/openai/v1"
	}
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &LLMClient{
		apiKey:      apiKey,
		apiBase:     strings.TrimRight(apiBase, "/"),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		http:        &http.Client{Timeout: 90 * time.Second},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends system+user prompts and returns the response text with
// markdown fences stripped.
func (c *LLMClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	IncrLLMCalls()

	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", err
	}

	resp, err := RetryHTTP(ctx, DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		return c.http.Do(req)
	})
	if err != nil {
		IncrLLMErrors()
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		IncrLLMErrors()
		return "", fmt.Errorf("llm read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		IncrLLMErrors()
		return "", fmt.Errorf("llm api status %d: %s", resp.StatusCode, truncate(string(data), 300))
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		IncrLLMErrors()
		return "", fmt.Errorf("llm decode: %w", err)
	}
	if out.Error != nil {
		IncrLLMErrors()
		return "", fmt.Errorf("llm api: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		IncrLLMErrors()
		return "", fmt.Errorf("llm returned no choices")
	}

	return StripFences(out.Choices[0].Message.Content), nil
}

// CompleteJSON sends a prompt and decodes the response as JSON into T.
// LLM output is noisy: fences are stripped and the first JSON array/object
// is extracted before decoding.
func CompleteJSON[T any](ctx context.Context, c *LLMClient, system, prompt string) (T, error) {
	var zero T
	raw, err := c.Complete(ctx, system, prompt)
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, nil
	}
	extracted := ExtractJSON(raw)
	if extracted == "" {
		return zero, fmt.Errorf("llm response is not JSON: %s", truncate(raw, 200))
	}
	if err := json.Unmarshal([]byte(extracted), &out); err != nil {
		return zero, fmt.Errorf("llm response parse: %w", err)
	}
	return out, nil
}

// StripFences removes markdown code fences from LLM output.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ExtractJSON pulls the first balanced JSON array or object out of noisy text.
func ExtractJSON(s string) string {
	start := -1
	var open, closer byte
	for i := 0; i < len(s); i++ {
		if s[i] == '[' || s[i] == '{' {
			start = i
			open = s[i]
			if open == '[' {
				closer = ']'
			} else {
				closer = '}'
			}
			break
		}
	}
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		if ch == open {
			depth++
		} else if ch == closer {
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
