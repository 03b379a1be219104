package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Byeongcheol-Kim/graphchat/internal/llm"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/envutil"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/logger"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.0-flash"
	maxTitleRunes  = 20
	maxBranches    = 3
)

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
}

// NewFromEnv builds the Gemini-backed adapter. Without LLM_API_KEY it
// returns the deterministic mock so the server stays usable offline.
func NewFromEnv(log *logger.Logger) (llm.Client, error) {
	if log == nil {
		return nil, fmt.Errorf("gemini: logger required")
	}

	apiKey := envutil.Str("LLM_API_KEY", "")
	if apiKey == "" {
		log.Warn("LLM_API_KEY not set, falling back to mock LLM adapter")
		return NewMock(log), nil
	}

	baseURL := strings.TrimRight(envutil.Str("LLM_BASE_URL", defaultBaseURL), "/")
	model := envutil.Str("LLM_MODEL", defaultModel)
	timeoutSec := envutil.Int("LLM_TIMEOUT_SECONDS", 30)
	maxRetries := envutil.Int("LLM_MAX_RETRIES", 4)

	return &client{
		log:        log.With("service", "GeminiClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: maxRetries,
	}, nil
}

// -------------------- wire types --------------------

type generatePart struct {
	Text string `json:"text,omitempty"`
}

type generateContent struct {
	Role  string         `json:"role,omitempty"`
	Parts []generatePart `json:"parts"`
}

type generationConfig struct {
	Temperature      *float64       `json:"temperature,omitempty"`
	CandidateCount   int            `json:"candidateCount,omitempty"`
	ResponseMimeType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type generateRequest struct {
	Contents          []generateContent `json:"contents"`
	SystemInstruction *generateContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []generatePart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

func extractText(resp generateResponse) (string, string) {
	if len(resp.Candidates) == 0 {
		return "", ""
	}
	cand := resp.Candidates[0]
	var out strings.Builder
	for _, p := range cand.Content.Parts {
		out.WriteString(p.Text)
	}
	return out.String(), cand.FinishReason
}

// toRequest splits the adapter-level message list into the Gemini shape:
// system turns become the systemInstruction, assistant turns map to "model".
func toRequest(messages []llm.Message, temperature float64) generateRequest {
	var system []string
	contents := make([]generateContent, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			contents = append(contents, generateContent{Role: "model", Parts: []generatePart{{Text: m.Content}}})
		default:
			contents = append(contents, generateContent{Role: "user", Parts: []generatePart{{Text: m.Content}}})
		}
	}
	if len(contents) == 0 {
		contents = append(contents, generateContent{Role: "user", Parts: []generatePart{{Text: " "}}})
	}

	req := generateRequest{
		Contents: contents,
		GenerationConfig: &generationConfig{
			Temperature:    &temperature,
			CandidateCount: 1,
		},
	}
	if len(system) > 0 {
		req.SystemInstruction = &generateContent{
			Parts: []generatePart{{Text: strings.Join(system, "\n\n")}},
		}
	}
	return req
}

// -------------------- transport --------------------

type geminiHTTPError struct {
	StatusCode int
	Body       string
}

func (e *geminiHTTPError) Error() string {
	return fmt.Sprintf("gemini http %d: %s", e.StatusCode, e.Body)
}

func isRetryable(err error) bool {
	var httpErr *geminiHTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func (c *client) doOnce(ctx context.Context, path string, body any) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &geminiHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

func (c *client) do(ctx context.Context, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		raw, err := c.doOnce(ctx, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("gemini decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !isRetryable(err) || attempt == c.maxRetries {
			return err
		}

		c.log.Warn("Gemini request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", backoff.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

func (c *client) generatePath() string {
	return "/v1beta/models/" + c.model + ":generateContent"
}

func (c *client) streamPath() string {
	return "/v1beta/models/" + c.model + ":streamGenerateContent?alt=sse"
}

// -------------------- llm.Client --------------------

func (c *client) Chat(ctx context.Context, messages []llm.Message, temperature float64) (llm.ChatResult, error) {
	req := toRequest(messages, temperature)

	var resp generateResponse
	if err := c.do(ctx, c.generatePath(), req, &resp); err != nil {
		return llm.ChatResult{}, err
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return llm.ChatResult{}, fmt.Errorf("gemini blocked prompt: %s", resp.PromptFeedback.BlockReason)
	}

	text, finish := extractText(resp)
	if strings.TrimSpace(text) == "" {
		return llm.ChatResult{}, fmt.Errorf("gemini: empty completion")
	}
	if finish == "" {
		finish = "stop"
	}
	return llm.ChatResult{Content: text, FinishReason: strings.ToLower(finish)}, nil
}

func (c *client) Stream(ctx context.Context, messages []llm.Message, temperature float64, onDelta func(delta string)) (string, error) {
	body := toRequest(messages, temperature)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+c.streamPath(), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return "", &geminiHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	defer resp.Body.Close()

	var full strings.Builder
	err = streamSSE(resp.Body, func(event string, data string) error {
		if strings.TrimSpace(data) == "" || strings.TrimSpace(data) == "[DONE]" {
			return nil
		}
		var chunk generateResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil
		}
		if chunk.PromptFeedback != nil && chunk.PromptFeedback.BlockReason != "" {
			return fmt.Errorf("gemini blocked prompt: %s", chunk.PromptFeedback.BlockReason)
		}
		text, _ := extractText(chunk)
		if text != "" {
			full.WriteString(text)
			if onDelta != nil {
				onDelta(text)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return full.String(), nil
}

const summarisePrompt = `Summarise the conversation excerpts below into a compact context block.
Respond with JSON: {"title": "<at most 20 characters>", "summary": "<the summary>"}.
Keep every decision, constraint and open question; drop pleasantries.`

func (c *client) Summarise(ctx context.Context, contents []string, instructions string) (llm.SummaryResult, error) {
	prompt := summarisePrompt
	if strings.TrimSpace(instructions) != "" {
		prompt += "\nFollow these instructions when summarising: " + strings.TrimSpace(instructions)
	}

	req := toRequest([]llm.Message{
		{Role: "system", Content: prompt},
		{Role: "user", Content: strings.Join(contents, "\n\n---\n\n")},
	}, 0.3)
	req.GenerationConfig.ResponseMimeType = "application/json"
	req.GenerationConfig.ResponseSchema = map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"title":   map[string]any{"type": "STRING"},
			"summary": map[string]any{"type": "STRING"},
		},
		"required": []string{"title", "summary"},
	}

	var resp generateResponse
	if err := c.do(ctx, c.generatePath(), req, &resp); err != nil {
		return llm.SummaryResult{}, err
	}
	text, _ := extractText(resp)

	var out llm.SummaryResult
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &out); err != nil {
		return llm.SummaryResult{}, fmt.Errorf("gemini summary decode: %w; text=%s", err, text)
	}
	if strings.TrimSpace(out.Summary) == "" {
		return llm.SummaryResult{}, fmt.Errorf("gemini: empty summary")
	}
	out.Title = TruncateTitle(out.Title)
	return out, nil
}

const analyzePrompt = `You analyse a conversation and propose follow-up branches worth exploring.
Categories: topics (new related subjects), details (deeper dives), alternatives
(different approaches), questions (clarifications to resolve), examples
(concrete illustrations). Propose at most 3 branches, best first.
Respond with JSON: {"recommended_branches": [{"title", "type", "description",
"priority" (0..1), "estimated_depth" (1..10)}]}.`

func (c *client) AnalyzeBranches(ctx context.Context, messages []llm.Message, temperature float64) ([]llm.Branch, error) {
	msgs := append([]llm.Message{{Role: "system", Content: analyzePrompt}}, messages...)
	req := toRequest(msgs, temperature)
	req.GenerationConfig.ResponseMimeType = "application/json"
	req.GenerationConfig.ResponseSchema = map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"recommended_branches": map[string]any{
				"type": "ARRAY",
				"items": map[string]any{
					"type": "OBJECT",
					"properties": map[string]any{
						"title":           map[string]any{"type": "STRING"},
						"type":            map[string]any{"type": "STRING"},
						"description":     map[string]any{"type": "STRING"},
						"priority":        map[string]any{"type": "NUMBER"},
						"estimated_depth": map[string]any{"type": "INTEGER"},
					},
					"required": []string{"title", "type", "description"},
				},
			},
		},
		"required": []string{"recommended_branches"},
	}

	var resp generateResponse
	if err := c.do(ctx, c.generatePath(), req, &resp); err != nil {
		return nil, err
	}
	text, _ := extractText(resp)

	var decoded struct {
		RecommendedBranches []llm.Branch `json:"recommended_branches"`
	}
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &decoded); err != nil {
		return nil, fmt.Errorf("gemini branches decode: %w; text=%s", err, text)
	}

	branches := decoded.RecommendedBranches
	if len(branches) > maxBranches {
		branches = branches[:maxBranches]
	}
	out := branches[:0]
	for _, b := range branches {
		if strings.TrimSpace(b.Title) == "" {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// stripCodeFences removes a ```json ... ``` wrapper some models emit around
// structured output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// TruncateTitle caps a title at 20 runes, the width the graph UI renders on
// an edge.
func TruncateTitle(title string) string {
	title = strings.TrimSpace(title)
	runes := []rune(title)
	if len(runes) <= maxTitleRunes {
		return title
	}
	return string(runes[:maxTitleRunes])
}
