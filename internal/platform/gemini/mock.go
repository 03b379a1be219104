package gemini

import (
	"context"
	"strings"

	"github.com/Byeongcheol-Kim/graphchat/internal/llm"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/logger"
)

// mockClient is the credential-free fallback. Output is deterministic so the
// full pipeline (streaming, summarisation, branch analysis) stays exercisable
// in development and tests.
type mockClient struct {
	log *logger.Logger
}

func NewMock(log *logger.Logger) llm.Client {
	return &mockClient{log: log.With("service", "MockLLMClient")}
}

func (m *mockClient) Chat(ctx context.Context, messages []llm.Message, temperature float64) (llm.ChatResult, error) {
	return llm.ChatResult{Content: m.reply(messages), FinishReason: "stop"}, nil
}

func (m *mockClient) Stream(ctx context.Context, messages []llm.Message, temperature float64, onDelta func(delta string)) (string, error) {
	reply := m.reply(messages)
	for _, word := range strings.SplitAfter(reply, " ") {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		if onDelta != nil {
			onDelta(word)
		}
	}
	return reply, nil
}

func (m *mockClient) Summarise(ctx context.Context, contents []string, instructions string) (llm.SummaryResult, error) {
	joined := strings.TrimSpace(strings.Join(contents, " "))
	summary := joined
	if runes := []rune(joined); len(runes) > 200 {
		summary = string(runes[:200]) + "..."
	}
	if summary == "" {
		summary = "No content to summarise."
	}
	return llm.SummaryResult{Title: TruncateTitle("Conversation summary"), Summary: summary}, nil
}

func (m *mockClient) AnalyzeBranches(ctx context.Context, messages []llm.Message, temperature float64) ([]llm.Branch, error) {
	return []llm.Branch{
		{
			Title:          "Explore related topics",
			Type:           "topics",
			Description:    "Dig into subjects adjacent to the current discussion.",
			Priority:       0.8,
			EstimatedDepth: 3,
		},
		{
			Title:          "Ask a clarifying question",
			Type:           "questions",
			Description:    "Resolve an ambiguity before going deeper.",
			Priority:       0.6,
			EstimatedDepth: 2,
		},
	}, nil
}

func (m *mockClient) reply(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" && strings.TrimSpace(messages[i].Content) != "" {
			return "Mock response to: " + strings.TrimSpace(messages[i].Content)
		}
	}
	return "Mock response."
}
