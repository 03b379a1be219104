// Package llm defines the provider-neutral adapter contract the chat
// pipeline, summary engine and branch analyzer are written against.
package llm

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResult struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// SummaryResult is the structured output of Summarise. Title is at most 20
// characters.
type SummaryResult struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Branch is one proposed follow-up branch from AnalyzeBranches. Priority and
// EstimatedDepth may be zero; the analyzer fills defaults.
type Branch struct {
	Title          string  `json:"title"`
	Type           string  `json:"type"`
	Description    string  `json:"description"`
	Priority       float64 `json:"priority,omitempty"`
	EstimatedDepth int     `json:"estimated_depth,omitempty"`
}

// Client is the adapter contract. Stream forwards chunks through onDelta in
// arrival order and returns the accumulated full text. Implementations may
// fall back to mock output when credentials are absent; callers are
// oblivious.
type Client interface {
	Chat(ctx context.Context, messages []Message, temperature float64) (ChatResult, error)
	Stream(ctx context.Context, messages []Message, temperature float64, onDelta func(delta string)) (string, error)
	Summarise(ctx context.Context, contents []string, instructions string) (SummaryResult, error)
	AnalyzeBranches(ctx context.Context, messages []Message, temperature float64) ([]Branch, error)
}
