package domain

import "strings"

// EstimateTokens approximates the token cost of a text as word count times
// 1.5. It only feeds budget heuristics; exact tokenisation is not required.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(float64(words) * 1.5)
}

// HistoryTokens sums the estimate over a message list.
func HistoryTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}
