package domain

import "testing"

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "single word", text: "hello", want: 1},
		{name: "two words", text: "hello world", want: 3},
		{name: "whitespace only", text: "   \t\n  ", want: 0},
		{name: "ten words", text: "a b c d e f g h i j", want: 15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EstimateTokens(tc.text); got != tc.want {
				t.Fatalf("EstimateTokens(%q): want=%d got=%d", tc.text, tc.want, got)
			}
		})
	}
}

func TestHistoryTokens(t *testing.T) {
	messages := []Message{
		{Content: "hello world"},
		{Content: "a b c d"},
		{Content: ""},
	}
	if got := HistoryTokens(messages); got != 9 {
		t.Fatalf("HistoryTokens: want=9 got=%d", got)
	}
}
