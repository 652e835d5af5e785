// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyze

import "strings"

// EstimateTokens approximates the token cost of text for call planning.
// The heuristic is one token per four bytes, never below one for
// non-empty input. It is deterministic and monotonic in input size; the
// limiter's post-call correction absorbs the inaccuracy.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// wordCost is the planning cost of one word within a chunk: the word
// plus its separator. Summing wordCost over a chunk's words always
// bounds EstimateTokens of the joined chunk from above, which keeps
// greedy splitting safe.
func wordCost(word string) int {
	return (len(word) + 1 + 3) / 4
}

// SplitByCost splits text into word-bounded chunks whose estimated cost
// never exceeds maxTokens. Words are accumulated greedily: when the next
// word would exceed the bound, a new chunk starts. A single word larger
// than the bound becomes its own chunk rather than being cut mid-word.
func SplitByCost(text string, maxTokens int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentCost := 0

	for _, word := range words {
		cost := wordCost(word)
		if currentCost+cost > maxTokens && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current = current[:0]
			currentCost = 0
		}
		current = append(current, word)
		currentCost += cost
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}
