package usecase

import (
	"fmt"
	"strings"

	"quoterag/internal/domain"
)

// FormatFallback renders matches as a numbered list. It is used whenever
// the generator is missing or fails, and makes no external calls.
func FormatFallback(topic string, matches []domain.RankedMatch) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here are the top quotes related to '%s':\n\n", topic)
	for i, m := range matches {
		fmt.Fprintf(&b, "%d. Quote #%s: %s\n\n", i+1, m.ID, m.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NoMatchesText is the narrative for a search that matched nothing.
func NoMatchesText(topic string) string {
	return fmt.Sprintf("I couldn't find any quotes related to '%s'. Please try a different topic.", topic)
}
