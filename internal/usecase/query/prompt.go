package query

import (
	"fmt"
	"strings"

	"github.com/aero-edu/aero/internal/domain"
)

// buildPrompt assembles the completion prompt from retrieved chunks. Chunks
// arrive ordered by descending similarity and already deduplicated per
// document, so the most relevant context comes first.
func buildPrompt(question string, chunks []domain.Chunk) string {
	var b strings.Builder
	b.WriteString("You are a study assistant. Answer the question using only the context below.\n")
	b.WriteString("If the context does not contain the answer, say you don't know.\n\n")
	b.WriteString("Context:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, strings.TrimSpace(c.Text))
	}
	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\nAnswer:")
	return b.String()
}
