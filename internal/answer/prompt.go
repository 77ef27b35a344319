package answer

import (
	"fmt"
	"strings"

	"github.com/dgallion1/docqa/internal/index"
)

const Instructions = `You are a document assistant. Answer the question using ONLY the context below.

Rules:
- If the context does not contain the answer, say so plainly. Do not guess or use outside knowledge
- When you use a table, cite it as "Table X page Y" and quote the exact cell values you rely on
- When you use a chart, describe its overall trend and the key data points it shows
- When you use a formula, explain each component and its unit, then give a short worked example
- Structure the answer from the general picture to the specific details
- If sources conflict, prefer the most recent or most official source and say which one you chose
- Answer in the language of the question`

// BuildPrompt assembles the instructions, the retrieved context, the
// conversation history and the question into one prompt.
func BuildPrompt(hits []index.Hit, history, question string) string {
	var sb strings.Builder
	sb.WriteString(Instructions)
	sb.WriteString("\n\n---\nContext:\n")
	if len(hits) == 0 {
		sb.WriteString("(no matching document content)\n")
	}
	for i, h := range hits {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, sourceLabel(h))
		sb.WriteString(strings.TrimSpace(h.Chunk.Text))
		sb.WriteString("\n\n")
	}
	sb.WriteString("---\n")
	if history = strings.TrimSpace(history); history != "" {
		sb.WriteString("Conversation so far:\n")
		sb.WriteString(history)
		sb.WriteString("\n---\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\nAnswer:")
	return sb.String()
}

func sourceLabel(h index.Hit) string {
	src, _ := h.Chunk.Metadata["source"].(string)
	if src == "" {
		src = h.Chunk.DocumentID
	}
	return fmt.Sprintf("%s, %s, page %d", src, h.Chunk.Kind, h.Chunk.Page)
}
