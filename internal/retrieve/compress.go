package retrieve

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgallion1/docqa/internal/llm"
)

// NoOutput is what the model answers when nothing in the chunk is relevant.
const NoOutput = "NO_OUTPUT"

const compressPrompt = `Given the following question and context, extract any part of the context *AS IS* that is relevant to answer the question. If none of the context is relevant return ` + NoOutput + `.

Remember, *DO NOT* edit the extracted parts of the context.`

// LLMCompressor extracts relevant excerpts with a completion provider.
type LLMCompressor struct {
	completer llm.Completer
	timeout   time.Duration
	maxTokens int
}

func NewLLMCompressor(c llm.Completer, timeout time.Duration, maxTokens int) *LLMCompressor {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &LLMCompressor{completer: c, timeout: timeout, maxTokens: maxTokens}
}

// BuildCompressPrompt creates the extraction prompt for one chunk.
func BuildCompressPrompt(question, text string) string {
	var sb strings.Builder
	sb.WriteString(compressPrompt)
	sb.WriteString("\n\n> Question: ")
	sb.WriteString(question)
	sb.WriteString("\n> Context:\n>>>\n")
	sb.WriteString(text)
	sb.WriteString("\n>>>\nExtracted relevant parts:")
	return sb.String()
}

// Compress returns the relevant excerpt, or "" when the model finds none.
func (c *LLMCompressor) Compress(ctx context.Context, question, text string) (string, error) {
	out, err := c.completer.Complete(ctx, llm.Request{
		Prompt:      BuildCompressPrompt(question, text),
		Temperature: 0,
		MaxTokens:   c.maxTokens,
		Timeout:     c.timeout,
	})
	if err != nil {
		return "", fmt.Errorf("compress: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == NoOutput || strings.HasPrefix(out, NoOutput) {
		return "", nil
	}
	return out, nil
}
