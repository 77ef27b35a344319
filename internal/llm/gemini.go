package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiClient serves both completions and embeddings through the Gemini API.
type GeminiClient struct {
	client       *genai.Client
	model        string
	embedModel   string
	dimensions   int
	embedTimeout time.Duration
}

var (
	_ Completer = (*GeminiClient)(nil)
	_ Embedder  = (*GeminiClient)(nil)
)

// GeminiConfig configures NewGeminiClient.
type GeminiConfig struct {
	APIKey       string
	Model        string
	EmbedModel   string
	Dimensions   int
	EmbedTimeout time.Duration
}

func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{
		client:       client,
		model:        cfg.Model,
		embedModel:   cfg.EmbedModel,
		dimensions:   cfg.Dimensions,
		embedTimeout: cfg.EmbedTimeout,
	}, nil
}

func (c *GeminiClient) Name() string    { return "gemini" }
func (c *GeminiClient) Model() string   { return c.model }
func (c *GeminiClient) Dimensions() int { return c.dimensions }

func (c *GeminiClient) Complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", wrapErr(c.Name(), "complete", err, retryableGemini(err))
	}

	var out strings.Builder
	if resp != nil {
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					out.WriteString(part.Text)
				}
			}
		}
	}
	if out.Len() == 0 {
		return "", wrapErr(c.Name(), "complete", fmt.Errorf("empty response"), false)
	}
	return out.String(), nil
}

// Embed embeds texts in one request.
func (c *GeminiClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := withTimeout(ctx, c.embedTimeout)
	defer cancel()

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	cfg := &genai.EmbedContentConfig{}
	if c.dimensions > 0 {
		dim := int32(c.dimensions)
		cfg.OutputDimensionality = &dim
	}

	result, err := c.client.Models.EmbedContent(ctx, c.embedModel, contents, cfg)
	if err != nil {
		return nil, wrapErr(c.Name(), "embed", err, retryableGemini(err))
	}
	if result == nil || len(result.Embeddings) != len(texts) {
		got := 0
		if result != nil {
			got = len(result.Embeddings)
		}
		return nil, wrapErr(c.Name(), "embed", fmt.Errorf("expected %d embeddings, got %d", len(texts), got), false)
	}

	out := make([][]float32, len(texts))
	for i, e := range result.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

func retryableGemini(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return false
}
