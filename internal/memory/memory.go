// Package memory keeps per-conversation turn history under a token budget.
// When the history grows past the budget, the oldest turns are folded into a
// synopsis instead of being dropped.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/docqa/internal/chunker"
	"github.com/dgallion1/docqa/internal/llm"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const DefaultTokenLimit = 2000

// Turn is one message in a conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Sources   []string  `json:"sources,omitempty"`
}

// Conversation is the stored history of one conversation id.
type Conversation struct {
	ID       string `json:"id"`
	Synopsis string `json:"synopsis,omitempty"`
	Turns    []Turn `json:"turns"`
}

// Tokens estimates the size of the conversation as sent to a model.
func (c Conversation) Tokens() int {
	n := chunker.EstimateTokens(c.Synopsis)
	for _, t := range c.Turns {
		n += chunker.EstimateTokens(t.Content)
	}
	return n
}

// Render formats the conversation for inclusion in a prompt.
func (c Conversation) Render() string {
	var sb strings.Builder
	if c.Synopsis != "" {
		sb.WriteString("Summary of earlier conversation: ")
		sb.WriteString(c.Synopsis)
		sb.WriteString("\n")
	}
	for _, t := range c.Turns {
		sb.WriteString(string(t.Role))
		sb.WriteString(": ")
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

type Config struct {
	TokenLimit  int
	Timeout     time.Duration // Per summarization call.
	MaxTokens   int
	Temperature float64
}

type entry struct {
	turn sync.Mutex // Held by callers for a whole question/answer turn.
	conv Conversation
}

// Store owns all conversations. It is safe for concurrent use.
type Store struct {
	completer llm.Completer
	cfg       Config
	log       *slog.Logger

	mu    sync.Mutex
	convs map[string]*entry
}

// NewStore creates an empty store. A nil completer always uses the
// extractive synopsis.
func NewStore(completer llm.Completer, cfg Config, log *slog.Logger) *Store {
	if cfg.TokenLimit <= 0 {
		cfg.TokenLimit = DefaultTokenLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Store{completer: completer, cfg: cfg, log: log, convs: make(map[string]*entry)}
}

func (s *Store) lookup(id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.convs[id]
	if !ok {
		e = &entry{conv: Conversation{ID: id}}
		s.convs[id] = e
	}
	return e
}

// Lock serializes turns on one conversation. Different ids do not contend.
// The returned func releases the lock.
func (s *Store) Lock(id string) func() {
	e := s.lookup(id)
	e.turn.Lock()
	return e.turn.Unlock
}

// Get returns a copy of the conversation.
func (s *Store) Get(id string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.convs[id]
	if !ok {
		return Conversation{ID: id}, false
	}
	return copyConv(e.conv), true
}

// History renders the conversation for a prompt, or "" when it is new.
func (s *Store) History(id string) string {
	c, _ := s.Get(id)
	return c.Render()
}

// Append adds turns and, if the conversation is now over budget, summarizes
// its oldest turns. The summary never fails the append.
func (s *Store) Append(ctx context.Context, id string, turns ...Turn) {
	e := s.lookup(id)

	s.mu.Lock()
	for _, t := range turns {
		if t.Timestamp.IsZero() {
			t.Timestamp = time.Now().UTC()
		}
		e.conv.Turns = append(e.conv.Turns, t)
	}
	if e.conv.Tokens() <= s.cfg.TokenLimit {
		s.mu.Unlock()
		return
	}
	prior := e.conv.Synopsis
	evict, keep := split(e.conv.Turns, s.cfg.TokenLimit/2)
	evicted := append([]Turn(nil), e.conv.Turns[:evict]...)
	s.mu.Unlock()

	// The summary may take seconds; the lock is not held while waiting.
	budget := s.cfg.TokenLimit - keep
	synopsis := s.summarize(ctx, id, prior, evicted)
	synopsis = trimTokens(synopsis, budget)

	s.mu.Lock()
	defer s.mu.Unlock()
	e.conv.Turns = append([]Turn(nil), e.conv.Turns[evict:]...)
	e.conv.Synopsis = synopsis
	s.log.Debug("conversation summarized", "conversation_id", id,
		"evicted_turns", evict, "kept_turns", len(e.conv.Turns), "tokens", e.conv.Tokens())
}

// split returns how many of the oldest turns to evict so that the newest
// remaining turns fit within keepBudget, and the token size of those kept.
func split(turns []Turn, keepBudget int) (evict, kept int) {
	evict = len(turns)
	for i := len(turns) - 1; i >= 0; i-- {
		n := chunker.EstimateTokens(turns[i].Content)
		if kept+n > keepBudget {
			break
		}
		kept += n
		evict = i
	}
	// Always fold at least one turn so the synopsis makes progress.
	if evict == 0 && len(turns) > 0 {
		kept -= chunker.EstimateTokens(turns[0].Content)
		evict = 1
	}
	return evict, kept
}

const summaryPrompt = `Progressively summarize the lines of conversation provided, adding onto the previous summary and returning a new summary. Keep names, numbers, table and chart references. Write the summary in the language of the conversation.`

// summarize folds prior and turns into a new synopsis. When the provider is
// missing or fails, it returns an extractive synopsis instead.
func (s *Store) summarize(ctx context.Context, id, prior string, turns []Turn) string {
	lines := renderTurns(turns)
	if s.completer == nil {
		return extractive(prior, lines)
	}

	var sb strings.Builder
	sb.WriteString(summaryPrompt)
	sb.WriteString("\n\nCurrent summary:\n")
	sb.WriteString(prior)
	sb.WriteString("\n\nNew lines of conversation:\n")
	sb.WriteString(lines)
	sb.WriteString("\n\nNew summary:")

	out, err := s.completer.Complete(ctx, llm.Request{
		Prompt:      sb.String(),
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
		Timeout:     s.cfg.Timeout,
	})
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		if err == nil {
			err = fmt.Errorf("empty summary")
		}
		s.log.Warn("summarization failed, using extractive synopsis", "conversation_id", id, "error", err)
		return extractive(prior, lines)
	}
	return out
}

func renderTurns(turns []Turn) string {
	return Conversation{Turns: turns}.Render()
}

func extractive(prior, lines string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(prior+" "+lines), " "))
}

// trimTokens cuts s to the longest word suffix whose estimate fits limit.
// Later words are newer, so the most recently evicted turns survive.
func trimTokens(s string, limit int) string {
	if chunker.EstimateTokens(s) <= limit {
		return s
	}
	words := strings.Fields(s)
	start := 0
	for start < len(words) && chunker.EstimateTokens(strings.Join(words[start:], " ")) > limit {
		start++
	}
	return strings.Join(words[start:], " ")
}

func copyConv(c Conversation) Conversation {
	out := c
	out.Turns = make([]Turn, len(c.Turns))
	copy(out.Turns, c.Turns)
	return out
}
