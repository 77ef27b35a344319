package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Message is one entry of the append-only chat transcript.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	IsBot          bool      `json:"is_bot"`
	Sources        string    `json:"sources,omitempty"` // JSON document.
	Timestamp      time.Time `json:"timestamp"`
}

// Conversation groups the transcript entries of one conversation id.
type Conversation struct {
	ID       string    `json:"conversation_id"`
	Messages []Message `json:"messages"`
}

// AppendMessage adds m to the transcript and returns its id.
func (s *Store) AppendMessage(ctx context.Context, m Message) (int64, error) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	var sources *string
	if m.Sources != "" {
		sources = &m.Sources
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, content, is_bot, sources, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ConversationID, m.Content, boolToInt(m.IsBot), sources, m.Timestamp.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("append message: %w", err)
	}
	return res.LastInsertId()
}

// ListMessages returns a conversation's transcript, oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	return s.queryMessages(ctx,
		`SELECT id, conversation_id, content, is_bot, sources, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at, id`, conversationID)
}

// ConversationsOn returns every conversation with messages on the calendar
// day of day (in day's location), each with that day's messages in order.
// Conversations are ordered by their first message that day.
func (s *Store) ConversationsOn(ctx context.Context, day time.Time) ([]Conversation, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	msgs, err := s.queryMessages(ctx,
		`SELECT id, conversation_id, content, is_bot, sources, created_at
		 FROM messages WHERE created_at >= ? AND created_at < ? ORDER BY created_at, id`,
		start.UnixNano(), end.UnixNano())
	if err != nil {
		return nil, err
	}
	return groupConversations(msgs), nil
}

// ListConversations returns the whole transcript grouped by conversation,
// ordered by each conversation's first message.
func (s *Store) ListConversations(ctx context.Context) ([]Conversation, error) {
	msgs, err := s.queryMessages(ctx,
		`SELECT id, conversation_id, content, is_bot, sources, created_at
		 FROM messages ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	return groupConversations(msgs), nil
}

func groupConversations(msgs []Message) []Conversation {
	var convs []Conversation
	pos := make(map[string]int)
	for _, m := range msgs {
		i, ok := pos[m.ConversationID]
		if !ok {
			i = len(convs)
			pos[m.ConversationID] = i
			convs = append(convs, Conversation{ID: m.ConversationID})
		}
		convs[i].Messages = append(convs[i].Messages, m)
	}
	return convs
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var isBot int
		var sources sql.NullString
		var created int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Content, &isBot, &sources, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.IsBot = isBot != 0
		m.Sources = sources.String
		m.Timestamp = time.Unix(0, created)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
