// Package memory is the companion's long-term memory: the append-only
// conversation log, extracted user facts, and the context window assembled
// for each model call.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/companion/store"
)

const (
	// NoContextSentinel is returned when there is no prior conversation.
	NoContextSentinel = "No previous conversation."

	defaultRecentLimit = 10
	defaultSearchLimit = 5
)

// ProcessResult reports what happened while recording a message.
type ProcessResult struct {
	MessageID      int64
	ExtractedFacts []*store.Fact
}

// Memory wraps the store with conversation-level operations. Read failures
// degrade to empty results so a broken query never kills a turn; write
// failures propagate because losing a message silently is worse.
type Memory struct {
	store     *store.Store
	extractor Extractor
}

func New(s *store.Store, extractor Extractor) *Memory {
	return &Memory{store: s, extractor: extractor}
}

// AddMessage appends one conversation turn.
func (m *Memory) AddMessage(ctx context.Context, content string, isUser bool, importance float64) (*store.Message, error) {
	return m.store.CreateMessage(ctx, &store.Message{
		Content:    content,
		IsUser:     isUser,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Importance: importance,
	})
}

// AddFact records one subject-predicate-object statement. An empty source
// is stored as NULL rather than an empty string.
func (m *Memory) AddFact(ctx context.Context, f ExtractedFact) (*store.Fact, error) {
	var source *string
	if f.Source != "" {
		source = &f.Source
	}
	return m.store.CreateFact(ctx, &store.Fact{
		Subject:    f.Subject,
		Predicate:  f.Predicate,
		Object:     f.Object,
		Confidence: f.Confidence,
		Source:     source,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

// RecentMessages returns the latest messages, newest first.
func (m *Memory) RecentMessages(ctx context.Context, limit int) []*store.Message {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	messages, err := m.store.ListMessages(ctx, &store.FindMessage{Limit: &limit})
	if err != nil {
		slog.Warn("failed to list recent messages", "error", err)
		return nil
	}
	return messages
}

// SearchMessages returns messages whose content contains the query, newest first.
func (m *Memory) SearchMessages(ctx context.Context, query string, limit int) []*store.Message {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	messages, err := m.store.ListMessages(ctx, &store.FindMessage{ContentQuery: &query, Limit: &limit})
	if err != nil {
		slog.Warn("failed to search messages", "query", query, "error", err)
		return nil
	}
	return messages
}

// FactsAbout returns known facts for a subject, highest confidence first.
func (m *Memory) FactsAbout(ctx context.Context, subject string) []*store.Fact {
	facts, err := m.store.ListFacts(ctx, &store.FindFact{Subject: &subject})
	if err != nil {
		slog.Warn("failed to list facts", "subject", subject, "error", err)
		return nil
	}
	return facts
}

// ConversationContext renders the last n turns as prompt text, oldest first.
// With no history it returns NoContextSentinel.
func (m *Memory) ConversationContext(ctx context.Context, n int) string {
	messages := m.RecentMessages(ctx, n)
	if len(messages) == 0 {
		return NoContextSentinel
	}

	// RecentMessages is newest-first; the prompt reads top-down.
	lines := make([]string, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		speaker := "AI"
		if msg.IsUser {
			speaker = "User"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, msg.Content))
	}
	return strings.Join(lines, "\n")
}

// ProcessMessage stores a turn and, for user messages, extracts and records
// any facts it contains. Failing to store a fact is logged but does not fail
// the turn; the message itself is already durable at that point.
func (m *Memory) ProcessMessage(ctx context.Context, content string, isUser bool, importance float64) (*ProcessResult, error) {
	message, err := m.AddMessage(ctx, content, isUser, importance)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{MessageID: message.ID}
	for _, extracted := range m.extractor.Extract(content, isUser) {
		fact, err := m.AddFact(ctx, extracted)
		if err != nil {
			slog.Warn("failed to store extracted fact", "predicate", extracted.Predicate, "error", err)
			continue
		}
		result.ExtractedFacts = append(result.ExtractedFacts, fact)
	}
	return result, nil
}

// Summary reports memory counts for the stats endpoint.
func (m *Memory) Summary(ctx context.Context) map[string]int64 {
	summary := map[string]int64{
		"message_count":      0,
		"user_message_count": 0,
		"ai_message_count":   0,
		"fact_count":         0,
	}

	if total, err := m.store.CountMessages(ctx, nil); err != nil {
		slog.Warn("failed to count messages", "error", err)
	} else {
		summary["message_count"] = total
	}
	isUser := true
	if user, err := m.store.CountMessages(ctx, &isUser); err != nil {
		slog.Warn("failed to count user messages", "error", err)
	} else {
		summary["user_message_count"] = user
		summary["ai_message_count"] = summary["message_count"] - user
	}
	if facts, err := m.store.CountFacts(ctx); err != nil {
		slog.Warn("failed to count facts", "error", err)
	} else {
		summary["fact_count"] = facts
	}
	return summary
}
