// Package history keeps per-session conversation state in Redis: the chat
// transcript and the merged clinical issues accumulated across turns. The
// chat surface is stateless; everything a follow-up turn needs lives here
// under a 24-hour TTL.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/bronn-dev/dentalbridge/internal/triage"
)

const sessionTTL = 24 * time.Hour

// Session is everything carried between turns of one patient conversation.
type Session struct {
	TenantID string                 `json:"tenant_id"`
	Messages []triage.ChatMessage   `json:"messages"`
	Issues   []triage.ClinicalIssue `json:"issues"`
}

// Store persists sessions in Redis.
type Store struct {
	redis  *redis.Client
	tracer trace.Tracer
}

// NewStore wires a session store over a Redis client.
func NewStore(client *redis.Client) *Store {
	if client == nil {
		panic("history: redis client cannot be nil")
	}
	return &Store{
		redis:  client,
		tracer: otel.Tracer("dentalbridge.internal.history"),
	}
}

// Save persists the session, refreshing its TTL.
func (s *Store) Save(ctx context.Context, sessionID string, session *Session) error {
	ctx, span := s.tracer.Start(ctx, "history.save")
	defer span.End()

	if session == nil {
		session = &Session{}
	}
	data, err := json.Marshal(session)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("history: marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(sessionID), data, sessionTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("history: persist session: %w", err)
	}
	return nil
}

// Load returns the session, or an empty one for an unknown id — a fresh
// conversation and an expired one look the same to callers.
func (s *Store) Load(ctx context.Context, sessionID string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "history.load")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return &Session{Messages: []triage.ChatMessage{}, Issues: []triage.ClinicalIssue{}}, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("history: load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("history: decode session: %w", err)
	}
	if session.Messages == nil {
		session.Messages = []triage.ChatMessage{}
	}
	if session.Issues == nil {
		session.Issues = []triage.ClinicalIssue{}
	}
	return &session, nil
}

// Append records one exchange and the post-turn issue state in a single
// write.
func (s *Store) Append(ctx context.Context, sessionID string, session *Session, userText, assistantText string, issues []triage.ClinicalIssue) error {
	if session == nil {
		session = &Session{}
	}
	if userText != "" {
		session.Messages = append(session.Messages, triage.ChatMessage{Role: triage.ChatRoleUser, Content: userText})
	}
	if assistantText != "" {
		session.Messages = append(session.Messages, triage.ChatMessage{Role: triage.ChatRoleAssistant, Content: assistantText})
	}
	session.Issues = issues
	return s.Save(ctx, sessionID, session)
}

// Delete removes a session outright.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("history: delete session: %w", err)
	}
	return nil
}

func sessionKey(id string) string {
	return fmt.Sprintf("triage_session:%s", id)
}
