// Package webchat is the real-time intake surface: a WebSocket endpoint the
// embeddable widget connects to. Each inbound message runs one orchestration
// turn synchronously and pushes the resulting plan back down the socket;
// conversation state between turns lives in the Redis session store.
package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bronn-dev/dentalbridge/internal/history"
	"github.com/bronn-dev/dentalbridge/internal/orchestrator"
	"github.com/bronn-dev/dentalbridge/internal/triage"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

// Planner runs one orchestration turn.
type Planner interface {
	Orchestrate(ctx context.Context, req orchestrator.Request) (*orchestrator.OrchestrationPlan, error)
}

// SessionStore carries conversation state between turns.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (*history.Session, error)
	Append(ctx context.Context, sessionID string, session *history.Session, userText, assistantText string, issues []triage.ClinicalIssue) error
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type    string         `json:"type"` // "message", "ping"
	Text    string         `json:"text,omitempty"`
	Answers map[string]any `json:"answers,omitempty"`
}

// OutboundMessage is what the handler pushes to the widget.
type OutboundMessage struct {
	Type      string                          `json:"type"` // "session", "plan", "typing", "pong", "error"
	SessionID string                          `json:"session_id,omitempty"`
	Text      string                          `json:"text,omitempty"`
	Plan      *orchestrator.OrchestrationPlan `json:"plan,omitempty"`
	Timestamp string                          `json:"timestamp,omitempty"`
}

// Handler manages widget WebSocket connections.
type Handler struct {
	planner  Planner
	sessions SessionStore
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*wsConn // session id -> active connection
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex // gorilla allows one concurrent writer
}

func (c *wsConn) send(msg OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// NewHandler wires a webchat handler. The widget is served cross-origin, so
// the upgrader accepts any origin; tenancy is enforced by the query token.
func NewHandler(planner Planner, sessions SessionStore, logger *logging.Logger) *Handler {
	if planner == nil {
		panic("webchat: planner required")
	}
	if sessions == nil {
		panic("webchat: session store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		planner:  planner,
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[string]*wsConn),
	}
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(b)
}

// HandleWebSocket upgrades the connection and serves chat turns until the
// client disconnects.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant")
	if tenantID == "" {
		http.Error(w, "tenant parameter required", http.StatusBadRequest)
		return
	}
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = generateSessionID()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("webchat: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	wsc := &wsConn{conn: conn}
	h.mu.Lock()
	h.conns[sessionID] = wsc
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		if h.conns[sessionID] == wsc {
			delete(h.conns, sessionID)
		}
		h.mu.Unlock()
	}()

	_ = wsc.send(OutboundMessage{Type: "session", SessionID: sessionID})
	h.logger.Info("webchat: connection opened", "tenant_id", tenantID, "session_id", sessionID)

	for {
		var msg InboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			h.logger.Debug("webchat: connection closed", "session_id", sessionID, "error", err)
			return
		}

		switch {
		case msg.Type == "ping":
			_ = wsc.send(OutboundMessage{Type: "pong"})
		case msg.Type == "message" && (strings.TrimSpace(msg.Text) != "" || len(msg.Answers) > 0):
			h.runTurn(r.Context(), wsc, tenantID, sessionID, msg)
		}
	}
}

func (h *Handler) runTurn(ctx context.Context, wsc *wsConn, tenantID, sessionID string, msg InboundMessage) {
	_ = wsc.send(OutboundMessage{Type: "typing"})

	session, err := h.sessions.Load(ctx, sessionID)
	if err != nil {
		h.logger.Error("webchat: session load failed", "error", err, "session_id", sessionID)
		session = &history.Session{}
	}

	plan, err := h.planner.Orchestrate(ctx, orchestrator.Request{
		Text:              msg.Text,
		History:           session.Messages,
		StructuredAnswers: msg.Answers,
		PriorIssues:       session.Issues,
		TenantID:          tenantID,
	})
	if err != nil {
		h.logger.Error("webchat: orchestration failed", "error", err, "session_id", sessionID)
		_ = wsc.send(OutboundMessage{
			Type: "error",
			Text: "Sorry, something went wrong. Please try again.",
		})
		return
	}

	session.TenantID = tenantID
	if err := h.sessions.Append(ctx, sessionID, session, msg.Text, replyText(plan), plan.Issues); err != nil {
		h.logger.Error("webchat: session append failed", "error", err, "session_id", sessionID)
	}

	_ = wsc.send(OutboundMessage{
		Type:      "plan",
		Plan:      plan,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// replyText picks the transcript line the assistant "said" this turn, so the
// next turn's history reads like a conversation.
func replyText(plan *orchestrator.OrchestrationPlan) string {
	switch plan.SuggestedAction {
	case orchestrator.PlanClarify:
		if len(plan.ClarificationQuestions) > 0 {
			return plan.ClarificationQuestions[0]
		}
		return "Could you tell me a little more about what you're experiencing?"
	case orchestrator.PlanEscalate:
		return "This needs urgent attention. We're finding you the earliest possible appointment."
	case orchestrator.PlanOrchestrate:
		return "Here are the appointment options we found for you."
	default:
		return "Hello! How can we help with your dental health today?"
	}
}

// Push sends a message to an active session, if one is connected.
func (h *Handler) Push(sessionID string, msg OutboundMessage) {
	h.mu.RLock()
	wsc, ok := h.conns[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	_ = wsc.send(msg)
}
