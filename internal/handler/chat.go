package handler

import (
	"net/http"

	"github.com/theearthwanderer/rentalagent/internal/agent"
	"github.com/theearthwanderer/rentalagent/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ChatHandler handles conversational endpoints
type ChatHandler struct {
	agent    *agent.Agent
	sessions *session.Store
	upgrader websocket.Upgrader
}

// NewChatHandler creates a new chat handler
func NewChatHandler(a *agent.Agent, sessions *session.Store) *ChatHandler {
	return &ChatHandler{
		agent:    a,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// CORS is enforced at the HTTP layer
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// CreateSession handles POST /api/v1/sessions
func (h *ChatHandler) CreateSession(c *gin.Context) {
	s := h.sessions.Create()
	c.JSON(http.StatusOK, gin.H{"session_id": s.ID})
}

// GetSession handles GET /api/v1/sessions/:id. The preference bag carries
// the last-used search arguments so a UI can pre-fill filter controls.
func (h *ChatHandler) GetSession(c *gin.Context) {
	sess := h.sessions.Get(c.Param("id"))
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	sess.Lock()
	defer sess.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"session_id":  sess.ID,
		"created_at":  sess.CreatedAt,
		"updated_at":  sess.UpdatedAt,
		"turns":       sess.Len(),
		"preferences": sess.Preferences,
	})
}

// ChatRequest is a single-turn chat request
type ChatRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

// Chat handles POST /api/v1/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	sess := h.sessions.Get(req.SessionID)
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	response, err := h.agent.RunTurn(c.Request.Context(), sess, req.Message)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Turn failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, response)
}

// wsIncoming is one client frame on the chat socket
type wsIncoming struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Websocket handles GET /ws/:session_id. Unknown session ids get an
// ad-hoc session for dev convenience.
func (h *ChatHandler) Websocket(c *gin.Context) {
	sessionID := c.Param("session_id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log.Info().Str("session_id", sessionID).Msg("websocket connected")
	sess := h.sessions.GetOrCreate(sessionID)

	for {
		var incoming wsIncoming
		if err := conn.ReadJSON(&incoming); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Str("session_id", sessionID).Err(err).Msg("websocket read error")
			} else {
				log.Info().Str("session_id", sessionID).Msg("websocket disconnected")
			}
			return
		}

		if incoming.Type != "message" {
			continue
		}

		_ = conn.WriteJSON(gin.H{"type": "status", "message": "Thinking..."})

		response, err := h.agent.RunTurn(c.Request.Context(), sess, incoming.Content)
		if err != nil {
			log.Error().Str("session_id", sessionID).Err(err).Msg("turn failed")
			_ = conn.WriteJSON(gin.H{"type": "error", "message": err.Error()})
			continue
		}

		for _, tc := range response.ToolCalls {
			_ = conn.WriteJSON(gin.H{
				"type":      "tool_call",
				"tool_name": tc.Name,
				"arguments": tc.Arguments,
			})
		}
		for _, tr := range response.ToolResults {
			_ = conn.WriteJSON(gin.H{
				"type":      "tool_result",
				"tool_name": tr.Name,
				"result":    tr.Result,
			})
		}

		_ = conn.WriteJSON(gin.H{
			"type":    "message",
			"role":    "assistant",
			"content": response.Content,
		})
	}
}
