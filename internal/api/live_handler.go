package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/voicelinehq/voiceline/internal/db"
	"github.com/voicelinehq/voiceline/internal/models"
	"github.com/voicelinehq/voiceline/internal/services"
)

var liveUpgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type liveClientFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// handleLiveCall runs a live test session over a websocket. The client sends
// user text frames; each one produces a stream of delta frames followed by a
// reply frame. Context accumulates in the live cache so every turn sees the
// conversation so far.
func (h *Handler) handleLiveCall(c *gin.Context) {
	identity, ok := h.mustIdentity(c)
	if !ok {
		return
	}

	callID := c.Param("id")
	ctx := c.Request.Context()

	cw, err := h.store.GetCall(ctx, callID, identity.UserID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(c, http.StatusNotFound, "Call not found", err)
			return
		}
		h.writeError(c, http.StatusInternalServerError, "Failed to fetch call", err)
		return
	}
	if cw.Call.Status == models.CallStatusCompleted || cw.Call.Status == models.CallStatusFailed {
		h.writeError(c, http.StatusConflict, "Call already ended", nil)
		return
	}

	agent, err := h.store.GetAgent(ctx, cw.Call.AgentID, identity.UserID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(c, http.StatusNotFound, "Agent not found", err)
			return
		}
		h.writeError(c, http.StatusInternalServerError, "Failed to fetch agent", err)
		return
	}

	active, err := h.store.CountActiveCalls(ctx, identity.UserID)
	if err != nil {
		h.writeError(c, http.StatusInternalServerError, "Failed to start call", err)
		return
	}
	if active >= h.settings.CallLimits().MaxConcurrentPerUser {
		h.writeError(c, http.StatusTooManyRequests, "Too many active calls", nil)
		return
	}

	conn, err := liveUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("live websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sendJSON := func(payload interface{}) error {
		return conn.WriteJSON(payload)
	}

	sendError := func(message string, detail error) {
		if detail != nil {
			h.logger.Warnf("live session error: %s: %v", message, detail)
		}
		_ = sendJSON(gin.H{"type": "error", "error": message})
	}

	if err := h.store.StartCall(ctx, callID, identity.UserID); err != nil {
		sendError("Failed to start call", err)
		return
	}

	started := time.Now()
	limits := h.settings.CallLimits()
	defer h.finishLiveCall(callID, identity.UserID, started)

	// The session ends no matter what once the call duration cap is hit.
	_ = conn.SetReadDeadline(started.Add(limits.MaxDuration))

	if agent.Greeting != "" {
		if err := sendJSON(gin.H{"type": "greeting", "text": agent.Greeting}); err != nil {
			return
		}
		greeting := models.Turn{Role: models.RoleAssistant, Content: agent.Greeting}
		if _, err := h.live.AppendTurns(ctx, callID, greeting); err != nil {
			h.logger.Warnw("cache greeting failed", "callId", callID, "error", err)
		}
		if err := h.transcripts.AppendTranscript(ctx, callID, identity.UserID,
			[]db.TranscriptTurn{db.NewTranscriptTurn(greeting, time.Now().UTC())}); err != nil {
			h.logger.Errorw("append transcript failed", "callId", callID, "error", err)
		}
	}

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warnf("live websocket closed: %v", err)
			}
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		var frame liveClientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			sendError("invalid message", err)
			continue
		}

		switch strings.ToLower(strings.TrimSpace(frame.Type)) {
		case "user":
			h.handleLiveTurn(c, conn, sendError, callID, identity.UserID, agent, frame.Text)

		case "ping":
			_ = sendJSON(gin.H{"type": "pong"})

		case "stop":
			return

		default:
			sendError("unsupported message type", errors.New(frame.Type))
		}
	}
}

// handleLiveTurn generates one streamed reply. A failed turn reports an error
// frame and leaves the session open.
func (h *Handler) handleLiveTurn(c *gin.Context, conn *websocket.Conn, sendError func(string, error), callID, userID string, agent models.Agent, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		sendError("text is required", nil)
		return
	}

	ctx := c.Request.Context()
	userTurn := models.Turn{Role: models.RoleUser, Content: text}

	history, err := h.live.AppendTurns(ctx, callID, userTurn)
	if err != nil {
		h.logger.Warnw("live context unavailable", "callId", callID, "error", err)
		history = []models.Turn{userTurn}
	}

	genCtx, cancel := context.WithTimeout(ctx, h.settings.LatencyTargets().MaxResponse)
	defer cancel()

	var reply strings.Builder
	err = h.llm.GenerateStreaming(genCtx, services.GenerateRequest{
		Turns:        history,
		SystemPrompt: agent.SystemPrompt,
	}, func(chunk string) {
		reply.WriteString(chunk)
		if err := conn.WriteJSON(gin.H{"type": "delta", "text": chunk}); err != nil {
			h.logger.Warnf("send delta failed: %v", err)
		}
	})
	if err != nil {
		sendError("Failed to generate response", err)
		return
	}

	full := reply.String()
	if full != "" {
		if _, err := h.live.AppendTurns(ctx, callID, models.Turn{Role: models.RoleAssistant, Content: full}); err != nil {
			h.logger.Warnw("cache reply failed", "callId", callID, "error", err)
		}
	}
	h.appendExchange(ctx, callID, userID, userTurn, full)

	if err := conn.WriteJSON(gin.H{"type": "reply", "text": full}); err != nil {
		h.logger.Warnf("send reply failed: %v", err)
	}
}

// finishLiveCall closes out the call record and drops the cached context.
// The request context may already be gone, so cleanup runs on its own.
func (h *Handler) finishLiveCall(callID, userID string, started time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.store.FinishCall(ctx, callID, userID, models.CallStatusCompleted, time.Since(started)); err != nil {
		h.logger.Errorw("finish call failed", "callId", callID, "error", err)
	}
	if err := h.live.Clear(ctx, callID); err != nil {
		h.logger.Warnw("clear live context failed", "callId", callID, "error", err)
	}
}
