package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voicelinehq/voiceline/internal/db"
	"github.com/voicelinehq/voiceline/internal/models"
	"github.com/voicelinehq/voiceline/internal/services"
)

type createCallRequest struct {
	AgentID string
}

type turnPayload struct {
	Role    string
	Content string
}

type respondRequest struct {
	Turns       []turnPayload
	Temperature float64
}

func (h *Handler) handleGetCall(c *gin.Context) {
	identity, ok := h.mustIdentity(c)
	if !ok {
		return
	}

	cw, err := h.store.GetCall(c.Request.Context(), c.Param("id"), identity.UserID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(c, http.StatusNotFound, "Call not found", err)
			return
		}
		h.writeError(c, http.StatusInternalServerError, "Failed to fetch call", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"call": callJSON(cw)})
}

func (h *Handler) handleListCalls(c *gin.Context) {
	identity, ok := h.mustIdentity(c)
	if !ok {
		return
	}

	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	calls, err := h.store.ListCalls(c.Request.Context(), identity.UserID, limit, offset)
	if err != nil {
		h.writeError(c, http.StatusInternalServerError, "Failed to fetch calls", err)
		return
	}

	items := make([]gin.H, 0, len(calls))
	for _, cw := range calls {
		items = append(items, callJSON(cw))
	}

	c.JSON(http.StatusOK, gin.H{"calls": items, "count": len(items)})
}

func (h *Handler) handleCreateCall(c *gin.Context) {
	identity, ok := h.mustIdentity(c)
	if !ok {
		return
	}

	var req createCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}
	if strings.TrimSpace(req.AgentID) == "" {
		h.writeError(c, http.StatusBadRequest, "agentId is required", nil)
		return
	}

	ctx := c.Request.Context()

	agent, err := h.store.GetAgent(ctx, req.AgentID, identity.UserID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(c, http.StatusNotFound, "Agent not found", err)
			return
		}
		h.writeError(c, http.StatusInternalServerError, "Failed to fetch agent", err)
		return
	}

	total, err := h.store.CountCalls(ctx, identity.UserID)
	if err != nil {
		h.writeError(c, http.StatusInternalServerError, "Failed to create call", err)
		return
	}
	if total >= h.settings.Pricing().Free.TestCalls {
		h.writeError(c, http.StatusForbidden, "Test call limit reached", nil)
		return
	}

	active, err := h.store.CountActiveCalls(ctx, identity.UserID)
	if err != nil {
		h.writeError(c, http.StatusInternalServerError, "Failed to create call", err)
		return
	}
	if active >= h.settings.CallLimits().MaxConcurrentPerUser {
		h.writeError(c, http.StatusTooManyRequests, "Too many active calls", nil)
		return
	}

	call, err := h.store.CreateCall(ctx, models.Call{
		UserID:     identity.UserID,
		AgentID:    agent.ID,
		FromNumber: "web-client",
		ToNumber:   "test",
	})
	if err != nil {
		h.writeError(c, http.StatusInternalServerError, "Failed to create call", err)
		return
	}

	cw := models.CallWithAgent{
		Call:  call,
		Agent: models.CallAgent{ID: agent.ID, Name: agent.Name, Voice: agent.Voice},
	}

	c.JSON(http.StatusCreated, gin.H{"call": callJSON(cw)})
}

// handleRespond runs one conversational turn: validate the client's history,
// generate the agent reply under the latency target, persist the exchange.
func (h *Handler) handleRespond(c *gin.Context) {
	identity, ok := h.mustIdentity(c)
	if !ok {
		return
	}

	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	turns, err := parseTurns(req.Turns)
	if err != nil {
		h.writeError(c, http.StatusBadRequest, err.Error(), err)
		return
	}

	callID := c.Param("id")
	cw, err := h.store.GetCall(c.Request.Context(), callID, identity.UserID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(c, http.StatusNotFound, "Call not found", err)
			return
		}
		h.writeError(c, http.StatusInternalServerError, "Failed to fetch call", err)
		return
	}

	agent, err := h.store.GetAgent(c.Request.Context(), cw.Call.AgentID, identity.UserID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(c, http.StatusNotFound, "Agent not found", err)
			return
		}
		h.writeError(c, http.StatusInternalServerError, "Failed to fetch agent", err)
		return
	}

	genCtx, cancel := context.WithTimeout(c.Request.Context(), h.settings.LatencyTargets().MaxResponse)
	defer cancel()

	reply, err := h.llm.Generate(genCtx, services.GenerateRequest{
		Turns:        turns,
		SystemPrompt: agent.SystemPrompt,
		Temperature:  req.Temperature,
	})
	if err != nil {
		h.writeError(c, statusFromProviderError(err), "Failed to generate response", err)
		return
	}

	h.appendExchange(c.Request.Context(), callID, identity.UserID, turns[len(turns)-1], reply)

	promptTokens := services.EstimateTokens(agent.SystemPrompt)
	for _, turn := range turns {
		promptTokens += services.EstimateTokens(turn.Content)
	}

	c.JSON(http.StatusOK, gin.H{
		"callId": callID,
		"reply":  reply,
		"usage": gin.H{
			"promptTokens": promptTokens,
			"replyTokens":  services.EstimateTokens(reply),
		},
	})
}

// appendExchange records the latest user turn and the generated reply. The
// reply already went out on the wire by the time this runs, so persistence
// failures are logged rather than surfaced.
func (h *Handler) appendExchange(ctx context.Context, callID, userID string, userTurn models.Turn, reply string) {
	at := time.Now().UTC()
	stored := []db.TranscriptTurn{db.NewTranscriptTurn(userTurn, at)}
	if reply != "" {
		stored = append(stored, db.NewTranscriptTurn(models.Turn{Role: models.RoleAssistant, Content: reply}, at))
	}

	if err := h.transcripts.AppendTranscript(ctx, callID, userID, stored); err != nil {
		h.logger.Errorw("append transcript failed", "callId", callID, "error", err)
	}
}

func (h *Handler) handleGetTranscript(c *gin.Context) {
	identity, ok := h.mustIdentity(c)
	if !ok {
		return
	}

	transcript, err := h.transcripts.GetTranscript(c.Request.Context(), c.Param("id"), identity.UserID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(c, http.StatusNotFound, "Transcript not found", err)
			return
		}
		h.writeError(c, http.StatusInternalServerError, "Failed to fetch transcript", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"callId":    transcript.CallID,
		"turns":     transcript.Turns,
		"updatedAt": transcript.UpdatedAt.Format(time.RFC3339),
	})
}

func (h *Handler) handleCallCost(c *gin.Context) {
	identity, ok := h.mustIdentity(c)
	if !ok {
		return
	}

	callID := c.Param("id")
	cw, err := h.store.GetCall(c.Request.Context(), callID, identity.UserID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(c, http.StatusNotFound, "Call not found", err)
			return
		}
		h.writeError(c, http.StatusInternalServerError, "Failed to fetch call", err)
		return
	}

	synthesized := 0
	transcript, err := h.transcripts.GetTranscript(c.Request.Context(), callID, identity.UserID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		h.writeError(c, http.StatusInternalServerError, "Failed to fetch transcript", err)
		return
	}
	for _, turn := range transcript.Turns {
		if turn.Role == string(models.RoleAssistant) {
			synthesized += len([]rune(turn.Content))
		}
	}

	duration := time.Duration(cw.Call.DurationSeconds) * time.Second
	cost := h.settings.CostModel().EstimateCall(duration, synthesized)

	c.JSON(http.StatusOK, gin.H{
		"callId":                callID,
		"durationSeconds":       cw.Call.DurationSeconds,
		"synthesizedCharacters": synthesized,
		"estimatedCostUsd":      math.Round(cost*1e6) / 1e6,
	})
}

// parseTurns validates untrusted conversation history. Roles come from a
// closed set and the final turn must belong to the user, since that is the
// message the agent replies to.
func parseTurns(payload []turnPayload) ([]models.Turn, error) {
	if len(payload) == 0 {
		return nil, errors.New("at least one turn is required")
	}

	turns := make([]models.Turn, 0, len(payload))
	for i, p := range payload {
		role, err := models.ParseRole(p.Role)
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", i, err)
		}
		content := strings.TrimSpace(p.Content)
		if content == "" {
			return nil, fmt.Errorf("turn %d: content is required", i)
		}
		turns = append(turns, models.Turn{Role: role, Content: content})
	}

	if turns[len(turns)-1].Role != models.RoleUser {
		return nil, errors.New("last turn must be from the user")
	}

	return turns, nil
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return value
}
