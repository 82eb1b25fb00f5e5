package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/voicelinehq/voiceline/internal/db"
	"github.com/voicelinehq/voiceline/internal/models"
)

type agentRequest struct {
	Name         string
	Voice        string
	SystemPrompt string
	Greeting     string
}

func (h *Handler) validateAgentRequest(req *agentRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return errors.New("name is required")
	}

	req.Voice = strings.TrimSpace(req.Voice)
	catalog := h.settings.VoiceCatalog()
	if req.Voice == "" {
		req.Voice = catalog[0].ID
		return nil
	}
	for _, voice := range catalog {
		if voice.ID == req.Voice {
			return nil
		}
	}

	return errors.New("unknown voice " + req.Voice)
}

func (h *Handler) handleCreateAgent(c *gin.Context) {
	identity, ok := h.mustIdentity(c)
	if !ok {
		return
	}

	var req agentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}
	if err := h.validateAgentRequest(&req); err != nil {
		h.writeError(c, http.StatusBadRequest, err.Error(), err)
		return
	}

	ctx := c.Request.Context()

	count, err := h.store.CountAgents(ctx, identity.UserID)
	if err != nil {
		h.writeError(c, http.StatusInternalServerError, "Failed to create agent", err)
		return
	}
	if count >= h.settings.Pricing().Free.Agents {
		h.writeError(c, http.StatusForbidden, "Agent limit reached", nil)
		return
	}

	agent, err := h.store.CreateAgent(ctx, models.Agent{
		UserID:       identity.UserID,
		Name:         req.Name,
		Voice:        req.Voice,
		SystemPrompt: req.SystemPrompt,
		Greeting:     req.Greeting,
	})
	if err != nil {
		h.writeError(c, http.StatusInternalServerError, "Failed to create agent", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"agent": agentJSON(agent)})
}

func (h *Handler) handleListAgents(c *gin.Context) {
	identity, ok := h.mustIdentity(c)
	if !ok {
		return
	}

	agents, err := h.store.ListAgents(c.Request.Context(), identity.UserID)
	if err != nil {
		h.writeError(c, http.StatusInternalServerError, "Failed to fetch agents", err)
		return
	}

	items := make([]gin.H, 0, len(agents))
	for _, agent := range agents {
		items = append(items, agentJSON(agent))
	}

	c.JSON(http.StatusOK, gin.H{"agents": items, "count": len(items)})
}

func (h *Handler) handleGetAgent(c *gin.Context) {
	identity, ok := h.mustIdentity(c)
	if !ok {
		return
	}

	agent, err := h.store.GetAgent(c.Request.Context(), c.Param("id"), identity.UserID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(c, http.StatusNotFound, "Agent not found", err)
			return
		}
		h.writeError(c, http.StatusInternalServerError, "Failed to fetch agent", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"agent": agentJSON(agent)})
}

func (h *Handler) handleUpdateAgent(c *gin.Context) {
	identity, ok := h.mustIdentity(c)
	if !ok {
		return
	}

	var req agentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}
	if err := h.validateAgentRequest(&req); err != nil {
		h.writeError(c, http.StatusBadRequest, err.Error(), err)
		return
	}

	agent, err := h.store.UpdateAgent(c.Request.Context(), models.Agent{
		ID:           c.Param("id"),
		UserID:       identity.UserID,
		Name:         req.Name,
		Voice:        req.Voice,
		SystemPrompt: req.SystemPrompt,
		Greeting:     req.Greeting,
	})
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(c, http.StatusNotFound, "Agent not found", err)
			return
		}
		h.writeError(c, http.StatusInternalServerError, "Failed to update agent", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"agent": agentJSON(agent)})
}

func (h *Handler) handleDeleteAgent(c *gin.Context) {
	identity, ok := h.mustIdentity(c)
	if !ok {
		return
	}

	err := h.store.DeleteAgent(c.Request.Context(), c.Param("id"), identity.UserID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(c, http.StatusNotFound, "Agent not found", err)
			return
		}
		h.writeError(c, http.StatusInternalServerError, "Failed to delete agent", err)
		return
	}

	c.Status(http.StatusNoContent)
}
