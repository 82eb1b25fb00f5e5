package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voicelinehq/voiceline/config"
	"github.com/voicelinehq/voiceline/internal/auth"
	"github.com/voicelinehq/voiceline/internal/db"
	"github.com/voicelinehq/voiceline/internal/models"
	"github.com/voicelinehq/voiceline/internal/services"
)

// Handler exposes the HTTP surface. It owns no state of its own; everything
// is delegated to the stores and services it composes.
type Handler struct {
	authService *auth.Service
	store       *db.Store
	transcripts *db.Mongo
	live        *db.LiveCache
	llm         *services.LLM
	settings    config.Settings
	logger      *zap.SugaredLogger

	gate gin.HandlerFunc
}

func NewHandler(
	authService *auth.Service,
	store *db.Store,
	transcripts *db.Mongo,
	live *db.LiveCache,
	llm *services.LLM,
	settings config.Settings,
	logger *zap.SugaredLogger,
) *Handler {
	return &Handler{
		authService: authService,
		store:       store,
		transcripts: transcripts,
		live:        live,
		llm:         llm,
		settings:    settings,
		logger:      logger,
		gate:        auth.Middleware(authService),
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	apiGroup := router.Group("/api")

	authGroup := apiGroup.Group("/auth")
	authGroup.POST("/register", h.handleRegister)
	authGroup.POST("/login", h.handleLogin)

	apiGroup.GET("/voices", h.handleListVoices)
	apiGroup.GET("/pricing", h.handlePricing)

	protected := apiGroup.Group("", h.gate)

	protected.GET("/account", h.handleGetAccount)
	protected.PUT("/account/telephony", h.handleSetTelephony)

	agentGroup := protected.Group("/agents")
	agentGroup.POST("", h.handleCreateAgent)
	agentGroup.GET("", h.handleListAgents)
	agentGroup.GET("/:id", h.handleGetAgent)
	agentGroup.PUT("/:id", h.handleUpdateAgent)
	agentGroup.DELETE("/:id", h.handleDeleteAgent)

	callGroup := protected.Group("/calls")
	callGroup.POST("", h.handleCreateCall)
	callGroup.GET("", h.handleListCalls)
	callGroup.GET("/:id", h.handleGetCall)
	callGroup.POST("/:id/respond", h.handleRespond)
	callGroup.GET("/:id/live", h.handleLiveCall)
	callGroup.GET("/:id/transcript", h.handleGetTranscript)
	callGroup.GET("/:id/cost", h.handleCallCost)

	adminGroup := protected.Group("/admin", auth.RequireAdmin())
	adminGroup.GET("/calls", h.handleAdminListCalls)
}

// writeError is the single point where internal failures turn into client
// responses. The body carries the message only; err stays in the server log.
func (h *Handler) writeError(c *gin.Context, status int, message string, err error) {
	if err != nil {
		if status >= http.StatusInternalServerError {
			h.logger.Errorw("request failed",
				"status", status, "method", c.Request.Method, "path", c.FullPath(), "error", err)
		} else {
			h.logger.Debugw("request rejected",
				"status", status, "method", c.Request.Method, "path", c.FullPath(), "error", err)
		}
	}

	c.JSON(status, gin.H{"error": message})
}

func (h *Handler) mustIdentity(c *gin.Context) (auth.Identity, bool) {
	identity, ok := auth.CurrentIdentity(c)
	if !ok {
		h.writeError(c, http.StatusUnauthorized, "authentication required", nil)
	}
	return identity, ok
}

func statusFromProviderError(err error) int {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func callJSON(cw models.CallWithAgent) gin.H {
	body := gin.H{
		"id":              cw.Call.ID,
		"agentId":         cw.Call.AgentID,
		"status":          cw.Call.Status,
		"fromNumber":      cw.Call.FromNumber,
		"toNumber":        cw.Call.ToNumber,
		"durationSeconds": cw.Call.DurationSeconds,
		"createdAt":       cw.Call.CreatedAt.Format(time.RFC3339),
		"updatedAt":       cw.Call.UpdatedAt.Format(time.RFC3339),
		"agent": gin.H{
			"id":    cw.Agent.ID,
			"name":  cw.Agent.Name,
			"voice": cw.Agent.Voice,
		},
	}
	if cw.Call.StartedAt != nil {
		body["startedAt"] = cw.Call.StartedAt.Format(time.RFC3339)
	}
	if cw.Call.EndedAt != nil {
		body["endedAt"] = cw.Call.EndedAt.Format(time.RFC3339)
	}

	return body
}

func agentJSON(agent models.Agent) gin.H {
	return gin.H{
		"id":           agent.ID,
		"name":         agent.Name,
		"voice":        agent.Voice,
		"systemPrompt": agent.SystemPrompt,
		"greeting":     agent.Greeting,
		"createdAt":    agent.CreatedAt.Format(time.RFC3339),
		"updatedAt":    agent.UpdatedAt.Format(time.RFC3339),
	}
}
