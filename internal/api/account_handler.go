package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/voicelinehq/voiceline/internal/db"
)

type telephonyRequest struct {
	AccountSID string
	AuthToken  string
}

func (h *Handler) handleGetAccount(c *gin.Context) {
	identity, ok := h.mustIdentity(c)
	if !ok {
		return
	}

	user, err := h.store.GetUserByID(c.Request.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(c, http.StatusNotFound, "Account not found", err)
			return
		}
		h.writeError(c, http.StatusInternalServerError, "Failed to fetch account", err)
		return
	}

	body := userJSON(user.Sanitize())
	body["twilioAccountSid"] = user.TwilioAccountSID

	c.JSON(http.StatusOK, gin.H{"account": body})
}

// handleSetTelephony stores the caller's telephony credentials and flips the
// configured flag. The auth token is write-only; reads never return it.
func (h *Handler) handleSetTelephony(c *gin.Context) {
	identity, ok := h.mustIdentity(c)
	if !ok {
		return
	}

	var req telephonyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	req.AccountSID = strings.TrimSpace(req.AccountSID)
	req.AuthToken = strings.TrimSpace(req.AuthToken)
	if req.AccountSID == "" || req.AuthToken == "" {
		h.writeError(c, http.StatusBadRequest, "accountSid and authToken are required", nil)
		return
	}

	err := h.store.SetTelephonyCredentials(c.Request.Context(), identity.UserID, req.AccountSID, req.AuthToken)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(c, http.StatusNotFound, "Account not found", err)
			return
		}
		h.writeError(c, http.StatusInternalServerError, "Failed to store telephony credentials", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"twilioAccountSid": req.AccountSID,
		"twilioConfigured": true,
	})
}
