package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voicelinehq/voiceline/internal/db"
)

// handleAdminListCalls lists calls across every account. RequireAdmin gates
// the route; this handler only parses filters.
func (h *Handler) handleAdminListCalls(c *gin.Context) {
	filter := db.CallFilter{
		UserID:  strings.TrimSpace(c.Query("userId")),
		AgentID: strings.TrimSpace(c.Query("agentId")),
		Status:  strings.TrimSpace(c.Query("status")),
		Limit:   intQuery(c, "limit", 50),
		Offset:  intQuery(c, "offset", 0),
	}

	since, err := timeQuery(c, "since")
	if err != nil {
		h.writeError(c, http.StatusBadRequest, "since must be RFC3339", err)
		return
	}
	filter.Since = since

	until, err := timeQuery(c, "until")
	if err != nil {
		h.writeError(c, http.StatusBadRequest, "until must be RFC3339", err)
		return
	}
	filter.Until = until

	calls, err := h.store.AdminListCalls(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, http.StatusInternalServerError, "Failed to fetch calls", err)
		return
	}

	items := make([]gin.H, 0, len(calls))
	for _, cw := range calls {
		body := callJSON(cw)
		body["userId"] = cw.Call.UserID
		items = append(items, body)
	}

	c.JSON(http.StatusOK, gin.H{"calls": items, "count": len(items)})
}

func timeQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}

	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}

	return &value, nil
}
