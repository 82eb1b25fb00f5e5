package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleListVoices returns the selectable voice catalog. Order is stable so
// clients can render the list deterministically.
func (h *Handler) handleListVoices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"voices": h.settings.VoiceCatalog()})
}

func (h *Handler) handlePricing(c *gin.Context) {
	pricing := h.settings.Pricing()

	tiers := make([]gin.H, 0, len(pricing.Tiers))
	for _, tier := range pricing.Tiers {
		tiers = append(tiers, gin.H{
			"amountUsd": tier.AmountUSD,
			"bonusUsd":  tier.BonusUSD,
			"minutes":   tier.Minutes,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"minimumPurchaseUsd": pricing.MinimumPurchaseUSD,
		"tiers":              tiers,
		"freeTier": gin.H{
			"testCalls":   pricing.Free.TestCalls,
			"liveMinutes": pricing.Free.LiveMinutes,
			"agents":      pricing.Free.Agents,
		},
	})
}
