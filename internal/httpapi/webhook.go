package httpapi

import (
	"net/http"

	"voicebridge/internal/orchestrator"
	"voicebridge/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ProviderWebhookHandler translates provider progress webhooks into
// internal events and hands them to the orchestrator. No business
// logic here.
//
// NOTE: real deployments must protect this endpoint with provider
// signature validation.
type ProviderWebhookHandler struct {
	Orch *orchestrator.Orchestrator
}

type webhookPayload struct {
	EventType string `json:"event_type"`
	CallID    string `json:"call_id"`
	To        string `json:"to"`
	From      string `json:"from"`
	CallMode  string `json:"call_mode"`
}

func (h ProviderWebhookHandler) HandleEvent(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Orch == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "orchestrator not configured"})
		return
	}

	var p webhookPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		log.Warn("provider webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}
	if p.EventType == "" || p.CallID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "event_type and call_id required"})
		return
	}

	applied := h.Orch.HandleProviderEvent(orchestrator.ProviderEvent{
		Type:   p.EventType,
		CallID: p.CallID,
		To:     p.To,
		From:   p.From,
	})
	if !applied {
		log.Debug("provider event had no effect", "call_id", p.CallID, "event", p.EventType)
	}

	// Always 200: providers retry on non-2xx and these events are
	// at-least-once anyway.
	c.JSON(http.StatusOK, gin.H{"success": true})
}
