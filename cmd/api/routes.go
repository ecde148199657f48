package main

import (
	"log/slog"

	"voicebridge/internal/httpapi"
	"voicebridge/internal/orchestrator"
	"voicebridge/pkg/logger"

	"github.com/gin-gonic/gin"
)

// newRouter wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal
// modules.
func newRouter(log *slog.Logger, orch *orchestrator.Orchestrator) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	h := httpapi.Handlers{Orch: orch}

	r.GET("/health/system", h.SystemHealth)

	// Provider webhooks (public).
	wh := httpapi.ProviderWebhookHandler{Orch: orch}
	r.POST("/webhooks/provider", wh.HandleEvent)

	calls := r.Group("/calls")
	{
		calls.POST("/initiate", h.InitiateCall)
		calls.POST("/:call_id/end", h.EndCall)
		calls.GET("/:call_id/status", h.CallStatus)
		calls.GET("/:call_id/metrics", h.CallMetrics)
		calls.GET("", h.ListCalls)
		calls.DELETE("", h.ClearCalls)
	}

	return r
}
