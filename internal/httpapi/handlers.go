package httpapi

import (
	"net/http"
	"regexp"

	"voicebridge/internal/call"
	"voicebridge/internal/orchestrator"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call the orchestrator, return JSON.
type Handlers struct {
	Orch *orchestrator.Orchestrator
}

var phoneRe = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

type initiateRequest struct {
	FromPhone string `json:"from_phone"`
	ToPhone   string `json:"to_phone"`
	CallMode  string `json:"call_mode"`
	Provider  string `json:"provider"`
	Priority  int    `json:"priority"`
}

// InitiateCall validates the request and admits the call. The response
// always carries the assigned call_id; progress is observed via status
// polling or the push channel.
func (h Handlers) InitiateCall(c *gin.Context) {
	if h.Orch == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "orchestrator not configured"})
		return
	}
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}

	mode := call.Mode(req.CallMode)
	if mode == "" {
		mode = call.ModeBridge
	}
	if mode != call.ModeBridge && mode != call.ModeHeadset {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "call_mode must be bridge or headset"})
		return
	}
	if req.ToPhone == "" || !phoneRe.MatchString(req.ToPhone) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid to_phone"})
		return
	}
	if mode == call.ModeBridge {
		if req.FromPhone == "" || !phoneRe.MatchString(req.FromPhone) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid from_phone"})
			return
		}
		if req.FromPhone == req.ToPhone {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "from and to phone numbers cannot be the same"})
			return
		}
	}

	callID := h.Orch.InitiateCall(orchestrator.CallRequest{
		FromPhone: req.FromPhone,
		ToPhone:   req.ToPhone,
		Mode:      mode,
		Provider:  req.Provider,
		Priority:  req.Priority,
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "call_id": callID, "message": "call initiated"})
}

// EndCall cancels a call. Idempotent: unknown IDs succeed.
func (h Handlers) EndCall(c *gin.Context) {
	if h.Orch == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "orchestrator not configured"})
		return
	}
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "call_id required"})
		return
	}
	h.Orch.EndCall(callID)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "call ended"})
}

func (h Handlers) CallStatus(c *gin.Context) {
	if h.Orch == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "orchestrator not configured"})
		return
	}
	s, ok := h.Orch.CallStatus(c.Param("call_id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"success": false, "error": "call not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": s})
}

func (h Handlers) ListCalls(c *gin.Context) {
	if h.Orch == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "orchestrator not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "calls": h.Orch.AllCallStatuses()})
}

func (h Handlers) ClearCalls(c *gin.Context) {
	if h.Orch == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "orchestrator not configured"})
		return
	}
	h.Orch.ClearAll()
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "all call statuses cleared"})
}

func (h Handlers) CallMetrics(c *gin.Context) {
	if h.Orch == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "orchestrator not configured"})
		return
	}
	m, ok := h.Orch.CallMetrics(c.Param("call_id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"success": false, "error": "metrics not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "metrics": m})
}

func (h Handlers) SystemHealth(c *gin.Context) {
	if h.Orch == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "orchestrator not configured"})
		return
	}
	c.JSON(http.StatusOK, h.Orch.Health())
}
