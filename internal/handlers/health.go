package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wardwatch/internal/manager"
	"wardwatch/internal/version"
)

// HealthHandlers exposes liveness plus host telemetry for deployment
// monitoring.
type HealthHandlers struct {
	telemetry *manager.Telemetry
}

func NewHealthHandlers(telemetry *manager.Telemetry) *HealthHandlers {
	return &HealthHandlers{telemetry: telemetry}
}

// Ping handles GET /ping.
func (h *HealthHandlers) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// Health handles GET /health.
func (h *HealthHandlers) Health(c *gin.Context) {
	resp := gin.H{
		"status":  "ok",
		"version": version.String(),
	}
	if snap := h.telemetry.Snapshot(); snap != nil {
		resp["system"] = snap
	}
	c.JSON(http.StatusOK, resp)
}
