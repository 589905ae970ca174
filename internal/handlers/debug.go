package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/telemetry"
)

// RegisterDebugRoutes wires the env-gated debug endpoints. The audit test
// route pushes a single INFO event through the emitter so operators can
// verify the audit pipeline end to end without touching user data.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		requestID := requestIDFromContext(c)
		emitter.Emit(c.Request.Context(), "INFO", "audit pipeline self-test", requestID, userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok", "request_id": requestID})
	})
}
