package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fedivid/recoserver/internal/database"
)

// Health handles GET /healthz. Reports database reachability; the ANN
// index cannot be unhealthy here because a failed load aborts startup.
func (h *Handlers) Health(c *gin.Context) {
	if err := database.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"ok":     false,
			"status": "degraded",
			"error":  "database unreachable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":     true,
		"status": "healthy",
	})
}
