package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandleHealthGET answers liveness probes. It never requires a token.
func HandleHealthGET(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": service})
	}
}
