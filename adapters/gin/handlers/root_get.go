package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func HandleRootGET() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":        "Empty API",
			"description": "A simple API protected by Microsoft Entra ID",
			"endpoints": gin.H{
				"/health":    "Health check (no auth)",
				"/emptydata": "Protected endpoint (requires Bearer token)",
				"/me":        "Verified caller summary (requires Bearer token)",
				"/metrics":   "Prometheus metrics (no auth)",
			},
		})
	}
}
