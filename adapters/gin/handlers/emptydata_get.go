package handlers

import (
	"net/http"

	authgin "github.com/PaulFidika/entraguard/adapters/gin"
	"github.com/gin-gonic/gin"
)

// HandleEmptyDataGET returns fixed data plus the caller's claims. Mount it behind authgin.RequireBearer.
func HandleEmptyDataGET() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authgin.ClaimsFromGin(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_bearer_token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Here are data from empty api",
			"debug": gin.H{
				"token_received": true,
				"claims":         claims.DebugClaims(),
				"all_claims":     claims.All(),
			},
		})
	}
}
