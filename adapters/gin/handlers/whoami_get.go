package handlers

import (
	"net/http"

	authgin "github.com/PaulFidika/entraguard/adapters/gin"
	"github.com/gin-gonic/gin"
)

func HandleWhoAmIGET() gin.HandlerFunc {
	return func(c *gin.Context) {
		view, ok := authgin.CurrentCaller(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_bearer_token"})
			return
		}
		c.JSON(http.StatusOK, view)
	}
}
