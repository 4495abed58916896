// Package ginutil holds the small response and request helpers shared by the gin adapters.
package ginutil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"
	ctxRequestID    = "request_id"
)

// RequestID tags every request with an id, reusing an inbound X-Request-ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestIDFrom returns the id set by RequestID, or "".
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

func Unauthorized(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": code, "message": message})
}

func Unavailable(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": code, "message": message})
}

func TooMany(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too_many_rejected_tokens"})
}
