package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/core"
)

const (
	// RequestIDHeader carries the request correlation ID
	RequestIDHeader = "X-Request-ID"

	requestIDKey    = "request_id"
	capabilitiesKey = "capabilities"
)

// requestID tags every request with a correlation ID, reusing the caller's
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// accessLog logs each request through zap
func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(requestIDKey)))
	}
}

// resolveRole maps the role header to its capability set. Unknown or
// missing roles hold no capabilities.
func resolveRole(roles *core.RoleRegistry, header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := roles.Lookup(c.GetHeader(header))
		c.Set(capabilitiesKey, role.Capabilities)
		c.Next()
	}
}

// requireCapability rejects requests whose role lacks the capability
func requireCapability(capability core.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !capabilities(c).Has(capability) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":    "forbidden",
				"required": string(capability),
			})
			return
		}
		c.Next()
	}
}

func capabilities(c *gin.Context) core.CapabilitySet {
	if v, ok := c.Get(capabilitiesKey); ok {
		if caps, ok := v.(core.CapabilitySet); ok {
			return caps
		}
	}
	return core.CapabilitySet{}
}
