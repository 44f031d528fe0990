package middleware

import (
	"context"
	"strings"

	"arete/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"

	traceIDContextKey   = "trace_id"
	requestIDContextKey = "request_id"
	sessionIDContextKey = "session_id"
)

// TraceContextMiddleware ensures trace/request id are in context and response headers.
// Routes carrying a :session_id parameter also tag the request context with it.
func TraceContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := headerOrNew(c, traceIDHeader)
		c.Set(traceIDContextKey, traceID)
		ctx := context.WithValue(c.Request.Context(), contextkey.TraceID, traceID)
		c.Writer.Header().Set(traceIDHeader, traceID)

		requestID := headerOrNew(c, requestIDHeader)
		c.Set(requestIDContextKey, requestID)
		ctx = context.WithValue(ctx, contextkey.RequestID, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		if sessionID := strings.TrimSpace(c.Param("session_id")); sessionID != "" {
			c.Set(sessionIDContextKey, sessionID)
			ctx = context.WithValue(ctx, contextkey.SessionID, sessionID)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func headerOrNew(c *gin.Context, name string) string {
	v := strings.TrimSpace(c.GetHeader(name))
	if v == "" {
		return uuid.NewString()
	}
	return v
}
