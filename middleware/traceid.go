package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	TraceIDKey    = "trace_id"
	TraceIDHeader = "X-Trace-ID"
)

type traceCtxKey struct{}

// TraceID tags every request with an id, reusing the caller's X-Trace-ID
// when present. The id is also stored on the request context so code
// below gin can reach it through TraceIDFrom.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(TraceIDKey, traceID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), traceCtxKey{}, traceID))
		c.Header(TraceIDHeader, traceID)
		c.Next()
	}
}

// GetTraceID retrieves the trace ID from the Gin context.
func GetTraceID(c *gin.Context) string {
	if v, exists := c.Get(TraceIDKey); exists {
		return v.(string)
	}
	return ""
}

// TraceIDFrom retrieves the trace ID from a request context.
func TraceIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(traceCtxKey{}).(string)
	return s
}
