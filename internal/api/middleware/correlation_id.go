package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const correlationIDKey = "correlationID"

type correlationIDContextKey struct{}

// CorrelationIDMiddleware 确保每个请求都带有 Correlation ID，
// 并同步写入 request context，供任务入队时透传到 worker。
func CorrelationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Correlation-ID")
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(correlationIDKey, id)
		c.Header("X-Correlation-ID", id)

		ctx := context.WithValue(c.Request.Context(), correlationIDContextKey{}, id)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetCorrelationID 从 Gin 上下文中取出 Correlation ID。
func GetCorrelationID(c *gin.Context) string {
	if value, ok := c.Get(correlationIDKey); ok {
		if id, ok := value.(string); ok {
			return id
		}
	}
	return ""
}

// CorrelationIDFromContext 从标准 context 中取出 Correlation ID。
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDContextKey{}).(string); ok {
		return id
	}
	return ""
}
