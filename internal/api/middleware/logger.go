package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

const requestLoggerKey = "requestLogger"

// SlogLoggerMiddleware 为每个请求派生一个带 correlation_id、
// 方法与路径字段的 slog.Logger，并在请求结束时记录状态码与耗时。
func SlogLoggerMiddleware(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		routePath := c.FullPath()
		if routePath == "" {
			routePath = c.Request.URL.Path
		}

		requestLogger := base.With(
			slog.String("correlation_id", GetCorrelationID(c)),
			slog.String("method", c.Request.Method),
			slog.String("path", routePath),
		)
		c.Set(requestLoggerKey, requestLogger)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
		}
		if status >= 500 {
			requestLogger.Error("request completed", attrs...)
		} else {
			requestLogger.Info("request completed", attrs...)
		}
	}
}

// LoggerFromContext 返回请求级 slog.Logger；中间件未挂载时退回默认 Logger。
func LoggerFromContext(c *gin.Context) *slog.Logger {
	if value, ok := c.Get(requestLoggerKey); ok {
		if logger, ok := value.(*slog.Logger); ok {
			return logger
		}
	}
	return slog.Default()
}
