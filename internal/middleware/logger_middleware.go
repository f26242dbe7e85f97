package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogger logs one line per request and records request metrics.
func RequestLogger(log *slog.Logger, observe func(method, route string, status int, elapsed time.Duration)) gin.HandlerFunc {
	log = log.With(slog.String("component", "middleware/logger"))

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("route", route),
			slog.Int("status", status),
			slog.String("remote_addr", c.ClientIP()),
			slog.Int("bytes", c.Writer.Size()),
			slog.String("duration", elapsed.String()),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			log.Error("request completed", attrs...)
		case status >= 400:
			log.Warn("request completed", attrs...)
		default:
			log.Info("request completed", attrs...)
		}

		if observe != nil {
			observe(c.Request.Method, route, status, elapsed)
		}
	}
}
