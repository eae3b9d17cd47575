package middleware

import (
	"time"

	"outreach-controlplane/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request. Probe and scrape paths are skipped.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.URL.Path {
		case "/healthz", "/readyz", "/metrics":
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		logger.FromContext(c.Request.Context()).Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("company_id", CompanyID(c)),
		)
	}
}
