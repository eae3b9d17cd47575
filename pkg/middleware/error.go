package middleware

import (
	"outreach-controlplane/pkg/errutil"
	"outreach-controlplane/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last handler error as {"error":{...}}.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		be := errutil.As(last.Err)
		if be.Code.HTTPStatus() >= 500 {
			logger.FromContext(c.Request.Context()).Error("request failed",
				zap.String("path", c.FullPath()),
				zap.Error(last.Err),
			)
		}
		c.JSON(be.Code.HTTPStatus(), be.JSON())
	}
}
