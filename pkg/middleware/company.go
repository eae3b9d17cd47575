package middleware

import (
	"outreach-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Set by the authenticating gateway in front of this service.
const (
	HeaderCompanyID = "X-Company-ID"
	HeaderUserID    = "X-User-ID"
)

const (
	companyKey = "company_id"
	userKey    = "user_id"
)

// RequireCompany rejects requests without a company header.
func RequireCompany() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyID := c.GetHeader(HeaderCompanyID)
		if companyID == "" {
			_ = c.Error(errutil.Unauthorized("missing "+HeaderCompanyID+" header", nil))
			c.Abort()
			return
		}
		c.Set(companyKey, companyID)
		c.Set(userKey, c.GetHeader(HeaderUserID))
		c.Next()
	}
}

func CompanyID(c *gin.Context) string {
	return c.GetString(companyKey)
}

func UserID(c *gin.Context) string {
	return c.GetString(userKey)
}
