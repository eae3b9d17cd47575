package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"outreach-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

func newRouter() *gin.Engine {
	r := gin.New()
	r.Use(Error())
	r.GET("/who", RequireCompany(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"company": CompanyID(c), "user": UserID(c)})
	})
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errutil.NotFound("workflow not found", nil))
	})
	return r
}

func TestRequireCompany(t *testing.T) {
	r := newRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/who", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "unauthorized")

	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set(HeaderCompanyID, "c1")
	req.Header.Set(HeaderUserID, "u1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"company":"c1","user":"u1"}`, w.Body.String())
}

func TestErrorRendersBaseError(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.JSONEq(t, `{"error":{"code":"not_found","message":"workflow not found","details":null}}`, w.Body.String())
}
