package credit

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"outreach-controlplane/pkg/errutil"
	"outreach-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc   *Service
	token string
}

// NewHandler serves balances to tenants. Grants come from the billing
// system and must carry adminToken; an empty token disables them.
func NewHandler(svc *Service, adminToken string) *Handler {
	return &Handler{svc: svc, token: adminToken}
}

func (h *Handler) Register(api *gin.RouterGroup, public *gin.RouterGroup) {
	api.GET("/credits", h.Get)
	public.POST("/credits/grant", h.Grant)
}

func (h *Handler) Get(c *gin.Context) {
	h.respondBalance(c, middleware.CompanyID(c))
}

func (h *Handler) respondBalance(c *gin.Context, companyID string) {
	balance, err := h.svc.Balance(c.Request.Context(), companyID)
	if err != nil {
		_ = c.Error(errutil.Internal("failed to load balance", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"company_id": companyID, "balance": balance})
}

type grantRequest struct {
	Token     string `json:"token"`
	CompanyID string `json:"company_id" binding:"required"`
	Amount    int64  `json:"amount" binding:"required,gt=0"`
}

func (h *Handler) Grant(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid grant request", err))
		return
	}
	if h.token == "" || subtle.ConstantTimeCompare([]byte(req.Token), []byte(h.token)) != 1 {
		_ = c.Error(errutil.Unauthorized("invalid admin token", nil))
		return
	}
	err := h.svc.Grant(c.Request.Context(), req.CompanyID, req.Amount)
	if errors.Is(err, ErrInvalidAmount) {
		_ = c.Error(errutil.BadRequest("invalid amount", err))
		return
	}
	if err != nil {
		_ = c.Error(errutil.Internal("failed to grant credits", err))
		return
	}
	h.respondBalance(c, req.CompanyID)
}
