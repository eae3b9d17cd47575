package provider

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"outreach-controlplane/pkg/errutil"
	"outreach-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
)

const HeaderCallbackAuth = "Unipile-Auth"

type Handler struct {
	svc    *Service
	secret string
}

func NewHandler(svc *Service, secret string) *Handler {
	return &Handler{svc: svc, secret: secret}
}

func (h *Handler) Register(api *gin.RouterGroup, public *gin.RouterGroup) {
	api.GET("/providers", h.List)
	api.DELETE("/providers/:id", h.Remove)
	api.POST("/providers/:id/reactions", h.React)
	public.POST("/providers/callback", h.Callback)
}

func (h *Handler) List(c *gin.Context) {
	providers, err := h.svc.List(c.Request.Context(), middleware.CompanyID(c))
	if err != nil {
		_ = c.Error(errutil.Internal("failed to list providers", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": providers})
}

func (h *Handler) Remove(c *gin.Context) {
	err := h.svc.Remove(c.Request.Context(), middleware.CompanyID(c), c.Param("id"))
	if errors.Is(err, ErrProviderNotFound) {
		_ = c.Error(errutil.NotFound("provider not found", err))
		return
	}
	if err != nil {
		_ = c.Error(errutil.Internal("failed to remove provider", err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Callback(c *gin.Context) {
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(c.GetHeader(HeaderCallbackAuth)), []byte(h.secret)) != 1 {
		_ = c.Error(errutil.Unauthorized("invalid callback secret", nil))
		return
	}

	var cb Callback
	if err := c.ShouldBindJSON(&cb); err != nil {
		_ = c.Error(errutil.BadRequest("invalid callback payload", err))
		return
	}

	p, err := h.svc.HandleCallback(c.Request.Context(), cb)
	if errors.Is(err, ErrInvalidCallback) {
		_ = c.Error(errutil.BadRequest("invalid callback", err))
		return
	}
	if err != nil {
		_ = c.Error(errutil.Internal("failed to store provider", err))
		return
	}
	c.JSON(http.StatusOK, p)
}

type reactionRequest struct {
	PostID   string `json:"post_id" binding:"required"`
	Reaction string `json:"reaction" binding:"required,oneof=like celebrate support love insightful funny"`
}

func (h *Handler) React(c *gin.Context) {
	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid reaction", err))
		return
	}

	err := h.svc.React(c.Request.Context(), middleware.CompanyID(c), c.Param("id"), req.PostID, req.Reaction)
	switch {
	case errors.Is(err, ErrProviderNotFound):
		_ = c.Error(errutil.NotFound("provider not found", err))
	case errors.Is(err, ErrClientUnavailable):
		_ = c.Error(errutil.New(errutil.StatusServiceUnavailable, "automation client not configured", errutil.WithErr(err)))
	case err != nil:
		_ = c.Error(errutil.BadGateway("failed to react to post", err))
	default:
		c.Status(http.StatusNoContent)
	}
}
