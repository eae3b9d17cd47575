package lead

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"outreach-controlplane/pkg/db/pagination"
	"outreach-controlplane/pkg/errutil"
	"outreach-controlplane/pkg/logger"
	"outreach-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AccountResolver maps an external account to the owning company and the
// account's own profile id.
type AccountResolver interface {
	ResolveAccount(ctx context.Context, accountID string) (companyID, selfID string, err error)
}

type Handler struct {
	store         Store
	accounts      AccountResolver
	webhookSecret string
}

func NewHandler(store Store, accounts AccountResolver, webhookSecret string) *Handler {
	return &Handler{store: store, accounts: accounts, webhookSecret: webhookSecret}
}

func (h *Handler) Register(api *gin.RouterGroup, public *gin.RouterGroup) {
	api.GET("/leads", h.List)
	public.POST("/webhooks/unipile", h.Webhook)
}

type listQuery struct {
	WorkflowID string `form:"workflow_id"`
	Status     string `form:"status"`
	Cursor     string `form:"cursor"`
	Limit      int    `form:"limit" binding:"omitempty,gte=1,lte=250"`
}

func (h *Handler) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(errutil.BadRequest("invalid query", err))
		return
	}
	if q.Status != "" && !Status(q.Status).Valid() {
		_ = c.Error(errutil.BadRequest("unknown status", nil, errutil.WithDetails(errutil.Detail{Field: "status", Message: q.Status})))
		return
	}

	if q.Cursor != "" {
		if _, err := pagination.DecodeCursor(q.Cursor); err != nil {
			_ = c.Error(errutil.BadRequest("invalid cursor", err))
			return
		}
	}

	leads, page, err := h.store.List(c.Request.Context(), ListParams{
		CompanyID:  middleware.CompanyID(c),
		WorkflowID: q.WorkflowID,
		Status:     Status(q.Status),
		Cursor:     q.Cursor,
		Limit:      q.Limit,
	})
	if err != nil {
		_ = c.Error(errutil.Internal("failed to list leads", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"leads": leads, "page_info": page})
}

// WebhookEvent is the subset of relation and messaging webhooks we consume.
type WebhookEvent struct {
	Event                string `json:"event"`
	AccountID            string `json:"account_id"`
	UserProviderID       string `json:"user_provider_id"`
	UserPublicIdentifier string `json:"user_public_identifier"`
	ChatID               string `json:"chat_id"`
	Timestamp            string `json:"timestamp"`
	Sender               struct {
		AttendeeProviderID string `json:"attendee_provider_id"`
	} `json:"sender"`
}

const (
	EventNewRelation     = "new_relation"
	EventMessageReceived = "message_received"
)

const HeaderWebhookAuth = "Unipile-Auth"

func (h *Handler) Webhook(c *gin.Context) {
	if h.webhookSecret != "" && subtle.ConstantTimeCompare([]byte(c.GetHeader(HeaderWebhookAuth)), []byte(h.webhookSecret)) != 1 {
		_ = c.Error(errutil.Unauthorized("invalid webhook secret", nil))
		return
	}

	var evt WebhookEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		_ = c.Error(errutil.BadRequest("invalid webhook payload", err))
		return
	}

	ctx := c.Request.Context()
	log := logger.FromContext(ctx, zap.String("event", evt.Event), zap.String("account_id", evt.AccountID))

	var kind ReplyKind
	var privateID string
	switch evt.Event {
	case EventNewRelation:
		kind, privateID = ReplyInvitationAccepted, evt.UserProviderID
	case EventMessageReceived:
		kind, privateID = ReplyMessageReceived, evt.Sender.AttendeeProviderID
	default:
		c.JSON(http.StatusOK, gin.H{"ignored": true})
		return
	}

	companyID, selfID, err := h.accounts.ResolveAccount(ctx, evt.AccountID)
	if err != nil {
		log.Warn("webhook for unknown account", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ignored": true})
		return
	}
	if privateID == "" || privateID == selfID {
		c.JSON(http.StatusOK, gin.H{"ignored": true})
		return
	}

	at := time.Now().UTC()
	if ts, err := time.Parse(time.RFC3339, evt.Timestamp); err == nil {
		at = ts
	}

	matched, err := h.store.MarkReplied(ctx, companyID, privateID, kind, at)
	if err != nil {
		_ = c.Error(errutil.Internal("failed to record reply", err))
		return
	}
	log.Info("webhook processed", zap.String("kind", string(kind)), zap.Bool("matched", matched))
	c.JSON(http.StatusOK, gin.H{"matched": matched})
}
