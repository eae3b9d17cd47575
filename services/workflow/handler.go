package workflow

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"outreach-controlplane/pkg/db/pagination"
	"outreach-controlplane/pkg/errutil"
	"outreach-controlplane/pkg/middleware"
	"outreach-controlplane/pkg/task"
	"outreach-controlplane/services/credit"
	"outreach-controlplane/services/provider"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

type Handler struct {
	exec      Dispatcher
	repo      Repository
	scheduler *Scheduler
	enqueuer  task.Enqueuer
	token     string
	now       func() time.Time
}

type HandlerParams struct {
	Dispatcher Dispatcher
	Repo       Repository
	Scheduler  *Scheduler
	// Enqueuer is optional; without it ticks always run inline.
	Enqueuer task.Enqueuer
	Token    string
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		exec:      p.Dispatcher,
		repo:      p.Repo,
		scheduler: p.Scheduler,
		enqueuer:  p.Enqueuer,
		token:     p.Token,
		now:       time.Now,
	}
}

func (h *Handler) Register(api *gin.RouterGroup, public *gin.RouterGroup) {
	api.POST("/workflows/execute", h.Execute)
	api.GET("/workflows", h.List)
	api.GET("/workflows/:id", h.Get)
	api.DELETE("/workflows/:id", h.Delete)
	api.POST("/workflows/:id/run", h.Run)
	api.GET("/workflows/:id/histories", h.Histories)
	public.POST("/scheduler/tick", h.Tick)
}

// toHTTPError maps executor and store errors onto API errors.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidTarget),
		errors.Is(err, ErrInvalidWorkflow),
		errors.Is(err, ErrInvalidFilter):
		return errutil.BadRequest("invalid workflow", err)
	case errors.Is(err, provider.ErrProviderNotFound):
		return errutil.BadRequest("provider not found or disconnected", err)
	case errors.Is(err, credit.ErrInsufficientCredits):
		return errutil.PaymentRequired("insufficient credits", err)
	case errors.Is(err, ErrWorkflowNotFound):
		return errutil.NotFound("workflow not found", err)
	case errors.Is(err, ErrSearchRequest):
		return errutil.Internal("failed to build search request", err)
	default:
		return errutil.Internal("workflow execution failed", err)
	}
}

func (h *Handler) Execute(c *gin.Context) {
	var body ExecuteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	if err := body.Validate(); err != nil {
		_ = c.Error(err)
		return
	}

	res, err := h.exec.Execute(c.Request.Context(), ExecuteRequest{
		Workflow:    body.Workflow(middleware.CompanyID(c)),
		Identifiers: body.Identifiers,
	})
	h.respond(c, res, err)
}

// Run executes a stored workflow immediately.
func (h *Handler) Run(c *gin.Context) {
	wf, err := h.repo.Get(c.Request.Context(), middleware.CompanyID(c), c.Param("id"))
	if err != nil {
		_ = c.Error(toHTTPError(err))
		return
	}
	res, err := h.exec.Execute(c.Request.Context(), ExecuteRequest{Workflow: wf, Dispatched: true})
	h.respond(c, res, err)
}

func (h *Handler) respond(c *gin.Context, res *Result, err error) {
	if err != nil && res == nil {
		_ = c.Error(toHTTPError(err))
		return
	}
	switch {
	case res.Queued:
		c.JSON(http.StatusAccepted, res)
	case err != nil:
		// the run started; its failure is recorded in history
		be := errutil.As(toHTTPError(err))
		c.JSON(be.Code.HTTPStatus(), gin.H{
			"error":  gin.H{"code": be.Code, "message": be.Message + ": " + err.Error()},
			"result": res,
		})
	default:
		c.JSON(http.StatusOK, res)
	}
}

type listWorkflowsQuery struct {
	Type   string `form:"type"`
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit"`
}

func (h *Handler) List(c *gin.Context) {
	var q listWorkflowsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(errutil.BadRequest("invalid query", err))
		return
	}
	if !validCursor(c, q.Cursor) {
		return
	}
	if q.Type != "" && !Type(q.Type).Valid() {
		_ = c.Error(errutil.BadRequest("unknown workflow type", nil, errutil.WithDetails(errutil.Detail{Field: "type", Message: q.Type})))
		return
	}

	items, page, err := h.repo.List(c.Request.Context(), ListParams{
		CompanyID: middleware.CompanyID(c),
		Type:      Type(q.Type),
		Cursor:    q.Cursor,
		Limit:     q.Limit,
	})
	if err != nil {
		_ = c.Error(errutil.Internal("failed to list workflows", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": items, "page_info": page})
}

func (h *Handler) Get(c *gin.Context) {
	wf, err := h.repo.Get(c.Request.Context(), middleware.CompanyID(c), c.Param("id"))
	if err != nil {
		_ = c.Error(toHTTPError(err))
		return
	}
	c.JSON(http.StatusOK, wf)
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.repo.SoftDelete(c.Request.Context(), middleware.CompanyID(c), c.Param("id")); err != nil {
		_ = c.Error(toHTTPError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Histories(c *gin.Context) {
	var q listWorkflowsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(errutil.BadRequest("invalid query", err))
		return
	}
	if !validCursor(c, q.Cursor) {
		return
	}
	companyID := middleware.CompanyID(c)
	if _, err := h.repo.Get(c.Request.Context(), companyID, c.Param("id")); err != nil {
		_ = c.Error(toHTTPError(err))
		return
	}

	items, page, err := h.repo.ListHistories(c.Request.Context(), HistoryParams{
		CompanyID:  companyID,
		WorkflowID: c.Param("id"),
		Cursor:     q.Cursor,
		Limit:      q.Limit,
	})
	if err != nil {
		_ = c.Error(errutil.Internal("failed to list histories", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"histories": items, "page_info": page})
}

func validCursor(c *gin.Context, cursor string) bool {
	if cursor == "" {
		return true
	}
	if _, err := pagination.DecodeCursor(cursor); err != nil {
		_ = c.Error(errutil.BadRequest("invalid cursor", err))
		return false
	}
	return true
}

type tickRequest struct {
	Token string `json:"token"`
	Async bool   `json:"async"`
}

// Tick is called by the external cron. The shared token travels in the body.
func (h *Handler) Tick(c *gin.Context) {
	var req tickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid tick request", err))
		return
	}
	if h.token == "" || subtle.ConstantTimeCompare([]byte(req.Token), []byte(h.token)) != 1 {
		_ = c.Error(errutil.Unauthorized("invalid scheduler token", nil))
		return
	}

	if req.Async {
		if h.enqueuer == nil {
			_ = c.Error(errutil.New(errutil.StatusServiceUnavailable, "task queue not configured"))
			return
		}
		info, err := h.enqueuer.Enqueue(c.Request.Context(), task.NewTickTask(), asynq.Queue("critical"), asynq.MaxRetry(0))
		if err != nil {
			_ = c.Error(errutil.Internal("failed to enqueue tick", err))
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID})
		return
	}

	outcomes, err := h.scheduler.Tick(c.Request.Context(), h.now())
	if err != nil {
		_ = c.Error(errutil.Internal("scheduler tick failed", err))
		return
	}
	if outcomes == nil {
		outcomes = []Outcome{}
	}
	c.JSON(http.StatusOK, outcomes)
}
