package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"outreach-controlplane/pkg/middleware"
	"outreach-controlplane/services/credit"
	"outreach-controlplane/services/provider"
	"outreach-controlplane/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

type handlerEnv struct {
	router *gin.Engine
	repo   Repository
	exec   *fakeDispatcher
}

func newHandlerEnv(t *testing.T, enqueuer *fakeEnqueuer) *handlerEnv {
	t.Helper()
	db := testutil.NewTestDB(t, &Workflow{}, &History{})
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	env := &handlerEnv{
		repo: NewRepository(db, node),
		exec: &fakeDispatcher{ExecuteFn: func(ctx context.Context, req ExecuteRequest) (*Result, error) {
			return &Result{WorkflowID: "wf-new", HistoryID: "h1", Status: HistorySuccess, Processed: 2, Succeeded: 2}, nil
		}},
	}
	p := HandlerParams{
		Dispatcher: env.exec,
		Repo:       env.repo,
		Scheduler:  NewScheduler(SchedulerParams{Repo: env.repo, Dispatcher: env.exec}),
		Token:      "s3cret",
	}
	if enqueuer != nil {
		p.Enqueuer = enqueuer
	}
	h := NewHandler(p)
	h.now = func() time.Time { return testNow }

	r := gin.New()
	r.Use(middleware.Error())
	h.Register(r.Group("/api/v1", middleware.RequireCompany()), r.Group("/api/v1"))
	env.router = r
	return env
}

func (env *handlerEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderCompanyID, "c1")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestHandler_ExecuteRunsWorkflow(t *testing.T) {
	env := newHandlerEnv(t, nil)
	var got ExecuteRequest
	env.exec.ExecuteFn = func(ctx context.Context, req ExecuteRequest) (*Result, error) {
		got = req
		return &Result{WorkflowID: "wf-new", HistoryID: "h1", Status: HistorySuccess, Processed: 2, Succeeded: 2}, nil
	}

	w := env.do(http.MethodPost, "/api/v1/workflows/execute", `{
		"provider_id": "p1",
		"type": "INVITE",
		"keywords": "CTO",
		"network_distance": [2],
		"invitation_message": "Hi {{first_name}}"
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Equal(t, "h1", res.HistoryID)
	require.Equal(t, 2, res.Succeeded)

	require.Equal(t, "c1", got.Workflow.CompanyID)
	require.Equal(t, TypeInvite, got.Workflow.Type)
	require.Equal(t, []int{2}, []int(got.Workflow.NetworkDistance))
	require.False(t, got.Dispatched)
}

func TestHandler_ExecuteValidation(t *testing.T) {
	env := newHandlerEnv(t, nil)
	env.exec.ExecuteFn = func(ctx context.Context, req ExecuteRequest) (*Result, error) {
		t.Fatal("executor must not be called for invalid requests")
		return nil, nil
	}

	cases := map[string]string{
		"no target":             `{"provider_id":"p1","type":"INVITE"}`,
		"two targets":           `{"provider_id":"p1","type":"INVITE","keywords":"CTO","target_workflow_id":"wf1"}`,
		"unknown type":          `{"provider_id":"p1","type":"LIKE","keywords":"CTO"}`,
		"message without body":  `{"provider_id":"p1","type":"SEND_MESSAGE","target_workflow_id":"wf1"}`,
		"search with upstream":  `{"provider_id":"p1","type":"SEARCH","target_workflow_id":"wf1"}`,
		"hour out of range":     `{"provider_id":"p1","type":"SEARCH","keywords":"CTO","scheduled_hours":[24]}`,
		"scheduled identifiers": `{"provider_id":"p1","type":"INVITE","identifiers":["a"],"scheduled_hours":[9]}`,
		"missing provider":      `{"type":"SEARCH","keywords":"CTO"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/v1/workflows/execute", body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestHandler_ExecuteErrorMapping(t *testing.T) {
	env := newHandlerEnv(t, nil)
	body := `{"provider_id":"p1","type":"INVITE","keywords":"CTO"}`

	cases := []struct {
		err  error
		code int
	}{
		{provider.ErrProviderNotFound, http.StatusBadRequest},
		{credit.ErrInsufficientCredits, http.StatusPaymentRequired},
		{ErrInvalidFilter, http.StatusBadRequest},
		{ErrSearchRequest, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		env.exec.ExecuteFn = func(ctx context.Context, req ExecuteRequest) (*Result, error) {
			return nil, tc.err
		}
		w := env.do(http.MethodPost, "/api/v1/workflows/execute", body)
		require.Equal(t, tc.code, w.Code, tc.err.Error())
	}
}

func TestHandler_ExecuteScheduledIsAccepted(t *testing.T) {
	env := newHandlerEnv(t, nil)
	env.exec.ExecuteFn = func(ctx context.Context, req ExecuteRequest) (*Result, error) {
		return &Result{WorkflowID: "wf-new", Queued: true, Processed: 4}, nil
	}

	w := env.do(http.MethodPost, "/api/v1/workflows/execute",
		`{"provider_id":"p1","type":"SEND_MESSAGE","target_workflow_id":"wf1","first_message":"hi","scheduled_hours":[14]}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
}

func TestHandler_FailedRunReturnsResult(t *testing.T) {
	env := newHandlerEnv(t, nil)
	env.exec.ExecuteFn = func(ctx context.Context, req ExecuteRequest) (*Result, error) {
		return &Result{WorkflowID: "wf-new", HistoryID: "h9", Status: HistoryFailed}, errors.New("search profiles: 429")
	}

	w := env.do(http.MethodPost, "/api/v1/workflows/execute", `{"provider_id":"p1","type":"SEARCH","keywords":"CTO"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body struct {
		Result Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "h9", body.Result.HistoryID)
	require.Equal(t, HistoryFailed, body.Result.Status)
}

func TestHandler_GetListDelete(t *testing.T) {
	env := newHandlerEnv(t, nil)
	ctx := context.Background()
	wf := &Workflow{CompanyID: "c1", ProviderID: "p1", Type: TypeSearch, Keywords: "CTO"}
	require.NoError(t, env.repo.Create(ctx, wf))
	require.NoError(t, env.repo.Create(ctx, &Workflow{CompanyID: "c2", ProviderID: "p9", Type: TypeSearch, Keywords: "CEO"}))

	w := env.do(http.MethodGet, "/api/v1/workflows/"+wf.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/v1/workflows", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Workflows []Workflow `json:"workflows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Workflows, 1)
	require.Equal(t, wf.ID, list.Workflows[0].ID)

	w = env.do(http.MethodGet, "/api/v1/workflows?type=LIKE", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/v1/workflows?cursor=not-a-cursor", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodDelete, "/api/v1/workflows/"+wf.ID, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodGet, "/api/v1/workflows/"+wf.ID, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_RunAndHistories(t *testing.T) {
	env := newHandlerEnv(t, nil)
	ctx := context.Background()
	wf := &Workflow{CompanyID: "c1", ProviderID: "p1", Type: TypeSearch, Keywords: "CTO", ScheduledHours: []int{9}}
	require.NoError(t, env.repo.Create(ctx, wf))
	require.NoError(t, env.repo.CreateHistory(ctx, &History{WorkflowID: wf.ID, CompanyID: "c1", Status: HistorySuccess}))

	var got ExecuteRequest
	env.exec.ExecuteFn = func(ctx context.Context, req ExecuteRequest) (*Result, error) {
		got = req
		return &Result{WorkflowID: req.Workflow.ID, HistoryID: "h2", Status: HistorySuccess}, nil
	}
	w := env.do(http.MethodPost, "/api/v1/workflows/"+wf.ID+"/run", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.True(t, got.Dispatched)
	require.Equal(t, wf.ID, got.Workflow.ID)

	w = env.do(http.MethodGet, "/api/v1/workflows/"+wf.ID+"/histories", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Histories []History `json:"histories"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Histories, 1)

	w = env.do(http.MethodPost, "/api/v1/workflows/missing/run", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_TickRequiresToken(t *testing.T) {
	env := newHandlerEnv(t, nil)

	w := env.do(http.MethodPost, "/api/v1/scheduler/tick", `{"token":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/api/v1/scheduler/tick", `{}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_TickRunsInline(t *testing.T) {
	env := newHandlerEnv(t, nil)
	ctx := context.Background()
	wf := &Workflow{CompanyID: "c1", ProviderID: "p1", Type: TypeSearch, Keywords: "CTO", ScheduledHours: []int{10}}
	require.NoError(t, env.repo.Create(ctx, wf))

	w := env.do(http.MethodPost, "/api/v1/scheduler/tick", `{"token":"s3cret"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var outcomes []Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcomes))
	require.Len(t, outcomes, 1)
	require.Equal(t, wf.ID, outcomes[0].WorkflowID)
	require.Equal(t, OutcomeDispatched, outcomes[0].Status)
}

func TestHandler_TickEmptyIsArray(t *testing.T) {
	env := newHandlerEnv(t, nil)
	w := env.do(http.MethodPost, "/api/v1/scheduler/tick", `{"token":"s3cret"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `[]`, w.Body.String())
}

func TestHandler_TickAsync(t *testing.T) {
	env := newHandlerEnv(t, nil)
	w := env.do(http.MethodPost, "/api/v1/scheduler/tick", `{"token":"s3cret","async":true}`)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	q := &fakeEnqueuer{}
	env = newHandlerEnv(t, q)
	w = env.do(http.MethodPost, "/api/v1/scheduler/tick", `{"token":"s3cret","async":true}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.JSONEq(t, `{"task_id":"task-1"}`, w.Body.String())
	require.Len(t, q.tasks, 1)
}
