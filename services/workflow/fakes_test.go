package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"outreach-controlplane/pkg/deadletter"
	"outreach-controlplane/pkg/throttle"
	"outreach-controlplane/pkg/throttle/throttletest"
	"outreach-controlplane/services/lead"
	"outreach-controlplane/services/provider"
	"outreach-controlplane/services/testutil"
	"outreach-controlplane/services/unipile"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

var errUnexpectedCall = errors.New("unexpected call")

type fakeClient struct {
	mu    sync.Mutex
	calls map[string]int

	SearchProfilesFn func(ctx context.Context, accountID string, req unipile.SearchRequest, cursor string, limit int) (*unipile.SearchPage, error)
	GetProfileFn     func(ctx context.Context, accountID, identifier string) (*unipile.Profile, error)
	LookupCompanyFn  func(ctx context.Context, accountID, companyURL string) (string, error)
	SendInvitationFn func(ctx context.Context, accountID, providerID, message string) (*unipile.Invitation, error)
	StartNewChatFn   func(ctx context.Context, accountID string, attendeeIDs []string, text string) (*unipile.Chat, error)
	SendMessageFn    func(ctx context.Context, chatID, text string) (*unipile.Message, error)
}

func (f *fakeClient) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[op]++
}

func (f *fakeClient) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeClient) SearchProfiles(ctx context.Context, accountID string, req unipile.SearchRequest, cursor string, limit int) (*unipile.SearchPage, error) {
	f.record("search")
	if f.SearchProfilesFn == nil {
		return nil, errUnexpectedCall
	}
	return f.SearchProfilesFn(ctx, accountID, req, cursor, limit)
}

func (f *fakeClient) GetProfile(ctx context.Context, accountID, identifier string) (*unipile.Profile, error) {
	f.record("get_profile")
	if f.GetProfileFn == nil {
		return nil, errUnexpectedCall
	}
	return f.GetProfileFn(ctx, accountID, identifier)
}

func (f *fakeClient) GetOwnProfile(ctx context.Context, accountID string) (*unipile.Profile, error) {
	f.record("get_own_profile")
	return nil, errUnexpectedCall
}

func (f *fakeClient) LookupCompany(ctx context.Context, accountID, companyURL string) (string, error) {
	f.record("lookup_company")
	if f.LookupCompanyFn == nil {
		return "", errUnexpectedCall
	}
	return f.LookupCompanyFn(ctx, accountID, companyURL)
}

func (f *fakeClient) SendInvitation(ctx context.Context, accountID, providerID, message string) (*unipile.Invitation, error) {
	f.record("invite")
	if f.SendInvitationFn == nil {
		return &unipile.Invitation{InvitationID: "inv-" + providerID}, nil
	}
	return f.SendInvitationFn(ctx, accountID, providerID, message)
}

func (f *fakeClient) StartNewChat(ctx context.Context, accountID string, attendeeIDs []string, text string) (*unipile.Chat, error) {
	f.record("start_chat")
	if f.StartNewChatFn == nil {
		return &unipile.Chat{ChatID: "chat-" + attendeeIDs[0]}, nil
	}
	return f.StartNewChatFn(ctx, accountID, attendeeIDs, text)
}

func (f *fakeClient) SendMessage(ctx context.Context, chatID, text string) (*unipile.Message, error) {
	f.record("send_message")
	if f.SendMessageFn == nil {
		return &unipile.Message{MessageID: "msg-" + chatID}, nil
	}
	return f.SendMessageFn(ctx, chatID, text)
}

func (f *fakeClient) ReactToPost(ctx context.Context, accountID, postID, reaction string) error {
	f.record("react")
	return nil
}

type fakeGate struct {
	mu       sync.Mutex
	deducted int64

	CheckFn func(ctx context.Context, companyID string, amount int64) error
}

func (g *fakeGate) Check(ctx context.Context, companyID string, amount int64) error {
	if g.CheckFn == nil {
		return nil
	}
	return g.CheckFn(ctx, companyID, amount)
}

func (g *fakeGate) Deduct(ctx context.Context, companyID string, amount int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deducted += amount
	return nil
}

func (g *fakeGate) Refund(ctx context.Context, companyID string, amount int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deducted -= amount
	return nil
}

type fakeProviders struct{}

func (fakeProviders) Active(ctx context.Context, companyID, providerID string) (*provider.Provider, error) {
	if companyID != "c1" || providerID != "p1" {
		return nil, provider.ErrProviderNotFound
	}
	return &provider.Provider{
		ID:        "p1",
		CompanyID: "c1",
		AccountID: "acc-1",
		Type:      provider.TypeLinkedIn,
		Status:    provider.StatusCreationSuccess,
	}, nil
}

type fakeQueue struct {
	mu      sync.Mutex
	entries []deadletter.Entry
}

func (q *fakeQueue) Push(ctx context.Context, e deadletter.Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
	return nil
}

type fakeDispatcher struct {
	ExecuteFn func(ctx context.Context, req ExecuteRequest) (*Result, error)
}

func (d *fakeDispatcher) Execute(ctx context.Context, req ExecuteRequest) (*Result, error) {
	return d.ExecuteFn(ctx, req)
}

type testEnv struct {
	db      *gorm.DB
	repo    Repository
	leads   lead.Store
	client  *fakeClient
	credits *fakeGate
	dlq     *fakeQueue
	writes  *throttletest.Counting
	exec    *Executor
}

var testNow = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewTestDB(t, &Workflow{}, &History{}, &lead.Lead{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	env := &testEnv{
		db:      db,
		repo:    NewRepository(db, node),
		leads:   lead.NewStore(db, node),
		client:  &fakeClient{},
		credits: &fakeGate{},
		dlq:     &fakeQueue{},
		writes:  &throttletest.Counting{},
	}
	env.exec = NewExecutor(ExecutorParams{
		Repo:       env.repo,
		Leads:      env.leads,
		Providers:  fakeProviders{},
		Client:     env.client,
		Credits:    env.credits,
		DeadLetter: env.dlq,
		Reads:      throttle.Noop(),
		Writes:     env.writes,
		Config: ExecutorConfig{
			ReadConcurrency: 4,
			SearchPageSize:  25,
			MaxLeadsPerRun:  100,
			InviteCost:      1,
			MessageCost:     1,
		},
		Now: func() time.Time { return testNow },
	})
	return env
}

func profile(n int) unipile.Profile {
	return unipile.Profile{
		ProviderID:       fmt.Sprintf("ACo%d", n),
		PublicIdentifier: fmt.Sprintf("person-%d", n),
		FirstName:        fmt.Sprintf("First%d", n),
		LastName:         "Last",
		Headline:         "CTO",
		ConnectionsCount: 100 * n,
	}
}

func searchReturning(profiles ...unipile.Profile) func(context.Context, string, unipile.SearchRequest, string, int) (*unipile.SearchPage, error) {
	return func(ctx context.Context, accountID string, req unipile.SearchRequest, cursor string, limit int) (*unipile.SearchPage, error) {
		return &unipile.SearchPage{Items: profiles}, nil
	}
}

func (env *testEnv) leadsByPrivateID(t *testing.T) map[string]*lead.Lead {
	t.Helper()
	var rows []*lead.Lead
	require.NoError(t, env.db.Where("company_id = ?", "c1").Find(&rows).Error)
	out := make(map[string]*lead.Lead, len(rows))
	for _, l := range rows {
		key := l.PrivateID()
		if key == "" {
			key = "public:" + l.PublicIdentifier
		}
		out[key] = l
	}
	return out
}

func (env *testEnv) histories(t *testing.T, workflowID string) []History {
	t.Helper()
	var rows []History
	require.NoError(t, env.db.Where("workflow_id = ?", workflowID).Order("created_at ASC").Find(&rows).Error)
	return rows
}

// seedLeads stores leads produced by an upstream workflow.
func (env *testEnv) seedLeads(t *testing.T, upstream string, statuses map[int]lead.Status) {
	t.Helper()
	var batch []*lead.Lead
	for n, status := range statuses {
		l := lead.FromProfile(profile(n))
		l.CompanyID = "c1"
		l.ProviderID = "p1"
		l.WorkflowID = upstream
		l.LatestStatus = status
		batch = append(batch, l)
	}
	require.NoError(t, env.leads.UpsertBatch(context.Background(), batch))
}
