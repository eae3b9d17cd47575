package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"outreach-controlplane/pkg/celengine"
	"outreach-controlplane/pkg/deadletter"
	"outreach-controlplane/pkg/logger"
	"outreach-controlplane/pkg/metrics"
	"outreach-controlplane/pkg/throttle"
	"outreach-controlplane/services/credit"
	"outreach-controlplane/services/lead"
	"outreach-controlplane/services/provider"
	"outreach-controlplane/services/unipile"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidFilter = errors.New("invalid lead filter")
	ErrSearchRequest = errors.New("failed to build search request")
)

const (
	defaultFollowUpAfterHours = 24
	deadLetterKindHistory     = "workflow_history"
)

// Leads a SEND_MESSAGE workflow may pick from its upstream workflow: anyone
// not followed up with yet.
var messageInputStatuses = []lead.Status{
	lead.StatusSearched,
	lead.StatusInQueue,
	lead.StatusInvited,
	lead.StatusAlreadyInvited,
	lead.StatusInvitedFailed,
}

type ProviderLookup interface {
	Active(ctx context.Context, companyID, providerID string) (*provider.Provider, error)
}

type ExecutorConfig struct {
	ReadConcurrency int
	SearchPageSize  int
	MaxLeadsPerRun  int
	Timeout         time.Duration
	InviteCost      int64
	MessageCost     int64
	Location        *time.Location
}

type ExecutorParams struct {
	Repo       Repository
	Leads      lead.Store
	Providers  ProviderLookup
	Client     unipile.Client
	Credits    credit.Gate
	Composers  *Composers
	Exporter   Exporter
	DeadLetter deadletter.Queue
	Reads      throttle.Throttle
	Writes     throttle.Throttle
	Config     ExecutorConfig
	Now        func() time.Time
}

type Executor struct {
	repo      Repository
	leads     lead.Store
	providers ProviderLookup
	client    unipile.Client
	credits   credit.Gate
	composers *Composers
	exporter  Exporter
	dlq       deadletter.Queue
	reads     throttle.Throttle
	writes    throttle.Throttle
	cfg       ExecutorConfig
	now       func() time.Time
}

func NewExecutor(p ExecutorParams) *Executor {
	e := &Executor{
		repo:      p.Repo,
		leads:     p.Leads,
		providers: p.Providers,
		client:    p.Client,
		credits:   p.Credits,
		composers: p.Composers,
		exporter:  p.Exporter,
		dlq:       p.DeadLetter,
		reads:     p.Reads,
		writes:    p.Writes,
		cfg:       p.Config,
		now:       p.Now,
	}
	if e.composers == nil {
		e.composers = NewComposers()
	}
	if e.reads == nil {
		e.reads = throttle.Noop()
	}
	if e.writes == nil {
		e.writes = throttle.Noop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.cfg.ReadConcurrency < 1 {
		e.cfg.ReadConcurrency = 1
	}
	if e.cfg.SearchPageSize < 1 {
		e.cfg.SearchPageSize = 25
	}
	if e.cfg.Location == nil {
		e.cfg.Location = time.UTC
	}
	return e
}

// ExecuteRequest runs one workflow. Identifiers is the on-demand only target
// mode. Dispatched marks runs started by the scheduler; a scheduled workflow
// that is not dispatched is only stored and its targets claimed.
type ExecuteRequest struct {
	Workflow    *Workflow
	Identifiers []string
	Dispatched  bool
}

type Result struct {
	WorkflowID         string        `json:"workflow_id"`
	HistoryID          string        `json:"history_id,omitempty"`
	Status             HistoryStatus `json:"status,omitempty"`
	Queued             bool          `json:"queued"`
	Processed          int           `json:"processed"`
	Succeeded          int           `json:"succeeded"`
	Failed             int           `json:"failed"`
	Cursor             string        `json:"cursor,omitempty"`
	ExportKey          string        `json:"export_key,omitempty"`
	FollowUpWorkflowID string        `json:"follow_up_workflow_id,omitempty"`
	Leads              []*lead.Lead  `json:"leads,omitempty"`
}

// run is the mutable state of one execution.
type run struct {
	wf        *Workflow
	accountID string
	history   *History
	log       *zap.Logger
	cursor    string
	out       []*lead.Lead

	mu        sync.Mutex
	processed int
	succeeded int
	failed    int
	charged   int

	interrupted error
	exportKey   string
	followUpID  string
}

func (r *run) count(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed++
	if ok {
		r.succeeded++
	} else {
		r.failed++
	}
}

func (r *run) own(l *lead.Lead) {
	l.CompanyID = r.wf.CompanyID
	l.ProviderID = r.wf.ProviderID
	l.WorkflowID = r.wf.ID
}

// Execute validates the request, resolves the provider and runs the workflow.
// Errors returned before a history row exists leave no trace; afterwards the
// history row is always finalized.
func (e *Executor) Execute(ctx context.Context, req ExecuteRequest) (res *Result, err error) {
	wf := req.Workflow
	if wf == nil {
		return nil, fmt.Errorf("%w: workflow is required", ErrInvalidWorkflow)
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	target, err := wf.Target(req.Identifiers)
	if err != nil {
		return nil, err
	}
	if wf.LeadFilter != "" {
		if err := celengine.Validate(wf.LeadFilter, (&lead.Lead{}).Attributes()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
		}
	}

	prov, err := e.providers.Active(ctx, wf.CompanyID, wf.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("resolve provider %s: %w", wf.ProviderID, err)
	}

	log := logger.FromContext(ctx,
		zap.String("company_id", wf.CompanyID),
		zap.String("provider_id", wf.ProviderID),
		zap.String("workflow_type", string(wf.Type)),
	)

	if wf.HasSchedule() && !req.Dispatched {
		return e.schedule(ctx, wf, target, log)
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	if cost := e.unitCost(wf.Type); cost > 0 {
		if err := e.credits.Check(ctx, wf.CompanyID, cost); err != nil {
			return nil, err
		}
	}

	search, err := e.buildSearch(ctx, prov.AccountID, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchRequest, err)
	}

	if wf.ID == "" {
		if err := e.repo.Create(ctx, wf); err != nil {
			return nil, fmt.Errorf("persist workflow: %w", err)
		}
	}

	var cursor string
	if search != nil {
		if cursor, err = e.repo.LastCursor(ctx, wf.ID); err != nil {
			return nil, fmt.Errorf("load last cursor: %w", err)
		}
	}

	h := &History{WorkflowID: wf.ID, CompanyID: wf.CompanyID, Cursor: cursor, Status: HistoryPending}
	if err := e.repo.CreateHistory(ctx, h); err != nil {
		return nil, fmt.Errorf("insert history: %w", err)
	}

	r := &run{
		wf:        wf,
		accountID: prov.AccountID,
		history:   h,
		cursor:    cursor,
		log:       log.With(zap.String("workflow_id", wf.ID), zap.String("history_id", h.ID)),
	}
	started := e.now()
	r.log.Info("workflow execution started", zap.Bool("dispatched", req.Dispatched))

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("workflow execution panicked", zap.Any("panic", p), zap.Stack("stack"))
			err = fmt.Errorf("panic during execution: %v", p)
		}
		res = e.finish(ctx, r, started, err)
	}()

	err = e.run(ctx, r, target, search)
	return res, err
}

func (e *Executor) run(ctx context.Context, r *run, target Target, search *unipile.SearchRequest) error {
	leads, err := e.resolve(ctx, r, target, search)
	if err != nil {
		return err
	}
	leads = e.filter(r, leads)
	if r.wf.Type != TypeSearch {
		e.reconcile(ctx, r, leads)
	}

	switch r.wf.Type {
	case TypeSearch:
		e.markSearched(r, leads)
	case TypeInvite:
		e.invite(ctx, r, leads)
	case TypeSendMessage:
		if err := e.message(ctx, r, leads); err != nil {
			return err
		}
	}

	// outcomes already happened externally, so they are stored even after a timeout
	wctx := context.WithoutCancel(ctx)
	if len(r.out) > 0 {
		if err := e.leads.UpsertBatch(wctx, r.out); err != nil {
			return fmt.Errorf("upsert leads: %w", err)
		}
	}

	if r.wf.Type == TypeSearch && e.exporter != nil && len(r.out) > 0 {
		key, err := e.exporter.Export(wctx, r.wf, r.history.ID, r.out)
		if err != nil {
			r.log.Warn("failed to export search results", zap.Error(err))
		} else {
			r.exportKey = key
		}
	}

	if id, err := e.scheduleFollowUp(wctx, r); err != nil {
		r.log.Warn("failed to schedule follow-up workflow", zap.Error(err))
	} else {
		r.followUpID = id
	}

	return r.interrupted
}

func (e *Executor) finish(ctx context.Context, r *run, started time.Time, runErr error) *Result {
	h := r.history
	h.Cursor = r.cursor
	h.Processed, h.Succeeded, h.Failed = r.processed, r.succeeded, r.failed
	h.ExportKey = r.exportKey
	h.Status = HistorySuccess
	if runErr != nil {
		h.Status = HistoryFailed
		h.ErrorMessage = runErr.Error()
	}
	finished := e.now().UTC()
	h.FinishedAt = &finished

	wctx := context.WithoutCancel(ctx)
	if err := e.repo.FinishHistory(wctx, h); err != nil {
		r.log.Error("failed to finalize workflow history", zap.Error(err))
		e.deadLetter(wctx, r.log, h, err)
	}

	metrics.WorkflowExecutionsTotal.WithLabelValues(string(r.wf.Type), string(h.Status)).Inc()
	metrics.WorkflowExecutionDuration.WithLabelValues(string(r.wf.Type)).Observe(finished.Sub(started).Seconds())

	r.log.Info("workflow execution finished",
		zap.String("status", string(h.Status)),
		zap.Int("processed", h.Processed),
		zap.Int("succeeded", h.Succeeded),
		zap.Int("failed", h.Failed),
		zap.Int("charged", r.charged),
		zap.Duration("elapsed", finished.Sub(started)),
	)

	return &Result{
		WorkflowID:         r.wf.ID,
		HistoryID:          h.ID,
		Status:             h.Status,
		Processed:          h.Processed,
		Succeeded:          h.Succeeded,
		Failed:             h.Failed,
		Cursor:             h.Cursor,
		ExportKey:          h.ExportKey,
		FollowUpWorkflowID: r.followUpID,
		Leads:              r.out,
	}
}

func (e *Executor) deadLetter(ctx context.Context, log *zap.Logger, h *History, cause error) {
	metrics.DeadLetteredTotal.WithLabelValues(deadLetterKindHistory).Inc()
	if e.dlq == nil {
		return
	}
	payload, err := json.Marshal(h)
	if err != nil {
		log.Error("failed to encode history for dead letter", zap.Error(err))
		return
	}
	err = e.dlq.Push(ctx, deadletter.Entry{
		Kind:    deadLetterKindHistory,
		Key:     h.ID,
		Payload: payload,
		Error:   cause.Error(),
	})
	if err != nil {
		log.Error("failed to dead-letter workflow history", zap.Error(err))
	}
}

// schedule stores a workflow that will be fired by the scheduler and claims
// its upstream leads so other workflows skip them.
func (e *Executor) schedule(ctx context.Context, wf *Workflow, target Target, log *zap.Logger) (*Result, error) {
	if _, ok := target.(IdentifiersTarget); ok {
		return nil, fmt.Errorf("%w: identifiers cannot be scheduled", ErrInvalidTarget)
	}

	if wf.ID == "" {
		if err := e.repo.Create(ctx, wf); err != nil {
			return nil, fmt.Errorf("persist workflow: %w", err)
		}
	} else if err := e.repo.Update(ctx, wf); err != nil {
		return nil, err
	}
	log = log.With(zap.String("workflow_id", wf.ID))

	res := &Result{WorkflowID: wf.ID, Queued: true}
	up, ok := target.(UpstreamTarget)
	if !ok {
		// search and keyword targets find their leads when the run fires, so
		// nothing exists to claim yet
		log.Info("workflow scheduled")
		return res, nil
	}

	queued := lead.StatusInQueue
	if wf.Type == TypeSendMessage {
		queued = lead.StatusFollowUpSentInQueue
	}

	leads, err := e.leads.ListEligible(ctx, e.eligibleQuery(wf, up.WorkflowID))
	if err != nil {
		return nil, fmt.Errorf("list upstream leads: %w", err)
	}
	now := e.now()
	for _, l := range leads {
		l.LatestStatus = queued
		l.QueuedByWorkflowID = wf.ID
		l.Stamp(queued, now)
	}
	if err := e.leads.UpsertBatch(ctx, leads); err != nil {
		return nil, fmt.Errorf("queue leads: %w", err)
	}

	res.Processed = len(leads)
	log.Info("workflow scheduled, leads queued", zap.Int("queued", len(leads)), zap.String("status", string(queued)))
	return res, nil
}

func (e *Executor) unitCost(t Type) int64 {
	switch t {
	case TypeInvite:
		return e.cfg.InviteCost
	case TypeSendMessage:
		return e.cfg.MessageCost
	}
	return 0
}

// limit caps the leads of one run by the workflow limit and the global cap.
func (e *Executor) limit(wf *Workflow) int {
	limit := wf.LimitCount
	if ceiling := e.cfg.MaxLeadsPerRun; ceiling > 0 && (limit <= 0 || limit > ceiling) {
		limit = ceiling
	}
	return limit
}

func (e *Executor) eligibleQuery(wf *Workflow, upstream string) lead.EligibleQuery {
	q := lead.EligibleQuery{
		CompanyID:        wf.CompanyID,
		UpstreamWorkflow: upstream,
		QueuedBy:         wf.ID,
		Limit:            e.limit(wf),
	}
	switch wf.Type {
	case TypeInvite:
		q.Statuses = []lead.Status{lead.StatusSearched}
		q.QueuedStatuses = []lead.Status{lead.StatusInQueue}
	case TypeSendMessage:
		q.Statuses = messageInputStatuses
		q.QueuedStatuses = []lead.Status{lead.StatusFollowUpSentInQueue}
	}
	if wf.ID == "" {
		q.QueuedBy, q.QueuedStatuses = "", nil
	}
	return q
}

func (e *Executor) buildSearch(ctx context.Context, accountID string, target Target) (*unipile.SearchRequest, error) {
	switch t := target.(type) {
	case SearchURLTarget:
		return &unipile.SearchRequest{URL: t.URL}, nil
	case KeywordsTarget:
		req := &unipile.SearchRequest{Keywords: t.Keywords, NetworkDistance: t.NetworkDistance}
		for _, u := range t.CompanyURLs {
			if err := e.reads.Wait(ctx); err != nil {
				return nil, err
			}
			id, err := e.client.LookupCompany(ctx, accountID, u)
			if err != nil {
				return nil, fmt.Errorf("resolve company %q: %w", u, err)
			}
			req.CompanyIDs = append(req.CompanyIDs, id)
		}
		return req, nil
	}
	return nil, nil
}

func (e *Executor) resolve(ctx context.Context, r *run, target Target, search *unipile.SearchRequest) ([]*lead.Lead, error) {
	switch t := target.(type) {
	case SearchURLTarget, KeywordsTarget:
		return e.searchLeads(ctx, r, *search)
	case UpstreamTarget:
		leads, err := e.leads.ListEligible(ctx, e.eligibleQuery(r.wf, t.WorkflowID))
		if err != nil {
			return nil, fmt.Errorf("list upstream leads: %w", err)
		}
		return leads, nil
	case IdentifiersTarget:
		return e.lookupIdentifiers(ctx, r, t.Identifiers), nil
	}
	return nil, fmt.Errorf("%w: unsupported target %T", ErrInvalidTarget, target)
}

// searchLeads pages through search results from the run cursor until the
// limit is reached or results run out.
func (e *Executor) searchLeads(ctx context.Context, r *run, req unipile.SearchRequest) ([]*lead.Lead, error) {
	limit := e.limit(r.wf)
	seen := map[string]struct{}{}
	var out []*lead.Lead

	for limit <= 0 || len(out) < limit {
		size := e.cfg.SearchPageSize
		if limit > 0 && limit-len(out) < size {
			size = limit - len(out)
		}

		if err := e.reads.Wait(ctx); err != nil {
			if len(out) == 0 {
				return nil, err
			}
			r.interrupted = err
			break
		}
		page, err := e.client.SearchProfiles(ctx, r.accountID, req, r.cursor, size)
		if err != nil {
			if len(out) == 0 {
				return nil, fmt.Errorf("search profiles: %w", err)
			}
			r.log.Warn("search page failed, continuing with partial results", zap.Int("found", len(out)), zap.Error(err))
			break
		}

		for _, p := range page.Items {
			if limit > 0 && len(out) >= limit {
				break
			}
			key := p.ProviderID
			if key == "" {
				key = "public:" + p.PublicIdentifier
			}
			if key == "public:" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			l := lead.FromProfile(p)
			r.own(l)
			out = append(out, l)
		}

		r.cursor = page.Cursor
		if page.Cursor == "" || len(page.Items) == 0 {
			break
		}
	}

	r.log.Debug("search finished", zap.Int("found", len(out)), zap.String("cursor", r.cursor))
	return out, nil
}

// lookupIdentifiers fetches profiles concurrently. Failed lookups are counted
// and skipped.
func (e *Executor) lookupIdentifiers(ctx context.Context, r *run, ids []string) []*lead.Lead {
	if limit := e.limit(r.wf); limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	found := make([]*lead.Lead, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.ReadConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := e.reads.Wait(gctx); err != nil {
				r.count(false)
				return nil
			}
			p, err := e.client.GetProfile(gctx, r.accountID, id)
			if err != nil {
				r.log.Warn("profile lookup failed", zap.String("identifier", id), zap.Error(err))
				r.count(false)
				return nil
			}
			l := lead.FromProfile(*p)
			r.own(l)
			found[i] = l
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*lead.Lead, 0, len(found))
	for _, l := range found {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

func (e *Executor) filter(r *run, leads []*lead.Lead) []*lead.Lead {
	if r.wf.LeadFilter == "" {
		return leads
	}
	out := make([]*lead.Lead, 0, len(leads))
	for _, l := range leads {
		ok, err := celengine.Evaluate(r.wf.LeadFilter, l.Attributes())
		if err != nil {
			r.log.Warn("lead filter evaluation failed, skipping lead", zap.String("public_identifier", l.PublicIdentifier), zap.Error(err))
			continue
		}
		if ok {
			out = append(out, l)
		}
	}
	r.log.Debug("lead filter applied", zap.Int("before", len(leads)), zap.Int("after", len(out)))
	return out
}

// reconcile resolves provisional leads through concurrent profile lookups.
// Leads that stay provisional are not contacted.
func (e *Executor) reconcile(ctx context.Context, r *run, leads []*lead.Lead) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.ReadConcurrency)
	for _, l := range leads {
		if !l.Provisional() || l.PublicIdentifier == "" {
			continue
		}
		g.Go(func() error {
			if err := e.reads.Wait(gctx); err != nil {
				return nil
			}
			p, err := e.client.GetProfile(gctx, r.accountID, l.PublicIdentifier)
			if err != nil {
				r.log.Warn("failed to resolve provisional lead", zap.String("public_identifier", l.PublicIdentifier), zap.Error(err))
				return nil
			}
			l.ApplyProfile(*p)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Executor) markSearched(r *run, leads []*lead.Lead) {
	now := e.now()
	for _, l := range leads {
		l.LatestStatus = lead.StatusSearched
		l.LastWorkflowID = r.wf.ID
		l.Stamp(lead.StatusSearched, now)
		r.count(true)
		metrics.LeadActionsTotal.WithLabelValues(string(r.wf.Type), string(l.LatestStatus)).Inc()
		r.out = append(r.out, l)
	}
}

// invite sends invitations one at a time, paced by the write throttle.
// A failure is recorded on the lead and never stops the batch.
func (e *Executor) invite(ctx context.Context, r *run, leads []*lead.Lead) {
	composer := e.composers.For(r.wf.AgentType)

	for _, l := range leads {
		if l.Provisional() {
			e.unresolved(r, l)
			continue
		}
		if err := e.writes.Wait(ctx); err != nil {
			r.interrupted = err
			break
		}
		if err := e.reserve(ctx, r); err != nil {
			r.interrupted = err
			break
		}

		var note string
		if strings.TrimSpace(r.wf.InvitationMessage) != "" {
			msg, err := composer.Compose(ctx, r.wf.InvitationMessage, l)
			if err != nil {
				r.log.Warn("failed to compose invitation note, sending without it", zap.Error(err))
			}
			note = msg
		}

		inv, err := e.client.SendInvitation(ctx, r.accountID, l.PrivateID(), note)
		switch {
		case err == nil:
			l.LatestStatus = lead.StatusInvited
			l.InvitationID = inv.InvitationID
			l.LastError = ""
			l.Stamp(lead.StatusInvited, e.now())
			r.count(true)
		case unipile.IsAlreadyInvited(err):
			e.refund(ctx, r)
			l.LatestStatus = lead.StatusAlreadyInvited
			l.LastError = ""
			r.count(true)
		default:
			e.refund(ctx, r)
			l.LatestStatus = lead.StatusInvitedFailed
			l.LastError = err.Error()
			r.count(false)
			r.log.Warn("invitation failed", zap.String("private_identifier", l.PrivateID()), zap.Error(err))
		}

		l.LastWorkflowID = r.wf.ID
		metrics.LeadActionsTotal.WithLabelValues(string(r.wf.Type), string(l.LatestStatus)).Inc()
		r.out = append(r.out, l)
	}
}

// message opens a chat with each lead, or continues an existing one with the
// resend template. Leads already followed up with are skipped.
func (e *Executor) message(ctx context.Context, r *run, leads []*lead.Lead) error {
	known, err := e.knownLeads(ctx, r, leads)
	if err != nil {
		return err
	}
	composer := e.composers.For(r.wf.AgentType)

	for _, l := range leads {
		if prev, ok := known[l.PrivateID()]; ok {
			if prev.LatestStatus == lead.StatusFollowUpSent {
				continue
			}
			if l.ChatID == "" {
				l.ChatID = prev.ChatID
			}
		}
		if l.LatestStatus == lead.StatusFollowUpSent {
			continue
		}
		if l.Provisional() {
			e.unresolved(r, l)
			continue
		}
		if err := e.writes.Wait(ctx); err != nil {
			r.interrupted = err
			break
		}
		if err := e.reserve(ctx, r); err != nil {
			r.interrupted = err
			break
		}

		err := e.send(ctx, r, composer, l)
		if err != nil {
			e.refund(ctx, r)
			// keep the current status so a queued lead is retried on the next run
			l.LatestStatus = ""
			l.LastError = err.Error()
			r.count(false)
			r.log.Warn("message failed", zap.String("private_identifier", l.PrivateID()), zap.Error(err))
			metrics.LeadActionsTotal.WithLabelValues(string(r.wf.Type), "FAILED").Inc()
		} else {
			l.LatestStatus = lead.StatusFollowUpSent
			l.LastError = ""
			l.LastWorkflowID = r.wf.ID
			l.Stamp(lead.StatusFollowUpSent, e.now())
			r.count(true)
			metrics.LeadActionsTotal.WithLabelValues(string(r.wf.Type), string(l.LatestStatus)).Inc()
		}
		r.out = append(r.out, l)
	}
	return nil
}

// reserve deducts the cost of one external write before it is attempted, so
// a run stops as soon as the balance is spent.
func (e *Executor) reserve(ctx context.Context, r *run) error {
	cost := e.unitCost(r.wf.Type)
	if cost <= 0 {
		return nil
	}
	if err := e.credits.Deduct(ctx, r.wf.CompanyID, cost); err != nil {
		r.log.Warn("stopping run, could not reserve credits", zap.Int("charged", r.charged), zap.Error(err))
		return err
	}
	r.charged++
	return nil
}

// refund returns the reserved cost of a write that did not go through.
func (e *Executor) refund(ctx context.Context, r *run) {
	cost := e.unitCost(r.wf.Type)
	if cost <= 0 {
		return
	}
	if err := e.credits.Refund(context.WithoutCancel(ctx), r.wf.CompanyID, cost); err != nil {
		r.log.Error("failed to refund credits", zap.Int64("amount", cost), zap.Error(err))
		return
	}
	r.charged--
}

func (e *Executor) send(ctx context.Context, r *run, composer Composer, l *lead.Lead) error {
	if l.ChatID != "" && strings.TrimSpace(r.wf.ResendMessage) != "" {
		body, err := composer.Compose(ctx, r.wf.ResendMessage, l)
		if err != nil {
			return err
		}
		_, err = e.client.SendMessage(ctx, l.ChatID, body)
		return err
	}

	body, err := composer.Compose(ctx, r.wf.FirstMessage, l)
	if err != nil {
		return err
	}
	chat, err := e.client.StartNewChat(ctx, r.accountID, []string{l.PrivateID()}, body)
	if err != nil {
		return err
	}
	l.ChatID = chat.ChatID
	return nil
}

// knownLeads loads the stored state of leads that did not come from the store.
func (e *Executor) knownLeads(ctx context.Context, r *run, leads []*lead.Lead) (map[string]*lead.Lead, error) {
	var ids []string
	for _, l := range leads {
		if l.ID == "" && !l.Provisional() {
			ids = append(ids, l.PrivateID())
		}
	}
	if len(ids) == 0 {
		return map[string]*lead.Lead{}, nil
	}
	known, err := e.leads.FindByPrivateIdentifiers(ctx, r.wf.CompanyID, ids)
	if err != nil {
		return nil, fmt.Errorf("load known leads: %w", err)
	}
	return known, nil
}

func (e *Executor) unresolved(r *run, l *lead.Lead) {
	l.LatestStatus = ""
	l.LastError = "private identifier unresolved"
	r.count(false)
	r.out = append(r.out, l)
}

// scheduleFollowUp inserts a one-shot SEND_MESSAGE workflow targeting the
// leads this INVITE run contacted, unless one is still waiting to run.
func (e *Executor) scheduleFollowUp(ctx context.Context, r *run) (string, error) {
	wf := r.wf
	if wf.Type != TypeInvite || strings.TrimSpace(wf.FollowUpMessage) == "" || r.succeeded == 0 {
		return "", nil
	}
	pending, err := e.repo.PendingFollowUp(ctx, wf.ID)
	if err != nil {
		return "", err
	}
	if pending {
		return "", nil
	}

	hours := wf.FollowUpAfterHours
	if hours <= 0 {
		hours = defaultFollowUpAfterHours
	}
	at := e.now().In(e.cfg.Location).Add(time.Duration(hours) * time.Hour)

	fu := &Workflow{
		CompanyID:        wf.CompanyID,
		ProviderID:       wf.ProviderID,
		ParentWorkflowID: wf.ID,
		Name:             strings.TrimSpace(wf.Name + " follow-up"),
		Type:             TypeSendMessage,
		AgentType:        wf.AgentType,
		TargetWorkflowID: wf.ID,
		FirstMessage:     wf.FollowUpMessage,
		LimitCount:       wf.LimitCount,
		RunLimitCount:    1,
		ScheduledHours:   []int{at.Hour()},
		ScheduledDays:    []int{at.Day()},
		ScheduledMonths:  []int{int(at.Month())},
	}
	if err := e.repo.Create(ctx, fu); err != nil {
		return "", err
	}
	r.log.Info("follow-up workflow scheduled", zap.String("follow_up_workflow_id", fu.ID), zap.Time("at", at))
	return fu.ID, nil
}
