package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"outreach-controlplane/pkg/logger"
	"outreach-controlplane/pkg/metrics"
	"outreach-controlplane/pkg/redis"
	"outreach-controlplane/pkg/rediskey"
	"outreach-controlplane/pkg/throttle"
	"outreach-controlplane/services/provider"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Due reports whether t satisfies every populated schedule dimension. An
// empty dimension matches any value. Weekdays count from Sunday = 0, months
// from January = 1.
func Due(t time.Time, wf *Workflow) bool {
	return matches(wf.ScheduledHours, t.Hour()) &&
		matches(wf.ScheduledWeekdays, int(t.Weekday())) &&
		matches(wf.ScheduledDays, t.Day()) &&
		matches(wf.ScheduledMonths, int(t.Month()))
}

func matches(set []int, v int) bool {
	return len(set) == 0 || slices.Contains(set, v)
}

type OutcomeStatus string

const (
	OutcomeDispatched   OutcomeStatus = "dispatched"
	OutcomeFailed       OutcomeStatus = "failed"
	OutcomeSkipped      OutcomeStatus = "skipped"
	OutcomeLocked       OutcomeStatus = "locked"
	OutcomeLimitReached OutcomeStatus = "limit_reached"
)

// Outcome is the per-workflow report of one tick.
type Outcome struct {
	WorkflowID    string        `json:"workflow_id"`
	CompanyID     string        `json:"company_id"`
	Type          Type          `json:"type"`
	Status        OutcomeStatus `json:"status"`
	HistoryID     string        `json:"history_id,omitempty"`
	HistoryStatus HistoryStatus `json:"history_status,omitempty"`
	Processed     int           `json:"processed"`
	Error         string        `json:"error,omitempty"`
}

type Dispatcher interface {
	Execute(ctx context.Context, req ExecuteRequest) (*Result, error)
}

type SchedulerParams struct {
	Repo       Repository
	Dispatcher Dispatcher
	// Locker is optional; without it overlapping ticks may run a workflow twice.
	Locker   *redis.Locker
	Throttle throttle.Throttle
	LockTTL  time.Duration
	Location *time.Location
}

type Scheduler struct {
	repo     Repository
	exec     Dispatcher
	locker   *redis.Locker
	throttle throttle.Throttle
	lockTTL  time.Duration
	loc      *time.Location
}

func NewScheduler(p SchedulerParams) *Scheduler {
	s := &Scheduler{
		repo:     p.Repo,
		exec:     p.Dispatcher,
		locker:   p.Locker,
		throttle: p.Throttle,
		lockTTL:  p.LockTTL,
		loc:      p.Location,
	}
	if s.throttle == nil {
		s.throttle = throttle.Noop()
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.lockTTL <= 0 {
		s.lockTTL = time.Hour
	}
	return s
}

// Tick dispatches every workflow due at now and waits for all of them. One
// workflow failing or panicking never affects the others.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) ([]Outcome, error) {
	t := now.In(s.loc)
	log := logger.FromContext(ctx, zap.Time("tick", t))

	scheduled, err := s.repo.ListScheduled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list scheduled workflows: %w", err)
	}

	var due []*Workflow
	for _, wf := range scheduled {
		if Due(t, wf) {
			due = append(due, wf)
		}
	}
	log.Info("scheduler tick", zap.Int("scheduled", len(scheduled)), zap.Int("due", len(due)))

	outcomes := make([]Outcome, len(due))
	var g errgroup.Group
	for i, wf := range due {
		if err := s.throttle.Wait(ctx); err != nil {
			for j := i; j < len(due); j++ {
				outcomes[j] = outcomeFor(due[j], OutcomeSkipped, err)
			}
			break
		}
		g.Go(func() error {
			outcomes[i] = s.dispatch(ctx, wf)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		metrics.SchedulerDispatchesTotal.WithLabelValues(string(o.Status)).Inc()
	}
	return outcomes, nil
}

func outcomeFor(wf *Workflow, status OutcomeStatus, err error) Outcome {
	o := Outcome{WorkflowID: wf.ID, CompanyID: wf.CompanyID, Type: wf.Type, Status: status}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

func (s *Scheduler) dispatch(ctx context.Context, wf *Workflow) (out Outcome) {
	log := logger.FromContext(ctx, zap.String("workflow_id", wf.ID), zap.String("company_id", wf.CompanyID))

	defer func() {
		if p := recover(); p != nil {
			log.Error("workflow dispatch panicked", zap.Any("panic", p), zap.Stack("stack"))
			out = outcomeFor(wf, OutcomeFailed, fmt.Errorf("panic: %v", p))
		}
	}()

	if wf.RunLimitCount > 0 {
		runs, err := s.repo.RunCount(ctx, wf.ID)
		if err != nil {
			log.Error("failed to count workflow runs", zap.Error(err))
			return outcomeFor(wf, OutcomeFailed, err)
		}
		if runs >= int64(wf.RunLimitCount) {
			return outcomeFor(wf, OutcomeLimitReached, nil)
		}
	}

	if s.locker != nil {
		lock, err := s.locker.Acquire(ctx, rediskey.BuildWorkflowLockName(wf.ID), s.lockTTL)
		if errors.Is(err, redis.ErrLockNotAcquired) {
			log.Info("workflow already running elsewhere, skipping")
			return outcomeFor(wf, OutcomeLocked, nil)
		}
		if err != nil {
			log.Error("failed to acquire workflow lock", zap.Error(err))
			return outcomeFor(wf, OutcomeFailed, err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("failed to release workflow lock", zap.Error(err))
			}
		}()
	}

	res, err := s.exec.Execute(ctx, ExecuteRequest{Workflow: wf, Dispatched: true})
	switch {
	case errors.Is(err, provider.ErrProviderNotFound):
		log.Warn("provider missing or disconnected, skipping workflow", zap.Error(err))
		return outcomeFor(wf, OutcomeSkipped, err)
	case res == nil && err != nil:
		log.Error("workflow dispatch failed", zap.Error(err))
		return outcomeFor(wf, OutcomeFailed, err)
	}

	o := outcomeFor(wf, OutcomeDispatched, err)
	o.HistoryID = res.HistoryID
	o.HistoryStatus = res.Status
	o.Processed = res.Processed
	return o
}
