package workflow

import (
	"context"
	"fmt"
	"time"

	"outreach-controlplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type TickHandler struct {
	scheduler *Scheduler
	now       func() time.Time
}

func NewTickHandler(s *Scheduler) *TickHandler {
	return &TickHandler{scheduler: s, now: time.Now}
}

// ProcessTask runs one scheduler tick. Per-workflow failures are reported in
// the outcomes and do not fail the task.
func (h *TickHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	outcomes, err := h.scheduler.Tick(ctx, h.now())
	if err != nil {
		return fmt.Errorf("scheduler tick: %w", err)
	}

	counts := map[OutcomeStatus]int{}
	for _, o := range outcomes {
		counts[o.Status]++
	}
	zap.L().Info("scheduler tick task done",
		zap.String("task_type", t.Type()),
		zap.Int("workflows", len(outcomes)),
		zap.Int("dispatched", counts[OutcomeDispatched]),
		zap.Int("failed", counts[OutcomeFailed]),
		zap.Int("skipped", counts[OutcomeSkipped]+counts[OutcomeLocked]+counts[OutcomeLimitReached]),
	)
	return nil
}

func RegisterTaskHandlers(mux *asynq.ServeMux, h *TickHandler) {
	mux.Handle(taskname.WorkflowTick, h)
}
