package workflow

import (
	"outreach-controlplane/pkg/config"
	"outreach-controlplane/pkg/deadletter"
	"outreach-controlplane/pkg/redis"
	"outreach-controlplane/pkg/server"
	"outreach-controlplane/pkg/task"
	"outreach-controlplane/pkg/throttle"
	"outreach-controlplane/services/credit"
	"outreach-controlplane/services/lead"
	"outreach-controlplane/services/provider"
	"outreach-controlplane/services/unipile"

	"github.com/minio/minio-go/v7"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("workflow.service",
	fx.Provide(
		NewRepository,
		NewComposers,
		newExporter,
		newExecutor,
		func(e *Executor) Dispatcher { return e },
		newScheduler,
		server.AsRoute(newHandler),
		NewTickHandler,
	),
)

// TaskModule registers the scheduler tick on the asynq server mux.
var TaskModule = fx.Module("workflow.task",
	fx.Invoke(RegisterTaskHandlers),
)

func newExporter(cfg *config.Config, client *minio.Client) Exporter {
	if !cfg.Minio.Enable || client == nil {
		zap.L().Info("search export disabled")
		return nil
	}
	return NewMinioExporter(client, cfg.Minio.BucketName)
}

type executorDeps struct {
	fx.In
	Config     *config.Config
	Repo       Repository
	Leads      lead.Store
	Providers  *provider.Service
	Client     unipile.Client
	Credits    credit.Gate
	Composers  *Composers
	Exporter   Exporter
	DeadLetter deadletter.Queue `optional:"true"`
}

func newExecutor(d executorDeps) *Executor {
	cfg := d.Config
	return NewExecutor(ExecutorParams{
		Repo:       d.Repo,
		Leads:      d.Leads,
		Providers:  d.Providers,
		Client:     d.Client,
		Credits:    d.Credits,
		Composers:  d.Composers,
		Exporter:   d.Exporter,
		DeadLetter: d.DeadLetter,
		Reads:      throttle.Every(cfg.Executor.ReadInterval, cfg.Executor.ReadBurst),
		Writes:     throttle.Every(cfg.Executor.WriteInterval, 1),
		Config: ExecutorConfig{
			ReadConcurrency: cfg.Executor.ReadConcurrency,
			SearchPageSize:  cfg.Executor.SearchPageSize,
			MaxLeadsPerRun:  cfg.Executor.MaxLeadsPerRun,
			Timeout:         cfg.Executor.Timeout,
			InviteCost:      cfg.Credits.InviteCost,
			MessageCost:     cfg.Credits.MessageCost,
			Location:        cfg.Location(),
		},
	})
}

type schedulerDeps struct {
	fx.In
	Config     *config.Config
	Repo       Repository
	Dispatcher Dispatcher
	Locker     *redis.Locker `optional:"true"`
}

func newScheduler(d schedulerDeps) *Scheduler {
	return NewScheduler(SchedulerParams{
		Repo:       d.Repo,
		Dispatcher: d.Dispatcher,
		Locker:     d.Locker,
		Throttle:   throttle.Every(d.Config.Scheduler.DispatchDelay, 1),
		LockTTL:    d.Config.Scheduler.LockTTL,
		Location:   d.Config.Location(),
	})
}

type handlerDeps struct {
	fx.In
	Config     *config.Config
	Dispatcher Dispatcher
	Repo       Repository
	Scheduler  *Scheduler
	Enqueuer   task.Enqueuer `optional:"true"`
}

func newHandler(d handlerDeps) *Handler {
	return NewHandler(HandlerParams{
		Dispatcher: d.Dispatcher,
		Repo:       d.Repo,
		Scheduler:  d.Scheduler,
		Enqueuer:   d.Enqueuer,
		Token:      d.Config.Scheduler.Token,
	})
}
