package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"outreach-controlplane/pkg/config"
	"outreach-controlplane/pkg/db"
	"outreach-controlplane/pkg/deadletter"
	"outreach-controlplane/pkg/gen"
	"outreach-controlplane/pkg/logger"
	"outreach-controlplane/pkg/minio"
	"outreach-controlplane/pkg/redis"
	"outreach-controlplane/pkg/task"
	"outreach-controlplane/services/credit"
	"outreach-controlplane/services/lead"
	"outreach-controlplane/services/provider"
	"outreach-controlplane/services/unipile"
	"outreach-controlplane/services/workflow"
)

// The task process owns the hourly tick: the asynq periodic scheduler
// enqueues it and the asynq server runs it against the workflow scheduler.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		deadletter.Module,
		gen.Module,
		minio.Client,
		task.Server,
		task.Periodic,
		unipile.Module,
		provider.Module,
		lead.Module,
		credit.Module,
		workflow.Module,
		workflow.TaskModule,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
