package main

import (
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"outreach-controlplane/pkg/config"
	"outreach-controlplane/pkg/db"
	"outreach-controlplane/pkg/deadletter"
	"outreach-controlplane/pkg/gen"
	"outreach-controlplane/pkg/health"
	"outreach-controlplane/pkg/logger"
	"outreach-controlplane/pkg/minio"
	"outreach-controlplane/pkg/redis"
	"outreach-controlplane/pkg/server"
	"outreach-controlplane/pkg/task"
	"outreach-controlplane/services/credit"
	"outreach-controlplane/services/lead"
	"outreach-controlplane/services/provider"
	"outreach-controlplane/services/unipile"
	"outreach-controlplane/services/workflow"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		deadletter.Module,
		gen.Module,
		minio.Client,
		task.Client,
		health.Module,
		fx.Provide(
			provideTracerProvider,
			provideMeterProvider,
		),
		fx.Invoke(migrate),
		unipile.Module,
		provider.Module,
		lead.Module,
		credit.Module,
		workflow.Module,
		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "development" {
		return &fxevent.ZapLogger{Logger: logger}
	}
	return fxevent.NopLogger
})

func provideTracerProvider() trace.TracerProvider {
	return otel.GetTracerProvider()
}

func provideMeterProvider() metric.MeterProvider {
	return otel.GetMeterProvider()
}

func migrate(cfg *config.Config, conn *gorm.DB) error {
	return db.Migrate(cfg, conn,
		&provider.Provider{},
		&lead.Lead{},
		&credit.Balance{},
		&workflow.Workflow{},
		&workflow.History{},
	)
}
