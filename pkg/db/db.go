package db

import (
	"context"
	"fmt"
	"os"
	"time"

	"outreach-controlplane/pkg/config"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/prometheus"
)

var Module = fx.Module("database",
	fx.Provide(
		Dialect,
		New,
	),
	fx.Invoke(RegisterConnectionPool, Otel, Metric),
)

// Dialect builds the postgres dialector from the DATABASE config section.
func Dialect(cfg *config.Config) gorm.Dialector {
	d := cfg.Database
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		d.Host, d.Port, d.User, d.Password, d.DBNAME, d.SSLMode, d.Timezone,
	)
	return postgres.Open(dsn)
}

func New(cfg *config.Config, dialector gorm.Dialector) *gorm.DB {
	var db *gorm.DB
	var err error

	logLevel := gormlogger.Info
	showSQL := true
	if cfg.AppEnv == "production" {
		logLevel = gormlogger.Warn
		showSQL = false
	}

	gormLogger := NewGormLogger(logLevel, showSQL, 200*time.Millisecond)

	for i := 0; i < 5; i++ {
		db, err = gorm.Open(dialector, &gorm.Config{
			Logger: gormLogger,
		})
		if err == nil {
			break
		}
		zap.L().Warn("[DB] Database not ready, retrying in 3 seconds... ", zap.Int("retry", i+1), zap.Error(err))
		time.Sleep(3 * time.Second)
	}

	if err != nil {
		zap.L().Error("[DB] Failed to connect to database", zap.Error(err))
		os.Exit(1)
	}

	zap.L().Info("[DB] Database connection successfully configured.")

	return db
}

type connectionPoolParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	DB        *gorm.DB
	Config    *config.Config
}

func RegisterConnectionPool(p connectionPoolParams) {
	if p.DB == nil {
		zap.L().Error("[DB] Skipping connection pool setup (no db instance)")
		os.Exit(1)
	}

	sqlDB, err := p.DB.DB()
	if err != nil {
		zap.L().Error("[DB] Failed to get sql.DB from gorm", zap.Error(err))
		os.Exit(1)
	}

	cp := p.Config.Database.ConnectionPool
	if cp.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cp.MaxIdleConn)
	}
	if cp.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cp.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(cp.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cp.ConnMaxIdleTime)

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			zap.L().Info("[DB] Closing connection pool...")
			return sqlDB.Close()
		},
	})
}

func Otel(db *gorm.DB) error {
	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		zap.L().Error("Failed to register db telemetry", zap.Error(err))
		return err
	}

	return nil
}

// Metric publishes connection pool stats on the default prometheus registry,
// which the HTTP server already exposes on /metrics.
func Metric(cfg *config.Config, db *gorm.DB) error {
	interval := cfg.Database.MetricsRefreshInterval
	if interval == 0 {
		interval = 15
	}
	pc := prometheus.Config{
		DBName:          cfg.Database.DBNAME,
		RefreshInterval: interval,
	}
	if db.Dialector.Name() == "postgres" {
		pc.MetricsCollector = []prometheus.MetricsCollector{
			&prometheus.Postgres{VariableNames: []string{"max_connections"}},
		}
	}
	if err := db.Use(prometheus.New(pc)); err != nil {
		zap.L().Error("Failed to register db metrics", zap.Error(err))
		return err
	}
	return nil
}

// Migrate runs AutoMigrate for the given models when DATABASE.AUTO_MIGRATE is set.
func Migrate(cfg *config.Config, db *gorm.DB, models ...any) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	zap.L().Info("[DB] Schema migrated", zap.Int("models", len(models)))
	return nil
}
