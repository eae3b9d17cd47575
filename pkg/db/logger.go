package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outreach-controlplane/pkg/logger"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

// GormLogger writes gorm events through the context logger so queries carry
// the trace of the workflow run or request that issued them.
type GormLogger struct {
	level         gormlogger.LogLevel
	showSQL       bool
	slowThreshold time.Duration
}

func NewGormLogger(level gormlogger.LogLevel, showSQL bool, slowThreshold time.Duration) *GormLogger {
	return &GormLogger{level: level, showSQL: showSQL, slowThreshold: slowThreshold}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		logger.FromContext(ctx).Info(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		logger.FromContext(ctx).Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		logger.FromContext(ctx).Error(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("caller", utils.FileWithLineNum()),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
	}
	log := logger.FromContext(ctx)

	switch {
	// Missing rows are an expected outcome of First/Take lookups.
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && l.level >= gormlogger.Error:
		log.Error("[DB] query failed", append(fields, zap.String("sql", sql), zap.Error(err))...)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		log.Warn("[DB] slow query", append(fields, zap.String("sql", sql), zap.Duration("threshold", l.slowThreshold))...)
	case l.level >= gormlogger.Info && l.showSQL:
		log.Debug("[DB] query", append(fields, zap.String("sql", sql))...)
	}
}
