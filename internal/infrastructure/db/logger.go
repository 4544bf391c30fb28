package db

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// gormLogger writes gorm's SQL log through zap.
type gormLogger struct {
	log   *zap.Logger
	level logger.LogLevel
}

var _ logger.Interface = (*gormLogger)(nil)

func newGormLogger(l *zap.Logger, level logger.LogLevel) *gormLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &gormLogger{log: l.Named("gorm"), level: level}
}

func (g *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	c := *g
	c.level = level
	return &c
}

func (g *gormLogger) Info(_ context.Context, msg string, args ...any) {
	if g.level >= logger.Info {
		g.log.Sugar().Infof(msg, args...)
	}
}

func (g *gormLogger) Warn(_ context.Context, msg string, args ...any) {
	if g.level >= logger.Warn {
		g.log.Sugar().Warnf(msg, args...)
	}
}

func (g *gormLogger) Error(_ context.Context, msg string, args ...any) {
	if g.level >= logger.Error {
		g.log.Sugar().Errorf(msg, args...)
	}
}

// Trace logs failed queries at Error, slow ones at Warn and the rest at Info.
// Record-not-found is an expected outcome and is not logged as a failure.
func (g *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	fields := func() []zap.Field {
		sql, rows := fc()
		return []zap.Field{zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("elapsed", elapsed)}
	}
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && g.level >= logger.Error:
		g.log.Error("query failed", append(fields(), zap.Error(err))...)
	case elapsed > slowQueryThreshold && g.level >= logger.Warn:
		g.log.Warn("slow query", fields()...)
	case g.level >= logger.Info:
		g.log.Info("query", fields()...)
	}
}
