package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger 把 GORM 日志转到 zap
type GormLogger struct {
	SlowThreshold time.Duration
	LogLevel      gormlogger.LogLevel
}

// NewGormLogger 创建 GORM 日志适配器，debug 级别下输出全部 SQL
func NewGormLogger(level string) *GormLogger {
	l := &GormLogger{
		SlowThreshold: 200 * time.Millisecond,
		LogLevel:      gormlogger.Warn,
	}
	if parseLevel(level) == zap.DebugLevel {
		l.LogLevel = gormlogger.Info
	}
	return l
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Info {
		L().Sugar().Infof(msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Warn {
		L().Sugar().Warnf(msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Error {
		L().Sugar().Errorf(msg, data...)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.LogLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	lg := L().WithOptions(zap.WithCaller(false))

	if IsJson() {
		fields := []zap.Field{
			zap.Duration("latency", elapsed),
			zap.Int64("rows", rows),
			zap.String("sql", sql),
		}
		switch {
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			lg.Error("SQL", append(fields, zap.Error(err))...)
		case l.SlowThreshold != 0 && elapsed > l.SlowThreshold:
			lg.Warn("SQL SLOW", fields...)
		case l.LogLevel >= gormlogger.Info:
			lg.Debug("SQL", fields...)
		}
		return
	}

	msg := fmt.Sprintf("[%.3fms] [rows:%d] %s", float64(elapsed.Microseconds())/1000, rows, sql)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		lg.Error(msg, zap.Error(err))
	case l.SlowThreshold != 0 && elapsed > l.SlowThreshold:
		lg.Warn("SLOW " + msg)
	case l.LogLevel >= gormlogger.Info:
		lg.Debug(msg)
	}
}
