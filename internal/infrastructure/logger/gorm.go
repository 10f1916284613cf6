package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

// DefaultSlowQueryThreshold is the statement duration above which GORM queries are logged as slow
const DefaultSlowQueryThreshold = 200 * time.Millisecond

// GormLogger writes GORM statements and messages to zap. Each entry carries
// the correlation fields of the statement's context and the calling repository line.
type GormLogger struct {
	base        *zap.Logger
	level       gormlogger.LogLevel
	slow        time.Duration
	logNotFound bool
}

// GormOption configures a GormLogger
type GormOption func(*GormLogger)

// SlowQueryThreshold overrides DefaultSlowQueryThreshold. Zero disables slow query logging.
func SlowQueryThreshold(d time.Duration) GormOption {
	return func(l *GormLogger) { l.slow = d }
}

// LogRecordNotFound logs gorm.ErrRecordNotFound as an SQL error. Lookups that
// miss are expected in the repositories, so they are dropped by default.
func LogRecordNotFound() GormOption {
	return func(l *GormLogger) { l.logNotFound = true }
}

// NewGormLogger creates a GORM logger writing to a "gorm" child of base
func NewGormLogger(base *zap.Logger, level gormlogger.LogLevel, opts ...GormOption) *GormLogger {
	l := &GormLogger{
		base:  base.Named("gorm"),
		level: level,
		slow:  DefaultSlowQueryThreshold,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogMode returns a copy logging at level
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.level = level
	return &c
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) message(ctx context.Context, min gormlogger.LogLevel, lvl zapcore.Level, msg string, data []any) {
	if l.level < min {
		return
	}
	fields := append(Fields(ctx), zap.String("caller", utils.FileWithLineNum()))
	l.base.Log(lvl, fmt.Sprintf(msg, data...), fields...)
}

// Trace logs one executed statement. Failures log at error, slow statements
// at warn, and everything else at debug once the level is Info.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	lvl, msg, ok := l.classify(elapsed, err)
	if !ok {
		return
	}

	sql, rows := fc()
	fields := append(Fields(ctx),
		zap.String("op", statementKind(sql)),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
		zap.String("caller", utils.FileWithLineNum()),
	)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	l.base.Log(lvl, msg, fields...)
}

func (l *GormLogger) classify(elapsed time.Duration, err error) (zapcore.Level, string, bool) {
	switch {
	case err != nil:
		if errors.Is(err, gormlogger.ErrRecordNotFound) && !l.logNotFound {
			return 0, "", false
		}
		return zapcore.ErrorLevel, "SQL error", true
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		return zapcore.WarnLevel, fmt.Sprintf("Slow SQL over %v", l.slow), true
	case l.level >= gormlogger.Info:
		return zapcore.DebugLevel, "SQL", true
	}
	return 0, "", false
}

// statementKind is the leading keyword of sql, e.g. SELECT or UPDATE
func statementKind(sql string) string {
	sql = strings.TrimSpace(sql)
	if i := strings.IndexAny(sql, " \t\n("); i > 0 {
		sql = sql[:i]
	}
	return strings.ToUpper(sql)
}

// ParseGormLevel maps the application log level onto GORM's. debug and info
// trace every statement; unknown levels fall back to warn.
func ParseGormLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent":
		return gormlogger.Silent
	case "error", "fatal":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

var _ gormlogger.Interface = (*GormLogger)(nil)
