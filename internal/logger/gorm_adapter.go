package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerAdapter routes gorm's SQL logging into a module logger
type GormLoggerAdapter struct {
	logger        Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLoggerAdapter creates a gorm logger. Queries slower than slowThreshold are
// logged at warn level; zero disables slow query detection.
func NewGormLoggerAdapter(log Logger, slowThreshold time.Duration) *GormLoggerAdapter {
	if log == nil {
		log = NewSlogLogger(nil, LogLevelInfo, nil)
	}
	return &GormLoggerAdapter{
		logger:        log,
		level:         gormlogger.Warn,
		slowThreshold: slowThreshold,
	}
}

// LogMode implements gormlogger.Interface
func (a *GormLoggerAdapter) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *a
	next.level = level
	return &next
}

func (a *GormLoggerAdapter) Info(ctx context.Context, msg string, data ...any) {
	if a.level >= gormlogger.Info {
		a.logger.WithContext(ctx).Debug(fmt.Sprintf(msg, data...))
	}
}

func (a *GormLoggerAdapter) Warn(ctx context.Context, msg string, data ...any) {
	if a.level >= gormlogger.Warn {
		a.logger.WithContext(ctx).Warn(fmt.Sprintf(msg, data...))
	}
}

func (a *GormLoggerAdapter) Error(ctx context.Context, msg string, data ...any) {
	if a.level >= gormlogger.Error {
		a.logger.WithContext(ctx).Error(RedactSensitiveData(fmt.Sprintf(msg, data...)))
	}
}

// Trace logs each statement. Unique constraint violations are expected during
// upserts and not-found lookups are expected during resolution, so both stay at debug.
func (a *GormLoggerAdapter) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if a.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	log := a.logger.WithContext(ctx)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, gorm.ErrDuplicatedKey):
		log.Warn("query error",
			String("sql", RedactSensitiveData(sql)),
			Int64("rows_affected", rows),
			Duration("elapsed", elapsed),
			Error(err))

	case a.slowThreshold > 0 && elapsed > a.slowThreshold:
		log.Warn("slow query",
			String("sql", RedactSensitiveData(sql)),
			Int64("rows_affected", rows),
			Duration("elapsed", elapsed),
			Duration("threshold", a.slowThreshold))

	default:
		log.Trace("sql query",
			String("sql", sql),
			Int64("rows_affected", rows),
			Duration("elapsed", elapsed))
	}
}

var _ gormlogger.Interface = (*GormLoggerAdapter)(nil)
