package dao

import (
	"context"
	"time"

	"go.uber.org/zap"
	"xorm.io/xorm/contexts"

	"github.com/ayxworxfr/go_rbac/pkg/logger"
)

// XormLogger 将 SQL 执行情况写入日志，链路事件由 repository 处理器记录
type XormLogger struct {
	showSQL       bool
	slowThreshold time.Duration
}

func NewXormLogger(showSQL bool) *XormLogger {
	return &XormLogger{
		showSQL:       showSQL,
		slowThreshold: 100 * time.Millisecond,
	}
}

func (s *XormLogger) BeforeProcess(c *contexts.ContextHook) (context.Context, error) {
	return c.Ctx, nil
}

// AfterProcess 慢查询总是告警，其余仅在 show_sql 时输出
func (s *XormLogger) AfterProcess(c *contexts.ContextHook) error {
	fields := []zap.Field{
		zap.String("sql", c.SQL),
		zap.Any("args", c.Args),
		zap.Duration("duration", c.ExecuteTime),
	}
	switch {
	case c.ExecuteTime > s.slowThreshold:
		logger.Warn(c.Ctx, "slow sql", fields...)
	case s.showSQL:
		logger.Debug(c.Ctx, "sql", fields...)
	}
	if c.Err != nil {
		logger.Warn(c.Ctx, "sql failed", append(fields, zap.Error(c.Err))...)
	}
	return nil
}
