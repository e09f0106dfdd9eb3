package cron

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ayxworxfr/go_rbac/pkg/cron"
	"github.com/ayxworxfr/go_rbac/pkg/logger"
)

// cacheRefresh 全量失效权限缓存，兜底那些绕过失效入口的直接改库
func cacheRefresh(engine Engine) cron.TaskFunc {
	return func(ctx context.Context) error {
		logger.Info(ctx, "[TASK] evicting permission cache")
		return errors.Wrap(engine.EvictAll(ctx), "evict permission cache")
	}
}

// hierarchyAudit 巡检菜单与部门树中的环
func hierarchyAudit(engine Engine) cron.TaskFunc {
	return func(ctx context.Context) error {
		report, err := engine.AuditHierarchy(ctx)
		if err != nil {
			return errors.Wrap(err, "audit hierarchy")
		}
		fields := []zap.Field{zap.Int("menu_cycles", report.MenuCycles), zap.Int("dept_cycles", report.DeptCycles)}
		if report.MenuCycles+report.DeptCycles > 0 {
			logger.Warn(ctx, "[TASK] hierarchy cycles found", fields...)
			return nil
		}
		logger.Info(ctx, "[TASK] hierarchy audit passed", fields...)
		return nil
	}
}
