package cron

import (
	"context"

	"github.com/ayxworxfr/go_rbac/internal/permission"
	"github.com/ayxworxfr/go_rbac/pkg/cron"
)

const (
	TaskCacheRefresh   = "cache_refresh"
	TaskHierarchyAudit = "hierarchy_audit"
)

// Engine 定时任务依赖的引擎能力
type Engine interface {
	EvictAll(ctx context.Context) error
	AuditHierarchy(ctx context.Context) (permission.AuditReport, error)
}

// NewRegistry 注册权限引擎相关的任务
func NewRegistry(engine Engine) *cron.TaskRegistry {
	registry := cron.NewTaskRegistry()
	registry.Register(TaskCacheRefresh, cacheRefresh(engine))
	registry.Register(TaskHierarchyAudit, hierarchyAudit(engine))
	return registry
}

// InitCronTask 按配置加载并启动任务，没有配置任务时返回未启动的管理器
func InitCronTask(engine Engine, tasks []cron.TaskConfig) (*cron.TaskManager, error) {
	manager := cron.NewTaskManager()
	if len(tasks) == 0 {
		return manager, nil
	}
	if err := manager.LoadTasks(tasks, NewRegistry(engine)); err != nil {
		return nil, err
	}
	manager.Start()
	return manager, nil
}
