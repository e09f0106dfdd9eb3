package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ayxworxfr/go_rbac/internal/permission"
	"github.com/ayxworxfr/go_rbac/pkg/cron"
	"github.com/ayxworxfr/go_rbac/pkg/logger"
)

type fakeEngine struct {
	evictions int
	evictErr  error
	report    permission.AuditReport
}

func (f *fakeEngine) EvictAll(context.Context) error {
	f.evictions++
	return f.evictErr
}

func (f *fakeEngine) AuditHierarchy(context.Context) (permission.AuditReport, error) {
	return f.report, nil
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := logger.L()
	logger.SetLogger(zap.New(core))
	t.Cleanup(func() { logger.SetLogger(prev) })
	return logs
}

func TestCacheRefresh(t *testing.T) {
	engine := &fakeEngine{}
	registry := NewRegistry(engine)
	manager := cron.NewTaskManager()
	ctx := context.Background()

	require.NoError(t, manager.RunNow(ctx, TaskCacheRefresh, registry))
	assert.Equal(t, 1, engine.evictions)

	engine.evictErr = errors.New("redis down")
	assert.ErrorContains(t, manager.RunNow(ctx, TaskCacheRefresh, registry), "redis down")
}

func TestHierarchyAudit(t *testing.T) {
	logs := observeLogs(t)
	engine := &fakeEngine{report: permission.AuditReport{DeptCycles: 2}}
	registry := NewRegistry(engine)
	manager := cron.NewTaskManager()

	require.NoError(t, manager.RunNow(context.Background(), TaskHierarchyAudit, registry))
	entries := logs.FilterMessage("[TASK] hierarchy cycles found").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["dept_cycles"])
}

func TestInitCronTask(t *testing.T) {
	engine := &fakeEngine{}

	manager, err := InitCronTask(engine, nil)
	require.NoError(t, err)
	assert.Empty(t, manager.ListTasks())

	manager, err = InitCronTask(engine, []cron.TaskConfig{
		{Name: TaskCacheRefresh, CronExpr: "0 3 * * *"},
		{Name: TaskHierarchyAudit, CronExpr: "*/30 * * * *", Disabled: true},
	})
	require.NoError(t, err)
	defer manager.Stop()
	assert.Equal(t, "running", manager.GetTaskStatus(TaskCacheRefresh))
	assert.Equal(t, "not exist", manager.GetTaskStatus(TaskHierarchyAudit))
}
