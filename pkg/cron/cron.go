package cron

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/ayxworxfr/go_rbac/pkg/logger"
)

// TaskFunc 定时任务处理函数，返回的错误只记录日志
type TaskFunc func(ctx context.Context) error

// TaskManager 定时任务管理器
type TaskManager struct {
	scheduler *cron.Cron
	tasks     map[string]*managedJob
	mu        sync.RWMutex
}

// managedJob 自定义任务结构
type managedJob struct {
	entryID  cron.EntryID
	cronExpr string
	disabled bool
}

// TaskInfo 任务状态快照
type TaskInfo struct {
	Name     string
	CronExpr string
	Status   string
	NextRun  time.Time
}

// cronLogger 将 robfig/cron 的日志转到 zap
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logger.L().Sugar().Debugw(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.L().Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

// NewTaskManager 创建定时任务管理器。
// panic 会被恢复并记录；上一次未结束时跳过本次执行。
func NewTaskManager() *TaskManager {
	l := cronLogger{}
	return &TaskManager{
		scheduler: cron.New(
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		tasks: make(map[string]*managedJob),
	}
}

// Start 启动所有任务
func (tm *TaskManager) Start() {
	tm.scheduler.Start()
	logger.Info(context.Background(), "scheduled tasks started", zap.Int("tasks", len(tm.ListTasks())))
}

// Stop 停止调度并等待运行中的任务完成
func (tm *TaskManager) Stop() {
	<-tm.scheduler.Stop().Done()
	logger.Info(context.Background(), "scheduled tasks stopped")
}

// AddTask 添加定时任务
func (tm *TaskManager) AddTask(name, cronExpr string, task TaskFunc) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if _, exists := tm.tasks[name]; exists {
		return errors.Errorf("task %s already exists", name)
	}

	entryID, err := tm.scheduler.AddFunc(cronExpr, func() { tm.run(name, task) })
	if err != nil {
		return errors.Wrapf(err, "add task %s", name)
	}
	tm.tasks[name] = &managedJob{entryID: entryID, cronExpr: cronExpr}

	logger.Info(context.Background(), "task added", zap.String("task", name), zap.String("cron_expr", cronExpr))
	return nil
}

// run 执行一次任务；暂停中的任务直接跳过
func (tm *TaskManager) run(name string, task TaskFunc) {
	tm.mu.RLock()
	job, ok := tm.tasks[name]
	skip := !ok || job.disabled
	tm.mu.RUnlock()
	if skip {
		return
	}

	ctx := context.Background()
	start := time.Now()
	if err := task(ctx); err != nil {
		logger.Error(ctx, "task failed", zap.String("task", name), zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	logger.Debug(ctx, "task finished", zap.String("task", name), zap.Duration("duration", time.Since(start)))
}

// RunNow 立即同步执行一次任务，不受暂停状态影响
func (tm *TaskManager) RunNow(ctx context.Context, name string, registry *TaskRegistry) error {
	task, ok := registry.tasks[name]
	if !ok {
		return errors.Errorf("task %s has no registered handler", name)
	}
	return task(ctx)
}

// RemoveTask 移除定时任务
func (tm *TaskManager) RemoveTask(name string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if job, exists := tm.tasks[name]; exists {
		tm.scheduler.Remove(job.entryID)
		delete(tm.tasks, name)
		logger.Info(context.Background(), "task removed", zap.String("task", name))
	} else {
		logger.Warn(context.Background(), "attempt to remove non-existent task", zap.String("task", name))
	}
}

func (tm *TaskManager) setDisabled(name string, disabled bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	job, exists := tm.tasks[name]
	if !exists {
		logger.Warn(context.Background(), "task not found", zap.String("task", name))
		return
	}
	job.disabled = disabled
	logger.Info(context.Background(), "task state changed", zap.String("task", name), zap.Bool("paused", disabled))
}

// PauseTask 暂停定时任务
func (tm *TaskManager) PauseTask(name string) {
	tm.setDisabled(name, true)
}

// ResumeTask 恢复定时任务
func (tm *TaskManager) ResumeTask(name string) {
	tm.setDisabled(name, false)
}

// GetTaskStatus 获取任务状态
func (tm *TaskManager) GetTaskStatus(name string) string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	if job, exists := tm.tasks[name]; exists {
		if job.disabled {
			return "paused"
		}
		return "running"
	}
	return "not exist"
}

// ListTasks 获取所有任务信息，按名称排序
func (tm *TaskManager) ListTasks() []TaskInfo {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	infos := make([]TaskInfo, 0, len(tm.tasks))
	for name, job := range tm.tasks {
		info := TaskInfo{Name: name, CronExpr: job.cronExpr, Status: "running"}
		if job.disabled {
			info.Status = "paused"
		}
		if schedule, err := cron.ParseStandard(job.cronExpr); err == nil {
			info.NextRun = schedule.Next(time.Now())
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// TaskConfig YAML配置中的单个任务结构
type TaskConfig struct {
	Name     string `yaml:"name"`
	CronExpr string `yaml:"cron_expr"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

// TaskRegistry 任务注册表，用于映射任务名称到处理函数
type TaskRegistry struct {
	tasks map[string]TaskFunc
}

func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{tasks: make(map[string]TaskFunc)}
}

// Register 注册任务处理函数
func (tr *TaskRegistry) Register(name string, handler TaskFunc) {
	tr.tasks[name] = handler
}

// LoadTasksFromYAML 从YAML文件加载任务
func (tm *TaskManager) LoadTasksFromYAML(filePath string, registry *TaskRegistry) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return errors.Wrap(err, "read task file")
	}
	return tm.LoadTasksFromYAMLBytes(data, registry)
}

// LoadTasksFromYAMLBytes 严格解析，遇到未知字段时返回错误
func (tm *TaskManager) LoadTasksFromYAMLBytes(data []byte, registry *TaskRegistry) error {
	var taskConfigs []TaskConfig
	if err := yaml.UnmarshalStrict(data, &taskConfigs); err != nil {
		return errors.Wrap(err, "parse task yaml")
	}
	return tm.LoadTasks(taskConfigs, registry)
}

// LoadTasks 从任务配置列表加载任务；未注册或表达式错误的任务跳过并记录
func (tm *TaskManager) LoadTasks(taskConfigs []TaskConfig, registry *TaskRegistry) error {
	ctx := context.Background()
	for _, config := range taskConfigs {
		if config.Disabled {
			logger.Info(ctx, "skipping disabled task", zap.String("task", config.Name))
			continue
		}

		handler, exists := registry.tasks[config.Name]
		if !exists {
			logger.Warn(ctx, "task has no registered handler", zap.String("task", config.Name))
			continue
		}

		if err := tm.AddTask(config.Name, config.CronExpr, handler); err != nil {
			logger.Error(ctx, "failed to load task", zap.String("task", config.Name), zap.Error(err))
		}
	}
	return nil
}
