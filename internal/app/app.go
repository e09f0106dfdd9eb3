// internal/app/app.go

package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ayxworxfr/go_rbac/internal/config"
	"github.com/ayxworxfr/go_rbac/pkg/logger"
)

// LifecycleFunc 初始化或退出阶段执行的函数
type LifecycleFunc func(ctx context.Context) error

// App 进程生命周期：按注册顺序初始化，逆序退出
type App struct {
	config    *config.Config
	initFuncs []LifecycleFunc
	exitFuncs []LifecycleFunc
	signals   []os.Signal
}

func NewApp(cfg *config.Config) *App {
	return &App{
		config:  cfg,
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

func (a *App) Config() *config.Config {
	return a.config
}

func (a *App) RegisterInit(initFuncs ...LifecycleFunc) {
	a.initFuncs = append(a.initFuncs, initFuncs...)
}

func (a *App) RegisterExit(exitFuncs ...LifecycleFunc) {
	a.exitFuncs = append(a.exitFuncs, exitFuncs...)
}

// Start 依次执行初始化函数，任一失败即返回
func (a *App) Start(ctx context.Context) error {
	logger.Info(ctx, "Starting application...")
	for i, fun := range a.initFuncs {
		if err := fun(ctx); err != nil {
			return errors.Wrapf(err, "init step %d", i)
		}
	}
	logger.Info(ctx, "Application started", zap.Int("exit_hooks", len(a.exitFuncs)))
	return nil
}

// Run 启动后阻塞直到收到退出信号或 ctx 结束，然后优雅关闭
func (a *App) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	if err := a.Start(ctx); err != nil {
		// 已完成的初始化步骤也需要回收
		return multierror.Append(err, a.GracefulShutdown(shutdownTimeout)).ErrorOrNil()
	}

	ctx, stop := signal.NotifyContext(ctx, a.signals...)
	defer stop()
	<-ctx.Done()

	logger.Info(context.Background(), "Shutting down application...")
	return a.GracefulShutdown(shutdownTimeout)
}

// GracefulShutdown 逆序执行退出函数，单个失败不影响后续
func (a *App) GracefulShutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var result *multierror.Error
	for i := len(a.exitFuncs) - 1; i >= 0; i-- {
		if err := a.exitFuncs[i](ctx); err != nil {
			logger.Error(ctx, "exit hook failed", zap.Int("hook", i), zap.Error(err))
			result = multierror.Append(result, err)
		}
	}
	a.exitFuncs = nil
	return result.ErrorOrNil()
}
