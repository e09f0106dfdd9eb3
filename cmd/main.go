package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/pkg/errors"

	myapp "github.com/ayxworxfr/go_rbac/internal/app"
	"github.com/ayxworxfr/go_rbac/internal/config"
	"github.com/ayxworxfr/go_rbac/internal/cron"
	"github.com/ayxworxfr/go_rbac/internal/dao"
	"github.com/ayxworxfr/go_rbac/internal/service"
	"github.com/ayxworxfr/go_rbac/pkg/logger"
	"github.com/ayxworxfr/go_rbac/pkg/utils"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "conf/config.yaml", "配置文件路径，相对路径以项目根目录为基准")
	flag.Parse()

	cfg := InitConfig(*configPath)
	// 初始化日志系统
	if err := InitLogger(cfg.Logger); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.L().Sync()

	app := myapp.NewApp(cfg)
	app.RegisterInit(
		func(ctx context.Context) error {
			return initOpenTelemetry(ctx, cfg.OpenTelemetry, app)
		},
		func(ctx context.Context) error {
			return errors.Wrap(initService(ctx, cfg, app), "Failed to initialize service")
		},
	)

	if err := app.Run(context.Background(), shutdownTimeout); err != nil {
		logger.Fatalf(context.Background(), "application exited with error: %v", err)
	}
	logger.Info(context.Background(), "Application exiting")
}

func initOpenTelemetry(ctx context.Context, cfg config.OpenTelemetryConfig, app *myapp.App) error {
	provider, err := myapp.InitOpenTelemetry(ctx, cfg)
	if err != nil {
		// 追踪不可用不影响权限解析
		logger.Errorf(ctx, "Failed to initialize OpenTelemetry: %v", err)
		return nil
	}
	app.RegisterExit(func(ctx context.Context) error {
		return errors.Wrap(provider.Shutdown(ctx), "shutdown OpenTelemetry provider")
	})
	return nil
}

func InitConfig(path string) *config.Config {
	cfg, err := config.Load(utils.GetAbsPath(path))
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	return cfg
}

func InitLogger(cfg config.LoggerConfig) error {
	loggerConfig := logger.Config{
		LogFile:    cfg.LogFile,
		Level:      cfg.Level,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
		Console:    cfg.Console,
	}
	logger.InitLogger(loggerConfig)
	return nil
}

// initService 依次初始化 dao、权限引擎与定时任务，并登记对应的退出函数
func initService(ctx context.Context, cfg *config.Config, app *myapp.App) error {
	repos, err := dao.InitRepo(cfg)
	if err != nil {
		return err
	}
	app.RegisterExit(func(context.Context) error { return repos.Close() })

	if err := service.Init(ctx, cfg, repos); err != nil {
		return err
	}
	app.RegisterExit(func(context.Context) error { return service.EngineInstance.Close() })

	report, err := service.EngineInstance.AuditHierarchy(ctx)
	if err != nil {
		return errors.Wrap(err, "audit hierarchy")
	}
	if report.MenuCycles+report.DeptCycles > 0 {
		logger.Warnf(ctx, "hierarchy contains cycles: menu=%d dept=%d", report.MenuCycles, report.DeptCycles)
	}

	taskManager, err := cron.InitCronTask(service.EngineInstance, cfg.Tasks)
	if err != nil {
		return err
	}
	app.RegisterExit(func(context.Context) error {
		taskManager.Stop()
		return nil
	})
	return nil
}
