package dao

import (
	"context"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-multierror"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"xorm.io/xorm"
	"xorm.io/xorm/log"

	"github.com/ayxworxfr/go_rbac/internal/config"
	"github.com/ayxworxfr/go_rbac/internal/domain/models"
	"github.com/ayxworxfr/go_rbac/pkg/logger"
	"github.com/ayxworxfr/go_rbac/pkg/repository"
)

// Repos 所有表的仓储集合
type Repos struct {
	engine   *xorm.Engine
	User     repository.Repository[models.User]
	Role     repository.Repository[models.Role]
	Menu     repository.Repository[models.Menu]
	Dept     repository.Repository[models.Dept]
	UserRole repository.Repository[models.UserRole]
	RoleMenu repository.Repository[models.RoleMenu]
	RoleDept repository.Repository[models.RoleDept]
	UserDept repository.Repository[models.UserDept]
}

// NewRepos 基于同一个处理器创建仓储，保证事务上下文在仓储间共享
func NewRepos(engine *xorm.Engine) *Repos {
	processor := repository.NewXormProcessor(engine)
	return &Repos{
		engine:   engine,
		User:     repository.NewRepository[models.User](processor),
		Role:     repository.NewRepository[models.Role](processor),
		Menu:     repository.NewRepository[models.Menu](processor),
		Dept:     repository.NewRepository[models.Dept](processor),
		UserRole: repository.NewRepository[models.UserRole](processor),
		RoleMenu: repository.NewRepository[models.RoleMenu](processor),
		RoleDept: repository.NewRepository[models.RoleDept](processor),
		UserDept: repository.NewRepository[models.UserDept](processor),
	}
}

// Transaction 在单个事务中执行 fn
func (r *Repos) Transaction(ctx context.Context, fn repository.TransactionFunc) (any, error) {
	return r.User.Transaction(ctx, fn)
}

func (r *Repos) Engine() *xorm.Engine {
	return r.engine
}

func (r *Repos) Close() error {
	return r.engine.Close()
}

var (
	repos     *Repos
	initOnce  sync.Once
	initError error
)

// InitRepo 初始化全局仓储，只执行一次
func InitRepo(cfg *config.Config) (*Repos, error) {
	initOnce.Do(func() {
		engine, err := InitDB(cfg.Database, cfg.Logger.Level)
		if err != nil {
			initError = err
			return
		}
		repos = NewRepos(engine)
	})
	return repos, initError
}

// dataSourceName 按驱动拼接连接串，sqlite3 直接使用 dbname 作为文件路径
func dataSourceName(cfg config.DatabaseConfig) (string, error) {
	switch cfg.Driver {
	case "", "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName), nil
	case "sqlite3":
		if cfg.DBName == "" {
			return "", errors.New("sqlite3 requires dbname as the database file")
		}
		return cfg.DBName, nil
	default:
		return "", errors.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// InitDB 函数使用配置类初始化 XORM 引擎
func InitDB(cfg config.DatabaseConfig, logLevel string) (*xorm.Engine, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "mysql"
	}
	dsn, err := dataSourceName(cfg)
	if err != nil {
		return nil, err
	}

	engine, err := xorm.NewEngine(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "create xorm engine")
	}

	// 设置数据库连接池
	engine.SetMaxIdleConns(cfg.MaxIdleConns)
	engine.SetMaxOpenConns(cfg.MaxOpenConns)
	engine.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	engine.AddHook(NewXormLogger(cfg.ShowSQL))

	switch logLevel {
	case "debug":
		engine.Logger().SetLevel(log.LOG_DEBUG)
	case "warn":
		engine.Logger().SetLevel(log.LOG_WARNING)
	case "error":
		engine.Logger().SetLevel(log.LOG_ERR)
	default:
		engine.Logger().SetLevel(log.LOG_INFO)
	}

	if cfg.SyncSchema {
		if err := SyncDB(context.Background(), engine, false); err != nil {
			engine.Close()
			return nil, err
		}
	}
	return engine, nil
}

// 需要同步的模型，关联表在后
var modelList = []any{
	new(models.User),
	new(models.Role),
	new(models.Menu),
	new(models.Dept),
	new(models.UserRole),
	new(models.RoleMenu),
	new(models.RoleDept),
	new(models.UserDept),
}

// SyncDB 同步数据库结构
// dropTables: 是否删除现有表（危险操作，生产环境慎用）
func SyncDB(ctx context.Context, engine *xorm.Engine, dropTables bool) error {
	var result *multierror.Error

	if dropTables {
		// 按逆序删除表
		for i := len(modelList) - 1; i >= 0; i-- {
			tableName := engine.TableName(modelList[i])
			logger.Info(ctx, "删除表", zap.String("table", tableName))
			if err := engine.DropTables(modelList[i]); err != nil {
				result = multierror.Append(result, errors.Wrapf(err, "删除表 %s 失败", tableName))
			}
		}
	}

	for _, model := range modelList {
		tableName := engine.TableName(model)
		logger.Debug(ctx, "同步表结构", zap.String("table", tableName))
		if err := engine.Sync2(model); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "同步表 %s 失败", tableName))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		logger.Error(ctx, "数据库同步完成，但存在错误", zap.Error(err))
		return err
	}
	logger.Info(ctx, "数据库同步成功", zap.Int("tables", len(modelList)))
	return nil
}
