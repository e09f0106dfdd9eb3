package service

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ayxworxfr/go_rbac/internal/config"
	"github.com/ayxworxfr/go_rbac/internal/dao"
	"github.com/ayxworxfr/go_rbac/internal/permission"
	"github.com/ayxworxfr/go_rbac/pkg/logger"
)

// Service 实例变量
var (
	EngineInstance            *permission.Engine
	AssignmentServiceInstance *AssignmentService
)

// dao层初始化完成后，调用Init函数
func Init(ctx context.Context, cfg *config.Config, repos *dao.Repos) error {
	engine, err := NewEngine(ctx, cfg, repos)
	if err != nil {
		return err
	}
	EngineInstance = engine
	AssignmentServiceInstance = NewAssignmentService(repos, engine)
	return nil
}

// EngineOptions 将配置转换为引擎选项
func EngineOptions(cfg *config.Config) (permission.Options, error) {
	pc := cfg.Permission
	opts := permission.DefaultOptions()

	var err error
	if opts.Inheritance, err = permission.ParseInheritanceStrategy(pc.InheritanceStrategy); err != nil {
		return opts, err
	}
	if opts.Merge, err = permission.ParseMergeStrategy(pc.MergeStrategy); err != nil {
		return opts, err
	}
	if opts.ScopeRules, err = permission.NewScopeRules(pc.ScopeRules, pc.DefaultScope); err != nil {
		return opts, err
	}
	if pc.AdminPermission != "" {
		opts.AdminPermission = pc.AdminPermission
	}
	if pc.CacheTTL > 0 {
		opts.TTL = pc.CacheTTL
	}
	if pc.CacheBackend == "redis" && cfg.Redis.Prefix != "" {
		opts.KeyPrefix = cfg.Redis.Prefix
	}
	opts.TrackMembership = pc.MembershipTracking()
	return opts, nil
}

// NewCache 按 cache_backend 创建缓存，redis 不可达时直接失败
func NewCache(ctx context.Context, cfg *config.Config) (permission.Cache, error) {
	switch cfg.Permission.CacheBackend {
	case "", "memory":
		return permission.NewMemoryCache(time.Minute), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		cache := permission.NewRedisCache(client)
		if err := cache.Ping(ctx); err != nil {
			client.Close()
			return nil, errors.Wrapf(err, "connect redis %s", cfg.Redis.Addr)
		}
		return cache, nil
	default:
		return nil, errors.Errorf("unsupported cache backend %q", cfg.Permission.CacheBackend)
	}
}

// NewEngine 基于 dao 仓储与配置组装权限引擎
func NewEngine(ctx context.Context, cfg *config.Config, repos *dao.Repos) (*permission.Engine, error) {
	opts, err := EngineOptions(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "invalid permission config")
	}
	cache, err := NewCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	stores := dao.NewStores(repos, cfg.Permission.SuperAdminID)
	engine := permission.NewEngine(stores.Users, stores.Roles, stores.Menus, stores.Depts, cache, opts)

	logger.Info(ctx, "permission engine ready",
		zap.String("cache", cfg.Permission.CacheBackend),
		zap.String("inheritance", string(opts.Inheritance)),
		zap.String("merge", string(opts.Merge)),
		zap.Duration("ttl", opts.TTL),
		zap.Bool("track_membership", opts.TrackMembership))
	return engine, nil
}
