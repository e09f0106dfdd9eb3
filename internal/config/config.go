package config

import (
	"os"
	"sync"
	"time"

	"github.com/ayxworxfr/go_rbac/pkg/cron"
	"gopkg.in/yaml.v3"
)

// Config 结构体用于存储所有配置
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Logger        LoggerConfig        `yaml:"logger"`
	OpenTelemetry OpenTelemetryConfig `yaml:"opentelemetry"`
	Permission    PermissionConfig    `yaml:"permission"`
	Tasks         []cron.TaskConfig   `yaml:"tasks"`
}

// DatabaseConfig 存储数据库相关配置
type DatabaseConfig struct {
	Driver          string `yaml:"driver"` // mysql 或 sqlite3
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	DBName          string `yaml:"dbname"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // 以秒为单位
	ShowSQL         bool   `yaml:"show_sql"`
	SyncSchema      bool   `yaml:"sync_schema"`
}

// NewDatabaseConfig 创建一个带有默认值的 DatabaseConfig
func NewDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "mysql",
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: 3600, // 默认1小时
		ShowSQL:         true,
	}
}

// RedisConfig 存储 Redis 相关配置，仅在 permission.cache_backend=redis 时使用
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// LoggerConfig 存储日志相关配置
type LoggerConfig struct {
	LogFile    string `yaml:"log_file"`
	Level      string `yaml:"level"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
	Console    bool   `yaml:"console"`
}

// PermissionConfig 权限解析引擎配置
type PermissionConfig struct {
	CacheBackend        string            `yaml:"cache_backend"` // memory 或 redis
	CacheTTL            time.Duration     `yaml:"cache_ttl"`
	InheritanceStrategy string            `yaml:"inheritance_strategy"` // ADDITIVE/OVERRIDE/INTERSECTION
	MergeStrategy       string            `yaml:"merge_strategy"`       // UNION/INTERSECTION/DIFFERENCE
	SuperAdminID        int64             `yaml:"super_admin_id"`
	AdminPermission     string            `yaml:"admin_permission"`
	ScopeRules          map[string]string `yaml:"scope_rules"` // 用户类型 -> 默认数据权限
	DefaultScope        string            `yaml:"default_scope"`
	TrackMembership     *bool             `yaml:"track_membership"`
}

// NewPermissionConfig 创建带默认值的权限配置
func NewPermissionConfig() PermissionConfig {
	return PermissionConfig{
		CacheBackend:        "memory",
		CacheTTL:            30 * time.Minute,
		InheritanceStrategy: "ADDITIVE",
		MergeStrategy:       "UNION",
		SuperAdminID:        1,
		AdminPermission:     "*:*:*",
		ScopeRules: map[string]string{
			"manager": "DEPT_AND_CHILD",
			"leader":  "DEPT",
		},
		DefaultScope: "SELF",
	}
}

// MembershipTracking 返回是否维护角色->用户的反向索引
// 未显式配置时，仅进程内缓存开启（共享的 redis 缓存无法依赖本地索引）
func (c PermissionConfig) MembershipTracking() bool {
	if c.TrackMembership != nil {
		return *c.TrackMembership
	}
	return c.CacheBackend != "redis"
}

var (
	config *Config
	once   sync.Once
)

// Load 加载并解析 YAML 配置文件
func Load(filename string) (*Config, error) {
	var err error
	once.Do(func() {
		config = Default()
		err = loadFile(filename, config)
		applyEnv(config)
	})
	return config, err
}

// Default 返回全部使用默认值的配置
func Default() *Config {
	return &Config{
		Database:      NewDatabaseConfig(),
		OpenTelemetry: NewOpenTelemetryConfig(),
		Permission:    NewPermissionConfig(),
	}
}

// applyEnv 优先使用环境变量的值
func applyEnv(cfg *Config) {
	if instanceID := os.Getenv("INSTANCE_ID"); instanceID != "" {
		cfg.OpenTelemetry.Service = instanceID
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.OpenTelemetry.Endpoint = endpoint
	}
	if protocol := os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"); protocol != "" {
		cfg.OpenTelemetry.Protocol = protocol
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
}

// loadFile 读取并解析 YAML 文件
func loadFile(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return Parse(data, cfg)
}

// Parse 解析 YAML 内容到已带默认值的配置上
func Parse(data []byte, cfg *Config) error {
	return yaml.Unmarshal(data, cfg)
}

// Get 返回已加载的配置
func Get() *Config {
	return config
}

func GetCronTasks() []cron.TaskConfig {
	if config != nil {
		return config.Tasks
	}

	return nil
}
