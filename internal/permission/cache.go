package permission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache 权限缓存后端。
// 一致性依赖版本号：读取前取版本号拼进 key，失效只需自增版本号，
// 旧 key 不再可达，删除只用于回收空间。
type Cache interface {
	// Get 未命中返回 ok=false。decode 用于还原序列化后的值，进程内实现可忽略。
	Get(ctx context.Context, key string, decode func([]byte) (any, error)) (value any, ok bool, err error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Versions 批量读取版本号，不存在的视为 0
	Versions(ctx context.Context, names ...string) ([]uint64, error)
	// Bump 原子自增版本号
	Bump(ctx context.Context, name string) error
	// DeletePrefix 尽力删除前缀下的全部 key
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}

// 缓存表
const (
	tableRole  = "role"  // 角色权限，按 (角色, 范围)
	tableUser  = "user"  // 用户聚合权限
	tableScope = "scope" // 用户有效数据权限与可见部门
	tableDept  = "dept"  // 部门后代
)

const versionAll = "all"

// keyspace 负责 key 与版本号名称的拼装
type keyspace struct {
	prefix string
}

// versionName 版本号名称：prefix-ver:<name>，不落在任何数据前缀下，回收数据时不会被删除
func (k keyspace) versionName(name string) string {
	return fmt.Sprintf("%s-ver:%s", k.prefix, name)
}

func (k keyspace) subjectVersion(table, subject string) string {
	return k.versionName(table + ":" + subject)
}

// key 形如 rbac:role:7:3.1.2:MENU_ONLY，三段版本号依次为全局、表、主体
func (k keyspace) key(table, subject string, versions []uint64, qualifier string) string {
	key := fmt.Sprintf("%s:%s:%s:%d.%d.%d", k.prefix, table, subject, versions[0], versions[1], versions[2])
	if qualifier != "" {
		key += ":" + qualifier
	}
	return key
}

func (k keyspace) tablePrefix(table string) string {
	return fmt.Sprintf("%s:%s:", k.prefix, table)
}

func (k keyspace) allPrefix() string {
	return k.prefix + ":"
}

// decodeJSON 为 Get 构造指定类型的解码函数
func decodeJSON[T any]() func([]byte) (any, error) {
	return func(data []byte) (any, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
