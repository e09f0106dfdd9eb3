package tests

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/ayxworxfr/go_rbac/internal/config"
	"github.com/ayxworxfr/go_rbac/pkg/logger"
)

// SQLiteDatabase 返回指向临时文件的 sqlite3 配置，测试结束后文件随目录删除。
// 单连接避免 sqlite 写锁冲突，事务外的查询必须在事务结束后进行。
func SQLiteDatabase(t testing.TB) config.DatabaseConfig {
	t.Helper()
	return config.DatabaseConfig{
		Driver:       "sqlite3",
		DBName:       filepath.Join(t.TempDir(), "rbac.db"),
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		SyncSchema:   true,
	}
}

// InitLogger 将全局日志器替换为输出到 t.Log 的日志器
func InitLogger(t testing.TB) {
	t.Helper()
	prev := logger.L()
	logger.SetLogger(zaptest.NewLogger(t))
	t.Cleanup(func() { logger.SetLogger(prev) })
}
