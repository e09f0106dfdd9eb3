package repository

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var IsRecordSQLEvent = true

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// IsNotFound 判断是否为记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// QueryOption 查询选项
type QueryOption struct {
	OrderBy string
	Limit   int
	Offset  int
	Filters []Condition
	Cols    []string // 更新时显式指定的列，允许写入零值
}

// TransactionFunc 事务内执行的函数，ctx 中携带事务会话
type TransactionFunc func(ctx context.Context) (any, error)

// TransactionExecutor 定义事务执行接口
type TransactionExecutor interface {
	// Begin 开始事务，返回携带事务会话的上下文
	Begin(ctx context.Context) (context.Context, error)
	Commit(tx context.Context) error
	Rollback(tx context.Context) error

	// Transaction 以事务方式执行 fn，出错或 panic 时回滚。
	// ctx 中已存在事务时直接复用，嵌套调用共享同一个事务。
	Transaction(ctx context.Context, fn TransactionFunc) (any, error)
}

// ORMProcessor 通用 ORM 操作，具体实现负责映射到底层 ORM
type ORMProcessor interface {
	Create(ctx context.Context, model any) error
	// UpdateByOption 按条件更新，opts.Cols 为空时只更新非零值字段
	UpdateByOption(ctx context.Context, model any, opts *QueryOption) error
	DeleteByOption(ctx context.Context, model any, opts *QueryOption) error
	// Query 返回的 Data 为 model 元素类型的切片
	Query(ctx context.Context, model any, opts *QueryOption) (*QueryResult, error)
	Count(ctx context.Context, model any, opts *QueryOption) (int64, error)
	BatchCreate(ctx context.Context, models []any) error

	TransactionExecutor
}

// QueryResult 查询结果
type QueryResult struct {
	Data any
}

// 自定义上下文键类型，避免与其他包的键冲突
type transactionKey struct{}

// 事务键实例
var TransactionKeyInstance = transactionKey{}

// RecordDbEvent 将 SQL 执行信息记录为当前 span 的事件
func RecordDbEvent(ctx context.Context, info map[string]any) {
	if !IsRecordSQLEvent {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	attributes := make([]attribute.KeyValue, 0, len(info))
	for k, v := range info {
		attributes = append(attributes, attribute.String(k, fmt.Sprintf("%v", v)))
	}
	span.AddEvent("db_execute_info", trace.WithAttributes(attributes...))
}
