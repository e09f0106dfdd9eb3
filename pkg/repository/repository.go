package repository

import (
	"context"
	"reflect"

	"github.com/ettle/strcase"
	"github.com/pkg/errors"
)

// Repository 通用仓储接口
type Repository[T any] interface {
	TransactionExecutor
	Create(ctx context.Context, model *T) error
	// UpdateByID 按主键更新，cols 为空时只更新非零值字段
	UpdateByID(ctx context.Context, id any, model *T, cols ...string) error
	FindByID(ctx context.Context, id any) (*T, error)
	FindByKey(ctx context.Context, key string, value any) (*T, error)
	FindAll(ctx context.Context) ([]T, error)
	BatchCreate(ctx context.Context, models []T) error
	QueryBuilder() *QueryBuilder[T]
}

// GenericRepository 通用仓储实现
type GenericRepository[T any] struct {
	processor ORMProcessor
	idColumn  string
}

// NewRepository 创建仓储实例
func NewRepository[T any](processor ORMProcessor) Repository[T] {
	return &GenericRepository[T]{processor: processor, idColumn: idColumnOf[T]()}
}

// idColumnOf 从模型字段推断主键列名，ID 优先，其次 <模型名>ID
func idColumnOf[T any]() string {
	modelType := reflect.TypeOf((*T)(nil)).Elem()
	for _, name := range []string{"ID", "Id", modelType.Name() + "ID"} {
		if _, ok := modelType.FieldByName(name); ok {
			return strcase.ToSnake(name)
		}
	}
	return "id"
}

func (r *GenericRepository[T]) Create(ctx context.Context, model *T) error {
	return r.processor.Create(ctx, model)
}

func (r *GenericRepository[T]) UpdateByID(ctx context.Context, id any, model *T, cols ...string) error {
	return r.processor.UpdateByOption(ctx, model, &QueryOption{
		Filters: []Condition{{Field: r.idColumn, Op: OpEq, Value: id}},
		Cols:    cols,
	})
}

// FindByID 不存在时返回 ErrNotFound
func (r *GenericRepository[T]) FindByID(ctx context.Context, id any) (*T, error) {
	return r.FindByKey(ctx, r.idColumn, id)
}

// FindByKey 按列查询唯一记录
func (r *GenericRepository[T]) FindByKey(ctx context.Context, key string, value any) (*T, error) {
	rows, err := r.QueryBuilder().Eq(key, value).Limit(2).Find(ctx)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &rows[0], nil
	default:
		return nil, errors.Errorf("multiple records found for %s=%v", key, value)
	}
}

func (r *GenericRepository[T]) FindAll(ctx context.Context) ([]T, error) {
	return r.QueryBuilder().OrderBy(r.idColumn).Find(ctx)
}

func (r *GenericRepository[T]) BatchCreate(ctx context.Context, models []T) error {
	if len(models) == 0 {
		return nil
	}
	items := make([]any, len(models))
	for i := range models {
		items[i] = &models[i]
	}
	return r.processor.BatchCreate(ctx, items)
}

// QueryBuilder 获取链式查询构建器
func (r *GenericRepository[T]) QueryBuilder() *QueryBuilder[T] {
	return NewQueryBuilder[T](r.processor)
}

func (r *GenericRepository[T]) Transaction(ctx context.Context, fn TransactionFunc) (any, error) {
	return r.processor.Transaction(ctx, fn)
}

func (r *GenericRepository[T]) Begin(ctx context.Context) (context.Context, error) {
	return r.processor.Begin(ctx)
}

func (r *GenericRepository[T]) Commit(ctx context.Context) error {
	return r.processor.Commit(ctx)
}

func (r *GenericRepository[T]) Rollback(ctx context.Context) error {
	return r.processor.Rollback(ctx)
}
