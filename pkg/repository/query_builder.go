package repository

import (
	"context"

	"github.com/pkg/errors"
)

// QueryBuilder 链式查询构建器
type QueryBuilder[T any] struct {
	processor  ORMProcessor
	conditions []Condition
	orderBy    string
	limit      int
	offset     int
}

// Condition 查询条件
type Condition struct {
	Field string
	Op    Op
	Value any
}

func NewQueryBuilder[T any](processor ORMProcessor) *QueryBuilder[T] {
	return &QueryBuilder[T]{processor: processor}
}

func (qb *QueryBuilder[T]) OrderBy(fields string) *QueryBuilder[T] {
	qb.orderBy = fields
	return qb
}

func (qb *QueryBuilder[T]) Limit(limit int) *QueryBuilder[T] {
	qb.limit = limit
	return qb
}

func (qb *QueryBuilder[T]) Offset(offset int) *QueryBuilder[T] {
	qb.offset = offset
	return qb
}

func (qb *QueryBuilder[T]) options() *QueryOption {
	return &QueryOption{
		OrderBy: qb.orderBy,
		Limit:   qb.limit,
		Offset:  qb.offset,
		Filters: qb.conditions,
	}
}

// Find 执行查询并返回列表
func (qb *QueryBuilder[T]) Find(ctx context.Context) ([]T, error) {
	result, err := qb.processor.Query(ctx, new(T), qb.options())
	if err != nil {
		return nil, err
	}
	data, ok := result.Data.([]T)
	if !ok {
		return nil, errors.New("invalid result type")
	}
	return data, nil
}

// First 返回第一条记录，不存在时返回 ErrNotFound
func (qb *QueryBuilder[T]) First(ctx context.Context) (*T, error) {
	result, err := qb.Limit(1).Find(ctx)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return &result[0], nil
}

func (qb *QueryBuilder[T]) Count(ctx context.Context) (int64, error) {
	return qb.processor.Count(ctx, new(T), &QueryOption{Filters: qb.conditions})
}

func (qb *QueryBuilder[T]) Delete(ctx context.Context) error {
	if len(qb.conditions) == 0 {
		return errors.New("refusing to delete without conditions")
	}
	return qb.processor.DeleteByOption(ctx, new(T), qb.options())
}

// Update 按条件更新，cols 指定时允许写入零值
func (qb *QueryBuilder[T]) Update(ctx context.Context, model *T, cols ...string) error {
	if len(qb.conditions) == 0 {
		return errors.New("refusing to update without conditions")
	}
	opts := qb.options()
	opts.Cols = cols
	return qb.processor.UpdateByOption(ctx, model, opts)
}

func (qb *QueryBuilder[T]) where(field string, op Op, value any) *QueryBuilder[T] {
	qb.conditions = append(qb.conditions, Condition{Field: field, Op: op, Value: value})
	return qb
}

func (qb *QueryBuilder[T]) Eq(field string, value any) *QueryBuilder[T] {
	return qb.where(field, OpEq, value)
}

func (qb *QueryBuilder[T]) Ne(field string, value any) *QueryBuilder[T] {
	return qb.where(field, OpNe, value)
}

// In 空切片时不会匹配任何记录
func (qb *QueryBuilder[T]) In(field string, value any) *QueryBuilder[T] {
	return qb.where(field, OpIn, value)
}

func (qb *QueryBuilder[T]) NotIn(field string, value any) *QueryBuilder[T] {
	return qb.where(field, OpNotIn, value)
}

func (qb *QueryBuilder[T]) Like(field string, value any) *QueryBuilder[T] {
	return qb.where(field, OpLike, value)
}

type Op string

func (op Op) String() string {
	return string(op)
}

const (
	OpLike  Op = "like"
	OpEq    Op = "eq"
	OpNe    Op = "ne"
	OpIn    Op = "in"
	OpNotIn Op = "notin"
)
