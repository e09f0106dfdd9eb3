package repository

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"xorm.io/xorm"

	"github.com/ayxworxfr/go_rbac/pkg/logger"
)

// XormProcessor xorm处理器实现
type XormProcessor struct {
	engine *xorm.Engine
}

// NewXormProcessor 创建xorm处理器
func NewXormProcessor(engine *xorm.Engine) *XormProcessor {
	return &XormProcessor{engine: engine}
}

// txSession 返回上下文中的事务会话
func txSession(ctx context.Context) (*xorm.Session, bool) {
	session, ok := ctx.Value(TransactionKeyInstance).(*xorm.Session)
	return session, ok && session != nil
}

// withSession 在事务会话上执行 fn；不在事务中时使用一次性会话并在结束后关闭
func (p *XormProcessor) withSession(ctx context.Context, fn func(*xorm.Session) (any, error)) (any, error) {
	session, ok := txSession(ctx)
	if !ok {
		session = p.engine.NewSession()
		defer session.Close()
	}
	session = session.Context(ctx)

	start := time.Now()
	result, err := fn(session)
	sql, args := session.LastSQL()
	info := map[string]any{
		"sql":      sql,
		"duration": time.Since(start),
	}
	if len(args) > 0 {
		info["args"] = args
	}
	RecordDbEvent(ctx, info)
	return result, err
}

// Create 实现ORM创建
func (p *XormProcessor) Create(ctx context.Context, model any) error {
	_, err := p.withSession(ctx, func(session *xorm.Session) (any, error) {
		return session.Insert(model)
	})
	return err
}

// UpdateByOption 根据查询选项更新记录
func (p *XormProcessor) UpdateByOption(ctx context.Context, model any, opts *QueryOption) error {
	_, err := p.withSession(ctx, func(session *xorm.Session) (any, error) {
		session = applyConditions(ctx, session, opts.Filters)
		if len(opts.Cols) > 0 {
			session = session.Cols(opts.Cols...)
		}
		return session.Update(model)
	})
	return err
}

// DeleteByOption 根据查询选项删除记录
func (p *XormProcessor) DeleteByOption(ctx context.Context, model any, opts *QueryOption) error {
	_, err := p.withSession(ctx, func(session *xorm.Session) (any, error) {
		return applyConditions(ctx, session, opts.Filters).Delete(model)
	})
	return err
}

// Query 实现ORM查询
func (p *XormProcessor) Query(ctx context.Context, model any, opts *QueryOption) (*QueryResult, error) {
	slicePtr := reflect.New(reflect.SliceOf(reflect.TypeOf(model).Elem()))
	_, err := p.withSession(ctx, func(session *xorm.Session) (any, error) {
		session = applyConditions(ctx, session, opts.Filters)
		if opts.OrderBy != "" {
			session = session.OrderBy(opts.OrderBy)
		}
		if opts.Limit > 0 {
			session = session.Limit(opts.Limit, opts.Offset)
		}
		return nil, session.Find(slicePtr.Interface())
	})
	if err != nil {
		return nil, err
	}
	return &QueryResult{Data: slicePtr.Elem().Interface()}, nil
}

// Count 统计满足条件的记录数
func (p *XormProcessor) Count(ctx context.Context, model any, opts *QueryOption) (int64, error) {
	total, err := p.withSession(ctx, func(session *xorm.Session) (any, error) {
		return applyConditions(ctx, session, opts.Filters).Count(model)
	})
	if err != nil {
		return 0, err
	}
	return total.(int64), nil
}

// BatchCreate 批量插入，不在事务中时自动开启事务
func (p *XormProcessor) BatchCreate(ctx context.Context, models []any) error {
	_, err := p.Transaction(ctx, func(txCtx context.Context) (any, error) {
		return p.withSession(txCtx, func(session *xorm.Session) (any, error) {
			for _, model := range models {
				if _, err := session.Insert(model); err != nil {
					return nil, err
				}
			}
			return len(models), nil
		})
	})
	return err
}

func applyConditions(ctx context.Context, session *xorm.Session, conds []Condition) *xorm.Session {
	for _, cond := range conds {
		session = applyCondition(ctx, session, cond)
	}
	return session
}

// 辅助函数：应用查询条件
func applyCondition(ctx context.Context, session *xorm.Session, cond Condition) *xorm.Session {
	switch cond.Op {
	case OpIn, OpNotIn:
		values, ok := cond.Value.([]any)
		if !ok {
			v := reflect.ValueOf(cond.Value)
			if v.Kind() != reflect.Slice {
				logger.Warn(ctx, "invalid type for IN condition", zap.String("field", cond.Field), zap.String("type", fmt.Sprintf("%T", cond.Value)))
				return session
			}
			values = make([]any, v.Len())
			for i := 0; i < v.Len(); i++ {
				values[i] = v.Index(i).Interface()
			}
		}
		if cond.Op == OpNotIn {
			return session.NotIn(cond.Field, values...)
		}
		return session.In(cond.Field, values...)
	case OpEq:
		return session.Where(cond.Field+" = ?", cond.Value)
	case OpNe:
		return session.Where(cond.Field+" != ?", cond.Value)
	case OpLike:
		return session.Where(cond.Field+" LIKE ?", fmt.Sprintf("%%%s%%", cond.Value))
	default:
		return session
	}
}

// Begin 开始一个数据库事务
func (p *XormProcessor) Begin(ctx context.Context) (context.Context, error) {
	session := p.engine.NewSession()
	if err := session.Begin(); err != nil {
		session.Close()
		return ctx, errors.Wrap(err, "begin transaction")
	}
	return context.WithValue(ctx, TransactionKeyInstance, session), nil
}

// Commit 提交事务
func (p *XormProcessor) Commit(ctx context.Context) error {
	session, ok := txSession(ctx)
	if !ok {
		return errors.New("transaction session not found in context")
	}
	defer session.Close()
	return session.Commit()
}

// Rollback 回滚事务
func (p *XormProcessor) Rollback(ctx context.Context) error {
	session, ok := txSession(ctx)
	if !ok {
		return errors.New("transaction session not found in context")
	}
	defer session.Close()
	return session.Rollback()
}

// Transaction 执行事务(支持事务嵌套)
func (p *XormProcessor) Transaction(ctx context.Context, fn TransactionFunc) (any, error) {
	if _, ok := txSession(ctx); ok {
		return fn(ctx)
	}

	txCtx, err := p.Begin(ctx)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = p.Rollback(txCtx)
			panic(r)
		}
	}()

	result, err := fn(txCtx)
	if err != nil {
		if rollbackErr := p.Rollback(txCtx); rollbackErr != nil {
			logger.Error(ctx, "rollback failed", zap.Error(rollbackErr))
		}
		return nil, err
	}

	if err := p.Commit(txCtx); err != nil {
		return nil, errors.Wrap(err, "commit transaction")
	}
	return result, nil
}
