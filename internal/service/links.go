package service

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/ayxworxfr/go_rbac/pkg/repository"
)

// linkTable 多对多关联表的通用操作，owner 为归属方列，target 为被关联方列
type linkTable[T any] struct {
	repo     repository.Repository[T]
	owner    string
	target   string
	build    func(ownerID, targetID int64) T
	targetOf func(T) int64
}

func (l linkTable[T]) targets(ctx context.Context, ownerID int64) ([]int64, error) {
	rows, err := l.repo.QueryBuilder().Eq(l.owner, ownerID).Find(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s of %s=%d", l.target, l.owner, ownerID)
	}
	return lo.Map(rows, func(row T, _ int) int64 { return l.targetOf(row) }), nil
}

// replace 使 ownerID 的关联恰好等于 ids，只增删差异部分
func (l linkTable[T]) replace(ctx context.Context, ownerID int64, ids []int64) error {
	existing, err := l.targets(ctx, ownerID)
	if err != nil {
		return err
	}
	if err := l.remove(ctx, ownerID, lo.Without(existing, ids...)); err != nil {
		return err
	}
	return l.insert(ctx, ownerID, lo.Without(lo.Uniq(ids), existing...))
}

// add 追加关联，已存在的忽略
func (l linkTable[T]) add(ctx context.Context, ownerID int64, ids []int64) error {
	existing, err := l.targets(ctx, ownerID)
	if err != nil {
		return err
	}
	return l.insert(ctx, ownerID, lo.Without(lo.Uniq(ids), existing...))
}

func (l linkTable[T]) insert(ctx context.Context, ownerID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	rows := lo.Map(ids, func(id int64, _ int) T { return l.build(ownerID, id) })
	return errors.Wrapf(l.repo.BatchCreate(ctx, rows), "insert %s of %s=%d", l.target, l.owner, ownerID)
}

func (l linkTable[T]) remove(ctx context.Context, ownerID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := l.repo.QueryBuilder().Eq(l.owner, ownerID).In(l.target, ids).Delete(ctx)
	return errors.Wrapf(err, "delete %s of %s=%d", l.target, l.owner, ownerID)
}

// clearOwner 删除 ownerID 的全部关联
func (l linkTable[T]) clearOwner(ctx context.Context, ownerID int64) error {
	err := l.repo.QueryBuilder().Eq(l.owner, ownerID).Delete(ctx)
	return errors.Wrapf(err, "clear %s=%d", l.owner, ownerID)
}

// clearTarget 删除指向 targetID 的全部关联
func (l linkTable[T]) clearTarget(ctx context.Context, targetID int64) error {
	err := l.repo.QueryBuilder().Eq(l.target, targetID).Delete(ctx)
	return errors.Wrapf(err, "clear %s=%d", l.target, targetID)
}
