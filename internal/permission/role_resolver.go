package permission

import (
	"context"
	"strings"

	"github.com/ayxworxfr/go_rbac/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RoleResolver 计算单个角色的权限集合
type RoleResolver struct {
	roles    RoleLookup
	menus    MenuHierarchy
	depts    DeptHierarchy
	expander *Expander
	strategy InheritanceStrategy
}

func NewRoleResolver(roles RoleLookup, menus MenuHierarchy, depts DeptHierarchy, expander *Expander, strategy InheritanceStrategy) *RoleResolver {
	return &RoleResolver{
		roles:    roles,
		menus:    menus,
		depts:    depts,
		expander: expander,
		strategy: strategy,
	}
}

// ResolveRolePermissions 角色不存在、停用或已删除时返回空集合
func (r *RoleResolver) ResolveRolePermissions(ctx context.Context, roleID int64, scope Scope) (Set, error) {
	ctx, span := startSpan(ctx, "rbac.ResolveRolePermissions",
		attribute.Int64("role_id", roleID), attribute.String("scope", scope.String()))
	defer span.End()

	role, err := r.roles.FindByID(ctx, roleID)
	if err != nil {
		return Empty(), storeErr(err, "find role %d", roleID)
	}
	if !role.Active() {
		return Empty(), nil
	}

	scopes, customDeptIDs, err := r.dataScopeOf(ctx, role)
	if err != nil {
		return Empty(), err
	}
	base := NewSet(nil, nil, scopes, customDeptIDs)
	if scope == ScopeDataOnly {
		return base, nil
	}

	menus, err := r.menus.MenusOfRole(ctx, roleID)
	if err != nil {
		return Empty(), storeErr(err, "menus of role %d", roleID)
	}
	// 先按完整授权展开再按类型过滤，保证各范围的结果都是 ScopeAll 的子集
	granted := IDSet{}
	for i := range menus {
		if menus[i].Active() {
			granted.Add(menus[i].ID)
		}
	}
	// 没有菜单授权的角色不携带任何权限，数据权限仍可通过 ScopeDataOnly 取得
	if len(granted) == 0 {
		return Empty(), nil
	}

	forest := newMenuForest(r.menus)
	expanded, err := r.expander.Expand(ctx, forest, granted, r.strategy)
	if err != nil {
		return Empty(), err
	}
	ids, codes, err := collectMenus(ctx, forest, expanded, scope)
	if err != nil {
		return Empty(), err
	}
	return base.withMenus(ids, codes), nil
}

func (r *RoleResolver) dataScopeOf(ctx context.Context, role *Role) ([]DataScope, []int64, error) {
	if !role.DataScope.Valid() {
		return nil, nil, nil
	}
	if role.DataScope != DataScopeCustom {
		return []DataScope{role.DataScope}, nil, nil
	}
	deptIDs, err := r.depts.DeptIDsOfRole(ctx, role.ID)
	if err != nil {
		return nil, nil, storeErr(err, "depts of role %d", role.ID)
	}
	if len(deptIDs) == 0 {
		logger.Warn(ctx, "role has CUSTOM data scope without department list",
			zap.Int64("role_id", role.ID), zap.String("role_key", role.Key))
	}
	return []DataScope{DataScopeCustom}, deptIDs, nil
}

// collectMenus 对展开结果再次过滤（正常、未删除、类型匹配），并收集权限编码
func collectMenus(ctx context.Context, forest *menuForest, ids IDSet, scope Scope) (IDSet, []string, error) {
	kept := IDSet{}
	var codes []string
	for id := range ids {
		m, err := forest.menu(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if !m.Active() || !scope.Includes(m.Type) {
			continue
		}
		kept.Add(id)
		if code := strings.TrimSpace(m.Perms); code != "" {
			codes = append(codes, code)
		}
	}
	return kept, codes, nil
}
