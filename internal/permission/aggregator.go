package permission

import (
	"cmp"
	"context"
	"slices"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
)

// RolePermissionResolver 单角色解析。RoleResolver 与带缓存的 Engine 都实现该接口。
type RolePermissionResolver interface {
	ResolveRolePermissions(ctx context.Context, roleID int64, scope Scope) (Set, error)
}

// RoleObserver 在读取用户角色后、解析角色之前被调用，缓存层借此先登记成员关系
type RoleObserver interface {
	ObserveRoles(userID int64, roleIDs []int64)
}

// Aggregator 合并用户全部有效角色的权限
type Aggregator struct {
	observer        RoleObserver
	users           UserLookup
	roles           RoleLookup
	menus           MenuHierarchy
	resolver        RolePermissionResolver
	expander        *Expander
	inheritance     InheritanceStrategy
	merge           MergeStrategy
	adminPermission string
}

func NewAggregator(users UserLookup, roles RoleLookup, menus MenuHierarchy, resolver RolePermissionResolver,
	expander *Expander, inheritance InheritanceStrategy, merge MergeStrategy, adminPermission string,
) *Aggregator {
	return &Aggregator{
		users:           users,
		roles:           roles,
		menus:           menus,
		resolver:        resolver,
		expander:        expander,
		inheritance:     inheritance,
		merge:           merge,
		adminPermission: adminPermission,
	}
}

// ResolveUserPermissions 用户不存在或停用时返回空集合
func (a *Aggregator) ResolveUserPermissions(ctx context.Context, userID int64) (Set, error) {
	ctx, span := startSpan(ctx, "rbac.ResolveUserPermissions", attribute.Int64("user_id", userID))
	defer span.End()

	user, err := a.users.FindByID(ctx, userID)
	if err != nil {
		return Empty(), storeErr(err, "find user %d", userID)
	}
	if !user.Active() {
		return Empty(), nil
	}

	roles, err := activeRolesOf(ctx, a.roles, userID)
	if err != nil {
		return Empty(), err
	}
	roleIDs := lo.Map(roles, func(r Role, _ int) int64 { return r.ID })
	if a.observer != nil {
		a.observer.ObserveRoles(userID, roleIDs)
	}

	sets := make([]Set, 0, len(roles))
	for _, roleID := range roleIDs {
		s, err := a.resolver.ResolveRolePermissions(ctx, roleID, ScopeAll)
		if err != nil {
			return Empty(), err
		}
		sets = append(sets, s)
	}
	merged := MergeAll(sets, a.merge)

	// 多角色合并后再展开一次，保证父子授权分散在不同角色时结果一致
	if len(merged.menuIDs) > 0 {
		forest := newMenuForest(a.menus)
		expanded, err := a.expander.Expand(ctx, forest, NewIDSet(merged.MenuIDs()...), a.inheritance)
		if err != nil {
			return Empty(), err
		}
		ids, codes, err := collectMenus(ctx, forest, expanded, ScopeAll)
		if err != nil {
			return Empty(), err
		}
		merged = merged.withMenus(ids, codes)
	}

	admin, err := a.users.IsSuperAdmin(ctx, userID)
	if err != nil {
		return Empty(), storeErr(err, "check super admin %d", userID)
	}
	if (admin || user.IsAdmin) && a.adminPermission != "" {
		merged = merged.Union(NewSet(nil, []string{a.adminPermission}, nil, nil))
	}
	return merged, nil
}

// activeRolesOf 返回用户正常且未删除的角色，按 sort、id 排序
func activeRolesOf(ctx context.Context, lookup RoleLookup, userID int64) ([]Role, error) {
	roles, err := lookup.FindRolesOfUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "roles of user %d", userID)
	}
	active := lo.Filter(roles, func(r Role, _ int) bool { return r.Active() })
	active = lo.UniqBy(active, func(r Role) int64 { return r.ID })
	slices.SortFunc(active, func(x, y Role) int {
		if c := cmp.Compare(x.Sort, y.Sort); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})
	return active, nil
}

// grants 判断集合是否满足权限编码，超级权限匹配任意编码
func grants(s Set, adminPermission, code string) bool {
	if adminPermission != "" && s.HasPermission(adminPermission) {
		return true
	}
	return s.HasPermission(code)
}
