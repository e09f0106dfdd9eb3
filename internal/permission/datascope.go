package permission

import (
	"context"
	"slices"

	"github.com/ayxworxfr/go_rbac/pkg/logger"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ScopeSource 有效数据权限的来源
type ScopeSource string

const (
	SourceNone       ScopeSource = "none"        // 用户不存在或停用
	SourceSuperAdmin ScopeSource = "super_admin" // 超级管理员
	SourceOverride   ScopeSource = "override"    // 用户级覆盖
	SourceRole       ScopeSource = "role"        // 角色数据权限并集
	SourceUserType   ScopeSource = "user_type"   // 用户类型规则
)

// EffectiveScope 用户的有效数据权限
type EffectiveScope struct {
	UserID        int64       `json:"user_id"`
	DeptID        int64       `json:"dept_id"`
	Scopes        []DataScope `json:"scopes"`
	CustomDeptIDs []int64     `json:"custom_dept_ids,omitempty"`
	Source        ScopeSource `json:"source"`
}

func (e *EffectiveScope) Has(ds DataScope) bool {
	return slices.Contains(e.Scopes, ds)
}

// DescendantResolver 部门后代查询，缓存层会替换默认实现
type DescendantResolver interface {
	DescendantDeptIDs(ctx context.Context, deptID int64) (IDSet, error)
}

type expanderDescendants struct {
	expander *Expander
	forest   Forest
}

func (d expanderDescendants) DescendantDeptIDs(ctx context.Context, deptID int64) (IDSet, error) {
	return d.expander.DescendantsOf(ctx, d.forest, deptID)
}

// DataScopeResolver 解析用户可见的部门范围
type DataScopeResolver struct {
	observer    RoleObserver
	users       UserLookup
	roles       RoleLookup
	depts       DeptHierarchy
	resolver    RolePermissionResolver
	descendants DescendantResolver
	rules       *ScopeRules
}

func NewDataScopeResolver(users UserLookup, roles RoleLookup, depts DeptHierarchy, resolver RolePermissionResolver,
	descendants DescendantResolver, rules *ScopeRules,
) *DataScopeResolver {
	if rules == nil {
		rules = DefaultScopeRules()
	}
	if descendants == nil {
		descendants = expanderDescendants{expander: NewExpander(nil), forest: deptForest{h: depts}}
	}
	return &DataScopeResolver{
		users:       users,
		roles:       roles,
		depts:       depts,
		resolver:    resolver,
		descendants: descendants,
		rules:       rules,
	}
}

// EffectiveDataScope 依次取：超级管理员 -> 用户覆盖 -> 角色数据权限并集 -> 用户类型规则
func (r *DataScopeResolver) EffectiveDataScope(ctx context.Context, userID int64) (*EffectiveScope, error) {
	ctx, span := startSpan(ctx, "rbac.EffectiveDataScope", attribute.Int64("user_id", userID))
	defer span.End()

	user, err := r.users.FindByID(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "find user %d", userID)
	}
	if !user.Active() {
		return &EffectiveScope{UserID: userID, Source: SourceNone}, nil
	}
	scope := &EffectiveScope{UserID: userID, DeptID: user.DeptID}

	admin, err := r.users.IsSuperAdmin(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "check super admin %d", userID)
	}
	if admin || user.IsAdmin {
		scope.Scopes, scope.Source = []DataScope{DataScopeAll}, SourceSuperAdmin
		return scope, nil
	}

	if user.DataScopeEnabled && user.DataScope.Valid() {
		scope.Source = SourceOverride
		return r.withUserScope(ctx, scope, user.DataScope)
	}

	roles, err := activeRolesOf(ctx, r.roles, userID)
	if err != nil {
		return nil, err
	}
	if r.observer != nil {
		r.observer.ObserveRoles(userID, lo.Map(roles, func(role Role, _ int) int64 { return role.ID }))
	}
	sets := make([]Set, 0, len(roles))
	for _, role := range roles {
		s, err := r.resolver.ResolveRolePermissions(ctx, role.ID, ScopeDataOnly)
		if err != nil {
			return nil, err
		}
		sets = append(sets, s)
	}
	if merged := MergeAll(sets, MergeUnion); len(merged.scopes) > 0 {
		scope.Scopes = merged.DataScopes()
		scope.CustomDeptIDs = merged.CustomDeptIDs()
		scope.Source = SourceRole
		return scope, nil
	}

	scope.Source = SourceUserType
	return r.withUserScope(ctx, scope, r.rules.For(user.UserType))
}

// withUserScope 用户级的单一数据权限，CUSTOM 时读取用户自定义部门
func (r *DataScopeResolver) withUserScope(ctx context.Context, scope *EffectiveScope, ds DataScope) (*EffectiveScope, error) {
	scope.Scopes = []DataScope{ds}
	if ds != DataScopeCustom {
		return scope, nil
	}
	ids, err := r.depts.CustomDeptIDsOfUser(ctx, scope.UserID)
	if err != nil {
		return nil, storeErr(err, "custom depts of user %d", scope.UserID)
	}
	if len(ids) == 0 {
		logger.Warn(ctx, "user has CUSTOM data scope without department list", zap.Int64("user_id", scope.UserID))
	}
	scope.CustomDeptIDs = NewIDSet(ids...).Slice()
	return scope, nil
}

// AccessibleDeptIDs 多个数据权限时取并集，ALL 直接返回全部部门
func (r *DataScopeResolver) AccessibleDeptIDs(ctx context.Context, scope *EffectiveScope) (IDSet, error) {
	if scope.Has(DataScopeAll) {
		ids, err := r.depts.AllIDs(ctx)
		if err != nil {
			return nil, storeErr(err, "all dept ids")
		}
		return NewIDSet(ids...), nil
	}

	result := IDSet{}
	for _, ds := range scope.Scopes {
		switch ds {
		case DataScopeDept:
			if scope.DeptID != 0 {
				result.Add(scope.DeptID)
			}
		case DataScopeDeptAndChild:
			if scope.DeptID == 0 {
				continue
			}
			result.Add(scope.DeptID)
			descendants, err := r.descendants.DescendantDeptIDs(ctx, scope.DeptID)
			if err != nil {
				return nil, err
			}
			for id := range descendants {
				result.Add(id)
			}
		case DataScopeCustom:
			result.Add(scope.CustomDeptIDs...)
		}
	}
	return result, nil
}

// HasAccessToDept SELF 不授予任何部门级访问
func (r *DataScopeResolver) HasAccessToDept(ctx context.Context, scope *EffectiveScope, deptID int64) (bool, error) {
	for _, ds := range scope.Scopes {
		switch ds {
		case DataScopeAll:
			return true, nil
		case DataScopeDept:
			if scope.DeptID != 0 && deptID == scope.DeptID {
				return true, nil
			}
		case DataScopeDeptAndChild:
			if scope.DeptID == 0 {
				continue
			}
			if deptID == scope.DeptID {
				return true, nil
			}
			descendants, err := r.descendants.DescendantDeptIDs(ctx, scope.DeptID)
			if err != nil {
				return false, err
			}
			if descendants.Has(deptID) {
				return true, nil
			}
		case DataScopeCustom:
			if slices.Contains(scope.CustomDeptIDs, deptID) {
				return true, nil
			}
		}
	}
	return false, nil
}
