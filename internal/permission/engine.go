package permission

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayxworxfr/go_rbac/pkg/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Options 引擎配置
type Options struct {
	Inheritance     InheritanceStrategy // 菜单继承策略，默认 ADDITIVE
	Merge           MergeStrategy       // 多角色合并策略，默认 UNION
	AdminPermission string              // 超级权限编码，匹配任意权限
	ScopeRules      *ScopeRules
	TTL             time.Duration
	// TrackMembership 维护角色->用户反向索引，角色变更时只失效相关用户；
	// 关闭时角色变更清空整张用户表
	TrackMembership bool
	KeyPrefix       string
	CycleObserver   CycleObserver
}

func DefaultOptions() Options {
	return Options{
		Inheritance:     InheritanceAdditive,
		Merge:           MergeUnion,
		AdminPermission: "*:*:*",
		ScopeRules:      DefaultScopeRules(),
		TTL:             30 * time.Minute,
		TrackMembership: true,
		KeyPrefix:       "rbac",
	}
}

// Engine 带缓存的权限解析入口。
// 读取时先取版本号拼 key，失效时自增版本号；读到新版本号的请求一定重新计算。
type Engine struct {
	cache           Cache
	keys            keyspace
	ttl             time.Duration
	adminPermission string
	trackMembership bool

	menus      MenuHierarchy
	depts      DeptHierarchy
	expander   *Expander
	roles      *RoleResolver
	aggregator *Aggregator
	scopes     *DataScopeResolver

	flight  singleflight.Group
	members sync.Map // roleID -> *sync.Map(userID -> struct{})
	bypass  atomic.Bool
	metrics *metrics
}

func NewEngine(users UserLookup, roles RoleLookup, menus MenuHierarchy, depts DeptHierarchy, cache Cache, opts Options) *Engine {
	if opts.Inheritance == "" {
		opts.Inheritance = InheritanceAdditive
	}
	if opts.Merge == "" {
		opts.Merge = MergeUnion
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "rbac"
	}
	if cache == nil {
		cache = NewMemoryCache(time.Minute)
	}

	e := &Engine{
		cache:           cache,
		keys:            keyspace{prefix: opts.KeyPrefix},
		ttl:             opts.TTL,
		adminPermission: opts.AdminPermission,
		trackMembership: opts.TrackMembership,
		menus:           menus,
		depts:           depts,
		expander:        NewExpander(opts.CycleObserver),
		metrics:         newMetrics(),
	}
	e.roles = NewRoleResolver(roles, menus, depts, e.expander, opts.Inheritance)
	e.aggregator = NewAggregator(users, roles, menus, e, e.expander, opts.Inheritance, opts.Merge, opts.AdminPermission)
	e.scopes = NewDataScopeResolver(users, roles, depts, e, e, opts.ScopeRules)
	if e.trackMembership {
		e.aggregator.observer = e
		e.scopes.observer = e
	}
	return e
}

// readThrough 读穿缓存。缓存不可用时直接计算，不影响结果正确性。
func readThrough[T any](ctx context.Context, e *Engine, table, subject, qualifier string, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if e.bypass.Load() {
		return load(ctx)
	}

	versions, err := e.cache.Versions(ctx,
		e.keys.versionName(versionAll), e.keys.versionName(table), e.keys.subjectVersion(table, subject))
	if err != nil {
		logger.Warn(ctx, "permission cache unavailable, resolving directly", zap.Error(err), zap.String("table", table))
		return load(ctx)
	}
	key := e.keys.key(table, subject, versions, qualifier)

	if v, ok, err := e.cache.Get(ctx, key, decodeJSON[T]()); err != nil {
		logger.Warn(ctx, "permission cache get failed", zap.Error(err), zap.String("key", key))
	} else if ok {
		if typed, ok := v.(T); ok {
			e.metrics.hit(ctx, table)
			return typed, nil
		}
	}
	e.metrics.miss(ctx, table)

	// key 含版本号，失效后的新请求不会合并到旧的计算上。
	// 计算与首个调用方的取消解耦，合并进来的调用方各自检查自己的 ctx
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := e.flight.Do(key, func() (any, error) {
		value, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		if err := e.cache.Set(ctx, key, value, e.ttl); err != nil {
			logger.Warn(ctx, "permission cache set failed", zap.Error(err), zap.String("key", key))
		}
		return value, nil
	})
	if err != nil {
		return zero, err
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	return v.(T), nil
}

func idSubject(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ResolveRolePermissions 按 (角色, 范围) 缓存
func (e *Engine) ResolveRolePermissions(ctx context.Context, roleID int64, scope Scope) (Set, error) {
	return readThrough(ctx, e, tableRole, idSubject(roleID), scope.String(), func(ctx context.Context) (Set, error) {
		return e.roles.ResolveRolePermissions(ctx, roleID, scope)
	})
}

func (e *Engine) ResolveUserPermissions(ctx context.Context, userID int64) (Set, error) {
	return readThrough(ctx, e, tableUser, idSubject(userID), "", func(ctx context.Context) (Set, error) {
		return e.aggregator.ResolveUserPermissions(ctx, userID)
	})
}

func (e *Engine) HasPermission(ctx context.Context, userID int64, code string) (bool, error) {
	set, err := e.ResolveUserPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return grants(set, e.adminPermission, code), nil
}

// HasAnyPermission 任意一个编码满足即为 true，空列表为 false
func (e *Engine) HasAnyPermission(ctx context.Context, userID int64, codes ...string) (bool, error) {
	set, err := e.ResolveUserPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return lo.SomeBy(codes, func(code string) bool { return grants(set, e.adminPermission, code) }), nil
}

// HasAllPermissions 全部编码满足才为 true，空列表为 true
func (e *Engine) HasAllPermissions(ctx context.Context, userID int64, codes ...string) (bool, error) {
	set, err := e.ResolveUserPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return lo.EveryBy(codes, func(code string) bool { return grants(set, e.adminPermission, code) }), nil
}

// HasMenuPermission 超级管理员可访问任意正常菜单
func (e *Engine) HasMenuPermission(ctx context.Context, userID, menuID int64) (bool, error) {
	set, err := e.ResolveUserPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	if set.HasMenu(menuID) {
		return true, nil
	}
	if e.adminPermission == "" || !set.HasPermission(e.adminPermission) {
		return false, nil
	}
	menu, err := e.menus.FindByID(ctx, menuID)
	if err != nil {
		return false, storeErr(err, "find menu %d", menuID)
	}
	return menu.Active(), nil
}

// EffectiveDataScope 返回副本，调用方可以自由修改
func (e *Engine) EffectiveDataScope(ctx context.Context, userID int64) (*EffectiveScope, error) {
	scope, err := readThrough(ctx, e, tableScope, idSubject(userID), "", func(ctx context.Context) (EffectiveScope, error) {
		s, err := e.scopes.EffectiveDataScope(ctx, userID)
		if err != nil {
			return EffectiveScope{}, err
		}
		return *s, nil
	})
	if err != nil {
		return nil, err
	}
	scope.Scopes = slices.Clone(scope.Scopes)
	scope.CustomDeptIDs = slices.Clone(scope.CustomDeptIDs)
	return &scope, nil
}

func (e *Engine) AccessibleDeptIDs(ctx context.Context, userID int64) (IDSet, error) {
	ids, err := readThrough(ctx, e, tableScope, idSubject(userID), "depts", func(ctx context.Context) ([]int64, error) {
		scope, err := e.EffectiveDataScope(ctx, userID)
		if err != nil {
			return nil, err
		}
		set, err := e.scopes.AccessibleDeptIDs(ctx, scope)
		if err != nil {
			return nil, err
		}
		return set.Slice(), nil
	})
	if err != nil {
		return nil, err
	}
	return NewIDSet(ids...), nil
}

func (e *Engine) HasAccessToDept(ctx context.Context, userID, deptID int64) (bool, error) {
	scope, err := e.EffectiveDataScope(ctx, userID)
	if err != nil {
		return false, err
	}
	return e.scopes.HasAccessToDept(ctx, scope, deptID)
}

// DescendantDeptIDs 部门后代，按部门缓存，部门树变更时整表失效
func (e *Engine) DescendantDeptIDs(ctx context.Context, deptID int64) (IDSet, error) {
	ids, err := readThrough(ctx, e, tableDept, idSubject(deptID), "", func(ctx context.Context) ([]int64, error) {
		set, err := e.expander.DescendantsOf(ctx, deptForest{h: e.depts}, deptID)
		if err != nil {
			return nil, err
		}
		return set.Slice(), nil
	})
	if err != nil {
		return nil, err
	}
	return NewIDSet(ids...), nil
}

// ObserveRoles 登记用户当前的角色
func (e *Engine) ObserveRoles(userID int64, roleIDs []int64) {
	for _, roleID := range roleIDs {
		v, _ := e.members.LoadOrStore(roleID, &sync.Map{})
		v.(*sync.Map).Store(userID, struct{}{})
	}
}

func (e *Engine) membersOf(roleID int64) []int64 {
	v, ok := e.members.Load(roleID)
	if !ok {
		return nil
	}
	var users []int64
	v.(*sync.Map).Range(func(key, _ any) bool {
		users = append(users, key.(int64))
		return true
	})
	return users
}

// AuditReport 层级巡检结果
type AuditReport struct {
	MenuCycles int
	DeptCycles int
}

// AuditHierarchy 回溯每个节点的祖先链以发现环。菜单存储需实现 Enumerable 才会被巡检。
func (e *Engine) AuditHierarchy(ctx context.Context) (AuditReport, error) {
	var report AuditReport
	deptIDs, err := e.depts.AllIDs(ctx)
	if err != nil {
		return report, storeErr(err, "all dept ids")
	}
	if report.DeptCycles, err = e.expander.Audit(ctx, deptForest{h: e.depts}, deptIDs); err != nil {
		return report, err
	}

	enumerable, ok := e.menus.(Enumerable)
	if !ok {
		return report, nil
	}
	menuIDs, err := enumerable.AllIDs(ctx)
	if err != nil {
		return report, storeErr(err, "all menu ids")
	}
	report.MenuCycles, err = e.expander.Audit(ctx, newMenuForest(e.menus), menuIDs)
	return report, err
}

func (e *Engine) Close() error {
	return e.cache.Close()
}

// 以下为失效入口，由写路径在每次变更后调用。
// 返回 nil 表示后续读取一定看到新数据；定向失效失败时退化为清空全部缓存。

func (e *Engine) OnUserRolesChanged(ctx context.Context, userID int64) error {
	return e.invalidate(ctx, "user_roles", e.userVersions(userID, true), nil)
}

// OnUserChanged 用户状态、部门、数据权限覆盖或自定义部门变更
func (e *Engine) OnUserChanged(ctx context.Context, userID int64) error {
	return e.invalidate(ctx, "user", e.userVersions(userID, true), nil)
}

func (e *Engine) OnRoleMenusChanged(ctx context.Context, roleID int64) error {
	names, tables := e.roleVersions(roleID, false)
	return e.invalidate(ctx, "role_menus", names, tables)
}

func (e *Engine) OnRoleDeptsChanged(ctx context.Context, roleID int64) error {
	names, tables := e.roleVersions(roleID, true)
	return e.invalidate(ctx, "role_depts", names, tables)
}

// OnRoleChanged 角色状态、数据权限或删除
func (e *Engine) OnRoleChanged(ctx context.Context, roleID int64) error {
	names, tables := e.roleVersions(roleID, true)
	return e.invalidate(ctx, "role", names, tables)
}

func (e *Engine) OnMenuTreeChanged(ctx context.Context) error {
	return e.invalidate(ctx, "menu_tree", nil, []string{tableRole, tableUser})
}

func (e *Engine) OnDeptTreeChanged(ctx context.Context) error {
	return e.invalidate(ctx, "dept_tree", nil, []string{tableDept, tableScope})
}

// OnHierarchyChanged 菜单树与部门树都可能变化
func (e *Engine) OnHierarchyChanged(ctx context.Context) error {
	return e.invalidate(ctx, "hierarchy", nil, []string{tableRole, tableUser, tableDept, tableScope})
}

// EvictAll 管理端刷新缓存。成功后解除降级状态。
func (e *Engine) EvictAll(ctx context.Context) error {
	e.metrics.evict(ctx, "all")
	if err := e.cache.Bump(ctx, e.keys.versionName(versionAll)); err != nil {
		e.bypass.Store(true)
		logger.Error(ctx, "failed to evict permission cache, bypassing cache", zap.Error(err))
		return errors.Wrap(err, "failed to evict permission cache")
	}
	e.bypass.Store(false)
	// 成员索引保留：自增之后开始的读取已登记的成员不能丢，多余的成员只会多失效一次
	e.purge(ctx, e.keys.allPrefix())
	return nil
}

func (e *Engine) userVersions(userID int64, withScope bool) []string {
	names := []string{e.keys.subjectVersion(tableUser, idSubject(userID))}
	if withScope {
		names = append(names, e.keys.subjectVersion(tableScope, idSubject(userID)))
	}
	return names
}

// roleVersions 角色自身加上持有该角色的用户；未维护成员索引时改为整表失效
func (e *Engine) roleVersions(roleID int64, withScope bool) ([]string, []string) {
	names := []string{e.keys.subjectVersion(tableRole, idSubject(roleID))}
	if !e.trackMembership {
		tables := []string{tableUser}
		if withScope {
			tables = append(tables, tableScope)
		}
		return names, tables
	}
	for _, userID := range e.membersOf(roleID) {
		names = append(names, e.userVersions(userID, withScope)...)
	}
	return names, nil
}

// invalidate 自增主体版本号与表版本号，任一失败则清空全部
func (e *Engine) invalidate(ctx context.Context, reason string, subjects, tables []string) error {
	e.metrics.evict(ctx, reason)
	for _, name := range subjects {
		if err := e.cache.Bump(ctx, name); err != nil {
			return e.evictAllAfter(ctx, reason, err)
		}
	}
	for _, table := range tables {
		if err := e.cache.Bump(ctx, e.keys.versionName(table)); err != nil {
			return e.evictAllAfter(ctx, reason, err)
		}
	}
	// 主体级的旧条目由 TTL 回收，整表失效时顺带回收空间
	for _, table := range tables {
		e.purge(ctx, e.keys.tablePrefix(table))
	}
	return nil
}

func (e *Engine) evictAllAfter(ctx context.Context, reason string, cause error) error {
	logger.Warn(ctx, "targeted permission eviction failed, clearing whole cache",
		zap.String("reason", reason), zap.Error(cause))
	if err := e.EvictAll(ctx); err != nil {
		return multierror.Append(cause, err).ErrorOrNil()
	}
	return nil
}

func (e *Engine) purge(ctx context.Context, prefix string) {
	if err := e.cache.DeletePrefix(ctx, prefix); err != nil {
		logger.Debug(ctx, "permission cache purge failed", zap.String("prefix", prefix), zap.Error(err))
	}
}
