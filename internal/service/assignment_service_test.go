package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayxworxfr/go_rbac/internal/config"
	"github.com/ayxworxfr/go_rbac/internal/dao"
	"github.com/ayxworxfr/go_rbac/internal/domain/models"
	"github.com/ayxworxfr/go_rbac/internal/permission"
	"github.com/ayxworxfr/go_rbac/pkg/repository"
	"github.com/ayxworxfr/go_rbac/pkg/tests"
)

type fixture struct {
	repos  *dao.Repos
	engine *permission.Engine
	svc    *AssignmentService
}

// newFixture 菜单 1 目录 -> 2 菜单(x:list) -> 3 按钮(x:add)/4 按钮(x:edit)；
// 部门 1 -> 2 -> 3；角色 1(本部门) 2(自定义)；用户 7 位于部门 2
func newFixture(t *testing.T) *fixture {
	t.Helper()
	tests.InitLogger(t)
	engine, err := dao.InitDB(tests.SQLiteDatabase(t), "error")
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	repos := dao.NewRepos(engine)
	ctx := context.Background()

	normal := func(status, del *string) { *status, *del = models.StatusNormal, models.DelFlagExist }
	menus := []models.Menu{
		{ID: 1, MenuName: "系统", MenuType: models.MenuTypeDirectory},
		{ID: 2, ParentID: 1, MenuName: "列表", MenuType: models.MenuTypeMenu, Perms: "x:list"},
		{ID: 3, ParentID: 2, MenuName: "新增", MenuType: models.MenuTypeButton, Perms: "x:add"},
		{ID: 4, ParentID: 2, MenuName: "修改", MenuType: models.MenuTypeButton, Perms: "x:edit"},
	}
	for i := range menus {
		normal(&menus[i].Status, &menus[i].DelFlag)
	}
	require.NoError(t, repos.Menu.BatchCreate(ctx, menus))

	depts := []models.Dept{{ID: 1, DeptName: "总部"}, {ID: 2, ParentID: 1, DeptName: "研发"}, {ID: 3, ParentID: 2, DeptName: "平台"}}
	for i := range depts {
		normal(&depts[i].Status, &depts[i].DelFlag)
	}
	require.NoError(t, repos.Dept.BatchCreate(ctx, depts))

	roles := []models.Role{
		{ID: 1, RoleKey: "dept", RoleName: "部门", DataScope: "3"},
		{ID: 2, RoleKey: "custom", RoleName: "自定义", DataScope: "2"},
	}
	for i := range roles {
		normal(&roles[i].Status, &roles[i].DelFlag)
	}
	require.NoError(t, repos.Role.BatchCreate(ctx, roles))

	user := models.User{ID: 7, Username: "alice", DeptID: 2}
	normal(&user.Status, &user.DelFlag)
	require.NoError(t, repos.User.Create(ctx, &user))

	cfg := config.Default()
	cfg.Permission.SuperAdminID = 0
	e, err := NewEngine(ctx, cfg, repos)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	return &fixture{repos: repos, engine: e, svc: NewAssignmentService(repos, e)}
}

func (f *fixture) codes(t *testing.T, userID int64) []string {
	t.Helper()
	set, err := f.engine.ResolveUserPermissions(context.Background(), userID)
	require.NoError(t, err)
	return set.PermissionCodes()
}

func (f *fixture) depts(t *testing.T, userID int64) []int64 {
	t.Helper()
	ids, err := f.engine.AccessibleDeptIDs(context.Background(), userID)
	require.NoError(t, err)
	return ids.Slice()
}

func TestAssignment_UserRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.AssignRoleMenus(ctx, 1, []int64{3}))
	require.NoError(t, f.svc.AssignRoleMenus(ctx, 2, []int64{4}))
	assert.Empty(t, f.codes(t, 7))

	require.NoError(t, f.svc.AssignUserRoles(ctx, 7, []int64{1}))
	assert.Equal(t, []string{"x:add", "x:list"}, f.codes(t, 7))

	require.NoError(t, f.svc.AddUserRoles(ctx, 7, []int64{2, 1}))
	assert.Equal(t, []string{"x:add", "x:edit", "x:list"}, f.codes(t, 7))

	require.NoError(t, f.svc.RemoveUserRoles(ctx, 7, []int64{1}))
	assert.Equal(t, []string{"x:edit", "x:list"}, f.codes(t, 7))

	count, err := f.repos.UserRole.QueryBuilder().Eq("user_id", 7).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	err = f.svc.AssignUserRoles(ctx, 404, []int64{1})
	assert.True(t, repository.IsNotFound(err))
}

func TestAssignment_RoleMenus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.AssignUserRoles(ctx, 7, []int64{1}))

	// 授予整个菜单时按钮随之生效
	require.NoError(t, f.svc.AssignRoleMenus(ctx, 1, []int64{2}))
	assert.Equal(t, []string{"x:add", "x:edit", "x:list"}, f.codes(t, 7))

	require.NoError(t, f.svc.AddRoleMenus(ctx, 1, []int64{3}))
	assert.Equal(t, []string{"x:add", "x:list"}, f.codes(t, 7), "granting one child narrows the whole grant")

	require.NoError(t, f.svc.RemoveRoleMenus(ctx, 1, []int64{2, 3}))
	assert.Empty(t, f.codes(t, 7))
}

func TestAssignment_RoleStatusAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.AssignRoleMenus(ctx, 1, []int64{3}))
	require.NoError(t, f.svc.AssignUserRoles(ctx, 7, []int64{1}))
	assert.Equal(t, []string{"x:add", "x:list"}, f.codes(t, 7))

	require.NoError(t, f.svc.UpdateRoleStatus(ctx, 1, permission.StatusDisabled))
	assert.Empty(t, f.codes(t, 7))

	require.NoError(t, f.svc.UpdateRoleStatus(ctx, 1, permission.StatusNormal))
	assert.Equal(t, []string{"x:add", "x:list"}, f.codes(t, 7))

	assert.ErrorIs(t, f.svc.UpdateRoleStatus(ctx, 1, "9"), ErrInvalidStatus)

	require.NoError(t, f.svc.DeleteRole(ctx, 1))
	assert.Empty(t, f.codes(t, 7))
	links, err := f.repos.RoleMenu.QueryBuilder().Eq("role_id", 1).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, links)
}

func TestAssignment_DataScopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.AssignUserRoles(ctx, 7, []int64{1}))
	assert.Equal(t, []int64{2}, f.depts(t, 7))

	require.NoError(t, f.svc.UpdateRoleDataScope(ctx, 1, permission.DataScopeDeptAndChild, nil))
	assert.Equal(t, []int64{2, 3}, f.depts(t, 7))

	require.NoError(t, f.svc.UpdateRoleDataScope(ctx, 1, permission.DataScopeCustom, []int64{1, 3}))
	assert.Equal(t, []int64{1, 3}, f.depts(t, 7))

	require.NoError(t, f.svc.AssignRoleDepts(ctx, 1, []int64{1}))
	assert.Equal(t, []int64{1}, f.depts(t, 7))

	// 用户级覆盖优先于角色
	require.NoError(t, f.svc.UpdateUserDataScope(ctx, 7, permission.DataScopeCustom, true, []int64{3}))
	assert.Equal(t, []int64{3}, f.depts(t, 7))

	require.NoError(t, f.svc.AssignUserDepts(ctx, 7, []int64{2, 3}))
	assert.Equal(t, []int64{2, 3}, f.depts(t, 7))

	require.NoError(t, f.svc.UpdateUserDataScope(ctx, 7, "", false, nil))
	assert.Equal(t, []int64{1}, f.depts(t, 7))

	assert.ErrorIs(t, f.svc.UpdateRoleDataScope(ctx, 1, "EVERYTHING", nil), ErrInvalidScope)
}

func TestAssignment_Hierarchy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.UpdateRoleDataScope(ctx, 1, permission.DataScopeDeptAndChild, nil))
	require.NoError(t, f.svc.AssignUserRoles(ctx, 7, []int64{1}))
	assert.Equal(t, []int64{2, 3}, f.depts(t, 7))

	assert.ErrorIs(t, f.svc.MoveDept(ctx, 2, 3), ErrHierarchyCycle)
	assert.ErrorIs(t, f.svc.MoveDept(ctx, 2, 2), ErrHierarchyCycle)

	require.NoError(t, f.svc.MoveDept(ctx, 3, 1))
	assert.Equal(t, []int64{2}, f.depts(t, 7))

	assert.ErrorIs(t, f.svc.DeleteDept(ctx, 2), ErrDeptHasUsers)
	assert.ErrorIs(t, f.svc.DeleteDept(ctx, 1), ErrHasChildren)
	require.NoError(t, f.svc.DeleteDept(ctx, 3))

	require.NoError(t, f.svc.AssignRoleMenus(ctx, 1, []int64{3, 4}))
	assert.Equal(t, []string{"x:add", "x:edit", "x:list"}, f.codes(t, 7))

	assert.ErrorIs(t, f.svc.MoveMenu(ctx, 1, 4), ErrHierarchyCycle)
	assert.ErrorIs(t, f.svc.DeleteMenu(ctx, 2), ErrHasChildren)

	require.NoError(t, f.svc.MoveMenu(ctx, 4, 0))
	assert.Equal(t, []string{"x:add", "x:edit", "x:list"}, f.codes(t, 7))

	require.NoError(t, f.svc.DeleteMenu(ctx, 4))
	assert.Equal(t, []string{"x:add", "x:list"}, f.codes(t, 7))
}

// failingInvalidator 写入成功但失效失败
type failingInvalidator struct {
	Invalidator
}

func (failingInvalidator) OnUserRolesChanged(context.Context, int64) error {
	return errors.New("cache unavailable")
}

func TestAssignment_InvalidationFailureReported(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewAssignmentService(f.repos, failingInvalidator{Invalidator: f.engine})

	err := svc.AssignUserRoles(ctx, 7, []int64{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalidate")

	count, err := f.repos.UserRole.QueryBuilder().Eq("user_id", 7).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "write is committed before invalidation")
}

func TestEngineOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Permission.CacheBackend = "redis"
	cfg.Redis.Prefix = "tenant-a"
	cfg.Permission.MergeStrategy = "intersection"

	opts, err := EngineOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, permission.MergeIntersection, opts.Merge)
	assert.Equal(t, "tenant-a", opts.KeyPrefix)
	assert.False(t, opts.TrackMembership)

	cfg.Permission.InheritanceStrategy = "SIDEWAYS"
	_, err = EngineOptions(cfg)
	assert.Error(t, err)

	cfg.Permission.InheritanceStrategy = ""
	cfg.Permission.CacheBackend = "memcached"
	_, err = NewCache(context.Background(), cfg)
	assert.Error(t, err)
}
