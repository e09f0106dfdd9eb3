package dao

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayxworxfr/go_rbac/internal/domain/models"
	"github.com/ayxworxfr/go_rbac/internal/permission"
	"github.com/ayxworxfr/go_rbac/pkg/repository"
	"github.com/ayxworxfr/go_rbac/pkg/tests"
)

func newTestRepos(t *testing.T) *Repos {
	t.Helper()
	tests.InitLogger(t)
	engine, err := InitDB(tests.SQLiteDatabase(t), "error")
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return NewRepos(engine)
}

// seed 用户管理菜单树：1 目录 -> 2 菜单 -> 3/4 按钮，5 菜单已删除
func seed(t *testing.T, r *Repos) {
	t.Helper()
	ctx := context.Background()
	menus := []models.Menu{
		{ID: 1, MenuName: "系统管理", MenuType: models.MenuTypeDirectory, Visible: "0"},
		{ID: 2, ParentID: 1, MenuName: "用户管理", MenuType: models.MenuTypeMenu, Perms: "system:user:list", Visible: "0"},
		{ID: 3, ParentID: 2, MenuName: "新增", MenuType: models.MenuTypeButton, Perms: "system:user:add"},
		{ID: 4, ParentID: 2, MenuName: "修改", MenuType: models.MenuTypeButton, Perms: "system:user:edit"},
		{ID: 5, ParentID: 1, MenuName: "日志", MenuType: models.MenuTypeMenu, Perms: "monitor:log:list", Visible: "1", DelFlag: models.DelFlagDeleted},
	}
	for i := range menus {
		if menus[i].DelFlag == "" {
			menus[i].DelFlag = models.DelFlagExist
		}
		menus[i].Status = models.StatusNormal
	}
	require.NoError(t, r.Menu.BatchCreate(ctx, menus))

	require.NoError(t, r.Dept.BatchCreate(ctx, []models.Dept{
		{ID: 1, DeptName: "总部", Status: models.StatusNormal, DelFlag: models.DelFlagExist},
		{ID: 2, ParentID: 1, DeptName: "研发", Status: models.StatusNormal, DelFlag: models.DelFlagExist},
		{ID: 3, ParentID: 2, DeptName: "平台", Status: models.StatusNormal, DelFlag: models.DelFlagExist},
		{ID: 4, ParentID: 1, DeptName: "撤销", Status: models.StatusNormal, DelFlag: models.DelFlagDeleted},
	}))

	require.NoError(t, r.Role.BatchCreate(ctx, []models.Role{
		{ID: 1, RoleKey: "admin", RoleName: "管理员", RoleSort: 1, DataScope: "1", Status: models.StatusNormal, DelFlag: models.DelFlagExist},
		{ID: 2, RoleKey: "editor", RoleName: "编辑", RoleSort: 2, DataScope: "2", Status: models.StatusNormal, DelFlag: models.DelFlagExist},
		{ID: 3, RoleKey: "viewer", RoleName: "只读", RoleSort: 0, DataScope: "5", Status: models.StatusDisabled, DelFlag: models.DelFlagExist},
	}))
	require.NoError(t, r.RoleMenu.BatchCreate(ctx, []models.RoleMenu{{RoleID: 2, MenuID: 3}, {RoleID: 2, MenuID: 4}}))
	require.NoError(t, r.RoleDept.BatchCreate(ctx, []models.RoleDept{{RoleID: 2, DeptID: 3}, {RoleID: 2, DeptID: 2}}))

	require.NoError(t, r.User.BatchCreate(ctx, []models.User{
		{ID: 1, Username: "root", DeptID: 1, Status: models.StatusNormal, DelFlag: models.DelFlagExist},
		{ID: 7, Username: "alice", DeptID: 2, UserType: "manager", DataScope: "4", Status: models.StatusNormal, DelFlag: models.DelFlagExist},
		{ID: 8, Username: "bob", DeptID: 3, IsAdmin: true, Status: models.StatusNormal, DelFlag: models.DelFlagExist},
	}))
	require.NoError(t, r.UserRole.BatchCreate(ctx, []models.UserRole{{UserID: 7, RoleID: 2}, {UserID: 7, RoleID: 3}}))
	require.NoError(t, r.UserDept.BatchCreate(ctx, []models.UserDept{{UserID: 7, DeptID: 3}}))
}

func TestUserStore(t *testing.T) {
	r := newTestRepos(t)
	seed(t, r)
	users := NewUserStore(r, 1)
	ctx := context.Background()

	u, err := users.FindByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, &permission.User{
		ID:        7,
		DeptID:    2,
		UserType:  "manager",
		Status:    permission.StatusNormal,
		DataScope: permission.DataScopeDeptAndChild,
	}, u)

	u, err = users.FindByID(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, u)

	for id, want := range map[int64]bool{1: true, 7: false, 8: true, 99: false} {
		admin, err := users.IsSuperAdmin(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, admin, "user %d", id)
	}
}

func TestRoleStore(t *testing.T) {
	r := newTestRepos(t)
	seed(t, r)
	roles := NewRoleStore(r)
	ctx := context.Background()

	role, err := roles.FindByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "editor", role.Key)
	assert.Equal(t, "编辑", role.Name)
	assert.Equal(t, permission.DataScopeCustom, role.DataScope)

	ofUser, err := roles.FindRolesOfUser(ctx, 7)
	require.NoError(t, err)
	require.Len(t, ofUser, 2)
	assert.Equal(t, int64(3), ofUser[0].ID, "ordered by role_sort")
	assert.False(t, ofUser[0].Active())

	none, err := roles.FindRolesOfUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMenuStore(t *testing.T) {
	r := newTestRepos(t)
	seed(t, r)
	menus := NewMenuStore(r)
	ctx := context.Background()

	m, err := menus.FindByID(ctx, 5)
	require.NoError(t, err)
	assert.True(t, m.Deleted)
	assert.False(t, m.Visible)
	assert.Equal(t, permission.MenuTypeMenu, m.Type)

	children, err := menus.ChildrenOf(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"system:user:add", "system:user:edit"}, []string{children[0].Perms, children[1].Perms})

	granted, err := menus.MenusOfRole(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, granted, 2)

	ids, err := menus.AllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids)
}

func TestDeptStore(t *testing.T) {
	r := newTestRepos(t)
	seed(t, r)
	depts := NewDeptStore(r)
	ctx := context.Background()

	ids, err := depts.AllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids, "deleted depts excluded")

	ofRole, err := depts.DeptIDsOfRole(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, ofRole)

	ofUser, err := depts.CustomDeptIDsOfUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ofUser)

	d, err := depts.FindByID(ctx, 4)
	require.NoError(t, err)
	assert.True(t, d.Deleted)
}

func TestEngineOverStores(t *testing.T) {
	r := newTestRepos(t)
	seed(t, r)
	s := NewStores(r, 1)
	e := permission.NewEngine(s.Users, s.Roles, s.Menus, s.Depts, permission.NewMemoryCache(0), permission.DefaultOptions())
	defer e.Close()
	ctx := context.Background()

	set, err := e.ResolveUserPermissions(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"system:user:add", "system:user:edit", "system:user:list"}, set.PermissionCodes())

	depts, err := e.AccessibleDeptIDs(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, depts.Slice())

	ok, err := e.HasPermission(ctx, 1, "anything:at:all")
	require.NoError(t, err)
	assert.True(t, ok)

	report, err := e.AuditHierarchy(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.MenuCycles+report.DeptCycles)
}

func TestTransactionRollback(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()

	create := func(fail bool) error {
		_, err := r.Transaction(ctx, func(txCtx context.Context) (any, error) {
			if err := r.Dept.Create(txCtx, &models.Dept{DeptName: "tx", Status: models.StatusNormal, DelFlag: models.DelFlagExist}); err != nil {
				return nil, err
			}
			if fail {
				return nil, errors.New("business error")
			}
			return nil, nil
		})
		return err
	}

	require.Error(t, create(true))
	count, err := r.Dept.QueryBuilder().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, create(false))
	count, err = r.Dept.QueryBuilder().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRepository_UpdateColumns(t *testing.T) {
	r := newTestRepos(t)
	seed(t, r)
	ctx := context.Background()

	// 不指定列时零值字段被忽略
	require.NoError(t, r.User.UpdateByID(ctx, int64(8), &models.User{UserType: "leader", IsAdmin: false}))
	u, err := r.User.FindByID(ctx, int64(8))
	require.NoError(t, err)
	assert.Equal(t, "leader", u.UserType)
	assert.True(t, u.IsAdmin)

	require.NoError(t, r.User.UpdateByID(ctx, int64(8), &models.User{IsAdmin: false}, "is_admin"))
	u, err = r.User.FindByID(ctx, int64(8))
	require.NoError(t, err)
	assert.False(t, u.IsAdmin)

	_, err = r.User.FindByID(ctx, int64(404))
	assert.True(t, repository.IsNotFound(err))

	assert.Error(t, r.UserRole.QueryBuilder().Delete(ctx), "unconditional delete refused")
}
