package dao

import (
	"context"

	"github.com/jinzhu/copier"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/ayxworxfr/go_rbac/internal/domain/models"
	"github.com/ayxworxfr/go_rbac/internal/permission"
	"github.com/ayxworxfr/go_rbac/pkg/repository"
)

// 权限引擎所需的只读视图。记录不存在时返回 (nil, nil)。

// found 将 ErrNotFound 转为 (nil, nil)
func found[T any](row *T, err error) (*T, error) {
	if repository.IsNotFound(err) {
		return nil, nil
	}
	return row, err
}

// UserStore 实现 permission.UserLookup
type UserStore struct {
	repos        *Repos
	superAdminID int64
}

// NewUserStore superAdminID 为 0 时仅依据 is_admin 判断超级管理员
func NewUserStore(repos *Repos, superAdminID int64) *UserStore {
	return &UserStore{repos: repos, superAdminID: superAdminID}
}

func (s *UserStore) FindByID(ctx context.Context, id int64) (*permission.User, error) {
	row, err := found(s.repos.User.FindByID(ctx, id))
	if err != nil || row == nil {
		return nil, errors.Wrapf(err, "find user %d", id)
	}
	return toUser(row)
}

func (s *UserStore) IsSuperAdmin(ctx context.Context, id int64) (bool, error) {
	if s.superAdminID != 0 && id == s.superAdminID {
		return true, nil
	}
	row, err := found(s.repos.User.FindByID(ctx, id))
	if err != nil {
		return false, errors.Wrapf(err, "find user %d", id)
	}
	return row != nil && row.IsAdmin && !row.Deleted(), nil
}

func toUser(row *models.User) (*permission.User, error) {
	var u permission.User
	if err := copier.Copy(&u, row); err != nil {
		return nil, errors.Wrap(err, "copy user")
	}
	u.Deleted = row.Deleted()
	u.DataScope, _ = permission.ParseDataScope(row.DataScope)
	return &u, nil
}

// RoleStore 实现 permission.RoleLookup
type RoleStore struct {
	repos *Repos
}

func NewRoleStore(repos *Repos) *RoleStore {
	return &RoleStore{repos: repos}
}

func (s *RoleStore) FindByID(ctx context.Context, id int64) (*permission.Role, error) {
	row, err := found(s.repos.Role.FindByID(ctx, id))
	if err != nil || row == nil {
		return nil, errors.Wrapf(err, "find role %d", id)
	}
	return toRole(row)
}

func (s *RoleStore) FindRolesOfUser(ctx context.Context, userID int64) ([]permission.Role, error) {
	links, err := s.repos.UserRole.QueryBuilder().Eq("user_id", userID).Find(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "find roles of user %d", userID)
	}
	if len(links) == 0 {
		return nil, nil
	}
	roleIDs := lo.Map(links, func(l models.UserRole, _ int) int64 { return l.RoleID })
	rows, err := s.repos.Role.QueryBuilder().In("id", roleIDs).OrderBy("role_sort, id").Find(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "find roles of user %d", userID)
	}
	roles := make([]permission.Role, 0, len(rows))
	for i := range rows {
		r, err := toRole(&rows[i])
		if err != nil {
			return nil, err
		}
		roles = append(roles, *r)
	}
	return roles, nil
}

func toRole(row *models.Role) (*permission.Role, error) {
	var r permission.Role
	if err := copier.Copy(&r, row); err != nil {
		return nil, errors.Wrap(err, "copy role")
	}
	r.Key = row.RoleKey
	r.Name = row.RoleName
	r.Sort = row.RoleSort
	r.Deleted = row.Deleted()
	r.DataScope, _ = permission.ParseDataScope(row.DataScope)
	return &r, nil
}

// MenuStore 实现 permission.MenuHierarchy 与 permission.Enumerable
type MenuStore struct {
	repos *Repos
}

func NewMenuStore(repos *Repos) *MenuStore {
	return &MenuStore{repos: repos}
}

func (s *MenuStore) FindByID(ctx context.Context, id int64) (*permission.Menu, error) {
	row, err := found(s.repos.Menu.FindByID(ctx, id))
	if err != nil || row == nil {
		return nil, errors.Wrapf(err, "find menu %d", id)
	}
	m := toMenu(*row)
	return &m, nil
}

func (s *MenuStore) ChildrenOf(ctx context.Context, id int64) ([]permission.Menu, error) {
	rows, err := s.repos.Menu.QueryBuilder().Eq("parent_id", id).OrderBy("order_num, id").Find(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "find children of menu %d", id)
	}
	return lo.Map(rows, func(row models.Menu, _ int) permission.Menu { return toMenu(row) }), nil
}

func (s *MenuStore) MenusOfRole(ctx context.Context, roleID int64) ([]permission.Menu, error) {
	links, err := s.repos.RoleMenu.QueryBuilder().Eq("role_id", roleID).Find(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "find menus of role %d", roleID)
	}
	if len(links) == 0 {
		return nil, nil
	}
	menuIDs := lo.Map(links, func(l models.RoleMenu, _ int) int64 { return l.MenuID })
	rows, err := s.repos.Menu.QueryBuilder().In("id", menuIDs).OrderBy("id").Find(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "find menus of role %d", roleID)
	}
	return lo.Map(rows, func(row models.Menu, _ int) permission.Menu { return toMenu(row) }), nil
}

// AllIDs 包含已删除菜单，巡检需要覆盖整张表
func (s *MenuStore) AllIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.repos.Menu.FindAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list menus")
	}
	return lo.Map(rows, func(row models.Menu, _ int) int64 { return row.ID }), nil
}

// toMenu visible 与 menu_type 的存储形式和引擎不同，逐字段转换
func toMenu(row models.Menu) permission.Menu {
	return permission.Menu{
		ID:       row.ID,
		ParentID: row.ParentID,
		Type:     permission.MenuType(row.MenuType),
		Visible:  row.Visible != "1",
		Status:   permission.Status(row.Status),
		Perms:    row.Perms,
		Deleted:  row.Deleted(),
	}
}

// DeptStore 实现 permission.DeptHierarchy
type DeptStore struct {
	repos *Repos
}

func NewDeptStore(repos *Repos) *DeptStore {
	return &DeptStore{repos: repos}
}

func (s *DeptStore) FindByID(ctx context.Context, id int64) (*permission.Dept, error) {
	row, err := found(s.repos.Dept.FindByID(ctx, id))
	if err != nil || row == nil {
		return nil, errors.Wrapf(err, "find dept %d", id)
	}
	return toDept(row)
}

func (s *DeptStore) ChildrenOf(ctx context.Context, id int64) ([]permission.Dept, error) {
	rows, err := s.repos.Dept.QueryBuilder().Eq("parent_id", id).OrderBy("order_num, id").Find(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "find children of dept %d", id)
	}
	depts := make([]permission.Dept, 0, len(rows))
	for i := range rows {
		d, err := toDept(&rows[i])
		if err != nil {
			return nil, err
		}
		depts = append(depts, *d)
	}
	return depts, nil
}

func (s *DeptStore) DeptIDsOfRole(ctx context.Context, roleID int64) ([]int64, error) {
	links, err := s.repos.RoleDept.QueryBuilder().Eq("role_id", roleID).OrderBy("dept_id").Find(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "find depts of role %d", roleID)
	}
	return lo.Map(links, func(l models.RoleDept, _ int) int64 { return l.DeptID }), nil
}

func (s *DeptStore) CustomDeptIDsOfUser(ctx context.Context, userID int64) ([]int64, error) {
	links, err := s.repos.UserDept.QueryBuilder().Eq("user_id", userID).OrderBy("dept_id").Find(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "find custom depts of user %d", userID)
	}
	return lo.Map(links, func(l models.UserDept, _ int) int64 { return l.DeptID }), nil
}

// AllIDs 全部未删除的部门
func (s *DeptStore) AllIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.repos.Dept.QueryBuilder().Ne("del_flag", models.DelFlagDeleted).OrderBy("id").Find(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list depts")
	}
	return lo.Map(rows, func(row models.Dept, _ int) int64 { return row.ID }), nil
}

func toDept(row *models.Dept) (*permission.Dept, error) {
	var d permission.Dept
	if err := copier.Copy(&d, row); err != nil {
		return nil, errors.Wrap(err, "copy dept")
	}
	d.Deleted = row.Deleted()
	return &d, nil
}

// Stores 引擎依赖的四个只读视图
type Stores struct {
	Users *UserStore
	Roles *RoleStore
	Menus *MenuStore
	Depts *DeptStore
}

func NewStores(repos *Repos, superAdminID int64) Stores {
	return Stores{
		Users: NewUserStore(repos, superAdminID),
		Roles: NewRoleStore(repos),
		Menus: NewMenuStore(repos),
		Depts: NewDeptStore(repos),
	}
}
