package service

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ayxworxfr/go_rbac/internal/dao"
	"github.com/ayxworxfr/go_rbac/internal/domain/models"
	"github.com/ayxworxfr/go_rbac/internal/permission"
	"github.com/ayxworxfr/go_rbac/pkg/logger"
	"github.com/ayxworxfr/go_rbac/pkg/repository"
)

var (
	ErrHierarchyCycle = errors.New("move would create a cycle")
	ErrHasChildren    = errors.New("node has children")
	ErrDeptHasUsers   = errors.New("department has users")
	ErrInvalidStatus  = errors.New("invalid status")
	ErrInvalidScope   = errors.New("invalid data scope")
)

// Invalidator 权限引擎的失效入口，写入提交后调用
type Invalidator interface {
	OnUserRolesChanged(ctx context.Context, userID int64) error
	OnUserChanged(ctx context.Context, userID int64) error
	OnRoleMenusChanged(ctx context.Context, roleID int64) error
	OnRoleDeptsChanged(ctx context.Context, roleID int64) error
	OnRoleChanged(ctx context.Context, roleID int64) error
	OnMenuTreeChanged(ctx context.Context) error
	OnDeptTreeChanged(ctx context.Context) error
	OnHierarchyChanged(ctx context.Context) error
}

// AssignmentService 角色、菜单、部门分配与层级维护
type AssignmentService struct {
	repos       *dao.Repos
	invalidator Invalidator

	userRoles linkTable[models.UserRole]
	roleMenus linkTable[models.RoleMenu]
	roleDepts linkTable[models.RoleDept]
	userDepts linkTable[models.UserDept]
}

func NewAssignmentService(repos *dao.Repos, invalidator Invalidator) *AssignmentService {
	return &AssignmentService{
		repos:       repos,
		invalidator: invalidator,
		userRoles: linkTable[models.UserRole]{
			repo: repos.UserRole, owner: "user_id", target: "role_id",
			build:    func(userID, roleID int64) models.UserRole { return models.UserRole{UserID: userID, RoleID: roleID} },
			targetOf: func(ur models.UserRole) int64 { return ur.RoleID },
		},
		roleMenus: linkTable[models.RoleMenu]{
			repo: repos.RoleMenu, owner: "role_id", target: "menu_id",
			build:    func(roleID, menuID int64) models.RoleMenu { return models.RoleMenu{RoleID: roleID, MenuID: menuID} },
			targetOf: func(rm models.RoleMenu) int64 { return rm.MenuID },
		},
		roleDepts: linkTable[models.RoleDept]{
			repo: repos.RoleDept, owner: "role_id", target: "dept_id",
			build:    func(roleID, deptID int64) models.RoleDept { return models.RoleDept{RoleID: roleID, DeptID: deptID} },
			targetOf: func(rd models.RoleDept) int64 { return rd.DeptID },
		},
		userDepts: linkTable[models.UserDept]{
			repo: repos.UserDept, owner: "user_id", target: "dept_id",
			build:    func(userID, deptID int64) models.UserDept { return models.UserDept{UserID: userID, DeptID: deptID} },
			targetOf: func(ud models.UserDept) int64 { return ud.DeptID },
		},
	}
}

// apply 在一个事务中执行 write，提交成功后再触发失效。
// 失效失败时数据已落库，返回错误提示调用方缓存可能未及时刷新。
func (s *AssignmentService) apply(ctx context.Context, op string, write func(txCtx context.Context) error, invalidate func(ctx context.Context) error) error {
	_, err := s.repos.Transaction(ctx, func(txCtx context.Context) (any, error) {
		return nil, write(txCtx)
	})
	if err != nil {
		logger.Error(ctx, "assignment failed", zap.String("op", op), zap.Error(err))
		return errors.Wrap(err, op)
	}
	if err := invalidate(ctx); err != nil {
		logger.Warn(ctx, "permission cache invalidation failed", zap.String("op", op), zap.Error(err))
		return errors.Wrapf(err, "%s: invalidate", op)
	}
	logger.Debug(ctx, "assignment applied", zap.String("op", op))
	return nil
}

// mustExist 在事务内确认记录存在
func mustExist[T any](ctx context.Context, repo repository.Repository[T], id int64, what string) (*T, error) {
	row, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %d", what, id)
	}
	return row, nil
}

// --------------------------- 用户角色 ---------------------------

// AssignUserRoles 将用户角色替换为 roleIDs
func (s *AssignmentService) AssignUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	return s.apply(ctx, "assign user roles", func(txCtx context.Context) error {
		if _, err := mustExist(txCtx, s.repos.User, userID, "user"); err != nil {
			return err
		}
		return s.userRoles.replace(txCtx, userID, roleIDs)
	}, func(ctx context.Context) error {
		return s.invalidator.OnUserRolesChanged(ctx, userID)
	})
}

func (s *AssignmentService) AddUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	return s.apply(ctx, "add user roles", func(txCtx context.Context) error {
		if _, err := mustExist(txCtx, s.repos.User, userID, "user"); err != nil {
			return err
		}
		return s.userRoles.add(txCtx, userID, roleIDs)
	}, func(ctx context.Context) error {
		return s.invalidator.OnUserRolesChanged(ctx, userID)
	})
}

func (s *AssignmentService) RemoveUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	return s.apply(ctx, "remove user roles", func(txCtx context.Context) error {
		return s.userRoles.remove(txCtx, userID, roleIDs)
	}, func(ctx context.Context) error {
		return s.invalidator.OnUserRolesChanged(ctx, userID)
	})
}

// --------------------------- 角色菜单 ---------------------------

// AssignRoleMenus 将角色菜单替换为 menuIDs
func (s *AssignmentService) AssignRoleMenus(ctx context.Context, roleID int64, menuIDs []int64) error {
	return s.apply(ctx, "assign role menus", func(txCtx context.Context) error {
		if _, err := mustExist(txCtx, s.repos.Role, roleID, "role"); err != nil {
			return err
		}
		return s.roleMenus.replace(txCtx, roleID, menuIDs)
	}, func(ctx context.Context) error {
		return s.invalidator.OnRoleMenusChanged(ctx, roleID)
	})
}

func (s *AssignmentService) AddRoleMenus(ctx context.Context, roleID int64, menuIDs []int64) error {
	return s.apply(ctx, "add role menus", func(txCtx context.Context) error {
		if _, err := mustExist(txCtx, s.repos.Role, roleID, "role"); err != nil {
			return err
		}
		return s.roleMenus.add(txCtx, roleID, menuIDs)
	}, func(ctx context.Context) error {
		return s.invalidator.OnRoleMenusChanged(ctx, roleID)
	})
}

func (s *AssignmentService) RemoveRoleMenus(ctx context.Context, roleID int64, menuIDs []int64) error {
	return s.apply(ctx, "remove role menus", func(txCtx context.Context) error {
		return s.roleMenus.remove(txCtx, roleID, menuIDs)
	}, func(ctx context.Context) error {
		return s.invalidator.OnRoleMenusChanged(ctx, roleID)
	})
}

// --------------------------- 角色属性 ---------------------------

// AssignRoleDepts 替换角色的自定义数据权限部门
func (s *AssignmentService) AssignRoleDepts(ctx context.Context, roleID int64, deptIDs []int64) error {
	return s.apply(ctx, "assign role depts", func(txCtx context.Context) error {
		if _, err := mustExist(txCtx, s.repos.Role, roleID, "role"); err != nil {
			return err
		}
		return s.roleDepts.replace(txCtx, roleID, deptIDs)
	}, func(ctx context.Context) error {
		return s.invalidator.OnRoleDeptsChanged(ctx, roleID)
	})
}

// UpdateRoleStatus 启用或停用角色
func (s *AssignmentService) UpdateRoleStatus(ctx context.Context, roleID int64, status permission.Status) error {
	if status != permission.StatusNormal && status != permission.StatusDisabled {
		return errors.Wrapf(ErrInvalidStatus, "%q", status)
	}
	return s.apply(ctx, "update role status", func(txCtx context.Context) error {
		if _, err := mustExist(txCtx, s.repos.Role, roleID, "role"); err != nil {
			return err
		}
		return s.repos.Role.UpdateByID(txCtx, roleID, &models.Role{Status: string(status)}, "status")
	}, func(ctx context.Context) error {
		return s.invalidator.OnRoleChanged(ctx, roleID)
	})
}

// UpdateRoleDataScope 修改角色数据权限；非 CUSTOM 时清空自定义部门
func (s *AssignmentService) UpdateRoleDataScope(ctx context.Context, roleID int64, scope permission.DataScope, deptIDs []int64) error {
	if !scope.Valid() {
		return errors.Wrapf(ErrInvalidScope, "%q", scope)
	}
	return s.apply(ctx, "update role data scope", func(txCtx context.Context) error {
		if _, err := mustExist(txCtx, s.repos.Role, roleID, "role"); err != nil {
			return err
		}
		if err := s.repos.Role.UpdateByID(txCtx, roleID, &models.Role{DataScope: scope.Code()}, "data_scope"); err != nil {
			return err
		}
		if scope != permission.DataScopeCustom {
			return s.roleDepts.clearOwner(txCtx, roleID)
		}
		return s.roleDepts.replace(txCtx, roleID, deptIDs)
	}, func(ctx context.Context) error {
		return s.invalidator.OnRoleChanged(ctx, roleID)
	})
}

// DeleteRole 软删除角色并解除其全部关联
func (s *AssignmentService) DeleteRole(ctx context.Context, roleID int64) error {
	return s.apply(ctx, "delete role", func(txCtx context.Context) error {
		if _, err := mustExist(txCtx, s.repos.Role, roleID, "role"); err != nil {
			return err
		}
		if err := s.repos.Role.UpdateByID(txCtx, roleID, &models.Role{DelFlag: models.DelFlagDeleted}, "del_flag"); err != nil {
			return err
		}
		if err := s.roleMenus.clearOwner(txCtx, roleID); err != nil {
			return err
		}
		if err := s.roleDepts.clearOwner(txCtx, roleID); err != nil {
			return err
		}
		return s.userRoles.clearTarget(txCtx, roleID)
	}, func(ctx context.Context) error {
		return s.invalidator.OnRoleChanged(ctx, roleID)
	})
}

// --------------------------- 用户数据权限 ---------------------------

// UpdateUserDataScope 设置用户级数据权限覆盖；enabled 为 false 时回落到角色计算
func (s *AssignmentService) UpdateUserDataScope(ctx context.Context, userID int64, scope permission.DataScope, enabled bool, deptIDs []int64) error {
	if enabled && !scope.Valid() {
		return errors.Wrapf(ErrInvalidScope, "%q", scope)
	}
	return s.apply(ctx, "update user data scope", func(txCtx context.Context) error {
		if _, err := mustExist(txCtx, s.repos.User, userID, "user"); err != nil {
			return err
		}
		update := &models.User{DataScope: scope.Code(), DataScopeEnabled: enabled}
		if err := s.repos.User.UpdateByID(txCtx, userID, update, "data_scope", "data_scope_enabled"); err != nil {
			return err
		}
		if scope != permission.DataScopeCustom {
			return s.userDepts.clearOwner(txCtx, userID)
		}
		return s.userDepts.replace(txCtx, userID, deptIDs)
	}, func(ctx context.Context) error {
		return s.invalidator.OnUserChanged(ctx, userID)
	})
}

// AssignUserDepts 替换用户级自定义部门
func (s *AssignmentService) AssignUserDepts(ctx context.Context, userID int64, deptIDs []int64) error {
	return s.apply(ctx, "assign user depts", func(txCtx context.Context) error {
		if _, err := mustExist(txCtx, s.repos.User, userID, "user"); err != nil {
			return err
		}
		return s.userDepts.replace(txCtx, userID, deptIDs)
	}, func(ctx context.Context) error {
		return s.invalidator.OnUserChanged(ctx, userID)
	})
}

// --------------------------- 层级维护 ---------------------------

// wouldCycle 判断把 id 挂到 parentID 下是否成环：沿 parentID 向上查找 id
func wouldCycle(ctx context.Context, id, parentID int64, parentOf func(context.Context, int64) (int64, bool, error)) (bool, error) {
	visited := map[int64]struct{}{}
	for cur := parentID; cur != 0; {
		if cur == id {
			return true, nil
		}
		if _, seen := visited[cur]; seen {
			// 已有环但不经过 id，由巡检报告
			return false, nil
		}
		visited[cur] = struct{}{}
		next, ok, err := parentOf(ctx, cur)
		if err != nil || !ok {
			return false, err
		}
		cur = next
	}
	return false, nil
}

func parentLookup[T any](repo repository.Repository[T], parentOf func(*T) int64) func(context.Context, int64) (int64, bool, error) {
	return func(ctx context.Context, id int64) (int64, bool, error) {
		row, err := repo.FindByID(ctx, id)
		if repository.IsNotFound(err) {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
		return parentOf(row), true, nil
	}
}

// MoveMenu 调整菜单的父节点，0 表示移到根
func (s *AssignmentService) MoveMenu(ctx context.Context, menuID, parentID int64) error {
	return s.apply(ctx, "move menu", func(txCtx context.Context) error {
		if _, err := mustExist(txCtx, s.repos.Menu, menuID, "menu"); err != nil {
			return err
		}
		cycle, err := wouldCycle(txCtx, menuID, parentID, parentLookup(s.repos.Menu, func(m *models.Menu) int64 { return m.ParentID }))
		if err != nil {
			return err
		}
		if cycle {
			return errors.Wrapf(ErrHierarchyCycle, "menu %d under %d", menuID, parentID)
		}
		return s.repos.Menu.UpdateByID(txCtx, menuID, &models.Menu{ParentID: parentID}, "parent_id")
	}, s.invalidator.OnMenuTreeChanged)
}

// DeleteMenu 软删除菜单；仍有子菜单时拒绝
func (s *AssignmentService) DeleteMenu(ctx context.Context, menuID int64) error {
	return s.apply(ctx, "delete menu", func(txCtx context.Context) error {
		if _, err := mustExist(txCtx, s.repos.Menu, menuID, "menu"); err != nil {
			return err
		}
		children, err := s.repos.Menu.QueryBuilder().Eq("parent_id", menuID).Ne("del_flag", models.DelFlagDeleted).Count(txCtx)
		if err != nil {
			return err
		}
		if children > 0 {
			return errors.Wrapf(ErrHasChildren, "menu %d", menuID)
		}
		if err := s.repos.Menu.UpdateByID(txCtx, menuID, &models.Menu{DelFlag: models.DelFlagDeleted}, "del_flag"); err != nil {
			return err
		}
		return s.roleMenus.clearTarget(txCtx, menuID)
	}, s.invalidator.OnMenuTreeChanged)
}

// MoveDept 调整部门的父节点
func (s *AssignmentService) MoveDept(ctx context.Context, deptID, parentID int64) error {
	return s.apply(ctx, "move dept", func(txCtx context.Context) error {
		if _, err := mustExist(txCtx, s.repos.Dept, deptID, "dept"); err != nil {
			return err
		}
		cycle, err := wouldCycle(txCtx, deptID, parentID, parentLookup(s.repos.Dept, func(d *models.Dept) int64 { return d.ParentID }))
		if err != nil {
			return err
		}
		if cycle {
			return errors.Wrapf(ErrHierarchyCycle, "dept %d under %d", deptID, parentID)
		}
		return s.repos.Dept.UpdateByID(txCtx, deptID, &models.Dept{ParentID: parentID}, "parent_id")
	}, s.invalidator.OnDeptTreeChanged)
}

// DeleteDept 软删除部门；存在下级部门或用户时拒绝。
// 角色自定义部门随之解除，角色缓存也需要失效。
func (s *AssignmentService) DeleteDept(ctx context.Context, deptID int64) error {
	return s.apply(ctx, "delete dept", func(txCtx context.Context) error {
		if _, err := mustExist(txCtx, s.repos.Dept, deptID, "dept"); err != nil {
			return err
		}
		children, err := s.repos.Dept.QueryBuilder().Eq("parent_id", deptID).Ne("del_flag", models.DelFlagDeleted).Count(txCtx)
		if err != nil {
			return err
		}
		if children > 0 {
			return errors.Wrapf(ErrHasChildren, "dept %d", deptID)
		}
		users, err := s.repos.User.QueryBuilder().Eq("dept_id", deptID).Ne("del_flag", models.DelFlagDeleted).Count(txCtx)
		if err != nil {
			return err
		}
		if users > 0 {
			return errors.Wrapf(ErrDeptHasUsers, "dept %d", deptID)
		}
		if err := s.repos.Dept.UpdateByID(txCtx, deptID, &models.Dept{DelFlag: models.DelFlagDeleted}, "del_flag"); err != nil {
			return err
		}
		if err := s.roleDepts.clearTarget(txCtx, deptID); err != nil {
			return err
		}
		return s.userDepts.clearTarget(txCtx, deptID)
	}, s.invalidator.OnHierarchyChanged)
}
