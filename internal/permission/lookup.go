package permission

import "context"

// 以下接口由存储层实现。未找到返回 (nil, nil)，error 只表示存储故障。

// UserLookup 用户查询
type UserLookup interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	IsSuperAdmin(ctx context.Context, id int64) (bool, error)
}

// RoleLookup 角色查询
type RoleLookup interface {
	FindByID(ctx context.Context, id int64) (*Role, error)
	// FindRolesOfUser 返回用户关联的角色（含停用角色，由引擎过滤）
	FindRolesOfUser(ctx context.Context, userID int64) ([]Role, error)
}

// MenuHierarchy 菜单树查询
type MenuHierarchy interface {
	FindByID(ctx context.Context, id int64) (*Menu, error)
	ChildrenOf(ctx context.Context, id int64) ([]Menu, error)
	MenusOfRole(ctx context.Context, roleID int64) ([]Menu, error)
}

// DeptHierarchy 部门树查询
type DeptHierarchy interface {
	FindByID(ctx context.Context, id int64) (*Dept, error)
	ChildrenOf(ctx context.Context, id int64) ([]Dept, error)
	DeptIDsOfRole(ctx context.Context, roleID int64) ([]int64, error)
	CustomDeptIDsOfUser(ctx context.Context, userID int64) ([]int64, error)
	AllIDs(ctx context.Context) ([]int64, error)
}

// Enumerable 可枚举全部节点的层级，用于巡检
type Enumerable interface {
	AllIDs(ctx context.Context) ([]int64, error)
}
