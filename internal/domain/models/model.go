package models

import (
	"time"
)

// 状态与删除标记
const (
	StatusNormal   = "0" // 正常
	StatusDisabled = "1" // 停用

	DelFlagExist   = "0" // 存在
	DelFlagDeleted = "2" // 删除
)

// 菜单类型
const (
	MenuTypeDirectory = "M" // 目录
	MenuTypeMenu      = "C" // 菜单
	MenuTypeButton    = "F" // 按钮
)

// User 用户模型
type User struct {
	ID               int64     `xorm:"pk autoincr bigint 'id'" json:"id"`
	Username         string    `xorm:"varchar(50) notnull unique 'username'" json:"username"`
	DeptID           int64     `xorm:"bigint index 'dept_id'" json:"dept_id"`
	UserType         string    `xorm:"varchar(20) 'user_type'" json:"user_type"` // manager/leader/...
	IsAdmin          bool      `xorm:"bool 'is_admin'" json:"is_admin"`
	DataScope        string    `xorm:"varchar(2) 'data_scope'" json:"data_scope"` // 1-5，空表示未设置
	DataScopeEnabled bool      `xorm:"bool 'data_scope_enabled'" json:"data_scope_enabled"`
	Status           string    `xorm:"char(1) notnull 'status'" json:"status"`
	DelFlag          string    `xorm:"char(1) notnull 'del_flag'" json:"del_flag"`
	CreateTime       time.Time `xorm:"created 'create_time'" json:"create_time"`
	UpdateTime       time.Time `xorm:"updated 'update_time'" json:"update_time"`
}

func (User) TableName() string { return "sys_user" }

func (u *User) Deleted() bool { return u.DelFlag == DelFlagDeleted }

// Role 角色模型
type Role struct {
	ID         int64     `xorm:"pk autoincr bigint 'id'" json:"id"`
	RoleKey    string    `xorm:"varchar(100) notnull unique 'role_key'" json:"role_key"`
	RoleName   string    `xorm:"varchar(30) notnull unique 'role_name'" json:"role_name"`
	RoleSort   int       `xorm:"int 'role_sort'" json:"role_sort"`
	DataScope  string    `xorm:"varchar(2) 'data_scope'" json:"data_scope"` // 1全部 2自定义 3本部门 4本部门及以下 5本人
	ParentID   int64     `xorm:"bigint 'parent_id'" json:"parent_id"`       // 仅用于角色树展示
	Status     string    `xorm:"char(1) notnull 'status'" json:"status"`
	DelFlag    string    `xorm:"char(1) notnull 'del_flag'" json:"del_flag"`
	CreateTime time.Time `xorm:"created 'create_time'" json:"create_time"`
	UpdateTime time.Time `xorm:"updated 'update_time'" json:"update_time"`
}

func (Role) TableName() string { return "sys_role" }

func (r *Role) Deleted() bool { return r.DelFlag == DelFlagDeleted }

// Menu 菜单/按钮模型
type Menu struct {
	ID         int64     `xorm:"pk autoincr bigint 'id'" json:"id"`
	ParentID   int64     `xorm:"bigint index 'parent_id'" json:"parent_id"`
	MenuName   string    `xorm:"varchar(50) notnull 'menu_name'" json:"menu_name"`
	MenuType   string    `xorm:"char(1) notnull 'menu_type'" json:"menu_type"`
	OrderNum   int       `xorm:"int 'order_num'" json:"order_num"`
	Visible    string    `xorm:"char(1) 'visible'" json:"visible"` // 0显示 1隐藏
	Perms      string    `xorm:"varchar(100) 'perms'" json:"perms"`
	Status     string    `xorm:"char(1) notnull 'status'" json:"status"`
	DelFlag    string    `xorm:"char(1) notnull 'del_flag'" json:"del_flag"`
	CreateTime time.Time `xorm:"created 'create_time'" json:"create_time"`
	UpdateTime time.Time `xorm:"updated 'update_time'" json:"update_time"`
}

func (Menu) TableName() string { return "sys_menu" }

func (m *Menu) Deleted() bool { return m.DelFlag == DelFlagDeleted }

// Dept 部门模型
type Dept struct {
	ID         int64     `xorm:"pk autoincr bigint 'id'" json:"id"`
	ParentID   int64     `xorm:"bigint index 'parent_id'" json:"parent_id"`
	DeptName   string    `xorm:"varchar(30) notnull 'dept_name'" json:"dept_name"`
	OrderNum   int       `xorm:"int 'order_num'" json:"order_num"`
	Status     string    `xorm:"char(1) notnull 'status'" json:"status"`
	DelFlag    string    `xorm:"char(1) notnull 'del_flag'" json:"del_flag"`
	CreateTime time.Time `xorm:"created 'create_time'" json:"create_time"`
	UpdateTime time.Time `xorm:"updated 'update_time'" json:"update_time"`
}

func (Dept) TableName() string { return "sys_dept" }

func (d *Dept) Deleted() bool { return d.DelFlag == DelFlagDeleted }

// UserRole 用户角色关联，物理删除
type UserRole struct {
	ID     int64 `xorm:"pk autoincr bigint 'id'" json:"id"`
	UserID int64 `xorm:"bigint notnull unique(uk_user_role) 'user_id'" json:"user_id"`
	RoleID int64 `xorm:"bigint notnull unique(uk_user_role) index 'role_id'" json:"role_id"`
}

func (UserRole) TableName() string { return "sys_user_role" }

// RoleMenu 角色菜单关联
type RoleMenu struct {
	ID     int64 `xorm:"pk autoincr bigint 'id'" json:"id"`
	RoleID int64 `xorm:"bigint notnull unique(uk_role_menu) 'role_id'" json:"role_id"`
	MenuID int64 `xorm:"bigint notnull unique(uk_role_menu) index 'menu_id'" json:"menu_id"`
}

func (RoleMenu) TableName() string { return "sys_role_menu" }

// RoleDept 角色自定义数据权限部门
type RoleDept struct {
	ID     int64 `xorm:"pk autoincr bigint 'id'" json:"id"`
	RoleID int64 `xorm:"bigint notnull unique(uk_role_dept) 'role_id'" json:"role_id"`
	DeptID int64 `xorm:"bigint notnull unique(uk_role_dept) 'dept_id'" json:"dept_id"`
}

func (RoleDept) TableName() string { return "sys_role_dept" }

// UserDept 用户级自定义数据权限部门
type UserDept struct {
	ID     int64 `xorm:"pk autoincr bigint 'id'" json:"id"`
	UserID int64 `xorm:"bigint notnull unique(uk_user_dept) 'user_id'" json:"user_id"`
	DeptID int64 `xorm:"bigint notnull unique(uk_user_dept) 'dept_id'" json:"dept_id"`
}

func (UserDept) TableName() string { return "sys_user_dept" }
