package permission

import (
	"strings"

	"github.com/pkg/errors"
)

// DataScope 数据权限范围
type DataScope string

const (
	DataScopeAll          DataScope = "ALL"            // 全部数据
	DataScopeCustom       DataScope = "CUSTOM"         // 自定义部门
	DataScopeDept         DataScope = "DEPT"           // 本部门
	DataScopeDeptAndChild DataScope = "DEPT_AND_CHILD" // 本部门及以下
	DataScopeSelf         DataScope = "SELF"           // 仅本人
)

// 持久化编码 -> 数据权限
var dataScopeCodes = map[string]DataScope{
	"1": DataScopeAll,
	"2": DataScopeCustom,
	"3": DataScopeDept,
	"4": DataScopeDeptAndChild,
	"5": DataScopeSelf,
}

var dataScopeLabels = map[DataScope]string{
	DataScopeAll:          "全部数据权限",
	DataScopeCustom:       "自定数据权限",
	DataScopeDept:         "本部门数据权限",
	DataScopeDeptAndChild: "本部门及以下数据权限",
	DataScopeSelf:         "仅本人数据权限",
}

// ParseDataScope 同时接受名称（DEPT）与持久化编码（"3"）
func ParseDataScope(s string) (DataScope, bool) {
	s = strings.TrimSpace(s)
	if ds, ok := dataScopeCodes[s]; ok {
		return ds, true
	}
	ds := DataScope(strings.ToUpper(s))
	_, ok := dataScopeLabels[ds]
	return ds, ok
}

// Code 返回持久化编码
func (d DataScope) Code() string {
	for code, ds := range dataScopeCodes {
		if ds == d {
			return code
		}
	}
	return ""
}

func (d DataScope) Label() string {
	return dataScopeLabels[d]
}

func (d DataScope) Valid() bool {
	_, ok := dataScopeLabels[d]
	return ok
}

// MenuType 菜单类型
type MenuType string

const (
	MenuTypeDirectory MenuType = "M" // 目录
	MenuTypeMenu      MenuType = "C" // 菜单
	MenuTypeButton    MenuType = "F" // 按钮
)

var menuTypeLabels = map[MenuType]string{
	MenuTypeDirectory: "目录",
	MenuTypeMenu:      "菜单",
	MenuTypeButton:    "按钮",
}

func (t MenuType) Label() string {
	return menuTypeLabels[t]
}

// Status 启用状态
type Status string

const (
	StatusNormal   Status = "0"
	StatusDisabled Status = "1"
)

var statusLabels = map[Status]string{
	StatusNormal:   "正常",
	StatusDisabled: "停用",
}

func (s Status) Label() string {
	return statusLabels[s]
}

// Scope 角色权限解析范围
type Scope int

const (
	ScopeAll        Scope = iota // 菜单、按钮与数据权限
	ScopeMenuOnly                // 目录与菜单
	ScopeButtonOnly              // 仅按钮
	ScopeDataOnly                // 仅数据权限
)

var scopeNames = map[Scope]string{
	ScopeAll:        "ALL",
	ScopeMenuOnly:   "MENU_ONLY",
	ScopeButtonOnly: "BUTTON_ONLY",
	ScopeDataOnly:   "DATA_ONLY",
}

func (s Scope) String() string {
	if name, ok := scopeNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Includes 判断菜单类型是否落在解析范围内
func (s Scope) Includes(t MenuType) bool {
	switch s {
	case ScopeAll:
		return true
	case ScopeMenuOnly:
		return t == MenuTypeDirectory || t == MenuTypeMenu
	case ScopeButtonOnly:
		return t == MenuTypeButton
	default:
		return false
	}
}

// InheritanceStrategy 菜单继承策略
type InheritanceStrategy string

const (
	InheritanceAdditive     InheritanceStrategy = "ADDITIVE"
	InheritanceOverride     InheritanceStrategy = "OVERRIDE"
	InheritanceIntersection InheritanceStrategy = "INTERSECTION"
)

func ParseInheritanceStrategy(s string) (InheritanceStrategy, error) {
	if s == "" {
		return InheritanceAdditive, nil
	}
	switch strategy := InheritanceStrategy(strings.ToUpper(strings.TrimSpace(s))); strategy {
	case InheritanceAdditive, InheritanceOverride, InheritanceIntersection:
		return strategy, nil
	default:
		return "", errors.Errorf("unknown inheritance strategy %q", s)
	}
}

// MergeStrategy 多角色权限合并策略
type MergeStrategy string

const (
	MergeUnion        MergeStrategy = "UNION"
	MergeIntersection MergeStrategy = "INTERSECTION"
	MergeDifference   MergeStrategy = "DIFFERENCE"
)

func ParseMergeStrategy(s string) (MergeStrategy, error) {
	if s == "" {
		return MergeUnion, nil
	}
	switch strategy := MergeStrategy(strings.ToUpper(strings.TrimSpace(s))); strategy {
	case MergeUnion, MergeIntersection, MergeDifference:
		return strategy, nil
	default:
		return "", errors.Errorf("unknown merge strategy %q", s)
	}
}

// User 引擎视角的用户
type User struct {
	ID               int64
	DeptID           int64
	UserType         string
	Status           Status
	Deleted          bool
	IsAdmin          bool
	DataScope        DataScope // 用户级覆盖，空表示未设置
	DataScopeEnabled bool
}

func (u *User) Active() bool {
	return u != nil && !u.Deleted && u.Status != StatusDisabled
}

// Role 引擎视角的角色
type Role struct {
	ID        int64
	Key       string
	Name      string
	Sort      int
	DataScope DataScope
	Status    Status
	Deleted   bool
	ParentID  int64
}

func (r *Role) Active() bool {
	return r != nil && !r.Deleted && r.Status != StatusDisabled
}

// Menu 菜单/按钮节点
type Menu struct {
	ID       int64
	ParentID int64
	Type     MenuType
	Visible  bool
	Status   Status
	Perms    string
	Deleted  bool
}

func (m *Menu) Active() bool {
	return m != nil && !m.Deleted && m.Status != StatusDisabled
}

// Dept 部门节点
type Dept struct {
	ID       int64
	ParentID int64
	Status   Status
	Deleted  bool
}
