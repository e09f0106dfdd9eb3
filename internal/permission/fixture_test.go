package permission

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeStore 内存版存储，实现全部查询接口
type fakeStore struct {
	mu        sync.RWMutex
	users     map[int64]*User
	admins    map[int64]bool
	roles     map[int64]*Role
	userRoles map[int64][]int64
	menus     map[int64]*Menu
	roleMenus map[int64][]int64
	depts     map[int64]*Dept
	roleDepts map[int64][]int64
	userDepts map[int64][]int64
	fail      error
	calls     atomic.Int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     map[int64]*User{},
		admins:    map[int64]bool{},
		roles:     map[int64]*Role{},
		userRoles: map[int64][]int64{},
		menus:     map[int64]*Menu{},
		roleMenus: map[int64][]int64{},
		depts:     map[int64]*Dept{},
		roleDepts: map[int64][]int64{},
		userDepts: map[int64][]int64{},
	}
}

var errStoreDown = errors.New("connection refused")

func (s *fakeStore) enter() error {
	s.calls.Add(1)
	return s.fail
}

func (s *fakeStore) setFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *fakeStore) addMenu(id, parentID int64, typ MenuType, perms string) *fakeStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.menus[id] = &Menu{ID: id, ParentID: parentID, Type: typ, Perms: perms, Status: StatusNormal, Visible: true}
	return s
}

func (s *fakeStore) addRole(id int64, ds DataScope) *fakeStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[id] = &Role{ID: id, Key: "role", Name: "role", DataScope: ds, Status: StatusNormal}
	return s
}

func (s *fakeStore) grantMenus(roleID int64, menuIDs ...int64) *fakeStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roleMenus[roleID] = menuIDs
	return s
}

func (s *fakeStore) grantDepts(roleID int64, deptIDs ...int64) *fakeStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roleDepts[roleID] = deptIDs
	return s
}

func (s *fakeStore) addUser(id, deptID int64, roleIDs ...int64) *fakeStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = &User{ID: id, DeptID: deptID, Status: StatusNormal}
	s.userRoles[id] = roleIDs
	return s
}

func (s *fakeStore) setUserRoles(id int64, roleIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userRoles[id] = roleIDs
}

func (s *fakeStore) updateUser(id int64, fn func(*User)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.users[id])
}

func (s *fakeStore) updateRole(id int64, fn func(*Role)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.roles[id])
}

func (s *fakeStore) updateMenu(id int64, fn func(*Menu)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.menus[id])
}

func (s *fakeStore) addDept(id, parentID int64) *fakeStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depts[id] = &Dept{ID: id, ParentID: parentID, Status: StatusNormal}
	return s
}

func (s *fakeStore) moveDept(id, parentID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depts[id].ParentID = parentID
}

func (s *fakeStore) setUserDepts(userID int64, deptIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userDepts[userID] = deptIDs
}

func (s *fakeStore) lookups() (UserLookup, RoleLookup, MenuHierarchy, DeptHierarchy) {
	return fakeUsers{s}, fakeRoles{s}, fakeMenus{s}, fakeDepts{s}
}

type fakeUsers struct{ *fakeStore }

func (f fakeUsers) FindByID(_ context.Context, id int64) (*User, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if u, ok := f.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (f fakeUsers) IsSuperAdmin(_ context.Context, id int64) (bool, error) {
	if err := f.enter(); err != nil {
		return false, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.admins[id], nil
}

type fakeRoles struct{ *fakeStore }

func (f fakeRoles) FindByID(_ context.Context, id int64) (*Role, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if r, ok := f.roles[id]; ok {
		c := *r
		return &c, nil
	}
	return nil, nil
}

func (f fakeRoles) FindRolesOfUser(_ context.Context, userID int64) ([]Role, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	var roles []Role
	for _, id := range f.userRoles[userID] {
		if r, ok := f.roles[id]; ok {
			roles = append(roles, *r)
		}
	}
	return roles, nil
}

type fakeMenus struct{ *fakeStore }

func (f fakeMenus) FindByID(_ context.Context, id int64) (*Menu, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if m, ok := f.menus[id]; ok {
		c := *m
		return &c, nil
	}
	return nil, nil
}

func (f fakeMenus) ChildrenOf(_ context.Context, id int64) ([]Menu, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	var children []Menu
	for _, m := range f.menus {
		if m.ParentID == id {
			children = append(children, *m)
		}
	}
	slices.SortFunc(children, func(a, b Menu) int { return int(a.ID - b.ID) })
	return children, nil
}

func (f fakeMenus) MenusOfRole(_ context.Context, roleID int64) ([]Menu, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	var menus []Menu
	for _, id := range f.roleMenus[roleID] {
		if m, ok := f.menus[id]; ok {
			menus = append(menus, *m)
		}
	}
	return menus, nil
}

func (f fakeMenus) AllIDs(_ context.Context) ([]int64, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]int64, 0, len(f.menus))
	for id := range f.menus {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

type fakeDepts struct{ *fakeStore }

func (f fakeDepts) FindByID(_ context.Context, id int64) (*Dept, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if d, ok := f.depts[id]; ok {
		c := *d
		return &c, nil
	}
	return nil, nil
}

func (f fakeDepts) ChildrenOf(_ context.Context, id int64) ([]Dept, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	var children []Dept
	for _, d := range f.depts {
		if d.ParentID == id {
			children = append(children, *d)
		}
	}
	slices.SortFunc(children, func(a, b Dept) int { return int(a.ID - b.ID) })
	return children, nil
}

func (f fakeDepts) DeptIDsOfRole(_ context.Context, roleID int64) ([]int64, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.roleDepts[roleID]), nil
}

func (f fakeDepts) CustomDeptIDsOfUser(_ context.Context, userID int64) ([]int64, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.userDepts[userID]), nil
}

func (f fakeDepts) AllIDs(_ context.Context) ([]int64, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]int64, 0, len(f.depts))
	for id := range f.depts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// systemMenus 系统管理目录：
//
//	1 系统管理(M)
//	├── 2 用户管理(C) system:user:list
//	│   ├── 3 新增(F) system:user:add
//	│   └── 4 修改(F) system:user:edit
//	└── 5 角色管理(C) system:role:list
//	    └── 6 新增(F) system:role:add
func systemMenus(s *fakeStore) *fakeStore {
	return s.addMenu(1, 0, MenuTypeDirectory, "").
		addMenu(2, 1, MenuTypeMenu, "system:user:list").
		addMenu(3, 2, MenuTypeButton, "system:user:add").
		addMenu(4, 2, MenuTypeButton, "system:user:edit").
		addMenu(5, 1, MenuTypeMenu, "system:role:list").
		addMenu(6, 5, MenuTypeButton, "system:role:add")
}

// deptTree 1 总公司 -> 2 研发部 -> 3 后端组，1 -> 4 市场部
func deptTree(s *fakeStore) *fakeStore {
	return s.addDept(1, 0).addDept(2, 1).addDept(3, 2).addDept(4, 1)
}

func newTestEngine(t *testing.T, s *fakeStore, mutate ...func(*Options)) *Engine {
	t.Helper()
	opts := DefaultOptions()
	for _, fn := range mutate {
		fn(&opts)
	}
	users, roles, menus, depts := s.lookups()
	e := NewEngine(users, roles, menus, depts, NewMemoryCache(0), opts)
	t.Cleanup(func() { _ = e.Close() })
	return e
}
