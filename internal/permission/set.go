package permission

import (
	"cmp"
	"encoding/json"
	"maps"
	"slices"

	"github.com/samber/lo"
)

// IDSet 整数 id 集合
type IDSet map[int64]struct{}

// NewIDSet 由切片构造集合
func NewIDSet(ids ...int64) IDSet {
	return lo.SliceToMap(ids, func(id int64) (int64, struct{}) { return id, struct{}{} })
}

func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Add(ids ...int64) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

// Slice 返回升序切片
func (s IDSet) Slice() []int64 {
	return sortedKeys(s)
}

func (s IDSet) Clone() IDSet {
	if s == nil {
		return IDSet{}
	}
	return maps.Clone(s)
}

// Set 权限集合，构造后只读，所有运算都返回新值。
// 零值等价于空集合。
type Set struct {
	menuIDs       map[int64]struct{}
	codes         map[string]struct{}
	scopes        map[DataScope]struct{}
	customDeptIDs map[int64]struct{}
}

// Empty 空权限集合，UNION 的单位元
func Empty() Set {
	return Set{}
}

// NewSet 构造权限集合。空编码被忽略；不含 CUSTOM 时自定义部门被丢弃。
func NewSet(menuIDs []int64, codes []string, scopes []DataScope, customDeptIDs []int64) Set {
	s := Set{
		menuIDs: toKeys(menuIDs),
		codes:   toKeys(lo.Compact(codes)),
		scopes:  toKeys(lo.Filter(scopes, func(ds DataScope, _ int) bool { return ds.Valid() })),
	}
	s.customDeptIDs = toKeys(customDeptIDs)
	return s.normalize()
}

func (s Set) normalize() Set {
	if _, ok := s.scopes[DataScopeCustom]; !ok {
		s.customDeptIDs = nil
	}
	return s
}

// Union 字段级并集
func (s Set) Union(o Set) Set {
	return Set{
		menuIDs:       union(s.menuIDs, o.menuIDs),
		codes:         union(s.codes, o.codes),
		scopes:        union(s.scopes, o.scopes),
		customDeptIDs: union(s.customDeptIDs, o.customDeptIDs),
	}.normalize()
}

// Intersect 字段级交集
func (s Set) Intersect(o Set) Set {
	return Set{
		menuIDs:       intersect(s.menuIDs, o.menuIDs),
		codes:         intersect(s.codes, o.codes),
		scopes:        intersect(s.scopes, o.scopes),
		customDeptIDs: intersect(s.customDeptIDs, o.customDeptIDs),
	}.normalize()
}

// Difference 字段级差集 s \ o
func (s Set) Difference(o Set) Set {
	return Set{
		menuIDs:       difference(s.menuIDs, o.menuIDs),
		codes:         difference(s.codes, o.codes),
		scopes:        difference(s.scopes, o.scopes),
		customDeptIDs: difference(s.customDeptIDs, o.customDeptIDs),
	}.normalize()
}

// Merge 按策略合并两个集合
func (s Set) Merge(o Set, strategy MergeStrategy) Set {
	switch strategy {
	case MergeIntersection:
		return s.Intersect(o)
	case MergeDifference:
		return s.Difference(o)
	default:
		return s.Union(o)
	}
}

// MergeAll 从第一个元素开始从左到右折叠。空列表返回空集合，单元素原样返回。
func MergeAll(sets []Set, strategy MergeStrategy) Set {
	if len(sets) == 0 {
		return Empty()
	}
	result := sets[0]
	for _, s := range sets[1:] {
		result = result.Merge(s, strategy)
	}
	return result
}

// withMenus 替换菜单与权限编码，保留数据权限
func (s Set) withMenus(menuIDs IDSet, codes []string) Set {
	return Set{
		menuIDs:       maps.Clone(map[int64]struct{}(menuIDs)),
		codes:         toKeys(lo.Compact(codes)),
		scopes:        s.scopes,
		customDeptIDs: s.customDeptIDs,
	}
}

func (s Set) HasPermission(code string) bool {
	_, ok := s.codes[code]
	return ok
}

func (s Set) HasMenu(id int64) bool {
	_, ok := s.menuIDs[id]
	return ok
}

func (s Set) HasDataScope(ds DataScope) bool {
	_, ok := s.scopes[ds]
	return ok
}

func (s Set) IsEmpty() bool {
	return len(s.menuIDs) == 0 && len(s.codes) == 0 && len(s.scopes) == 0 && len(s.customDeptIDs) == 0
}

// MenuIDs 返回升序菜单 id
func (s Set) MenuIDs() []int64 {
	return sortedKeys(s.menuIDs)
}

// PermissionCodes 返回排序后的权限编码
func (s Set) PermissionCodes() []string {
	return sortedKeys(s.codes)
}

func (s Set) DataScopes() []DataScope {
	return sortedKeys(s.scopes)
}

func (s Set) CustomDeptIDs() []int64 {
	return sortedKeys(s.customDeptIDs)
}

// Equal 判断两个集合的四个字段是否完全一致
func (s Set) Equal(o Set) bool {
	return maps.Equal(nonNil(s.menuIDs), nonNil(o.menuIDs)) &&
		maps.Equal(nonNil(s.codes), nonNil(o.codes)) &&
		maps.Equal(nonNil(s.scopes), nonNil(o.scopes)) &&
		maps.Equal(nonNil(s.customDeptIDs), nonNil(o.customDeptIDs))
}

type setJSON struct {
	MenuIDs       []int64     `json:"menu_ids"`
	Permissions   []string    `json:"permissions"`
	DataScopes    []DataScope `json:"data_scopes"`
	CustomDeptIDs []int64     `json:"custom_dept_ids,omitempty"`
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(setJSON{
		MenuIDs:       s.MenuIDs(),
		Permissions:   s.PermissionCodes(),
		DataScopes:    s.DataScopes(),
		CustomDeptIDs: s.CustomDeptIDs(),
	})
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var v setJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = NewSet(v.MenuIDs, v.Permissions, v.DataScopes, v.CustomDeptIDs)
	return nil
}

func toKeys[K comparable](items []K) map[K]struct{} {
	if len(items) == 0 {
		return nil
	}
	return lo.SliceToMap(items, func(k K) (K, struct{}) { return k, struct{}{} })
}

func sortedKeys[K cmp.Ordered](m map[K]struct{}) []K {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}

func nonNil[K comparable](m map[K]struct{}) map[K]struct{} {
	if m == nil {
		return map[K]struct{}{}
	}
	return m
}

func union[K comparable](a, b map[K]struct{}) map[K]struct{} {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[K]struct{}, len(a)+len(b))
	maps.Copy(out, a)
	maps.Copy(out, b)
	return out
}

func intersect[K comparable](a, b map[K]struct{}) map[K]struct{} {
	var out map[K]struct{}
	for k := range a {
		if _, ok := b[k]; ok {
			if out == nil {
				out = make(map[K]struct{})
			}
			out[k] = struct{}{}
		}
	}
	return out
}

func difference[K comparable](a, b map[K]struct{}) map[K]struct{} {
	var out map[K]struct{}
	for k := range a {
		if _, ok := b[k]; !ok {
			if out == nil {
				out = make(map[K]struct{})
			}
			out[k] = struct{}{}
		}
	}
	return out
}
