package permission

import (
	"context"

	"github.com/ayxworxfr/go_rbac/pkg/logger"
	"go.uber.org/zap"
)

// Node 层级节点
type Node struct {
	ID       int64
	ParentID int64
}

// Forest 抽象的父子层级，菜单树与部门树共用同一套遍历
type Forest interface {
	// Kind 层级名称，用于日志与指标
	Kind() string
	// Node 查询节点，不存在返回 nil
	Node(ctx context.Context, id int64) (*Node, error)
	Children(ctx context.Context, id int64) ([]int64, error)
}

// CycleObserver 检测到环时回调，path 为检测前已走过的节点
type CycleObserver func(ctx context.Context, kind string, id int64, path []int64)

// Expander 层级展开器。所有遍历都维护 visited 集合，遇环即停并返回已累积的结果。
type Expander struct {
	observer CycleObserver
	metrics  *metrics
}

func NewExpander(observer CycleObserver) *Expander {
	return &Expander{observer: observer, metrics: newMetrics()}
}

func (e *Expander) reportCycle(ctx context.Context, kind string, id int64, path []int64) {
	logger.Warn(ctx, "hierarchy cycle detected, traversal stopped",
		zap.String("kind", kind), zap.Int64("id", id), zap.Int64s("path", path))
	e.metrics.cycle(ctx, kind)
	if e.observer != nil {
		e.observer(ctx, kind, id, path)
	}
}

// AncestorsOf 返回祖先 id，最近的在前，根在最后。
// 节点不存在或为根时返回空；父节点悬空视为根。
func (e *Expander) AncestorsOf(ctx context.Context, f Forest, id int64) ([]int64, error) {
	node, err := f.Node(ctx, id)
	if err != nil || node == nil {
		return nil, err
	}

	visited := IDSet{id: {}}
	var ancestors []int64
	for parentID := node.ParentID; parentID != 0; {
		if visited.Has(parentID) {
			e.reportCycle(ctx, f.Kind(), parentID, append([]int64{id}, ancestors...))
			break
		}
		parent, err := f.Node(ctx, parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			break
		}
		visited.Add(parentID)
		ancestors = append(ancestors, parentID)
		parentID = parent.ParentID
	}
	return ancestors, nil
}

// DescendantsOf 广度优先收集全部后代，不含 id 本身
func (e *Expander) DescendantsOf(ctx context.Context, f Forest, id int64) (IDSet, error) {
	result := IDSet{}
	visited := IDSet{id: {}}
	queue := []int64{id}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		children, err := f.Children(ctx, current)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if visited.Has(child) {
				e.reportCycle(ctx, f.Kind(), child, visited.Slice())
				return result, nil
			}
			visited.Add(child)
			result.Add(child)
			queue = append(queue, child)
		}
	}
	return result, nil
}

// Expand 按继承策略展开菜单 id 集合，返回新集合
func (e *Expander) Expand(ctx context.Context, f Forest, ids IDSet, strategy InheritanceStrategy) (IDSet, error) {
	switch strategy {
	case InheritanceOverride:
		return ids.Clone(), nil
	case InheritanceIntersection:
		return e.keepRooted(ctx, f, ids)
	default:
		return e.expandAdditive(ctx, f, ids)
	}
}

// expandAdditive 补齐每个授权节点的祖先链；
// 没有任何直接子节点被授权的节点视为整体授权，补齐其全部后代。
// 只授予部分子节点的目录不会因此获得兄弟节点，重复展开结果不变。
func (e *Expander) expandAdditive(ctx context.Context, f Forest, ids IDSet) (IDSet, error) {
	result := ids.Clone()
	for id := range ids {
		ancestors, err := e.AncestorsOf(ctx, f, id)
		if err != nil {
			return nil, err
		}
		result.Add(ancestors...)

		children, err := f.Children(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 || partiallyGranted(ids, children) {
			continue
		}
		descendants, err := e.DescendantsOf(ctx, f, id)
		if err != nil {
			return nil, err
		}
		for d := range descendants {
			result.Add(d)
		}
	}
	return result, nil
}

func partiallyGranted(ids IDSet, children []int64) bool {
	for _, c := range children {
		if ids.Has(c) {
			return true
		}
	}
	return false
}

// keepRooted 只保留祖先链完整落在集合内的节点
func (e *Expander) keepRooted(ctx context.Context, f Forest, ids IDSet) (IDSet, error) {
	result := IDSet{}
	for id := range ids {
		ancestors, err := e.AncestorsOf(ctx, f, id)
		if err != nil {
			return nil, err
		}
		rooted := true
		for _, a := range ancestors {
			if !ids.Has(a) {
				rooted = false
				break
			}
		}
		if rooted {
			result.Add(id)
		}
	}
	return result, nil
}

// Audit 对给定节点逐一回溯祖先链，返回检测到环的节点数
func (e *Expander) Audit(ctx context.Context, f Forest, ids []int64) (int, error) {
	cycles := 0
	probe := &Expander{metrics: e.metrics, observer: func(ctx context.Context, kind string, id int64, path []int64) {
		cycles++
		if e.observer != nil {
			e.observer(ctx, kind, id, path)
		}
	}}
	for _, id := range ids {
		if _, err := probe.AncestorsOf(ctx, f, id); err != nil {
			return cycles, err
		}
	}
	return cycles, nil
}

// menuForest 将 MenuHierarchy 适配为 Forest，单次解析内缓存节点
type menuForest struct {
	h     MenuHierarchy
	nodes map[int64]*Menu
}

func newMenuForest(h MenuHierarchy) *menuForest {
	return &menuForest{h: h, nodes: make(map[int64]*Menu)}
}

func (f *menuForest) Kind() string { return "menu" }

// menu 已删除的菜单视为不存在
func (f *menuForest) menu(ctx context.Context, id int64) (*Menu, error) {
	if m, ok := f.nodes[id]; ok {
		return m, nil
	}
	m, err := f.h.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "find menu %d", id)
	}
	if m != nil && m.Deleted {
		m = nil
	}
	f.nodes[id] = m
	return m, nil
}

func (f *menuForest) Node(ctx context.Context, id int64) (*Node, error) {
	m, err := f.menu(ctx, id)
	if err != nil || m == nil {
		return nil, err
	}
	return &Node{ID: m.ID, ParentID: m.ParentID}, nil
}

func (f *menuForest) Children(ctx context.Context, id int64) ([]int64, error) {
	children, err := f.h.ChildrenOf(ctx, id)
	if err != nil {
		return nil, storeErr(err, "children of menu %d", id)
	}
	ids := make([]int64, 0, len(children))
	for i := range children {
		child := children[i]
		if child.Deleted {
			continue
		}
		f.nodes[child.ID] = &child
		ids = append(ids, child.ID)
	}
	return ids, nil
}

// deptForest 将 DeptHierarchy 适配为 Forest
type deptForest struct {
	h DeptHierarchy
}

func (f deptForest) Kind() string { return "dept" }

func (f deptForest) Node(ctx context.Context, id int64) (*Node, error) {
	d, err := f.h.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "find dept %d", id)
	}
	if d == nil || d.Deleted {
		return nil, nil
	}
	return &Node{ID: d.ID, ParentID: d.ParentID}, nil
}

func (f deptForest) Children(ctx context.Context, id int64) ([]int64, error) {
	children, err := f.h.ChildrenOf(ctx, id)
	if err != nil {
		return nil, storeErr(err, "children of dept %d", id)
	}
	ids := make([]int64, 0, len(children))
	for _, child := range children {
		if !child.Deleted {
			ids = append(ids, child.ID)
		}
	}
	return ids, nil
}
