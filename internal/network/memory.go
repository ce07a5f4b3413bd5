package network

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"food-desert/internal/geo"
)

// 文档注释：进程内路网图
// 背景：测试与小规模路网使用；节点最近邻走 KD-Tree。
// 约束：Add* 之后需调用 Build 重建索引；View 持读锁，遍历期间写入被阻塞。
type MemoryGraph struct {
	mu    sync.RWMutex
	nodes map[int64]Node
	adj   map[int64][]Edge
	edges map[int64]Edge
	kd    *kdNode
}

var _ Graph = (*MemoryGraph)(nil)

func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{nodes: map[int64]Node{}, adj: map[int64][]Edge{}, edges: map[int64]Edge{}}
}

func (g *MemoryGraph) AddNode(n Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[n.ID] = n
}

// AddEdge 加入边；Geometry 为空时以两端节点连线代替，Length 为 0 时取几何长度
func (g *MemoryGraph) AddEdge(e Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	from, ok := g.nodes[e.From]
	if !ok {
		return fmt.Errorf("edge %d: %w: %d", e.ID, ErrNodeNotFound, e.From)
	}
	to, ok := g.nodes[e.To]
	if !ok {
		return fmt.Errorf("edge %d: %w: %d", e.ID, ErrNodeNotFound, e.To)
	}
	if e.Geometry.IsEmpty() {
		e.Geometry = geo.Lines([][]geo.Point{{from.Location, to.Location}})
	}
	if e.Length == 0 {
		e.Length = geo.Distance(from.Location, to.Location)
	}
	if _, dup := g.edges[e.ID]; dup {
		return nil
	}
	g.edges[e.ID] = e
	g.adj[e.From] = append(g.adj[e.From], e)
	if e.To != e.From {
		g.adj[e.To] = append(g.adj[e.To], e)
	}
	return nil
}

// Build 重建最近邻索引并刷新节点出度
func (g *MemoryGraph) Build() {
	g.mu.Lock()
	defer g.mu.Unlock()
	ns := make([]Node, 0, len(g.nodes))
	for id, n := range g.nodes {
		n.Cardinality = len(g.adj[id])
		g.nodes[id] = n
		ns = append(ns, n)
	}
	sort.Slice(ns, func(i, j int) bool { return ns[i].ID < ns[j].ID })
	g.kd = buildKD(ns, 0)
}

func (g *MemoryGraph) View(ctx context.Context, fn func(Reader) error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fn(memReader{g})
}

type memReader struct{ g *MemoryGraph }

func (r memReader) NearestNode(ctx context.Context, p geo.Point, maxDist float64) (Node, bool, error) {
	n, d := nearest(r.g.kd, p)
	if d > maxDist {
		return Node{}, false, nil
	}
	return n, true, nil
}

func (r memReader) Node(ctx context.Context, id int64) (Node, error) {
	n, ok := r.g.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	return n, nil
}

func (r memReader) Edges(ctx context.Context, n Node) ([]Edge, error) {
	return r.g.adj[n.ID], nil
}
