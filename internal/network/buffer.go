package network

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"food-desert/internal/geo"
	"food-desert/internal/logger"
	"food-desert/internal/metrics"
	"food-desert/internal/observability"
)

type nodeState uint8

const (
	unvisited nodeState = iota
	frontier
	settled
)

// 文档注释：路网可达缓冲
// 背景：从离店铺最近的路网节点出发，沿路网在距离预算内可达的边集合，再以凹包近似步行可达范围。
// 约束：距离标签与节点状态仅存在于单次遍历的局部表中，遍历结束即丢弃，不修改图中的节点；
// 队列为 FIFO，标签变小时重新入队（非优先队列 Dijkstra，节点可能被多次展开）。
type Buffer struct {
	g         Graph
	hullRatio float64
}

func NewBuffer(g Graph, hullRatio float64) *Buffer {
	return &Buffer{g: g, hullRatio: hullRatio}
}

// 文档注释：可达边集合
// 参数：seed 种子位置；budget 距离预算 D；bound 边界区域 B（空区域表示不限）
// 返回：按边 ID 升序的访问边；seed 在 D 内没有节点时返回空集合（非错误）
func (b *Buffer) Reachable(ctx context.Context, seed geo.Point, budget float64, bound geo.Region) ([]Edge, error) {
	var out []Edge
	err := b.g.View(ctx, func(r Reader) error {
		start, ok, err := r.NearestNode(ctx, seed, budget)
		if err != nil {
			return err
		}
		if !ok {
			metrics.NetworkBufferEmptyTotal.Inc()
			logger.L().Info("network_buffer_empty", "x", seed.X, "y", seed.Y, "budget", budget)
			return nil
		}
		labels := map[int64]float64{start.ID: 0}
		state := map[int64]nodeState{start.ID: frontier}
		nodes := map[int64]Node{start.ID: start}
		visited := map[int64]Edge{}
		queue := []int64{start.ID}
		dequeued := 0
		for len(queue) > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			id := queue[0]
			queue = queue[1:]
			if state[id] == settled {
				continue
			}
			state[id] = settled
			dequeued++
			edges, err := r.Edges(ctx, nodes[id])
			if err != nil {
				return err
			}
			for _, e := range edges {
				farID := e.Other(id)
				cand := labels[id] + e.Length
				if l, seen := labels[farID]; seen && l <= cand {
					continue
				}
				if cand >= budget {
					continue
				}
				far, loaded := nodes[farID]
				if !loaded {
					if far, err = r.Node(ctx, farID); err != nil {
						return err
					}
					nodes[farID] = far
				}
				if !bound.IsEmpty() && !bound.ContainsPoint(far.Location) {
					continue
				}
				labels[farID] = cand
				visited[e.ID] = e
				if state[farID] != frontier {
					state[farID] = frontier
					queue = append(queue, farID)
				}
			}
		}
		metrics.NetworkNodesVisited.Observe(float64(dequeued))
		out = make([]Edge, 0, len(visited))
		for _, e := range visited {
			out = append(out, e)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

// Around：可达边几何并集的凹包；无可达边时返回空区域
func (b *Buffer) Around(ctx context.Context, seed geo.Point, budget float64, bound geo.Region) (region geo.Region, err error) {
	ctx, span := observability.StartSpan(ctx, "network.Buffer")
	defer func() { observability.EndSpan(span, err) }()
	edges, err := b.Reachable(ctx, seed, budget, bound)
	if err != nil {
		return geo.Empty(), err
	}
	span.SetAttributes(attribute.Int("edges", len(edges)))
	if len(edges) == 0 {
		return geo.Empty(), nil
	}
	lines := make([]geo.Region, len(edges))
	for i, e := range edges {
		lines[i] = e.Geometry
	}
	return geo.UnionAll(lines).ConcaveHull(b.hullRatio), nil
}
