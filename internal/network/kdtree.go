package network

import (
	"math"

	"food-desert/internal/geo"
)

// 文档注释：KD-Tree 最近邻（平面坐标）
// 背景：内存路网按种子位置找最近节点；节点只在构建时写入，之后只读。
// 约束：按 x/y 交替分割，中位数选择原地进行；仅支持最近一个点查询。
type kdNode struct {
	n  Node
	ax int // 0:x,1:y
	l  *kdNode
	r  *kdNode
}

func buildKD(ns []Node, depth int) *kdNode {
	if len(ns) == 0 {
		return nil
	}
	ax := depth % 2
	mid := len(ns) / 2
	selectNth(ns, mid, ax)
	node := &kdNode{n: ns[mid], ax: ax}
	node.l = buildKD(ns[:mid], depth+1)
	node.r = buildKD(ns[mid+1:], depth+1)
	return node
}

func selectNth(a []Node, n int, ax int) {
	lo, hi := 0, len(a)-1
	for lo < hi {
		p := partition(a, lo, hi, (lo+hi)/2, ax)
		if p == n {
			return
		}
		if n < p {
			hi = p - 1
		} else {
			lo = p + 1
		}
	}
}

func partition(a []Node, lo, hi, pivot, ax int) int {
	pv := a[pivot]
	a[pivot], a[hi] = a[hi], a[pivot]
	i := lo
	for j := lo; j < hi; j++ {
		if axis(a[j], ax) < axis(pv, ax) {
			a[i], a[j] = a[j], a[i]
			i++
		}
	}
	a[i], a[hi] = a[hi], a[i]
	return i
}

func axis(n Node, ax int) float64 {
	if ax == 0 {
		return n.Location.X
	}
	return n.Location.Y
}

// nearest 返回最近节点与欧氏距离；树为空时距离为 +Inf
func nearest(root *kdNode, pt geo.Point) (Node, float64) {
	best := Node{}
	bestD := math.Inf(1)
	var dfs func(k *kdNode)
	dfs = func(k *kdNode) {
		if k == nil {
			return
		}
		if d := geo.Distance(pt, k.n.Location); d < bestD {
			bestD = d
			best = k.n
		}
		key := pt.X
		if k.ax == 1 {
			key = pt.Y
		}
		q := axis(k.n, k.ax)
		first, second := k.l, k.r
		if key > q {
			first, second = k.r, k.l
		}
		dfs(first)
		// 分割平面到查询点的距离小于当前最优距离时才需要遍历另一侧
		if math.Abs(key-q) < bestD {
			dfs(second)
		}
	}
	dfs(root)
	return best, bestD
}
