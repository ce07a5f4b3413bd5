// 包 network：道路/步行路网图的存取与有界可达范围计算
package network

import (
	"context"
	"errors"

	"food-desert/internal/geo"
)

// ErrNodeNotFound 指定主键的节点不存在
var ErrNodeNotFound = errors.New("network node not found")

// Node 路网节点；Cardinality 为预期出度
type Node struct {
	ID          int64
	Cardinality int
	Location    geo.Point
}

// 文档注释：路网边
// 约束：加载后不可变；以 ID 作为身份，同 ID 即同一条边
type Edge struct {
	ID       int64
	From     int64
	To       int64
	Length   float64
	Geometry geo.Region
}

// Other 返回边的另一端节点
func (e Edge) Other(id int64) int64 {
	if e.From == id {
		return e.To
	}
	return e.From
}

// Reader：一次遍历内的一致性只读视图
type Reader interface {
	// NearestNode 返回 maxDist 内最近的节点；不存在时 ok=false
	NearestNode(ctx context.Context, p geo.Point, maxDist float64) (n Node, ok bool, err error)
	Node(ctx context.Context, id int64) (Node, error)
	Edges(ctx context.Context, n Node) ([]Edge, error)
}

// 文档注释：路网图
// 约束：View 内的全部读取位于同一读事务/读锁中，遍历期间图视图稳定
type Graph interface {
	View(ctx context.Context, fn func(Reader) error) error
}
