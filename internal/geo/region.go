// 包 geo：区域代数（并、差、交、缓冲、包含/相交、面积、代表点），底层几何内核为 GEOS
package geo

import (
	"errors"
	"fmt"

	"github.com/twpayne/go-geos"
)

// ErrInvalidRegion 区域几何非法（自相交/退化），属于不可恢复错误
var ErrInvalidRegion = errors.New("invalid region geometry")

// BufferQuadrantSegments 缓冲生成圆时每象限的线段数；总段数 4*9=36 为 6 的倍数，与六边形铺排顶点对齐
const BufferQuadrantSegments = 9

// CircleSegments 查询瓦片圆的多边形边数
const CircleSegments = 4 * BufferQuadrantSegments

// Point 工作坐标系（EPSG:3857）中的点
type Point struct {
	X float64
	Y float64
}

// Bounds 轴对齐包围矩形
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// Contains：点是否落在矩形内（含边界）
func (b Bounds) Contains(p Point) bool {
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

// 文档注释：不可变区域值（Polygon/MultiPolygon，必要时为退化的线/点集合）
// 约束：零值即空区域，空区域面积为 0，是并运算的单位元；所有运算返回新值，不修改接收者。
// GEOS 默认上下文内部加锁，Region 可在多个 goroutine 间共享。
type Region struct {
	g *geos.Geom
}

// Empty 返回空区域
func Empty() Region { return Region{} }

// FromGeom 包装 GEOS 几何；nil 或空几何统一为空区域
func FromGeom(g *geos.Geom) Region {
	if g == nil || g.IsEmpty() {
		return Region{}
	}
	return Region{g: g}
}

// Geom 返回底层几何；空区域返回 nil
func (r Region) Geom() *geos.Geom { return r.g }

// IsEmpty：空区域判定
func (r Region) IsEmpty() bool { return r.g == nil || r.g.IsEmpty() }

// Union：并集
func (r Region) Union(o Region) Region {
	switch {
	case r.IsEmpty():
		return o
	case o.IsEmpty():
		return r
	}
	return FromGeom(r.g.Union(o.g))
}

// Difference：差集 r \ o
func (r Region) Difference(o Region) Region {
	if r.IsEmpty() {
		return Region{}
	}
	if o.IsEmpty() {
		return r
	}
	return FromGeom(r.g.Difference(o.g))
}

// Intersection：交集
func (r Region) Intersection(o Region) Region {
	if r.IsEmpty() || o.IsEmpty() {
		return Region{}
	}
	return FromGeom(r.g.Intersection(o.g))
}

// Buffer：按距离外扩，圆弧按 BufferQuadrantSegments 离散
func (r Region) Buffer(d float64) Region {
	if r.IsEmpty() {
		return Region{}
	}
	return FromGeom(r.g.Buffer(d, BufferQuadrantSegments))
}

// Contains：o 是否完全落在 r 内；空区域不包含任何区域
func (r Region) Contains(o Region) bool {
	if r.IsEmpty() || o.IsEmpty() {
		return false
	}
	return r.g.Contains(o.g)
}

// ContainsPoint：点是否在区域内部
func (r Region) ContainsPoint(p Point) bool {
	return r.Contains(PointRegion(p))
}

// Intersects：是否相交
func (r Region) Intersects(o Region) bool {
	if r.IsEmpty() || o.IsEmpty() {
		return false
	}
	return r.g.Intersects(o.g)
}

// Area：面积（工作坐标系平方米）
func (r Region) Area() float64 {
	if r.IsEmpty() {
		return 0
	}
	return r.g.Area()
}

// RepresentativePoint：保证落在区域上的一点；空区域返回 false
func (r Region) RepresentativePoint() (Point, bool) {
	if r.IsEmpty() {
		return Point{}, false
	}
	p := r.g.PointOnSurface()
	if p == nil || p.IsEmpty() {
		return Point{}, false
	}
	return Point{X: p.X(), Y: p.Y()}, true
}

// Bounds：包围矩形；空区域返回 false
func (r Region) Bounds() (Bounds, bool) {
	if r.IsEmpty() {
		return Bounds{}, false
	}
	b := r.g.Bounds()
	return Bounds{MinX: b.MinX, MinY: b.MinY, MaxX: b.MaxX, MaxY: b.MaxY}, true
}

// Simplify：保拓扑简化，容差为工作坐标系距离
func (r Region) Simplify(tolerance float64) Region {
	if r.IsEmpty() || tolerance <= 0 {
		return r
	}
	return FromGeom(r.g.TopologyPreserveSimplify(tolerance))
}

// ConcaveHull：凹包，ratio 取值 0..1，越小越贴合；不保留洞
func (r Region) ConcaveHull(ratio float64) Region {
	if r.IsEmpty() {
		return Region{}
	}
	return FromGeom(r.g.ConcaveHull(ratio, 0))
}

// Validate：空区域视为合法；非法几何返回包装 ErrInvalidRegion 的错误并附 GEOS 原因
func (r Region) Validate() error {
	if r.IsEmpty() {
		return nil
	}
	if !r.g.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidRegion, r.g.IsValidReason())
	}
	return nil
}

// UnionAll：批量并集
func UnionAll(rs []Region) Region {
	geoms := make([]*geos.Geom, 0, len(rs))
	for _, r := range rs {
		if !r.IsEmpty() {
			geoms = append(geoms, r.g)
		}
	}
	switch len(geoms) {
	case 0:
		return Region{}
	case 1:
		return Region{g: geoms[0]}
	}
	return FromGeom(geos.NewCollection(geos.TypeIDGeometryCollection, geoms).UnaryUnion())
}

// String：WKT 文本，便于日志与错误信息
func (r Region) String() string {
	if r.IsEmpty() {
		return "POLYGON EMPTY"
	}
	return r.g.ToWKT()
}
