package geo

import (
	"math"

	"github.com/twpayne/go-geos"
)

// PointRegion 单点区域（面积为 0）
func PointRegion(p Point) Region {
	return FromGeom(geos.NewPoint([]float64{p.X, p.Y}))
}

// Rect 轴对齐矩形
func Rect(minX, minY, maxX, maxY float64) Region {
	return FromGeom(geos.NewPolygon([][][]float64{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}))
}

// BoundsRegion 矩形包围盒转为区域
func BoundsRegion(b Bounds) Region {
	return Rect(b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// 文档注释：以 center 为圆心的正多边形近似圆
// 约束：顶点从 0° 开始，按 2π/CircleSegments 递增，因此 0°/60°/120°… 方向上恰有顶点，
// 六边形铺排中相邻圆在这些方向上的交点落在多边形边界上；radius<=0 时退化为点
func Circle(center Point, radius float64) Region {
	if radius <= 0 {
		return PointRegion(center)
	}
	ring := make([][]float64, 0, CircleSegments+1)
	for k := 0; k < CircleSegments; k++ {
		a := 2 * math.Pi * float64(k) / CircleSegments
		ring = append(ring, []float64{center.X + radius*math.Cos(a), center.Y + radius*math.Sin(a)})
	}
	ring = append(ring, ring[0])
	return FromGeom(geos.NewPolygon([][][]float64{ring}))
}

// Polygon 由外环与若干内环构造多边形；环无需显式闭合
func Polygon(shell []Point, holes ...[]Point) Region {
	if len(shell) < 3 {
		return Region{}
	}
	rings := make([][][]float64, 0, 1+len(holes))
	rings = append(rings, closedRing(shell))
	for _, h := range holes {
		if len(h) >= 3 {
			rings = append(rings, closedRing(h))
		}
	}
	return FromGeom(geos.NewPolygon(rings))
}

// Lines 多条折线的并（用于路网可达边）
func Lines(lines [][]Point) Region {
	geoms := make([]*geos.Geom, 0, len(lines))
	for _, l := range lines {
		if len(l) < 2 {
			continue
		}
		geoms = append(geoms, geos.NewLineString(toCoords(l)))
	}
	if len(geoms) == 0 {
		return Region{}
	}
	return FromGeom(geos.NewCollection(geos.TypeIDMultiLineString, geoms).UnaryUnion())
}

// Points 多点集合
func Points(pts []Point) Region {
	geoms := make([]*geos.Geom, 0, len(pts))
	for _, p := range pts {
		geoms = append(geoms, geos.NewPoint([]float64{p.X, p.Y}))
	}
	if len(geoms) == 0 {
		return Region{}
	}
	return FromGeom(geos.NewCollection(geos.TypeIDMultiPoint, geoms))
}

// Distance 两点欧氏距离
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func closedRing(pts []Point) [][]float64 {
	coords := toCoords(pts)
	first, last := pts[0], pts[len(pts)-1]
	if first != last {
		coords = append(coords, []float64{first.X, first.Y})
	}
	return coords
}

func toCoords(pts []Point) [][]float64 {
	coords := make([][]float64, len(pts))
	for i, p := range pts {
		coords[i] = []float64{p.X, p.Y}
	}
	return coords
}
