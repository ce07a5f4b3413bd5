package geo

import (
	"fmt"

	"github.com/twpayne/go-geos"
)

// WKB 序列化；空区域返回 nil
func (r Region) WKB() []byte {
	if r.IsEmpty() {
		return nil
	}
	return r.g.ToWKB()
}

// FromWKB 反序列化；空输入得到空区域
func FromWKB(b []byte) (Region, error) {
	if len(b) == 0 {
		return Region{}, nil
	}
	g, err := geos.NewGeomFromWKB(b)
	if err != nil {
		return Region{}, fmt.Errorf("decode wkb: %w", err)
	}
	return FromGeom(g), nil
}

// FromWKT 解析 WKT 文本
func FromWKT(s string) (Region, error) {
	g, err := geos.NewGeomFromWKT(s)
	if err != nil {
		return Region{}, fmt.Errorf("decode wkt: %w", err)
	}
	return FromGeom(g), nil
}

// Transform：逐坐标映射（用于坐标系转换）；拓扑结构保持不变
func (r Region) Transform(fn func(Point) Point) Region {
	if r.IsEmpty() {
		return Region{}
	}
	return FromGeom(transformGeom(r.g, fn))
}

// Polygons：展开为多边形列表，每个多边形为 [外环, 内环...]；线与点成分被忽略
func (r Region) Polygons() [][][]Point {
	if r.IsEmpty() {
		return nil
	}
	var out [][][]Point
	collectPolygons(r.g, &out)
	return out
}

func transformGeom(g *geos.Geom, fn func(Point) Point) *geos.Geom {
	switch g.TypeID() {
	case geos.TypeIDPoint:
		p := fn(Point{X: g.X(), Y: g.Y()})
		return geos.NewPoint([]float64{p.X, p.Y})
	case geos.TypeIDLineString, geos.TypeIDLinearRing:
		return geos.NewLineString(mapCoords(g.CoordSeq().ToCoords(), fn))
	case geos.TypeIDPolygon:
		rings := make([][][]float64, 0, 1+g.NumInteriorRings())
		rings = append(rings, mapCoords(g.ExteriorRing().CoordSeq().ToCoords(), fn))
		for i := 0; i < g.NumInteriorRings(); i++ {
			rings = append(rings, mapCoords(g.InteriorRing(i).CoordSeq().ToCoords(), fn))
		}
		return geos.NewPolygon(rings)
	default:
		parts := make([]*geos.Geom, 0, g.NumGeometries())
		for i := 0; i < g.NumGeometries(); i++ {
			part := g.Geometry(i)
			if part.IsEmpty() {
				continue
			}
			parts = append(parts, transformGeom(part, fn))
		}
		return geos.NewCollection(g.TypeID(), parts)
	}
}

func collectPolygons(g *geos.Geom, out *[][][]Point) {
	if g.IsEmpty() {
		return
	}
	switch g.TypeID() {
	case geos.TypeIDPolygon:
		rings := [][]Point{fromCoords(g.ExteriorRing().CoordSeq().ToCoords())}
		for i := 0; i < g.NumInteriorRings(); i++ {
			rings = append(rings, fromCoords(g.InteriorRing(i).CoordSeq().ToCoords()))
		}
		*out = append(*out, rings)
	case geos.TypeIDMultiPolygon, geos.TypeIDGeometryCollection:
		for i := 0; i < g.NumGeometries(); i++ {
			collectPolygons(g.Geometry(i), out)
		}
	}
}

func mapCoords(coords [][]float64, fn func(Point) Point) [][]float64 {
	out := make([][]float64, len(coords))
	for i, c := range coords {
		p := fn(Point{X: c[0], Y: c[1]})
		out[i] = []float64{p.X, p.Y}
	}
	return out
}

func fromCoords(coords [][]float64) []Point {
	out := make([]Point, len(coords))
	for i, c := range coords {
		out[i] = Point{X: c[0], Y: c[1]}
	}
	return out
}
