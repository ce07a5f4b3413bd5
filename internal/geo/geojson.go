package geo

import (
	"encoding/json"
	"fmt"
)

// GeoJSON 几何对象（RFC 7946 geometry 部分）
type GeoJSON struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
}

// GeoJSON：区域的 GeoJSON 表示；多边形成分合并为 MultiPolygon，空区域为空 MultiPolygon
func (r Region) GeoJSON() GeoJSON {
	polys := r.Polygons()
	coords := make([][][][2]float64, 0, len(polys))
	for _, poly := range polys {
		rings := make([][][2]float64, 0, len(poly))
		for _, ring := range poly {
			pts := make([][2]float64, len(ring))
			for i, p := range ring {
				pts[i] = [2]float64{p.X, p.Y}
			}
			rings = append(rings, pts)
		}
		coords = append(coords, rings)
	}
	raw, _ := json.Marshal(coords)
	return GeoJSON{Type: "MultiPolygon", Coordinates: raw}
}

// RegionFromGeoJSON：解析 Polygon/MultiPolygon 几何
func RegionFromGeoJSON(g GeoJSON) (Region, error) {
	switch g.Type {
	case "Polygon":
		var rings [][][2]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return Region{}, fmt.Errorf("polygon coordinates: %w", err)
		}
		return polygonFromRings(rings), nil
	case "MultiPolygon":
		var polys [][][][2]float64
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return Region{}, fmt.Errorf("multipolygon coordinates: %w", err)
		}
		parts := make([]Region, 0, len(polys))
		for _, rings := range polys {
			parts = append(parts, polygonFromRings(rings))
		}
		return UnionAll(parts), nil
	default:
		return Region{}, fmt.Errorf("unsupported geojson type %q", g.Type)
	}
}

func polygonFromRings(rings [][][2]float64) Region {
	if len(rings) == 0 {
		return Region{}
	}
	conv := func(ring [][2]float64) []Point {
		pts := make([]Point, len(ring))
		for i, c := range ring {
			pts[i] = Point{X: c[0], Y: c[1]}
		}
		return pts
	}
	holes := make([][]Point, 0, len(rings)-1)
	for _, h := range rings[1:] {
		holes = append(holes, conv(h))
	}
	return Polygon(conv(rings[0]), holes...)
}
