package api

import "food-desert/internal/geo"

// 文档注释：对外序列化模型
// 约束：坐标一律为经纬度（EPSG:4326）；面积为工作坐标系单位（EPSG:3857 平方米）。
type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type storeOut struct {
	ID   int64   `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

type desertOut struct {
	Polygons  [][][]latLng `json:"polygons"`
	Area      float64      `json:"area"`
	TotalArea float64      `json:"totalArea"`
}

type coverageOut struct {
	Area float64 `json:"area"`
}

type errorOut struct {
	Error string `json:"error"`
}

func toLatLng(p geo.Point) latLng {
	ll := geo.FromMercator(p)
	return latLng{Lat: ll.Lat, Lng: ll.Lng}
}

func ringToLatLng(ring []geo.Point) []latLng {
	out := make([]latLng, len(ring))
	for i, p := range ring {
		out[i] = toLatLng(p)
	}
	return out
}

// polygonsToLatLng 多边形 → 环 → 顶点
func polygonsToLatLng(r geo.Region) [][][]latLng {
	polys := r.Polygons()
	out := make([][][]latLng, 0, len(polys))
	for _, rings := range polys {
		pr := make([][]latLng, len(rings))
		for i, ring := range rings {
			pr[i] = ringToLatLng(ring)
		}
		out = append(out, pr)
	}
	return out
}
