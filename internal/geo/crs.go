package geo

import "math"

// 文档注释：WGS84（EPSG:4326）与 Web Mercator（EPSG:3857）互转
// 背景：外部数据源与 HTTP 调用方使用经纬度；内部区域代数全部在 3857 平面米制坐标中进行
// 约束：纬度截断到 ±MaxLatitude，避免极区投影发散

const (
	earthRadius = 6378137.0
	// MaxLatitude Web Mercator 可表示的最大纬度
	MaxLatitude = 85.05112878
)

// LngLat 经纬度（度）
type LngLat struct {
	Lng float64
	Lat float64
}

// ToMercator：经纬度转 3857 米制坐标
func ToMercator(ll LngLat) Point {
	lat := math.Max(-MaxLatitude, math.Min(MaxLatitude, ll.Lat))
	x := earthRadius * ll.Lng * math.Pi / 180
	y := earthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return Point{X: x, Y: y}
}

// FromMercator：3857 米制坐标转经纬度
func FromMercator(p Point) LngLat {
	lng := p.X / earthRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(p.Y/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return LngLat{Lng: lng, Lat: lat}
}

// RegionToMercator 整个区域从 4326 转到 3857；Point 的 X/Y 分别为经度/纬度
func RegionToMercator(r Region) Region {
	return r.Transform(func(p Point) Point { return ToMercator(LngLat{Lng: p.X, Lat: p.Y}) })
}

// RegionFromMercator 整个区域从 3857 转到 4326
func RegionFromMercator(r Region) Region {
	return r.Transform(func(p Point) Point {
		ll := FromMercator(p)
		return Point{X: ll.Lng, Y: ll.Lat}
	})
}

// Frame：经纬度框转 3857 矩形；Mercator 按轴单调，角点换算即可。框退化为线或点时返回空区域
func Frame(lng0, lng1, lat0, lat1 float64) Region {
	a := ToMercator(LngLat{Lng: math.Min(lng0, lng1), Lat: math.Min(lat0, lat1)})
	b := ToMercator(LngLat{Lng: math.Max(lng0, lng1), Lat: math.Max(lat0, lat1)})
	if a.X == b.X || a.Y == b.Y {
		return Region{}
	}
	return Rect(a.X, a.Y, b.X, b.Y)
}
