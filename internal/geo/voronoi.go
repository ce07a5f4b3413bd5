package geo

import "github.com/twpayne/go-geos"

// 文档注释：以 sites 为生成元的 Voronoi 剖分，结果裁剪到 clip
// 约束：返回切片与 sites 一一对应；重复站点或裁剪后为空的单元为空区域
func Voronoi(sites []Point, clip Region) []Region {
	cells := make([]Region, len(sites))
	if len(sites) == 0 || clip.IsEmpty() {
		return cells
	}
	if len(sites) == 1 {
		cells[0] = clip
		return cells
	}
	env, _ := clip.Bounds()
	diagram := Points(sites).g.VoronoiDiagram(BoundsRegion(env).g, 0, false)
	if diagram == nil {
		return cells
	}
	for i := 0; i < diagram.NumGeometries(); i++ {
		cell := FromGeom(diagram.Geometry(i))
		for j, s := range sites {
			if !cells[j].IsEmpty() {
				continue
			}
			if cell.g.Intersects(geos.NewPoint([]float64{s.X, s.Y})) {
				cells[j] = cell.Intersection(clip)
				break
			}
		}
	}
	return cells
}
