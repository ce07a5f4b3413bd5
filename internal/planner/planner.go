// 包 planner：把未覆盖区域铺排为固定半径的查询圆（六边形铺排），控制外部查询次数
package planner

import (
	"errors"
	"fmt"
	"math"

	"food-desert/internal/geo"
	"food-desert/internal/logger"
	"food-desert/internal/metrics"
)

// ErrInvalidInput 未覆盖区域几何非法，查询轮次必须中止
var ErrInvalidInput = errors.New("planner: invalid uncovered region")

// Tile 单次外部查询的圆形范围
type Tile struct {
	Center geo.Point
	Radius float64
}

// Region 查询圆的多边形近似
func (t Tile) Region() geo.Region { return geo.Circle(t.Center, t.Radius) }

// Options 铺排参数
type Options struct {
	// SimplifyTolerance 保拓扑简化容差（工作坐标系距离）
	SimplifyTolerance float64
	// MinIntersectionArea 候选圆与区域交集面积的下限，低于该值视为多边形近似误差
	MinIntersectionArea float64
}

// DefaultOptions 默认铺排参数
func DefaultOptions() Options {
	return Options{SimplifyTolerance: 1.0, MinIntersectionArea: 1e-6}
}

// Planner 六边形铺排器，半径在构造时固定
type Planner struct {
	radius float64
	opts   Options
}

func New(radius float64, opts Options) *Planner {
	return &Planner{radius: radius, opts: opts}
}

func (p *Planner) Radius() float64 { return p.radius }

// Single：以 center 为圆心的单个查询圆
func (p *Planner) Single(center geo.Point) []Tile {
	metrics.TilesPlannedTotal.Inc()
	return []Tile{{Center: center, Radius: p.radius}}
}

// 文档注释：六边形铺排
// 背景：候选圆心位于以简化后区域包围盒左下角为锚点的三角格点上；第 i 列原点为
// (minX+1.5·r·i, minY+(√3/2)·r·i)，列内第 j 个点（j 自 -⌊i/2⌋ 起）沿 y 方向偏移 √3·r·j，
// 生成到 y 超过 maxY 为止（含首个越界点）。
// 约束：
//   - 空区域返回空列表；面积为 0 但非空（退化为线/点）时返回一个落在区域上的查询圆
//   - 区域非法返回 ErrInvalidInput
//   - 候选圆与区域交集面积必须大于 MinIntersectionArea 才输出
//   - 列推进到原点 x 越过 maxX 后再多生成一列；原点沿对角线经上边越界时不终止，
//     否则扁长区域东侧会遗漏
func (p *Planner) Plan(uncovered geo.Region) ([]Tile, error) {
	if uncovered.IsEmpty() {
		return nil, nil
	}
	if err := uncovered.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if uncovered.Area() == 0 {
		return p.degenerate(uncovered), nil
	}
	simple := uncovered.Simplify(p.opts.SimplifyTolerance)
	if simple.IsEmpty() || simple.Validate() != nil {
		simple = uncovered
	}
	b, _ := simple.Bounds()
	r := p.radius
	rowStep := math.Sqrt(3) * r
	var tiles []Tile
	for i := 0; ; i++ {
		ox := b.MinX + 1.5*r*float64(i)
		oy := b.MinY + rowStep/2*float64(i)
		for j := -(i / 2); ; j++ {
			c := geo.Point{X: ox, Y: oy + rowStep*float64(j)}
			if p.candidate(c, b) && geo.Circle(c, r).Intersection(simple).Area() > p.opts.MinIntersectionArea {
				tiles = append(tiles, Tile{Center: c, Radius: r})
			}
			if c.Y > b.MaxY {
				break
			}
		}
		if ox > b.MaxX {
			break
		}
	}
	if len(tiles) == 0 {
		tiles = p.degenerate(simple)
	}
	metrics.TilesPlannedTotal.Add(float64(len(tiles)))
	logger.L().Debug("planner_tiles", "count", len(tiles), "area", simple.Area(), "radius", r)
	return tiles, nil
}

// candidate：圆心到包围盒距离不超过半径，才值得做精确相交计算
func (p *Planner) candidate(c geo.Point, b geo.Bounds) bool {
	dx := math.Max(0, math.Max(b.MinX-c.X, c.X-b.MaxX))
	dy := math.Max(0, math.Max(b.MinY-c.Y, c.Y-b.MaxY))
	return math.Hypot(dx, dy) <= p.radius
}

func (p *Planner) degenerate(r geo.Region) []Tile {
	pt, ok := r.RepresentativePoint()
	if !ok {
		return nil
	}
	metrics.TilesPlannedTotal.Inc()
	return []Tile{{Center: pt, Radius: p.radius}}
}
