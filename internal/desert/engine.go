// 包 desert：食物荒漠判定引擎，串联覆盖区缓存、查询铺排、外部查询与荒漠几何组装
package desert

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"food-desert/internal/config"
	"food-desert/internal/coverage"
	"food-desert/internal/geo"
	"food-desert/internal/logger"
	"food-desert/internal/lookup"
	"food-desert/internal/metrics"
	"food-desert/internal/network"
	"food-desert/internal/observability"
	"food-desert/internal/planner"
	"food-desert/internal/store"
)

// Options 引擎参数
type Options struct {
	// ReachRadius 可达半径，工作坐标系距离
	ReachRadius  float64
	CommitPolicy config.CommitPolicy
}

// Result 荒漠几何及面积统计
type Result struct {
	Region    geo.Region
	Area      float64
	TotalArea float64
}

// Cell 单个店铺的 Voronoi 单元
type Cell struct {
	Store  store.StoreRecord
	Region geo.Region
}

// 文档注释：荒漠判定引擎
// 背景：外部店铺查询昂贵且限流；引擎只对尚未搜索过的区域发起查询，并把整块未覆盖区域记为已搜索。
// 约束：
//   - 店铺写入与覆盖区提交在同一事务中完成，且覆盖区提交是一轮查询的最后一步
//   - 单个瓦片查询失败只记录日志；CommitAll 策略下仍提交整块未覆盖区域
//   - 没有健康数据源时整轮中止，不提交覆盖区
//   - 坐标全部为工作坐标系（EPSG:3857）
type Engine struct {
	st   store.Store
	cov  *coverage.Cache
	plan *planner.Planner
	lk   *lookup.Adapter
	net  *network.Buffer
	opts Options
}

// New 构造引擎；net 为 nil 时店铺可达范围使用欧氏圆
func New(st store.Store, cov *coverage.Cache, plan *planner.Planner, lk *lookup.Adapter, net *network.Buffer, opts Options) *Engine {
	if opts.ReachRadius <= 0 {
		opts.ReachRadius = config.MetersPerMile
	}
	if opts.CommitPolicy == "" {
		opts.CommitPolicy = config.CommitAll
	}
	return &Engine{st: st, cov: cov, plan: plan, lk: lk, net: net, opts: opts}
}

func (e *Engine) ReachRadius() float64 { return e.opts.ReachRadius }

// 文档注释：返回区域内全部店铺
// 背景：先补齐区域中未覆盖部分（铺排→查询→写入→提交覆盖区），再从存储读取，此时结果完整
// 约束：region 非法返回包装 geo.ErrInvalidRegion 的错误
func (e *Engine) FindStores(ctx context.Context, region geo.Region) (stores []store.StoreRecord, err error) {
	ctx, span := observability.StartSpan(ctx, "desert.FindStores", attribute.Float64("area", region.Area()))
	defer func() { observability.EndSpan(span, err) }()
	if err := region.Validate(); err != nil {
		return nil, fmt.Errorf("find stores: %w", err)
	}
	uncovered, err := e.cov.UncoveredPortion(ctx, region)
	if err != nil {
		return nil, err
	}
	if !uncovered.IsEmpty() {
		tiles, err := e.plan.Plan(uncovered)
		if err != nil {
			return nil, err
		}
		if err := e.round(ctx, uncovered, tiles); err != nil {
			return nil, err
		}
	}
	return e.st.QueryStores(ctx, region)
}

// 文档注释：判定点是否位于食物荒漠
// 背景：等价于 FindStores(buffer(p, r)) 为空；缓冲圆未完全覆盖时直接以 p 为圆心、r 为半径发起单次查询，
// 该查询圆恰好覆盖缓冲圆，冷启动时每个点只产生一次外部查询
func (e *Engine) IsInDesert(ctx context.Context, p geo.Point) (desert bool, err error) {
	ctx, span := observability.StartSpan(ctx, "desert.IsInDesert", attribute.Float64("x", p.X), attribute.Float64("y", p.Y))
	defer func() { observability.EndSpan(span, err) }()
	buf := geo.Circle(p, e.opts.ReachRadius)
	uncovered, err := e.cov.UncoveredPortion(ctx, buf)
	if err != nil {
		return false, err
	}
	if !uncovered.IsEmpty() {
		if err := e.round(ctx, uncovered, e.plan.Single(p)); err != nil {
			return false, err
		}
	}
	stores, err := e.st.QueryStores(ctx, buf)
	if err != nil {
		return false, err
	}
	span.SetAttributes(attribute.Int("stores", len(stores)))
	return len(stores) == 0, nil
}

// 文档注释：荒漠几何
// 背景：区域外扩 r 后检索店铺（区域外但 r 内的店铺同样服务区域内的点），各店铺可达范围求并后从区域中扣除
// 约束：结果面积不大于输入面积；每个点都在某店铺可达范围内时结果为空
func (e *Engine) DesertGeometry(ctx context.Context, region geo.Region) (res Result, err error) {
	ctx, span := observability.StartSpan(ctx, "desert.DesertGeometry")
	defer func() { observability.EndSpan(span, err) }()
	if err := region.Validate(); err != nil {
		return Result{}, fmt.Errorf("desert geometry: %w", err)
	}
	buffered := region.Buffer(e.opts.ReachRadius)
	stores, err := e.FindStores(ctx, buffered)
	if err != nil {
		return Result{}, err
	}
	parts := make([]geo.Region, 0, len(stores))
	for _, s := range stores {
		part, err := e.StoreBuffer(ctx, s.Location, buffered)
		if err != nil {
			return Result{}, err
		}
		parts = append(parts, part)
	}
	covered := geo.UnionAll(parts)
	desert := region.Difference(covered)
	res = Result{Region: desert, Area: desert.Area(), TotalArea: region.Area()}
	span.SetAttributes(attribute.Int("stores", len(stores)), attribute.Float64("desert_area", res.Area))
	logger.L().Debug("desert_geometry_done", "stores", len(stores), "area", res.Area, "total_area", res.TotalArea)
	return res, nil
}

// StoreBuffer：单个店铺的可达范围；配置路网时为路网凹包，否则为欧氏圆
func (e *Engine) StoreBuffer(ctx context.Context, loc geo.Point, bound geo.Region) (geo.Region, error) {
	if e.net == nil {
		return geo.Circle(loc, e.opts.ReachRadius), nil
	}
	return e.net.Around(ctx, loc, e.opts.ReachRadius, bound)
}

// Voronoi：区域内店铺的 Voronoi 剖分，裁剪到区域包围盒
func (e *Engine) Voronoi(ctx context.Context, region geo.Region) ([]Cell, error) {
	stores, err := e.FindStores(ctx, region)
	if err != nil {
		return nil, err
	}
	b, ok := region.Bounds()
	if !ok || len(stores) == 0 {
		return nil, nil
	}
	sites := make([]geo.Point, len(stores))
	for i, s := range stores {
		sites[i] = s.Location
	}
	regions := geo.Voronoi(sites, geo.BoundsRegion(b))
	cells := make([]Cell, 0, len(stores))
	for i, s := range stores {
		if regions[i].IsEmpty() {
			continue
		}
		cells = append(cells, Cell{Store: s, Region: regions[i]})
	}
	return cells, nil
}

// SearchedArea 当前覆盖区面积
func (e *Engine) SearchedArea(ctx context.Context) (float64, error) {
	return e.cov.SearchedArea(ctx)
}

// 文档注释：一轮查询
// 约束：CommitSucceeded 策略只提交未覆盖区域与成功瓦片圆的交集；查询结果与覆盖区同事务落库；
// 没有健康数据源时本轮不写入任何内容
func (e *Engine) round(ctx context.Context, uncovered geo.Region, tiles []planner.Tile) error {
	t0 := time.Now()
	res, err := e.lk.Round(ctx, tiles)
	if err != nil {
		return fmt.Errorf("lookup round: %w", err)
	}
	searched := uncovered
	if e.opts.CommitPolicy == config.CommitSucceeded && len(res.Failed) > 0 {
		circles := make([]geo.Region, len(res.Succeeded))
		for i, t := range res.Succeeded {
			circles[i] = t.Region()
		}
		searched = uncovered.Intersection(geo.UnionAll(circles))
	}
	err = e.cov.WithCommit(ctx, func(tx store.Tx, commit func(geo.Region) error) error {
		if _, err := tx.InsertStores(ctx, res.Records); err != nil {
			return err
		}
		return commit(searched)
	})
	metrics.RoundDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
	if err != nil {
		return err
	}
	logger.L().Debug("round_done", "tiles", len(tiles), "failed", len(res.Failed), "records", len(res.Records), "committed_area", searched.Area())
	return nil
}
