// 包 lookup：外部查询适配层，按瓦片并发调用数据源并合并结果
package lookup

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"food-desert/internal/geo"
	"food-desert/internal/logger"
	"food-desert/internal/metrics"
	"food-desert/internal/observability"
	"food-desert/internal/planner"
	"food-desert/internal/sources"
	"food-desert/internal/store"
)

// Result 一轮查询的合并结果
type Result struct {
	// Records 按位置去重后的记录（工作坐标系，未分配主键）
	Records   []store.StoreRecord
	Succeeded []planner.Tile
	Failed    []planner.Tile
}

// 文档注释：外部查询适配器
// 背景：数据源使用经纬度，瓦片位于 EPSG:3857；适配器负责坐标转换与并发调度。
// 约束：单个瓦片失败记录 error 日志并视为零结果，不中止本轮、不阻止覆盖区提交；
// 没有任何健康数据源属于整体故障，本轮中止并返回错误，调用方不得提交覆盖区；
// 瓦片之间无顺序依赖，并发度由 parallelism 限制。
type Adapter struct {
	src         sources.Source
	parallelism int
	timeout     time.Duration
}

func New(src sources.Source, parallelism int, timeout time.Duration) *Adapter {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Adapter{src: src, parallelism: parallelism, timeout: timeout}
}

// Lookup：单个瓦片查询；半径以工作坐标系距离直接传给数据源，Mercator 下地面距离只会更小，搜索范围不会漏
func (a *Adapter) Lookup(ctx context.Context, tile planner.Tile) ([]store.StoreRecord, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	places, err := a.src.Lookup(ctx, geo.FromMercator(tile.Center), tile.Radius)
	if err != nil {
		return nil, err
	}
	out := make([]store.StoreRecord, 0, len(places))
	for _, p := range places {
		rec := store.NewRecord(p.Name, geo.ToMercator(p.Location))
		rec.Source = p.Source
		out = append(out, rec)
	}
	return out, nil
}

// Round：并发查询全部瓦片，阻塞至全部完成；仅在没有健康数据源时返回错误
func (a *Adapter) Round(ctx context.Context, tiles []planner.Tile) (res Result, err error) {
	ctx, span := observability.StartSpan(ctx, "lookup.Round", attribute.Int("tiles", len(tiles)))
	defer func() { observability.EndSpan(span, err) }()
	per := make([][]store.StoreRecord, len(tiles))
	ok := make([]bool, len(tiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallelism)
	for i, tile := range tiles {
		g.Go(func() error {
			recs, err := a.Lookup(gctx, tile)
			if errors.Is(err, sources.ErrNoHealthySource) {
				return err
			}
			if err != nil {
				metrics.TileFailTotal.Inc()
				logger.L().Error("lookup_tile_error", "x", tile.Center.X, "y", tile.Center.Y, "radius", tile.Radius, "err", err)
				return nil
			}
			per[i] = recs
			ok[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.RoundAbortTotal.Inc()
		logger.L().Error("lookup_round_abort", "tiles", len(tiles), "err", err)
		return Result{}, err
	}

	seen := make(map[geo.Point]struct{})
	for i, tile := range tiles {
		if !ok[i] {
			res.Failed = append(res.Failed, tile)
			continue
		}
		res.Succeeded = append(res.Succeeded, tile)
		for _, rec := range per[i] {
			if _, dup := seen[rec.Location]; dup {
				continue
			}
			seen[rec.Location] = struct{}{}
			res.Records = append(res.Records, rec)
		}
	}
	span.SetAttributes(attribute.Int("records", len(res.Records)), attribute.Int("failed", len(res.Failed)))
	logger.L().Debug("lookup_round_done", "tiles", len(tiles), "failed", len(res.Failed), "records", len(res.Records))
	return res, nil
}
