package lookup

import (
	"context"
	"errors"
	"sync"

	"food-desert/internal/geo"
	"food-desert/internal/sources"
)

// ErrSourceDown FailingSource 的固定错误
var ErrSourceDown = errors.New("lookup source unavailable")

// 文档注释：计数数据源
// 背景：测试与演练时替代真实外部服务，记录每次调用并返回预置店铺中落在查询圆内的部分
// 约束：Places 的坐标为经纬度；距离按工作坐标系计算，与瓦片半径一致
type CountingSource struct {
	mu     sync.Mutex
	calls  int
	Places []sources.Place
}

func (c *CountingSource) Name() string { return "counting" }

func (c *CountingSource) Lookup(ctx context.Context, center geo.LngLat, radius float64) ([]sources.Place, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	origin := geo.ToMercator(center)
	var out []sources.Place
	for _, p := range c.Places {
		if geo.Distance(origin, geo.ToMercator(p.Location)) <= radius {
			out = append(out, p)
		}
	}
	return out, nil
}

// Calls 已发生的查询次数
func (c *CountingSource) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// FailingSource 每次查询都失败，并记录次数
type FailingSource struct {
	mu    sync.Mutex
	calls int
}

func (f *FailingSource) Name() string { return "failing" }

func (f *FailingSource) Lookup(ctx context.Context, center geo.LngLat, radius float64) ([]sources.Place, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return nil, ErrSourceDown
}

func (f *FailingSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
