package sources

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"food-desert/internal/geo"
)

// PlaceEnv 过滤表达式可见的字段
type PlaceEnv struct {
	Name   string  `expr:"name"`
	Lng    float64 `expr:"lng"`
	Lat    float64 `expr:"lat"`
	Source string  `expr:"source"`
}

// 文档注释：按表达式过滤数据源结果
// 背景：部分数据源会返回加油站便利店等非杂货店结果，部署方可用表达式剔除，
// 例如 `name != "" && !(name contains "Gas")`
// 约束：表达式必须为布尔类型，编译期校验；运行期出错的记录被丢弃
type FilteredSource struct {
	src     Source
	program *vm.Program
}

func NewFiltered(src Source, expression string) (*FilteredSource, error) {
	program, err := expr.Compile(expression, expr.Env(PlaceEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile store filter '%s': %w", expression, err)
	}
	return &FilteredSource{src: src, program: program}, nil
}

func (f *FilteredSource) Name() string { return f.src.Name() }

// Heartbeat 透传内层数据源的健康探测
func (f *FilteredSource) Heartbeat(ctx context.Context) error {
	if hb, ok := f.src.(Heartbeater); ok {
		return hb.Heartbeat(ctx)
	}
	return nil
}

func (f *FilteredSource) Lookup(ctx context.Context, center geo.LngLat, radiusMeters float64) ([]Place, error) {
	places, err := f.src.Lookup(ctx, center, radiusMeters)
	if err != nil {
		return nil, err
	}
	out := places[:0]
	for _, p := range places {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Match：单条记录是否通过过滤
func (f *FilteredSource) Match(p Place) bool {
	env := PlaceEnv{Name: p.Name, Lng: p.Location.Lng, Lat: p.Location.Lat, Source: p.Source}
	result, err := expr.Run(f.program, env)
	if err != nil {
		return false
	}
	b, ok := result.(bool)
	return ok && b
}
