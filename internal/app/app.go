// 包 app：按配置装配存储、数据源与判定引擎，供服务入口与管理命令共用
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"food-desert/internal/config"
	"food-desert/internal/coverage"
	"food-desert/internal/desert"
	"food-desert/internal/logger"
	"food-desert/internal/lookup"
	"food-desert/internal/migrate"
	"food-desert/internal/network"
	"food-desert/internal/planner"
	"food-desert/internal/sources"
	"food-desert/internal/store"
	"food-desert/internal/utils"
)

// ErrNoSources 未配置任何外部店铺数据源
var ErrNoSources = errors.New("no store lookup source configured")

// Closer 逆序释放已打开的资源
type Closer []func() error

func (c Closer) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			logger.L().Warn("close_error", "err", err)
		}
	}
}

// 文档注释：打开店铺与覆盖区存储
// 背景：默认 PostgreSQL + PostGIS，启动时自动建表；memory 后端仅用于演示，进程退出即丢失覆盖区。
func OpenStore(ctx context.Context, cfg config.Config) (store.Store, Closer, error) {
	l := logger.L()
	switch cfg.StoreBackend {
	case "memory":
		l.Warn("store_memory_backend")
		return store.NewMemoryStore(), nil, nil
	case "", "postgres":
	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	closer := Closer{db.Close}
	if err := db.PingContext(ctx); err != nil {
		closer.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	l.Info("db_open_ok")
	if err := migrate.EnsureSchema(db); err != nil {
		closer.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store.AttachDB(db), closer, nil
}

// 文档注释：装配外部数据源管理器
// 约束：Google Places 与外部 HTTP 源按配置注册；STORE_FILTER 非空时逐个包装过滤；一个都没有时返回 ErrNoSources，
// 否则每个瓦片查询都会失败而覆盖区照常提交，造成永久误判。
func BuildSources(cfg config.Config) (*sources.Manager, error) {
	l := logger.L()
	pm := sources.NewManager(cfg.SourceHeartbeatPeriod)
	var ss []sources.Source
	if cfg.GooglePlacesKey != "" {
		ss = append(ss, sources.NewGooglePlaces(cfg.GooglePlacesKey, cfg.PlacesEndpoint, &http.Client{Timeout: cfg.LookupTimeout}))
	}
	if cfg.ExtSourceEndpoint != "" {
		ss = append(ss, sources.NewHTTP(cfg.ExtSourceName, cfg.ExtSourceEndpoint, cfg.LookupTimeout))
	}
	if len(ss) == 0 {
		return nil, ErrNoSources
	}
	for _, s := range ss {
		if cfg.StoreFilter != "" {
			f, err := sources.NewFiltered(s, cfg.StoreFilter)
			if err != nil {
				return nil, fmt.Errorf("STORE_FILTER: %w", err)
			}
			s = f
		}
		pm.Register(s)
		l.Info("source_register", "name", s.Name(), "filtered", cfg.StoreFilter != "")
	}
	return pm, nil
}

// OpenNetwork：NETWORK_DB_PATH 非空时以只读方式打开路网库；为空返回 nil（欧氏可达范围）
func OpenNetwork(cfg config.Config) (*network.SQLiteGraph, Closer, error) {
	if cfg.NetworkDBPath == "" {
		logger.L().Info("network_disabled")
		return nil, nil, nil
	}
	db, err := utils.OpenSQLite(cfg.NetworkDBPath, true)
	if err != nil {
		return nil, nil, err
	}
	g := network.NewSQLiteGraph(db)
	nodes, edges, err := g.Counts(context.Background())
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("read network %s: %w", cfg.NetworkDBPath, err)
	}
	logger.L().Info("network_open_ok", "path", cfg.NetworkDBPath, "nodes", nodes, "edges", edges)
	return g, Closer{db.Close}, nil
}

// NewEngine：由已打开的组件构造判定引擎；g 为 nil 时使用欧氏圆
func NewEngine(cfg config.Config, st store.Store, src sources.Source, g network.Graph) *desert.Engine {
	var nb *network.Buffer
	if g != nil {
		nb = network.NewBuffer(g, cfg.HullRatio)
	}
	pl := planner.New(cfg.ReachRadius, planner.Options{
		SimplifyTolerance:   cfg.SimplifyTolerance,
		MinIntersectionArea: cfg.MinIntersectionArea,
	})
	lk := lookup.New(src, cfg.LookupParallelism, cfg.LookupTimeout)
	return desert.New(st, coverage.New(st), pl, lk, nb, desert.Options{
		ReachRadius:  cfg.ReachRadius,
		CommitPolicy: cfg.CommitPolicy,
	})
}
