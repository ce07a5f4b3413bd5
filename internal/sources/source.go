// 包 sources：外部杂货店数据源（Google Places、进程外 HTTP 源）及其健康管理
package sources

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"food-desert/internal/geo"
	"food-desert/internal/logger"
	"food-desert/internal/metrics"
)

// ErrNoHealthySource 没有可用数据源
var ErrNoHealthySource = errors.New("no healthy lookup source")

// Place 外部数据源返回的店铺（EPSG:4326）
type Place struct {
	Name     string
	Location geo.LngLat
	Source   string
}

// 文档注释：数据源接口（统一契约）
// 背景：抽象各外部店铺数据源为同构接口，查询轮次按瓦片调用
// 约束：radiusMeters 为以 center 为圆心的搜索半径；任何失败以 error 返回，由上层决定降级
type Source interface {
	Name() string
	Lookup(ctx context.Context, center geo.LngLat, radiusMeters float64) ([]Place, error)
}

// Heartbeater 可选的健康探测能力；未实现的数据源始终视为健康
type Heartbeater interface {
	Heartbeat(ctx context.Context) error
}

type status struct {
	healthy bool
	last    time.Time
}

// 文档注释：数据源管理器
// 背景：负责数据源注册、心跳、健康筛选；自身也实现 Source，供查询轮次直接使用。
// 约束：心跳周期默认 10s；心跳异常视为不健康并在查询时跳过；线程安全读写。
// 一次 Lookup 依次查询全部健康数据源并合并结果，仅当全部失败时返回错误。
type Manager struct {
	mu         sync.RWMutex
	ss         map[string]Source
	st         map[string]status
	hbInterval time.Duration
}

var _ Source = (*Manager)(nil)

func NewManager(hbInterval time.Duration) *Manager {
	if hbInterval <= 0 {
		hbInterval = 10 * time.Second
	}
	return &Manager{ss: make(map[string]Source), st: make(map[string]status), hbInterval: hbInterval}
}

func (m *Manager) Name() string { return "manager" }

// Register：注册数据源，默认健康
func (m *Manager) Register(s Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ss[s.Name()] = s
	m.st[s.Name()] = status{healthy: true, last: time.Now()}
	logger.L().Info("source_registered", "name", s.Name())
}

// Len 已注册数据源数量
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ss)
}

// HealthySources：按名称排序的健康数据源
func (m *Manager) HealthySources() []Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Source
	for k, s := range m.ss {
		if m.st[k].healthy {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Start：启动心跳循环，ctx 取消时停止
func (m *Manager) Start(ctx context.Context) {
	t := time.NewTicker(m.hbInterval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.Heartbeat(ctx)
			}
		}
	}()
}

// Heartbeat：探测一轮；探测期间不持锁，避免慢源阻塞查询
func (m *Manager) Heartbeat(ctx context.Context) {
	m.mu.RLock()
	snapshot := make(map[string]Source, len(m.ss))
	for k, s := range m.ss {
		snapshot[k] = s
	}
	m.mu.RUnlock()
	next := make(map[string]status, len(snapshot))
	for k, s := range snapshot {
		hb, ok := s.(Heartbeater)
		if !ok {
			next[k] = status{healthy: true, last: time.Now()}
			continue
		}
		if err := hb.Heartbeat(ctx); err != nil {
			next[k] = status{healthy: false, last: time.Now()}
			logger.L().Debug("source_heartbeat_fail", "name", k, "err", err)
			metrics.SourceHeartbeatTotal.WithLabelValues(k, "fail").Inc()
			continue
		}
		next[k] = status{healthy: true, last: time.Now()}
		metrics.SourceHeartbeatTotal.WithLabelValues(k, "ok").Inc()
	}
	m.mu.Lock()
	for k, s := range next {
		if _, ok := m.ss[k]; ok {
			m.st[k] = s
		}
	}
	m.mu.Unlock()
}

// Lookup：查询全部健康数据源并合并
func (m *Manager) Lookup(ctx context.Context, center geo.LngLat, radiusMeters float64) ([]Place, error) {
	hs := m.HealthySources()
	if len(hs) == 0 {
		return nil, ErrNoHealthySource
	}
	var out []Place
	var errs []error
	for _, s := range hs {
		t0 := time.Now()
		metrics.LookupsTotal.WithLabelValues(s.Name()).Inc()
		places, err := s.Lookup(ctx, center, radiusMeters)
		metrics.LookupDurationMs.WithLabelValues(s.Name()).Observe(float64(time.Since(t0).Milliseconds()))
		if err != nil {
			metrics.LookupFailTotal.WithLabelValues(s.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		for i := range places {
			if places[i].Source == "" {
				places[i].Source = s.Name()
			}
		}
		out = append(out, places...)
	}
	if len(errs) == len(hs) {
		return nil, errors.Join(errs...)
	}
	for _, err := range errs {
		logger.L().Warn("source_partial_fail", "err", err)
	}
	return out, nil
}
