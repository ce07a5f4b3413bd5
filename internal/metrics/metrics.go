package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fooddesert_requests_total",
		Help: "Total number of API requests by route",
	}, []string{"route"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fooddesert_request_duration_ms",
		Help:    "Request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	}, []string{"route"})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fooddesert_cache_hits_total",
		Help: "Total desert answer cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fooddesert_cache_misses_total",
		Help: "Total desert answer cache misses",
	})
	TilesPlannedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fooddesert_tiles_planned_total",
		Help: "Total query tiles produced by the planner",
	})
	LookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fooddesert_lookups_total",
		Help: "Total external lookups issued by source",
	}, []string{"source"})
	LookupFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fooddesert_lookup_fail_total",
		Help: "Total external lookup failures by source",
	}, []string{"source"})
	LookupDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fooddesert_lookup_duration_ms",
		Help:    "External lookup duration in milliseconds",
		Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000},
	}, []string{"source"})
	TileFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fooddesert_tile_fail_total",
		Help: "Total tiles for which every source failed",
	})
	RoundAbortTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fooddesert_round_abort_total",
		Help: "Total lookup rounds aborted without committing coverage",
	})
	RoundDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fooddesert_round_duration_ms",
		Help:    "findStores round duration in milliseconds",
		Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 20000},
	})
	CoverageCommitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fooddesert_coverage_commits_total",
		Help: "Coverage commit attempts by status",
	}, []string{"status"})
	CoverageArea = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fooddesert_searched_coverage_area",
		Help: "Area of the searched coverage region in working CRS units",
	})
	StoresInsertedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fooddesert_stores_inserted_total",
		Help: "Total new store records persisted",
	})
	DuplicateStoresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fooddesert_duplicate_stores_total",
		Help: "Total store records dropped as duplicate locations",
	})
	NetworkBufferEmptyTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fooddesert_network_buffer_empty_total",
		Help: "Network buffers that found no graph node within budget",
	})
	NetworkNodesVisited = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fooddesert_network_nodes_visited",
		Help:    "Nodes dequeued per network buffer traversal",
		Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 20000},
	})
	SourceHeartbeatTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fooddesert_source_heartbeat_total",
		Help: "Lookup source heartbeat count by status",
	}, []string{"source", "status"})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(TilesPlannedTotal)
	prometheus.MustRegister(LookupsTotal)
	prometheus.MustRegister(LookupFailTotal)
	prometheus.MustRegister(LookupDurationMs)
	prometheus.MustRegister(TileFailTotal)
	prometheus.MustRegister(RoundAbortTotal)
	prometheus.MustRegister(RoundDurationMs)
	prometheus.MustRegister(CoverageCommitsTotal)
	prometheus.MustRegister(CoverageArea)
	prometheus.MustRegister(StoresInsertedTotal)
	prometheus.MustRegister(DuplicateStoresTotal)
	prometheus.MustRegister(NetworkBufferEmptyTotal)
	prometheus.MustRegister(NetworkNodesVisited)
	prometheus.MustRegister(SourceHeartbeatTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标到 {API_BASE}/metrics 路径，供 Prometheus 抓取；在主入口挂载。
func Handler() http.Handler { return promhttp.Handler() }
