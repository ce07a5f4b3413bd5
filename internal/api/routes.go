// 包 api：集中注册 HTTP API 路由以解耦主入口，便于后续扩展与替换
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"food-desert/internal/desert"
	"food-desert/internal/geo"
	"food-desert/internal/logger"
	"food-desert/internal/metrics"
	"food-desert/internal/sources"
	"food-desert/internal/store"
)

// Engine 路由依赖的判定引擎能力
type Engine interface {
	FindStores(ctx context.Context, region geo.Region) ([]store.StoreRecord, error)
	IsInDesert(ctx context.Context, p geo.Point) (bool, error)
	DesertGeometry(ctx context.Context, region geo.Region) (desert.Result, error)
	Voronoi(ctx context.Context, region geo.Region) ([]desert.Cell, error)
	SearchedArea(ctx context.Context) (float64, error)
}

var errBadParam = errors.New("bad parameter")

// 构建并返回 API 路由：独立 ServeMux 便于在主入口挂载到 API_BASE 前缀
// ac 为 nil 时不缓存点判定；loc 为 nil 时缺少坐标的请求返回 400
func BuildRoutes(eng Engine, ac AnswerCache, loc Locator) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/is_in_food_desert", instrument("is_in_food_desert", func(w http.ResponseWriter, r *http.Request) {
		ll, err := pointParam(r, loc)
		if err != nil {
			writeError(w, err)
			return
		}
		key := cacheKeyPrefix + encodeGeohash(ll.Lat, ll.Lng, geohashPrecision)
		if ac != nil {
			if v, ok := ac.Get(r.Context(), key); ok {
				metrics.CacheHitsTotal.Inc()
				writeJSON(w, v)
				return
			}
			metrics.CacheMissesTotal.Inc()
		}
		v, err := eng.IsInDesert(r.Context(), geo.ToMercator(ll))
		if err != nil {
			writeError(w, err)
			return
		}
		if ac != nil {
			ac.Set(r.Context(), key, v)
		}
		writeJSON(w, v)
	}))

	mux.HandleFunc("/locate_stores", instrument("locate_stores", func(w http.ResponseWriter, r *http.Request) {
		frame, err := frameParam(r)
		if err != nil {
			writeError(w, err)
			return
		}
		stores, err := eng.FindStores(r.Context(), frame)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]storeOut, 0, len(stores))
		for _, s := range stores {
			id, _ := s.ID()
			ll := toLatLng(s.Location)
			out = append(out, storeOut{ID: id, Name: s.Name, Lat: ll.Lat, Lng: ll.Lng})
		}
		writeJSON(w, out)
	}))

	mux.HandleFunc("/voronoi_stores", instrument("voronoi_stores", func(w http.ResponseWriter, r *http.Request) {
		frame, err := frameParam(r)
		if err != nil {
			writeError(w, err)
			return
		}
		cells, err := eng.Voronoi(r.Context(), frame)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([][]latLng, 0, len(cells))
		for _, c := range cells {
			for _, rings := range c.Region.Polygons() {
				out = append(out, ringToLatLng(rings[0]))
			}
		}
		writeJSON(w, out)
	}))

	mux.HandleFunc("/food_desert", instrument("food_desert", func(w http.ResponseWriter, r *http.Request) {
		frame, err := frameParam(r)
		if err != nil {
			writeError(w, err)
			return
		}
		res, err := eng.DesertGeometry(r.Context(), frame)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, desertOut{Polygons: polygonsToLatLng(res.Region), Area: res.Area, TotalArea: res.TotalArea})
	}))

	mux.HandleFunc("/coverage", instrument("coverage", func(w http.ResponseWriter, r *http.Request) {
		area, err := eng.SearchedArea(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, coverageOut{Area: area})
	}))

	return mux
}

func instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t0 := time.Now()
		metrics.RequestsTotal.WithLabelValues(route).Inc()
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
		metrics.RequestDurationMs.WithLabelValues(route).Observe(float64(time.Since(t0).Milliseconds()))
	}
}

// pointParam：lng/lat 参数；两者都缺省时按访问者 IP 定位
func pointParam(r *http.Request, loc Locator) (geo.LngLat, error) {
	q := r.URL.Query()
	if q.Get("lng") == "" && q.Get("lat") == "" {
		if loc == nil {
			return geo.LngLat{}, fmt.Errorf("%w: lng and lat required", errBadParam)
		}
		ll, ok := loc.Locate(clientIP(r))
		if !ok {
			return geo.LngLat{}, fmt.Errorf("%w: lng and lat required, client location unknown", errBadParam)
		}
		return ll, nil
	}
	lng, err := floatParam(q.Get("lng"), "lng", 180)
	if err != nil {
		return geo.LngLat{}, err
	}
	lat, err := floatParam(q.Get("lat"), "lat", 90)
	if err != nil {
		return geo.LngLat{}, err
	}
	return geo.LngLat{Lng: lng, Lat: lat}, nil
}

// frameParam：lng0/lng1/lat0/lat1 经纬度框 → 工作坐标系矩形
func frameParam(r *http.Request) (geo.Region, error) {
	q := r.URL.Query()
	var v [4]float64
	for i, name := range []string{"lng0", "lng1", "lat0", "lat1"} {
		limit := 180.0
		if i >= 2 {
			limit = 90
		}
		f, err := floatParam(q.Get(name), name, limit)
		if err != nil {
			return geo.Empty(), err
		}
		v[i] = f
	}
	frame := geo.Frame(v[0], v[1], v[2], v[3])
	if frame.IsEmpty() {
		return geo.Empty(), fmt.Errorf("%w: empty frame", errBadParam)
	}
	return frame, nil
}

func floatParam(s, name string, limit float64) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: %s required", errBadParam, name)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.Abs(f) > limit {
		return 0, fmt.Errorf("%w: %s=%q", errBadParam, name, s)
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadParam), errors.Is(err, geo.ErrInvalidRegion):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, sources.ErrNoHealthySource):
		status = http.StatusServiceUnavailable
	default:
		logger.L().Error("api_error", "err", err)
	}
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorOut{Error: err.Error()})
}
