package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"food-desert/internal/geo"
)

// 文档注释：外部 HTTP 数据源适配器
// 背景：为第三方店铺数据提供进程外接入方式，通过简单 HTTP 契约实现查询与心跳。
// 约束：约定 /health 与 /lookup?x=&y=&radius= 接口（x=经度，y=纬度，radius 单位米）；
// 响应为 [{"name":..,"lng":..,"lat":..}]；非 200 视为失败。
type HTTPSource struct {
	name     string
	endpoint string
	client   *http.Client
}

func NewHTTP(name, endpoint string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPSource{name: name, endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

func (h *HTTPSource) Name() string { return h.name }

// Heartbeat：访问 /health，非 200 视为不可用
func (h *HTTPSource) Heartbeat(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health status %d", resp.StatusCode)
	}
	return nil
}

func (h *HTTPSource) Lookup(ctx context.Context, center geo.LngLat, radiusMeters float64) ([]Place, error) {
	q := url.Values{}
	q.Set("x", strconv.FormatFloat(center.Lng, 'f', -1, 64))
	q.Set("y", strconv.FormatFloat(center.Lat, 'f', -1, 64))
	q.Set("radius", strconv.FormatFloat(radiusMeters, 'f', -1, 64))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint+"/lookup?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lookup status %d", resp.StatusCode)
	}
	var items []struct {
		Name string  `json:"name"`
		Lng  float64 `json:"lng"`
		Lat  float64 `json:"lat"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode lookup: %w", err)
	}
	out := make([]Place, 0, len(items))
	for _, it := range items {
		out = append(out, Place{Name: it.Name, Location: geo.LngLat{Lng: it.Lng, Lat: it.Lat}, Source: h.name})
	}
	return out, nil
}
