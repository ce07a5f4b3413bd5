package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"food-desert/internal/geo"
	"food-desert/internal/logger"
)

const (
	placesType     = "grocery_or_supermarket"
	placesMaxPages = 3
	// placesMaxRadius Nearby Search 允许的最大半径（米）
	placesMaxRadius = 50000
)

// 文档注释：Places Nearby Search 响应结构
// 约束：仅解析名称与坐标；status 用于错误判定
type nearbyResponse struct {
	Status        string `json:"status"`
	ErrorMessage  string `json:"error_message"`
	NextPageToken string `json:"next_page_token"`
	Results       []struct {
		Name     string `json:"name"`
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// 文档注释：Google Places 数据源
// 背景：按圆形范围检索杂货店/超市，单次最多三页（每页 20 条）；翻页令牌需要等待约 2s 才生效。
// 约束：status 为 OK 或 ZERO_RESULTS 视为成功，其余均返回错误并附带 error_message。
type GooglePlaces struct {
	key      string
	endpoint string
	client   *http.Client
	// PageWait 请求下一页前的等待时长
	PageWait time.Duration
}

func NewGooglePlaces(key, endpoint string, client *http.Client) *GooglePlaces {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GooglePlaces{key: key, endpoint: endpoint, client: client, PageWait: 2 * time.Second}
}

func (g *GooglePlaces) Name() string { return "google_places" }

// Lookup：检索 center 周围 radiusMeters 内的杂货店，自动翻页
// 约束：首页失败返回错误；后续页失败（ctx 取消除外）记录 warn 并返回已取得的页
func (g *GooglePlaces) Lookup(ctx context.Context, center geo.LngLat, radiusMeters float64) ([]Place, error) {
	if g.key == "" {
		return nil, errors.New("missing key")
	}
	radius := int(math.Ceil(math.Min(radiusMeters, placesMaxRadius)))
	q := url.Values{}
	q.Set("key", g.key)
	q.Set("location", strconv.FormatFloat(center.Lat, 'f', -1, 64)+","+strconv.FormatFloat(center.Lng, 'f', -1, 64))
	q.Set("radius", strconv.Itoa(radius))
	q.Set("type", placesType)
	var out []Place
	for page := 0; page < placesMaxPages; page++ {
		r, err := g.fetch(ctx, q)
		if err != nil {
			if page == 0 || ctx.Err() != nil {
				return nil, err
			}
			logger.L().Warn("places_page_error", "page", page+1, "kept", len(out), "err", err)
			break
		}
		for _, res := range r.Results {
			out = append(out, Place{
				Name:     res.Name,
				Location: geo.LngLat{Lng: res.Geometry.Location.Lng, Lat: res.Geometry.Location.Lat},
				Source:   g.Name(),
			})
		}
		if r.NextPageToken == "" {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.PageWait):
		}
		q = url.Values{}
		q.Set("key", g.key)
		q.Set("pagetoken", r.NextPageToken)
	}
	logger.L().Debug("places_lookup_done", "lng", center.Lng, "lat", center.Lat, "radius", radius, "count", len(out))
	return out, nil
}

func (g *GooglePlaces) fetch(ctx context.Context, q url.Values) (*nearbyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		logger.L().Error("places_http_error", "err", err)
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("places http status %d", resp.StatusCode)
	}
	var r nearbyResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		logger.L().Error("places_decode_error", "err", err)
		return nil, err
	}
	switch r.Status {
	case "OK", "ZERO_RESULTS":
		return &r, nil
	default:
		return nil, fmt.Errorf("places status %s: %s", r.Status, r.ErrorMessage)
	}
}
