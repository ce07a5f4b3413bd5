package api

import (
	"net"
	"net/http"
	"strings"

	"github.com/oschwald/geoip2-golang"

	"food-desert/internal/geo"
)

// Locator 根据访问者 IP 估计其位置
type Locator interface {
	Locate(ip net.IP) (geo.LngLat, bool)
}

// 文档注释：GeoIP 定位
// 背景：/is_in_food_desert 未携带坐标时，以访问者 IP 的 GeoLite2/GeoIP2 City 记录作为查询点。
// 约束：库中无坐标（0,0）视为未知。
type GeoIP struct {
	db *geoip2.Reader
}

func OpenGeoIP(path string) (*GeoIP, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &GeoIP{db: db}, nil
}

func (g *GeoIP) Close() error { return g.db.Close() }

func (g *GeoIP) Locate(ip net.IP) (geo.LngLat, bool) {
	if ip == nil {
		return geo.LngLat{}, false
	}
	rec, err := g.db.City(ip)
	if err != nil {
		return geo.LngLat{}, false
	}
	if rec.Location.Latitude == 0 && rec.Location.Longitude == 0 {
		return geo.LngLat{}, false
	}
	return geo.LngLat{Lng: rec.Location.Longitude, Lat: rec.Location.Latitude}, true
}

// 文档注释：获取访问者 IP
// 背景：多层代理环境下，优先常见反向代理头，最后回退远端地址。
// 约束：头部存在伪造风险，结果仅用于粗略定位，不用于鉴权。
func clientIP(r *http.Request) net.IP {
	h := r.Header
	for _, name := range []string{"x-forwarded-for", "cf-connecting-ip", "x-real-ip", "x-client-ip"} {
		if x := h.Get(name); x != "" {
			if ip := net.ParseIP(strings.TrimSpace(strings.Split(x, ",")[0])); ip != nil {
				return ip
			}
		}
	}
	if x := h.Get("forwarded"); x != "" {
		if i := strings.Index(strings.ToLower(x), "for="); i >= 0 {
			y := strings.Trim(x[i+4:], "\" ")
			if p := strings.IndexAny(y, ";,"); p >= 0 {
				y = y[:p]
			}
			y = strings.Trim(y, "\"[]")
			if ip := net.ParseIP(y); ip != nil {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}
