// 包 config：集中读取进程配置（环境变量 + .env），为各模块提供只读参数
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MetersPerMile 一英里对应的米数（EPSG:3857 单位）
const MetersPerMile = 1609.34

// CommitPolicy：查询轮次结束后写入已搜索覆盖区的策略
type CommitPolicy string

const (
	// CommitAll 整个未覆盖区域记为已搜索，即使部分瓦片查询失败
	CommitAll CommitPolicy = "all"
	// CommitSucceeded 仅记入查询成功瓦片所覆盖的部分
	CommitSucceeded CommitPolicy = "succeeded"
)

// 文档注释：进程配置
// 约束：数值解析失败时回退默认值，不报错；字段在启动后只读
type Config struct {
	Addr    string
	APIBase string

	// StoreBackend postgres（默认）| memory（进程内，仅演示与测试）
	StoreBackend  string
	NetworkDBPath string
	// NetworkImportPath 非空时每周一 NetworkImportHour 点重新导入该 GeoJSON 路网
	NetworkImportPath string
	NetworkImportHour int
	// NetworkImportProjected 路网文件坐标已是 EPSG:3857；用于周期重导入，也是 fdctl import-network 的默认值
	NetworkImportProjected bool

	GooglePlacesKey   string
	PlacesEndpoint    string
	ExtSourceEndpoint string
	ExtSourceName     string
	StoreFilter       string

	ReachRadius           float64
	SimplifyTolerance     float64
	MinIntersectionArea   float64
	CommitPolicy          CommitPolicy
	LookupParallelism     int
	LookupTimeout         time.Duration
	HullRatio             float64
	DesertCacheTTL        time.Duration
	GeoIPPath             string
	RateLimitEnabled      bool
	RateLimitQPS          int
	TLSEnable             bool
	TLSCertPath           string
	TLSKeyPath            string
	TracingEnabled        bool
	TracingServiceName    string
	TracingSampleRatio    float64
	SourceHeartbeatPeriod time.Duration
}

// LoadDotenv：按约定路径加载 .env；文件缺失时静默跳过
func LoadDotenv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
}

// FromEnv：从环境变量构建配置
func FromEnv() Config {
	c := Config{
		Addr:                   str("ADDR", ":8080"),
		APIBase:                str("API_BASE", "/api"),
		StoreBackend:           strings.ToLower(str("STORE_BACKEND", "postgres")),
		NetworkDBPath:          os.Getenv("NETWORK_DB_PATH"),
		NetworkImportPath:      os.Getenv("NETWORK_IMPORT_PATH"),
		NetworkImportHour:      3,
		NetworkImportProjected: strings.EqualFold(os.Getenv("NETWORK_IMPORT_PROJECTED"), "true"),
		GooglePlacesKey:        os.Getenv("GOOGLE_PLACES_KEY"),
		PlacesEndpoint:         str("PLACES_ENDPOINT", "https://maps.googleapis.com/maps/api/place/nearbysearch/json"),
		ExtSourceEndpoint:      os.Getenv("EXT_SOURCE_ENDPOINT"),
		ExtSourceName:          str("EXT_SOURCE_NAME", "ext"),
		StoreFilter:            os.Getenv("STORE_FILTER"),
		ReachRadius:            positiveFloat("REACH_RADIUS_M", MetersPerMile),
		SimplifyTolerance:      positiveFloat("PLANNER_SIMPLIFY_TOLERANCE", 1.0),
		MinIntersectionArea:    positiveFloat("PLANNER_MIN_INTERSECTION_AREA", 1e-6),
		CommitPolicy:           CommitAll,
		LookupParallelism:      positiveInt("LOOKUP_PARALLELISM", 4),
		LookupTimeout:          time.Duration(positiveInt("LOOKUP_TIMEOUT_S", 10)) * time.Second,
		HullRatio:              positiveFloat("HULL_RATIO", 0.3),
		DesertCacheTTL:         time.Duration(positiveInt("DESERT_CACHE_TTL_S", 3600)) * time.Second,
		GeoIPPath:              os.Getenv("GEOIP_DB_PATH"),
		RateLimitEnabled:       os.Getenv("RATE_LIMIT_ENABLED") == "true",
		RateLimitQPS:           positiveInt("RATE_LIMIT_QPS", 200),
		TLSEnable:              os.Getenv("TLS_ENABLE") == "true",
		TLSCertPath:            str("TLS_CERT_PATH", filepath.Join("data", "certs", "server.crt")),
		TLSKeyPath:             str("TLS_KEY_PATH", filepath.Join("data", "certs", "server.key")),
		TracingEnabled:         strings.EqualFold(os.Getenv("TRACING_ENABLED"), "true"),
		TracingServiceName:     str("TRACING_SERVICE_NAME", "food-desert"),
		TracingSampleRatio:     1.0,
		SourceHeartbeatPeriod:  10 * time.Second,
	}
	if strings.EqualFold(os.Getenv("COVERAGE_COMMIT_POLICY"), string(CommitSucceeded)) {
		c.CommitPolicy = CommitSucceeded
	}
	if s := os.Getenv("TRACING_SAMPLE_RATIO"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f <= 1 {
			c.TracingSampleRatio = f
		}
	}
	if n, err := strconv.Atoi(os.Getenv("NETWORK_IMPORT_HOUR")); err == nil && n >= 0 && n < 24 {
		c.NetworkImportHour = n
	}
	if c.HullRatio > 1 {
		c.HullRatio = 1
	}
	return c
}

func str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func positiveFloat(key string, def float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}

func positiveInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}
