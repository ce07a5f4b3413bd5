package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"food-desert/internal/config"
	"food-desert/internal/coverage"
	"food-desert/internal/desert"
	"food-desert/internal/geo"
	"food-desert/internal/lookup"
	"food-desert/internal/planner"
	"food-desert/internal/sources"
	"food-desert/internal/store"
)

type fixedLocator struct {
	ll   geo.LngLat
	seen net.IP
}

func (f *fixedLocator) Locate(ip net.IP) (geo.LngLat, bool) {
	f.seen = ip
	return f.ll, true
}

func newServer(t *testing.T, places []sources.Place, ac AnswerCache, loc Locator) (*httptest.Server, *lookup.CountingSource) {
	t.Helper()
	src := &lookup.CountingSource{Places: places}
	st := store.NewMemoryStore()
	eng := desert.New(st, coverage.New(st), planner.New(config.MetersPerMile, planner.DefaultOptions()),
		lookup.New(src, 2, 0), nil, desert.Options{ReachRadius: config.MetersPerMile})
	srv := httptest.NewServer(BuildRoutes(eng, ac, loc))
	t.Cleanup(srv.Close)
	return srv, src
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func TestIsInFoodDesertCachesAnswer(t *testing.T) {
	cache := NewLRU(16, time.Minute)
	srv, src := newServer(t, nil, cache, nil)
	var desert bool
	if code := getJSON(t, srv.URL+"/is_in_food_desert?lng=-73.99&lat=40.73", &desert); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !desert {
		t.Fatal("no stores: want desert")
	}
	if src.Calls() != 1 || cache.Len() != 1 {
		t.Fatalf("calls = %d, cached = %d", src.Calls(), cache.Len())
	}
	getJSON(t, srv.URL+"/is_in_food_desert?lng=-73.99&lat=40.73", &desert)
	if src.Calls() != 1 {
		t.Fatal("cached answer must not trigger lookups")
	}
}

func TestIsInFoodDesertNearStore(t *testing.T) {
	shop := sources.Place{Name: "grocer", Location: geo.LngLat{Lng: -73.991, Lat: 40.731}}
	srv, _ := newServer(t, []sources.Place{shop}, nil, nil)
	var desert bool
	getJSON(t, srv.URL+"/is_in_food_desert?lng=-73.99&lat=40.73", &desert)
	if desert {
		t.Fatal("store 150m away: not a desert")
	}
}

func TestIsInFoodDesertGeoIPFallback(t *testing.T) {
	loc := &fixedLocator{ll: geo.LngLat{Lng: 2.35, Lat: 48.85}}
	srv, src := newServer(t, nil, nil, loc)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/is_in_food_desert", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if loc.seen.String() != "203.0.113.7" {
		t.Fatalf("located ip = %v", loc.seen)
	}
	if src.Calls() != 1 {
		t.Fatalf("calls = %d", src.Calls())
	}
}

func TestBadParameters(t *testing.T) {
	srv, _ := newServer(t, nil, nil, nil)
	for _, path := range []string{
		"/is_in_food_desert",
		"/is_in_food_desert?lng=abc&lat=1",
		"/is_in_food_desert?lng=1&lat=95",
		"/locate_stores?lng0=1&lng1=2&lat0=3",
		"/food_desert?lng0=1&lng1=1&lat0=3&lat1=4",
	} {
		if code := getJSON(t, srv.URL+path, nil); code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, code)
		}
	}
}

func TestNoHealthySourceIsUnavailable(t *testing.T) {
	st := store.NewMemoryStore()
	eng := desert.New(st, coverage.New(st), planner.New(config.MetersPerMile, planner.DefaultOptions()),
		lookup.New(sources.NewManager(0), 2, 0), nil, desert.Options{ReachRadius: config.MetersPerMile})
	cache := NewLRU(16, time.Minute)
	srv := httptest.NewServer(BuildRoutes(eng, cache, nil))
	defer srv.Close()
	if code := getJSON(t, srv.URL+"/is_in_food_desert?lng=-73.99&lat=40.73", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", code)
	}
	if cache.Len() != 0 {
		t.Fatal("failed answer must not be cached")
	}
}

func TestLocateStoresAndCoverage(t *testing.T) {
	shops := []sources.Place{
		{Name: "inside", Location: geo.LngLat{Lng: 0.005, Lat: 0.005}},
		{Name: "outside", Location: geo.LngLat{Lng: 0.05, Lat: 0.05}},
	}
	srv, _ := newServer(t, shops, nil, nil)
	var stores []storeOut
	if code := getJSON(t, srv.URL+"/locate_stores?lng0=0&lng1=0.01&lat0=0&lat1=0.01", &stores); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(stores) != 1 || stores[0].Name != "inside" || stores[0].ID == 0 {
		t.Fatalf("stores = %+v", stores)
	}
	if d := stores[0].Lng - 0.005; d > 1e-9 || d < -1e-9 {
		t.Fatalf("lng = %v", stores[0].Lng)
	}
	var cov coverageOut
	getJSON(t, srv.URL+"/coverage", &cov)
	if cov.Area <= 0 {
		t.Fatalf("coverage area = %v", cov.Area)
	}
}

func TestFoodDesertAndVoronoi(t *testing.T) {
	shops := []sources.Place{
		{Name: "west", Location: geo.LngLat{Lng: 0.01, Lat: 0.02}},
		{Name: "east", Location: geo.LngLat{Lng: 0.03, Lat: 0.02}},
	}
	srv, _ := newServer(t, shops, nil, nil)
	var fd desertOut
	if code := getJSON(t, srv.URL+"/food_desert?lng0=0&lng1=0.04&lat0=0&lat1=0.04", &fd); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if fd.Area <= 0 || fd.Area >= fd.TotalArea || len(fd.Polygons) == 0 {
		t.Fatalf("desert = area %v of %v, %d polygons", fd.Area, fd.TotalArea, len(fd.Polygons))
	}
	var cells [][]latLng
	if code := getJSON(t, srv.URL+"/voronoi_stores?lng0=0&lng1=0.04&lat0=0&lat1=0.04", &cells); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(cells) != 2 {
		t.Fatalf("cells = %d", len(cells))
	}
}

func TestLRUEvictsAndExpires(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(2, time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	c.Set(ctx, "a", true)
	c.Set(ctx, "b", false)
	c.Get(ctx, "a")
	c.Set(ctx, "c", true)
	if _, ok := c.Get(ctx, "b"); ok {
		t.Fatal("least recently used entry should be evicted")
	}
	if v, ok := c.Get(ctx, "a"); !ok || !v {
		t.Fatal("a should survive")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(ctx, "a"); ok {
		t.Fatal("expired entry returned")
	}
}

func TestGeohash(t *testing.T) {
	cases := []struct {
		lat, lng float64
		prec     int
		want     string
	}{
		{57.64911, 10.40744, 11, "u4pruydqqvj"},
		{42.6, -5.6, 5, "ezs42"},
	}
	for _, c := range cases {
		if got := encodeGeohash(c.lat, c.lng, c.prec); got != c.want {
			t.Errorf("geohash(%v,%v) = %s, want %s", c.lat, c.lng, got, c.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		hdr, val, remote, want string
	}{
		{"X-Forwarded-For", "198.51.100.1, 10.0.0.1", "10.0.0.2:1234", "198.51.100.1"},
		{"Forwarded", `for="198.51.100.9";proto=https`, "10.0.0.2:1234", "198.51.100.9"},
		{"", "", "192.0.2.5:5555", "192.0.2.5"},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = c.remote
		if c.hdr != "" {
			r.Header.Set(c.hdr, c.val)
		}
		if got := clientIP(r); got.String() != c.want {
			t.Errorf("%s=%s: got %v, want %s", c.hdr, c.val, got, c.want)
		}
	}
}
