package desert

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"food-desert/internal/config"
	"food-desert/internal/coverage"
	"food-desert/internal/geo"
	"food-desert/internal/lookup"
	"food-desert/internal/network"
	"food-desert/internal/planner"
	"food-desert/internal/sources"
	"food-desert/internal/store"
)

const reach = config.MetersPerMile

func newEngine(src sources.Source, policy config.CommitPolicy, nb *network.Buffer) (*Engine, *store.MemoryStore) {
	st := store.NewMemoryStore()
	pl := planner.New(reach, planner.DefaultOptions())
	lk := lookup.New(src, 4, 0)
	return New(st, coverage.New(st), pl, lk, nb, Options{ReachRadius: reach, CommitPolicy: policy}), st
}

// place 以工作坐标构造数据源返回的店铺
func place(name string, x, y float64) sources.Place {
	return sources.Place{Name: name, Location: geo.FromMercator(geo.Point{X: x, Y: y}), Source: "counting"}
}

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol*math.Max(1, math.Abs(b)) }

func TestFindStoresIsIdempotent(t *testing.T) {
	ctx := context.Background()
	src := &lookup.CountingSource{Places: []sources.Place{place("a", 1000, 1000)}}
	e, _ := newEngine(src, config.CommitAll, nil)
	region := geo.Rect(0, 0, 5000, 5000)
	first, err := e.FindStores(ctx, region)
	if err != nil {
		t.Fatal(err)
	}
	calls := src.Calls()
	if calls == 0 {
		t.Fatal("cold query must hit the source")
	}
	second, err := e.FindStores(ctx, region)
	if err != nil {
		t.Fatal(err)
	}
	if src.Calls() != calls {
		t.Fatalf("repeat query issued %d extra lookups", src.Calls()-calls)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("stores = %d then %d, want 1", len(first), len(second))
	}
	id1, _ := first[0].ID()
	id2, _ := second[0].ID()
	if id1 != id2 {
		t.Fatalf("store id changed across queries: %d -> %d", id1, id2)
	}
}

func TestSubregionNeedsNoLookups(t *testing.T) {
	ctx := context.Background()
	src := &lookup.CountingSource{}
	e, _ := newEngine(src, config.CommitAll, nil)
	if _, err := e.FindStores(ctx, geo.Rect(0, 0, 6000, 6000)); err != nil {
		t.Fatal(err)
	}
	calls := src.Calls()
	if _, err := e.FindStores(ctx, geo.Rect(1000, 1000, 2000, 3000)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.IsInDesert(ctx, geo.Point{X: 3000, Y: 3000}); err != nil {
		t.Fatal(err)
	}
	if src.Calls() != calls {
		t.Fatalf("covered subregion issued %d lookups", src.Calls()-calls)
	}
}

func TestOverlapReusesCoverage(t *testing.T) {
	ctx := context.Background()
	a := geo.Rect(0, 0, 8000, 4000)
	ab := geo.Rect(0, 0, 12000, 4000)

	warm := &lookup.CountingSource{}
	e, _ := newEngine(warm, config.CommitAll, nil)
	if _, err := e.FindStores(ctx, a); err != nil {
		t.Fatal(err)
	}
	before := warm.Calls()
	if _, err := e.FindStores(ctx, ab); err != nil {
		t.Fatal(err)
	}
	incremental := warm.Calls() - before

	cold := &lookup.CountingSource{}
	fresh, _ := newEngine(cold, config.CommitAll, nil)
	if _, err := fresh.FindStores(ctx, ab); err != nil {
		t.Fatal(err)
	}
	if incremental == 0 || incremental >= cold.Calls() {
		t.Fatalf("overlap lookups = %d, cold lookups = %d", incremental, cold.Calls())
	}
}

func TestTruncateThenPartialRewarm(t *testing.T) {
	ctx := context.Background()
	r1 := geo.Rect(0, 0, 12000, 6000)
	r2 := geo.Rect(0, 0, 6000, 6000)
	src := &lookup.CountingSource{}
	e, st := newEngine(src, config.CommitAll, nil)
	if _, err := e.FindStores(ctx, r1); err != nil {
		t.Fatal(err)
	}
	cold := src.Calls()
	if err := st.Truncate(ctx); err != nil {
		t.Fatal(err)
	}
	if area, _ := e.SearchedArea(ctx); area != 0 {
		t.Fatalf("searched area after truncate = %v", area)
	}
	if _, err := e.FindStores(ctx, r2); err != nil {
		t.Fatal(err)
	}
	before := src.Calls()
	if _, err := e.FindStores(ctx, r1); err != nil {
		t.Fatal(err)
	}
	if rewarm := src.Calls() - before; rewarm >= cold {
		t.Fatalf("rewarm lookups = %d, cold = %d", rewarm, cold)
	}
}

func TestCoverageIsMonotonic(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(&lookup.CountingSource{}, config.CommitAll, nil)
	last := 0.0
	for _, r := range []geo.Region{
		geo.Rect(0, 0, 3000, 3000),
		geo.Rect(2000, 2000, 6000, 4000),
		geo.Rect(500, 500, 1000, 1000),
		geo.Circle(geo.Point{X: -4000, Y: 0}, 2000),
	} {
		if _, err := e.FindStores(ctx, r); err != nil {
			t.Fatal(err)
		}
		area, err := e.SearchedArea(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if area < last {
			t.Fatalf("searched area shrank from %v to %v", last, area)
		}
		last = area
	}
}

func TestFindStoresReturnsOnlyContained(t *testing.T) {
	ctx := context.Background()
	src := &lookup.CountingSource{Places: []sources.Place{
		place("inside", 1500, 1500),
		place("edge-tile", 3500, 500),
		place("outside", 4500, 4500),
	}}
	e, _ := newEngine(src, config.CommitAll, nil)
	region := geo.Rect(0, 0, 4000, 4000)
	got, err := e.FindStores(ctx, region)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("stores = %d, want 2", len(got))
	}
	for _, s := range got {
		if !region.ContainsPoint(s.Location) {
			t.Fatalf("store %q at %v lies outside the query", s.Name, s.Location)
		}
		if _, ok := s.ID(); !ok {
			t.Fatalf("store %q has no id", s.Name)
		}
	}
}

func TestIsInDesertScenario(t *testing.T) {
	ctx := context.Background()
	src := &lookup.CountingSource{}
	e, _ := newEngine(src, config.CommitAll, nil)
	desert, err := e.IsInDesert(ctx, geo.Point{})
	if err != nil {
		t.Fatal(err)
	}
	if !desert {
		t.Fatal("no stores anywhere: origin must be in a desert")
	}
	if src.Calls() != 1 {
		t.Fatalf("cold lookups = %d, want 1", src.Calls())
	}
	if _, err := e.IsInDesert(ctx, geo.Point{}); err != nil {
		t.Fatal(err)
	}
	if src.Calls() != 1 {
		t.Fatalf("warm lookups = %d, want 1", src.Calls())
	}
}

func TestIsInDesertWithStore(t *testing.T) {
	ctx := context.Background()
	src := &lookup.CountingSource{Places: []sources.Place{place("corner shop", 0, 0)}}
	e, _ := newEngine(src, config.CommitAll, nil)
	desert, err := e.IsInDesert(ctx, geo.Point{})
	if err != nil {
		t.Fatal(err)
	}
	if desert {
		t.Fatal("store at the origin: not a desert")
	}

	// 店铺已在库中而覆盖区为空时，查询同样生效
	src2 := &lookup.CountingSource{}
	e2, st := newEngine(src2, config.CommitAll, nil)
	if _, err := st.InsertStores(ctx, []store.StoreRecord{store.NewRecord("injected", geo.Point{X: 100, Y: 100})}); err != nil {
		t.Fatal(err)
	}
	if desert, _ := e2.IsInDesert(ctx, geo.Point{}); desert {
		t.Fatal("injected store within reach: not a desert")
	}
	if desert, _ := e2.IsInDesert(ctx, geo.Point{X: 10000}); !desert {
		t.Fatal("far from the injected store: desert")
	}
}

func TestDesertGeometryArea(t *testing.T) {
	ctx := context.Background()
	region := geo.Rect(0, 0, 4000, 4000)

	empty, _ := newEngine(&lookup.CountingSource{}, config.CommitAll, nil)
	res, err := empty.DesertGeometry(ctx, region)
	if err != nil {
		t.Fatal(err)
	}
	if !near(res.Area, res.TotalArea, 1e-9) || !near(res.TotalArea, 16e6, 1e-9) {
		t.Fatalf("no stores: area = %v of %v", res.Area, res.TotalArea)
	}

	src := &lookup.CountingSource{Places: []sources.Place{place("center", 2000, 2000)}}
	e, _ := newEngine(src, config.CommitAll, nil)
	res, err = e.DesertGeometry(ctx, region)
	if err != nil {
		t.Fatal(err)
	}
	n := float64(geo.CircleSegments)
	circle := n / 2 * reach * reach * math.Sin(2*math.Pi/n)
	if !near(res.Area, 16e6-circle, 1e-6) {
		t.Fatalf("desert area = %v, want %v", res.Area, 16e6-circle)
	}
	if res.Area > res.TotalArea {
		t.Fatal("desert larger than the query")
	}
	if !region.Contains(res.Region) {
		t.Fatal("desert must lie inside the query")
	}
}

func TestDesertGeometryCountsStoresOutsideRegion(t *testing.T) {
	ctx := context.Background()
	// 店铺位于区域外 1000 处，可达圆仍切入区域
	src := &lookup.CountingSource{Places: []sources.Place{place("outside", -1000, 2000)}}
	e, _ := newEngine(src, config.CommitAll, nil)
	res, err := e.DesertGeometry(ctx, geo.Rect(0, 0, 4000, 4000))
	if err != nil {
		t.Fatal(err)
	}
	if res.Area >= res.TotalArea {
		t.Fatalf("store just outside the query should shrink the desert: %v of %v", res.Area, res.TotalArea)
	}
}

func TestLookupFailureStillCommits(t *testing.T) {
	ctx := context.Background()
	src := &lookup.FailingSource{}
	e, _ := newEngine(src, config.CommitAll, nil)
	region := geo.Rect(0, 0, 4000, 4000)
	got, err := e.FindStores(ctx, region)
	if err != nil {
		t.Fatalf("tile failures must not fail the query: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("stores = %d", len(got))
	}
	area, _ := e.SearchedArea(ctx)
	if !near(area, region.Area(), 1e-9) {
		t.Fatalf("searched area = %v, want %v", area, region.Area())
	}
	calls := src.Calls()
	if _, err := e.FindStores(ctx, region); err != nil {
		t.Fatal(err)
	}
	if src.Calls() != calls {
		t.Fatal("failed tiles are not retried under the commit-all policy")
	}
}

func TestCommitSucceededSkipsFailedTiles(t *testing.T) {
	ctx := context.Background()
	src := &lookup.FailingSource{}
	e, _ := newEngine(src, config.CommitSucceeded, nil)
	region := geo.Rect(0, 0, 4000, 4000)
	if _, err := e.FindStores(ctx, region); err != nil {
		t.Fatal(err)
	}
	if area, _ := e.SearchedArea(ctx); area != 0 {
		t.Fatalf("searched area = %v, want 0", area)
	}
	calls := src.Calls()
	if _, err := e.FindStores(ctx, region); err != nil {
		t.Fatal(err)
	}
	if src.Calls() <= calls {
		t.Fatal("uncommitted region must be queried again")
	}
}

func TestInvalidRegion(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(&lookup.CountingSource{}, config.CommitAll, nil)
	bowtie := geo.Polygon([]geo.Point{{X: 0, Y: 0}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 10}})
	if _, err := e.FindStores(ctx, bowtie); !errors.Is(err, geo.ErrInvalidRegion) {
		t.Fatalf("err = %v, want ErrInvalidRegion", err)
	}
	if _, err := e.DesertGeometry(ctx, bowtie); !errors.Is(err, geo.ErrInvalidRegion) {
		t.Fatalf("err = %v, want ErrInvalidRegion", err)
	}
}

func TestVoronoiCells(t *testing.T) {
	ctx := context.Background()
	src := &lookup.CountingSource{Places: []sources.Place{place("west", 1000, 2000), place("east", 3000, 2000)}}
	e, _ := newEngine(src, config.CommitAll, nil)
	cells, err := e.Voronoi(ctx, geo.Rect(0, 0, 4000, 4000))
	if err != nil {
		t.Fatal(err)
	}
	if len(cells) != 2 {
		t.Fatalf("cells = %d", len(cells))
	}
	for _, c := range cells {
		if !near(c.Region.Area(), 8e6, 1e-6) {
			t.Fatalf("cell %q area = %v", c.Store.Name, c.Region.Area())
		}
		if !c.Region.ContainsPoint(c.Store.Location) {
			t.Fatalf("cell %q does not contain its store", c.Store.Name)
		}
	}
}

func TestDesertGeometryOverNetwork(t *testing.T) {
	ctx := context.Background()
	g := network.NewMemoryGraph()
	id := func(i, j int) int64 { return int64(i*10 + j) }
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			g.AddNode(network.Node{ID: id(i, j), Location: geo.Point{X: 1800 + float64(i)*100, Y: 1800 + float64(j)*100}})
		}
	}
	var eid int64
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			if i < 4 {
				eid++
				if err := g.AddEdge(network.Edge{ID: eid, From: id(i, j), To: id(i+1, j)}); err != nil {
					t.Fatal(err)
				}
			}
			if j < 4 {
				eid++
				if err := g.AddEdge(network.Edge{ID: eid, From: id(i, j), To: id(i, j+1)}); err != nil {
					t.Fatal(err)
				}
			}
		}
	}
	g.Build()
	src := &lookup.CountingSource{Places: []sources.Place{place("grid", 2000, 2000)}}
	e, _ := newEngine(src, config.CommitAll, network.NewBuffer(g, 1))
	res, err := e.DesertGeometry(ctx, geo.Rect(0, 0, 4000, 4000))
	if err != nil {
		t.Fatal(err)
	}
	if !near(res.Area, 16e6-400*400, 1e-6) {
		t.Fatalf("desert area = %v, want %v", res.Area, 16e6-400*400)
	}
}

func TestConcurrentFindStoresDeduplicates(t *testing.T) {
	ctx := context.Background()
	places := []sources.Place{
		place("a", 1500, 1000),
		place("b", 4500, 2000),
		place("c", 7500, 3000),
		place("d", 11500, 5000),
	}
	src := &lookup.CountingSource{Places: places}
	e, st := newEngine(src, config.CommitAll, nil)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lo := float64(i) * 1000
			got, err := e.FindStores(ctx, geo.Rect(lo, 0, lo+6000, 6000))
			if err != nil {
				errs <- err
				return
			}
			want := 0
			for _, p := range places {
				if x := geo.ToMercator(p.Location).X; x > lo && x < lo+6000 {
					want++
				}
			}
			seen := map[geo.Point]bool{}
			for _, s := range got {
				if seen[s.Location] {
					errs <- fmt.Errorf("frame %d: duplicate store at %+v", i, s.Location)
					return
				}
				seen[s.Location] = true
			}
			if len(got) != want {
				errs <- fmt.Errorf("frame %d: %d stores, want %d", i, len(got), want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if st.Len() != len(places) {
		t.Fatalf("stored %d records, want %d", st.Len(), len(places))
	}
	all, err := e.FindStores(ctx, geo.Rect(0, 0, 13000, 6000))
	if err != nil {
		t.Fatal(err)
	}
	ids := map[int64]bool{}
	for _, s := range all {
		id, _ := s.ID()
		ids[id] = true
	}
	if len(all) != len(places) || len(ids) != len(places) {
		t.Fatalf("union frame: %d stores, %d distinct ids", len(all), len(ids))
	}
}

func TestNoHealthySourceCommitsNothing(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(sources.NewManager(0), config.CommitAll, nil)
	if _, err := e.FindStores(ctx, geo.Rect(0, 0, 5000, 5000)); !errors.Is(err, sources.ErrNoHealthySource) {
		t.Fatalf("FindStores err = %v", err)
	}
	if _, err := e.IsInDesert(ctx, geo.Point{X: 100, Y: 100}); !errors.Is(err, sources.ErrNoHealthySource) {
		t.Fatalf("IsInDesert err = %v", err)
	}
	area, err := e.SearchedArea(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if area != 0 || st.Len() != 0 {
		t.Fatalf("aborted rounds committed area=%v stores=%d", area, st.Len())
	}
}
