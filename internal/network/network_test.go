package network

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"food-desert/internal/geo"
	"food-desert/internal/migrate"
	"food-desert/internal/utils"
)

// lineGraph 沿 x 轴每 100 一个节点，相邻节点相连
func lineGraph(t *testing.T, n int) *MemoryGraph {
	t.Helper()
	g := NewMemoryGraph()
	for i := 0; i < n; i++ {
		g.AddNode(Node{ID: int64(i), Location: geo.Point{X: float64(i) * 100}})
	}
	for i := 1; i < n; i++ {
		if err := g.AddEdge(Edge{ID: int64(i), From: int64(i - 1), To: int64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	g.Build()
	return g
}

func edgeIDs(es []Edge) []int64 {
	ids := make([]int64, len(es))
	for i, e := range es {
		ids[i] = e.ID
	}
	return ids
}

func TestReachableWithinBudget(t *testing.T) {
	b := NewBuffer(lineGraph(t, 6), 0.3)
	got, err := b.Reachable(context.Background(), geo.Point{X: 5, Y: 5}, 250, geo.Empty())
	if err != nil {
		t.Fatal(err)
	}
	if ids := edgeIDs(got); len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("edges = %v, want [1 2]", ids)
	}
}

func TestReachableNoNodeWithinBudget(t *testing.T) {
	b := NewBuffer(lineGraph(t, 3), 0.3)
	got, err := b.Reachable(context.Background(), geo.Point{X: 10000, Y: 10000}, 250, geo.Empty())
	if err != nil {
		t.Fatalf("missing network data is not an error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("edges = %v", edgeIDs(got))
	}
	hull, err := b.Around(context.Background(), geo.Point{X: 10000, Y: 10000}, 250, geo.Empty())
	if err != nil || !hull.IsEmpty() {
		t.Fatalf("hull = %v, err = %v", hull, err)
	}
}

func TestReachableRespectsBound(t *testing.T) {
	b := NewBuffer(lineGraph(t, 6), 0.3)
	got, err := b.Reachable(context.Background(), geo.Point{}, 1000, geo.Rect(-10, -10, 150, 10))
	if err != nil {
		t.Fatal(err)
	}
	if ids := edgeIDs(got); len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("edges = %v, want [1]", ids)
	}
}

func TestReachableRequeuesOnImprovement(t *testing.T) {
	g := NewMemoryGraph()
	g.AddNode(Node{ID: 1, Location: geo.Point{X: 0, Y: 0}})   // A
	g.AddNode(Node{ID: 2, Location: geo.Point{X: 100, Y: 0}}) // B
	g.AddNode(Node{ID: 3, Location: geo.Point{X: 100, Y: 100}})
	g.AddNode(Node{ID: 4, Location: geo.Point{X: 100, Y: 220}})
	// A-C 先于 A-B 加入，FIFO 先以 300 标记 C，随后经 B 改进为 200
	for _, e := range []Edge{
		{ID: 10, From: 1, To: 3, Length: 300},
		{ID: 11, From: 1, To: 2, Length: 100},
		{ID: 12, From: 2, To: 3, Length: 100},
		{ID: 13, From: 3, To: 4, Length: 120},
	} {
		if err := g.AddEdge(e); err != nil {
			t.Fatal(err)
		}
	}
	g.Build()
	got, err := NewBuffer(g, 0.3).Reachable(context.Background(), geo.Point{}, 350, geo.Empty())
	if err != nil {
		t.Fatal(err)
	}
	ids := edgeIDs(got)
	if len(ids) != 4 || ids[3] != 13 {
		t.Fatalf("edges = %v, want C-D reachable after relabel", ids)
	}
}

func TestAroundProducesPolygon(t *testing.T) {
	g := NewMemoryGraph()
	id := func(i, j int) int64 { return int64(i*10 + j) }
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			g.AddNode(Node{ID: id(i, j), Location: geo.Point{X: float64(i) * 100, Y: float64(j) * 100}})
		}
	}
	var eid int64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if i < 3 {
				eid++
				_ = g.AddEdge(Edge{ID: eid, From: id(i, j), To: id(i+1, j)})
			}
			if j < 3 {
				eid++
				_ = g.AddEdge(Edge{ID: eid, From: id(i, j), To: id(i, j+1)})
			}
		}
	}
	g.Build()
	hull, err := NewBuffer(g, 1).Around(context.Background(), geo.Point{X: 150, Y: 150}, 10000, geo.Empty())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(hull.Area()-300*300) > 1e-6 {
		t.Fatalf("hull area = %v", hull.Area())
	}
}

func TestKDNearest(t *testing.T) {
	var ns []Node
	for i := 0; i < 50; i++ {
		ns = append(ns, Node{ID: int64(i), Location: geo.Point{X: float64(i*37%50) * 10, Y: float64(i*11%50) * 10}})
	}
	root := buildKD(append([]Node(nil), ns...), 0)
	q := geo.Point{X: 123, Y: 321}
	got, d := nearest(root, q)
	best := math.Inf(1)
	for _, n := range ns {
		best = math.Min(best, geo.Distance(q, n.Location))
	}
	if d != best || geo.Distance(q, got.Location) != best {
		t.Fatalf("kd nearest %v (%v), brute force %v", got, d, best)
	}
}

func TestSQLiteGraph(t *testing.T) {
	ctx := context.Background()
	db, err := utils.OpenSQLite(filepath.Join(t.TempDir(), "network.db"), false)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := migrate.EnsureNetworkSchema(db); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if _, err := db.Exec("INSERT INTO network_nodes(id, cardinality, x, y) VALUES(?, 2, ?, 0)", i, float64(i)*100); err != nil {
			t.Fatal(err)
		}
	}
	for i := 1; i < 4; i++ {
		line := geo.Lines([][]geo.Point{{{X: float64(i-1) * 100}, {X: float64(i) * 100}}})
		if _, err := db.Exec("INSERT INTO network_edges(id, node_from, node_to, length, geom) VALUES(?, ?, ?, 100, ?)", i, i-1, i, line.WKB()); err != nil {
			t.Fatal(err)
		}
	}
	g := NewSQLiteGraph(db)
	got, err := NewBuffer(g, 0.3).Reachable(ctx, geo.Point{X: 10}, 250, geo.Empty())
	if err != nil {
		t.Fatal(err)
	}
	if ids := edgeIDs(got); len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("edges = %v", ids)
	}
	if got[0].Geometry.IsEmpty() {
		t.Fatal("edge geometry should decode from wkb")
	}
	_ = g.View(ctx, func(r Reader) error {
		if _, ok, _ := r.NearestNode(ctx, geo.Point{X: 5000}, 100); ok {
			t.Fatal("no node lies within 100 of x=5000")
		}
		return nil
	})
}
