package app

import (
	"context"
	"errors"
	"testing"

	"food-desert/internal/config"
	"food-desert/internal/geo"
	"food-desert/internal/lookup"
	"food-desert/internal/network"
)

func TestBuildSources(t *testing.T) {
	cfg := config.Config{LookupTimeout: 1}
	if _, err := BuildSources(cfg); !errors.Is(err, ErrNoSources) {
		t.Fatalf("err = %v, want ErrNoSources", err)
	}
	cfg.GooglePlacesKey = "k"
	cfg.ExtSourceEndpoint = "http://127.0.0.1:1"
	cfg.ExtSourceName = "ext"
	cfg.StoreFilter = `name != ""`
	pm, err := BuildSources(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if pm.Len() != 2 {
		t.Fatalf("sources = %d", pm.Len())
	}
	cfg.StoreFilter = "name +"
	if _, err := BuildSources(cfg); err == nil {
		t.Fatal("invalid filter expression must fail startup")
	}
}

func TestOpenStoreBackends(t *testing.T) {
	ctx := context.Background()
	st, closer, err := OpenStore(ctx, config.Config{StoreBackend: "memory"})
	if err != nil || st == nil {
		t.Fatalf("memory store: %v", err)
	}
	closer.Close()
	if _, _, err := OpenStore(ctx, config.Config{StoreBackend: "mongo"}); err == nil {
		t.Fatal("unknown backend must fail")
	}
}

func TestOpenNetworkDisabled(t *testing.T) {
	g, closer, err := OpenNetwork(config.Config{})
	if err != nil || g != nil || closer != nil {
		t.Fatalf("g = %v, closer = %v, err = %v", g, closer, err)
	}
}

func TestNewEngineWithMemoryGraph(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{
		ReachRadius:         config.MetersPerMile,
		SimplifyTolerance:   1,
		MinIntersectionArea: 1e-6,
		CommitPolicy:        config.CommitAll,
		LookupParallelism:   2,
		HullRatio:           0.3,
	}
	st, _, _ := OpenStore(ctx, config.Config{StoreBackend: "memory"})
	src := &lookup.CountingSource{}
	eng := NewEngine(cfg, st, src, network.NewMemoryGraph())
	desert, err := eng.IsInDesert(ctx, geo.Point{})
	if err != nil || !desert || src.Calls() != 1 {
		t.Fatalf("desert = %v, calls = %d, err = %v", desert, src.Calls(), err)
	}
}
