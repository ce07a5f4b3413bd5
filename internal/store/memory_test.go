package store

import (
	"context"
	"errors"
	"testing"

	"food-desert/internal/geo"
)

func TestWithIDOnce(t *testing.T) {
	r := NewRecord("a", geo.Point{X: 1, Y: 2})
	if _, ok := r.ID(); ok {
		t.Fatal("fresh record should have no id")
	}
	r2, err := r.WithID(7)
	if err != nil {
		t.Fatal(err)
	}
	if id, ok := r2.ID(); !ok || id != 7 {
		t.Fatalf("id = %d, %v", id, ok)
	}
	if _, err := r2.WithID(8); !errors.Is(err, ErrIDAlreadyAssigned) {
		t.Fatalf("want ErrIDAlreadyAssigned, got %v", err)
	}
}

func TestInsertDeduplicatesByLocation(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	first, err := m.InsertStores(ctx, []StoreRecord{
		NewRecord("a", geo.Point{X: 0, Y: 0}),
		NewRecord("a again", geo.Point{X: 0, Y: 0}),
		NewRecord("b", geo.Point{X: 10, Y: 0}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if m.Len() != 2 || len(first) != 3 {
		t.Fatalf("len = %d, returned = %d", m.Len(), len(first))
	}
	idA, _ := first[0].ID()
	idDup, _ := first[1].ID()
	if idA != idDup {
		t.Fatalf("duplicate should resolve to existing id: %d vs %d", idA, idDup)
	}
	if _, err := m.InsertStores(ctx, []StoreRecord{NewRecord("a", geo.Point{X: 0, Y: 0})}); err != nil {
		t.Fatalf("resubmitting a location should not fail: %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("len after resubmit = %d", m.Len())
	}
}

func TestQueryStoresByRegion(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	_, _ = m.InsertStores(ctx, []StoreRecord{
		NewRecord("in", geo.Point{X: 1, Y: 1}),
		NewRecord("out", geo.Point{X: 50, Y: 50}),
	})
	got, err := m.QueryStores(ctx, geo.Rect(0, 0, 5, 5))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "in" {
		t.Fatalf("got %+v", got)
	}
	if got, _ := m.QueryStores(ctx, geo.Empty()); len(got) != 0 {
		t.Fatal("empty region matches nothing")
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	boom := errors.New("boom")
	err := m.InTx(ctx, func(tx Tx) error {
		if _, err := tx.InsertStores(ctx, []StoreRecord{NewRecord("x", geo.Point{X: 3, Y: 3})}); err != nil {
			return err
		}
		if err := tx.SetSearchedCoverage(ctx, geo.Rect(0, 0, 1, 1)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	cov, _ := m.SearchedCoverage(ctx)
	if m.Len() != 0 || !cov.IsEmpty() {
		t.Fatal("failed transaction must leave no writes")
	}
}

func TestTruncate(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	_ = m.InTx(ctx, func(tx Tx) error {
		_, _ = tx.InsertStores(ctx, []StoreRecord{NewRecord("x", geo.Point{X: 3, Y: 3})})
		return tx.SetSearchedCoverage(ctx, geo.Rect(0, 0, 1, 1))
	})
	if err := m.Truncate(ctx); err != nil {
		t.Fatal(err)
	}
	cov, _ := m.SearchedCoverage(ctx)
	if m.Len() != 0 || !cov.IsEmpty() {
		t.Fatal("truncate should clear stores and coverage")
	}
}
