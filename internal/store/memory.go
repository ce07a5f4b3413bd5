package store

import (
	"context"
	"sort"
	"sync"

	"food-desert/internal/geo"
	"food-desert/internal/metrics"
)

// 文档注释：进程内 Store 实现
// 背景：测试与无数据库部署使用；语义与 PostGIS 实现一致（位置唯一、事务原子）。
// 约束：InTx 期间持有写锁，事务内修改先写入暂存副本，fn 成功后一次性生效。
type MemoryStore struct {
	mu       sync.RWMutex
	coverage geo.Region
	stores   map[geo.Point]StoreRecord
	nextID   int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stores: map[geo.Point]StoreRecord{}, nextID: 1}
}

func (m *MemoryStore) SearchedCoverage(ctx context.Context) (geo.Region, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.coverage, nil
}

func (m *MemoryStore) QueryStores(ctx context.Context, r geo.Region) ([]StoreRecord, error) {
	if r.IsEmpty() {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []StoreRecord
	for _, rec := range m.stores {
		if r.Intersects(geo.PointRegion(rec.Location)) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, nil
}

func (m *MemoryStore) InsertStores(ctx context.Context, recs []StoreRecord) ([]StoreRecord, error) {
	var out []StoreRecord
	err := m.InTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.InsertStores(ctx, recs)
		return err
	})
	return out, err
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{m: m, coverage: m.coverage, added: map[geo.Point]StoreRecord{}, nextID: m.nextID}
	if err := fn(tx); err != nil {
		return err
	}
	m.coverage = tx.coverage
	for p, rec := range tx.added {
		m.stores[p] = rec
	}
	m.nextID = tx.nextID
	return nil
}

func (m *MemoryStore) Truncate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coverage = geo.Empty()
	m.stores = map[geo.Point]StoreRecord{}
	m.nextID = 1
	return nil
}

// Len 当前记录数
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stores)
}

type memTx struct {
	m        *MemoryStore
	coverage geo.Region
	added    map[geo.Point]StoreRecord
	nextID   int64
}

func (t *memTx) SearchedCoverage(ctx context.Context) (geo.Region, error) { return t.coverage, nil }

func (t *memTx) SetSearchedCoverage(ctx context.Context, r geo.Region) error {
	t.coverage = r
	return nil
}

func (t *memTx) InsertStores(ctx context.Context, recs []StoreRecord) ([]StoreRecord, error) {
	out := make([]StoreRecord, 0, len(recs))
	for _, rec := range recs {
		if existing, ok := t.m.stores[rec.Location]; ok {
			metrics.DuplicateStoresTotal.Inc()
			out = append(out, existing)
			continue
		}
		if existing, ok := t.added[rec.Location]; ok {
			metrics.DuplicateStoresTotal.Inc()
			out = append(out, existing)
			continue
		}
		if _, ok := rec.ID(); !ok {
			var err error
			if rec, err = rec.WithID(t.nextID); err != nil {
				return nil, err
			}
			t.nextID++
		}
		rec.Source = ""
		t.added[rec.Location] = rec
		metrics.StoresInsertedTotal.Inc()
		out = append(out, rec)
	}
	return out, nil
}
