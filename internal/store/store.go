package store

import (
	"context"
	"database/sql"
	"fmt"

	"food-desert/internal/geo"
	"food-desert/internal/logger"
	"food-desert/internal/metrics"

	_ "github.com/lib/pq"
)

// SRID 工作坐标系
const SRID = 3857

// PostGIS: 基于 PostgreSQL + PostGIS 的 Store 实现，持有连接池
type PostGIS struct {
	db *sql.DB
}

var _ Store = (*PostGIS)(nil)

func AttachDB(db *sql.DB) *PostGIS { return &PostGIS{db: db} }

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SearchedCoverage: 读取当前已搜索覆盖区；尚未提交过时为空区域
func (s *PostGIS) SearchedCoverage(ctx context.Context) (geo.Region, error) {
	return readCoverage(ctx, s.db, "SELECT ST_AsBinary(geom) FROM _fd_searched_coverage WHERE id=1")
}

// QueryStores: 返回与区域相交的全部店铺，按主键升序
func (s *PostGIS) QueryStores(ctx context.Context, r geo.Region) ([]StoreRecord, error) {
	if r.IsEmpty() {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, COALESCE(name, ''), ST_X(location), ST_Y(location) FROM _fd_grocery_stores WHERE ST_Intersects(location, ST_GeomFromWKB($1, $2)) ORDER BY id",
		r.WKB(), SRID)
	if err != nil {
		return nil, fmt.Errorf("query stores: %w", err)
	}
	defer rows.Close()
	var out []StoreRecord
	for rows.Next() {
		var id int64
		var rec StoreRecord
		if err := rows.Scan(&id, &rec.Name, &rec.Location.X, &rec.Location.Y); err != nil {
			return nil, err
		}
		rec, _ = rec.WithID(id)
		out = append(out, rec)
	}
	logger.L().Debug("db_query_stores", "count", len(out))
	return out, rows.Err()
}

// InsertStores: 单独事务写入店铺（不触碰覆盖区）
func (s *PostGIS) InsertStores(ctx context.Context, recs []StoreRecord) ([]StoreRecord, error) {
	var out []StoreRecord
	err := s.InTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.InsertStores(ctx, recs)
		return err
	})
	return out, err
}

// 文档注释：在单个数据库事务中执行 fn
// 约束：fn 返回错误或 panic 时回滚；仅 fn 成功时提交
func (s *PostGIS) InTx(ctx context.Context, fn func(Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()
	if err = fn(&pgTx{tx: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Truncate: 清空店铺表与覆盖区（管理/测试用途）
func (s *PostGIS) Truncate(ctx context.Context) error {
	return s.InTx(ctx, func(tx Tx) error {
		t := tx.(*pgTx).tx
		if _, err := t.ExecContext(ctx, "TRUNCATE _fd_grocery_stores RESTART IDENTITY"); err != nil {
			return err
		}
		_, err := t.ExecContext(ctx, "UPDATE _fd_searched_coverage SET geom=NULL, updated_at=now() WHERE id=1")
		logger.L().Info("db_truncate_done")
		return err
	})
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) SearchedCoverage(ctx context.Context) (geo.Region, error) {
	return readCoverage(ctx, t.tx, "SELECT ST_AsBinary(geom) FROM _fd_searched_coverage WHERE id=1 FOR UPDATE")
}

func (t *pgTx) SetSearchedCoverage(ctx context.Context, r geo.Region) error {
	var wkb any
	if !r.IsEmpty() {
		wkb = r.WKB()
	}
	_, err := t.tx.ExecContext(ctx,
		"UPDATE _fd_searched_coverage SET geom=ST_GeomFromWKB($1, $2), updated_at=now() WHERE id=1", wkb, SRID)
	if err != nil {
		return fmt.Errorf("set coverage: %w", err)
	}
	return nil
}

// 文档注释：逐条写入；位置唯一约束冲突时不报错，回查既有主键
func (t *pgTx) InsertStores(ctx context.Context, recs []StoreRecord) ([]StoreRecord, error) {
	out := make([]StoreRecord, 0, len(recs))
	for _, rec := range recs {
		if _, ok := rec.ID(); ok {
			out = append(out, rec)
			continue
		}
		var name any
		if rec.Name != "" {
			name = rec.Name
		}
		var id int64
		err := t.tx.QueryRowContext(ctx,
			"INSERT INTO _fd_grocery_stores(name, location) VALUES($1, ST_SetSRID(ST_MakePoint($2, $3), $4)) ON CONFLICT DO NOTHING RETURNING id",
			name, rec.Location.X, rec.Location.Y, SRID).Scan(&id)
		switch {
		case err == sql.ErrNoRows:
			metrics.DuplicateStoresTotal.Inc()
			err = t.tx.QueryRowContext(ctx,
				"SELECT id FROM _fd_grocery_stores WHERE ST_X(location)=$1 AND ST_Y(location)=$2 LIMIT 1",
				rec.Location.X, rec.Location.Y).Scan(&id)
			if err != nil {
				return nil, fmt.Errorf("lookup duplicate store: %w", err)
			}
		case err != nil:
			return nil, fmt.Errorf("insert store: %w", err)
		default:
			metrics.StoresInsertedTotal.Inc()
		}
		stored, err := rec.WithID(id)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

func readCoverage(ctx context.Context, q queryer, query string) (geo.Region, error) {
	var wkb []byte
	if err := q.QueryRowContext(ctx, query).Scan(&wkb); err != nil {
		if err == sql.ErrNoRows {
			return geo.Empty(), nil
		}
		return geo.Empty(), fmt.Errorf("read coverage: %w", err)
	}
	return geo.FromWKB(wkb)
}
