// 包 ingest：路网数据导入，作为离线数据通道写入 SQLite 路网库
package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"food-desert/internal/geo"
	"food-desert/internal/logger"
	"food-desert/internal/migrate"
)

// batchSize 每批提交的行数
const batchSize = 5000

var ErrBadFeature = errors.New("bad network feature")

// ErrEmptyNetwork 文件中没有可用的节点或边；正式表保持不变
var ErrEmptyNetwork = errors.New("network file has no usable features")

// Options 导入参数
type Options struct {
	// Projected 为 true 时坐标已是 EPSG:3857，否则按经纬度换算
	Projected bool
}

// Stats 导入统计
type Stats struct {
	Nodes   int
	Edges   int
	Skipped int
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Geometry struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	} `json:"geometry"`
	Properties struct {
		ID       *int64   `json:"id"`
		NodeFrom *int64   `json:"node_from"`
		NodeTo   *int64   `json:"node_to"`
		Length   *float64 `json:"length"`
	} `json:"properties"`
}

// ImportFile：按路径导入
func ImportFile(ctx context.Context, db *sql.DB, path string, opts Options) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer f.Close()
	return ImportNetwork(ctx, db, f, opts)
}

// 文档注释：导入 GeoJSON 路网，整体替换现有路网
// 背景：FeatureCollection 中 LineString 为边（properties: id,node_from,node_to,length），Point 为节点（properties: id）；
// 未提供节点点要素时以边的首尾坐标作为端点位置。先按 5000 行一批写入暂存表，降低锁持有与 WAL 压力。
// 约束：length 缺省时取工作坐标系下的折线长度；缺少 id/端点的要素计入 Skipped 而不中止；
// 暂存表写完后在单个事务内清空正式表、整体拷入并重算节点出度，文件中已删除的节点与边随之消失；
// 任一步失败或文件没有可用要素时正式表保持原样。
func ImportNetwork(ctx context.Context, db *sql.DB, r io.Reader, opts Options) (Stats, error) {
	var fc featureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return Stats{}, fmt.Errorf("decode network geojson: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return Stats{}, fmt.Errorf("%w: top-level type %q", ErrBadFeature, fc.Type)
	}
	project := func(c [2]float64) geo.Point {
		if opts.Projected {
			return geo.Point{X: c[0], Y: c[1]}
		}
		return geo.ToMercator(geo.LngLat{Lng: c[0], Lat: c[1]})
	}

	if err := migrate.EnsureNetworkSchema(db); err != nil {
		return Stats{}, fmt.Errorf("network schema: %w", err)
	}
	if err := migrate.ResetNetworkStage(db); err != nil {
		return Stats{}, fmt.Errorf("reset network stage: %w", err)
	}

	logger.L().Info("network_import_start", "features", len(fc.Features))
	w := &batchWriter{ctx: ctx, db: db}
	defer w.rollback()
	if err := w.begin(); err != nil {
		return Stats{}, err
	}

	var st Stats
	explicit := map[int64]bool{}
	for _, f := range fc.Features {
		switch f.Geometry.Type {
		case "Point":
			var c [2]float64
			if err := json.Unmarshal(f.Geometry.Coordinates, &c); err != nil || f.Properties.ID == nil {
				st.Skipped++
				continue
			}
			if err := w.node(*f.Properties.ID, project(c), true); err != nil {
				return st, err
			}
			explicit[*f.Properties.ID] = true
			st.Nodes++
		case "LineString":
			var cs [][2]float64
			p := f.Properties
			if err := json.Unmarshal(f.Geometry.Coordinates, &cs); err != nil || len(cs) < 2 ||
				p.ID == nil || p.NodeFrom == nil || p.NodeTo == nil {
				st.Skipped++
				continue
			}
			pts := make([]geo.Point, len(cs))
			for i, c := range cs {
				pts[i] = project(c)
			}
			length := polylineLength(pts)
			if p.Length != nil && *p.Length > 0 {
				length = *p.Length
			}
			for _, end := range []struct {
				id int64
				at geo.Point
			}{{*p.NodeFrom, pts[0]}, {*p.NodeTo, pts[len(pts)-1]}} {
				if explicit[end.id] {
					continue
				}
				if err := w.node(end.id, end.at, false); err != nil {
					return st, err
				}
			}
			line := geo.Lines([][]geo.Point{pts})
			if err := w.edge(*p.ID, *p.NodeFrom, *p.NodeTo, length, line.WKB()); err != nil {
				return st, err
			}
			st.Edges++
		default:
			st.Skipped++
		}
	}
	if err := w.commit(); err != nil {
		return st, err
	}
	if st.Nodes == 0 && st.Edges == 0 {
		return st, ErrEmptyNetwork
	}
	if err := swapStage(ctx, db); err != nil {
		return st, err
	}
	logger.L().Info("network_import_done", "nodes", st.Nodes, "edges", st.Edges, "skipped", st.Skipped)
	return st, nil
}

// swapStage 单事务内以暂存表替换正式表；只读连接在提交前看到的始终是旧路网
func swapStage(ctx context.Context, db *sql.DB) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmts := []string{
		"DELETE FROM " + migrate.NetworkEdges,
		"DELETE FROM " + migrate.NetworkNodes,
		"INSERT INTO " + migrate.NetworkNodes + "(id, cardinality, x, y) SELECT id, 0, x, y FROM " + migrate.NetworkNodesStage,
		"INSERT INTO " + migrate.NetworkEdges + "(id, node_from, node_to, length, geom) SELECT id, node_from, node_to, length, geom FROM " + migrate.NetworkEdgesStage,
		`UPDATE network_nodes SET cardinality =
        (SELECT COUNT(*) FROM network_edges e WHERE e.node_from = network_nodes.id OR e.node_to = network_nodes.id)`,
		"DROP TABLE " + migrate.NetworkNodesStage,
		"DROP TABLE " + migrate.NetworkEdgesStage,
	}
	for _, q := range stmts {
		if _, err = tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("swap network stage: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("swap network stage: %w", err)
	}
	return nil
}

func polylineLength(pts []geo.Point) float64 {
	var l float64
	for i := 1; i < len(pts); i++ {
		l += geo.Distance(pts[i-1], pts[i])
	}
	return l
}

// batchWriter 每 batchSize 行提交一次并重建事务与预编译语句
type batchWriter struct {
	ctx       context.Context
	db        *sql.DB
	tx        *sql.Tx
	upsert    *sql.Stmt
	insertIgn *sql.Stmt
	edgeStmt  *sql.Stmt
	rows      int
}

func (w *batchWriter) begin() error {
	tx, err := w.db.BeginTx(w.ctx, nil)
	if err != nil {
		return err
	}
	w.tx = tx
	if w.upsert, err = tx.PrepareContext(w.ctx,
		"INSERT INTO "+migrate.NetworkNodesStage+"(id, cardinality, x, y) VALUES(?, 0, ?, ?) ON CONFLICT(id) DO UPDATE SET x=excluded.x, y=excluded.y"); err != nil {
		return err
	}
	if w.insertIgn, err = tx.PrepareContext(w.ctx,
		"INSERT OR IGNORE INTO "+migrate.NetworkNodesStage+"(id, cardinality, x, y) VALUES(?, 0, ?, ?)"); err != nil {
		return err
	}
	w.edgeStmt, err = tx.PrepareContext(w.ctx,
		"INSERT OR REPLACE INTO "+migrate.NetworkEdgesStage+"(id, node_from, node_to, length, geom) VALUES(?, ?, ?, ?, ?)")
	return err
}

// node：explicit 为 true 时覆盖已有位置；端点推导的位置不覆盖已有节点
func (w *batchWriter) node(id int64, p geo.Point, explicit bool) error {
	stmt := w.insertIgn
	if explicit {
		stmt = w.upsert
	}
	if _, err := stmt.ExecContext(w.ctx, id, p.X, p.Y); err != nil {
		return fmt.Errorf("node %d: %w", id, err)
	}
	return w.step()
}

func (w *batchWriter) edge(id, from, to int64, length float64, wkb []byte) error {
	if _, err := w.edgeStmt.ExecContext(w.ctx, id, from, to, length, wkb); err != nil {
		return fmt.Errorf("edge %d: %w", id, err)
	}
	return w.step()
}

func (w *batchWriter) step() error {
	w.rows++
	if w.rows%batchSize != 0 {
		return nil
	}
	logger.L().Info("network_import_progress", "rows", w.rows)
	if err := w.commit(); err != nil {
		return err
	}
	return w.begin()
}

func (w *batchWriter) commit() error {
	for _, s := range []*sql.Stmt{w.upsert, w.insertIgn, w.edgeStmt} {
		if s != nil {
			_ = s.Close()
		}
	}
	err := w.tx.Commit()
	w.tx = nil
	return err
}

func (w *batchWriter) rollback() {
	if w.tx != nil {
		_ = w.tx.Rollback()
	}
}
