package network

import (
	"context"
	"database/sql"
	"fmt"

	"food-desert/internal/geo"
)

// 文档注释：SQLite 路网图
// 背景：路网由 ingest 导入到独立 SQLite 文件（network_nodes / network_edges）；遍历时逐节点懒加载边。
// 约束：View 打开只读事务，遍历的全部读取在同一快照内完成
type SQLiteGraph struct {
	db *sql.DB
}

var _ Graph = (*SQLiteGraph)(nil)

func NewSQLiteGraph(db *sql.DB) *SQLiteGraph { return &SQLiteGraph{db: db} }

func (g *SQLiteGraph) DB() *sql.DB { return g.db }

func (g *SQLiteGraph) View(ctx context.Context, fn func(Reader) error) (err error) {
	tx, err := g.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); err == nil && rbErr != nil && rbErr != sql.ErrTxDone {
			err = rbErr
		}
	}()
	return fn(sqliteReader{tx: tx})
}

// Counts 节点与边数量
func (g *SQLiteGraph) Counts(ctx context.Context) (nodes, edges int64, err error) {
	if err = g.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM network_nodes").Scan(&nodes); err != nil {
		return
	}
	err = g.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM network_edges").Scan(&edges)
	return
}

type sqliteReader struct {
	tx *sql.Tx
}

func (r sqliteReader) NearestNode(ctx context.Context, p geo.Point, maxDist float64) (Node, bool, error) {
	row := r.tx.QueryRowContext(ctx,
		`SELECT id, cardinality, x, y FROM network_nodes
         WHERE x BETWEEN ? AND ? AND y BETWEEN ? AND ?
         ORDER BY (x-?)*(x-?) + (y-?)*(y-?) LIMIT 1`,
		p.X-maxDist, p.X+maxDist, p.Y-maxDist, p.Y+maxDist, p.X, p.X, p.Y, p.Y)
	var n Node
	if err := row.Scan(&n.ID, &n.Cardinality, &n.Location.X, &n.Location.Y); err != nil {
		if err == sql.ErrNoRows {
			return Node{}, false, nil
		}
		return Node{}, false, fmt.Errorf("nearest node: %w", err)
	}
	if geo.Distance(p, n.Location) > maxDist {
		return Node{}, false, nil
	}
	return n, true, nil
}

func (r sqliteReader) Node(ctx context.Context, id int64) (Node, error) {
	var n Node
	err := r.tx.QueryRowContext(ctx, "SELECT id, cardinality, x, y FROM network_nodes WHERE id=?", id).
		Scan(&n.ID, &n.Cardinality, &n.Location.X, &n.Location.Y)
	if err == sql.ErrNoRows {
		return Node{}, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	return n, err
}

func (r sqliteReader) Edges(ctx context.Context, n Node) ([]Edge, error) {
	rows, err := r.tx.QueryContext(ctx,
		"SELECT id, node_from, node_to, length, geom FROM network_edges WHERE node_from=? OR node_to=?", n.ID, n.ID)
	if err != nil {
		return nil, fmt.Errorf("edges of %d: %w", n.ID, err)
	}
	defer rows.Close()
	out := make([]Edge, 0, n.Cardinality)
	for rows.Next() {
		var e Edge
		var wkb []byte
		if err := rows.Scan(&e.ID, &e.From, &e.To, &e.Length, &wkb); err != nil {
			return nil, err
		}
		if e.Geometry, err = geo.FromWKB(wkb); err != nil {
			return nil, fmt.Errorf("edge %d geometry: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
