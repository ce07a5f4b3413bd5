package migrate

import (
	"database/sql"

	"food-desert/internal/logger"
)

// 背景：首次运行自动创建覆盖区与店铺表，保障后续查询轮次可直接写入
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；覆盖区固定为 id=1 的单行
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS postgis`,
		`CREATE TABLE IF NOT EXISTS _fd_searched_coverage (
            id INT PRIMARY KEY,
            geom geometry(Geometry, 3857),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`INSERT INTO _fd_searched_coverage(id, geom)
         VALUES(1, NULL)
         ON CONFLICT (id) DO NOTHING`,
		`CREATE TABLE IF NOT EXISTS _fd_grocery_stores (
            id BIGSERIAL PRIMARY KEY,
            name TEXT,
            location geometry(Point, 3857) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_store_location ON _fd_grocery_stores((ST_X(location)), (ST_Y(location)))`,
		`CREATE INDEX IF NOT EXISTS idx_store_location_gist ON _fd_grocery_stores USING GIST(location)`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}

// 路网表名；导入先写入暂存表，完成后在单个事务内整体替换正式表
const (
	NetworkNodes      = "network_nodes"
	NetworkEdges      = "network_edges"
	NetworkNodesStage = "network_nodes_stage"
	NetworkEdgesStage = "network_edges_stage"
)

func networkTables(nodes, edges string) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + nodes + ` (
            id INTEGER PRIMARY KEY,
            cardinality INTEGER NOT NULL DEFAULT 0,
            x REAL NOT NULL,
            y REAL NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_` + nodes + `_xy ON ` + nodes + `(x, y)`,
		`CREATE TABLE IF NOT EXISTS ` + edges + ` (
            id INTEGER PRIMARY KEY,
            node_from INTEGER NOT NULL,
            node_to INTEGER NOT NULL,
            length REAL NOT NULL,
            geom BLOB NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_` + edges + `_from ON ` + edges + `(node_from)`,
		`CREATE INDEX IF NOT EXISTS idx_` + edges + `_to ON ` + edges + `(node_to)`,
	}
}

// 背景：路网图存放在独立的 SQLite 文件，导入与遍历读取均依赖这两张表
// 约束：边几何以 WKB 存储，坐标均为 EPSG:3857
func EnsureNetworkSchema(db *sql.DB) error {
	for i, s := range networkTables(NetworkNodes, NetworkEdges) {
		logger.L().Debug("network_schema_exec", "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// ResetNetworkStage：丢弃上次中断导入残留的暂存表并重建为空表
func ResetNetworkStage(db *sql.DB) error {
	stmts := append([]string{
		`DROP TABLE IF EXISTS ` + NetworkNodesStage,
		`DROP TABLE IF EXISTS ` + NetworkEdgesStage,
	}, networkTables(NetworkNodesStage, NetworkEdgesStage)...)
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
