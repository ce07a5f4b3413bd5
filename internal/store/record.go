// 包 store: 空间存储访问层，持久化已搜索覆盖区与杂货店记录
package store

import (
	"context"
	"errors"

	"food-desert/internal/geo"
)

// ErrIDAlreadyAssigned 重复分配记录主键，属于调用方编程错误
var ErrIDAlreadyAssigned = errors.New("store record id already assigned")

// 文档注释：杂货店记录
// 约束：Location 必填；ID 由持久化层分配且仅分配一次，之后不可变。
// Source 仅在查询轮次内有意义（来源名），不落库。
type StoreRecord struct {
	id       int64
	hasID    bool
	Name     string
	Location geo.Point
	Source   string
}

// NewRecord 构造尚未持久化的记录
func NewRecord(name string, loc geo.Point) StoreRecord {
	return StoreRecord{Name: name, Location: loc}
}

// ID 返回主键；未持久化时 ok=false
func (r StoreRecord) ID() (int64, bool) { return r.id, r.hasID }

// WithID 返回带主键的副本；已有主键时返回 ErrIDAlreadyAssigned
func (r StoreRecord) WithID(id int64) (StoreRecord, error) {
	if r.hasID {
		return r, ErrIDAlreadyAssigned
	}
	r.id = id
	r.hasID = true
	return r, nil
}

// Tx：单个事务内可见的读写操作
type Tx interface {
	// SearchedCoverage 读取覆盖区并在事务结束前锁定，防止并发提交互相覆盖
	SearchedCoverage(ctx context.Context) (geo.Region, error)
	SetSearchedCoverage(ctx context.Context, r geo.Region) error
	// InsertStores 写入记录，精确重复的位置被静默丢弃；返回全部带主键的记录
	InsertStores(ctx context.Context, recs []StoreRecord) ([]StoreRecord, error)
}

// 文档注释：空间存储接口
// 背景：覆盖区与店铺表跨请求共享；店铺写入与覆盖区提交必须处于同一事务（InTx）。
// 约束：fn 返回错误时整体回滚，不留下部分写入。
type Store interface {
	SearchedCoverage(ctx context.Context) (geo.Region, error)
	QueryStores(ctx context.Context, r geo.Region) ([]StoreRecord, error)
	InsertStores(ctx context.Context, recs []StoreRecord) ([]StoreRecord, error)
	InTx(ctx context.Context, fn func(Tx) error) error
	Truncate(ctx context.Context) error
}
