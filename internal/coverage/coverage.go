// 包 coverage：已搜索覆盖区缓存，是覆盖区唯一的写入路径
package coverage

import (
	"context"
	"fmt"
	"sync"

	"food-desert/internal/geo"
	"food-desert/internal/logger"
	"food-desert/internal/metrics"
	"food-desert/internal/store"
)

// shrinkTolerance 并集面积的相对浮点误差上限
const shrinkTolerance = 1e-9

// 文档注释：覆盖区缓存
// 背景：覆盖区是跨请求共享的单个累积区域，只增不减；区域要么已完整搜索，要么视为完全未搜索。
// 约束：同一实例内提交串行化（mu），跨进程由存储层事务内的行锁保证；提交后几何非法视为致命错误。
type Cache struct {
	st store.Store
	mu sync.Mutex
}

func New(st store.Store) *Cache { return &Cache{st: st} }

// UncoveredPortion：request 减去当前覆盖区；完全覆盖时返回空区域，无副作用
func (c *Cache) UncoveredPortion(ctx context.Context, request geo.Region) (geo.Region, error) {
	if request.IsEmpty() {
		return geo.Empty(), nil
	}
	searched, err := c.st.SearchedCoverage(ctx)
	if err != nil {
		return geo.Empty(), err
	}
	return request.Difference(searched), nil
}

// SearchedArea：当前覆盖区面积
func (c *Cache) SearchedArea(ctx context.Context) (float64, error) {
	searched, err := c.st.SearchedCoverage(ctx)
	if err != nil {
		return 0, err
	}
	return searched.Area(), nil
}

// CommitSearched：独立事务提交覆盖区
func (c *Cache) CommitSearched(ctx context.Context, region geo.Region) error {
	return c.WithCommit(ctx, func(tx store.Tx, commit func(geo.Region) error) error {
		return commit(region)
	})
}

// 文档注释：在同一事务内执行店铺写入与覆盖区提交
// 背景：店铺已写入但覆盖区未提交只会造成重复查询；反过来会造成永久误判为荒漠，因此两者必须原子提交
// 约束：fn 内可多次调用 commit，每次均与事务内锁定的覆盖区做并集；fn 失败则全部回滚
func (c *Cache) WithCommit(ctx context.Context, fn func(tx store.Tx, commit func(geo.Region) error) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var committed geo.Region
	err := c.st.InTx(ctx, func(tx store.Tx) error {
		commit := func(region geo.Region) error {
			if region.IsEmpty() {
				return nil
			}
			current, err := tx.SearchedCoverage(ctx)
			if err != nil {
				return err
			}
			next := current.Union(region)
			if err := next.Validate(); err != nil {
				return fmt.Errorf("commit searched coverage: %w", err)
			}
			if next.Area() < current.Area()*(1-shrinkTolerance) {
				return fmt.Errorf("commit searched coverage: area shrank from %g to %g: %w", current.Area(), next.Area(), geo.ErrInvalidRegion)
			}
			if err := tx.SetSearchedCoverage(ctx, next); err != nil {
				return err
			}
			committed = next
			return nil
		}
		return fn(tx, commit)
	})
	if err != nil {
		metrics.CoverageCommitsTotal.WithLabelValues("error").Inc()
		logger.L().Error("coverage_commit_error", "err", err)
		return err
	}
	if !committed.IsEmpty() {
		metrics.CoverageCommitsTotal.WithLabelValues("ok").Inc()
		metrics.CoverageArea.Set(committed.Area())
		logger.L().Debug("coverage_commit_ok", "area", committed.Area())
	}
	return nil
}
