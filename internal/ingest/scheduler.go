package ingest

import (
	"context"
	"database/sql"
	"time"

	"food-desert/internal/logger"
)

// nextWeekdayAt：计算 now 之后下一个 weekday 的整点 hour（不含当前已过时的当周）
// 约束：基于 now 所在时区；仅前推至未来时间
func nextWeekdayAt(now time.Time, weekday time.Weekday, hour int) time.Time {
	for i := 0; i <= 7; i++ {
		d := now.AddDate(0, 0, i)
		if d.Weekday() != weekday {
			continue
		}
		t := time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, now.Location())
		if t.After(now) {
			return t
		}
	}
	d := now.AddDate(0, 0, 7)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, now.Location())
}

// StartWeekly：每周一 hour 时重新导入路网文件
// 背景：路网数据按周刷新；错误由日志记录，任务继续调度，失败时保留旧路网
// 约束：运行于后台协程，ctx 取消后退出；opts 须与首次导入一致，否则投影坐标会被当作经纬度
func StartWeekly(ctx context.Context, db *sql.DB, path string, hour int, opts Options) {
	l := logger.L()
	next := nextWeekdayAt(time.Now(), time.Monday, hour)
	l.Info("network_reimport_scheduled", "next", next, "path", path, "projected", opts.Projected)
	go func() {
		for {
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			if st, err := ImportFile(ctx, db, path, opts); err != nil {
				l.Error("network_reimport_error", "err", err)
			} else {
				l.Info("network_reimport_done", "nodes", st.Nodes, "edges", st.Edges)
			}
			next = next.AddDate(0, 0, 7)
		}
	}()
}
