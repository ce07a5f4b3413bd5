// 包 middleware：入口 HTTP 中间件
package middleware

import (
	"net/http"
	"sync"
	"time"

	"food-desert/internal/logger"
)

// 文档注释：令牌桶限流（每秒）
// 背景：判定请求可能触发外部店铺查询，入口限速避免突发流量耗尽外部服务配额。
// 约束：简化实现，不做队列排队，仅丢弃并返回 429；每个自然秒重置令牌。
type TokenBucket struct {
	capacity int
	tokens   int
	lastSec  int64
	mu       sync.Mutex
	now      func() time.Time
}

func NewTokenBucket(qps int) *TokenBucket {
	if qps <= 0 {
		qps = 1
	}
	return &TokenBucket{capacity: qps, tokens: qps, lastSec: time.Now().Unix(), now: time.Now}
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	nowSec := tb.now().Unix()
	if tb.lastSec != nowSec {
		tb.lastSec = nowSec
		tb.tokens = tb.capacity
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// RateLimit：enabled 为 false 时原样返回 next
func RateLimit(enabled bool, qps int, next http.Handler) http.Handler {
	if !enabled {
		return next
	}
	tb := NewTokenBucket(qps)
	logger.L().Info("rate_limit_enabled", "qps", tb.capacity)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tb.Allow() {
			logger.L().Debug("rate_limited", "path", r.URL.Path)
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
