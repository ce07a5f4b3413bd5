package api

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"food-desert/internal/logger"
)

// cacheKeyPrefix 点判定缓存键前缀
const cacheKeyPrefix = "desert:"

// AnswerCache 点判定结果缓存；Get 第二个返回值表示命中
type AnswerCache interface {
	Get(ctx context.Context, key string) (bool, bool)
	Set(ctx context.Context, key string, desert bool)
}

// 文档注释：本地 LRU 缓存（geohash 为键）
// 背景：Redis 未启用时使用进程内缓存；热点坐标在短周期内重复判定。
// 约束：容量满时淘汰最久未访问项；过期项在读取时惰性删除。
type LRU struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	lst  *list.List
	dict map[string]*list.Element
	now  func() time.Time
}

type lruItem struct {
	k      string
	desert bool
	exp    time.Time
}

func NewLRU(capacity int, ttl time.Duration) *LRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRU{cap: capacity, ttl: ttl, lst: list.New(), dict: make(map[string]*list.Element), now: time.Now}
}

func (c *LRU) Get(ctx context.Context, k string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.dict[k]
	if !ok {
		return false, false
	}
	it := e.Value.(lruItem)
	if c.now().Before(it.exp) {
		c.lst.MoveToFront(e)
		return it.desert, true
	}
	c.lst.Remove(e)
	delete(c.dict, k)
	return false, false
}

func (c *LRU) Set(ctx context.Context, k string, desert bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := lruItem{k: k, desert: desert, exp: c.now().Add(c.ttl)}
	if e, ok := c.dict[k]; ok {
		e.Value = it
		c.lst.MoveToFront(e)
		return
	}
	c.dict[k] = c.lst.PushFront(it)
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		delete(c.dict, back.Value.(lruItem).k)
		c.lst.Remove(back)
	}
}

func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}

// 文档注释：Redis 点判定缓存
// 背景：多实例部署共享判定结果；值为 "1"/"0"，TTL 由 DESERT_CACHE_TTL_S 决定。
// 约束：Redis 读写失败不阻断请求，仅视为未命中。
type RedisCache struct {
	rc  *redis.Client
	ttl time.Duration
}

func NewRedisCache(rc *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rc: rc, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, k string) (bool, bool) {
	s, err := c.rc.Get(ctx, k).Result()
	if err != nil {
		if err != redis.Nil {
			logger.L().Debug("redis_get_error", "key", k, "err", err)
		}
		return false, false
	}
	return s == "1", true
}

func (c *RedisCache) Set(ctx context.Context, k string, desert bool) {
	v := "0"
	if desert {
		v = "1"
	}
	if err := c.rc.Set(ctx, k, v, c.ttl).Err(); err != nil {
		logger.L().Debug("redis_set_error", "key", k, "err", err)
	}
}

// Purge 删除全部点判定缓存键；清空店铺表后调用
func (c *RedisCache) Purge(ctx context.Context) (int, error) {
	n := 0
	iter := c.rc.Scan(ctx, 0, cacheKeyPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		if err := c.rc.Del(ctx, iter.Val()).Err(); err != nil {
			return n, err
		}
		n++
	}
	return n, iter.Err()
}
