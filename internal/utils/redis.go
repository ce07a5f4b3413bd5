package utils

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"food-desert/internal/logger"
)

// RedisOptionsFromEnv：REDIS_HOST 未设置时返回 false，表示不启用 Redis
// 约束：REDIS_DB 解析失败时回退到 0
func RedisOptionsFromEnv() (*redis.Options, bool) {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		return nil, false
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	db := 0
	if n, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil && n >= 0 {
		db = n
	}
	return &redis.Options{Addr: host + ":" + port, Password: os.Getenv("REDIS_PASS"), DB: db}, true
}

// OpenRedisFromEnv：打开并探活 Redis；未配置时返回 (nil, nil)
func OpenRedisFromEnv(ctx context.Context) (*redis.Client, error) {
	opts, ok := RedisOptionsFromEnv()
	if !ok {
		return nil, nil
	}
	logger.L().Debug("redis_env", "addr", opts.Addr, "db", opts.DB)
	rc := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rc.Ping(pctx).Err(); err != nil {
		_ = rc.Close()
		return nil, err
	}
	return rc, nil
}
