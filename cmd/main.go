// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"food-desert/internal/api"
	"food-desert/internal/app"
	"food-desert/internal/config"
	"food-desert/internal/ingest"
	"food-desert/internal/logger"
	"food-desert/internal/metrics"
	"food-desert/internal/middleware"
	"food-desert/internal/network"
	"food-desert/internal/observability"
	"food-desert/internal/utils"
)

func main() {
	config.LoadDotenv()
	l := logger.Setup()
	l.Debug("log_init_ok")
	cfg := config.FromEnv()
	l.Debug("config_loaded", "api_base", cfg.APIBase, "reach_radius", cfg.ReachRadius, "commit_policy", cfg.CommitPolicy)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.TracingEnabled,
		ServiceName: cfg.TracingServiceName,
		SampleRatio: cfg.TracingSampleRatio,
	}, l)
	if err != nil {
		l.Error("tracing_init_error", "err", err)
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, l)

	st, stClose, err := app.OpenStore(ctx, cfg)
	if err != nil {
		l.Error("store_open_error", "err", err)
		os.Exit(1)
	}
	defer stClose.Close()

	// 文档注释：数据源管理器初始化
	// 背景：统一管理外部店铺数据源，后台心跳剔除不健康的源
	pm, err := app.BuildSources(cfg)
	if err != nil {
		l.Error("sources_error", "err", err)
		os.Exit(1)
	}
	pm.Start(ctx)

	sg, netClose, err := app.OpenNetwork(cfg)
	if err != nil {
		l.Error("network_open_error", "err", err)
		os.Exit(1)
	}
	defer netClose.Close()
	var g network.Graph
	if sg != nil {
		g = sg
	}
	if cfg.NetworkImportPath != "" && cfg.NetworkDBPath != "" {
		wdb, err := utils.OpenSQLite(cfg.NetworkDBPath, false)
		if err != nil {
			l.Error("network_writer_open_error", "err", err)
		} else {
			defer wdb.Close()
			ingest.StartWeekly(ctx, wdb, cfg.NetworkImportPath, cfg.NetworkImportHour,
				ingest.Options{Projected: cfg.NetworkImportProjected})
		}
	}
	eng := app.NewEngine(cfg, st, pm, g)

	var ac api.AnswerCache = api.NewLRU(10000, cfg.DesertCacheTTL)
	if rc, err := utils.OpenRedisFromEnv(ctx); err != nil {
		l.Error("redis_ping_error", "err", err)
	} else if rc != nil {
		defer rc.Close()
		ac = api.NewRedisCache(rc, cfg.DesertCacheTTL)
		l.Info("redis_ping_ok")
	} else {
		l.Info("redis_disabled")
	}

	var loc api.Locator
	if cfg.GeoIPPath != "" {
		gi, err := api.OpenGeoIP(cfg.GeoIPPath)
		if err != nil {
			l.Error("geoip_open_error", "path", cfg.GeoIPPath, "err", err)
		} else {
			defer gi.Close()
			loc = gi
			l.Info("geoip_ready", "path", cfg.GeoIPPath)
		}
	}

	mux := http.NewServeMux()
	apiMux := api.BuildRoutes(eng, ac, loc)
	mux.Handle(cfg.APIBase+"/", http.StripPrefix(cfg.APIBase, apiMux))
	mux.Handle(cfg.APIBase+"/metrics", metrics.Handler())
	mux.HandleFunc(cfg.APIBase+"/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.RateLimit(cfg.RateLimitEnabled, cfg.RateLimitQPS, handler)
	s := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(sctx)
	}()

	if cfg.TLSEnable {
		if err := utils.EnsureSelfSignedCert(cfg.TLSCertPath, cfg.TLSKeyPath, "food-desert.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		tlsCfg, err := utils.ServerTLSConfig(cfg.TLSCertPath, cfg.TLSKeyPath)
		if err != nil {
			l.Error("tls_config_error", "err", err)
			os.Exit(1)
		}
		s.TLSConfig = tlsCfg
		l.Info("listening_tls", "addr", cfg.Addr, "cert", cfg.TLSCertPath)
		err = s.ListenAndServeTLS("", "")
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("server_error", "err", err)
		}
		return
	}
	l.Info("listening", "addr", cfg.Addr)
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server_error", "err", err)
	}
}
