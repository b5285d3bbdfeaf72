package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/BaSui01/csescout/api/handlers"
	"github.com/BaSui01/csescout/config"
	"github.com/BaSui01/csescout/internal/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 组合 API 服务、Metrics 服务与配置热重载
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	level      zap.AtomicLevel
	app        *App

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler *handlers.HealthHandler
	limiter       *RateLimiter
	reloader      *config.Reloader

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, level zap.AtomicLevel, app *App) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		level:      level,
		app:        app,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有后台任务与监听端口（非阻塞）
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.limiter = NewRateLimiter(s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger)
	s.goLoop(ctx, time.Minute, func() { s.limiter.Sweep() })

	if err := s.initReloader(ctx); err != nil {
		return fmt.Errorf("failed to init config reloader: %w", err)
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.reloader != nil),
	)
	return nil
}

func (s *Server) goLoop(ctx context.Context, every time.Duration, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// initReloader 监听配置文件；未指定文件时跳过
func (s *Server) initReloader(ctx context.Context) error {
	if s.configPath == "" {
		return nil
	}
	loader := config.NewLoader().
		WithConfigPath(s.configPath).
		WithValidator((*config.Config).Validate)

	reloader, err := config.NewReloader(loader, s.cfg, s.logger)
	if err != nil {
		return err
	}
	reloader.OnReload(s.applyReload)
	s.reloader = reloader

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := reloader.Run(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("config watcher stopped", zap.Error(err))
		}
	}()
	return nil
}

// applyReload 应用无需重启即可生效的字段
func (s *Server) applyReload(_, next *config.Config, changes []config.ConfigChange) {
	for _, c := range changes {
		switch c.Path {
		case "Log.Level":
			lvl, err := zapcore.ParseLevel(next.Log.Level)
			if err != nil {
				s.logger.Warn("ignoring invalid log level", zap.String("level", next.Log.Level))
				continue
			}
			s.level.SetLevel(lvl)
		case "Server.RateLimitRPS", "Server.RateLimitBurst":
			s.limiter.SetLimit(next.Server.RateLimitRPS, next.Server.RateLimitBurst)
		}
	}
	s.cfg = next
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 注册全部路由
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	app := s.app

	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewProviderHealthCheck(app.Provider, app.Collector))
	if app.DB != nil {
		s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("database", app.DB.Ping))
	}
	if app.Cache != nil {
		s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck("redis", app.Cache.Ping))
	}

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	opts := []handlers.QueryOption{
		handlers.WithValidator(app.Validator),
		handlers.WithOriginPatterns(originHosts(s.cfg.Server.CORSOrigins)...),
	}
	if app.Runs != nil {
		opts = append(opts, handlers.WithRecorder(app.Runs))
	}
	query := handlers.NewQueryHandler(app.Scheduler, s.logger, opts...)
	mux.HandleFunc("POST /api/v1/query", query.HandleQuery)
	mux.HandleFunc("GET /api/v1/query/stream", query.HandleStream)
	mux.HandleFunc("GET /api/v1/workers", handlers.HandleWorkers(app.Workers))

	if app.Runs != nil {
		runs := handlers.NewRunsHandler(app.Runs, s.logger)
		mux.HandleFunc("GET /api/v1/runs", runs.HandleList)
		mux.HandleFunc("GET /api/v1/runs/{id}", runs.HandleGet)
	}

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		MetricsMiddleware(app.Collector),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSOrigins),
		s.limiter.Middleware(),
	}
	if s.cfg.Auth.Enabled {
		middlewares = append(middlewares, JWTAuth(s.cfg.Auth, "/api/", s.logger))
	}
	return Chain(mux, middlewares...)
}

// originHosts 把 CORS 来源（https://app.example.com）转换为 WebSocket 的主机匹配模式
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
			continue
		}
		hosts = append(hosts, o)
	}
	return hosts
}

// startHTTPServer 启动 API 服务
func (s *Server) startHTTPServer() error {
	s.httpManager = server.NewManager(s.routes(), server.Config{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   s.cfg.Server.ShutdownTimeout,
		TLSCertFile:       s.cfg.Server.TLSCertFile,
		TLSKeyFile:        s.cfg.Server.TLSKeyFile,
	}, s.logger)
	return s.httpManager.Start()
}

// startMetricsServer 在独立端口暴露 /metrics
func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.app.Registry, promhttp.HandlerOpts{
		Registry:          s.app.Registry,
		EnableOpenMetrics: true,
	}))

	s.metricsManager = server.NewManager(mux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	return s.metricsManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞到收到信号或服务异常退出，然后优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown 依次停止后台任务、HTTP 服务、Metrics 服务并释放组件
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.cancel != nil {
		s.cancel()
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}
	s.wg.Wait()

	if err := s.app.Close(ctx); err != nil {
		s.logger.Error("failed to release resources", zap.Error(err))
	}
	s.logger.Info("Graceful shutdown completed")
}
