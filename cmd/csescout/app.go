package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/csescout/agent"
	"github.com/BaSui01/csescout/agent/guardrails"
	"github.com/BaSui01/csescout/agent/hierarchical"
	"github.com/BaSui01/csescout/config"
	"github.com/BaSui01/csescout/internal/cache"
	"github.com/BaSui01/csescout/internal/database"
	"github.com/BaSui01/csescout/internal/metrics"
	"github.com/BaSui01/csescout/internal/migration"
	"github.com/BaSui01/csescout/internal/runstore"
	"github.com/BaSui01/csescout/internal/telemetry"
	"github.com/BaSui01/csescout/llm"
	"github.com/BaSui01/csescout/llm/providers"
	"github.com/BaSui01/csescout/llm/providers/groq"
	"github.com/BaSui01/csescout/llm/retry"
	"github.com/BaSui01/csescout/llm/tools"
	"github.com/BaSui01/csescout/market"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// =============================================================================
// 🧩 组件装配
// =============================================================================

// App 持有一次进程生命周期内装配好的全部组件，serve 与 ask 共用
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	Registry  *prometheus.Registry
	Collector *metrics.Collector
	Telemetry *telemetry.Providers

	Cache    *cache.Manager        // Redis 关闭时为 nil
	DB       *database.PoolManager // 数据库关闭时为 nil
	Runs     *runstore.Store       // 数据库关闭时为 nil
	Provider llm.Provider

	Workers   []*agent.Worker
	Scheduler *hierarchical.Scheduler
	Validator *guardrails.QueryValidator
}

// appOptions 允许测试替换外部依赖
type appOptions struct {
	provider    llm.Provider
	dataSource  market.DataSource
	newsSource  tools.WebSearchProvider
	skipMigrate bool
}

type appOption func(*appOptions)

// withProvider 使用给定的 Provider 代替 Groq
func withProvider(p llm.Provider) appOption {
	return func(o *appOptions) { o.provider = p }
}

// withDataSource 使用给定的行情源代替 CSE 客户端
func withDataSource(ds market.DataSource) appOption {
	return func(o *appOptions) { o.dataSource = ds }
}

// withNewsSource 使用给定的检索后端代替 Tavily
func withNewsSource(ws tools.WebSearchProvider) appOption {
	return func(o *appOptions) { o.newsSource = ws }
}

// withoutMigrations 跳过启动时的数据库迁移
func withoutMigrations() appOption {
	return func(o *appOptions) { o.skipMigrate = true }
}

// NewApp 按配置装配调度器及其依赖。返回错误时已打开的资源会被关闭
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...appOption) (app *App, err error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	// 1. 指标与遥测
	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Collector = metrics.NewCollector("csescout", a.Registry, logger)

	a.Telemetry, err = telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		// 遥测不可用不影响服务
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		a.Telemetry, err = &telemetry.Providers{}, nil
	}

	// 2. 缓存
	var snapshots market.Cache
	if cfg.Redis.Enabled {
		if a.Cache, err = openCache(cfg.Redis, logger); err != nil {
			return nil, err
		}
		a.Cache.SetObserver(a.Collector)
		snapshots = a.Cache
	}

	// 3. 运行记录
	if cfg.Database.Enabled {
		if err = a.openRunStore(ctx, o.skipMigrate); err != nil {
			return nil, err
		}
	}

	// 4. 推理服务
	a.Provider = o.provider
	if a.Provider == nil {
		a.Provider = newGroqProvider(cfg.LLM, logger)
	}
	a.Provider = llm.WithMiddleware(a.Provider, llm.NewChain(
		llm.RecoveryMiddleware(func(v any) {
			logger.Error("llm provider panicked", zap.Any("panic", v))
		}),
		llm.LoggingMiddleware(logger),
		llm.TimeoutMiddleware(cfg.LLM.Timeout),
		llm.MetricsMiddleware(a.Provider.Name(), a.Collector),
	))

	// 5. 工具与 Worker
	if o.dataSource == nil {
		o.dataSource = market.NewCSEClient(market.CSEConfig{
			BaseURL:           cfg.Market.BaseURL,
			Timeout:           cfg.Market.Timeout,
			RequestsPerSecond: cfg.Market.RequestsPerSecond,
			QuoteTTL:          cfg.Market.QuoteTTL,
		}, snapshots, logger)
	}
	if o.newsSource == nil && cfg.Search.APIKey != "" {
		o.newsSource = tools.NewTavilyProvider(tools.TavilyConfig{
			APIKey:            cfg.Search.APIKey,
			BaseURL:           cfg.Search.BaseURL,
			Timeout:           cfg.Search.Timeout,
			RequestsPerSecond: cfg.Search.RequestsPerSecond,
		}, logger)
	}
	registry, err := buildToolRegistry(cfg, o.dataSource, o.newsSource, a.Collector, logger)
	if err != nil {
		return nil, err
	}

	resolver := market.NewAliasResolver(market.ResolverConfig{
		Aliases:       cfg.Market.Aliases,
		AllowUnlisted: cfg.Market.AllowUnlisted,
		CacheTTL:      cfg.Market.SymbolCacheTTL,
	}, snapshots, logger)

	if a.Workers, err = buildWorkers(cfg, a.Provider, registry, resolver, logger); err != nil {
		return nil, err
	}

	// 6. 监督者、护栏与调度器
	infos := make([]hierarchical.WorkerInfo, 0, len(a.Workers))
	runners := make([]hierarchical.WorkerRunner, 0, len(a.Workers))
	for _, w := range a.Workers {
		infos = append(infos, hierarchical.WorkerInfo{Name: w.Name(), Description: w.Description()})
		runners = append(runners, w)
	}

	supCfg := hierarchical.DefaultSupervisorConfig()
	supCfg.Model = cfg.LLM.Model
	supCfg.Temperature = float32(cfg.LLM.Temperature)
	if cfg.Orchestrator.SupervisorTimeout > 0 {
		supCfg.Timeout = cfg.Orchestrator.SupervisorTimeout
	}
	if cfg.Orchestrator.MaxFanOut > 0 {
		supCfg.MaxFanOut = cfg.Orchestrator.MaxFanOut
	}
	supervisor, err := hierarchical.NewSupervisor(supCfg, a.Provider, infos, logger)
	if err != nil {
		return nil, fmt.Errorf("create supervisor: %w", err)
	}

	guardCfg := guardrails.DefaultGuardConfig()
	if len(cfg.Guardrail.RiskTerms) > 0 {
		guardCfg.RiskTerms = cfg.Guardrail.RiskTerms
	}
	guard, err := guardrails.NewGuard(guardCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create guardrail: %w", err)
	}
	a.Validator = guardrails.NewQueryValidator(guardrails.QueryValidatorConfig{
		MaxLength:       cfg.Guardrail.MaxQueryLength,
		DetectInjection: cfg.Guardrail.DetectInjection,
	})

	schedCfg := hierarchical.DefaultSchedulerConfig()
	if cfg.Orchestrator.MaxSteps > 0 {
		schedCfg.MaxSteps = cfg.Orchestrator.MaxSteps
	}
	if cfg.Orchestrator.RunTimeout > 0 {
		schedCfg.RunTimeout = cfg.Orchestrator.RunTimeout
	}
	if cfg.Orchestrator.WorkerTimeout > 0 {
		schedCfg.WorkerTimeout = cfg.Orchestrator.WorkerTimeout
	}
	a.Scheduler, err = hierarchical.NewScheduler(schedCfg, supervisor, runners, guard, logger,
		hierarchical.WithObserver(a.Collector),
		hierarchical.WithTracer(a.Telemetry.Tracer("csescout/orchestrator")),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	logger.Info("orchestrator ready",
		zap.Strings("workers", a.Scheduler.Workers()),
		zap.Int("max_steps", schedCfg.MaxSteps),
		zap.Bool("cache", a.Cache != nil),
		zap.Bool("run_store", a.Runs != nil),
	)
	return a, nil
}

func openCache(cfg config.RedisConfig, logger *zap.Logger) (*cache.Manager, error) {
	cc := cache.DefaultConfig()
	cc.Addr = cfg.Addr
	cc.Password = cfg.Password
	cc.DB = cfg.DB
	cc.TLS = cfg.TLS
	if cfg.PoolSize > 0 {
		cc.PoolSize = cfg.PoolSize
	}
	if cfg.KeyPrefix != "" {
		cc.KeyPrefix = cfg.KeyPrefix
	}
	m, err := cache.NewManager(cc, logger)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return m, nil
}

func (a *App) openRunStore(ctx context.Context, skipMigrate bool) error {
	dbCfg := a.cfg.Database
	if !skipMigrate {
		m, err := migration.NewMigratorFromDatabaseConfig(dbCfg, a.logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		err = m.Up(ctx)
		if cerr := m.Close(); cerr != nil {
			a.logger.Warn("failed to close migrator", zap.Error(cerr))
		}
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}

	poolCfg := database.DefaultPoolConfig()
	if dbCfg.MaxOpenConns > 0 {
		poolCfg.MaxOpenConns = dbCfg.MaxOpenConns
	}
	if dbCfg.MaxIdleConns > 0 {
		poolCfg.MaxIdleConns = min(dbCfg.MaxIdleConns, poolCfg.MaxOpenConns)
	}
	if dbCfg.ConnMaxLifetime > 0 {
		poolCfg.ConnMaxLifetime = dbCfg.ConnMaxLifetime
	}

	pool, err := database.Open(dbCfg.Driver, dbCfg.DSN(), poolCfg, a.logger,
		database.WithStatsHook(func(s database.PoolStats) {
			a.Collector.RecordDBConnections(dbCfg.Driver, s.OpenConnections, s.Idle, s.InUse)
		}),
	)
	if err != nil {
		return err
	}
	a.DB = pool
	a.Runs = runstore.New(pool, a.logger)
	return nil
}

func newGroqProvider(cfg config.LLMConfig, logger *zap.Logger) llm.Provider {
	inner := groq.NewGroqProvider(providers.GroqConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		},
	}, logger)

	policy := retry.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries
	return providers.NewRetryableProvider(inner, policy, logger)
}

func buildToolRegistry(cfg *config.Config, ds market.DataSource, news tools.WebSearchProvider, observer tools.ToolObserver, logger *zap.Logger) (*tools.DefaultRegistry, error) {
	registry := tools.NewDefaultRegistry(logger)
	registry.SetObserver(observer)

	if err := tools.RegisterMarketTools(registry, tools.MarketToolConfig{
		Source:      ds,
		Timeout:     cfg.Market.Timeout * 2,
		HistoryDays: cfg.Market.HistoryDays,
	}, logger); err != nil {
		return nil, fmt.Errorf("register market tools: %w", err)
	}

	if news == nil {
		logger.Info("search api key not configured, news tool disabled")
		return registry, nil
	}
	newsCfg := tools.DefaultNewsToolConfig()
	newsCfg.Provider = news
	if cfg.Search.MaxResults > 0 {
		newsCfg.DefaultOpts.MaxResults = cfg.Search.MaxResults
	}
	if cfg.Search.SearchDepth != "" {
		newsCfg.DefaultOpts.SearchDepth = cfg.Search.SearchDepth
	}
	if cfg.Search.QuerySuffix != "" {
		newsCfg.QuerySuffix = cfg.Search.QuerySuffix
	}
	if cfg.Search.Timeout > 0 {
		newsCfg.Timeout = cfg.Search.Timeout + 5*time.Second
	}
	fn, meta := tools.NewNewsTool(newsCfg, logger)
	if err := registry.Register(fn, meta); err != nil {
		return nil, fmt.Errorf("register news tool: %w", err)
	}
	return registry, nil
}

// buildWorkers 创建 analyst，新闻工具可用时再创建 researcher
func buildWorkers(cfg *config.Config, provider llm.Provider, registry *tools.DefaultRegistry, resolver market.SymbolResolver, logger *zap.Logger) ([]*agent.Worker, error) {
	configs := []agent.WorkerConfig{agent.AnalystConfig()}
	if registry.Has(tools.NewsToolName) {
		configs = append(configs, agent.ResearcherConfig())
	}

	workers := make([]*agent.Worker, 0, len(configs))
	for _, wc := range configs {
		wc.Model = cfg.LLM.Model
		wc.Temperature = float32(cfg.LLM.Temperature)
		if cfg.Orchestrator.WorkerMaxSteps > 0 {
			wc.MaxSteps = cfg.Orchestrator.WorkerMaxSteps
		}
		wc.MaxSummaryTokens = cfg.Orchestrator.MaxSummaryTokens
		wc.MaxConcurrentTools = cfg.Orchestrator.MaxConcurrentTools

		w, err := agent.NewWorker(wc, provider, registry, resolver, logger)
		if err != nil {
			return nil, fmt.Errorf("create worker %s: %w", wc.Name, err)
		}
		workers = append(workers, w)
	}
	return workers, nil
}

// RecordOutcome 保存运行结果；未启用数据库时什么也不做
func (a *App) RecordOutcome(ctx context.Context, ans *hierarchical.FinalAnswer, runErr error) error {
	if a.Runs == nil {
		return nil
	}
	return a.Runs.SaveOutcome(ctx, ans, runErr)
}

// Close 释放数据库、缓存与遥测资源
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.Telemetry != nil {
		errs = append(errs, a.Telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
