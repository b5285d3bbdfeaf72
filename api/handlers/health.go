package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/csescout/llm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"

	defaultReadyTimeout = 5 * time.Second
)

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// OptionalCheck 由失败时只降级、不影响就绪的检查实现（例如缓存）
type OptionalCheck interface {
	Optional() bool
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger       *zap.Logger
	startedAt    time.Time
	readyTimeout time.Duration

	mu     sync.RWMutex
	checks []HealthCheck
}

// ServiceHealthResponse 健康状态响应
type ServiceHealthResponse struct {
	Status    string                 `json:"status"` // healthy / degraded / unhealthy
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status   string `json:"status"` // pass / warn / fail
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger:       logger.With(zap.String("component", "health")),
		startedAt:    time.Now(),
		readyTimeout: defaultReadyTimeout,
	}
}

// RegisterCheck 注册健康检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 存活检查，只说明进程在运行
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, ServiceHealthResponse{
		Status:    statusHealthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(h.startedAt).Truncate(time.Second).String(),
	})
}

// HandleHealthz Kubernetes 风格的存活探针
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	h.HandleHealth(w, r)
}

// HandleReady 并发执行全部检查。可选检查失败只降级为 degraded，仍返回 200
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.readyTimeout)
	defer cancel()

	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			results[i] = h.runCheck(ctx, check)
			return nil
		})
	}
	_ = g.Wait()

	resp := ServiceHealthResponse{
		Status:    statusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}
	for i, check := range checks {
		res := results[i]
		resp.Checks[check.Name()] = res
		switch {
		case res.Status == "fail":
			resp.Status = statusUnhealthy
		case res.Status == "warn" && resp.Status == statusHealthy:
			resp.Status = statusDegraded
		}
	}

	code := http.StatusOK
	if resp.Status == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, resp)
}

func (h *HealthHandler) runCheck(ctx context.Context, check HealthCheck) CheckResult {
	optional := false
	if oc, ok := check.(OptionalCheck); ok {
		optional = oc.Optional()
	}

	start := time.Now()
	err := check.Check(ctx)
	latency := time.Since(start)

	res := CheckResult{Status: "pass", Latency: latency.String(), Optional: optional}
	if err == nil {
		return res
	}
	res.Message = err.Error()
	res.Status = "fail"
	if optional {
		res.Status = "warn"
	}
	h.logger.Warn("health check failed",
		zap.String("check", check.Name()),
		zap.Bool("optional", optional),
		zap.Duration("latency", latency),
		zap.Error(err),
	)
	return res
}

// HandleVersion 返回构建信息
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	info := map[string]string{
		"version":    version,
		"build_time": buildTime,
		"git_commit": gitCommit,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, info)
	}
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// PingCheck 包装一个 ping 函数
type PingCheck struct {
	name     string
	ping     func(ctx context.Context) error
	optional bool
}

// NewDatabaseHealthCheck 运行记录数据库检查，失败即不就绪
func NewDatabaseHealthCheck(name string, ping func(ctx context.Context) error) *PingCheck {
	return &PingCheck{name: name, ping: ping}
}

// NewRedisHealthCheck 缓存检查。缓存只加速代码解析，失败时降级
func NewRedisHealthCheck(name string, ping func(ctx context.Context) error) *PingCheck {
	return &PingCheck{name: name, ping: ping, optional: true}
}

func (c *PingCheck) Name() string { return c.name }

func (c *PingCheck) Optional() bool { return c.optional }

func (c *PingCheck) Check(ctx context.Context) error { return c.ping(ctx) }

// ProviderHealthObserver 接收 LLM Provider 健康检查结果
type ProviderHealthObserver interface {
	ObserveProviderHealth(provider string, healthy bool)
}

// ProviderHealthCheck LLM Provider 健康检查
type ProviderHealthCheck struct {
	provider llm.Provider
	observer ProviderHealthObserver
}

// NewProviderHealthCheck 创建 LLM Provider 健康检查，observer 可为 nil
func NewProviderHealthCheck(provider llm.Provider, observer ProviderHealthObserver) *ProviderHealthCheck {
	return &ProviderHealthCheck{provider: provider, observer: observer}
}

func (c *ProviderHealthCheck) Name() string {
	return "llm:" + c.provider.Name()
}

func (c *ProviderHealthCheck) Check(ctx context.Context) error {
	status, err := c.provider.HealthCheck(ctx)
	healthy := err == nil && status != nil && status.Healthy
	if c.observer != nil {
		c.observer.ObserveProviderHealth(c.provider.Name(), healthy)
	}
	if err != nil {
		return err
	}
	if !healthy {
		return fmt.Errorf("provider %s reported unhealthy", c.provider.Name())
	}
	return nil
}
