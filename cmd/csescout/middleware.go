package main

import (
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/csescout/api/handlers"
	"github.com/BaSui01/csescout/config"
	"github.com/BaSui01/csescout/internal/ctxkeys"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// requestIDHeader 请求 ID 头
const requestIDHeader = "X-Request-ID"

// Middleware 类型定义
type Middleware func(http.Handler) http.Handler

// Chain 将多个中间件串联，第一个中间件位于最外层
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Recovery panic 恢复中间件
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic recovered",
						zap.Any("error", err),
						zap.String("path", r.URL.Path),
						zap.Stack("stack"),
					)
					writeJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger 请求日志中间件
func RequestLogger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.StatusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			}
			if id, ok := ctxkeys.RequestID(r.Context()); ok {
				fields = append(fields, zap.String("request_id", id))
			}
			logger.Info("request", fields...)
		})
	}
}

// =============================================================================
// 📊 MetricsMiddleware
// =============================================================================

// HTTPRecorder 记录 HTTP 指标，*metrics.Collector 实现了它
type HTTPRecorder interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64)
}

// metricsResponseWriter 捕获状态码与响应体大小
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	wroteHeader  bool
	bytesWritten int64
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += int64(n)
	return n, err
}

// Unwrap 让 WebSocket 升级能找到底层的 http.Hijacker
func (w *metricsResponseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// MetricsMiddleware records request count, duration and response size.
// Path labels are normalized so run IDs do not explode label cardinality
// ("/api/v1/runs/3f2a…" becomes "/api/v1/runs/:id").
func MetricsMiddleware(recorder HTTPRecorder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			mrw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(mrw, r)
			recorder.RecordHTTPRequest(r.Method, normalizePath(r.URL.Path), mrw.statusCode, time.Since(start), mrw.bytesWritten)
		})
	}
}

// pathSegmentPattern matches UUIDs, long hex strings and numeric IDs.
var pathSegmentPattern = regexp.MustCompile(
	`^[0-9a-fA-F]{8,}(-[0-9a-fA-F]{4,}){0,4}$|^[0-9]+$`,
)

// normalizePath replaces dynamic path segments with ":id".
func normalizePath(path string) string {
	switch path {
	case "/health", "/healthz", "/ready", "/readyz", "/version", "/metrics",
		"/api/v1/query", "/api/v1/query/stream", "/api/v1/runs", "/api/v1/workers":
		return path
	}

	// run ID 由调用方提供时不一定是 UUID
	if rest, ok := strings.CutPrefix(path, "/api/v1/runs/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/api/v1/runs/:id"
	}

	segments := strings.Split(path, "/")
	normalized := false
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if pathSegmentPattern.MatchString(seg) {
			segments[i] = ":id"
			normalized = true
		}
	}
	if !normalized {
		return path
	}
	return strings.Join(segments, "/")
}

// =============================================================================
// 🔭 OTelTracing
// =============================================================================

// OTelTracing 为每个请求创建 server span，并从请求头中提取上游 trace context
func OTelTracing() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			tracer := otel.Tracer("csescout/http")
			ctx, span := tracer.Start(ctx, r.Method+" "+normalizePath(r.URL.Path),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			if sc := span.SpanContext(); sc.HasTraceID() {
				ctx = ctxkeys.WithTraceID(ctx, sc.TraceID().String())
			}

			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.response.status_code", rw.StatusCode))
			if rw.StatusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.StatusCode))
			}
		})
	}
}

// =============================================================================
// 🚦 RateLimiter
// =============================================================================

// RateLimiter 基于 IP 的令牌桶限流。SetLimit 可在运行时调整速率，
// 已存在的访客桶同步生效。
type RateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	visitors map[string]*visitor
	idleTTL  time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter 创建限流器。rps <= 0 表示不限流
func NewRateLimiter(rps float64, burst int, logger *zap.Logger) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		idleTTL:  3 * time.Minute,
		now:      time.Now,
		logger:   logger,
	}
	rl.SetLimit(rps, burst)
	return rl
}

// SetLimit 更新速率与突发量
func (rl *RateLimiter) SetLimit(rps float64, burst int) {
	if burst <= 0 {
		burst = max(1, int(rps))
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limit, rl.burst = limit, burst
	for _, v := range rl.visitors {
		v.limiter.SetLimit(limit)
		v.limiter.SetBurst(burst)
	}
}

// Allow 判断 key 是否还有令牌
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	if rl.limit == rate.Inf {
		rl.mu.Unlock()
		return true
	}
	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	rl.mu.Unlock()
	return v.limiter.AllowN(now, 1)
}

// Sweep 清理长时间未访问的桶，返回清理数量
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-rl.idleTTL)
	n := 0
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
			n++
		}
	}
	return n
}

// Middleware 返回限流中间件
func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !rl.Allow(ip) {
				rl.logger.Debug("rate limited", zap.String("ip", ip), zap.String("path", r.URL.Path))
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMIT", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// 🌍 CORS / RequestID / SecurityHeaders
// =============================================================================

// CORS 跨域中间件
// allowedOrigins 为空时不设置任何 CORS 头，浏览器会拒绝跨域请求。
func CORS(allowedOrigins []string) Middleware {
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			_, allowed := originSet[origin]
			if origin != "" && allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.Header().Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions && origin != "" {
				if !allowed {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID 为每个请求分配 ID 并写入 context 与响应头。客户端提供的 ID 会被保留
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(ctxkeys.WithRequestID(r.Context(), id)))
		})
	}
}

// SecurityHeaders adds common security response headers to every request.
func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("X-XSS-Protection", "1; mode=block")
			w.Header().Set("Content-Security-Policy", "default-src 'self'")
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// 🔐 JWTAuth
// =============================================================================

// JWTAuth 校验 Authorization: Bearer 中的 HS256 令牌。
// 只保护 protectedPrefix 下的路径；sub 声明写入 context 供日志使用。
// WebSocket 客户端无法设置请求头时可使用 access_token 查询参数。
func JWTAuth(cfg config.AuthConfig, protectedPrefix string, logger *zap.Logger) Middleware {
	secret := []byte(cfg.JWTSecret)
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.Audience))
	}
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, protectedPrefix) || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			tokenStr, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				tokenStr = r.URL.Query().Get("access_token")
			}
			if tokenStr == "" {
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or malformed Authorization header")
				return
			}

			claims := &jwt.RegisteredClaims{}
			if _, err := jwt.ParseWithClaims(tokenStr, claims, keyFunc, parserOpts...); err != nil {
				logger.Debug("JWT validation failed", zap.Error(err))
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
				return
			}

			ctx := r.Context()
			if claims.Subject != "" {
				ctx = ctxkeys.WithSubject(ctx, claims.Subject)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeJSONError 以统一的 Response 结构写出错误
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"success":false,"error":{"code":%q,"message":%q}}`, code, message)
}
