package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/BaSui01/csescout/internal/tlsutil"
	"go.uber.org/zap"
)

// =============================================================================
// 🌐 HTTP 服务器管理器
// =============================================================================

// ErrClosed Start 在 Shutdown 之后调用时返回
var ErrClosed = errors.New("server is closed")

type state int

const (
	stateIdle state = iota
	stateRunning
	stateClosed
)

// Manager 管理一个 http.Server 的监听、服务与优雅关闭
type Manager struct {
	server *http.Server
	config Config
	logger *zap.Logger

	mu       sync.Mutex
	state    state
	listener net.Listener
	errCh    chan error
}

// Config 服务器配置
type Config struct {
	// 监听地址，":0" 表示随机端口
	Addr string `yaml:"addr" json:"addr"`

	ReadTimeout       time.Duration `yaml:"read_timeout" json:"read_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" json:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes" json:"max_header_bytes"`

	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// 同时设置时以 HTTPS 提供服务
	TLSCertFile string `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file" json:"tls_key_file"`
}

// DefaultConfig 返回默认服务器配置
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
		ShutdownTimeout:   15 * time.Second,
	}
}

// TLSEnabled 是否以 HTTPS 提供服务
func (c Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// NewManager 创建服务器管理器
func NewManager(handler http.Handler, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &http.Server{
		Addr:              config.Addr,
		Handler:           handler,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
		ErrorLog:          zap.NewStdLog(logger.With(zap.String("component", "net/http"))),
	}
	if config.TLSEnabled() {
		srv.TLSConfig = tlsutil.DefaultTLSConfig()
	}

	return &Manager{
		server: srv,
		config: config,
		logger: logger.With(zap.String("component", "http_server")),
		errCh:  make(chan error, 1),
	}
}

// =============================================================================
// 🎯 生命周期
// =============================================================================

// Start 绑定端口并在后台提供服务；端口占用等错误同步返回
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case stateClosed:
		return ErrClosed
	case stateRunning:
		return fmt.Errorf("server already started on %s", m.listener.Addr())
	}

	ln, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	m.listener = ln
	m.state = stateRunning

	tlsOn := m.config.TLSEnabled()
	m.logger.Info("starting HTTP server",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", tlsOn),
	)

	go func() {
		var err error
		if tlsOn {
			err = m.server.ServeTLS(ln, m.config.TLSCertFile, m.config.TLSKeyFile)
		} else {
			err = m.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("HTTP server failed", zap.Error(err))
			select {
			case m.errCh <- err:
			default:
			}
		}
	}()
	return nil
}

// ListenAddr 返回实际监听地址；未启动时返回配置地址
func (m *Manager) ListenAddr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.config.Addr
}

// Shutdown 在 ShutdownTimeout 内排空请求后关闭，可重复调用
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == stateClosed {
		return nil
	}
	wasRunning := m.state == stateRunning
	m.state = stateClosed
	if !wasRunning {
		return nil
	}

	m.logger.Info("shutting down HTTP server")
	if m.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.ShutdownTimeout)
		defer cancel()
	}
	if err := m.server.Shutdown(ctx); err != nil {
		// 超时后强制断开剩余连接（包括仍在运行的 WebSocket 查询）
		_ = m.server.Close()
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// Errors 返回后台服务的异常退出错误
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// WaitForShutdown 阻塞到收到信号（默认 SIGINT/SIGTERM）或服务异常退出，然后关闭
func (m *Manager) WaitForShutdown(signals ...os.Signal) {
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, signals...)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		m.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-m.errCh:
		m.logger.Error("server exited unexpectedly", zap.Error(err))
	}

	if err := m.Shutdown(context.Background()); err != nil {
		m.logger.Error("shutdown error", zap.Error(err))
	}
}
