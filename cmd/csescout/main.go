// =============================================================================
// csescout 主入口
// =============================================================================
// CSE 研究编排服务：监督者把问题路由给 analyst / researcher，护栏审查后返回
//
// 使用方法:
//
//	csescout serve                         # 启动服务
//	csescout serve --config csescout.yaml  # 指定配置文件（支持热重载）
//	csescout ask "JKH 和 DIAL 今天的价格"     # 在终端运行一次查询并打印轨迹
//	csescout migrate up                    # 运行数据库迁移
//	csescout config                        # 打印生效配置（敏感字段已脱敏）
//	csescout version                       # 显示版本信息
//	csescout health                        # 健康检查
// =============================================================================

// @title CSE Scout API
// @version 1.0.0
// @description Hierarchical research orchestrator for the Colombo Stock Exchange.
// @description A supervisor routes each query to specialised workers (prices, indicators, news),
// @description and every released answer passes the risk-language guardrail.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT bearer token, required when auth.enabled is true

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/csescout/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "ask":
		os.Exit(runAsk(os.Args[2:], os.Stdout))
	case "migrate":
		runMigrate(os.Args[2:])
	case "config":
		runPrintConfig(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置，失败时退出进程
func loadConfig(path string) *config.Config {
	loader := config.NewLoader().WithValidator((*config.Config).Validate)
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger, level := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting csescout",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	app, err := NewApp(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}

	srv := NewServer(cfg, *configPath, logger, level, app)
	if err := srv.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
	srv.WaitForShutdown()

	logger.Info("csescout stopped")
}

// =============================================================================
// ⚙️ config 命令
// =============================================================================

func runPrintConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	out, err := loadConfig(*configPath).Sanitized().YAML()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(out)
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	_ = fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("csescout %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`csescout - Colombo Stock Exchange research orchestrator

Usage:
  csescout <command> [options]

Commands:
  serve     Start the API server
  ask       Run one query in the terminal and print the trace live
  migrate   Database migration commands
  config    Print the effective configuration (secrets masked)
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve', 'ask' and 'config':
  --config <path>   Path to configuration file (YAML)

Options for 'ask':
  --quiet           Print only the final answer
  --timeout <d>     Abort the run after this duration (default 5m)

Migration subcommands:
  migrate up          Apply all pending migrations
  migrate down        Roll back the last migration
  migrate down-all    Roll back all migrations
  migrate steps <n>   Apply (n > 0) or roll back (n < 0) n migrations
  migrate goto <v>    Migrate to a specific version
  migrate force <v>   Force set migration version
  migrate version     Show current migration version
  migrate status      Show migration status
  migrate info        Show migration summary

Environment:
  Every setting can be overridden with CSESCOUT_<SECTION>_<FIELD>,
  e.g. CSESCOUT_LLM_API_KEY, CSESCOUT_SEARCH_API_KEY, CSESCOUT_DATABASE_ENABLED.

Examples:
  csescout serve --config /etc/csescout/config.yaml
  csescout ask "What is the price of JKH and the latest news about Dialog?"
  csescout migrate up --config config.yaml
  csescout health --addr http://localhost:8080`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

// initLogger 构建根 logger。返回的 AtomicLevel 供热重载调整级别
func initLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	atomic := zap.NewAtomicLevelAt(level)

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	zapConfig := zap.Config{
		Level:             atomic,
		Development:       cfg.Format == "console",
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger, atomic
}

// signalContext 在收到 SIGINT/SIGTERM 时取消
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
